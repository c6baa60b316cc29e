package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"mediaflow/internal/domain"
)

// Client uploads one media chunk to the transcription endpoint through a
// given proxy and saves the returned HTML as the job's output artifact.
// It is the default engine.WorkFunc: ordinary failures are classified
// into outcomes, never returned as errors.
type Client struct {
	endpoint string
	timeout  time.Duration
}

const DefaultTimeout = 3 * time.Minute

func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{endpoint: endpoint, timeout: timeout}
}

// Upload performs exactly one attempt. The headless flag belongs to
// browser-driven work functions and is ignored here.
func (c *Client) Upload(ctx context.Context, job *domain.Job, p domain.ProxyRecord, _ bool) (domain.Outcome, error) {
	proxyURL, err := url.Parse("http://" + p.Key())
	if err != nil {
		// A malformed proxy record can never succeed; treat it as dead.
		return domain.OutcomeConnectionError, nil
	}

	f, err := os.Open(job.InputPath)
	if err != nil {
		return 0, fmt.Errorf("open chunk %s: %w", job.InputPath, err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(job.InputPath))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, pr)
	if err != nil {
		return 0, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	client := &http.Client{
		Timeout:   c.timeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		// Dial failures, proxy refusals and timeouts all mean this proxy
		// cannot reach the service.
		return domain.OutcomeConnectionError, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, resp.Body)
		return domain.OutcomeGenericError, nil
	}

	if err := c.saveArtifact(job.OutputPath, resp.Body); err != nil {
		if errors.Is(err, errEmptyArtifact) {
			return domain.OutcomeGenericError, nil
		}
		return 0, err
	}
	return domain.OutcomeSuccess, nil
}

var errEmptyArtifact = errors.New("empty response body")

// saveArtifact writes the transcript HTML via temp file + rename so a
// half-written artifact never passes the completion check.
func (c *Client) saveArtifact(path string, body io.Reader) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*.html")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	n, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write artifact: %w", err)
	}
	if n == 0 {
		os.Remove(tmpName)
		return errEmptyArtifact
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace artifact %s: %w", path, err)
	}
	return nil
}
