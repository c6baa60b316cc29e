package transcript

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	breakRe  = regexp.MustCompile(`(?i)<(br|/p|/div|/li|/tr|/h[1-6])[^>]*>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	blankRe  = regexp.MustCompile(`\n{3,}`)
)

// ExtractText strips markup from a vendor transcript page and returns the
// plain text, with block boundaries kept as newlines.
func ExtractText(page string) string {
	s := scriptRe.ReplaceAllString(page, "")
	s = breakRe.ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = blankRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// ExtractFolder converts every saved HTML artifact in htmlDir into a
// markdown transcript under mdDir, one .md per chunk, skipping files that
// were already converted.
func ExtractFolder(htmlDir, mdDir string) error {
	entries, err := os.ReadDir(htmlDir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("dir", htmlDir).Msg("no html output folder, nothing to extract")
			return nil
		}
		return fmt.Errorf("read html folder %s: %w", htmlDir, err)
	}
	if err := os.MkdirAll(mdDir, 0o755); err != nil {
		return fmt.Errorf("create transcript dir %s: %w", mdDir, err)
	}

	converted := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".html") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		outPath := filepath.Join(mdDir, name+".md")
		if _, err := os.Stat(outPath); err == nil {
			log.Debug().Str("chunk", name).Msg("transcript exists, skipping")
			continue
		}

		data, err := os.ReadFile(filepath.Join(htmlDir, e.Name()))
		if err != nil {
			return fmt.Errorf("read %s: %w", e.Name(), err)
		}
		text := ExtractText(string(data))
		if err := os.WriteFile(outPath, []byte(text+"\n"), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", outPath, err)
		}
		converted++
		log.Info().Str("chunk", name).Int("chars", len(text)).Msg("transcript saved")
	}
	log.Info().Int("converted", converted).Str("out", mdDir).Msg("transcript extraction complete")
	return nil
}
