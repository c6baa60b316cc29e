package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Thin ffmpeg wrappers for the conversion stages. Each folder operation
// skips inputs whose outputs already exist, so a re-run resumes where the
// last one stopped.

var audioExts = map[string]struct{}{
	".wav": {}, ".mp3": {}, ".m4a": {}, ".flac": {}, ".ogg": {},
}

var videoExts = map[string]struct{}{
	".mp4": {}, ".mkv": {}, ".mov": {}, ".webm": {},
}

func runFFmpeg(ctx context.Context, args ...string) error {
	full := append([]string{"-hide_banner", "-loglevel", "error", "-y"}, args...)
	cmd := exec.CommandContext(ctx, "ffmpeg", full...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg error: %v; out=%s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func listMedia(dir string, exts map[string]struct{}) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read folder %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := exts[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func stem(name string) string { return strings.TrimSuffix(name, filepath.Ext(name)) }

// convertFolder maps every media file in inDir to outDir/<stem><outExt>
// with ffmpeg args built by argsFor, skipping existing outputs.
func convertFolder(ctx context.Context, inDir, outDir, outExt string, exts map[string]struct{}, argsFor func(src, dst string) []string) error {
	files, err := listMedia(inDir, exts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create folder %s: %w", outDir, err)
	}
	for _, name := range files {
		src := filepath.Join(inDir, name)
		dst := filepath.Join(outDir, stem(name)+outExt)
		if _, err := os.Stat(dst); err == nil {
			log.Debug().Str("file", name).Msg("output exists, skipping conversion")
			continue
		}
		log.Info().Str("src", name).Str("dst", filepath.Base(dst)).Msg("converting")
		if err := runFFmpeg(ctx, argsFor(src, dst)...); err != nil {
			return fmt.Errorf("convert %s: %w", name, err)
		}
	}
	return nil
}

func extractAudioArgs(src, dst string) []string {
	return []string{"-i", src, "-vn", "-acodec", "pcm_s16le", dst}
}

// renderVideoArgs pairs the audio track with a blank video stream so the
// vendor accepts the chunk as a video upload.
func renderVideoArgs(src, dst string) []string {
	return []string{
		"-f", "lavfi", "-i", "color=c=black:s=640x360:r=10",
		"-i", src,
		"-shortest", "-c:v", "libx264", "-c:a", "aac",
		dst,
	}
}

func enhanceArgs(src, dst string) []string {
	// Bandpass, compression and gain tuned for speech.
	return []string{
		"-i", src,
		"-af", "highpass=f=100,lowpass=f=6000,acompressor=threshold=-30dB:ratio=4,volume=8dB",
		dst,
	}
}

// splitFolder cuts every media file in inDir into chunkSeconds segments
// named <stem>_NNN<ext>. A file whose first segment already exists is
// assumed split and skipped.
func splitFolder(ctx context.Context, inDir, outDir string, chunkSeconds int, exts map[string]struct{}) error {
	files, err := listMedia(inDir, exts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create folder %s: %w", outDir, err)
	}
	for _, name := range files {
		ext := filepath.Ext(name)
		first := filepath.Join(outDir, fmt.Sprintf("%s_000%s", stem(name), ext))
		if _, err := os.Stat(first); err == nil {
			log.Debug().Str("file", name).Msg("segments exist, skipping split")
			continue
		}
		src := filepath.Join(inDir, name)
		pattern := filepath.Join(outDir, stem(name)+"_%03d"+ext)
		log.Info().Str("file", name).Int("chunk_seconds", chunkSeconds).Msg("splitting")
		err := runFFmpeg(ctx,
			"-i", src,
			"-f", "segment",
			"-segment_time", strconv.Itoa(chunkSeconds),
			"-c", "copy",
			"-reset_timestamps", "1",
			pattern,
		)
		if err != nil {
			return fmt.Errorf("split %s: %w", name, err)
		}
	}
	return nil
}
