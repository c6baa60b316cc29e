package jobs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"mediaflow/internal/domain"
)

var mediaExts = map[string]struct{}{
	".wav":  {},
	".mp3":  {},
	".m4a":  {},
	".flac": {},
	".ogg":  {},
	".mp4":  {},
	".mkv":  {},
	".mov":  {},
	".webm": {},
}

// FromFolder enumerates media chunk files in inputDir and builds one job
// per file, in lexical order. The output artifact for a chunk is
// <outputDir>/<stem>.html. Two chunks resolving to the same job name is a
// setup error, not something to paper over.
func FromFolder(inputDir, outputDir string) ([]*domain.Job, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, fmt.Errorf("read input folder %s: %w", inputDir, err)
	}

	seen := make(map[string]string)
	var out []*domain.Job
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if _, ok := mediaExts[ext]; !ok {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("duplicate job name %q from %s and %s", name, prev, e.Name())
		}
		seen[name] = e.Name()
		out = append(out, domain.NewJob(
			name,
			filepath.Join(inputDir, e.Name()),
			filepath.Join(outputDir, name+".html"),
		))
	}
	log.Debug().Int("jobs", len(out)).Str("input", inputDir).Msg("job source scanned")
	return out, nil
}
