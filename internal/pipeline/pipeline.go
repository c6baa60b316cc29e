package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"mediaflow/internal/engine"
	"mediaflow/internal/jobs"
	"mediaflow/internal/ledger"
	"mediaflow/internal/proxy"
	"mediaflow/internal/transcript"
)

// Config wires one pipeline run.
type Config struct {
	DataDir      string
	SplitMinutes int
	Workers      int
	MaxRetries   int
	Headless     bool
	ProxyFile    string
	ProxyMaxAge  time.Duration
	Work         engine.WorkFunc
	Ledger       ledger.Repository // nil disables the attempt ledger
}

// Pipeline runs the media stages around the upload engine. The proxy pool
// is shared with the status API and reloaded from the store before every
// engine run, so an external refresher can repair it mid-pipeline.
type Pipeline struct {
	cfg  Config
	pool *proxy.Pool
}

func New(cfg Config, pool *proxy.Pool) *Pipeline {
	if cfg.SplitMinutes <= 0 {
		cfg.SplitMinutes = 15
	}
	return &Pipeline{cfg: cfg, pool: pool}
}

func (pl *Pipeline) dir(name string) string { return filepath.Join(pl.cfg.DataDir, name) }

// Run dispatches by pipeline name: audio, video or html.
func (pl *Pipeline) Run(ctx context.Context, name string) error {
	switch name {
	case "audio":
		return pl.RunAudio(ctx)
	case "video":
		return pl.RunVideo(ctx)
	case "html":
		return transcript.ExtractFolder(pl.dir("html_output"), pl.dir("transcript"))
	default:
		return fmt.Errorf("unknown pipeline %q", name)
	}
}

// RunAudio: video -> audio -> split -> enhance -> upload -> transcript.
func (pl *Pipeline) RunAudio(ctx context.Context) error {
	log.Info().Msg("converting videos to audio")
	if err := convertFolder(ctx, pl.dir("raw_video"), pl.dir("raw_audio"), ".wav", videoExts, extractAudioArgs); err != nil {
		return err
	}

	log.Info().Int("minutes", pl.cfg.SplitMinutes).Msg("splitting audio into chunks")
	if err := splitFolder(ctx, pl.dir("raw_audio"), pl.dir("splitted_audio"), 60*pl.cfg.SplitMinutes, audioExts); err != nil {
		return err
	}

	log.Info().Msg("enhancing audio chunks")
	if err := convertFolder(ctx, pl.dir("splitted_audio"), pl.dir("enhanced_audio"), ".wav", audioExts, enhanceArgs); err != nil {
		return err
	}

	if err := pl.uploadStage(ctx, "audio", pl.dir("enhanced_audio")); err != nil {
		return err
	}

	log.Info().Msg("extracting transcripts from uploaded results")
	return transcript.ExtractFolder(pl.dir("html_output"), pl.dir("transcript"))
}

// RunVideo: audio -> video -> split -> upload -> transcript.
func (pl *Pipeline) RunVideo(ctx context.Context) error {
	log.Info().Msg("converting audio to video")
	if err := convertFolder(ctx, pl.dir("raw_audio"), pl.dir("raw_video"), ".mp4", audioExts, renderVideoArgs); err != nil {
		return err
	}

	log.Info().Int("minutes", pl.cfg.SplitMinutes).Msg("splitting videos into chunks")
	if err := splitFolder(ctx, pl.dir("raw_video"), pl.dir("splitted_video"), 60*pl.cfg.SplitMinutes, videoExts); err != nil {
		return err
	}

	if err := pl.uploadStage(ctx, "video", pl.dir("splitted_video")); err != nil {
		return err
	}

	log.Info().Msg("extracting transcripts from uploaded results")
	return transcript.ExtractFolder(pl.dir("html_output"), pl.dir("transcript"))
}

// uploadStage drives the engine over the chunk folder until every job is
// complete or a pool reload comes back empty. Each iteration re-reads the
// proxy store, so proxies added by the external refresher between runs
// re-enter the rotation.
func (pl *Pipeline) uploadStage(ctx context.Context, pipelineName, inputDir string) error {
	log.Info().Str("input", inputDir).Msg("uploading chunks for transcription")
	for {
		records, err := proxy.Load(pl.cfg.ProxyFile, pl.cfg.ProxyMaxAge)
		if err != nil {
			return err
		}
		pl.pool.Reset(records)

		jobList, err := jobs.FromFolder(inputDir, pl.dir("html_output"))
		if err != nil {
			return err
		}
		if len(jobList) == 0 {
			log.Warn().Str("input", inputDir).Msg("no chunks to upload")
			return nil
		}

		if pl.pool.Len() == 0 {
			// Nothing fresh in the store; the engine would spin.
			log.Warn().Str("store", pl.cfg.ProxyFile).Msg("no usable proxies, ending upload stage")
			return nil
		}

		rec := engine.Recorder(engine.NopRecorder{})
		runID := ""
		if pl.cfg.Ledger != nil {
			runID, err = pl.cfg.Ledger.BeginRun(ctx, pipelineName)
			if err != nil {
				log.Error().Err(err).Msg("begin ledger run")
			} else {
				rec = pl.cfg.Ledger.Recorder(runID)
			}
		}

		launcher := engine.NewLauncher(pl.pool, pl.cfg.Work, engine.Config{
			Workers:    pl.cfg.Workers,
			MaxRetries: pl.cfg.MaxRetries,
			Headless:   pl.cfg.Headless,
			Recorder:   rec,
		})
		done, runErr := launcher.Run(ctx, jobList)

		if pl.cfg.Ledger != nil && runID != "" {
			if err := pl.cfg.Ledger.FinishRun(ctx, runID, done); err != nil {
				log.Error().Err(err).Msg("finish ledger run")
			}
		}
		if runErr != nil {
			return runErr
		}
		if done {
			log.Info().Msg("upload complete")
			return nil
		}
		// Pool exhausted with jobs left; try a reload in case the store
		// was repaired while we ran.
	}
}
