package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"mediaflow/internal/domain"
	"mediaflow/internal/proxy"
)

// WorkFunc performs one upload attempt for a job with the given proxy
// bound as the egress path. Ordinary failures come back as an Outcome; a
// non-nil error is reserved for unclassified conditions and aborts the run.
// Implementations must be total: a hung attempt is the implementer's bug.
type WorkFunc func(ctx context.Context, job *domain.Job, p domain.ProxyRecord, headless bool) (domain.Outcome, error)

// AttemptRecord describes one finished attempt for the ledger.
type AttemptRecord struct {
	Job      string
	Proxy    string
	Outcome  domain.Outcome
	Duration time.Duration
	Error    string
}

// Recorder receives attempt records as they complete. Implementations must
// tolerate being called from the launcher's collector loop only.
type Recorder interface {
	RecordAttempt(ctx context.Context, a AttemptRecord) error
}

// NopRecorder discards attempt records.
type NopRecorder struct{}

func (NopRecorder) RecordAttempt(context.Context, AttemptRecord) error { return nil }

const (
	DefaultWorkers    = 8
	DefaultMaxRetries = 3
	DefaultSweepPause = 2 * time.Second
)

// Config tunes a Launcher. Zero values fall back to the defaults above.
type Config struct {
	Workers    int           // concurrency cap per dispatch round
	MaxRetries int           // transient-failure ceiling before eviction
	SweepPause time.Duration // pause between sweeps over incomplete jobs
	Headless   bool          // passed through to the work function
	Recorder   Recorder
	// ArtifactCheck answers whether a job's output artifact already
	// exists. Defaults to a plain file stat.
	ArtifactCheck func(*domain.Job) bool
}

// Launcher drives a batch of jobs to completion against a depleting proxy
// pool. Pool and tally mutation happens only on the launcher goroutine,
// one outcome at a time; worker goroutines touch nothing but the job guard.
type Launcher struct {
	pool       *proxy.Pool
	work       WorkFunc
	rec        Recorder
	tally      *Tally
	workers    int
	maxRetries int
	sweepPause time.Duration
	headless   bool
	artifact   func(*domain.Job) bool
}

func NewLauncher(pool *proxy.Pool, work WorkFunc, cfg Config) *Launcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.SweepPause <= 0 {
		cfg.SweepPause = DefaultSweepPause
	}
	if cfg.Recorder == nil {
		cfg.Recorder = NopRecorder{}
	}
	if cfg.ArtifactCheck == nil {
		cfg.ArtifactCheck = artifactOnDisk
	}
	return &Launcher{
		pool:       pool,
		work:       work,
		rec:        cfg.Recorder,
		tally:      NewTally(),
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		sweepPause: cfg.SweepPause,
		headless:   cfg.Headless,
		artifact:   cfg.ArtifactCheck,
	}
}

func artifactOnDisk(j *domain.Job) bool {
	info, err := os.Stat(j.OutputPath)
	return err == nil && !info.IsDir()
}

// Run sweeps incomplete jobs until every job is completed or the proxy
// pool is exhausted. Jobs whose output artifact already exists are marked
// completed up front and never reach the work function. Returns true iff
// every job ended completed; pool exhaustion is reported, not an error.
func (l *Launcher) Run(ctx context.Context, jobs []*domain.Job) (bool, error) {
	incomplete := make([]*domain.Job, 0, len(jobs))
	for _, job := range jobs {
		if l.artifact(job) {
			job.MarkCompleted()
			continue
		}
		incomplete = append(incomplete, job)
	}

	if len(incomplete) == 0 {
		log.Info().Int("jobs", len(jobs)).Msg("all transcription jobs already completed")
		return true, nil
	}
	log.Info().
		Int("jobs", len(jobs)).
		Int("incomplete", len(incomplete)).
		Int("proxies", l.pool.Len()).
		Msg("starting upload run")

	for l.pool.Len() > 0 && len(incomplete) > 0 {
		remaining := make([]*domain.Job, 0, len(incomplete))
		for _, job := range incomplete {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			if !job.TryAcquire() {
				// A previous round is still draining; do not block the sweep.
				remaining = append(remaining, job)
				continue
			}
			err := l.runRound(ctx, job)
			job.Release()
			if err != nil {
				return false, err
			}
			if job.Incomplete() {
				log.Error().Str("job", job.Name).Msg("upload failed for job, will retry next sweep")
				remaining = append(remaining, job)
			}
		}
		incomplete = remaining

		if l.pool.Len() == 0 || len(incomplete) == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(l.sweepPause):
		}
	}

	if len(incomplete) > 0 {
		names := make([]string, 0, len(incomplete))
		for _, job := range incomplete {
			names = append(names, job.Name)
		}
		log.Warn().
			Strs("jobs", names).
			Msg("proxy pool exhausted with jobs still incomplete")
		return false, nil
	}
	log.Info().Int("jobs", len(jobs)).Msg("all transcription jobs completed")
	return true, nil
}

type attemptResult struct {
	proxy   domain.ProxyRecord
	outcome domain.Outcome
	err     error
	took    time.Duration
}

// runRound fans one job out across the current pool snapshot, bounded by
// the worker cap, and applies each outcome as it arrives. The first
// success latches completion; straggler outcomes still feed proxy
// bookkeeping but never touch job state.
func (l *Launcher) runRound(ctx context.Context, job *domain.Job) error {
	snapshot := l.pool.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}
	log.Info().Str("job", job.Name).Int("proxies", len(snapshot)).Msg("processing transcription job")

	sem := make(chan struct{}, l.workers)
	results := make(chan attemptResult, len(snapshot))
	for _, p := range snapshot {
		go func(p domain.ProxyRecord) {
			sem <- struct{}{}
			defer func() { <-sem }()
			start := time.Now()
			outcome, err := l.work(ctx, job, p, l.headless)
			results <- attemptResult{proxy: p, outcome: outcome, err: err, took: time.Since(start)}
		}(p)
	}

	for tried := 1; tried <= len(snapshot); tried++ {
		res := <-results
		if res.err != nil {
			// Unclassified failure: abort the run. Remaining attempts
			// drain into the buffered channel and are dropped.
			return fmt.Errorf("attempt for job %s via proxy %s: %w", job.Name, res.proxy.Key(), res.err)
		}
		l.record(ctx, job, res)
		log.Debug().
			Str("job", job.Name).
			Str("proxy", res.proxy.Key()).
			Stringer("outcome", res.outcome).
			Dur("took", res.took).
			Int("tried", tried).
			Int("of", len(snapshot)).
			Msg("attempt finished")

		if res.outcome == domain.OutcomeSuccess && job.Incomplete() {
			job.MarkCompleted()
			log.Info().Str("job", job.Name).Str("proxy", res.proxy.Key()).Msg("job completed")
		}
		l.applyOutcome(res.proxy, res.outcome)
	}
	return nil
}

// applyOutcome runs the pool mutation policy for one observed outcome.
// Called from the launcher goroutine only, so mutations are serialized and
// every eviction is persisted before the next round depends on it.
func (l *Launcher) applyOutcome(p domain.ProxyRecord, outcome domain.Outcome) {
	key := p.Key()
	switch outcome {
	case domain.OutcomeSuccess:
		l.tally.Reset(key)
	case domain.OutcomeConnectionError:
		if l.pool.Remove(key) {
			log.Warn().Str("proxy", key).Msg("proxy cannot reach target, evicted")
			l.persistPool()
		}
	case domain.OutcomeGenericError:
		if l.tally.Inc(key) >= l.maxRetries {
			l.tally.Clear(key)
			if l.pool.Remove(key) {
				log.Warn().Str("proxy", key).Int("failures", l.maxRetries).Msg("removed proxy after repeated failures")
				l.persistPool()
			}
		}
	}
}

// persistPool writes the pool through to the store. A failed write
// degrades durability only; the in-memory pool stays authoritative.
func (l *Launcher) persistPool() {
	if err := l.pool.Persist(); err != nil {
		log.Error().Err(err).Msg("persist proxy pool")
	}
}

func (l *Launcher) record(ctx context.Context, job *domain.Job, res attemptResult) {
	a := AttemptRecord{
		Job:      job.Name,
		Proxy:    res.proxy.Key(),
		Outcome:  res.outcome,
		Duration: res.took,
	}
	if err := l.rec.RecordAttempt(ctx, a); err != nil {
		log.Error().Err(err).Str("job", job.Name).Msg("record attempt")
	}
}
