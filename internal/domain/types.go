package domain

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Outcome classifies the result of one (job, proxy) attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeConnectionError
	OutcomeGenericError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeConnectionError:
		return "connection_error"
	case OutcomeGenericError:
		return "generic_error"
	default:
		return "unknown"
	}
}

// Job is one media chunk awaiting proxy-routed upload. Completion latches
// once and is never reset; the in-flight guard keeps two dispatch rounds
// from running against the same job at the same time.
type Job struct {
	Name       string
	InputPath  string
	OutputPath string

	completed atomic.Bool
	inFlight  atomic.Bool
}

func NewJob(name, inputPath, outputPath string) *Job {
	return &Job{Name: name, InputPath: inputPath, OutputPath: outputPath}
}

func (j *Job) Completed() bool  { return j.completed.Load() }
func (j *Job) Incomplete() bool { return !j.completed.Load() }

// MarkCompleted is idempotent; completion is monotonic.
func (j *Job) MarkCompleted() { j.completed.Store(true) }

// TryAcquire marks the job in-flight. It never blocks; false means a round
// is already running for this job.
func (j *Job) TryAcquire() bool { return j.inFlight.CompareAndSwap(false, true) }

// Release must be called on every exit path of a round.
func (j *Job) Release() { j.inFlight.Store(false) }

func (j *Job) String() string { return j.Name }

// ProxyRecord is one egress endpoint in the pool. CheckedAt is written by
// the external proxy refresher and only read here for the load-time age
// filter; the engine never re-checks it.
type ProxyRecord struct {
	IP        string    `json:"ip"`
	Port      int       `json:"port"`
	CheckedAt time.Time `json:"checked_at"`
}

// Key is the pool identity: host:port.
func (p ProxyRecord) Key() string { return fmt.Sprintf("%s:%d", p.IP, p.Port) }
