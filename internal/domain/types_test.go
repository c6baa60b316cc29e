package domain

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestOutcomeString(t *testing.T) {
	cases := []struct {
		outcome Outcome
		want    string
	}{
		{OutcomeSuccess, "success"},
		{OutcomeConnectionError, "connection_error"},
		{OutcomeGenericError, "generic_error"},
		{Outcome(42), "unknown"},
	}
	for _, c := range cases {
		if got := c.outcome.String(); got != c.want {
			t.Errorf("Outcome(%d).String() = %q, want %q", c.outcome, got, c.want)
		}
	}
}

func TestJobGuardIsExclusive(t *testing.T) {
	job := NewJob("chunk_000", "in.wav", "out.html")

	var acquired int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if job.TryAcquire() {
				atomic.AddInt32(&acquired, 1)
			}
		}()
	}
	wg.Wait()

	if acquired != 1 {
		t.Fatalf("expected exactly one TryAcquire winner, got %d", acquired)
	}

	job.Release()
	if !job.TryAcquire() {
		t.Fatal("TryAcquire should succeed after Release")
	}
}

func TestJobCompletionIsMonotonic(t *testing.T) {
	job := NewJob("chunk_001", "in.wav", "out.html")
	if !job.Incomplete() {
		t.Fatal("new job should be incomplete")
	}
	job.MarkCompleted()
	job.MarkCompleted() // idempotent
	if job.Incomplete() || !job.Completed() {
		t.Fatal("job should stay completed")
	}
}

func TestProxyRecordKey(t *testing.T) {
	p := ProxyRecord{IP: "10.0.0.7", Port: 8080}
	if got := p.Key(); got != "10.0.0.7:8080" {
		t.Fatalf("Key() = %q, want 10.0.0.7:8080", got)
	}
}
