package proxy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mediaflow/internal/domain"
)

// Pool holds the live, ordered, duplicate-free proxy collection shared by
// all dispatch rounds of a run. Rounds read snapshots concurrently; only
// the launcher mutates it, one outcome at a time.
type Pool struct {
	mu      sync.Mutex
	records []domain.ProxyRecord
	path    string
}

// NewPool builds a pool backed by the store file at path. Duplicate
// identities in records are dropped, keeping the first occurrence.
func NewPool(path string, records []domain.ProxyRecord) *Pool {
	return &Pool{path: path, records: dedupe(records)}
}

// Load reads the proxy store and returns the usable records: entries older
// than maxAge are filtered out (maxAge <= 0 disables the filter) and
// duplicate identities keep only their first occurrence, preserving order.
// A missing store file is an empty pool, not an error.
func Load(path string, maxAge time.Duration) ([]domain.ProxyRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read proxy store %s: %w", path, err)
	}

	var records []domain.ProxyRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse proxy store %s: %w", path, err)
	}

	cutoff := time.Now().Add(-maxAge)
	fresh := records[:0]
	for _, r := range records {
		if maxAge > 0 && r.CheckedAt.Before(cutoff) {
			continue
		}
		fresh = append(fresh, r)
	}
	records = dedupe(fresh)
	log.Debug().Int("proxies", len(records)).Str("store", path).Msg("proxy store loaded")
	return records, nil
}

// Snapshot returns a copy of the current records for one round. The copy
// is the caller's; the pool is never mutated through it.
func (p *Pool) Snapshot() []domain.ProxyRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.ProxyRecord, len(p.records))
	copy(out, p.records)
	return out
}

// Reset replaces the pool contents with a freshly loaded collection.
// Used between launcher runs when the external refresher may have
// rewritten the store.
func (p *Pool) Reset(records []domain.ProxyRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = dedupe(records)
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// Remove evicts the proxy with the given identity. It is idempotent and
// reports whether anything was removed.
func (p *Pool) Remove(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, r := range p.records {
		if r.Key() == key {
			p.records = append(p.records[:i], p.records[i+1:]...)
			return true
		}
	}
	return false
}

// Persist overwrites the backing store with the full current collection.
// The write goes through a temp file and rename so a crash never leaves a
// partial store behind.
func (p *Pool) Persist() error {
	p.mu.Lock()
	records := make([]domain.ProxyRecord, len(p.records))
	copy(records, p.records)
	path := p.path
	p.mu.Unlock()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode proxy store: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".proxies-*.json")
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp store: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace proxy store %s: %w", path, err)
	}
	return nil
}

func dedupe(records []domain.ProxyRecord) []domain.ProxyRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]domain.ProxyRecord, 0, len(records))
	for _, r := range records {
		key := r.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
