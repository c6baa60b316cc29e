package proxy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mediaflow/internal/domain"
)

func record(ip string, port int, age time.Duration) domain.ProxyRecord {
	return domain.ProxyRecord{IP: ip, Port: port, CheckedAt: time.Now().Add(-age)}
}

func writeStore(t *testing.T, records []domain.ProxyRecord) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "proxies.json")
	data, err := json.Marshal(records)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write store: %v", err)
	}
	return path
}

func TestLoadFiltersStaleAndDuplicates(t *testing.T) {
	path := writeStore(t, []domain.ProxyRecord{
		record("1.1.1.1", 80, time.Minute),
		record("2.2.2.2", 80, 2*time.Hour), // stale
		record("1.1.1.1", 80, time.Minute), // duplicate
		record("3.3.3.3", 80, time.Minute),
	})

	got, err := Load(path, 30*time.Minute)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 usable proxies, got %d", len(got))
	}
	if got[0].Key() != "1.1.1.1:80" || got[1].Key() != "3.3.3.3:80" {
		t.Fatalf("order not preserved: %v, %v", got[0].Key(), got[1].Key())
	}
}

func TestLoadMissingStoreIsEmpty(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "absent.json"), time.Hour)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty pool, got %d records", len(got))
	}
}

func TestLoadZeroMaxAgeDisablesFilter(t *testing.T) {
	path := writeStore(t, []domain.ProxyRecord{record("1.1.1.1", 80, 48*time.Hour)})
	got, err := Load(path, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected stale record kept with filter disabled, got %d", len(got))
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	pool := NewPool(filepath.Join(t.TempDir(), "p.json"), []domain.ProxyRecord{
		record("1.1.1.1", 80, 0),
		record("2.2.2.2", 80, 0),
	})

	if !pool.Remove("1.1.1.1:80") {
		t.Fatal("first Remove should report removal")
	}
	if pool.Remove("1.1.1.1:80") {
		t.Fatal("second Remove should be a no-op")
	}
	if pool.Remove("9.9.9.9:80") {
		t.Fatal("Remove of absent key should be a no-op")
	}
	if pool.Len() != 1 {
		t.Fatalf("Len = %d, want 1", pool.Len())
	}
}

func TestPersistReflectsRemoval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	pool := NewPool(path, []domain.ProxyRecord{
		record("1.1.1.1", 80, 0),
		record("2.2.2.2", 80, 0),
	})

	pool.Remove("1.1.1.1:80")
	if err := pool.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	reloaded, err := Load(path, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(reloaded) != 1 || reloaded[0].Key() != "2.2.2.2:80" {
		t.Fatalf("persisted pool = %+v, want only 2.2.2.2:80", reloaded)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the store file, found %d entries", len(entries))
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	pool := NewPool(filepath.Join(t.TempDir(), "p.json"), []domain.ProxyRecord{
		record("1.1.1.1", 80, 0),
	})
	snap := pool.Snapshot()
	snap[0].IP = "mutated"
	if pool.Snapshot()[0].IP != "1.1.1.1" {
		t.Fatal("mutating a snapshot must not affect the pool")
	}
}

func TestResetReplacesContents(t *testing.T) {
	pool := NewPool(filepath.Join(t.TempDir(), "p.json"), []domain.ProxyRecord{
		record("1.1.1.1", 80, 0),
	})
	pool.Reset([]domain.ProxyRecord{
		record("2.2.2.2", 80, 0),
		record("2.2.2.2", 80, 0),
		record("3.3.3.3", 80, 0),
	})
	if pool.Len() != 2 {
		t.Fatalf("Len after Reset = %d, want 2 (deduplicated)", pool.Len())
	}
	if pool.Snapshot()[0].Key() != "2.2.2.2:80" {
		t.Fatal("Reset lost ordering")
	}
}

func TestNewPoolDeduplicates(t *testing.T) {
	pool := NewPool(filepath.Join(t.TempDir(), "p.json"), []domain.ProxyRecord{
		record("1.1.1.1", 80, 0),
		record("1.1.1.1", 80, 0),
	})
	if pool.Len() != 1 {
		t.Fatalf("Len = %d, want 1", pool.Len())
	}
}
