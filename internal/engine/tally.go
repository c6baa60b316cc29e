package engine

// Tally counts consecutive transient failures per proxy identity. It is
// owned by the Launcher, lives for one run, and is never persisted.
type Tally struct {
	counts map[string]int
}

func NewTally() *Tally {
	return &Tally{counts: make(map[string]int)}
}

// Inc bumps the counter for key and returns the new count.
func (t *Tally) Inc(key string) int {
	t.counts[key]++
	return t.counts[key]
}

// Reset zeroes the counter for key. Any success wipes the proxy's record.
func (t *Tally) Reset(key string) {
	delete(t.counts, key)
}

// Clear drops the entry for key; used when the proxy is evicted.
func (t *Tally) Clear(key string) {
	delete(t.counts, key)
}

// Count returns the current counter for key.
func (t *Tally) Count(key string) int {
	return t.counts[key]
}
