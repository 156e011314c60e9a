package paper

import (
	"sync"

	"barreplay/internal/execution"
)

// Journal stores applied fills in memory for quick inspection.
type Journal struct {
	mu    sync.Mutex
	fills []execution.Fill
}

// NewJournal creates an empty journal optionally pre-sizing storage.
func NewJournal(capacity int) *Journal {
	if capacity < 0 {
		capacity = 0
	}
	return &Journal{fills: make([]execution.Fill, 0, capacity)}
}

// Record appends a fill to the journal.
func (j *Journal) Record(fill execution.Fill) {
	j.mu.Lock()
	j.fills = append(j.fills, fill)
	j.mu.Unlock()
}

// Snapshot returns a copy of the recorded fills.
func (j *Journal) Snapshot() []execution.Fill {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]execution.Fill, len(j.fills))
	copy(out, j.fills)
	return out
}

