package storage

import "sync"

// MemoryJournal implements governor.Journal in memory. It provides no
// durability and exists for tests and ephemeral deployments.
type MemoryJournal struct {
	mu    sync.Mutex
	total float64
	count int
}

// NewMemoryJournal creates an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

// RecordSpend appends one spend record.
func (j *MemoryJournal) RecordSpend(amount float64, action, requestID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.total += amount
	j.count++
	return nil
}

// TotalSpent returns the sum of all recorded spends.
func (j *MemoryJournal) TotalSpent() (float64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.total, nil
}

// Count returns the number of recorded spends.
func (j *MemoryJournal) Count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count
}

// Close is a no-op.
func (j *MemoryJournal) Close() error {
	return nil
}
