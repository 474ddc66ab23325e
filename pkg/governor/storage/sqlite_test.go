package storage

import (
	"math"
	"path/filepath"
	"testing"
)

func TestSQLiteJournal_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spend.db")

	j, err := NewSQLiteJournal(path)
	if err != nil {
		t.Fatalf("NewSQLiteJournal failed: %v", err)
	}

	if err := j.RecordSpend(0.1, "reserve", "req-1"); err != nil {
		t.Fatalf("RecordSpend failed: %v", err)
	}
	if err := j.RecordSpend(0.25, "reserve", "req-2"); err != nil {
		t.Fatalf("RecordSpend failed: %v", err)
	}

	total, err := j.TotalSpent()
	if err != nil {
		t.Fatalf("TotalSpent failed: %v", err)
	}
	if total != 0.35 {
		t.Errorf("TotalSpent = %v, want 0.35", total)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Spend survives a reopen; that is the journal's whole purpose.
	j2, err := NewSQLiteJournal(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer j2.Close()

	total, err = j2.TotalSpent()
	if err != nil {
		t.Fatalf("TotalSpent after reopen failed: %v", err)
	}
	if total != 0.35 {
		t.Errorf("TotalSpent after reopen = %v, want 0.35", total)
	}
}

func TestSQLiteJournal_EmptyPath(t *testing.T) {
	if _, err := NewSQLiteJournal(""); err == nil {
		t.Error("Expected error for empty path")
	}
}

func TestSQLiteJournal_CloseIdempotent(t *testing.T) {
	j, err := NewSQLiteJournal(filepath.Join(t.TempDir(), "spend.db"))
	if err != nil {
		t.Fatalf("NewSQLiteJournal failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("First close failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}

func TestMemoryJournal(t *testing.T) {
	j := NewMemoryJournal()
	j.RecordSpend(0.1, "reserve", "")
	j.RecordSpend(0.2, "spend", "")

	total, err := j.TotalSpent()
	if err != nil {
		t.Fatalf("TotalSpent failed: %v", err)
	}
	if math.Abs(total-0.3) > 1e-9 {
		t.Errorf("TotalSpent = %v, want ~0.3", total)
	}
	if j.Count() != 2 {
		t.Errorf("Count = %d, want 2", j.Count())
	}
}
