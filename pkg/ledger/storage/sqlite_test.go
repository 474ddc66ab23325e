package storage

import (
	"path/filepath"
	"testing"
	"time"

	"guardrail-hq/saturn/pkg/ledger"
)

func testIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := NewSQLiteIndex(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("NewSQLiteIndex failed: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func entry(index int, decision string, ts time.Time) *ledger.Entry {
	return &ledger.Entry{
		Index:       index,
		Timestamp:   ts.UTC().Format(time.RFC3339Nano),
		Decision:    decision,
		Reason:      "test",
		InputDigest: "abcd1234abcd1234",
		RiskLevel:   "low",
		CostCharged: 0.1,
		PrevHash:    ledger.GenesisHash,
		EntryHash:   "feedface",
	}
}

func TestStoreFind(t *testing.T) {
	idx := testIndex(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		decision := "allowed"
		if i%2 == 1 {
			decision = "blocked"
		}
		if err := idx.Store(entry(i, decision, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Store %d failed: %v", i, err)
		}
	}

	// Newest first, no filter.
	all, err := idx.Find(Query{})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("len = %d, want 5", len(all))
	}
	if all[0].Index != 4 {
		t.Errorf("First result index = %d, want newest (4)", all[0].Index)
	}

	// Decision filter.
	blocked, err := idx.Find(Query{Decision: "blocked"})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(blocked) != 2 {
		t.Errorf("blocked count = %d, want 2", len(blocked))
	}

	// Since filter.
	recent, err := idx.Find(Query{Since: base.Add(3 * time.Minute)})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("recent count = %d, want 2", len(recent))
	}

	// Limit.
	limited, err := idx.Find(Query{Limit: 1})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited count = %d, want 1", len(limited))
	}
}

func TestStore_UpsertByChainIndex(t *testing.T) {
	idx := testIndex(t)
	base := time.Now()

	if err := idx.Store(entry(0, "allowed", base)); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := idx.Store(entry(0, "blocked", base)); err != nil {
		t.Fatalf("Re-store failed: %v", err)
	}

	all, err := idx.Find(Query{})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("len = %d, want 1 (upsert)", len(all))
	}
	if all[0].Decision != "blocked" {
		t.Errorf("Decision = %s, want blocked", all[0].Decision)
	}
}

func TestStore_NilEntry(t *testing.T) {
	idx := testIndex(t)
	if err := idx.Store(nil); err == nil {
		t.Error("Expected error for nil entry")
	}
}
