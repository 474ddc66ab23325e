package ledger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// maxLineBytes bounds a single ledger line during reads.
const maxLineBytes = 4 * 1024 * 1024

// Index is an optional queryable mirror of the chain. The JSONL file stays
// the authoritative record; index failures never fail an append.
// Implementations live in the storage subpackage.
type Index interface {
	Store(e *Entry) error
	Close() error
}

// Ledger is the append-only, hash-chained decision log.
type Ledger struct {
	mu sync.Mutex

	path     string
	file     *os.File
	lastHash string
	count    int

	index  Index
	logger *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithIndex attaches a queryable index mirror. Writes to the index are
// best-effort and happen outside the append critical section.
func WithIndex(idx Index) Option {
	return func(l *Ledger) { l.index = idx }
}

// Open opens (or creates) the ledger at path and recovers the chain tip by
// scanning existing entries. A trailing partial line is tolerated here; it
// will still surface as a break during Verify.
func Open(path string, opts ...Option) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	l := &Ledger{
		path:     path,
		lastHash: GenesisHash,
		logger:   slog.Default().With("component", "ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := l.recoverTip(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	l.file = f

	// A file that ends mid-line (an interrupted write) must not merge with
	// the next append. The partial line itself remains a verify break.
	if err := l.terminatePartialLine(); err != nil {
		f.Close()
		return nil, err
	}

	l.logger.Info("ledger opened",
		"path", path,
		"entries", l.count,
	)
	return l, nil
}

// Append commits one decision to the chain and returns the stored entry.
// Appends are serialized; the critical section covers reading the chain tip,
// hashing, and the single line write.
func (l *Ledger) Append(rec Record) (*Entry, error) {
	extra := rec.Extra
	if extra == nil {
		extra = map[string]any{}
	}

	l.mu.Lock()
	m := map[string]any{
		"timestamp":    time.Now().UTC().Format(time.RFC3339Nano),
		"decision":     rec.Decision,
		"reason":       rec.Reason,
		"input_digest": rec.InputDigest,
		"risk_level":   rec.RiskLevel,
		"cost_charged": rec.CostCharged,
		"extra":        extra,
		"prev_hash":    l.lastHash,
	}

	hash, err := hashEntry(m)
	if err != nil {
		l.mu.Unlock()
		return nil, NewAppendError(l.path, err)
	}
	m["entry_hash"] = hash

	line, err := json.Marshal(m)
	if err != nil {
		l.mu.Unlock()
		return nil, NewAppendError(l.path, err)
	}
	line = append(line, '\n')

	if _, err := l.file.Write(line); err != nil {
		l.mu.Unlock()
		return nil, NewAppendError(l.path, err)
	}

	index := l.count
	l.lastHash = hash
	l.count++
	l.mu.Unlock()

	entry := entryFromMap(index, m)

	if l.index != nil {
		if err := l.index.Store(entry); err != nil {
			l.logger.Warn("failed to mirror entry to index",
				"index", index,
				"error", err,
			)
		}
	}

	return entry, nil
}

// VerifyResult is the outcome of a chain verification.
type VerifyResult struct {
	// OK is true when every entry's hash and linkage recompute correctly.
	OK bool

	// BreakIndex is the first entry index at which recomputation disagrees,
	// or -1 when the chain is intact.
	BreakIndex int

	// Entries is the number of lines examined.
	Entries int

	// Empty is true when there is no chain yet (missing or empty file).
	// An empty ledger is not a verification failure.
	Empty bool

	// Detail describes what disagreed at BreakIndex.
	Detail string
}

// Verify replays the chain from genesis, recomputing every hash and
// checking prev-hash linkage. It reads the file independently of the append
// path, so it can run concurrently with appends (entries appended after the
// read began are simply not examined).
func (l *Ledger) Verify() (*VerifyResult, error) {
	return VerifyFile(l.path)
}

// VerifyFile verifies a chain file without opening it for appends. A
// missing file is an empty, intact chain.
func VerifyFile(path string) (*VerifyResult, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return &VerifyResult{OK: true, BreakIndex: -1, Empty: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger for verify: %w", err)
	}
	defer f.Close()

	res := &VerifyResult{OK: true, BreakIndex: -1}
	prevHash := GenesisHash

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	i := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		res.Entries = i + 1

		var m map[string]any
		if err := json.Unmarshal(line, &m); err != nil {
			return brokenAt(res, i, "unparsable entry"), nil
		}

		storedHash, _ := m["entry_hash"].(string)
		storedPrev, _ := m["prev_hash"].(string)

		if storedPrev != prevHash {
			return brokenAt(res, i, "prev_hash linkage mismatch"), nil
		}

		computed, err := hashEntry(m)
		if err != nil {
			return brokenAt(res, i, "canonical encoding failed"), nil
		}
		if computed != storedHash {
			return brokenAt(res, i, "entry_hash mismatch"), nil
		}

		prevHash = storedHash
		i++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	res.Empty = i == 0
	return res, nil
}

func brokenAt(res *VerifyResult, index int, detail string) *VerifyResult {
	res.OK = false
	res.BreakIndex = index
	res.Detail = detail
	return res
}

// Entries returns up to limit of the most recent entries (all when limit
// <= 0). Unparsable lines are skipped during reads; Verify is the integrity
// authority.
func (l *Ledger) Entries(limit int) ([]*Entry, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	var entries []*Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	i := 0
	for scanner.Scan() {
		var m map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			i++
			continue
		}
		entries = append(entries, entryFromMap(i, m))
		i++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// Count returns the number of entries appended or recovered so far.
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// LastHash returns the current chain tip hash.
func (l *Ledger) LastHash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastHash
}

// Path returns the ledger file path.
func (l *Ledger) Path() string {
	return l.path
}

// Close flushes and closes the ledger file and any attached index.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	if l.file != nil {
		if err := l.file.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := l.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		l.file = nil
	}
	if l.index != nil {
		if err := l.index.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// recoverTip scans the existing file for the last parsable entry's hash.
func (l *Ledger) recoverTip() error {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open ledger for recovery: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	count := 0
	last := GenesisHash
	for scanner.Scan() {
		var m map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			// Tolerated on read; Verify reports it as a break.
			count++
			continue
		}
		if h, ok := m["entry_hash"].(string); ok {
			last = h
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("recover ledger tip: %w", err)
	}

	l.lastHash = last
	l.count = count
	return nil
}

// terminatePartialLine appends a newline when the file ends mid-line.
func (l *Ledger) terminatePartialLine() error {
	info, err := l.file.Stat()
	if err != nil {
		return fmt.Errorf("stat ledger: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}

	r, err := os.Open(l.path)
	if err != nil {
		return fmt.Errorf("open ledger tail: %w", err)
	}
	defer r.Close()

	buf := make([]byte, 1)
	if _, err := r.ReadAt(buf, info.Size()-1); err != nil && err != io.EOF {
		return fmt.Errorf("read ledger tail: %w", err)
	}
	if buf[0] != '\n' {
		if _, err := l.file.Write([]byte("\n")); err != nil {
			return fmt.Errorf("terminate partial line: %w", err)
		}
		l.logger.Warn("ledger ended mid-line, terminated partial entry",
			"path", l.path,
		)
	}
	return nil
}
