// Package storage provides queryable index backends for the audit ledger.
//
// The index is a mirror, not the record: the JSONL hash chain remains the
// authoritative log, and the index can always be rebuilt from it.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"guardrail-hq/saturn/pkg/ledger"
)

// SQLiteIndex mirrors ledger entries into SQLite for querying.
type SQLiteIndex struct {
	db        *sql.DB
	mu        sync.Mutex
	closeOnce sync.Once

	insertStmt *sql.Stmt
}

// Query filters an index lookup. Zero values mean "no constraint".
type Query struct {
	// Decision filters by gate action ("blocked", "allowed", ...).
	Decision string

	// Since restricts results to entries at or after this time.
	Since time.Time

	// Limit caps the number of returned rows (default 100).
	Limit int
}

// NewSQLiteIndex opens (or creates) an index database at the given path.
func NewSQLiteIndex(dbPath string) (*SQLiteIndex, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	idx := &SQLiteIndex{db: db}

	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := idx.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return idx, nil
}

func (s *SQLiteIndex) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_entries (
		chain_index INTEGER PRIMARY KEY,
		timestamp TEXT NOT NULL,
		decision TEXT NOT NULL,
		reason TEXT NOT NULL,
		input_digest TEXT,
		risk_level TEXT,
		cost_charged REAL NOT NULL,
		extra TEXT,
		prev_hash TEXT NOT NULL,
		entry_hash TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_decision ON audit_entries(decision);
	CREATE INDEX IF NOT EXISTS idx_timestamp ON audit_entries(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteIndex) prepareStatements() error {
	var err error

	s.insertStmt, err = s.db.Prepare(`
		INSERT OR REPLACE INTO audit_entries
			(chain_index, timestamp, decision, reason, input_digest, risk_level, cost_charged, extra, prev_hash, entry_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	return nil
}

// Store mirrors one entry into the index.
func (s *SQLiteIndex) Store(e *ledger.Entry) error {
	if e == nil {
		return fmt.Errorf("entry cannot be nil")
	}

	var extraJSON []byte
	if e.Extra != nil {
		var err error
		extraJSON, err = json.Marshal(e.Extra)
		if err != nil {
			return fmt.Errorf("failed to marshal extra: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.insertStmt.Exec(
		e.Index,
		e.Timestamp,
		e.Decision,
		e.Reason,
		e.InputDigest,
		e.RiskLevel,
		e.CostCharged,
		string(extraJSON),
		e.PrevHash,
		e.EntryHash,
	)
	if err != nil {
		return fmt.Errorf("failed to store entry: %w", err)
	}
	return nil
}

// Find returns indexed entries matching the query, newest first.
func (s *SQLiteIndex) Find(q Query) ([]*ledger.Entry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT chain_index, timestamp, decision, reason, input_digest, risk_level, cost_charged, extra, prev_hash, entry_hash
		FROM audit_entries WHERE 1=1`
	var args []any

	if q.Decision != "" {
		query += " AND decision = ?"
		args = append(args, q.Decision)
	}
	if !q.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, q.Since.UTC().Format(time.RFC3339Nano))
	}
	query += " ORDER BY chain_index DESC LIMIT ?"
	args = append(args, limit)

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []*ledger.Entry
	for rows.Next() {
		var (
			e         ledger.Entry
			extraJSON string
		)
		if err := rows.Scan(
			&e.Index, &e.Timestamp, &e.Decision, &e.Reason, &e.InputDigest,
			&e.RiskLevel, &e.CostCharged, &extraJSON, &e.PrevHash, &e.EntryHash,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if extraJSON != "" {
			if err := json.Unmarshal([]byte(extraJSON), &e.Extra); err != nil {
				return nil, fmt.Errorf("failed to unmarshal extra: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return entries, nil
}

// Close releases the index. Close is idempotent.
func (s *SQLiteIndex) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		if s.insertStmt != nil {
			s.insertStmt.Close()
		}
		if s.db != nil {
			closeErr = s.db.Close()
		}
	})

	return closeErr
}
