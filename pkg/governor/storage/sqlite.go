package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteJournal implements governor.Journal backed by SQLite. Suitable for
// single-instance deployments where the budget must survive restarts.
type SQLiteJournal struct {
	db        *sql.DB
	mu        sync.Mutex
	closeOnce sync.Once

	insertStmt *sql.Stmt
	sumStmt    *sql.Stmt
}

// NewSQLiteJournal opens (or creates) a spend journal at the given path.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	j := &SQLiteJournal{db: db}

	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := j.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return j, nil
}

func (j *SQLiteJournal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS budget_spend (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		amount REAL NOT NULL,
		action TEXT NOT NULL,
		request_id TEXT,
		spent_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_spent_at ON budget_spend(spent_at);
	`
	_, err := j.db.Exec(schema)
	return err
}

func (j *SQLiteJournal) prepareStatements() error {
	var err error

	j.insertStmt, err = j.db.Prepare(`
		INSERT INTO budget_spend (amount, action, request_id, spent_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}

	j.sumStmt, err = j.db.Prepare(`
		SELECT COALESCE(SUM(amount), 0) FROM budget_spend
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare sum statement: %w", err)
	}

	return nil
}

// RecordSpend appends one spend record.
func (j *SQLiteJournal) RecordSpend(amount float64, action, requestID string) error {
	if amount < 0 {
		return fmt.Errorf("amount cannot be negative")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.insertStmt.Exec(amount, action, requestID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record spend: %w", err)
	}
	return nil
}

// TotalSpent returns the sum of all recorded spends.
func (j *SQLiteJournal) TotalSpent() (float64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var total float64
	if err := j.sumStmt.QueryRow().Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum spend: %w", err)
	}
	return total, nil
}

// Close releases the journal. Close is idempotent.
func (j *SQLiteJournal) Close() error {
	var closeErr error

	j.closeOnce.Do(func() {
		if j.insertStmt != nil {
			j.insertStmt.Close()
		}
		if j.sumStmt != nil {
			j.sumStmt.Close()
		}
		if j.db != nil {
			_, _ = j.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = j.db.Close()
		}
	})

	return closeErr
}
