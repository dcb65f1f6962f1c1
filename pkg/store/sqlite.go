package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/dan-solli/casegen/pkg/testcase"
)

// SQLiteStore implements CaseStore and RequirementTracker on SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time interface checks
var (
	_ CaseStore          = (*SQLiteStore)(nil)
	_ RequirementTracker = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens a store with the pure-Go modernc driver.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithDriver("sqlite", dbPath)
}

// NewSQLiteStoreWithDriver opens a store with any registered SQLite driver,
// e.g. "sqlite3" when the cgo driver is linked in.
// Creates tables and indexes if they don't exist.
func NewSQLiteStoreWithDriver(driver, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per connection, and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		backend TEXT NOT NULL,
		status TEXT NOT NULL,
		requirements INTEGER DEFAULT 0,
		succeeded INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		total_tokens INTEGER DEFAULT 0,
		started_at TEXT NOT NULL,
		finished_at TEXT
	);

	CREATE TABLE IF NOT EXISTS test_cases (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		case_id TEXT NOT NULL,
		requirement_id TEXT NOT NULL,
		parent_id TEXT,
		category TEXT,
		title TEXT,
		description TEXT,
		precondition TEXT,
		steps TEXT,
		expected_result TEXT,
		priority TEXT NOT NULL,
		iteration TEXT,
		assignee TEXT,
		FOREIGN KEY (run_id) REFERENCES runs(id),
		UNIQUE (run_id, case_id)
	);

	CREATE INDEX IF NOT EXISTS idx_test_cases_run ON test_cases(run_id);
	CREATE INDEX IF NOT EXISTS idx_test_cases_requirement ON test_cases(requirement_id);

	CREATE TABLE IF NOT EXISTS processed_requirements (
		hash TEXT PRIMARY KEY,
		requirement_id TEXT,
		processed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		case_count INTEGER DEFAULT 0
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// BeginRun creates a run in the running state.
func (s *SQLiteStore) BeginRun(ctx context.Context, backend string, requirements int) (*Run, error) {
	run := &Run{
		ID:           uuid.New().String(),
		Backend:      backend,
		Status:       RunStatusRunning,
		Requirements: requirements,
		StartedAt:    time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, backend, status, requirements, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Backend, run.Status, run.Requirements, run.StartedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	return run, nil
}

// FinishRun stores the run's counters and status. A zero FinishedAt is set
// to the current time.
func (s *SQLiteStore) FinishRun(ctx context.Context, run *Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, succeeded = ?, skipped = ?, total_tokens = ?, finished_at = ?
		 WHERE id = ?`,
		run.Status, run.Succeeded, run.Skipped, run.TotalTokens,
		run.FinishedAt.Format(time.RFC3339Nano), run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}

// GetRun returns the run with the given ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var (
		run        Run
		startedAt  string
		finishedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, backend, status, requirements, succeeded, skipped, total_tokens, started_at, finished_at
		 FROM runs WHERE id = ?`, id).Scan(
		&run.ID, &run.Backend, &run.Status, &run.Requirements,
		&run.Succeeded, &run.Skipped, &run.TotalTokens, &startedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	run.StartedAt = parseTime(startedAt)
	if finishedAt.Valid {
		run.FinishedAt = parseTime(finishedAt.String)
	}
	return &run, nil
}

// SaveTestCases inserts cases in one transaction.
func (s *SQLiteStore) SaveTestCases(ctx context.Context, runID string, cases []testcase.TestCase) error {
	if len(cases) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO test_cases (run_id, case_id, requirement_id, parent_id, category, title,
			description, precondition, steps, expected_result, priority, iteration, assignee)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, tc := range cases {
		steps, err := json.Marshal(tc.Steps)
		if err != nil {
			return fmt.Errorf("failed to marshal steps for %s: %w", tc.CaseID, err)
		}
		_, err = stmt.ExecContext(ctx,
			runID, tc.CaseID, tc.RequirementID, tc.ParentID, tc.Category, tc.Title,
			tc.Description, tc.Precondition, string(steps), tc.ExpectedResult,
			string(tc.Priority), tc.Iteration, tc.Assignee)
		if err != nil {
			return fmt.Errorf("failed to insert test case %s: %w", tc.CaseID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit test cases: %w", err)
	}
	return nil
}

// ListTestCases returns a run's cases in insertion order.
func (s *SQLiteStore) ListTestCases(ctx context.Context, runID string) ([]testcase.TestCase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT case_id, requirement_id, parent_id, category, title, description, precondition,
			steps, expected_result, priority, iteration, assignee
		 FROM test_cases WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query test cases: %w", err)
	}
	defer rows.Close()

	var cases []testcase.TestCase
	for rows.Next() {
		var (
			tc       testcase.TestCase
			steps    string
			priority string
		)
		if err := rows.Scan(&tc.CaseID, &tc.RequirementID, &tc.ParentID, &tc.Category, &tc.Title,
			&tc.Description, &tc.Precondition, &steps, &tc.ExpectedResult, &priority,
			&tc.Iteration, &tc.Assignee); err != nil {
			return nil, fmt.Errorf("failed to scan test case: %w", err)
		}
		if err := json.Unmarshal([]byte(steps), &tc.Steps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal steps for %s: %w", tc.CaseID, err)
		}
		tc.Priority = testcase.Priority(priority)
		cases = append(cases, tc)
	}
	return cases, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
