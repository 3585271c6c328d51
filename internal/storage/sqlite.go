package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- Deployment attempts
	CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		contract TEXT NOT NULL,
		descriptor_id TEXT NOT NULL,
		salt TEXT NOT NULL UNIQUE,
		deployer TEXT NOT NULL,
		derived_address TEXT NOT NULL,
		remote_address TEXT,
		tx_hash TEXT,
		state TEXT NOT NULL,
		reason TEXT,
		endpoint TEXT,
		block_number INTEGER,
		created_at TEXT NOT NULL,
		finished_at TEXT
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_attempts_contract ON attempts(contract);
	CREATE INDEX IF NOT EXISTS idx_attempts_created ON attempts(created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Debug("database migrations complete", "driver", "sqlite")
	return nil
}

// CreateAttempt records a new attempt
func (s *SQLiteStore) CreateAttempt(ctx context.Context, a *Attempt) error {
	if a.ID == "" {
		a.ID = generateID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO attempts (id, contract, descriptor_id, salt, deployer, derived_address, tx_hash, state, endpoint, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, a.ID, a.Contract, a.DescriptorID, a.Salt, a.Deployer, a.DerivedAddress,
		a.TxHash, a.State, a.Endpoint, formatTime(a.CreatedAt))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: attempts.salt") {
		return fmt.Errorf("%w: %s", ErrSaltReused, a.Salt)
	}
	return err
}

// MarkSubmitted stores the transaction hash of a sent attempt
func (s *SQLiteStore) MarkSubmitted(ctx context.Context, id, txHash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE attempts SET state = 'submitted', tx_hash = ? WHERE id = ?`, txHash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FinishAttempt stores an attempt's outcome
func (s *SQLiteStore) FinishAttempt(ctx context.Context, id string, r AttemptResult) error {
	query := `
		UPDATE attempts
		SET state = ?, tx_hash = ?, remote_address = ?, reason = ?, block_number = ?, finished_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query, r.State, r.TxHash, r.RemoteAddress, r.Reason, r.BlockNumber, formatTime(r.FinishedAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const sqliteAttemptColumns = `id, contract, descriptor_id, salt, deployer, derived_address,
	COALESCE(remote_address, ''), COALESCE(tx_hash, ''), state, COALESCE(reason, ''),
	COALESCE(endpoint, ''), COALESCE(block_number, 0), created_at, finished_at`

// GetAttempt retrieves an attempt by id
func (s *SQLiteStore) GetAttempt(ctx context.Context, id string) (*Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteAttemptColumns+` FROM attempts WHERE id = ?`, id)
	a, err := scanSQLiteAttempt(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return a, err
}

// ListAttempts lists attempts, newest first
func (s *SQLiteStore) ListAttempts(ctx context.Context, filter AttemptFilter, pagination PaginationParams) (*PaginatedResult[Attempt], error) {
	limit, offset, err := pageBounds(pagination)
	if err != nil {
		return nil, err
	}

	var where []string
	var args []any
	if filter.Contract != "" {
		where = append(where, "contract = ?")
		args = append(args, filter.Contract)
	}
	if filter.State != "" {
		where = append(where, "state = ?")
		args = append(args, filter.State)
	}

	query := `SELECT ` + sqliteAttemptColumns + ` FROM attempts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, limit+1, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		a, err := scanSQLiteAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return page(attempts, limit, offset), rows.Err()
}

// SaltUsed reports whether any attempt used salt
func (s *SQLiteStore) SaltUsed(ctx context.Context, salt string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attempts WHERE salt = ?", salt).Scan(&n)
	return n > 0, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteAttempt(row rowScanner) (*Attempt, error) {
	var a Attempt
	var createdAt string
	var finishedAt sql.NullString
	err := row.Scan(&a.ID, &a.Contract, &a.DescriptorID, &a.Salt, &a.Deployer, &a.DerivedAddress,
		&a.RemoteAddress, &a.TxHash, &a.State, &a.Reason, &a.Endpoint, &a.BlockNumber, &createdAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if finishedAt.Valid && finishedAt.String != "" {
		t, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing finished_at: %w", err)
		}
		a.FinishedAt = &t
	}
	return &a, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
