package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	-- Deployment attempts
	CREATE TABLE IF NOT EXISTS attempts (
		id UUID PRIMARY KEY,
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
		block_number BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		finished_at TIMESTAMPTZ
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_attempts_contract ON attempts(contract);
	CREATE INDEX IF NOT EXISTS idx_attempts_created ON attempts(created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Debug("database migrations complete", "driver", "postgres")
	return nil
}

// CreateAttempt records a new attempt
func (s *PostgresStore) CreateAttempt(ctx context.Context, a *Attempt) error {
	if a.ID == "" {
		a.ID = generateID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO attempts (id, contract, descriptor_id, salt, deployer, derived_address, tx_hash, state, endpoint, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query, a.ID, a.Contract, a.DescriptorID, a.Salt, a.Deployer, a.DerivedAddress,
		a.TxHash, a.State, a.Endpoint, a.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrSaltReused, a.Salt)
	}
	return err
}

// MarkSubmitted stores the transaction hash of a sent attempt
func (s *PostgresStore) MarkSubmitted(ctx context.Context, id, txHash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE attempts SET state = 'submitted', tx_hash = $1 WHERE id = $2`, txHash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FinishAttempt stores an attempt's outcome
func (s *PostgresStore) FinishAttempt(ctx context.Context, id string, r AttemptResult) error {
	query := `
		UPDATE attempts
		SET state = $1, tx_hash = $2, remote_address = $3, reason = $4, block_number = $5, finished_at = $6
		WHERE id = $7
	`
	res, err := s.db.ExecContext(ctx, query, r.State, r.TxHash, r.RemoteAddress, r.Reason, r.BlockNumber, r.FinishedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const postgresAttemptColumns = `id::text, contract, descriptor_id, salt, deployer, derived_address,
	COALESCE(remote_address, ''), COALESCE(tx_hash, ''), state, COALESCE(reason, ''),
	COALESCE(endpoint, ''), COALESCE(block_number, 0), created_at, finished_at`

// GetAttempt retrieves an attempt by id
func (s *PostgresStore) GetAttempt(ctx context.Context, id string) (*Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postgresAttemptColumns+` FROM attempts WHERE id::text = $1`, id)
	a, err := scanPostgresAttempt(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return a, err
}

// ListAttempts lists attempts, newest first
func (s *PostgresStore) ListAttempts(ctx context.Context, filter AttemptFilter, pagination PaginationParams) (*PaginatedResult[Attempt], error) {
	limit, offset, err := pageBounds(pagination)
	if err != nil {
		return nil, err
	}

	var where []string
	var args []any
	if filter.Contract != "" {
		args = append(args, filter.Contract)
		where = append(where, fmt.Sprintf("contract = $%d", len(args)))
	}
	if filter.State != "" {
		args = append(args, filter.State)
		where = append(where, fmt.Sprintf("state = $%d", len(args)))
	}

	query := `SELECT ` + postgresAttemptColumns + ` FROM attempts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit+1, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		a, err := scanPostgresAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return page(attempts, limit, offset), rows.Err()
}

// SaltUsed reports whether any attempt used salt
func (s *PostgresStore) SaltUsed(ctx context.Context, salt string) (bool, error) {
	var used bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM attempts WHERE salt = $1)", salt).Scan(&used)
	return used, err
}

func scanPostgresAttempt(row rowScanner) (*Attempt, error) {
	var a Attempt
	var finishedAt sql.NullTime
	err := row.Scan(&a.ID, &a.Contract, &a.DescriptorID, &a.Salt, &a.Deployer, &a.DerivedAddress,
		&a.RemoteAddress, &a.TxHash, &a.State, &a.Reason, &a.Endpoint, &a.BlockNumber, &a.CreatedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		a.FinishedAt = &t
	}
	return &a, nil
}
