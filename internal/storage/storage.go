// Package storage persists deployment attempts in a ledger so that salts are
// never reused across runs and past outcomes can be inspected.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pendergraft/deploycheck/internal/config"
)

// AttemptStore handles deployment attempt operations
type AttemptStore interface {
	// CreateAttempt inserts a new attempt. A salt that was used before yields ErrSaltReused.
	CreateAttempt(ctx context.Context, a *Attempt) error
	// MarkSubmitted records that the attempt's transaction reached the service.
	MarkSubmitted(ctx context.Context, id, txHash string) error
	// FinishAttempt stores the outcome of an attempt.
	FinishAttempt(ctx context.Context, id string, result AttemptResult) error
	GetAttempt(ctx context.Context, id string) (*Attempt, error)
	ListAttempts(ctx context.Context, filter AttemptFilter, pagination PaginationParams) (*PaginatedResult[Attempt], error)
	SaltUsed(ctx context.Context, salt string) (bool, error)
}

// Store combines the ledger interface with lifecycle methods.
type Store interface {
	AttemptStore

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// Attempt is one deployment attempt. Hex values are stored in their canonical
// 0x-prefixed form.
type Attempt struct {
	ID             string
	Contract       string
	DescriptorID   string
	Salt           string
	Deployer       string
	DerivedAddress string
	RemoteAddress  string
	TxHash         string
	State          string
	Reason         string
	Endpoint       string
	BlockNumber    int64
	CreatedAt      time.Time
	FinishedAt     *time.Time
}

// AttemptResult is the outcome written by FinishAttempt
type AttemptResult struct {
	State         string
	TxHash        string
	RemoteAddress string
	Reason        string
	BlockNumber   int64
	FinishedAt    time.Time
}

// AttemptFilter contains filter options for listing attempts
type AttemptFilter struct {
	Contract string
	State    string
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit  int
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
}

// New creates a new store based on configuration
func New(cfg config.LedgerConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Type {
	case config.LedgerSQLite:
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case config.LedgerPostgres:
		return NewPostgresStore(cfg.Postgres.URL, logger)
	case config.LedgerNone, "":
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unknown ledger type: %s", cfg.Type)
	}
}
