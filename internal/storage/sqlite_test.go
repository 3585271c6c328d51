package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/deploycheck/internal/config"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "ledger.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func testAttempt(salt string, createdAt time.Time) *Attempt {
	return &Attempt{
		Contract:       "Token",
		DescriptorID:   "sha256:abc",
		Salt:           salt,
		Deployer:       "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		DerivedAddress: "0x1111111111111111111111111111111111111111",
		State:          "submitted",
		Endpoint:       "http://127.0.0.1:8545",
		CreatedAt:      createdAt,
	}
}

func TestSQLiteStore_CreateAndGetAttempt(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	a := testAttempt("0x01", time.Now().UTC())
	require.NoError(t, store.CreateAttempt(ctx, a))
	require.NotEmpty(t, a.ID)

	got, err := store.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Contract, got.Contract)
	assert.Equal(t, a.Salt, got.Salt)
	assert.Equal(t, a.DerivedAddress, got.DerivedAddress)
	assert.Equal(t, "submitted", got.State)
	assert.Empty(t, got.RemoteAddress)
	assert.Nil(t, got.FinishedAt)
	assert.WithinDuration(t, a.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestSQLiteStore_SaltReused(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	used, err := store.SaltUsed(ctx, "0x02")
	require.NoError(t, err)
	assert.False(t, used)

	require.NoError(t, store.CreateAttempt(ctx, testAttempt("0x02", time.Now())))

	used, err = store.SaltUsed(ctx, "0x02")
	require.NoError(t, err)
	assert.True(t, used)

	err = store.CreateAttempt(ctx, testAttempt("0x02", time.Now()))
	assert.ErrorIs(t, err, ErrSaltReused)
}

func TestSQLiteStore_FinishAttempt(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	a := testAttempt("0x03", time.Now())
	require.NoError(t, store.CreateAttempt(ctx, a))

	finished := time.Now().UTC()
	require.NoError(t, store.FinishAttempt(ctx, a.ID, AttemptResult{
		State:         "mined",
		TxHash:        "0xabc",
		RemoteAddress: a.DerivedAddress,
		BlockNumber:   7,
		FinishedAt:    finished,
	}))

	got, err := store.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "mined", got.State)
	assert.Equal(t, "0xabc", got.TxHash)
	assert.Equal(t, a.DerivedAddress, got.RemoteAddress)
	assert.EqualValues(t, 7, got.BlockNumber)
	require.NotNil(t, got.FinishedAt)
	assert.WithinDuration(t, finished, *got.FinishedAt, time.Millisecond)

	err = store.FinishAttempt(ctx, "missing", AttemptResult{State: "failed", FinishedAt: finished})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_MarkSubmitted(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	a := testAttempt("0x04", time.Now())
	a.State = "built"
	require.NoError(t, store.CreateAttempt(ctx, a))

	require.NoError(t, store.MarkSubmitted(ctx, a.ID, "0xfeed"))

	got, err := store.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "submitted", got.State)
	assert.Equal(t, "0xfeed", got.TxHash)
	assert.Nil(t, got.FinishedAt)

	assert.ErrorIs(t, store.MarkSubmitted(ctx, "missing", "0xfeed"), ErrNotFound)
}

func TestSQLiteStore_GetAttemptNotFound(t *testing.T) {
	store := newTestSQLiteStore(t)

	_, err := store.GetAttempt(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListAttempts(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		a := testAttempt(fmt.Sprintf("0x1%d", i), base.Add(time.Duration(i)*time.Minute))
		if i == 4 {
			a.Contract = "Vault"
		}
		require.NoError(t, store.CreateAttempt(ctx, a))
	}

	first, err := store.ListAttempts(ctx, AttemptFilter{}, PaginationParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Data, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "0x14", first.Data[0].Salt, "newest first")

	second, err := store.ListAttempts(ctx, AttemptFilter{}, PaginationParams{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Data, 2)
	assert.Equal(t, "0x12", second.Data[0].Salt)

	last, err := store.ListAttempts(ctx, AttemptFilter{}, PaginationParams{Limit: 2, Cursor: second.NextCursor})
	require.NoError(t, err)
	assert.Len(t, last.Data, 1)
	assert.False(t, last.HasMore)

	tokens, err := store.ListAttempts(ctx, AttemptFilter{Contract: "Token"}, PaginationParams{})
	require.NoError(t, err)
	assert.Len(t, tokens.Data, 4)

	none, err := store.ListAttempts(ctx, AttemptFilter{State: "mined"}, PaginationParams{})
	require.NoError(t, err)
	assert.Empty(t, none.Data)

	_, err = store.ListAttempts(ctx, AttemptFilter{}, PaginationParams{Cursor: "nope"})
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := New(config.LedgerConfig{Type: config.LedgerNone}, logger)
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = New(config.LedgerConfig{Type: "redis"}, logger)
	assert.Error(t, err)

	cfg := config.LedgerConfig{Type: config.LedgerSQLite}
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "ledger.db")
	store, err := New(cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())
}
