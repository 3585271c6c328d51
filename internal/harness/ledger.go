package harness

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/deploycheck/internal/deployments/domain"
	"github.com/pendergraft/deploycheck/internal/derive"
	"github.com/pendergraft/deploycheck/internal/storage"
)

// ledger writes attempts to an AttemptStore. It implements domain.Recorder
// and maps each in-flight plan to its attempt id.
type ledger struct {
	store    storage.AttemptStore
	endpoint string
	logger   *slog.Logger

	mu  sync.Mutex
	ids map[*derive.Plan]string
}

var _ domain.Recorder = (*ledger)(nil)

func newLedger(store storage.AttemptStore, endpoint string, logger *slog.Logger) *ledger {
	return &ledger{
		store:    store,
		endpoint: endpoint,
		logger:   logger,
		ids:      make(map[*derive.Plan]string),
	}
}

// open records a built deployment and returns the attempt id.
func (l *ledger) open(ctx context.Context, plan *derive.Plan) (string, error) {
	a := &storage.Attempt{
		Contract:       plan.Contract,
		DescriptorID:   plan.DescriptorID.Hex(),
		Salt:           plan.Salt.String(),
		Deployer:       plan.Deployer.Hex(),
		DerivedAddress: plan.Address.Hex(),
		State:          string(domain.StateBuilt),
		Endpoint:       l.endpoint,
	}
	if err := l.store.CreateAttempt(ctx, a); err != nil {
		return "", err
	}

	l.mu.Lock()
	l.ids[plan] = a.ID
	l.mu.Unlock()
	return a.ID, nil
}

// abort closes an attempt whose transaction never reached the service.
func (l *ledger) abort(ctx context.Context, plan *derive.Plan, cause error) {
	id, ok := l.take(plan)
	if !ok {
		return
	}
	err := l.store.FinishAttempt(ctx, id, storage.AttemptResult{
		State:      string(domain.StateBuilt),
		Reason:     cause.Error(),
		FinishedAt: time.Now().UTC(),
	})
	if err != nil {
		l.logger.Error("recording aborted attempt", "attempt", id, "error", err)
	}
}

// submitted records the transaction hash once the service accepted it.
func (l *ledger) submitted(ctx context.Context, plan *derive.Plan, hash common.Hash) {
	l.mu.Lock()
	id, ok := l.ids[plan]
	l.mu.Unlock()
	if !ok {
		return
	}
	if err := l.store.MarkSubmitted(ctx, id, hash.Hex()); err != nil {
		l.logger.Error("recording submitted attempt", "attempt", id, "error", err)
	}
}

// abandon closes an attempt whose wait was cancelled. The state is the last
// one observed; the transaction may still settle on the service.
func (l *ledger) abandon(ctx context.Context, plan *derive.Plan, d *domain.Deployment, cause error) {
	id, ok := l.take(plan)
	if !ok {
		return
	}
	err := l.store.FinishAttempt(ctx, id, storage.AttemptResult{
		State:      string(d.State()),
		TxHash:     d.Handle().TxHash.Hex(),
		Reason:     cause.Error(),
		FinishedAt: time.Now().UTC(),
	})
	if err != nil {
		l.logger.Error("recording abandoned attempt", "attempt", id, "error", err)
	}
}

// RecordOutcome stores a terminal outcome.
func (l *ledger) RecordOutcome(ctx context.Context, r domain.Report) error {
	id, ok := l.take(r.Plan)
	if !ok {
		return nil
	}

	out := r.Outcome
	result := storage.AttemptResult{
		State:       string(out.State),
		Reason:      out.Reason,
		BlockNumber: int64(out.BlockNumber),
		FinishedAt:  time.Now().UTC(),
	}
	if out.TxHash != (common.Hash{}) {
		result.TxHash = out.TxHash.Hex()
	}
	if out.Reported != (common.Address{}) {
		result.RemoteAddress = out.Reported.Hex()
	}
	if result.Reason == "" && out.Err != nil {
		result.Reason = out.Err.Error()
	}
	return l.store.FinishAttempt(ctx, id, result)
}

func (l *ledger) take(plan *derive.Plan) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.ids[plan]
	delete(l.ids, plan)
	return id, ok
}
