package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/pendergraft/deploycheck/internal/accounts"
	"github.com/pendergraft/deploycheck/internal/chains/evm"
	"github.com/pendergraft/deploycheck/internal/derive"
	"github.com/pendergraft/deploycheck/internal/observability/metrics"
	"github.com/pendergraft/deploycheck/pkg/client"
)

// MinPollInterval is the smallest delay allowed between two status reads.
const MinPollInterval = 50 * time.Millisecond

// DefaultPollInterval is used when no interval is configured.
const DefaultPollInterval = 250 * time.Millisecond

// StatusReader reads the settlement status of a transaction.
type StatusReader interface {
	TransactionStatus(ctx context.Context, hash common.Hash) (*client.TxStatus, error)
}

// Report is what a Recorder receives when a deployment reaches a terminal state.
type Report struct {
	Plan    *derive.Plan
	Handle  Handle
	Outcome Outcome
}

// Recorder is notified of terminal deployments.
type Recorder interface {
	RecordOutcome(ctx context.Context, r Report) error
}

// Orchestrator builds deployments and drives them to a terminal state.
type Orchestrator struct {
	backend      StatusReader
	pollInterval time.Duration
	logger       *slog.Logger
	recorder     Recorder
	now          func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithPollInterval sets the delay between status reads in Wait. Values below
// MinPollInterval are raised to it.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.pollInterval = d }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithRecorder registers a recorder for terminal outcomes.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// NewOrchestrator creates an orchestrator reading status from backend.
func NewOrchestrator(backend StatusReader, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		pollInterval: DefaultPollInterval,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.pollInterval < MinPollInterval {
		o.pollInterval = MinPollInterval
	}
	o.backend = LoggingMiddleware(o.logger)(backend)
	return o
}

// Build prepares a deployment of plan signed by wallet. Nothing is sent.
func (o *Orchestrator) Build(plan *derive.Plan, wallet accounts.Wallet) (*Deployment, error) {
	if plan == nil {
		return nil, errors.New("nil plan")
	}
	if wallet.Signer == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSigner, wallet.Address.Hex())
	}
	if wallet.Address != plan.Deployer {
		return nil, fmt.Errorf("%w: wallet %s, plan %s", ErrDeployerMismatch, wallet.Address.Hex(), plan.Deployer.Hex())
	}

	factory := plan.Factory
	return &Deployment{
		o:      o,
		plan:   plan,
		wallet: wallet,
		to:     &factory,
		state:  StateBuilt,
	}, nil
}

// Deployment is one deployment attempt. It is safe for concurrent use.
type Deployment struct {
	o      *Orchestrator
	plan   *derive.Plan
	wallet accounts.Wallet
	to     *common.Address

	mu        sync.Mutex
	state     State
	submitted bool // Submit was called, whatever its result
	handle    Handle
	polls     int
	outcome   Outcome
}

// Plan returns the derived plan the deployment executes.
func (d *Deployment) Plan() *derive.Plan {
	return d.plan
}

// State returns the current state.
func (d *Deployment) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Handle returns the submission handle; zero before a successful Submit.
func (d *Deployment) Handle() Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle
}

// Outcome returns the terminal outcome, or false if the deployment is not terminal.
func (d *Deployment) Outcome() (Outcome, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outcome, d.state.Terminal()
}

// Submit sends the transaction once. A JSON-RPC rejection makes the
// deployment Failed; a transport error leaves it Built. Submit never retries.
func (d *Deployment) Submit(ctx context.Context) (Handle, error) {
	d.mu.Lock()
	if d.submitted {
		d.mu.Unlock()
		return Handle{}, ErrAlreadySubmitted
	}
	d.submitted = true
	d.mu.Unlock()

	logger := d.o.logger.With("contract", d.plan.Contract, "address", d.plan.Address.Hex())
	start := d.o.now()
	hash, err := d.wallet.Signer.Send(ctx, d.wallet.Address, d.to, d.plan.CallData)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err != nil {
		if _, rejected := client.RPCErrorCode(err); rejected {
			d.handle = Handle{Address: d.plan.Address, SubmittedAt: start}
			d.finish(ctx, StateFailed, Outcome{
				Reason: err.Error(),
				Err:    &TransactionFailedError{Reason: err.Error()},
			})
			return Handle{}, d.outcome.Err
		}
		logger.Warn("deployment submission failed", "error", err)
		return Handle{}, fmt.Errorf("submitting deployment: %w", err)
	}

	d.handle = Handle{TxHash: hash, Address: d.plan.Address, SubmittedAt: start}
	d.state = StateSubmitted
	logger.Info("deployment submitted",
		"tx", hash.Hex(),
		"deployer", d.wallet.Address.Hex(),
		"signer", d.wallet.Signer.Kind(),
	)
	return d.handle, nil
}

// Poll reads the transaction status once. The first successful read moves a
// Submitted deployment to Pending, also when that same read already observes
// settlement, so every terminal state is reached from Pending. After a
// terminal state Poll returns the stored result without contacting the
// service.
func (d *Deployment) Poll(ctx context.Context) (State, error) {
	d.mu.Lock()
	if d.state.Terminal() {
		defer d.mu.Unlock()
		return d.state, d.outcome.Err
	}
	if d.state == StateBuilt {
		d.mu.Unlock()
		return StateBuilt, ErrNotSubmitted
	}
	hash := d.handle.TxHash
	d.mu.Unlock()

	status, err := d.o.backend.TransactionStatus(ctx, hash)

	d.mu.Lock()
	defer d.mu.Unlock()

	// another poller may have finished meanwhile
	if d.state.Terminal() {
		return d.state, d.outcome.Err
	}
	d.polls++
	if err != nil {
		return d.state, fmt.Errorf("reading status of %s: %w", hash.Hex(), err)
	}

	if d.state == StateSubmitted {
		d.state = StatePending
		d.o.logger.Debug("deployment pending", "contract", d.plan.Contract, "tx", hash.Hex())
	}

	switch status.State {
	case client.TxPending:
	case client.TxFailed:
		d.finish(ctx, StateFailed, Outcome{
			BlockNumber: status.BlockNumber,
			GasUsed:     status.GasUsed,
			Reason:      status.Reason,
			Err:         &TransactionFailedError{TxHash: hash, Reason: status.Reason},
		})
	case client.TxMined:
		reported, _ := evm.DeployedAddress(status.Receipt, d.plan.Factory)
		out := Outcome{
			Reported:    reported,
			BlockNumber: status.BlockNumber,
			GasUsed:     status.GasUsed,
		}
		if reported != d.plan.Address {
			out.Err = &AddressMismatchError{TxHash: hash, Expected: d.plan.Address, Reported: reported}
		}
		d.finish(ctx, StateMined, out)
	default:
		return d.state, fmt.Errorf("unknown transaction state %q", status.State)
	}
	return d.state, d.outcome.Err
}

// Wait polls until a terminal state, timeout or ctx cancellation. When
// timeout or a deadline on ctx passes first the deployment becomes TimedOut.
// On cancellation it stays Pending and Wait returns ErrAbandoned.
func (d *Deployment) Wait(ctx context.Context, timeout time.Duration) (*Outcome, error) {
	d.mu.Lock()
	if d.state.Terminal() {
		out := d.outcome
		d.mu.Unlock()
		return &out, out.Err
	}
	if d.state == StateBuilt {
		d.mu.Unlock()
		return nil, ErrNotSubmitted
	}
	d.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, max(timeout, 0))
	defer cancel()
	limiter := rate.NewLimiter(rate.Every(d.o.pollInterval), 1)

	for {
		if err := limiter.Wait(waitCtx); err != nil {
			<-waitCtx.Done()
			return d.stopWaiting(ctx)
		}

		state, err := d.Poll(waitCtx)
		if state.Terminal() {
			out, _ := d.Outcome()
			return &out, err
		}
		if err != nil {
			if waitCtx.Err() != nil {
				return d.stopWaiting(ctx)
			}
			d.o.logger.Debug("status read failed", "contract", d.plan.Contract, "error", err)
		}
	}
}

// stopWaiting handles the end of Wait without a terminal status: abandonment
// when the caller cancelled, TimedOut when any deadline passed.
func (d *Deployment) stopWaiting(parent context.Context) (*Outcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state.Terminal() {
		out := d.outcome
		return &out, out.Err
	}
	if err := parent.Err(); errors.Is(err, context.Canceled) {
		d.o.logger.Info("deployment wait abandoned",
			"contract", d.plan.Contract,
			"tx", d.handle.TxHash.Hex(),
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", ErrAbandoned, err)
	}

	d.finish(parent, StateTimedOut, Outcome{
		Err: &TimeoutError{
			TxHash:  d.handle.TxHash,
			Polls:   d.polls,
			Elapsed: d.o.now().Sub(d.handle.SubmittedAt),
		},
	})
	out := d.outcome
	return &out, out.Err
}

// finish records a terminal state. Callers hold d.mu.
func (d *Deployment) finish(ctx context.Context, state State, out Outcome) {
	out.State = state
	out.TxHash = d.handle.TxHash
	out.Expected = d.plan.Address
	out.Polls = d.polls
	out.Elapsed = d.o.now().Sub(d.handle.SubmittedAt)
	d.state = state
	d.outcome = out

	metrics.Deployment(d.plan.Contract, string(state), out.Elapsed)

	attrs := []any{
		"contract", d.plan.Contract,
		"state", string(state),
		"tx", out.TxHash.Hex(),
		"address", out.Expected.Hex(),
		"polls", out.Polls,
		"elapsed", out.Elapsed.String(),
	}
	if out.Err != nil {
		d.o.logger.Warn("deployment finished", append(attrs, "error", out.Err)...)
	} else {
		d.o.logger.Info("deployment finished", append(attrs, "block", out.BlockNumber)...)
	}

	if d.o.recorder != nil {
		report := Report{Plan: d.plan, Handle: d.handle, Outcome: out}
		if err := d.o.recorder.RecordOutcome(context.WithoutCancel(ctx), report); err != nil {
			d.o.logger.Error("recording deployment outcome", "contract", d.plan.Contract, "error", err)
		}
	}
}
