package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pendergraft/deploycheck/internal/accounts"
	"github.com/pendergraft/deploycheck/internal/chains"
	"github.com/pendergraft/deploycheck/internal/deployments/domain"
	"github.com/pendergraft/deploycheck/internal/derive"
	"github.com/pendergraft/deploycheck/internal/storage"
)

// DeployRequest describes one deployment.
type DeployRequest struct {
	Descriptor *chains.Descriptor
	Args       []any
	// Salt is used as given; nil draws a fresh one.
	Salt *derive.Salt
	// Role selects the signing identity; empty means RoleDeployer.
	Role accounts.Role
	// Timeout bounds settlement; zero uses the session default.
	Timeout time.Duration
}

// Result is what a Deploy produced. Fields are set as far as the run got.
type Result struct {
	Plan       *derive.Plan
	Deployment *domain.Deployment
	Outcome    *domain.Outcome
	AttemptID  string
}

// Derive computes the plan for req without touching the network or
// reserving the salt.
func (s *Session) Derive(req DeployRequest) (*derive.Plan, error) {
	plan, _, err := s.derive(req)
	return plan, err
}

// Deploy derives the address, submits the deployment once and waits for
// settlement. It returns an error unless the contract was mined at the
// derived address. Argument and salt problems are reported before any
// network call. Deploy may be called from several goroutines.
func (s *Session) Deploy(ctx context.Context, req DeployRequest) (*Result, error) {
	plan, wallet, err := s.derive(req)
	if err != nil {
		return nil, err
	}
	res := &Result{Plan: plan}

	if err := s.reserve(plan.Salt); err != nil {
		return res, stageErr(StageDerivation, err)
	}

	d, err := s.orch.Build(plan, wallet)
	if err != nil {
		return res, stageErr(StageSubmission, err)
	}
	res.Deployment = d

	if s.ledger != nil {
		id, err := s.ledger.open(ctx, plan)
		if err != nil {
			if errors.Is(err, storage.ErrSaltReused) {
				return res, stageErr(StageDerivation, err)
			}
			return res, stageErr(StageSubmission, fmt.Errorf("recording attempt: %w", err))
		}
		res.AttemptID = id
	}

	handle, err := d.Submit(ctx)
	if err != nil {
		if out, terminal := d.Outcome(); terminal {
			res.Outcome = &out
		} else if s.ledger != nil {
			s.ledger.abort(context.WithoutCancel(ctx), plan, err)
		}
		return res, stageErr(StageSubmission, err)
	}
	if s.ledger != nil {
		s.ledger.submitted(context.WithoutCancel(ctx), plan, handle.TxHash)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.timeout
	}
	out, err := d.Wait(ctx, timeout)
	res.Outcome = out
	if err != nil {
		if errors.Is(err, domain.ErrAbandoned) && s.ledger != nil {
			s.ledger.abandon(context.WithoutCancel(ctx), plan, d, err)
		}
		return res, stageErr(StageSettlement, err)
	}
	return res, nil
}

func (s *Session) derive(req DeployRequest) (*derive.Plan, accounts.Wallet, error) {
	role := req.Role
	if role == "" {
		role = accounts.RoleDeployer
	}
	wallet, err := s.roles.Wallet(role)
	if err != nil {
		return nil, accounts.Wallet{}, stageErr(StageProvisioning, err)
	}

	var salt derive.Salt
	if req.Salt != nil {
		salt = *req.Salt
	} else if salt, err = derive.NewSalt(); err != nil {
		return nil, accounts.Wallet{}, stageErr(StageDerivation, err)
	}

	plan, err := s.deriver.Derive(derive.Request{
		Descriptor: req.Descriptor,
		Args:       req.Args,
		Salt:       salt,
		Deployer:   wallet.Address,
	})
	if err != nil {
		return nil, accounts.Wallet{}, stageErr(StageDerivation, err)
	}
	return plan, wallet, nil
}

// reserve marks salt as used by this session.
func (s *Session) reserve(salt derive.Salt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, used := s.used[salt]; used {
		return fmt.Errorf("%w: %s", ErrSaltReused, salt)
	}
	s.used[salt] = struct{}{}
	return nil
}
