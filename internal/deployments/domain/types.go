// Package domain contains the deployment state machine: build, submit, poll
// and wait for a contract deployment transaction.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Common errors returned by the orchestrator.
var (
	ErrAlreadySubmitted  = errors.New("deployment already submitted")
	ErrNotSubmitted      = errors.New("deployment not submitted")
	ErrAbandoned         = errors.New("wait abandoned")
	ErrNoSigner          = errors.New("wallet has no signer")
	ErrDeployerMismatch  = errors.New("wallet is not the planned deployer")
	ErrAddressMismatch   = errors.New("deployed address mismatch")
	ErrTransactionFailed = errors.New("deployment transaction failed")
	ErrTimedOut          = errors.New("deployment timed out")
)

// State is the lifecycle position of a deployment.
type State string

const (
	StateBuilt     State = "built"
	StateSubmitted State = "submitted"
	StatePending   State = "pending"
	StateMined     State = "mined"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateMined, StateFailed, StateTimedOut:
		return true
	}
	return false
}

// Handle identifies a submitted deployment.
type Handle struct {
	TxHash      common.Hash
	Address     common.Address // derived, not yet confirmed
	SubmittedAt time.Time
}

// Outcome is the terminal result of a deployment.
type Outcome struct {
	State       State
	TxHash      common.Hash
	Expected    common.Address
	Reported    common.Address
	BlockNumber uint64
	GasUsed     uint64
	Reason      string
	Polls       int
	Elapsed     time.Duration
	// Err is the error Wait returns with this outcome; nil for a matching Mined.
	Err error
}

// AddressMismatchError is returned when the service deployed somewhere other
// than the derived address.
type AddressMismatchError struct {
	TxHash   common.Hash
	Expected common.Address
	Reported common.Address
}

func (e *AddressMismatchError) Error() string {
	reported := e.Reported.Hex()
	if e.Reported == (common.Address{}) {
		reported = "no address"
	}
	return fmt.Sprintf("%s: tx %s: derived %s, service reported %s", ErrAddressMismatch, e.TxHash.Hex(), e.Expected.Hex(), reported)
}

func (e *AddressMismatchError) Unwrap() error {
	return ErrAddressMismatch
}

// TransactionFailedError is returned when the service rejected or reverted the deployment.
type TransactionFailedError struct {
	TxHash common.Hash // zero when rejected at submission
	Reason string
}

func (e *TransactionFailedError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "no reason given"
	}
	if e.TxHash == (common.Hash{}) {
		return fmt.Sprintf("%s: rejected: %s", ErrTransactionFailed, reason)
	}
	return fmt.Sprintf("%s: tx %s: %s", ErrTransactionFailed, e.TxHash.Hex(), reason)
}

func (e *TransactionFailedError) Unwrap() error {
	return ErrTransactionFailed
}

// TimeoutError is returned when no terminal status was observed in time. The
// transaction may still settle on the service.
type TimeoutError struct {
	TxHash  common.Hash
	Polls   int
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: tx %s still pending after %d poll(s) in %s", ErrTimedOut, e.TxHash.Hex(), e.Polls, e.Elapsed.Round(time.Millisecond))
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimedOut
}
