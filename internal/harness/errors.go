package harness

import (
	"fmt"

	"github.com/pendergraft/deploycheck/internal/storage"
)

// Stage names the step of a run that failed.
type Stage string

const (
	StageReadiness    Stage = "readiness"
	StageProvisioning Stage = "provisioning"
	StageDerivation   Stage = "derivation"
	StageSubmission   Stage = "submission"
	StageSettlement   Stage = "settlement"
)

// ErrSaltReused is returned when a deployment reuses a salt, either within the
// session or, with a ledger, across runs.
var ErrSaltReused = storage.ErrSaltReused

// StageError wraps a failure with the stage it happened in. Readiness and
// settlement failures are environmental; the others are local faults.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}
