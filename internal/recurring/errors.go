package recurring

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"

	"bizdesk/internal/pkg/utils"
)

var (
	// ErrClaimDenied means another caller holds the occurrence, or the
	// schedule is no longer in a claimable state. Nothing to do.
	ErrClaimDenied = errors.New("claim denied")
	// ErrStaleState means a guarded write lost a race with another writer.
	ErrStaleState = errors.New("stale schedule state")
	// ErrInvalidTransition is returned for a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("schedule not found")
	ErrInvalidInput      = errors.New("invalid schedule input")
)

// ExecutionError is a dependency failure inside the execution transaction.
// Everything was rolled back and the occurrence is still due.
type ExecutionError struct {
	ScheduleID string
	Occurrence time.Time
	Step       string
	Err        error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute schedule %s for %s: %s: %v",
		e.ScheduleID, e.Occurrence.Format(utils.DateLayout), e.Step, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// IsBenign reports whether err only means "nothing to do now".
func IsBenign(err error) bool {
	return errors.IsAny(err, ErrClaimDenied, ErrStaleState)
}
