package scheduler

import (
	"errors"
	"fmt"
)

// Policy rejections: expected outcomes of queue rules. They never leave a
// partially mutated state behind.
var (
	ErrQueueNotFound          = errors.New("no active queue for this doctor")
	ErrEntryNotFound          = errors.New("queue entry not found")
	ErrVisitNotFound          = errors.New("visit not found")
	ErrConsultationInProgress = errors.New("consultation already in progress")
	ErrNoPatientsWaiting      = errors.New("no patients waiting in queue")
	ErrNoActiveConsultation   = errors.New("no active consultation for this doctor")
	ErrVisitMismatch          = errors.New("visit does not match active consultation")
	ErrAlreadyCheckedIn       = errors.New("patient already checked in")
	ErrReasonRequired         = errors.New("skip reason is required")
)

// Reference failures: master data the queue expects to exist. They abort
// the transaction before anything commits.
var (
	ErrDoctorNotFound     = errors.New("doctor not found")
	ErrDepartmentNotFound = errors.New("doctor department not found")
)

// TransitionError reports an entry in the wrong state for the requested
// lifecycle move.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("entry cannot move from %s to %s", e.From, e.To)
}

// IsPolicyRejection reports whether err is an expected queue-policy outcome
// rather than an internal failure.
func IsPolicyRejection(err error) bool {
	switch {
	case errors.Is(err, ErrQueueNotFound),
		errors.Is(err, ErrEntryNotFound),
		errors.Is(err, ErrVisitNotFound),
		errors.Is(err, ErrConsultationInProgress),
		errors.Is(err, ErrNoPatientsWaiting),
		errors.Is(err, ErrNoActiveConsultation),
		errors.Is(err, ErrVisitMismatch),
		errors.Is(err, ErrAlreadyCheckedIn),
		errors.Is(err, ErrReasonRequired),
		errors.Is(err, ErrDoctorNotFound),
		errors.Is(err, ErrDepartmentNotFound):
		return true
	}
	var te *TransitionError
	return errors.As(err, &te)
}
