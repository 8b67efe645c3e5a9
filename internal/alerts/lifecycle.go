package alerts

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition marks a lifecycle rule violation. The stored alert is
// left unchanged and the error is returned to the caller.
var ErrInvalidTransition = errors.New("invalid alert transition")

// validTransitions is the lifecycle state machine:
// ACTIVE → ACKNOWLEDGED → RESOLVED | DISMISSED.
// Dismissal requires a recorded acknowledging user, so ACTIVE → DISMISSED is
// rejected; reactivation from any later state is forbidden; RESOLVED and
// DISMISSED are terminal.
var validTransitions = map[Status][]Status{
	StatusActive:       {StatusAcknowledged},
	StatusAcknowledged: {StatusResolved, StatusDismissed},
	StatusResolved:     {},
	StatusDismissed:    {},
}

// CanTransition reports whether the lifecycle permits moving from one status
// to another.
func CanTransition(from, to Status) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition applies a lifecycle transition to the alert in memory. The
// acknowledging actor is recorded on the ACKNOWLEDGED transition and must be
// non-empty. Callers mutating stored alerts go through Store.Transition,
// which revalidates against the persisted state.
func (a *Alert) Transition(to Status, actor string, now time.Time) error {
	if !CanTransition(a.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
	}
	if to == StatusAcknowledged {
		if actor == "" {
			return fmt.Errorf("%w: acknowledgment requires an actor", ErrInvalidTransition)
		}
		a.AcknowledgedBy = actor
		ackAt := now
		a.AcknowledgedAt = &ackAt
	}
	if to == StatusDismissed && a.AcknowledgedBy == "" {
		return fmt.Errorf("%w: dismissal requires a recorded acknowledging user", ErrInvalidTransition)
	}
	a.Status = to
	return nil
}
