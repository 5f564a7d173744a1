// errors.go - Protocol failure taxonomy for the session-facing flows.
//
// Session errors abort the in-flight transition; it must not be reused,
// since its consumed references may need re-querying. Notarization errors
// are terminal for the transition: the local view was stale, so the caller
// re-queries and builds a fresh transition.

package flows

import (
	"errors"
	"fmt"
)

// ErrSessionTimeout is returned when a counterparty session could not be
// established or a response never arrived within the upper bound.
var ErrSessionTimeout = errors.New("session timed out")

// ErrCounterpartyRefused is the sentinel all refusals match via errors.Is.
var ErrCounterpartyRefused = errors.New("counterparty refused")

// RefusedError carries the counterparty's stated reason for refusing to
// sign.
type RefusedError struct {
	Reason string
}

func (e *RefusedError) Error() string {
	return fmt.Sprintf("counterparty refused: %s", e.Reason)
}

func (e *RefusedError) Is(target error) bool {
	return target == ErrCounterpartyRefused
}

// ErrNotarizationRejected marks a permanent failure for the submitted
// transition. Errors wrapping it also wrap the authority's cause, so
// errors.Is(err, notary.ErrDoubleSpend) keeps working.
var ErrNotarizationRejected = errors.New("notarization rejected")
