// errors.go - Local failure taxonomy for candidate transitions.
//
// These errors are raised before any network interaction and abort the
// transition with no side effects; callers may retry after correcting
// inputs.

package txn

import (
	"errors"
	"fmt"
)

// ErrInconsistentAuthority is returned by the builder when consumed records
// disagree on the ordering authority. A record's entire version chain must
// stay with one authority.
var ErrInconsistentAuthority = errors.New("consumed records name different ordering authorities")

// ErrContractViolation is the sentinel all contract failures match via
// errors.Is.
var ErrContractViolation = errors.New("contract violation")

// ContractViolationError carries the specific violated-constraint
// description produced by a command's verification predicate.
type ContractViolationError struct {
	Tag    Tag
	Reason string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("contract violation [%s]: %s", e.Tag, e.Reason)
}

func (e *ContractViolationError) Is(target error) bool {
	return target == ErrContractViolation
}

func violation(tag Tag, format string, args ...interface{}) error {
	return &ContractViolationError{Tag: tag, Reason: fmt.Sprintf(format, args...)}
}
