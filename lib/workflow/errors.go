package workflow

import (
	"fmt"
	"strings"
)

// ValidationError indicates malformed or missing input. The request itself is
// wrong and retrying without correction will fail again.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotEligibleError indicates an entity is in a state (or ownership) that does
// not satisfy an operation's preconditions. EntityIDs names the offenders.
type NotEligibleError struct {
	Message   string
	EntityIDs []int64
}

func (e *NotEligibleError) Error() string {
	if len(e.EntityIDs) == 0 {
		return e.Message
	}
	ids := make([]string, len(e.EntityIDs))
	for i, id := range e.EntityIDs {
		ids[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("%s (ids: %s)", e.Message, strings.Join(ids, ", "))
}

// ConflictError indicates the operation would violate a uniqueness invariant,
// such as a second ECN for the same ECO.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// NotFoundError indicates the entity does not exist or is outside the caller's
// organization. The two cases are deliberately indistinguishable.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// InvalidTransitionError indicates a status change absent from the transition table.
type InvalidTransitionError struct {
	EntityType string
	From       string
	To         string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s status transition: %s -> %s", e.EntityType, e.From, e.To)
}

// StoreError wraps a transaction or infrastructure failure. No partial writes
// are ever committed, so callers may safely retry.
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: %v", e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
