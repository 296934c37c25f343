package engine

import "fmt"

// The error types below are the expected, recoverable outcomes every
// operation may return. Infrastructure failures propagate as plain errors.

// ForbiddenError indicates the caller lacks the role or membership the
// operation requires.
type ForbiddenError struct {
	Reason string
}

func (e ForbiddenError) Error() string {
	if e.Reason == "" {
		return "permission denied"
	}
	return "permission denied: " + e.Reason
}

// ConflictError indicates a second submitted inspection for the same
// (milestone, engineer) pair.
type ConflictError struct {
	MilestoneID string
	EngineerID  string
}

func (e ConflictError) Error() string {
	return "inspection already submitted for this milestone"
}

// InvalidStateError indicates the operation is not legal in the entity's
// current lifecycle state.
type InvalidStateError struct {
	Reason string
}

func (e InvalidStateError) Error() string { return e.Reason }

// InvalidInputError indicates a business-rule validation failure, naming
// the offending field or checklist item.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e InvalidInputError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
