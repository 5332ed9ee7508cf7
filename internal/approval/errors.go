package approval

import "fmt"

// ValidationError reports malformed input. Not retryable.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// ConflictError reports an operation attempted against an entity that is
// not in the required state. Nothing was mutated.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// InsufficientCreditsError reports that a teacher lacks the credits for a
// single approval or a whole batch. The targeted prompts are untouched so
// the action can be retried after a top-up.
type InsufficientCreditsError struct {
	Have int
	Need int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: have %d, need %d", e.Have, e.Need)
}
