package domain

import "fmt"

// Error types for consistent error handling across the hub.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrLockTimeout indicates the per-contact lock could not be acquired
// within the maximum wait. Recoverable: surfaces as "please wait".
type ErrLockTimeout struct {
	Contact   string
	Operation string
}

func (e *ErrLockTimeout) Error() string {
	return fmt.Sprintf("lock timeout for contact %s (operation %s)", e.Contact, e.Operation)
}

// ErrUnknownAgent indicates a routed agent has no registered implementation.
type ErrUnknownAgent struct {
	Name string
}

func (e *ErrUnknownAgent) Error() string {
	return fmt.Sprintf("unknown agent: %s", e.Name)
}

// ErrHandoffFailed wraps a failure inside the hand-off transaction.
// The orchestrator rolls back to the previous agent before returning this.
type ErrHandoffFailed struct {
	From string
	To   string
	Err  error
}

func (e *ErrHandoffFailed) Error() string {
	return fmt.Sprintf("handoff %s -> %s failed: %v", e.From, e.To, e.Err)
}

func (e *ErrHandoffFailed) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}
