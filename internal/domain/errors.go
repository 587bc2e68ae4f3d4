package domain

import (
	"fmt"
	"strconv"
)

// Error types for consistent error handling across the ledger.

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

// ErrInsufficientPool indicates a counterparty pool cannot cover a settlement.
type ErrInsufficientPool struct {
	Pool Pool
	Need int64
	Have int64
}

func (e *ErrInsufficientPool) Error() string {
	return fmt.Sprintf("insufficient %s balance: need ¥%d, have ¥%d", e.Pool.label(), e.Need, e.Have)
}

// ErrPrecondition indicates missing configuration that blocks an operation.
type ErrPrecondition struct {
	Message string
}

func (e *ErrPrecondition) Error() string {
	return "precondition failed: " + e.Message
}

// ErrConflict indicates the operation clashes with the current state of a resource.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
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

func quote(s string) string {
	return strconv.Quote(s)
}
