package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenExists reports the token service rejecting a mint because a
	// token was already issued for the capture. Callers treat this as
	// success (the mint is reconciled, not retried).
	ErrTokenExists = errors.New("token already exists")

	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// ServiceError wraps an error with backend context.
type ServiceError struct {
	Service string
	Status  int
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Service, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }
