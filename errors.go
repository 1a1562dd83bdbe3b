package governor

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is matched by every *ConfigError.
	ErrInvalidConfig = errors.New("invalid governor config")

	// ErrRAMLimitExceeded is matched by *ResourceExhaustedError for the RAM cap.
	ErrRAMLimitExceeded = errors.New("ram limit exceeded")

	// ErrClosed is returned (wrapped in *ConcurrencyError) once the governor
	// has been closed.
	ErrClosed = errors.New("governor closed")
)

// ConfigError indicates an impossible limit in a Config.
//
// It matches ErrInvalidConfig via errors.Is.
type ConfigError struct {
	// Key is the config key that failed validation (yaml name).
	Key     string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %q: %s", e.Key, e.Message)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// ResourceExhaustedError is a hard admission rejection: a tracked resource is
// above its configured cap and the governed work must not proceed.
type ResourceExhaustedError struct {
	Field string
	Usage uint64
	Limit uint64
}

func (e *ResourceExhaustedError) Error() string {
	return fmt.Sprintf("%s exceeded: %d bytes > %d bytes cap", e.Field, e.Usage, e.Limit)
}

func (e *ResourceExhaustedError) Unwrap() error { return ErrRAMLimitExceeded }

// ConcurrencyError indicates the capacity source refused an acquisition.
// It is not retryable.
//
// The underlying error can be accessed via errors.Unwrap.
type ConcurrencyError struct {
	Op    string
	cause error
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrency: %s: %v", e.Op, e.cause)
}

func (e *ConcurrencyError) Unwrap() error { return e.cause }
