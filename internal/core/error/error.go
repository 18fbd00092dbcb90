package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is the user-facing fallback when a turn aborts.
	SystemErrorMessage = "sorry, something went wrong processing that request"
	// RedisErrorMessage describes transcript store failures.
	RedisErrorMessage = "redis operation failed"
	// LoopExhaustedMessage is the terminal failure reason when a specialist
	// hits its tool-call ceiling without producing an answer.
	LoopExhaustedMessage = "could not process request"
)

// Failure kinds for external-call handling. Gateway calls never return these
// to specialists directly; failures are folded into tagged payload values so
// the specialist's model session can inspect the verbatim error text. The
// sentinels exist for the code paths that do propagate Go errors (transcript
// repos, rendering, startup).
var (
	// ErrTransport marks network or auth failures reaching an external service.
	ErrTransport = errors.New("transport failure")
	// ErrUpstream marks a non-success status or malformed body from an external service.
	ErrUpstream = errors.New("upstream failure")
	// ErrLoopExhausted marks a specialist retry ceiling reached without a terminal answer.
	ErrLoopExhausted = errors.New("capability loop exhausted")
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}

// WrapRedis wraps a Redis error with a consistent status code and message.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, RedisErrorMessage)
}
