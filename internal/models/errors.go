package models

import (
	"errors"
	"fmt"
)

// ErrorKind is an entry of the pipeline error taxonomy.
type ErrorKind string

const (
	ErrUnsupportedFormat    ErrorKind = "UnsupportedFormat"
	ErrCorrupt              ErrorKind = "Corrupt"
	ErrFileTooLarge         ErrorKind = "FileTooLarge"
	ErrRateLimited          ErrorKind = "RateLimited"
	ErrTimeout              ErrorKind = "Timeout"
	ErrInvalidResponse      ErrorKind = "InvalidResponse"
	ErrRenderError          ErrorKind = "RenderError"
	ErrPrinterUnavailable   ErrorKind = "PrinterUnavailable"
	ErrUnsupportedPaperSize ErrorKind = "UnsupportedPaperSize"
	ErrDeliveryError        ErrorKind = "DeliveryError"
	ErrDeadlineExceeded     ErrorKind = "DeadlineExceeded"
	ErrCancelled            ErrorKind = "Cancelled"
)

// Recoverable kinds are retried with backoff by the orchestrator.
func (k ErrorKind) Recoverable() bool {
	switch k {
	case ErrRateLimited, ErrTimeout, ErrPrinterUnavailable:
		return true
	}
	return false
}

// StageError is what every pipeline component returns on failure.
type StageError struct {
	Kind   ErrorKind `json:"kind"`
	Detail string    `json:"detail"`
	Err    error     `json:"-"`
}

func (e *StageError) Error() string {
	if e.Err != nil && e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) Recoverable() bool { return e.Kind.Recoverable() }

// NewError builds a StageError with a formatted detail.
func NewError(kind ErrorKind, format string, args ...interface{}) *StageError {
	return &StageError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// WrapError builds a StageError around a cause.
func WrapError(kind ErrorKind, err error, detail string) *StageError {
	return &StageError{Kind: kind, Detail: detail, Err: err}
}

// AsStageError extracts a StageError from err. Anything else is reported as
// fallback so unknown failures never look recoverable by accident.
func AsStageError(err error, fallback ErrorKind) *StageError {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	return &StageError{Kind: fallback, Detail: err.Error(), Err: err}
}

// IsKind reports whether err carries the given taxonomy kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *StageError
	return errors.As(err, &se) && se.Kind == kind
}
