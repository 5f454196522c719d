package errors

import "errors"

// Sentinels for domain errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrValidation  = errors.New("validation error")
	ErrUnavailable = errors.New("service unavailable")
	// ErrRefused marks a request turned down by the calling policy or the
	// operator. Services report refusals as results; the CLI wraps them.
	ErrRefused = errors.New("refused")
)

// Process exit codes by error class.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitValidation  = 2
	ExitRefused     = 3
	ExitConflict    = 4
	ExitUnavailable = 5
)

// ExitCode maps err to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound):
		return ExitValidation
	case errors.Is(err, ErrRefused):
		return ExitRefused
	case errors.Is(err, ErrConflict):
		return ExitConflict
	case errors.Is(err, ErrUnavailable):
		return ExitUnavailable
	default:
		return ExitFailure
	}
}

// Join combines independent failures, dropping nils.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
