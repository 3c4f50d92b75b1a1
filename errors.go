package wlanmgr

import (
	"context"

	"github.com/pkg/errors"
)

// Errors returned by Device operations. Returned errors wrap one of these
// with context and should be checked using errors.Is.
var (
	// ErrIO indicates that the firmware command transport reported a failure.
	ErrIO = errors.New("firmware I/O error")

	// ErrNotReady indicates that the firmware has not booted or the interface
	// is disabled. It also matches ErrIO.
	ErrNotReady = errors.WithMessage(ErrIO, "device not ready")

	// ErrBusy indicates that teardown is in progress or a conflicting request
	// is outstanding.
	ErrBusy = errors.New("device busy")

	// ErrInvalidParams indicates a parameter combination that cannot be
	// represented or that firmware rejected.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrNotSupported indicates a mode that is not implemented.
	ErrNotSupported = errors.New("operation not supported")

	// ErrTimeout indicates that a bounded wait for firmware elapsed.
	ErrTimeout = errors.New("timed out waiting for firmware")

	// ErrInterrupted indicates that a wait was cancelled by the caller.
	ErrInterrupted = errors.New("interrupted")

	// ErrNoSuchEntry indicates an unknown interface, key index or peer.
	ErrNoSuchEntry = errors.New("no such entry")

	// ErrNotConnected indicates that the operation requires a started BSS
	// or an established link.
	ErrNotConnected = errors.New("not connected")
)

// A markedError is an error which also matches another sentinel.
type markedError struct {
	err  error
	mark error
}

func (e *markedError) Error() string        { return e.err.Error() }
func (e *markedError) Unwrap() error        { return e.err }
func (e *markedError) Is(target error) bool { return target == e.mark }

// mark returns err annotated so that errors.Is also matches mark.
func mark(err, mark error) error {
	return &markedError{err: err, mark: mark}
}

// fwErr wraps the failure of firmware command op. Timeouts and interruptions
// are preserved; anything else is reported as ErrIO.
func fwErr(op string, err error) error {
	err = ctxErr(err)
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrInterrupted) || errors.Is(err, ErrIO) {
		return errors.WithMessage(err, op)
	}

	return mark(errors.WithMessage(err, op), ErrIO)
}

// ctxErr maps context errors onto the taxonomy and passes others through.
func ctxErr(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return mark(err, ErrTimeout)
	case errors.Is(err, context.Canceled):
		return mark(err, ErrInterrupted)
	default:
		return err
	}
}
