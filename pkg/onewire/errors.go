package onewire

import (
	"errors"
	"fmt"
)

// Failure classes. Every error produced by this package matches exactly one
// of them with errors.Is.
var (
	// ErrSetup covers usage and configuration faults. They are reported
	// synchronously and never retried.
	ErrSetup = errors.New("onewire: setup failure")

	// ErrTransport covers I/O faults on the bus or the link to the adapter.
	// The core does not retry them.
	ErrTransport = errors.New("onewire: transport failure")
)

type classError struct {
	class error
	msg   string
}

func (e *classError) Error() string        { return "onewire: " + e.msg }
func (e *classError) Is(target error) bool { return target == e.class }

func setupError(msg string) error     { return &classError{class: ErrSetup, msg: msg} }
func transportError(msg string) error { return &classError{class: ErrTransport, msg: msg} }

// Setup faults.
var (
	ErrUnsupported       = setupError("operation not supported by this adapter")
	ErrPortNotSelected   = setupError("port not selected")
	ErrPortInUse         = setupError("port in use")
	ErrUnknownAdapter    = setupError("adapter name not known")
	ErrPortNotSelectable = setupError("port could not be selected")
	ErrNotDetected       = setupError("adapter not detected on port")
	ErrBusy              = setupError("adapter held by another session")
	ErrInvalidAddress    = setupError("invalid device address")
)

// Transport faults.
var (
	ErrEchoMismatch   = transportError("echo mismatch")
	ErrShort          = transportError("1-Wire bus short circuit")
	ErrCRC            = transportError("CRC check failed")
	ErrDeviceNotFound = transportError("device not found on bus")
	ErrTimeout        = transportError("adapter timeout")
)

// ioError wraps a backend failure into the transport class unless the
// backend already classified it.
func ioError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSetup) || errors.Is(err, ErrTransport) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}
