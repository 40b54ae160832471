package tcpclient

import (
	"fmt"
	"syscall"

	"github.com/pkg/errors"
)

// Errors returned by client operations.
var (
	// ErrInvalidReader is returned when no reader or message handler is provided.
	ErrInvalidReader = errors.New("invalid reader")
	// ErrInvalidOnMessage is returned when a reader has no message handler.
	ErrInvalidOnMessage = errors.New("invalid on message callback")
	// ErrAlreadyConnected is returned by Connect while a connection is open or opening.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrNotConnected is returned when writing without an open connection.
	ErrNotConnected = errors.New("not connected")
	// ErrClosed is returned when operating on a closed client.
	ErrClosed = errors.New("client closed")
	// ErrProducer wraps errors reported by a StreamWriter supplier.
	ErrProducer = errors.New("stream producer failed")
)

// TransportError reports a failed read or write on the underlying stream.
// Code holds the OS error number when one could be extracted, otherwise 0.
type TransportError struct {
	Op   string
	Code syscall.Errno
	Err  error
}

func newTransportError(op string, err error) error {
	if err == nil {
		return nil
	}

	var te *TransportError
	if errors.As(err, &te) {
		return err
	}

	var errno syscall.Errno
	errors.As(err, &errno)
	return &TransportError{Op: op, Code: errno, Err: err}
}

func (e *TransportError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %v (errno %d)", e.Op, e.Err, int(e.Code))
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Cause implements the github.com/pkg/errors causer interface.
func (e *TransportError) Cause() error {
	return e.Err
}

// producerError wraps a supplier failure so that it matches ErrProducer
// while keeping the original cause.
type producerError struct {
	err error
}

func (e *producerError) Error() string {
	return ErrProducer.Error() + ": " + e.err.Error()
}

func (e *producerError) Unwrap() error {
	return e.err
}

func (e *producerError) Is(target error) bool {
	return target == ErrProducer
}
