package connector

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Errors returned by connector operations.
var (
	// ErrConnectorStopped is returned when operating on a stopped connector.
	ErrConnectorStopped = errors.New("connector stopped")
	// ErrFrameOverflow is returned when the parts of a message would not fit in one frame.
	ErrFrameOverflow = errors.New("frame overflow")
	// ErrUnpack is returned when the incoming stream carries an invalid length header.
	ErrUnpack = errors.New("can not unpack msg")
	// ErrShutdownTimeout is logged when a graceful close exceeds its polling budget.
	ErrShutdownTimeout = errors.New("graceful shutdown timed out")
	// ErrTimerNotConfigured is returned when starting or reviving a timer that has no callback.
	ErrTimerNotConfigured = errors.New("timer not configured")
	// ErrInvalidOnMessage is returned when no message handler is provided.
	ErrInvalidOnMessage = errors.New("invalid on message callback")
)

// TransportError wraps a failed connect, read or write on the underlying socket.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying socket error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

func transportError(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// ConfigurationError reports an invalid configuration value.
type ConfigurationError struct {
	Field string
	Value any
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Value)
}

// IsCanceled reports whether err is an explicit cancellation of a pending operation.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
