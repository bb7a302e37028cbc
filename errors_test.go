package connector

import (
	"context"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestTransportError(t *testing.T) {
	err := transportError("read", io.EOF)

	assert.EqualError(t, err, "read: EOF")
	assert.True(t, errors.Is(err, io.EOF))

	var te *TransportError
	assert.True(t, errors.As(err, &te))
	assert.Equal(t, "read", te.Op)
}

func TestTransportError_NoDoubleWrap(t *testing.T) {
	inner := transportError("write", io.ErrClosedPipe)
	err := transportError("read", errors.WithMessage(inner, "session"))

	var te *TransportError
	assert.True(t, errors.As(err, &te))
	assert.Equal(t, "write", te.Op)
	assert.Nil(t, transportError("read", nil))
}

func TestIsCanceled(t *testing.T) {
	assert.True(t, IsCanceled(context.Canceled))
	assert.True(t, IsCanceled(transportError("connect", context.Canceled)))
	assert.False(t, IsCanceled(context.DeadlineExceeded))
	assert.False(t, IsCanceled(io.EOF))
}

func TestConfigurationError(t *testing.T) {
	err := &ConfigurationError{Field: "server_ip", Value: "nope"}
	assert.EqualError(t, err, "invalid server_ip: nope")
}
