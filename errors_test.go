package clipper

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorAttribution(t *testing.T) {
	err := setupError("out.ivf", "open encoder", ErrUnsupportedCodec)
	assert.True(t, errors.Is(err, ErrSetup))
	assert.False(t, errors.Is(err, ErrRuntime))
	assert.True(t, errors.Is(err, ErrUnsupportedCodec), "cause is reachable")
	assert.Equal(t, "out.ivf", ErrorPath(err))
	assert.Equal(t, "open encoder", ErrorOp(err))
	assert.Contains(t, err.Error(), "open encoder out.ivf")

	err = runtimeError("in.ivf", "decode", io.ErrUnexpectedEOF)
	assert.True(t, errors.Is(err, ErrRuntime))
	assert.Equal(t, "decode", ErrorOp(err))

	err = inputError(ErrContainerOpen, "in.ivf", io.EOF)
	assert.True(t, errors.Is(err, ErrContainerOpen))
	assert.Equal(t, "in.ivf", ErrorPath(err))
	assert.Empty(t, ErrorOp(err))

	assert.Empty(t, ErrorPath(io.EOF))
	assert.Empty(t, ErrorOp(nil))
}
