package dsberrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapAndKindOf(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, KindTimeout, "controller", "Step")

	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindTimeout, kind)
	assert.ErrorIs(t, err, cause)
}

func TestIsMatchesByKindOnly(t *testing.T) {
	a := New(KindStaleStep, "agent", "SetVars")
	b := Wrap(errors.New("x"), KindStaleStep, "other", "Y")
	assert.True(t, errors.Is(a, b))

	c := New(KindFatal, "agent", "DoStep")
	assert.False(t, errors.Is(a, c))
}

func TestKindOfFalseForPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}
