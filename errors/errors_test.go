package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelWrapping(t *testing.T) {
	err := Wrap(ErrNotFound, "item abc123")
	assert.True(t, Is(err, ErrNotFound))
	assert.False(t, Is(err, ErrInvalidRequest))
}

func TestIsNotFound(t *testing.T) {
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(New("something else")))
	assert.True(t, IsNotFound(ErrNotFound))
	assert.True(t, IsNotFound(Wrap(ErrNotFound, "wrapped")))
	assert.True(t, IsNotFound(Wrap(Wrap(ErrNotFound, "inner"), "outer")))
}

func TestIsLockBusy(t *testing.T) {
	assert.True(t, IsLockBusy(Wrap(ErrLockBusy, "scope project-1")))
	assert.False(t, IsLockBusy(ErrConflict))
}

func TestIsStaleVersion(t *testing.T) {
	err := Wrapf(ErrStaleVersion, "expected version %d", 3)
	assert.True(t, IsStaleVersion(err))
}

func TestNewNotFoundf(t *testing.T) {
	err := NewNotFoundf("item %s", "door-101")
	require.Error(t, err)
	assert.True(t, Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "door-101")
}

func TestNewInvalidRequestf(t *testing.T) {
	err := NewInvalidRequestf("unknown type %q", "gizmo")
	require.Error(t, err)
	assert.True(t, Is(err, ErrInvalidRequest))
	assert.Contains(t, err.Error(), "gizmo")
}
