package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerSingleLease(t *testing.T) {
	m := NewManager()
	require.False(t, m.Busy())

	require.NoError(t, m.Acquire("recorder"))
	assert.True(t, m.Busy())

	// Second acquire is refused, regardless of holder name.
	assert.ErrorIs(t, m.Acquire("recorder"), ErrBusy)
	assert.ErrorIs(t, m.Acquire("other"), ErrBusy)

	m.Release("recorder")
	assert.False(t, m.Busy())
	assert.NoError(t, m.Acquire("other"))
}

func TestManagerReleaseUnheldIsNoOp(t *testing.T) {
	m := NewManager()
	m.Release("recorder")
	assert.False(t, m.Busy())
	assert.NoError(t, m.Acquire("recorder"))
}

func TestManagerReleaseByNonHolderIsIgnored(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Acquire("recorder"))

	m.Release("someone-else")
	assert.True(t, m.Busy())

	m.Release("recorder")
	assert.False(t, m.Busy())
}
