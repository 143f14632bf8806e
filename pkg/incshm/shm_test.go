package incshm

import (
	"testing"

	"github.com/marmos91/incd/pkg/increrr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Create / Attach Lifecycle
// ============================================================================

func TestCreateThenReadBack(t *testing.T) {
	reg := NewRegistry(false)

	blk, err := reg.Create(1024)
	require.NoError(t, err)
	require.NotNil(t, blk)

	payload := make([]byte, 1024)
	for i := range payload {
		payload[i] = 0xAB
	}
	require.NoError(t, blk.WriteAt(0, payload))

	got, err := blk.ReadAt(0, 1024)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	assert.NoError(t, blk.Detach())
}

func TestAttachUnknownIDFails(t *testing.T) {
	reg := NewRegistry(false)

	_, err := reg.Attach(999)
	require.Error(t, err)

	kind, ok := increrr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, increrr.KindBadSHMRef, kind)
}

func TestAttachKnownIDRoundTrips(t *testing.T) {
	reg := NewRegistry(false)

	blk, err := reg.Create(64)
	require.NoError(t, err)

	again, err := reg.Attach(blk.ID())
	require.NoError(t, err)
	assert.Same(t, blk, again)
}

func TestCreateFailsWhenDisabled(t *testing.T) {
	reg := NewRegistry(true)

	_, err := reg.Create(64)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestReadAtOutOfRangeFails(t *testing.T) {
	reg := NewRegistry(false)
	blk, err := reg.Create(16)
	require.NoError(t, err)

	_, err = blk.ReadAt(10, 10)
	assert.Error(t, err)
}
