package tagstruct

import (
	"testing"

	"github.com/marmos91/incd/pkg/increrr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Round-Trip: scenario 2 — put_u32(42), put_string("hi"), put_bool(true)
// ============================================================================

func TestPutU32StringBoolRoundTrip(t *testing.T) {
	ts := New()
	ts.PutU32(42)
	hi := "hi"
	ts.PutString(&hi)
	ts.PutBool(true)

	out := FromBytes(ts.Bytes())

	u, err := out.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(42), u)

	s, err := out.ReadString()
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "hi", *s)

	b, err := out.ReadBool()
	require.NoError(t, err)
	assert.True(t, b)

	assert.True(t, out.IsAtEnd())
}

func TestAllScalarTypesRoundTrip(t *testing.T) {
	ts := New()
	ts.PutU32(7)
	ts.PutU64(1 << 40)
	ts.PutS64(-12345)
	ts.PutU8(0xFF)
	ts.PutBool(false)
	ts.PutDouble(3.14159)
	ts.PutBytes([]byte{1, 2, 3, 4})
	ts.PutSHMRef(SHMRef{ID: 9, Offset: 100, Length: 200})
	ts.PutArbitrary([]byte("opaque"))

	out := FromBytes(ts.Bytes())

	u32, err := out.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), u32)

	u64, err := out.ReadU64()
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<40), u64)

	s64, err := out.ReadS64()
	require.NoError(t, err)
	assert.Equal(t, int64(-12345), s64)

	u8, err := out.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xFF), u8)

	b, err := out.ReadBool()
	require.NoError(t, err)
	assert.False(t, b)

	d, err := out.ReadDouble()
	require.NoError(t, err)
	assert.InDelta(t, 3.14159, d, 1e-9)

	bytes, err := out.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, bytes)

	ref, err := out.ReadSHMRef()
	require.NoError(t, err)
	assert.Equal(t, SHMRef{ID: 9, Offset: 100, Length: 200}, ref)

	arb, err := out.ReadArbitrary()
	require.NoError(t, err)
	assert.Equal(t, []byte("opaque"), arb)

	assert.True(t, out.IsAtEnd())
}

func TestNullStringRoundTrips(t *testing.T) {
	ts := New()
	ts.PutString(nil)

	out := FromBytes(ts.Bytes())
	s, err := out.ReadString()
	require.NoError(t, err)
	assert.Nil(t, s)
}

// ============================================================================
// Truncation
// ============================================================================

func TestReadPastEndFailsTruncated(t *testing.T) {
	ts := New()
	ts.PutU32(1)

	raw := ts.Bytes()
	truncated := FromBytes(raw[:len(raw)-1]) // drop last byte of the u32 body

	_, err := truncated.ReadU32()
	require.Error(t, err)
	kind, ok := increrr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, increrr.KindTruncated, kind)
}

func TestReadFromEmptyStructFailsTruncated(t *testing.T) {
	out := New()
	_, err := out.ReadU32()
	require.Error(t, err)
	kind, ok := increrr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, increrr.KindTruncated, kind)
}

// ============================================================================
// Type Mismatch — cursor must not advance
// ============================================================================

func TestTypeMismatchLeavesCursorUnmoved(t *testing.T) {
	ts := New()
	ts.PutU32(42)

	out := FromBytes(ts.Bytes())

	_, err := out.ReadBool()
	require.Error(t, err)
	kind, ok := increrr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, increrr.KindTypeMismatch, kind)

	// cursor unmoved: the correctly-typed read still succeeds
	u, err := out.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(42), u)
	assert.True(t, out.IsAtEnd())
}

func TestPeekTagDoesNotConsume(t *testing.T) {
	ts := New()
	ts.PutDouble(1.5)

	out := FromBytes(ts.Bytes())
	tag, err := out.PeekTag()
	require.NoError(t, err)
	assert.Equal(t, TagDouble, tag)

	d, err := out.ReadDouble()
	require.NoError(t, err)
	assert.Equal(t, 1.5, d)
}

func TestTagStringer(t *testing.T) {
	assert.Equal(t, "u32", TagU32.String())
	assert.Equal(t, "bool", TagBoolTrue.String())
	assert.Equal(t, "bool", TagBoolFalse.String())
	assert.Equal(t, "shm_ref", TagSHMRef.String())
	assert.Equal(t, "unknown", Tag('?').String())
}
