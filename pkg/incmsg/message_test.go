package incmsg

import (
	"testing"

	"github.com/marmos91/incd/pkg/increrr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario 1: Message{type=METHOD_CALL(10), seq=0x12345678, channelId=7,
// payloadLength=0}.HeaderBytes() must equal the literal 24-byte vector.
func TestHeaderBytesLiteralEncoding(t *testing.T) {
	m := New(TypeMethodCall, 0x12345678)
	m.Header.ChannelID = 7

	got := m.HeaderBytes()
	expected := []byte{
		0x49, 0x4E, 0x43, 0x00, // magic
		0x00, 0x01, // protocolVersion = 1
		0x00, 0x01, // payloadVersion = 1
		0x00, 0x00, 0x00, 0x00, // payloadLength = 0
		0x00, 0x0A, // type = METHOD_CALL = 10
		0x00, 0x07, // channelId = 7
		0x12, 0x34, 0x56, 0x78, // seq
		0x00, 0x00, 0x00, 0x00, // flags
	}
	assert.Equal(t, expected, got)
}

func TestDecodeHeaderRoundTrips(t *testing.T) {
	m := New(TypeEvent, 99)
	m.Header.ChannelID = 3
	m.Header.Flags = FlagCompressed
	encoded := m.HeaderBytes()

	h, err := DecodeHeader(encoded)
	require.NoError(t, err)
	assert.Equal(t, Magic, h.Magic)
	assert.Equal(t, TypeEvent, h.Type)
	assert.Equal(t, uint16(3), h.ChannelID)
	assert.Equal(t, uint32(99), h.SequenceNumber)
	assert.Equal(t, FlagCompressed, h.Flags)
}

func TestDecodeHeaderTooShortFailsTruncated(t *testing.T) {
	_, err := DecodeHeader(make([]byte, 10))
	require.Error(t, err)
	kind, ok := increrr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, increrr.KindTruncated, kind)
}

func TestValidateRejectsBadMagic(t *testing.T) {
	h := Header{Magic: 0xFFFFFFFF, Type: TypePing}
	err := h.Validate(MaxMessageSize)
	require.Error(t, err)
	kind, ok := increrr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, increrr.KindBadMagic, kind)
}

func TestValidateRejectsInvalidType(t *testing.T) {
	h := Header{Magic: Magic, Type: TypeInvalid}
	err := h.Validate(MaxMessageSize)
	require.Error(t, err)
	kind, ok := increrr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, increrr.KindBadMagic, kind)
}

func TestValidateRejectsTooLarge(t *testing.T) {
	h := Header{Magic: Magic, Type: TypePing, PayloadLength: 1000}
	err := h.Validate(500)
	require.Error(t, err)
	kind, ok := increrr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, increrr.KindTooLarge, kind)
}

func TestTypeStringer(t *testing.T) {
	assert.Equal(t, "METHOD_CALL", TypeMethodCall.String())
	assert.Equal(t, "PONG", TypePong.String())
	assert.Equal(t, "UNKNOWN", Type(999).String())
}
