package inccodec

import (
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Round-Trip Properties
// ============================================================================

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []string{"", "hello", "héllo wörld", "日本語", "emoji 🎉🙂"}

	for _, s := range cases {
		t.Run(s, func(t *testing.T) {
			u16 := utf16.Encode([]rune(s))
			encoded := Encode(u16)
			assert.Equal(t, []byte(s), encoded)

			decoded := Decode(encoded)
			assert.Equal(t, u16, decoded)
		})
	}
}

// ============================================================================
// BOM Handling
// ============================================================================

func TestDecodeStripsLeadingBOM(t *testing.T) {
	withBOM := append([]byte{0xEF, 0xBB, 0xBF}, []byte("hi")...)
	decoded := Decode(withBOM)
	assert.Equal(t, utf16.Encode([]rune("hi")), decoded)
}

func TestConverterIgnoreHeaderDoesNotEmitBOM(t *testing.T) {
	c := &Converter{Flags: IgnoreHeader}
	out := c.ConvertFromUnicode(utf16.Encode([]rune("hi")))
	assert.Equal(t, []byte("hi"), out)
}

func TestConverterIgnoreHeaderSkipsBOMDetection(t *testing.T) {
	c := &Converter{Flags: IgnoreHeader}
	withBOM := append([]byte{0xEF, 0xBB, 0xBF}, []byte("hi")...)
	out := c.ConvertToUnicode(withBOM)
	// BOM bytes decode as U+FEFF followed by "hi" when detection is skipped
	require.Len(t, out, 3)
}

// ============================================================================
// Invalid Input Handling
// ============================================================================

func TestInvalidUTF8ReplacedWithFFFD(t *testing.T) {
	c := &Converter{Flags: IgnoreHeader}
	out := c.ConvertToUnicode([]byte{0xFF, 'a'})
	require.Len(t, out, 2)
	assert.Equal(t, uint16(0xFFFD), out[0])
	assert.Equal(t, uint16('a'), out[1])
	assert.Equal(t, 1, c.InvalidChars)
}

func TestInvalidUTF8ReplacedWithNullWhenFlagged(t *testing.T) {
	c := &Converter{Flags: IgnoreHeader | ConvertInvalidToNull}
	out := c.ConvertToUnicode([]byte{0xFF, 'a'})
	require.Len(t, out, 2)
	assert.Equal(t, uint16(0x0000), out[0])
}

func TestLoneSurrogateBecomesReplacement(t *testing.T) {
	c := &Converter{Flags: IgnoreHeader}
	out := c.ConvertFromUnicode([]uint16{0xD800, 'x'}) // high surrogate with no low pair
	assert.Equal(t, []byte{0xEF, 0xBF, 0xBD, 'x'}, out)
	assert.Equal(t, 1, c.InvalidChars)
}

// ============================================================================
// Chunked / Stateful Streams
// ============================================================================

func TestSurrogatePairSplitAcrossChunksRoundTrips(t *testing.T) {
	full := utf16.Encode([]rune("🎉")) // one surrogate pair
	require.Len(t, full, 2)

	c := &Converter{Flags: IgnoreHeader}
	chunk1 := c.ConvertFromUnicode(full[:1])
	assert.Empty(t, chunk1)
	assert.Equal(t, 1, c.RemainingChars)

	chunk2 := c.ConvertFromUnicode(full[1:])
	assert.Equal(t, []byte("🎉"), append(chunk1, chunk2...))
}

func TestMultiByteSequenceSplitAcrossChunksRoundTrips(t *testing.T) {
	encoded := []byte("日") // 3-byte UTF-8 sequence
	c := &Converter{Flags: IgnoreHeader}

	part1 := c.ConvertToUnicode(encoded[:2])
	assert.Empty(t, part1)

	part2 := c.ConvertToUnicode(encoded[2:])
	assert.Equal(t, utf16.Encode([]rune("日")), part2)
}
