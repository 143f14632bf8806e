// Package inccodec implements the UTF-8 <-> UTF-16 conversion used to
// serialize INC string payload fields. It offers a stateless one-shot API
// (Encode/Decode) and a stateful Converter for streams whose chunk
// boundaries may split a multi-byte or surrogate-pair sequence across
// calls, grounded on the BOM/surrogate/invalid-byte handling of the
// original UTF codec this protocol was distilled from.
package inccodec

// Flags controls Converter behavior.
type Flags uint8

const (
	// ConvertInvalidToNull replaces invalid input with U+0000 instead of
	// the default U+FFFD replacement character.
	ConvertInvalidToNull Flags = 1 << iota

	// IgnoreHeader turns off byte-order-mark handling: ConvertToUnicode does
	// not strip a leading BOM and ConvertFromUnicode does not emit one.
	// Without this flag, the first ConvertToUnicode call strips a leading
	// BOM if present and the first ConvertFromUnicode call emits one. The
	// stateless Encode never emits a BOM; Decode always strips one.
	IgnoreHeader
)

const (
	replacementChar   = 0xFFFD
	nullChar          = 0x0000
	highSurrogateMin  = 0xD800
	highSurrogateMax  = 0xDBFF
	lowSurrogateMin   = 0xDC00
	lowSurrogateMax   = 0xDFFF
)

var utf8BOM = [3]byte{0xEF, 0xBB, 0xBF}

func isHighSurrogate(u uint16) bool { return u >= highSurrogateMin && u <= highSurrogateMax }
func isLowSurrogate(u uint16) bool  { return u >= lowSurrogateMin && u <= lowSurrogateMax }

// Encode converts a slice of UTF-16 code units to UTF-8 bytes. Lone
// surrogates become U+FFFD; this never emits a BOM.
func Encode(u16 []uint16) []byte {
	c := &Converter{Flags: IgnoreHeader}
	return c.ConvertFromUnicode(u16)
}

// Decode converts UTF-8 bytes to UTF-16 code units, stripping a leading
// BOM if present. Invalid byte sequences become U+FFFD.
func Decode(b []byte) []uint16 {
	c := &Converter{}
	return c.ConvertToUnicode(b)
}

// Converter performs chunked, stateful UTF-8/UTF-16 conversion. Its zero
// value is ready to use. A single Converter must be used for all chunks of
// one logical stream, in order.
type Converter struct {
	Flags          Flags
	RemainingChars int  // 1 if a high surrogate is pending across chunk boundary
	InvalidChars   int  // running count of replaced invalid sequences
	state          [3]byte
	headerSeen     bool
	pendingHigh    uint16
}

func (c *Converter) replacement() uint16 {
	if c.Flags&ConvertInvalidToNull != 0 {
		return nullChar
	}
	return replacementChar
}

// ConvertFromUnicode encodes a chunk of UTF-16 code units to UTF-8,
// carrying a pending high surrogate from a previous call if RemainingChars
// is set.
func (c *Converter) ConvertFromUnicode(u16 []uint16) []byte {
	out := make([]byte, 0, len(u16)*3+3)

	if c.Flags&IgnoreHeader == 0 && !c.headerSeen {
		out = append(out, utf8BOM[:]...)
	}
	c.headerSeen = true

	i := 0
	if c.RemainingChars == 1 {
		c.RemainingChars = 0
		out = c.appendRune(out, c.pendingHigh, u16, &i)
	}

	for i < len(u16) {
		u := u16[i]
		i++
		if isHighSurrogate(u) {
			out = c.appendRune(out, u, u16, &i)
			continue
		}
		if isLowSurrogate(u) {
			c.InvalidChars++
			out = appendUTF8Rune(out, rune(c.replacement()))
			continue
		}
		out = appendUTF8Rune(out, rune(u))
	}

	return out
}

// appendRune handles the case where cur is a high surrogate: it either
// consumes the matching low surrogate from the rest of the stream (i is
// advanced), or — if the stream ends right after the high surrogate —
// stashes it in RemainingChars/pendingHigh for the next chunk.
func (c *Converter) appendRune(out []byte, high uint16, u16 []uint16, i *int) []byte {
	if *i >= len(u16) {
		c.RemainingChars = 1
		c.pendingHigh = high
		return out
	}
	low := u16[*i]
	if !isLowSurrogate(low) {
		c.InvalidChars++
		return appendUTF8Rune(out, rune(c.replacement()))
	}
	*i++
	r := ((rune(high) - 0xD800) << 10) + (rune(low) - 0xDC00) + 0x10000
	return appendUTF8Rune(out, r)
}

func appendUTF8Rune(out []byte, r rune) []byte {
	switch {
	case r < 0x80:
		return append(out, byte(r))
	case r < 0x800:
		return append(out, byte(0xC0|(r>>6)), byte(0x80|(r&0x3F)))
	case r < 0x10000:
		return append(out, byte(0xE0|(r>>12)), byte(0x80|((r>>6)&0x3F)), byte(0x80|(r&0x3F)))
	default:
		return append(out, byte(0xF0|(r>>18)), byte(0x80|((r>>12)&0x3F)), byte(0x80|((r>>6)&0x3F)), byte(0x80|(r&0x3F)))
	}
}

// ConvertToUnicode decodes a chunk of UTF-8 bytes to UTF-16 code units.
// On the first chunk, unless IgnoreHeader is set, a leading BOM is
// stripped (and recorded so it is not looked for again in later chunks).
func (c *Converter) ConvertToUnicode(b []byte) []uint16 {
	out := make([]uint16, 0, len(b))

	if c.state[0] != 0 {
		// prepend the incomplete sequence stashed by the previous call
		pending := make([]byte, 0, len(c.state)+len(b))
		for _, p := range c.state {
			if p == 0 {
				break
			}
			pending = append(pending, p)
		}
		b = append(pending, b...)
		c.state = [3]byte{}
	}

	if !c.headerSeen {
		c.headerSeen = true
		if c.Flags&IgnoreHeader == 0 && len(b) >= 3 && b[0] == utf8BOM[0] && b[1] == utf8BOM[1] && b[2] == utf8BOM[2] {
			b = b[3:]
		}
	}

	i := 0
	for i < len(b) {
		r, size := decodeRuneUTF8(b[i:])
		if size == 0 {
			// incomplete sequence at end of chunk (at most 3 bytes): stash
			// it for the next call; UTF-8 lead and continuation bytes are
			// never zero, so unused slots stay zero
			c.state = [3]byte{}
			copy(c.state[:], b[i:])
			break
		}
		i += size
		if r < 0 {
			c.InvalidChars++
			out = append(out, c.replacement())
			continue
		}
		out = appendUTF16Rune(out, rune(r))
	}

	return out
}

func appendUTF16Rune(out []uint16, r rune) []uint16 {
	if r < 0x10000 {
		return append(out, uint16(r))
	}
	r -= 0x10000
	return append(out, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
}

// decodeRuneUTF8 decodes one UTF-8 rune from the start of b. It returns
// (-1, size) for an invalid-but-resynchronizable sequence (size bytes
// consumed, caller should emit a replacement), or (r, 0) to signal the
// sequence is incomplete and more bytes are needed (caller must buffer).
func decodeRuneUTF8(b []byte) (int, int) {
	if len(b) == 0 {
		return 0, 0
	}
	b0 := b[0]
	switch {
	case b0 < 0x80:
		return int(b0), 1
	case b0&0xE0 == 0xC0:
		if len(b) < 2 {
			return 0, 0
		}
		if !isCont(b[1]) {
			return -1, 1
		}
		r := (int(b0&0x1F) << 6) | int(b[1]&0x3F)
		if r < 0x80 {
			return -1, 2
		}
		return r, 2
	case b0&0xF0 == 0xE0:
		if len(b) < 3 {
			return 0, 0
		}
		if !isCont(b[1]) || !isCont(b[2]) {
			return -1, 1
		}
		r := (int(b0&0x0F) << 12) | (int(b[1]&0x3F) << 6) | int(b[2]&0x3F)
		if r < 0x800 {
			return -1, 3
		}
		return r, 3
	case b0&0xF8 == 0xF0:
		if len(b) < 4 {
			return 0, 0
		}
		if !isCont(b[1]) || !isCont(b[2]) || !isCont(b[3]) {
			return -1, 1
		}
		r := (int(b0&0x07) << 18) | (int(b[1]&0x3F) << 12) | (int(b[2]&0x3F) << 6) | int(b[3]&0x3F)
		if r < 0x10000 || r > 0x10FFFF {
			return -1, 4
		}
		return r, 4
	default:
		return -1, 1
	}
}

func isCont(b byte) bool { return b&0xC0 == 0x80 }
