// Package tagstruct implements the self-describing tagged payload
// container (TagStruct, C4 in the protocol design) used as the body of
// most INC messages. It is an ordered append/read sequence of (tag, value)
// records: writers append typed values, readers consume them in the same
// order, and a type-mismatched read fails without advancing the cursor so
// the caller can retry with the correct accessor (or skip the record).
//
// Rationale (spec.md §4.4): a tagged format allows forward-compatible
// payload evolution — receivers unable to interpret a tag can still know
// its announced length and skip it, without the header format changing.
package tagstruct

import (
	"encoding/binary"
	"math"

	"github.com/marmos91/incd/pkg/incbuf"
	"github.com/marmos91/incd/pkg/increrr"
)

// TagStruct is an ordered, typed, append/read payload container.
type TagStruct struct {
	buf    incbuf.Buffer
	cursor int
}

// New returns an empty TagStruct ready for writing.
func New() *TagStruct {
	return &TagStruct{}
}

// FromBytes wraps previously-encoded bytes for reading. The bytes are
// copied into the TagStruct's own buffer.
func FromBytes(b []byte) *TagStruct {
	return &TagStruct{buf: incbuf.FromBytes(b)}
}

// Bytes returns the encoded form for writing onto the wire.
func (ts *TagStruct) Bytes() []byte {
	return ts.buf.Data()
}

// Len returns the number of encoded bytes.
func (ts *TagStruct) Len() int {
	return ts.buf.Len()
}

// IsAtEnd reports whether the read cursor has consumed every record.
func (ts *TagStruct) IsAtEnd() bool {
	return ts.cursor >= ts.buf.Len()
}

// ============================================================================
// Writers
// ============================================================================

func (ts *TagStruct) putTag(tag Tag) {
	ts.buf.Append([]byte{byte(tag)})
}

// PutU32 appends a big-endian uint32 record.
func (ts *TagStruct) PutU32(v uint32) {
	ts.putTag(TagU32)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	ts.buf.Append(b[:])
}

// PutU64 appends a big-endian uint64 record.
func (ts *TagStruct) PutU64(v uint64) {
	ts.putTag(TagU64)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	ts.buf.Append(b[:])
}

// PutS64 appends a big-endian two's-complement int64 record.
func (ts *TagStruct) PutS64(v int64) {
	ts.putTag(TagS64)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	ts.buf.Append(b[:])
}

// PutU8 appends a single-byte record.
func (ts *TagStruct) PutU8(v uint8) {
	ts.putTag(TagU8)
	ts.buf.Append([]byte{v})
}

// PutBool appends a bodyless boolean record (tag is '1' or '0').
func (ts *TagStruct) PutBool(v bool) {
	if v {
		ts.putTag(TagBoolTrue)
	} else {
		ts.putTag(TagBoolFalse)
	}
}

// PutDouble appends a big-endian IEEE-754 double record.
func (ts *TagStruct) PutDouble(v float64) {
	ts.putTag(TagDouble)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	ts.buf.Append(b[:])
}

// PutString appends a length-prefixed, NUL-terminated UTF-8 string record.
// A nil s encodes as the null-string sentinel tag with no body.
func (ts *TagStruct) PutString(s *string) {
	if s == nil {
		ts.putTag(TagNullStr)
		return
	}
	ts.putTag(TagString)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(*s)))
	ts.buf.Append(lenBuf[:])
	ts.buf.Append([]byte(*s))
	ts.buf.Append([]byte{0})
}

// PutBytes appends a u32-length-prefixed raw byte-array record.
func (ts *TagStruct) PutBytes(p []byte) {
	ts.putTag(TagByteArray)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(p)))
	ts.buf.Append(lenBuf[:])
	ts.buf.Append(p)
}

// PutSHMRef appends a shared-memory-block reference record.
func (ts *TagStruct) PutSHMRef(ref SHMRef) {
	ts.putTag(TagSHMRef)
	var b [20]byte
	binary.BigEndian.PutUint32(b[0:4], ref.ID)
	binary.BigEndian.PutUint64(b[4:12], ref.Offset)
	binary.BigEndian.PutUint64(b[12:20], ref.Length)
	ts.buf.Append(b[:])
}

// PutArbitrary appends an opaque, implementation-defined byte payload
// under the Arbitrary tag. Per spec.md §9, this is encoded as plain bytes,
// not as a general polymorphic value — readers that don't understand the
// producer's convention can still skip it via its announced length.
func (ts *TagStruct) PutArbitrary(p []byte) {
	ts.putTag(TagArbitrary)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(p)))
	ts.buf.Append(lenBuf[:])
	ts.buf.Append(p)
}

// ============================================================================
// Readers
// ============================================================================

// peekTag returns the tag byte at the cursor without advancing, failing
// with KindTruncated if no byte remains.
func (ts *TagStruct) peekTag() (Tag, error) {
	data := ts.buf.Data()
	if ts.cursor >= len(data) {
		return 0, increrr.New(increrr.KindTruncated, "no more tags")
	}
	return Tag(data[ts.cursor]), nil
}

// wantTag verifies the tag at the cursor matches one of want, advancing
// past the tag byte on success. On a type mismatch the cursor is left
// unmoved, satisfying spec.md §4.4's peek contract.
func (ts *TagStruct) wantTag(want ...Tag) (Tag, error) {
	got, err := ts.peekTag()
	if err != nil {
		return 0, err
	}
	for _, w := range want {
		if got == w {
			ts.cursor++
			return got, nil
		}
	}
	return 0, increrr.New(increrr.KindTypeMismatch, "tag "+got.String()+" does not match expected type")
}

func (ts *TagStruct) readBytes(n int) ([]byte, error) {
	data := ts.buf.Data()
	if ts.cursor+n > len(data) {
		return nil, increrr.New(increrr.KindTruncated, "record runs past end of buffer")
	}
	out := data[ts.cursor : ts.cursor+n]
	ts.cursor += n
	return out, nil
}

// ReadU32 reads a U32 record.
func (ts *TagStruct) ReadU32() (uint32, error) {
	save := ts.cursor
	if _, err := ts.wantTag(TagU32); err != nil {
		return 0, err
	}
	b, err := ts.readBytes(4)
	if err != nil {
		ts.cursor = save
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadU64 reads a U64 record.
func (ts *TagStruct) ReadU64() (uint64, error) {
	save := ts.cursor
	if _, err := ts.wantTag(TagU64); err != nil {
		return 0, err
	}
	b, err := ts.readBytes(8)
	if err != nil {
		ts.cursor = save
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadS64 reads an S64 record.
func (ts *TagStruct) ReadS64() (int64, error) {
	save := ts.cursor
	if _, err := ts.wantTag(TagS64); err != nil {
		return 0, err
	}
	b, err := ts.readBytes(8)
	if err != nil {
		ts.cursor = save
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// ReadU8 reads a U8 record.
func (ts *TagStruct) ReadU8() (uint8, error) {
	save := ts.cursor
	if _, err := ts.wantTag(TagU8); err != nil {
		return 0, err
	}
	b, err := ts.readBytes(1)
	if err != nil {
		ts.cursor = save
		return 0, err
	}
	return b[0], nil
}

// ReadBool reads a boolean record.
func (ts *TagStruct) ReadBool() (bool, error) {
	got, err := ts.wantTag(TagBoolTrue, TagBoolFalse)
	if err != nil {
		return false, err
	}
	return got == TagBoolTrue, nil
}

// ReadDouble reads a double record.
func (ts *TagStruct) ReadDouble() (float64, error) {
	save := ts.cursor
	if _, err := ts.wantTag(TagDouble); err != nil {
		return 0, err
	}
	b, err := ts.readBytes(8)
	if err != nil {
		ts.cursor = save
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

// ReadString reads a string record, returning (nil, nil) for a null string.
func (ts *TagStruct) ReadString() (*string, error) {
	save := ts.cursor
	got, err := ts.wantTag(TagString, TagNullStr)
	if err != nil {
		return nil, err
	}
	if got == TagNullStr {
		return nil, nil
	}
	lenBytes, err := ts.readBytes(4)
	if err != nil {
		ts.cursor = save
		return nil, err
	}
	n := int(binary.BigEndian.Uint32(lenBytes))
	body, err := ts.readBytes(n + 1) // +1 for the NUL terminator
	if err != nil {
		ts.cursor = save
		return nil, err
	}
	s := string(body[:n])
	return &s, nil
}

// ReadBytes reads a byte-array record.
func (ts *TagStruct) ReadBytes() ([]byte, error) {
	save := ts.cursor
	if _, err := ts.wantTag(TagByteArray); err != nil {
		return nil, err
	}
	lenBytes, err := ts.readBytes(4)
	if err != nil {
		ts.cursor = save
		return nil, err
	}
	n := int(binary.BigEndian.Uint32(lenBytes))
	body, err := ts.readBytes(n)
	if err != nil {
		ts.cursor = save
		return nil, err
	}
	out := make([]byte, n)
	copy(out, body)
	return out, nil
}

// ReadSHMRef reads a shared-memory-block reference record.
func (ts *TagStruct) ReadSHMRef() (SHMRef, error) {
	save := ts.cursor
	if _, err := ts.wantTag(TagSHMRef); err != nil {
		return SHMRef{}, err
	}
	b, err := ts.readBytes(20)
	if err != nil {
		ts.cursor = save
		return SHMRef{}, err
	}
	return SHMRef{
		ID:     binary.BigEndian.Uint32(b[0:4]),
		Offset: binary.BigEndian.Uint64(b[4:12]),
		Length: binary.BigEndian.Uint64(b[12:20]),
	}, nil
}

// ReadArbitrary reads an opaque Arbitrary-tagged byte payload.
func (ts *TagStruct) ReadArbitrary() ([]byte, error) {
	save := ts.cursor
	if _, err := ts.wantTag(TagArbitrary); err != nil {
		return nil, err
	}
	lenBytes, err := ts.readBytes(4)
	if err != nil {
		ts.cursor = save
		return nil, err
	}
	n := int(binary.BigEndian.Uint32(lenBytes))
	body, err := ts.readBytes(n)
	if err != nil {
		ts.cursor = save
		return nil, err
	}
	out := make([]byte, n)
	copy(out, body)
	return out, nil
}

// PeekTag returns the tag of the next record without consuming it, or an
// error if the struct is exhausted. Callers may use this to decide which
// typed Read method to call, or to skip an unrecognized tag by reading its
// announced length from the raw bytes directly.
func (ts *TagStruct) PeekTag() (Tag, error) {
	return ts.peekTag()
}
