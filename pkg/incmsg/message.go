// Package incmsg implements the INC wire message: a fixed 24-byte,
// big-endian header followed by a TagStruct-encoded (or, under the SHM
// fast path, raw) payload.
package incmsg

import (
	"encoding/binary"

	"github.com/marmos91/incd/pkg/increrr"
	"github.com/marmos91/incd/pkg/tagstruct"
)

// Magic identifies the start of an INC message header: "INC\0".
const Magic uint32 = 0x494E4300

// HeaderSize is the fixed on-wire size of a message header.
const HeaderSize = 24

// MaxMessageSize bounds payloadLength; framing closes the connection if a
// declared length exceeds it. Chosen generously for control-plane and bulk
// binary traffic alike; callers needing a tighter cap set it via ServerConfig.
const MaxMessageSize = 64 * 1024 * 1024

// Type identifies the kind of an INC message.
type Type uint16

const (
	TypeInvalid        Type = 0
	TypeHandshake      Type = 1
	TypeHandshakeAck   Type = 2
	TypeAuth           Type = 3
	TypeAuthAck        Type = 4
	TypeMethodCall     Type = 10
	TypeMethodReply    Type = 11
	TypeEvent          Type = 20
	TypeSubscribe      Type = 21
	TypeUnsubscribe    Type = 22
	TypeSubscribeAck   Type = 23
	TypeUnsubscribeAck Type = 24
	TypeStreamOpen     Type = 30
	TypeStreamClose    Type = 31
	TypeStreamData     Type = 32
	TypeBinaryData     Type = 33
	TypeMemfdAttach    Type = 34
	TypePing           Type = 40
	TypePong           Type = 41
)

func (t Type) String() string {
	switch t {
	case TypeInvalid:
		return "INVALID"
	case TypeHandshake:
		return "HANDSHAKE"
	case TypeHandshakeAck:
		return "HANDSHAKE_ACK"
	case TypeAuth:
		return "AUTH"
	case TypeAuthAck:
		return "AUTH_ACK"
	case TypeMethodCall:
		return "METHOD_CALL"
	case TypeMethodReply:
		return "METHOD_REPLY"
	case TypeEvent:
		return "EVENT"
	case TypeSubscribe:
		return "SUBSCRIBE"
	case TypeUnsubscribe:
		return "UNSUBSCRIBE"
	case TypeSubscribeAck:
		return "SUBSCRIBE_ACK"
	case TypeUnsubscribeAck:
		return "UNSUBSCRIBE_ACK"
	case TypeStreamOpen:
		return "STREAM_OPEN"
	case TypeStreamClose:
		return "STREAM_CLOSE"
	case TypeStreamData:
		return "STREAM_DATA"
	case TypeBinaryData:
		return "BINARY_DATA"
	case TypeMemfdAttach:
		return "MEMFD_ATTACH"
	case TypePing:
		return "PING"
	case TypePong:
		return "PONG"
	default:
		return "UNKNOWN"
	}
}

// Flags is a bitmask carried in the header's flags field.
type Flags uint32

const (
	FlagNone       Flags = 0
	FlagSHMData    Flags = 1 << 0
	FlagCompressed Flags = 1 << 1
)

// Has reports whether all bits of other are set in f.
func (f Flags) Has(other Flags) bool { return f&other == other }

// Set returns f with other's bits added.
func (f Flags) Set(other Flags) Flags { return f | other }

// Clear returns f with other's bits removed.
func (f Flags) Clear(other Flags) Flags { return f &^ other }

// Header is the fixed 24-byte message header. All fields are big-endian
// on the wire regardless of host byte order.
type Header struct {
	Magic           uint32
	ProtocolVersion uint16
	PayloadVersion  uint16
	PayloadLength   uint32
	Type            Type
	ChannelID       uint16
	SequenceNumber  uint32
	Flags           Flags
}

// CurrentProtocolVersion is the version a freshly constructed Message
// advertises until a handshake negotiates otherwise.
const CurrentProtocolVersion uint16 = 1

// CurrentPayloadVersion is the TagStruct payload encoding version a freshly
// constructed Message carries.
const CurrentPayloadVersion uint16 = 1

// Message is a complete INC message: header plus payload. Payload holds the
// encoded TagStruct bytes for ordinary messages, or the SHMRef encoding when
// Header.Flags has FlagSHMData set (see tagstruct.SHMRef and pkg/incproto's
// binary fast path).
type Message struct {
	Header  Header
	Payload *tagstruct.TagStruct
}

// New returns a Message of the given type and sequence number, with
// sensible defaults: current protocol version, current payload version,
// channel 0, no flags, and an empty payload ready for writing.
func New(t Type, seq uint32) *Message {
	return &Message{
		Header: Header{
			Magic:           Magic,
			ProtocolVersion: CurrentProtocolVersion,
			PayloadVersion:  CurrentPayloadVersion,
			Type:            t,
			SequenceNumber:  seq,
		},
		Payload: tagstruct.New(),
	}
}

// HeaderBytes encodes the header as its 24-byte wire form. PayloadLength is
// recomputed from the current Payload so callers never have to keep it in
// sync by hand.
func (m *Message) HeaderBytes() []byte {
	b := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(b[0:4], m.Header.Magic)
	binary.BigEndian.PutUint16(b[4:6], m.Header.ProtocolVersion)
	binary.BigEndian.PutUint16(b[6:8], m.Header.PayloadVersion)
	binary.BigEndian.PutUint32(b[8:12], uint32(m.payloadLen()))
	binary.BigEndian.PutUint16(b[12:14], uint16(m.Header.Type))
	binary.BigEndian.PutUint16(b[14:16], m.Header.ChannelID)
	binary.BigEndian.PutUint32(b[16:20], m.Header.SequenceNumber)
	binary.BigEndian.PutUint32(b[20:24], uint32(m.Header.Flags))
	return b
}

// payloadLen returns the byte count HeaderBytes should declare. Ordinarily
// this is the live TagStruct payload's length; a nil Payload means the
// caller is sending an out-of-band body (e.g. the SHM fast path's packed
// SHMRef, which is not TagStruct-encoded) and has set Header.PayloadLength
// explicitly to match the bytes it will write after the header.
func (m *Message) payloadLen() int {
	if m.Payload == nil {
		return int(m.Header.PayloadLength)
	}
	return m.Payload.Len()
}

// DecodeHeader parses a 24-byte header. It does not validate magic or
// length; call (*Header).Validate for that.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, increrr.New(increrr.KindTruncated, "header shorter than 24 bytes")
	}
	return Header{
		Magic:           binary.BigEndian.Uint32(b[0:4]),
		ProtocolVersion: binary.BigEndian.Uint16(b[4:6]),
		PayloadVersion:  binary.BigEndian.Uint16(b[6:8]),
		PayloadLength:   binary.BigEndian.Uint32(b[8:12]),
		Type:            Type(binary.BigEndian.Uint16(b[12:14])),
		ChannelID:       binary.BigEndian.Uint16(b[14:16]),
		SequenceNumber:  binary.BigEndian.Uint32(b[16:20]),
		Flags:           Flags(binary.BigEndian.Uint32(b[20:24])),
	}, nil
}

// Validate checks the header against the protocol's structural invariants:
// a recognized magic, a payload length within maxMessageSize, and a type
// that is not Invalid (which the receiver must treat as BadMagic-equivalent
// per the wire spec's open question (b)).
func (h Header) Validate(maxMessageSize uint32) error {
	if h.Magic != Magic || h.Type == TypeInvalid {
		return increrr.New(increrr.KindBadMagic, "bad magic or invalid message type")
	}
	if h.PayloadLength > maxMessageSize {
		return increrr.New(increrr.KindTooLarge, "declared payload length exceeds configured maximum")
	}
	return nil
}

// IsValid reports whether m's header passes Validate against MaxMessageSize.
func (m *Message) IsValid() bool {
	return m.Header.Validate(MaxMessageSize) == nil
}
