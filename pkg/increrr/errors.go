// Package increrr defines the error taxonomy shared by the INC protocol
// stack: a closed set of Kind values (one per row of the error table in
// the protocol design) plus a typed Error that callers can branch on with
// errors.Is and errors.As instead of comparing against ad-hoc sentinels.
package increrr

import (
	"errors"
	"fmt"
)

// Kind identifies which row of the protocol's error taxonomy an Error
// belongs to. Framing and protocol code branch on Kind to decide whether
// to close the connection, fail one message, or just suspend.
type Kind int

const (
	// KindBadMagic: the framing layer read a header whose magic field did
	// not match incmsg.Magic. The connection must be closed.
	KindBadMagic Kind = iota

	// KindTooLarge: a declared payload length exceeded the configured
	// maximum message size. The connection must be closed.
	KindTooLarge

	// KindTruncated: a TagStruct record's declared length ran past the end
	// of the available bytes. Fails the containing message only.
	KindTruncated

	// KindTypeMismatch: a TagStruct read requested a tag type that did not
	// match the tag actually present. The read cursor is left unmoved.
	KindTypeMismatch

	// KindInvalidUTF8: the codec encountered a byte sequence that does not
	// decode as valid UTF-8 (or UTF-16). Replaced with U+FFFD or U+0000 per
	// the active Converter flags; this Kind exists for callers who want to
	// observe that a replacement occurred.
	KindInvalidUTF8

	// KindBadSHMRef: a message flagged SHM_DATA referenced a shared-memory
	// block id the receiver has not attached. Fails the message only.
	KindBadSHMRef

	// KindVersionUnsupported: the handshake's advertised protocol version
	// was rejected by the peer's version policy.
	KindVersionUnsupported

	// KindTransportClosed: the underlying transport reported a hard close.
	// All pending operations on the connection fail with this Kind.
	KindTransportClosed

	// KindQueueFull: the outbound write queue reached its soft cap. This is
	// back-pressure, not data loss — Send should block/suspend, not drop.
	KindQueueFull

	// KindWouldBlock: the transport has no data/room right now. Not a true
	// error; driving code should wait for the next readiness event.
	KindWouldBlock
)

func (k Kind) String() string {
	switch k {
	case KindBadMagic:
		return "bad_magic"
	case KindTooLarge:
		return "too_large"
	case KindTruncated:
		return "truncated"
	case KindTypeMismatch:
		return "type_mismatch"
	case KindInvalidUTF8:
		return "invalid_utf8"
	case KindBadSHMRef:
		return "bad_shm_ref"
	case KindVersionUnsupported:
		return "version_unsupported"
	case KindTransportClosed:
		return "transport_closed"
	case KindQueueFull:
		return "queue_full"
	case KindWouldBlock:
		return "would_block"
	default:
		return "unknown"
	}
}

// Fatal reports whether errors of this Kind require the connection hosting
// them to be closed (BadMagic, TooLarge, VersionUnsupported, TransportClosed)
// as opposed to failing only the message/operation that triggered them.
func (k Kind) Fatal() bool {
	switch k {
	case KindBadMagic, KindTooLarge, KindVersionUnsupported, KindTransportClosed:
		return true
	default:
		return false
	}
}

// Error wraps an underlying error with the Kind that classifies it.
type Error struct {
	Kind Kind
	Err  error
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf("%s", msg)}
}

func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is makes errors.Is match two *Error values that share a Kind.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error,
// returning ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
