// Package incframe reassembles whole INC messages from a byte stream and
// serializes them back onto one, mirroring the bounded input/output queue
// the protocol layer drives. The Reader is a push-based state machine:
// callers feed it whatever bytes the transport makes available, in
// whatever chunk sizes arrive, and it reports back zero or more completed
// messages plus, on a corrupt stream, a fatal error.
package incframe

import (
	"github.com/marmos91/incd/pkg/incbuf"
	"github.com/marmos91/incd/pkg/incmsg"
	"github.com/marmos91/incd/pkg/tagstruct"
)

// readState names where the reassembly state machine currently sits.
type readState int

const (
	stateWaitHeader readState = iota
	stateReadPayload
	stateError
)

// Reader reassembles a stream of bytes into whole incmsg.Message values.
// It is not safe for concurrent use; a single connection owns one Reader.
type Reader struct {
	maxMessageSize uint32

	state   readState
	header  []byte // staging buffer for the 24-byte header, grows to HeaderSize
	decoded incmsg.Header
	payload incbuf.Buffer

	err error
}

// NewReader returns a Reader that rejects any declared payload length
// greater than maxMessageSize.
func NewReader(maxMessageSize uint32) *Reader {
	return &Reader{maxMessageSize: maxMessageSize}
}

// Err returns the fatal error that put the reader into its terminal Error
// state, or nil if the reader is still live. Once set, the connection
// hosting this Reader must be closed; Feed continues to return this same
// error on every subsequent call.
func (r *Reader) Err() error {
	return r.err
}

// Feed appends p to the reassembly buffer and returns every message that
// became complete as a result. p may be any size, including a single byte
// — reassembly does not assume chunk boundaries align with message
// boundaries. Once Feed returns a non-nil error the reader is terminal:
// the caller must close the underlying transport and stop feeding it.
func (r *Reader) Feed(p []byte) ([]*incmsg.Message, error) {
	if r.state == stateError {
		return nil, r.err
	}

	var ready []*incmsg.Message
	for len(p) > 0 {
		switch r.state {
		case stateWaitHeader:
			n := incmsg.HeaderSize - len(r.header)
			if n > len(p) {
				n = len(p)
			}
			r.header = append(r.header, p[:n]...)
			p = p[n:]

			if len(r.header) < incmsg.HeaderSize {
				continue
			}

			hdr, err := incmsg.DecodeHeader(r.header)
			if err != nil {
				r.fail(err)
				return ready, r.err
			}
			if err := hdr.Validate(r.maxMessageSize); err != nil {
				r.fail(err)
				return ready, r.err
			}

			r.decoded = hdr
			r.payload = incbuf.New(int(hdr.PayloadLength))
			r.state = stateReadPayload
			r.header = r.header[:0]

			if hdr.PayloadLength == 0 {
				ready = append(ready, r.finishMessage())
				r.state = stateWaitHeader
			}

		case stateReadPayload:
			remaining := int(r.decoded.PayloadLength) - r.payload.Len()
			n := remaining
			if n > len(p) {
				n = len(p)
			}
			r.payload.Append(p[:n])
			p = p[n:]

			if r.payload.Len() == int(r.decoded.PayloadLength) {
				ready = append(ready, r.finishMessage())
				r.state = stateWaitHeader
			}

		case stateError:
			return ready, r.err
		}
	}

	return ready, nil
}

func (r *Reader) finishMessage() *incmsg.Message {
	ts := tagstructFromPayload(r.payload)
	msg := &incmsg.Message{Header: r.decoded, Payload: ts}
	r.payload = incbuf.Buffer{}
	return msg
}

func (r *Reader) fail(err error) {
	r.state = stateError
	r.err = err
}

// tagstructFromPayload decodes the accumulated payload bytes into a
// TagStruct for reading. Callers whose message carries FlagSHMData
// interpret these same bytes as a packed SHMRef instead (see incproto).
func tagstructFromPayload(buf incbuf.Buffer) *tagstruct.TagStruct {
	return tagstruct.FromBytes(buf.Data())
}
