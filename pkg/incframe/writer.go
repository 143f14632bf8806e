package incframe

import (
	"github.com/marmos91/incd/pkg/incmsg"
)

// pendingFrame is one (header, payload) pair awaiting transmission, with a
// byte offset tracking how much of it has already been written — the
// partial-write bookkeeping a non-blocking transport requires.
type pendingFrame struct {
	header  []byte
	payload []byte
	offset  int // bytes of header+payload already written
}

func (f *pendingFrame) total() int {
	return len(f.header) + len(f.payload)
}

// remaining returns the unwritten tail of the combined header+payload,
// without concatenating them into one allocation.
func (f *pendingFrame) remaining() (head, tail []byte) {
	if f.offset < len(f.header) {
		return f.header[f.offset:], f.payload
	}
	return nil, f.payload[f.offset-len(f.header):]
}

// Writer is a FIFO of outbound frames, each serialized as header bytes
// followed by payload bytes. It does not own the transport: callers drive
// it by calling Drain with a write function, which Writer calls as many
// times as the transport accepts without blocking. Ordering is
// enqueue-order: bytes of an earlier Send always precede a later one.
type Writer struct {
	queue []*pendingFrame
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Pending reports how many frames are queued (including one partially
// written), for back-pressure decisions by the protocol layer.
func (w *Writer) Pending() int {
	return len(w.queue)
}

// Enqueue appends msg's header and payload bytes to the send queue.
func (w *Writer) Enqueue(msg *incmsg.Message) {
	w.queue = append(w.queue, &pendingFrame{
		header:  msg.HeaderBytes(),
		payload: msg.Payload.Bytes(),
	})
}

// EnqueueRaw appends a pre-serialized (header, payload) pair, used by the
// SHM fast path where payload is a packed SHMRef rather than TagStruct
// bytes and by the framing layer's own tests.
func (w *Writer) EnqueueRaw(header, payload []byte) {
	w.queue = append(w.queue, &pendingFrame{header: header, payload: payload})
}

// WriteFunc attempts to write p, returning the number of bytes actually
// written. A short write (n < len(p)) is treated the same as WouldBlock:
// Drain stops and retains the remainder for the next call.
type WriteFunc func(p []byte) (n int, err error)

// Drain attempts to flush the queue by repeatedly calling write. It stops
// when the queue empties, write returns a short count (transport applied
// back-pressure), or write returns an error. Drain never drops a frame:
// a partially written frame remains at the head of the queue with its
// offset advanced, ready for the next Drain call.
func (w *Writer) Drain(write WriteFunc) error {
	for len(w.queue) > 0 {
		f := w.queue[0]
		head, tail := f.remaining()

		if len(head) > 0 {
			n, err := write(head)
			f.offset += n
			if err != nil {
				return err
			}
			if n < len(head) {
				return nil // short write: back-pressure, retry later
			}
			head, tail = f.remaining()
		}

		if len(tail) > 0 {
			n, err := write(tail)
			f.offset += n
			if err != nil {
				return err
			}
			if n < len(tail) {
				return nil
			}
		}

		// frame fully written
		w.queue = w.queue[1:]
	}
	return nil
}
