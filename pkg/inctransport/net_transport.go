// Package inctransport adapts a real net.Conn (TCP or Unix domain socket)
// to incproto.Transport. net.Conn's Read/Write block; the protocol layer
// requires they don't. A background reader goroutine turns blocking reads
// into a buffered queue drained non-blockingly by Read, and Write appends to
// an outbound queue drained by a background writer goroutine, so the
// single-goroutine-per-connection driving loop in incproto never blocks on
// socket I/O.
package inctransport

import (
	"io"
	"net"
	"sync"

	"github.com/marmos91/incd/pkg/incproto"
)

// outboundQueueCap bounds buffered-but-not-yet-written bytes before Write
// starts rejecting further writes with incproto.ErrWouldBlock, giving the
// protocol layer real back-pressure instead of unbounded memory growth.
const outboundQueueCap = 16 * 1024 * 1024

// NetTransport is an incproto.Transport backed by a net.Conn.
type NetTransport struct {
	conn net.Conn
	role incproto.Role

	events chan incproto.Event

	mu        sync.Mutex
	connected bool
	inbound   []byte
	outbound  []byte
	closeErr  error
	closed    bool

	writerWake chan struct{}
}

// New wraps conn as an incproto.Transport for the given role and starts its
// background reader and writer goroutines. The caller owns conn's lifecycle
// via Close.
func New(conn net.Conn, role incproto.Role) *NetTransport {
	t := &NetTransport{
		conn:       conn,
		role:       role,
		connected:  true,
		events:     make(chan incproto.Event, 32),
		writerWake: make(chan struct{}, 1),
	}
	go t.readLoop()
	go t.writeLoop()
	return t
}

func (t *NetTransport) Role() incproto.Role { return t.role }

func (t *NetTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *NetTransport) BytesAvailable() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return uint64(len(t.inbound))
}

// Read drains whatever has been buffered by the background reader. It never
// blocks: with nothing buffered it returns incproto.ErrWouldBlock, unless the
// peer has already closed the connection and the buffer is empty, in which
// case it returns io.EOF.
func (t *NetTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.inbound) == 0 {
		if !t.connected {
			return 0, io.EOF
		}
		return 0, incproto.ErrWouldBlock
	}
	n := copy(p, t.inbound)
	t.inbound = t.inbound[n:]
	return n, nil
}

// Write enqueues p for the background writer and returns immediately. A full
// queue returns incproto.ErrWouldBlock rather than growing unbounded; the
// caller retries after a later EventReadyWrite.
func (t *NetTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return 0, io.EOF
	}
	if len(t.outbound)+len(p) > outboundQueueCap {
		t.mu.Unlock()
		return 0, incproto.ErrWouldBlock
	}
	t.outbound = append(t.outbound, p...)
	t.mu.Unlock()

	select {
	case t.writerWake <- struct{}{}:
	default:
	}
	return len(p), nil
}

func (t *NetTransport) Ready() <-chan incproto.Event { return t.events }

// Close shuts down the underlying connection and stops both goroutines.
func (t *NetTransport) Close() error {
	t.mu.Lock()
	already := t.closed
	t.closed = true
	t.connected = false
	t.mu.Unlock()
	if already {
		return nil
	}
	close(t.writerWake)
	return t.conn.Close()
}

func (t *NetTransport) emit(ev incproto.Event) {
	select {
	case t.events <- ev:
	default:
	}
}

func (t *NetTransport) readLoop() {
	t.emit(incproto.Event{Kind: incproto.EventConnected})
	buf := make([]byte, 64*1024)
	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			t.mu.Lock()
			t.inbound = append(t.inbound, buf[:n]...)
			t.mu.Unlock()
			t.emit(incproto.Event{Kind: incproto.EventReadyRead})
		}
		if err != nil {
			t.mu.Lock()
			t.connected = false
			t.closeErr = err
			t.mu.Unlock()
			t.emit(incproto.Event{Kind: incproto.EventReadyRead})
			t.emit(incproto.Event{Kind: incproto.EventDisconnected})
			return
		}
	}
}

func (t *NetTransport) writeLoop() {
	for range t.writerWake {
		for {
			t.mu.Lock()
			if len(t.outbound) == 0 {
				t.mu.Unlock()
				break
			}
			chunk := t.outbound
			t.outbound = nil
			t.mu.Unlock()

			if _, err := t.conn.Write(chunk); err != nil {
				t.mu.Lock()
				t.connected = false
				t.closeErr = err
				t.mu.Unlock()
				return
			}
			t.emit(incproto.Event{Kind: incproto.EventReadyWrite})
		}
	}
}
