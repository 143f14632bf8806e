package incproto

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/marmos91/incd/internal/logger"
	"github.com/marmos91/incd/pkg/incbuf"
	"github.com/marmos91/incd/pkg/increrr"
	"github.com/marmos91/incd/pkg/incframe"
	"github.com/marmos91/incd/pkg/incmetrics"
	"github.com/marmos91/incd/pkg/incmsg"
	"github.com/marmos91/incd/pkg/incshm"
	"github.com/marmos91/incd/pkg/tagstruct"
)

// DefaultSHMThreshold is the binary payload size, in bytes, at or above
// which SendBinary prefers the shared-memory fast path over an inline
// BINARY_DATA payload, when SHM is available on the connection.
const DefaultSHMThreshold = 64 * 1024

// HandshakePolicy decides, from the server's side, whether to accept a
// client's advertised protocol version and which version to negotiate.
// It is the Go analogue of ServerConfig's versionPolicy knob (§4.8);
// incconfig adapts its VersionPolicy enum into one of these so incproto
// has no dependency on the config package.
type HandshakePolicy func(clientVersion uint16) (negotiated uint16, accept bool)

// AcceptAny is a HandshakePolicy matching spec.md's Permissive policy:
// any client version is accepted, negotiating to whichever of the two is
// lower.
func AcceptAny(clientVersion uint16) (uint16, bool) {
	if clientVersion < incmsg.CurrentProtocolVersion {
		return clientVersion, true
	}
	return incmsg.CurrentProtocolVersion, true
}

// Connection drives one INC session end to end: sequence allocation, the
// pending-operations table, handshake negotiation, ping/pong liveness,
// and the SHM fast path, over a caller-supplied Transport. A Connection
// is owned by exactly one goroutine (§5) — none of its methods are safe
// to call concurrently except NextSequence, which is the one piece of
// state an implementation may legitimately touch from other goroutines.
type Connection struct {
	transport Transport
	role      Role

	// id identifies this connection in logs and metrics labels; it never
	// appears on the wire (the SHM fast path's id stays a wire uint32, §3).
	id string

	seq atomic.Uint32

	reader *incframe.Reader
	writer *incframe.Writer

	pending map[uint32]*Operation

	shm          *incshm.Registry
	shmThreshold int

	handshakeDone   bool
	handshakePolicy HandshakePolicy
	queuedBeforeAck []*incmsg.Message

	onMessage      func(*incmsg.Message)
	onBinaryData   func(channelID uint16, data []byte)
	onConnected    func()
	onDisconnected func(error)

	// retainedSHM is the id of an inbound SHM block whose borrowed view was
	// handed to onBinaryData during the previous dispatch. Per §5's chosen
	// retention contract it stays attached until the connection reads its
	// next message, at which point releaseRetainedSHM detaches it.
	retainedSHM uint32
	hasRetained bool

	// closed guards teardown's transport.Close() call so a BadMagic/TooLarge
	// framing error (which the reader keeps re-reporting, see incframe.Reader)
	// cannot close the transport more than once.
	closed bool

	metrics *incmetrics.Metrics
}

// Option configures a Connection at construction time.
type Option func(*Connection)

// WithMaxMessageSize overrides the framing layer's declared-length cap.
func WithMaxMessageSize(n uint32) Option {
	return func(c *Connection) { c.reader = incframe.NewReader(n) }
}

// WithSHMThreshold overrides DefaultSHMThreshold.
func WithSHMThreshold(n int) Option {
	return func(c *Connection) { c.shmThreshold = n }
}

// WithSHMDisabled disables the shared-memory fast path entirely; every
// SendBinary call falls back to an inline payload regardless of size.
func WithSHMDisabled() Option {
	return func(c *Connection) { c.shm = incshm.NewRegistry(true) }
}

// WithSHMRegistry overrides the connection's SHM registry. A real host
// transport normally passes the underlying memfd to its peer out of band
// (e.g. SCM_RIGHTS over a Unix domain socket) so the peer can attach the
// same mapping by id; this module's byte-oriented Transport abstraction
// does not model fd-passing, so a host wiring two Connections in the same
// process (or with its own side channel) supplies a shared Registry here
// instead of each Connection defaulting to its own.
func WithSHMRegistry(r *incshm.Registry) Option {
	return func(c *Connection) { c.shm = r }
}

// WithMetrics attaches m, instrumenting message counts, framing errors,
// pending-operation depth, and live SHM block count. A nil m (the
// zero value of *incmetrics.Metrics, e.g. when metrics are disabled
// globally) is accepted and every recording call becomes a no-op.
func WithMetrics(m *incmetrics.Metrics) Option {
	return func(c *Connection) { c.metrics = m }
}

// WithHandshakePolicy sets the policy consulted when this connection, as
// server, receives a HANDSHAKE from its peer. The default is AcceptAny.
func WithHandshakePolicy(p HandshakePolicy) Option {
	return func(c *Connection) { c.handshakePolicy = p }
}

// NewConnection returns a Connection ready to drive role over transport.
// A client-role connection must call Handshake() before any other Send;
// a server-role connection responds to the peer's HANDSHAKE automatically
// as messages are processed.
func NewConnection(transport Transport, opts ...Option) *Connection {
	c := &Connection{
		transport:       transport,
		role:            transport.Role(),
		id:              uuid.NewString(),
		reader:          incframe.NewReader(incmsg.MaxMessageSize),
		writer:          incframe.NewWriter(),
		pending:         make(map[uint32]*Operation),
		shm:             incshm.NewRegistry(false),
		shmThreshold:    DefaultSHMThreshold,
		handshakePolicy: AcceptAny,
		handshakeDone:   transport.Role() == RoleServer, // server waits passively
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NextSequence returns the next value of this connection's monotonic
// sequence counter. It wraps at uint32's range; the pending-ops table
// prevents aliasing because the wrap interval vastly exceeds any realistic
// in-flight window (§5).
func (c *Connection) NextSequence() uint32 {
	return c.seq.Add(1)
}

// ID returns the connection's identifier, a v4 UUID minted at
// construction time for correlating log lines and metrics labels. It
// never appears on the wire.
func (c *Connection) ID() string {
	return c.id
}

// Role reports which side of the connection this is.
func (c *Connection) Role() Role {
	return c.role
}

// PendingCount returns the number of operations currently held in the
// pending-ops table, awaiting a matching reply.
func (c *Connection) PendingCount() int {
	return len(c.pending)
}

// OnMessage registers the callback invoked for every inbound message that
// is not itself consumed by handshake or ping/pong handling and is not a
// reply matched to a pending Operation.
func (c *Connection) OnMessage(cb func(*incmsg.Message)) { c.onMessage = cb }

// OnBinaryData registers the callback invoked for an inbound BINARY_DATA
// message, whether it arrived inline or via the SHM fast path. data is a
// borrowed view for an SHM-backed message (valid only until the
// connection's next inbound message per §5's retention choice, recorded
// in DESIGN.md) and an owned clone for an inline one.
func (c *Connection) OnBinaryData(cb func(channelID uint16, data []byte)) { c.onBinaryData = cb }

// OnConnected stores a callback for the transport's EventConnected.
// Connection does not read the transport's Ready channel, and none of its
// methods invoke this callback.
func (c *Connection) OnConnected(cb func()) { c.onConnected = cb }

// OnDisconnected registers the callback invoked when the connection tears
// down: on a transport read error (including io.EOF after the peer
// closes), a fatal framing error, or a rejected handshake. Connection does
// not read the transport's Ready channel, so EventDisconnected alone does
// not fire it. All pending operations are failed with StateCancelled
// before this fires.
func (c *Connection) OnDisconnected(cb func(error)) { c.onDisconnected = cb }

// Handshake sends the initial HANDSHAKE as client. Until the matching
// HANDSHAKE_ACK is received, all other Send/SendBinary calls are queued
// in order rather than written to the transport.
func (c *Connection) Handshake() (*Operation, error) {
	msg := incmsg.New(incmsg.TypeHandshake, c.NextSequence())
	msg.Payload.PutU32(uint32(incmsg.CurrentProtocolVersion))
	return c.enqueue(msg, nil)
}

// Send enqueues msg for transmission, allocating a pending Operation if
// msg is a METHOD_CALL or a PING (the types expecting a matched reply) and
// invoking flush opportunistically. Until the handshake completes, msg is
// held in FIFO order rather than written.
func (c *Connection) Send(msg *incmsg.Message) (*Operation, error) {
	var onDone CompletionFunc
	return c.enqueue(msg, onDone)
}

// SendWithCompletion is Send, additionally registering a completion
// callback fired when the operation reaches a terminal state.
func (c *Connection) SendWithCompletion(msg *incmsg.Message, onDone CompletionFunc) (*Operation, error) {
	return c.enqueue(msg, onDone)
}

func (c *Connection) enqueue(msg *incmsg.Message, onDone CompletionFunc) (*Operation, error) {
	var op *Operation
	if expectsReply(msg.Header.Type) {
		op = &Operation{sequence: msg.Header.SequenceNumber, request: msg, state: StateQueued, onDone: onDone, conn: c}
		c.pending[op.sequence] = op
	}

	if !c.handshakeDone && msg.Header.Type != incmsg.TypeHandshake && msg.Header.Type != incmsg.TypeHandshakeAck {
		c.queuedBeforeAck = append(c.queuedBeforeAck, msg)
		return op, nil
	}

	c.writer.Enqueue(msg)
	c.metrics.RecordMessageSent(msg.Header.Type)
	if op != nil {
		op.state = StateInFlight
	}
	c.metrics.SetPendingOperations(len(c.pending))
	if err := c.Flush(); err != nil {
		return op, err
	}
	return op, nil
}

// SendBinary implements the binary fast path (§4.7): if SHM is available
// and len(data) is at or above the connection's shmThreshold, the data is
// copied into a new SHM block and a BINARY_DATA message whose only body is
// the block's packed 20-byte {id,offset,length} is sent instead of the raw
// bytes; otherwise the payload travels inline.
func (c *Connection) SendBinary(channelID uint16, data []byte) (*Operation, error) {
	msg := incmsg.New(incmsg.TypeBinaryData, c.NextSequence())
	msg.Header.ChannelID = channelID

	if len(data) >= c.shmThreshold {
		blk, err := c.shm.Create(len(data))
		if err == nil {
			c.metrics.AddSHMBlocksLive(1)
			if werr := blk.WriteAt(0, data); werr == nil {
				msg.Header.Flags = msg.Header.Flags.Set(incmsg.FlagSHMData)
				msg.Payload = nil
				op, sendErr := c.sendSHMRef(msg, blk.ID(), 0, uint64(len(data)))
				return op, sendErr
			}
			_ = blk.Detach()
			c.metrics.AddSHMBlocksLive(-1)
		}
		// SHM unavailable or failed: fall through to inline.
	}

	msg.Payload.PutBytes(data)
	return c.enqueue(msg, nil)
}

// sendSHMRef writes msg's header followed by the 20-byte packed SHMRef
// body directly (not a TagStruct-encoded record: §4.7 specifies the
// SHM_DATA payload is the packed triple itself, so the tag byte framing
// TagStruct otherwise uses does not apply here).
func (c *Connection) sendSHMRef(msg *incmsg.Message, id uint32, offset, length uint64) (*Operation, error) {
	body := make([]byte, 20)
	binary.BigEndian.PutUint32(body[0:4], id)
	binary.BigEndian.PutUint64(body[4:12], offset)
	binary.BigEndian.PutUint64(body[12:20], length)

	msg.Header.PayloadLength = uint32(len(body))
	if !c.handshakeDone {
		// carry the packed body as the payload so the queued message is
		// written with it once the handshake completes
		msg.Payload = tagstruct.FromBytes(body)
		c.queuedBeforeAck = append(c.queuedBeforeAck, msg)
		return nil, nil
	}
	c.writer.EnqueueRaw(msg.HeaderBytes(), body)
	c.metrics.RecordMessageSent(msg.Header.Type)
	return nil, c.Flush()
}

// Flush attempts to drain the outbound write queue to the transport,
// stopping (without error) on the first short write or ErrWouldBlock
// (back-pressure).
func (c *Connection) Flush() error {
	if err := c.writer.Drain(c.transport.Write); err != ErrWouldBlock {
		return err
	}
	return nil
}

// HandleReadable reads whatever bytes the transport currently makes
// available and processes every message that becomes complete as a
// result: handshake negotiation, ping/pong echo, reply matching against
// the pending-ops table, and otherwise dispatch to the registered
// OnMessage callback. A BadMagic/TooLarge framing error or a transport
// read error terminates the connection: all pending operations are
// failed with StateCancelled and OnDisconnected fires. Once the connection
// has closed its transport, HandleReadable returns nil without reading.
func (c *Connection) HandleReadable() error {
	buf := make([]byte, 64*1024)
	for {
		if c.closed {
			return nil
		}
		n, err := c.transport.Read(buf)
		if n > 0 {
			msgs, ferr := c.reader.Feed(buf[:n])
			for _, m := range msgs {
				c.dispatch(m)
			}
			if ferr != nil {
				if kind, ok := increrr.KindOf(ferr); ok {
					c.metrics.RecordFramingError(kind)
				}
				c.teardown(ferr)
				return ferr
			}
		}
		if err != nil {
			if err == ErrWouldBlock {
				return nil
			}
			c.teardown(increrr.Wrap(increrr.KindTransportClosed, err))
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// removePending deletes seq's entry from the pending-ops table, if present,
// and updates the pending-operations gauge. Called when an Operation is
// cancelled while still Queued or InFlight, so cancelling never leaks the
// table entry the way only dispatch/teardown used to reclaim it.
func (c *Connection) removePending(seq uint32) {
	if _, ok := c.pending[seq]; !ok {
		return
	}
	delete(c.pending, seq)
	c.metrics.SetPendingOperations(len(c.pending))
}

func (c *Connection) dispatch(msg *incmsg.Message) {
	c.releaseRetainedSHM()
	c.metrics.RecordMessageReceived(msg.Header.Type)

	switch msg.Header.Type {
	case incmsg.TypeHandshake:
		c.handleHandshake(msg)
		return
	case incmsg.TypeHandshakeAck:
		c.handleHandshakeAck(msg)
		return
	case incmsg.TypePing:
		c.handlePing(msg)
		return
	case incmsg.TypePong:
		c.handlePong(msg)
		return
	case incmsg.TypeBinaryData:
		c.handleBinaryData(msg)
		return
	case incmsg.TypeMethodReply:
		if op, ok := c.pending[msg.Header.SequenceNumber]; ok {
			delete(c.pending, msg.Header.SequenceNumber)
			c.metrics.SetPendingOperations(len(c.pending))
			op.complete(msg)
			return
		}
		// unmatched reply: logged and dropped
		logger.Debug("dropping unmatched METHOD_REPLY",
			logger.KeyConnectionID, c.id, logger.KeySequenceNumber, msg.Header.SequenceNumber)
		return
	}

	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

func (c *Connection) handleHandshake(msg *incmsg.Message) {
	clientVersion, _ := msg.Payload.ReadU32()
	negotiated, accept := c.handshakePolicy(uint16(clientVersion))

	ack := incmsg.New(incmsg.TypeHandshakeAck, msg.Header.SequenceNumber)
	if !accept {
		ack.Payload.PutBool(false)
		c.writer.Enqueue(ack)
		_ = c.Flush()
		c.teardown(increrr.New(increrr.KindVersionUnsupported, "client protocol version rejected"))
		return
	}

	ack.Payload.PutBool(true)
	ack.Payload.PutU32(uint32(negotiated))
	c.writer.Enqueue(ack)
	c.handshakeDone = true
	_ = c.Flush()
	c.drainQueuedBeforeAck()
}

func (c *Connection) handleHandshakeAck(msg *incmsg.Message) {
	accepted, _ := msg.Payload.ReadBool()
	if !accepted {
		c.teardown(increrr.New(increrr.KindVersionUnsupported, "handshake rejected by peer"))
		return
	}
	c.handshakeDone = true
	c.drainQueuedBeforeAck()
}

func (c *Connection) drainQueuedBeforeAck() {
	queued := c.queuedBeforeAck
	c.queuedBeforeAck = nil
	for _, m := range queued {
		c.writer.Enqueue(m)
		if op, ok := c.pending[m.Header.SequenceNumber]; ok {
			op.state = StateInFlight
		}
	}
	_ = c.Flush()
}

// handleBinaryData dispatches an inbound BINARY_DATA message. Under
// FlagSHMData the payload bytes are the packed {id,offset,length} triple
// (not a TagStruct record — see sendSHMRef); otherwise the payload is an
// ordinary TagStruct-encoded ByteArray tag.
func (c *Connection) handleBinaryData(msg *incmsg.Message) {
	if !msg.Header.Flags.Has(incmsg.FlagSHMData) {
		data, err := msg.Payload.ReadBytes()
		if err != nil {
			return
		}
		if c.onBinaryData != nil {
			c.onBinaryData(msg.Header.ChannelID, data)
		}
		return
	}

	body := msg.Payload.Bytes()
	if len(body) < 20 {
		return
	}
	id := binary.BigEndian.Uint32(body[0:4])
	offset := binary.BigEndian.Uint64(body[4:12])
	length := binary.BigEndian.Uint64(body[12:20])

	blk, err := c.shm.Attach(id)
	if err != nil {
		if kind, ok := increrr.KindOf(err); ok {
			c.metrics.RecordFramingError(kind)
		}
		return // BadShmRef: fail this message only, connection stays open (§5/§7)
	}
	c.metrics.AddSHMBlocksLive(1)
	view, err := blk.ReadAt(int(offset), int(length))
	if err != nil {
		return
	}
	if c.onBinaryData != nil {
		c.onBinaryData(msg.Header.ChannelID, view)
	}
	c.retainedSHM = id
	c.hasRetained = true
}

// releaseRetainedSHM detaches the SHM block (if any) retained for the
// previous inbound message, implementing the "implicit ack on next
// message" lifetime chosen for the Open Question in §5/§9.
func (c *Connection) releaseRetainedSHM() {
	if !c.hasRetained {
		return
	}
	c.hasRetained = false
	if blk, err := c.shm.Attach(c.retainedSHM); err == nil {
		_ = blk.Detach()
		c.shm.Forget(c.retainedSHM)
		c.metrics.AddSHMBlocksLive(-1)
	}
}

func (c *Connection) handlePing(msg *incmsg.Message) {
	pong := incmsg.New(incmsg.TypePong, msg.Header.SequenceNumber)
	c.writer.Enqueue(pong)
	_ = c.Flush()
}

func (c *Connection) handlePong(msg *incmsg.Message) {
	if op, ok := c.pending[msg.Header.SequenceNumber]; ok {
		delete(c.pending, msg.Header.SequenceNumber)
		c.metrics.SetPendingOperations(len(c.pending))
		op.complete(nil)
	}
}

// teardown fails every pending operation with StateCancelled, closes the
// transport if err is one of the fatal kinds spec.md §4.6 requires closing
// on (BadMagic, TooLarge, and the other Kind.Fatal() rows), fires
// OnDisconnected, and leaves the connection unusable for further sends.
func (c *Connection) teardown(err error) {
	for seq, op := range c.pending {
		delete(c.pending, seq)
		op.fail(StateCancelled, err)
	}
	c.metrics.SetPendingOperations(0)

	if kind, ok := increrr.KindOf(err); ok && kind.Fatal() && !c.closed {
		c.closed = true
		_ = c.transport.Close()
	}

	if c.onDisconnected != nil {
		c.onDisconnected(err)
	}
}

// expectsReply reports whether sending a message of type t should hold a
// pending Operation awaiting a matching reply: a METHOD_CALL awaits a
// METHOD_REPLY, and a PING awaits a PONG (liveness probes are otherwise
// fire-and-forget on the wire, but the caller still wants a completion
// signal per §8 scenario 7).
func expectsReply(t incmsg.Type) bool {
	return t == incmsg.TypeMethodCall || t == incmsg.TypePing
}

// Buffer returns an empty owned buffer sized for n bytes, a small
// convenience used by callers building up binary payloads before handing
// them to SendBinary.
func Buffer(n int) incbuf.Buffer {
	return incbuf.New(n)
}
