package incproto

import "github.com/marmos91/incd/pkg/incmsg"

// State is the lifecycle stage of a pending Operation.
type State int

const (
	StateQueued State = iota
	StateInFlight
	StateCompleted
	StateFailed
	StateCancelled
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateInFlight:
		return "in_flight"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// terminal reports whether s is one from which no further transition
// occurs.
func (s State) terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateTimedOut:
		return true
	default:
		return false
	}
}

// CompletionFunc is invoked exactly once when an Operation reaches a
// terminal state. reply is nil unless state is StateCompleted with a
// response payload (e.g. a METHOD_REPLY); err is nil for StateCompleted
// and after Cancel, and when the connection tears down, pending operations
// end in StateCancelled with the error that ended the connection.
type CompletionFunc func(state State, reply *incmsg.Message, err error)

// Operation represents one pending in-flight request: the outbound
// message, its current state, and the completion callback the user
// supplied. Operations are held in the owning Connection's pending-ops
// slab (a plain map, not a concurrent one — see §5's single-goroutine-
// per-connection model) until they reach a terminal state.
type Operation struct {
	sequence uint32
	request  *incmsg.Message
	state    State
	onDone   CompletionFunc

	// conn is the Connection whose pending table holds this operation, so
	// Cancel can remove its own entry rather than leaking it until teardown.
	conn *Connection
}

// Sequence returns the operation's sequence number, the key it is held
// under in the connection's pending-ops table.
func (op *Operation) Sequence() uint32 { return op.sequence }

// State returns the operation's current lifecycle state.
func (op *Operation) State() State { return op.state }

// Cancel removes the operation from the pending table if it is still
// Queued (no bytes written yet), transitioning it to Cancelled and
// invoking its completion callback. An InFlight operation is marked
// cancelled locally (so a late reply is dropped rather than delivered)
// but the peer may still process and reply to it; Cancel does not attempt
// to un-send bytes already written to the transport.
func (op *Operation) Cancel() {
	if op.state.terminal() {
		return
	}
	op.state = StateCancelled
	if op.conn != nil {
		op.conn.removePending(op.sequence)
	}
	if op.onDone != nil {
		op.onDone(StateCancelled, nil, nil)
	}
}

func (op *Operation) complete(reply *incmsg.Message) {
	if op.state.terminal() {
		return // a cancelled-but-still-in-flight op silently drops late replies
	}
	op.state = StateCompleted
	if op.onDone != nil {
		op.onDone(StateCompleted, reply, nil)
	}
}

func (op *Operation) fail(state State, err error) {
	if op.state.terminal() {
		return
	}
	op.state = state
	if op.onDone != nil {
		op.onDone(state, nil, err)
	}
}
