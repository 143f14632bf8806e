package incproto_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/incd/pkg/incmetrics"
	"github.com/marmos91/incd/pkg/incmsg"
	"github.com/marmos91/incd/pkg/incproto"
	"github.com/marmos91/incd/pkg/incproto/incprototest"
	"github.com/marmos91/incd/pkg/incshm"
)

func handshakeServerClient(t *testing.T) (*incproto.Connection, *incprototest.MockTransport, *incproto.Connection, *incprototest.MockTransport) {
	t.Helper()

	clientT := incprototest.NewMockTransport(incproto.RoleClient)
	serverT := incprototest.NewMockTransport(incproto.RoleServer)
	clientT.SimulateConnect()
	serverT.SimulateConnect()

	client := incproto.NewConnection(clientT)
	server := incproto.NewConnection(serverT)

	_, err := client.Handshake()
	require.NoError(t, err)

	serverT.SimulateReceive(clientT.SentData())
	clientT.ClearSentData()
	require.NoError(t, server.HandleReadable())

	clientT.SimulateReceive(serverT.SentData())
	serverT.ClearSentData()
	require.NoError(t, client.HandleReadable())

	return client, clientT, server, serverT
}

func TestHandshakeCompletesBothSides(t *testing.T) {
	client, _, server, _ := handshakeServerClient(t)
	_ = client
	_ = server
}

func TestConnectionIDIsUniquePerConnection(t *testing.T) {
	tr1 := incprototest.NewMockTransport(incproto.RoleClient)
	tr1.SimulateConnect()
	tr2 := incprototest.NewMockTransport(incproto.RoleClient)
	tr2.SimulateConnect()

	c1 := incproto.NewConnection(tr1)
	c2 := incproto.NewConnection(tr2)

	assert.NotEmpty(t, c1.ID())
	assert.NotEmpty(t, c2.ID())
	assert.NotEqual(t, c1.ID(), c2.ID())
}

func TestNextSequenceMonotonic(t *testing.T) {
	tr := incprototest.NewMockTransport(incproto.RoleClient)
	tr.SimulateConnect()
	c := incproto.NewConnection(tr)

	s1 := c.NextSequence()
	s2 := c.NextSequence()
	s3 := c.NextSequence()
	assert.Equal(t, s1+1, s2)
	assert.Equal(t, s2+1, s3)
}

// Scenario 7: PING{seq=S} echoes PONG{seq=S}; the operation's completion
// slot fires Completed with no payload.
func TestPingPongLiveness(t *testing.T) {
	client, clientT, server, serverT := handshakeServerClient(t)

	var gotState incproto.State
	op, err := client.SendWithCompletion(
		incmsg.New(incmsg.TypePing, client.NextSequence()),
		func(state incproto.State, reply *incmsg.Message, err error) {
			gotState = state
			assert.Nil(t, reply)
			assert.NoError(t, err)
		},
	)
	require.NoError(t, err)
	require.NotNil(t, op)

	serverT.SimulateReceive(clientT.SentData())
	clientT.ClearSentData()
	require.NoError(t, server.HandleReadable())

	clientT.SimulateReceive(serverT.SentData())
	require.NoError(t, client.HandleReadable())

	assert.Equal(t, incproto.StateCompleted, gotState)
	assert.Equal(t, incproto.StateCompleted, op.State())
}

// Scenario 6: a Strict-equivalent policy (accept only version==3) rejects
// a HANDSHAKE advertising version 2; the connection is torn down.
func TestStrictHandshakeRejectsWrongVersion(t *testing.T) {
	serverT := incprototest.NewMockTransport(incproto.RoleServer)
	serverT.SimulateConnect()

	var disconnectErr error
	server := incproto.NewConnection(serverT, incproto.WithHandshakePolicy(
		func(clientVersion uint16) (uint16, bool) {
			return 3, clientVersion == 3
		},
	))
	server.OnDisconnected(func(err error) { disconnectErr = err })

	// a HANDSHAKE advertising version 2, built directly rather than via a
	// client Connection (whose own CurrentProtocolVersion is fixed at 1)
	msg := incmsg.New(incmsg.TypeHandshake, 999)
	msg.Payload.PutU32(2)

	serverT.SimulateReceive(handshakeBytes(msg))
	require.NoError(t, server.HandleReadable())
	require.NotNil(t, disconnectErr)
}

func handshakeBytes(msg *incmsg.Message) []byte {
	var out []byte
	out = append(out, msg.HeaderBytes()...)
	out = append(out, msg.Payload.Bytes()...)
	return out
}

// Scenario 5: SendBinary with a 1 MiB payload and SHM available writes
// only the 24-byte header (SHM_DATA flag, PayloadLength 20) and the
// 20-byte packed ref body; the receiver's callback sees the original
// bytes.
//
// A real deployment passes the underlying memfd to the peer out of band
// (e.g. SCM_RIGHTS); this test's two Connections stand in for that by
// sharing one Registry, modeling same-host attach-by-id directly.
func TestSendBinarySHMFastPath(t *testing.T) {
	shared := incshm.NewRegistry(false)

	clientT := incprototest.NewMockTransport(incproto.RoleClient)
	serverT := incprototest.NewMockTransport(incproto.RoleServer)
	clientT.SimulateConnect()
	serverT.SimulateConnect()

	client := incproto.NewConnection(clientT, incproto.WithSHMRegistry(shared))
	server := incproto.NewConnection(serverT, incproto.WithSHMRegistry(shared))

	_, err := client.Handshake()
	require.NoError(t, err)
	serverT.SimulateReceive(clientT.SentData())
	clientT.ClearSentData()
	require.NoError(t, server.HandleReadable())
	clientT.SimulateReceive(serverT.SentData())
	serverT.ClearSentData()
	require.NoError(t, client.HandleReadable())

	payload := make([]byte, 1<<20)
	for i := range payload {
		payload[i] = 0xAB
	}

	_, err = client.SendBinary(1, payload)
	require.NoError(t, err)

	sent := clientT.SentData()
	assert.Equal(t, incmsg.HeaderSize+20, len(sent), "header plus packed SHMRef body only")

	var got []byte
	server.OnBinaryData(func(channelID uint16, data []byte) {
		got = append([]byte(nil), data...)
		assert.Equal(t, uint16(1), channelID)
	})

	serverT.SimulateReceive(sent)
	require.NoError(t, server.HandleReadable())

	require.Equal(t, len(payload), len(got))
	assert.Equal(t, payload, got)
}

func TestSendBinaryInlineBelowThreshold(t *testing.T) {
	client, clientT, server, serverT := handshakeServerClient(t)

	payload := []byte("small binary blob")
	_, err := client.SendBinary(2, payload)
	require.NoError(t, err)

	var got []byte
	server.OnBinaryData(func(channelID uint16, data []byte) {
		got = data
	})

	serverT.SimulateReceive(clientT.SentData())
	require.NoError(t, server.HandleReadable())
	assert.Equal(t, payload, got)
}

func TestOperationCancelBeforeFlightTerminates(t *testing.T) {
	tr := incprototest.NewMockTransport(incproto.RoleClient)
	tr.SimulateConnect()
	c := incproto.NewConnection(tr)

	// handshake not yet complete: the send stays Queued in queuedBeforeAck
	msg := incmsg.New(incmsg.TypeMethodCall, c.NextSequence())
	op, err := c.Send(msg)
	require.NoError(t, err)
	require.NotNil(t, op)
	require.Equal(t, 1, c.PendingCount())

	op.Cancel()
	assert.Equal(t, incproto.StateCancelled, op.State())
	assert.Equal(t, 0, c.PendingCount(), "cancelling a queued operation must remove its pending-ops entry")
}

// Scenario 4: feeding FF FF FF FF (bad magic) transitions framing to
// Error(BadMagic); the connection closes the underlying transport, and
// exactly once even if HandleReadable is (erroneously) called again.
func TestBadMagicClosesTransportExactlyOnce(t *testing.T) {
	tr := incprototest.NewMockTransport(incproto.RoleServer)
	tr.SimulateConnect()
	c := incproto.NewConnection(tr)

	var disconnectErr error
	c.OnDisconnected(func(err error) { disconnectErr = err })

	bad := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	bad = append(bad, make([]byte, incmsg.HeaderSize-len(bad))...)
	tr.SimulateReceive(bad)
	err := c.HandleReadable()
	require.Error(t, err)
	require.Error(t, disconnectErr)

	assert.True(t, tr.Closed())
	assert.Equal(t, 1, tr.CloseCount())

	// the connection has already closed its transport; a second
	// HandleReadable call must not close it again.
	_ = c.HandleReadable()
	assert.Equal(t, 1, tr.CloseCount())
}

func TestFlushEmptyQueueIsNoop(t *testing.T) {
	tr := incprototest.NewMockTransport(incproto.RoleClient)
	tr.SimulateConnect()
	c := incproto.NewConnection(tr)

	require.NoError(t, c.Flush())
	assert.Empty(t, tr.SentData())
}

func TestWithMetricsRecordsHandshakeTraffic(t *testing.T) {
	reg := incmetrics.InitRegistry()
	m := incmetrics.New()
	require.NotNil(t, m)

	clientT := incprototest.NewMockTransport(incproto.RoleClient)
	serverT := incprototest.NewMockTransport(incproto.RoleServer)
	clientT.SimulateConnect()
	serverT.SimulateConnect()

	client := incproto.NewConnection(clientT, incproto.WithMetrics(m))
	server := incproto.NewConnection(serverT, incproto.WithMetrics(m))

	_, err := client.Handshake()
	require.NoError(t, err)
	serverT.SimulateReceive(clientT.SentData())
	require.NoError(t, server.HandleReadable())

	count, err := testutil.GatherAndCount(reg, "incd_messages_sent_total", "incd_messages_received_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
