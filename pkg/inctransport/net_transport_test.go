package inctransport_test

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/incd/pkg/incproto"
	"github.com/marmos91/incd/pkg/inctransport"
)

func waitForEvent(t *testing.T, ch <-chan incproto.Event, kind incproto.EventKind) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %s", kind)
		}
	}
}

func TestNetTransportRoundTrips(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := inctransport.New(clientConn, incproto.RoleClient)
	server := inctransport.New(serverConn, incproto.RoleServer)
	defer client.Close()
	defer server.Close()

	waitForEvent(t, client.Ready(), incproto.EventConnected)
	waitForEvent(t, server.Ready(), incproto.EventConnected)

	n, err := client.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	waitForEvent(t, server.Ready(), incproto.EventReadyRead)

	buf := make([]byte, 16)
	var got int
	for got < 5 {
		n, err := server.Read(buf[got:])
		if err == incproto.ErrWouldBlock {
			continue
		}
		require.NoError(t, err)
		got += n
	}
	assert.Equal(t, "hello", string(buf[:got]))
}

func TestNetTransportReadWouldBlockWhenEmpty(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	server := inctransport.New(serverConn, incproto.RoleServer)
	defer server.Close()

	buf := make([]byte, 16)
	_, err := server.Read(buf)
	assert.Equal(t, incproto.ErrWouldBlock, err)
}

func TestNetTransportDisconnectReportsEOF(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	server := inctransport.New(serverConn, incproto.RoleServer)
	defer server.Close()

	clientConn.Close()
	waitForEvent(t, server.Ready(), incproto.EventDisconnected)
	assert.False(t, server.Connected())

	buf := make([]byte, 16)
	_, err := server.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}
