package incmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/incd/pkg/increrr"
	"github.com/marmos91/incd/pkg/incmsg"
)

func TestNewReturnsNilWhenDisabled(t *testing.T) {
	mu.Lock()
	enabled = false
	mu.Unlock()

	assert.Nil(t, New())
}

func TestNilMetricsMethodsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordMessageSent(incmsg.TypePing)
		m.RecordMessageReceived(incmsg.TypePong)
		m.RecordFramingError(increrr.KindBadMagic)
		m.SetPendingOperations(3)
		m.AddSHMBlocksLive(1)
	})
}

func TestRecordMessageSentIncrementsLabeledCounter(t *testing.T) {
	InitRegistry()
	m := New()
	require.NotNil(t, m)

	m.RecordMessageSent(incmsg.TypeMethodCall)
	m.RecordMessageSent(incmsg.TypeMethodCall)
	m.RecordMessageSent(incmsg.TypePing)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.messagesSent.WithLabelValues("METHOD_CALL")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.messagesSent.WithLabelValues("PING")))
}

func TestSetPendingOperationsSetsGauge(t *testing.T) {
	InitRegistry()
	m := New()
	require.NotNil(t, m)

	m.SetPendingOperations(5)
	assert.Equal(t, float64(5), testutil.ToFloat64(m.pendingOps))

	m.SetPendingOperations(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.pendingOps))
}

func TestAddSHMBlocksLiveAdjustsGauge(t *testing.T) {
	InitRegistry()
	m := New()
	require.NotNil(t, m)

	m.AddSHMBlocksLive(1)
	m.AddSHMBlocksLive(1)
	m.AddSHMBlocksLive(-1)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.shmBlocksLive))
}
