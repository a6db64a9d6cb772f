package metric

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MessageReceived("TIME")
		m.MessageDropped(ReasonBadJSON)
		m.SetSubscriberState(2)
		m.CommandCompleted("RUN", OutcomeOK, time.Millisecond)
		m.SetWatchedVariables(3)
		m.SetTreeItems(10)
	})
}

func TestCounters(t *testing.T) {
	m := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	m.MessageReceived("TIME")
	m.MessageReceived("TIME")
	m.MessageDropped(ReasonShortFrames)
	m.CommandCompleted("RUN", OutcomeTimeout, 2*time.Second)
	m.SetSubscriberState(2)
	m.SetWatchedVariables(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesReceived.WithLabelValues("TIME")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesDropped.WithLabelValues(ReasonShortFrames)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("RUN", OutcomeTimeout)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SubscriberState))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.WatchedVariables))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CommandDuration))
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, New().Register(reg))
	assert.Error(t, New().Register(reg))
}
