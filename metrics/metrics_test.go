package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfabric/agentfabric/bus"
	"github.com/agentfabric/agentfabric/controller"
	"github.com/agentfabric/agentfabric/core"
)

func TestObserveSnapshotsFabricState(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := New(reg)

	b := bus.New(bus.NopSink{})
	t.Cleanup(b.Shutdown)
	ctrl := controller.New(b)

	require.True(t, ctrl.RegisterAgent("a1", "Alpha", []core.Capability{core.CapabilityTextProcessing}, nil))
	require.True(t, ctrl.RegisterAgent("a2", "Beta", nil, nil))
	require.True(t, ctrl.SetAgentStatus("a2", core.AgentPaused))
	ctrl.CreateTask("hello", "u1", []core.Capability{core.CapabilityTextProcessing}, 1, nil, nil)
	b.Subscribe("a1", func(core.Message) {})

	collector.Observe(ctrl, b)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.agentsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.agentsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.tasksByStatus.WithLabelValues("assigned")))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.tasksByStatus.WithLabelValues("pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.busRunning))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.busSubs))
	// One task_assignment message was recorded.
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.messagesTotal))
}

func TestObserveAfterShutdown(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := New(reg)

	b := bus.New(bus.NopSink{})
	b.Shutdown()
	collector.Observe(nil, b)

	assert.Equal(t, 0.0, testutil.ToFloat64(collector.busRunning))
}
