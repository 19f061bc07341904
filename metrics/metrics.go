// Package metrics exposes Prometheus collectors over the fabric's controller
// and bus counters. Exposition (HTTP handler wiring) is left to the host
// process; this package only registers and updates the collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentfabric/agentfabric/bus"
	"github.com/agentfabric/agentfabric/controller"
	"github.com/agentfabric/agentfabric/core"
)

// Collector bundles the fabric gauges and keeps them in sync with a
// controller and bus via Observe.
type Collector struct {
	agentsTotal   prometheus.Gauge
	agentsActive  prometheus.Gauge
	tasksByStatus *prometheus.GaugeVec
	messagesTotal prometheus.Gauge
	busRunning    prometheus.Gauge
	busSubs       prometheus.Gauge
	busTopics     prometheus.Gauge
}

// New creates the collectors and registers them on reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		agentsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentfabric",
			Name:      "agents_registered",
			Help:      "Number of registered agents.",
		}),
		agentsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentfabric",
			Name:      "agents_active",
			Help:      "Number of registered agents in active status.",
		}),
		tasksByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "agentfabric",
			Name:      "tasks",
			Help:      "Number of tasks by lifecycle status.",
		}, []string{"status"}),
		messagesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentfabric",
			Name:      "messages_total",
			Help:      "Messages recorded in the controller history log.",
		}),
		busRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentfabric",
			Name:      "bus_running",
			Help:      "Whether the message bus accepts publications (1/0).",
		}),
		busSubs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentfabric",
			Name:      "bus_subscribers",
			Help:      "Number of direct bus subscriptions.",
		}),
		busTopics: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentfabric",
			Name:      "bus_topics",
			Help:      "Number of topics in the bus topic table, including topics whose subscribers have all left.",
		}),
	}
	reg.MustRegister(
		c.agentsTotal, c.agentsActive, c.tasksByStatus,
		c.messagesTotal, c.busRunning, c.busSubs, c.busTopics,
	)
	return c
}

// Observe snapshots controller and bus state into the gauges. Call it
// periodically or from a prometheus.Collector wrapper.
func (c *Collector) Observe(ctrl *controller.Controller, b *bus.MessageBus) {
	if ctrl != nil {
		status := ctrl.GetSystemStatus()
		c.agentsTotal.Set(float64(status.AgentsTotal))
		c.agentsActive.Set(float64(status.AgentsActive))
		c.messagesTotal.Set(float64(status.Messages))
		for _, s := range []core.TaskStatus{core.TaskPending, core.TaskAssigned, core.TaskInProgress, core.TaskCompleted, core.TaskFailed} {
			c.tasksByStatus.WithLabelValues(s.String()).Set(float64(status.TasksByStatus[s]))
		}
	}
	if b != nil {
		qs := b.QueueStatus()
		if qs.Running {
			c.busRunning.Set(1)
		} else {
			c.busRunning.Set(0)
		}
		c.busSubs.Set(float64(qs.Subscribers))
		c.busTopics.Set(float64(qs.Topics))
	}
}
