package bus

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"

	"github.com/agentfabric/agentfabric/core"
	"github.com/agentfabric/agentfabric/logging"
)

// Defaults applied by New when the corresponding option is unset.
const (
	// DefaultWorkers is the dispatch pool size.
	DefaultWorkers = 4
	// DefaultQueueSize is the total submission queue capacity across workers.
	DefaultQueueSize = 1000
	// DefaultTopic is the external log topic messages are forwarded to.
	DefaultTopic = "mcp-messages"
	// DefaultDrainGrace bounds how long Shutdown waits for in-flight
	// handlers before abandoning them.
	DefaultDrainGrace = 5 * time.Second
	// sinkTimeout bounds a single forward to the external log.
	sinkTimeout = 5 * time.Second
)

// dispatch is one handler invocation queued on a pool worker.
type dispatch struct {
	handler core.MessageHandler
	msg     core.Message
}

// MessageBus routes published messages to in-process subscribers and forwards
// every message to the external durable log. Safe for concurrent use.
//
// Fan-out rules compose additively: the direct subscription of the receiver
// id, every direct subscription for broadcast messages, and the direct
// subscriptions of agents subscribed to the message's topic. Duplicate
// handler entries are not deduplicated.
type MessageBus struct {
	mu          sync.RWMutex
	subscribers map[string][]core.MessageHandler
	topicSubs   map[string][]string
	running     bool

	workers []chan dispatch
	wg      sync.WaitGroup

	sink       Sink
	topic      string
	drainGrace time.Duration
	logger     logging.Logger
}

// Option customizes bus construction.
type Option func(*options)

type options struct {
	workers    int
	queueSize  int
	topic      string
	drainGrace time.Duration
	logger     logging.Logger
}

// WithWorkers sets the dispatch pool size.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithQueueSize sets the total submission queue capacity.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithTopic sets the external log topic name.
func WithTopic(topic string) Option {
	return func(o *options) { o.topic = topic }
}

// WithDrainGrace sets the shutdown drain window.
func WithDrainGrace(d time.Duration) Option {
	return func(o *options) { o.drainGrace = d }
}

// WithLogger sets the bus logger.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New constructs a running MessageBus forwarding to sink. A nil sink is
// replaced by NopSink.
func New(sink Sink, optFns ...Option) *MessageBus {
	opts := options{
		workers:    DefaultWorkers,
		queueSize:  DefaultQueueSize,
		topic:      DefaultTopic,
		drainGrace: DefaultDrainGrace,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.workers < 1 {
		opts.workers = 1
	}
	if opts.logger == nil {
		opts.logger = logging.NoOpLogger{}
	}
	if sink == nil {
		sink = NopSink{}
	}

	perWorker := opts.queueSize / opts.workers
	if perWorker < 1 {
		perWorker = 1
	}

	b := &MessageBus{
		subscribers: make(map[string][]core.MessageHandler),
		topicSubs:   make(map[string][]string),
		running:     true,
		workers:     make([]chan dispatch, opts.workers),
		sink:        sink,
		topic:       opts.topic,
		drainGrace:  opts.drainGrace,
		logger:      opts.logger,
	}

	for i := range b.workers {
		ch := make(chan dispatch, perWorker)
		b.workers[i] = ch
		b.wg.Add(1)
		go b.worker(ch)
	}

	b.logger.Info("message bus started", "workers", opts.workers, "queue_size", opts.queueSize)
	return b
}

// worker drains one submission channel until it is closed. Handler failures
// are contained to the single invocation.
func (b *MessageBus) worker(ch <-chan dispatch) {
	defer b.wg.Done()
	for d := range ch {
		b.invoke(d)
	}
}

func (b *MessageBus) invoke(d dispatch) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("message handler panicked", "message_id", d.msg.ID, "panic", r)
		}
	}()
	d.handler(d.msg)
}

// Publish forwards the message to the external log and fans it out to
// subscribed handlers via the worker pool. It returns once all handler
// invocations are accepted onto the pool, not once they complete. Returns
// false when the bus is shut down or a submission queue is full.
func (b *MessageBus) Publish(msg core.Message) bool {
	// The read lock is held across submission so Shutdown cannot close the
	// worker channels mid-publish. Submission never blocks.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.running {
		b.logger.Warn("bus not running, message dropped", "message_id", msg.ID)
		return false
	}
	targets := b.collectTargetsLocked(msg)

	b.forwardToSink(msg)

	if len(targets) == 0 {
		b.logger.Warn("no subscribers for message", "message_id", msg.ID, "receiver_id", msg.ReceiverID)
		return true
	}

	for _, t := range targets {
		ch := b.workers[workerIndex(t.receiver, len(b.workers))]
		select {
		case ch <- dispatch{handler: t.handler, msg: msg}:
		default:
			b.logger.Warn("submission queue full, message rejected", "message_id", msg.ID, "receiver_id", t.receiver)
			return false
		}
	}
	return true
}

// target pairs a handler with the receiver id it was subscribed under, so
// dispatch can keep per-receiver ordering.
type target struct {
	receiver string
	handler  core.MessageHandler
}

// collectTargetsLocked resolves the handler fan-out for msg. Caller holds at
// least a read lock.
func (b *MessageBus) collectTargetsLocked(msg core.Message) []target {
	var targets []target

	if hs, ok := b.subscribers[msg.ReceiverID]; ok {
		for _, h := range hs {
			targets = append(targets, target{receiver: msg.ReceiverID, handler: h})
		}
	}

	if msg.IsBroadcast() {
		for agentID, hs := range b.subscribers {
			for _, h := range hs {
				targets = append(targets, target{receiver: agentID, handler: h})
			}
		}
	}

	if topic, ok := msg.Topic(); ok {
		for _, agentID := range b.topicSubs[topic] {
			for _, h := range b.subscribers[agentID] {
				targets = append(targets, target{receiver: agentID, handler: h})
			}
		}
	}

	return targets
}

// workerIndex pins a receiver to one pool worker so messages to a single
// receiver are dispatched in publish order.
func workerIndex(receiver string, workers int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(receiver))
	return int(h.Sum32() % uint32(workers))
}

// forwardToSink hands the message to the durable log without blocking the
// publisher. Sink failures are logged, never surfaced.
func (b *MessageBus) forwardToSink(msg core.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("marshal message for external log", "message_id", msg.ID, "error", err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()
		if err := b.sink.Send(ctx, b.topic, msg.ID, payload); err != nil {
			b.logger.Error("forward message to external log", "message_id", msg.ID, "error", err)
		}
	}()
}

// Subscribe registers a handler for messages addressed to agentID. Multiple
// handlers per agent are allowed. Returns false after shutdown.
func (b *MessageBus) Subscribe(agentID string, handler core.MessageHandler) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return false
	}
	b.subscribers[agentID] = append(b.subscribers[agentID], handler)
	b.logger.Info("agent subscribed", "agent_id", agentID)
	return true
}

// Unsubscribe drops every handler for agentID and removes the agent from all
// topic lists. Returns false for unknown agents.
func (b *MessageBus) Unsubscribe(agentID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[agentID]; !ok {
		b.logger.Warn("unsubscribe for unknown agent", "agent_id", agentID)
		return false
	}
	delete(b.subscribers, agentID)
	for topic, agents := range b.topicSubs {
		b.topicSubs[topic] = removeString(agents, agentID)
	}
	b.logger.Info("agent unsubscribed", "agent_id", agentID)
	return true
}

// SubscribeToTopic adds agentID to a topic list. Returns false if already
// subscribed or after shutdown.
func (b *MessageBus) SubscribeToTopic(agentID, topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return false
	}
	for _, id := range b.topicSubs[topic] {
		if id == agentID {
			return false
		}
	}
	b.topicSubs[topic] = append(b.topicSubs[topic], agentID)
	b.logger.Info("agent subscribed to topic", "agent_id", agentID, "topic", topic)
	return true
}

// UnsubscribeFromTopic removes agentID from a topic list. Returns false when
// the topic or membership does not exist.
func (b *MessageBus) UnsubscribeFromTopic(agentID, topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	agents, ok := b.topicSubs[topic]
	if !ok {
		b.logger.Warn("unsubscribe from unknown topic", "topic", topic)
		return false
	}
	trimmed := removeString(agents, agentID)
	if len(trimmed) == len(agents) {
		b.logger.Warn("agent not subscribed to topic", "agent_id", agentID, "topic", topic)
		return false
	}
	b.topicSubs[topic] = trimmed
	b.logger.Info("agent unsubscribed from topic", "agent_id", agentID, "topic", topic)
	return true
}

// Shutdown stops accepting publications and subscriptions, then drains the
// worker pool. Workers still running after the grace window are abandoned;
// their results are discarded.
func (b *MessageBus) Shutdown() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	for _, ch := range b.workers {
		close(ch)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.logger.Info("message bus drained")
	case <-time.After(b.drainGrace):
		b.logger.Warn("drain grace elapsed, abandoning in-flight handlers")
	}
}

// QueueStatus summarizes the bus state.
type QueueStatus struct {
	Subscribers int  `json:"subscribers"`
	Topics      int  `json:"topics"`
	Running     bool `json:"running"`
}

// QueueStatus reports subscriber and topic counts plus the running flag.
func (b *MessageBus) QueueStatus() QueueStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return QueueStatus{
		Subscribers: len(b.subscribers),
		Topics:      len(b.topicSubs),
		Running:     b.running,
	}
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
