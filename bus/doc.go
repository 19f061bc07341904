// Package bus implements the asynchronous message fabric: per-agent and
// per-topic subscriptions, broadcast fan-out, a bounded worker pool for
// handler dispatch and simultaneous forwarding of every published message to
// an external durable log sink.
//
// Delivery is at-most-once per (message, subscribed handler). Ordering is
// guaranteed only between messages published to the same receiver; across
// receivers handlers run concurrently on pool workers.
package bus
