// Package natslog provides the NATS-backed durable log sink for the message
// bus. Every published fabric message is forwarded to a NATS subject keyed by
// message id, giving an external, replayable record of all traffic.
package natslog

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// msgIDHeader carries the fabric message id so downstream consumers can
// deduplicate replays.
const msgIDHeader = "Fabric-Msg-Id"

// Sink forwards serialized messages to a NATS subject. It implements
// bus.Sink. The connection is owned by the caller; the sink never closes it.
type Sink struct {
	conn   *nats.Conn
	prefix string
}

// Option customizes sink construction.
type Option func(*Sink)

// WithSubjectPrefix namespaces the published subject, e.g. "fabric.dev".
// The final subject is "<prefix>.<topic>" when set, "<topic>" otherwise.
func WithSubjectPrefix(prefix string) Option {
	return func(s *Sink) { s.prefix = prefix }
}

// New creates a sink over an established NATS connection.
func New(conn *nats.Conn, optFns ...Option) *Sink {
	s := &Sink{conn: conn}
	for _, fn := range optFns {
		fn(s)
	}
	return s
}

// Connect dials the NATS server at url and returns a sink over the new
// connection. The caller should drain the returned connection on shutdown.
func Connect(url string, optFns ...Option) (*Sink, *nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name("agentfabric-log"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	return New(conn, optFns...), conn, nil
}

// Send publishes one message to the topic subject with the message id in a
// header. The context deadline bounds the flush.
func (s *Sink) Send(ctx context.Context, topic, key string, payload []byte) error {
	subject := topic
	if s.prefix != "" {
		subject = s.prefix + "." + topic
	}
	msg := &nats.Msg{
		Subject: subject,
		Header:  nats.Header{msgIDHeader: []string{key}},
		Data:    payload,
	}
	if err := s.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", subject, err)
	}
	return nil
}
