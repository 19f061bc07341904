package core

import (
	"time"

	"github.com/google/uuid"
)

// Reserved receiver identifiers.
const (
	// ControllerID is the receiver/sender id of the controller itself.
	ControllerID = "controller"
	// BroadcastID fans a message out to every directly subscribed agent.
	BroadcastID = "broadcast"
)

// TopicKey is the content key whose value routes a message to topic
// subscribers in addition to its direct receiver.
const TopicKey = "topic"

// Message is the unit of communication between agents and the controller.
// After publication it must be treated as immutable; the bus hands the same
// value to every handler.
type Message struct {
	ID         string         `json:"message_id"`
	SenderID   string         `json:"sender_id"`
	ReceiverID string         `json:"receiver_id"`
	Kind       MessageKind    `json:"kind"`
	Content    map[string]any `json:"content"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NewMessage creates a message with a fresh id and UTC creation timestamp.
func NewMessage(senderID, receiverID string, content map[string]any, kind MessageKind) Message {
	if content == nil {
		content = map[string]any{}
	}
	return Message{
		ID:         NewID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Kind:       kind,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
}

// Topic returns the topic routing key carried in the content map, if any.
func (m Message) Topic() (string, bool) {
	v, ok := m.Content[TopicKey]
	if !ok {
		return "", false
	}
	topic, ok := v.(string)
	return topic, ok
}

// IsBroadcast reports whether the message targets every subscribed agent.
func (m Message) IsBroadcast() bool { return m.ReceiverID == BroadcastID }

// NewID generates a unique identifier for messages, tasks and agents.
// Ids never repeat within a process lifetime.
func NewID() string { return uuid.NewString() }
