package core

import "time"

// AgentDescriptor is the controller's registry record for an agent.
type AgentDescriptor struct {
	ID           string         `json:"agent_id"`
	Name         string         `json:"name"`
	Capabilities []Capability   `json:"capabilities"`
	Status       AgentStatus    `json:"status"`
	RegisteredAt time.Time      `json:"registered_at"`
	LastActive   time.Time      `json:"last_active"`
	Metadata     map[string]any `json:"metadata"`
}

// HasCapabilities reports whether the descriptor carries every capability in
// required.
func (d AgentDescriptor) HasCapabilities(required []Capability) bool {
	return ContainsAll(d.Capabilities, required)
}

// MessageHandler consumes a published message. Handlers run on bus worker
// goroutines and must be re-entrant; a panic or error is isolated to the
// single invocation.
type MessageHandler func(Message)

// ControllerAPI is the subset of controller operations the agent runtime
// depends on. Agents hold this interface instead of a concrete controller so
// the Agent ↔ Controller reference cycle stays one-directional at the type
// level.
type ControllerAPI interface {
	// RegisterAgent adds an agent to the registry and capability routing
	// index. Returns false if the id is already registered.
	RegisterAgent(id, name string, capabilities []Capability, metadata map[string]any) bool

	// UnregisterAgent removes an agent from the registry and every
	// capability routing list. Returns false for unknown ids.
	UnregisterAgent(id string) bool

	// SendMessage creates and publishes a message, returning its id.
	SendMessage(senderID, receiverID string, content map[string]any, kind MessageKind) string

	// CreateTask materializes a task and immediately attempts assignment.
	// The returned id is valid even when no agent matched.
	CreateTask(description, creatorID string, required []Capability, priority int, deadline *time.Time, metadata map[string]any) string

	// UpdateTaskStatus transitions a task, recording the result when given.
	UpdateTaskStatus(taskID string, status TaskStatus, result map[string]any) bool
}
