package core

import (
	"sync"
	"time"
)

// Metadata keys the fabric itself reads and writes. Everything else in the
// metadata map is free-form per-task data.
const (
	// MetaRequiredCapabilities holds the capability tags a task requires,
	// recorded as strings for downstream inspection.
	MetaRequiredCapabilities = "required_capabilities"
	// MetaTaskType selects the handler (agent side) and workflow
	// (orchestration side) for a task.
	MetaTaskType = "task_type"
)

// Task is a unit of work with a description, required capabilities, a
// lifecycle and a result. Identity fields are immutable after construction;
// status, assignee and result mutate under an internal lock so they are
// always observed coherently.
type Task struct {
	ID          string         `json:"task_id"`
	Description string         `json:"description"`
	CreatorID   string         `json:"creator_id"`
	CreatedAt   time.Time      `json:"created_at"`
	Priority    int            `json:"priority"`
	Deadline    *time.Time     `json:"deadline,omitempty"`
	Metadata    map[string]any `json:"metadata"`

	mu              sync.RWMutex
	status          TaskStatus
	assignedAgentID string
	result          map[string]any
}

// NewTask creates a pending task with a fresh id. A nil metadata map is
// replaced by an empty one; priority zero falls back to the default of 1.
func NewTask(description, creatorID string, priority int, metadata map[string]any) *Task {
	if metadata == nil {
		metadata = map[string]any{}
	}
	if priority == 0 {
		priority = 1
	}
	return &Task{
		ID:          NewID(),
		Description: description,
		CreatorID:   creatorID,
		CreatedAt:   time.Now().UTC(),
		Priority:    priority,
		Metadata:    metadata,
		status:      TaskPending,
	}
}

// Status returns the current lifecycle state.
func (t *Task) Status() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// AssignedAgentID returns the executor id, empty while pending.
func (t *Task) AssignedAgentID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.assignedAgentID
}

// Result returns a copy of the result map, nil until a status transition
// recorded one.
func (t *Task) Result() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.result == nil {
		return nil
	}
	out := make(map[string]any, len(t.result))
	for k, v := range t.result {
		out[k] = v
	}
	return out
}

// Assign atomically moves a pending task to assigned and records the
// executor. Returns false without state change if the task is not pending.
func (t *Task) Assign(agentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != TaskPending {
		return false
	}
	t.status = TaskAssigned
	t.assignedAgentID = agentID
	return true
}

// Transition applies a status change, optionally recording a result. Illegal
// steps (see TaskStatus.CanTransition) are rejected with no state change.
func (t *Task) Transition(next TaskStatus, result map[string]any) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.status.CanTransition(next) {
		return false
	}
	t.status = next
	if result != nil {
		t.result = result
	}
	return true
}

// TaskSnapshot is a coherent point-in-time view of a task's mutable fields.
type TaskSnapshot struct {
	ID              string
	Status          TaskStatus
	AssignedAgentID string
	Result          map[string]any
}

// Snapshot returns the task's mutable fields observed under a single lock.
func (t *Task) Snapshot() TaskSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap := TaskSnapshot{ID: t.ID, Status: t.status, AssignedAgentID: t.assignedAgentID}
	if t.result != nil {
		snap.Result = make(map[string]any, len(t.result))
		for k, v := range t.result {
			snap.Result[k] = v
		}
	}
	return snap
}

// RequiredCapabilities reads the capability tags recorded in metadata at
// creation time. Tags outside the vocabulary are skipped.
func (t *Task) RequiredCapabilities() []Capability {
	raw, ok := t.Metadata[MetaRequiredCapabilities]
	if !ok {
		return nil
	}
	var out []Capability
	switch tags := raw.(type) {
	case []string:
		for _, s := range tags {
			if c := Capability(s); c.Valid() {
				out = append(out, c)
			}
		}
	case []Capability:
		out = append(out, tags...)
	case []any:
		for _, v := range tags {
			if s, ok := v.(string); ok {
				if c := Capability(s); c.Valid() {
					out = append(out, c)
				}
			}
		}
	}
	return out
}

// TaskType returns the task_type metadata value, or fallback when absent.
func (t *Task) TaskType(fallback string) string {
	if s, ok := t.Metadata[MetaTaskType].(string); ok && s != "" {
		return s
	}
	return fallback
}
