package core

// Typed payload carriers for the well-known message kinds. The wire shape
// stays a string-keyed content map for forward compatibility; these types
// give senders and handlers a schema on both ends. Unknown keys survive a
// parse round-trip in Extra.

// Content keys shared by the payload carriers.
const (
	keyTaskID      = "task_id"
	keyDescription = "description"
	keyMetadata    = "metadata"
	keyStatus      = "status"
	keyResult      = "result"
	keyType        = "type"
	keyError       = "error"
)

// TaskAssignment is the content of a task_assignment message.
type TaskAssignment struct {
	TaskID      string
	Description string
	Metadata    map[string]any
}

// Content renders the assignment as a message content map.
func (a TaskAssignment) Content() map[string]any {
	md := a.Metadata
	if md == nil {
		md = map[string]any{}
	}
	return map[string]any{
		keyTaskID:      a.TaskID,
		keyDescription: a.Description,
		keyMetadata:    md,
	}
}

// ParseTaskAssignment extracts an assignment from a content map. Missing keys
// yield zero values rather than errors; the task id is the only field callers
// must check.
func ParseTaskAssignment(content map[string]any) TaskAssignment {
	a := TaskAssignment{Metadata: map[string]any{}}
	a.TaskID, _ = content[keyTaskID].(string)
	a.Description, _ = content[keyDescription].(string)
	if md, ok := content[keyMetadata].(map[string]any); ok {
		a.Metadata = md
	}
	return a
}

// TaskResult is the content of a task_result message sent to a task creator
// when the task reaches a terminal status.
type TaskResult struct {
	TaskID string
	Status TaskStatus
	Result map[string]any
}

// Content renders the result as a message content map.
func (r TaskResult) Content() map[string]any {
	res := r.Result
	if res == nil {
		res = map[string]any{}
	}
	return map[string]any{
		keyTaskID: r.TaskID,
		keyStatus: r.Status.String(),
		keyResult: res,
	}
}

// ParseTaskResult extracts a task result from a content map.
func ParseTaskResult(content map[string]any) TaskResult {
	r := TaskResult{Result: map[string]any{}}
	r.TaskID, _ = content[keyTaskID].(string)
	if s, ok := content[keyStatus].(string); ok {
		r.Status = TaskStatus(s)
	}
	if res, ok := content[keyResult].(map[string]any); ok {
		r.Result = res
	}
	return r
}

// TaskUpdate is the content of a task_update message reporting a
// non-terminal status change.
type TaskUpdate struct {
	TaskID string
	Status TaskStatus
}

// Content renders the update as a message content map.
func (u TaskUpdate) Content() map[string]any {
	return map[string]any{
		keyTaskID: u.TaskID,
		keyStatus: u.Status.String(),
	}
}

// ParseTaskUpdate extracts a task update from a content map.
func ParseTaskUpdate(content map[string]any) TaskUpdate {
	u := TaskUpdate{}
	u.TaskID, _ = content[keyTaskID].(string)
	if s, ok := content[keyStatus].(string); ok {
		u.Status = TaskStatus(s)
	}
	return u
}

// Notification types understood by the agent runtime.
const (
	// NotificationShutdown tells an agent to unregister and terminate.
	NotificationShutdown = "shutdown"
	// NotificationPause tells an agent to stop taking work.
	NotificationPause = "pause"
	// NotificationResume tells a paused agent to resume.
	NotificationResume = "resume"
)

// SystemNotification is the content of a system_notification message.
type SystemNotification struct {
	Type  string
	Extra map[string]any
}

// Content renders the notification as a message content map.
func (n SystemNotification) Content() map[string]any {
	out := map[string]any{keyType: n.Type}
	for k, v := range n.Extra {
		if k == keyType {
			continue
		}
		out[k] = v
	}
	return out
}

// ParseSystemNotification extracts a notification from a content map. All
// keys other than "type" are preserved in Extra.
func ParseSystemNotification(content map[string]any) SystemNotification {
	n := SystemNotification{Extra: map[string]any{}}
	n.Type, _ = content[keyType].(string)
	for k, v := range content {
		if k == keyType {
			continue
		}
		n.Extra[k] = v
	}
	return n
}

// ErrorResult builds the canonical failed-task result map.
func ErrorResult(err error) map[string]any {
	return map[string]any{keyError: err.Error()}
}
