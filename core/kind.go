package core

// MessageKind classifies a Message and selects which handlers run for it.
type MessageKind string

const (
	// KindTaskRequest asks the controller to create a task.
	KindTaskRequest MessageKind = "task_request"
	// KindTaskAssignment notifies an agent that a task was assigned to it.
	KindTaskAssignment MessageKind = "task_assignment"
	// KindTaskUpdate reports a non-terminal task status change.
	KindTaskUpdate MessageKind = "task_update"
	// KindTaskResult delivers a terminal task outcome to its creator.
	KindTaskResult MessageKind = "task_result"
	// KindAgentRegistration announces an agent joining the fabric.
	KindAgentRegistration MessageKind = "agent_registration"
	// KindAgentStatus reports an agent status change.
	KindAgentStatus MessageKind = "agent_status"
	// KindSystemNotification carries control signals (shutdown, pause, resume).
	KindSystemNotification MessageKind = "system_notification"
)

// AllMessageKinds returns the full message kind vocabulary in declaration order.
func AllMessageKinds() []MessageKind {
	return []MessageKind{
		KindTaskRequest,
		KindTaskAssignment,
		KindTaskUpdate,
		KindTaskResult,
		KindAgentRegistration,
		KindAgentStatus,
		KindSystemNotification,
	}
}

// String returns the wire value of the kind.
func (k MessageKind) String() string { return string(k) }
