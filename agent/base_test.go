package agent

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfabric/agentfabric/core"
)

var _ core.ControllerAPI = (*fakeController)(nil)

// fakeController records ControllerAPI calls for assertions.
type fakeController struct {
	mu            sync.Mutex
	registered    map[string][]core.Capability
	unregistered  []string
	statusUpdates []statusUpdate
	messages      []core.Message
	rejectNextReg bool
}

type statusUpdate struct {
	taskID string
	status core.TaskStatus
	result map[string]any
}

func newFakeController() *fakeController {
	return &fakeController{registered: map[string][]core.Capability{}}
}

func (f *fakeController) RegisterAgent(id, name string, capabilities []core.Capability, metadata map[string]any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectNextReg {
		f.rejectNextReg = false
		return false
	}
	f.registered[id] = capabilities
	return true
}

func (f *fakeController) UnregisterAgent(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unregistered = append(f.unregistered, id)
	delete(f.registered, id)
	return true
}

func (f *fakeController) SendMessage(senderID, receiverID string, content map[string]any, kind core.MessageKind) string {
	msg := core.NewMessage(senderID, receiverID, content, kind)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return msg.ID
}

func (f *fakeController) CreateTask(description, creatorID string, required []core.Capability, priority int, deadline *time.Time, metadata map[string]any) string {
	return core.NewID()
}

func (f *fakeController) UpdateTaskStatus(taskID string, status core.TaskStatus, result map[string]any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusUpdates = append(f.statusUpdates, statusUpdate{taskID: taskID, status: status, result: result})
	return true
}

func (f *fakeController) updates() []statusUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]statusUpdate(nil), f.statusUpdates...)
}

func assignmentMessage(receiverID, taskID string, metadata map[string]any) core.Message {
	a := core.TaskAssignment{TaskID: taskID, Description: "do the thing", Metadata: metadata}
	return core.NewMessage(core.ControllerID, receiverID, a.Content(), core.KindTaskAssignment)
}

func TestNewRegistersWithController(t *testing.T) {
	ctrl := newFakeController()
	a := New("Worker", []core.Capability{core.CapabilityReasoning}, ctrl, WithID("a1"))

	assert.Equal(t, "a1", a.ID())
	assert.Equal(t, core.AgentActive, a.Status())
	assert.Equal(t, []core.Capability{core.CapabilityReasoning}, ctrl.registered["a1"])
}

func TestNewRegistrationFailureLeavesAgentInactive(t *testing.T) {
	ctrl := newFakeController()
	ctrl.rejectNextReg = true
	a := New("Worker", nil, ctrl)

	assert.NotEqual(t, core.AgentActive, a.Status())
}

func TestTaskAssignmentSuccessPath(t *testing.T) {
	ctrl := newFakeController()
	a := New("Worker", nil, ctrl, WithID("a1"), WithDefaultTaskKind("echo"))
	require.NoError(t, a.RegisterTaskHandler(TaskHandler{
		Kind: "echo",
		Fn: func(assignment core.TaskAssignment) (map[string]any, error) {
			return map[string]any{"echo": assignment.Description}, nil
		},
	}))

	a.HandleMessage(assignmentMessage("a1", "t1", nil))

	updates := ctrl.updates()
	require.Len(t, updates, 2)
	assert.Equal(t, core.TaskInProgress, updates[0].status)
	assert.Equal(t, core.TaskCompleted, updates[1].status)
	assert.Equal(t, "do the thing", updates[1].result["echo"])
	assert.Empty(t, a.CurrentTask())
}

func TestTaskAssignmentFailurePath(t *testing.T) {
	ctrl := newFakeController()
	a := New("Worker", nil, ctrl, WithID("a1"), WithDefaultTaskKind("boom"))
	require.NoError(t, a.RegisterTaskHandler(TaskHandler{
		Kind: "boom",
		Fn: func(core.TaskAssignment) (map[string]any, error) {
			return nil, fmt.Errorf("it broke")
		},
	}))

	a.HandleMessage(assignmentMessage("a1", "t1", nil))

	updates := ctrl.updates()
	require.Len(t, updates, 2)
	assert.Equal(t, core.TaskInProgress, updates[0].status)
	assert.Equal(t, core.TaskFailed, updates[1].status)
	assert.Equal(t, "it broke", updates[1].result["error"])
	assert.Empty(t, a.CurrentTask())
}

func TestUnknownTaskKindFailsTask(t *testing.T) {
	ctrl := newFakeController()
	a := New("Worker", nil, ctrl, WithID("a1"))

	a.HandleMessage(assignmentMessage("a1", "t1", map[string]any{core.MetaTaskType: "mystery"}))

	updates := ctrl.updates()
	require.Len(t, updates, 2)
	assert.Equal(t, core.TaskFailed, updates[1].status)
	assert.Contains(t, updates[1].result["error"], "unknown task kind")
}

func TestRequiredKeysValidatedBeforeHandler(t *testing.T) {
	ctrl := newFakeController()
	a := New("Worker", nil, ctrl, WithID("a1"), WithDefaultTaskKind("strict"))
	called := false
	require.NoError(t, a.RegisterTaskHandler(TaskHandler{
		Kind:         "strict",
		RequiredKeys: []string{"payload"},
		Fn: func(core.TaskAssignment) (map[string]any, error) {
			called = true
			return nil, nil
		},
	}))

	a.HandleMessage(assignmentMessage("a1", "t1", nil))

	assert.False(t, called)
	updates := ctrl.updates()
	require.Len(t, updates, 2)
	assert.Equal(t, core.TaskFailed, updates[1].status)
}

func TestMessageForOtherReceiverDropped(t *testing.T) {
	ctrl := newFakeController()
	a := New("Worker", nil, ctrl, WithID("a1"))

	a.HandleMessage(assignmentMessage("somebody-else", "t1", nil))

	assert.Empty(t, ctrl.updates())
}

func TestBroadcastMessagesAreAccepted(t *testing.T) {
	ctrl := newFakeController()
	a := New("Worker", nil, ctrl, WithID("a1"))

	n := core.SystemNotification{Type: core.NotificationPause}
	a.HandleMessage(core.NewMessage(core.ControllerID, core.BroadcastID, n.Content(), core.KindSystemNotification))

	assert.Equal(t, core.AgentPaused, a.Status())
}

func TestSystemNotificationLifecycle(t *testing.T) {
	ctrl := newFakeController()
	a := New("Worker", nil, ctrl, WithID("a1"))

	pause := core.SystemNotification{Type: core.NotificationPause}
	a.HandleMessage(core.NewMessage(core.ControllerID, "a1", pause.Content(), core.KindSystemNotification))
	assert.Equal(t, core.AgentPaused, a.Status())

	resume := core.SystemNotification{Type: core.NotificationResume}
	a.HandleMessage(core.NewMessage(core.ControllerID, "a1", resume.Content(), core.KindSystemNotification))
	assert.Equal(t, core.AgentActive, a.Status())

	shutdown := core.SystemNotification{Type: core.NotificationShutdown}
	a.HandleMessage(core.NewMessage(core.ControllerID, "a1", shutdown.Content(), core.KindSystemNotification))
	assert.Equal(t, core.AgentTerminated, a.Status())
	assert.Equal(t, []string{"a1"}, ctrl.unregistered)
}

func TestRegisterTaskHandlerValidation(t *testing.T) {
	ctrl := newFakeController()
	a := New("Worker", nil, ctrl)

	assert.Error(t, a.RegisterTaskHandler(TaskHandler{Kind: ""}))
	assert.Error(t, a.RegisterTaskHandler(TaskHandler{Kind: "x", Fn: nil}))
}
