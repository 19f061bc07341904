package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfabric/agentfabric/bus"
	"github.com/agentfabric/agentfabric/core"
)

var _ core.ControllerAPI = (*Controller)(nil)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	b := bus.New(bus.NopSink{})
	t.Cleanup(b.Shutdown)
	return New(b)
}

// messagesOfKind filters the history log.
func messagesOfKind(c *Controller, kind core.MessageKind) []core.Message {
	var out []core.Message
	for _, m := range c.MessageHistory() {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func TestRegisterAgentPopulatesRouting(t *testing.T) {
	c := newTestController(t)

	ok := c.RegisterAgent("a1", "Alpha", []core.Capability{core.CapabilityTextProcessing, core.CapabilityReasoning}, nil)
	require.True(t, ok)

	assert.Equal(t, []string{"a1"}, c.GetAgentsByCapability(core.CapabilityTextProcessing))
	assert.Equal(t, []string{"a1"}, c.GetAgentsByCapability(core.CapabilityReasoning))
	assert.Empty(t, c.GetAgentsByCapability(core.CapabilityCodeGeneration))

	desc, found := c.GetAgent("a1")
	require.True(t, found)
	assert.Equal(t, core.AgentActive, desc.Status)
	assert.Equal(t, desc.RegisteredAt, desc.LastActive)
}

func TestRegisterAgentDuplicateRejected(t *testing.T) {
	c := newTestController(t)

	require.True(t, c.RegisterAgent("a1", "Alpha", nil, nil))
	assert.False(t, c.RegisterAgent("a1", "Impostor", []core.Capability{core.CapabilityReasoning}, nil))

	// The duplicate attempt must not touch routing.
	assert.Empty(t, c.GetAgentsByCapability(core.CapabilityReasoning))
}

func TestUnregisterAgentRestoresRegistries(t *testing.T) {
	c := newTestController(t)

	require.True(t, c.RegisterAgent("a1", "Alpha", []core.Capability{core.CapabilityTextProcessing}, nil))
	require.True(t, c.UnregisterAgent("a1"))

	assert.Empty(t, c.GetAgentsByCapability(core.CapabilityTextProcessing))
	_, found := c.GetAgent("a1")
	assert.False(t, found)
	assert.Equal(t, 0, c.GetSystemStatus().AgentsTotal)

	assert.False(t, c.UnregisterAgent("a1"))
}

func TestCreateTaskAssignsToCapableAgent(t *testing.T) {
	c := newTestController(t)
	require.True(t, c.RegisterAgent("a1", "Alpha", []core.Capability{core.CapabilityTextProcessing, core.CapabilityReasoning}, nil))

	taskID := c.CreateTask("hello", "u1", []core.Capability{core.CapabilityTextProcessing}, 1, nil, map[string]any{core.MetaTaskType: "qa"})
	require.NotEmpty(t, taskID)

	status, found := c.GetTaskStatus(taskID)
	require.True(t, found)
	assert.Equal(t, core.TaskAssigned, status)

	task, found := c.GetTask(taskID)
	require.True(t, found)
	assert.Equal(t, "a1", task.AssignedAgentID())
	assert.Equal(t, []core.Capability{core.CapabilityTextProcessing}, task.RequiredCapabilities())

	assignments := messagesOfKind(c, core.KindTaskAssignment)
	require.Len(t, assignments, 1)
	assert.Equal(t, core.ControllerID, assignments[0].SenderID)
	assert.Equal(t, "a1", assignments[0].ReceiverID)
	parsed := core.ParseTaskAssignment(assignments[0].Content)
	assert.Equal(t, taskID, parsed.TaskID)
	assert.Equal(t, "hello", parsed.Description)
}

func TestCreateTaskWithoutMatchStaysPending(t *testing.T) {
	c := newTestController(t)
	require.True(t, c.RegisterAgent("a1", "Alpha", []core.Capability{core.CapabilityTextProcessing}, nil))

	taskID := c.CreateTask("write code", "u1", []core.Capability{core.CapabilityCodeGeneration}, 1, nil, nil)
	require.NotEmpty(t, taskID)

	status, found := c.GetTaskStatus(taskID)
	require.True(t, found)
	assert.Equal(t, core.TaskPending, status)
	assert.Empty(t, messagesOfKind(c, core.KindTaskAssignment))
}

func TestAssignTaskEmptyCapabilitiesPicksFirstRegistered(t *testing.T) {
	c := newTestController(t)
	require.True(t, c.RegisterAgent("a1", "Alpha", []core.Capability{core.CapabilityReasoning}, nil))
	require.True(t, c.RegisterAgent("a2", "Beta", []core.Capability{core.CapabilityTextProcessing}, nil))

	taskID := c.CreateTask("anything", "u1", nil, 1, nil, nil)
	task, found := c.GetTask(taskID)
	require.True(t, found)
	assert.Equal(t, "a1", task.AssignedAgentID())
}

func TestAssignTaskOnNonPendingTaskIsNoOp(t *testing.T) {
	c := newTestController(t)
	require.True(t, c.RegisterAgent("a1", "Alpha", []core.Capability{core.CapabilityTextProcessing}, nil))

	taskID := c.CreateTask("hello", "u1", []core.Capability{core.CapabilityTextProcessing}, 1, nil, nil)
	status, _ := c.GetTaskStatus(taskID)
	require.Equal(t, core.TaskAssigned, status)

	assert.False(t, c.AssignTask(taskID, nil))
	assert.Len(t, messagesOfKind(c, core.KindTaskAssignment), 1)
}

func TestAssignTaskUnknownID(t *testing.T) {
	c := newTestController(t)
	assert.False(t, c.AssignTask("missing", nil))
}

func TestUpdateTaskStatusSendsTerminalResult(t *testing.T) {
	c := newTestController(t)
	require.True(t, c.RegisterAgent("a1", "Alpha", []core.Capability{core.CapabilityTextProcessing}, nil))

	taskID := c.CreateTask("hello", "u1", []core.Capability{core.CapabilityTextProcessing}, 1, nil, nil)
	require.True(t, c.UpdateTaskStatus(taskID, core.TaskInProgress, nil))
	require.True(t, c.UpdateTaskStatus(taskID, core.TaskCompleted, map[string]any{"answer": "hi"}))

	status, _ := c.GetTaskStatus(taskID)
	assert.Equal(t, core.TaskCompleted, status)

	results := messagesOfKind(c, core.KindTaskResult)
	require.Len(t, results, 1)
	assert.Equal(t, core.ControllerID, results[0].SenderID)
	assert.Equal(t, "u1", results[0].ReceiverID)
	parsed := core.ParseTaskResult(results[0].Content)
	assert.Equal(t, taskID, parsed.TaskID)
	assert.Equal(t, core.TaskCompleted, parsed.Status)
	assert.Equal(t, "hi", parsed.Result["answer"])
}

func TestUpdateTaskStatusRejectsTerminalTransitions(t *testing.T) {
	c := newTestController(t)
	require.True(t, c.RegisterAgent("a1", "Alpha", nil, nil))

	taskID := c.CreateTask("hello", "u1", nil, 1, nil, nil)
	require.True(t, c.UpdateTaskStatus(taskID, core.TaskFailed, map[string]any{"error": "boom"}))

	assert.False(t, c.UpdateTaskStatus(taskID, core.TaskInProgress, nil))
	assert.False(t, c.UpdateTaskStatus(taskID, core.TaskCompleted, nil))

	status, _ := c.GetTaskStatus(taskID)
	assert.Equal(t, core.TaskFailed, status)
	// Only the first terminal transition emitted a result.
	assert.Len(t, messagesOfKind(c, core.KindTaskResult), 1)
}

func TestUpdateTaskStatusUnknownID(t *testing.T) {
	c := newTestController(t)
	assert.False(t, c.UpdateTaskStatus("missing", core.TaskCompleted, nil))
}

func TestSendMessageRunsHandlersInOrder(t *testing.T) {
	c := newTestController(t)

	var order []string
	c.RegisterMessageHandler(core.KindSystemNotification, func(core.Message) {
		order = append(order, "first")
	})
	c.RegisterMessageHandler(core.KindSystemNotification, func(core.Message) {
		panic("second handler explodes")
	})
	c.RegisterMessageHandler(core.KindSystemNotification, func(core.Message) {
		order = append(order, "third")
	})

	id := c.SendMessage("u1", core.ControllerID, nil, core.KindSystemNotification)
	assert.NotEmpty(t, id)

	// The panicking handler is isolated; the others still ran in order.
	assert.Equal(t, []string{"first", "third"}, order)
}

func TestSendMessageUpdatesLastActive(t *testing.T) {
	c := newTestController(t)
	require.True(t, c.RegisterAgent("a1", "Alpha", nil, nil))

	before, _ := c.GetAgent("a1")
	time.Sleep(5 * time.Millisecond)
	c.SendMessage("a1", core.ControllerID, nil, core.KindAgentStatus)

	after, _ := c.GetAgent("a1")
	assert.True(t, after.LastActive.After(before.LastActive))
}

func TestMessageHistoryCountsEverySend(t *testing.T) {
	c := newTestController(t)
	for i := 0; i < 5; i++ {
		c.SendMessage("u1", "u2", nil, core.KindTaskUpdate)
	}
	assert.Len(t, c.MessageHistory(), 5)
	assert.Equal(t, 5, c.GetSystemStatus().Messages)
}

func TestGetSystemStatus(t *testing.T) {
	c := newTestController(t)
	require.True(t, c.RegisterAgent("a1", "Alpha", []core.Capability{core.CapabilityTextProcessing}, nil))
	require.True(t, c.RegisterAgent("a2", "Beta", nil, nil))
	require.True(t, c.SetAgentStatus("a2", core.AgentPaused))

	c.CreateTask("hello", "u1", []core.Capability{core.CapabilityTextProcessing}, 1, nil, nil)
	c.CreateTask("misfit", "u1", []core.Capability{core.CapabilityCodeGeneration}, 1, nil, nil)

	status := c.GetSystemStatus()
	assert.Equal(t, 2, status.AgentsTotal)
	assert.Equal(t, 1, status.AgentsActive)
	assert.Equal(t, 2, status.TasksTotal)
	assert.Equal(t, 1, status.TasksByStatus[core.TaskAssigned])
	assert.Equal(t, 1, status.TasksByStatus[core.TaskPending])
}

func TestMaxActiveTasksRefusesNewWork(t *testing.T) {
	b := bus.New(bus.NopSink{})
	t.Cleanup(b.Shutdown)
	c := New(b, WithMaxActiveTasks(1))

	first := c.CreateTask("one", "u1", nil, 1, nil, nil)
	require.NotEmpty(t, first)
	assert.Empty(t, c.CreateTask("two", "u1", nil, 1, nil, nil))

	// Finishing the first frees a slot.
	require.True(t, c.UpdateTaskStatus(first, core.TaskFailed, nil))
	assert.NotEmpty(t, c.CreateTask("three", "u1", nil, 1, nil, nil))
}

func TestPruneTasksDropsOldTerminalTasks(t *testing.T) {
	c := newTestController(t)

	done := c.CreateTask("done", "u1", nil, 1, nil, nil)
	require.True(t, c.UpdateTaskStatus(done, core.TaskFailed, nil))
	pending := c.CreateTask("pending", "u1", []core.Capability{core.CapabilityReasoning}, 1, nil, nil)

	assert.Equal(t, 1, c.PruneTasks(0))
	_, found := c.GetTask(done)
	assert.False(t, found)
	_, found = c.GetTask(pending)
	assert.True(t, found)
}
