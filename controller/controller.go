// Package controller implements the central coordinator of the fabric: the
// agent registry, the task registry, capability-indexed routing, the message
// history log and synchronous fan-out to locally registered message handlers.
//
// All operations are non-blocking from the caller's perspective; at most they
// enqueue onto the message bus. Unknown ids yield false or empty results and
// the controller performs no retries.
package controller

import (
	"sync"
	"time"

	"github.com/agentfabric/agentfabric/bus"
	"github.com/agentfabric/agentfabric/core"
	"github.com/agentfabric/agentfabric/logging"
)

// Controller owns the agent and task registries, the capability routing index
// and the message history. It composes the message bus for asynchronous
// notifications. Safe for concurrent use.
type Controller struct {
	mu         sync.RWMutex
	agents     map[string]*core.AgentDescriptor
	agentOrder []string
	tasks      map[string]*core.Task
	routing    map[core.Capability][]string

	historyMu sync.Mutex
	history   []core.Message

	handlersMu sync.RWMutex
	handlers   map[core.MessageKind][]core.MessageHandler

	bus            *bus.MessageBus
	maxActiveTasks int
	logger         logging.Logger
}

// Option customizes controller construction.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMaxActiveTasks caps the number of non-terminal tasks the controller
// will hold. Zero means unlimited. When the cap is reached CreateTask refuses
// new work with an empty id.
func WithMaxActiveTasks(n int) Option {
	return func(c *Controller) { c.maxActiveTasks = n }
}

// New constructs a controller over the given bus.
func New(b *bus.MessageBus, optFns ...Option) *Controller {
	c := &Controller{
		agents:   make(map[string]*core.AgentDescriptor),
		tasks:    make(map[string]*core.Task),
		routing:  make(map[core.Capability][]string),
		handlers: make(map[core.MessageKind][]core.MessageHandler),
		bus:      b,
		logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(c)
	}
	c.logger.Info("controller initialized")
	return c
}

// Bus returns the composed message bus.
func (c *Controller) Bus() *bus.MessageBus { return c.bus }

// RegisterAgent adds an agent to the registry and indexes its capabilities.
// Returns false with no state change if the id is already registered.
func (c *Controller) RegisterAgent(id, name string, capabilities []core.Capability, metadata map[string]any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.agents[id]; exists {
		c.logger.Warn("agent already registered", "agent_id", id)
		return false
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	now := time.Now().UTC()
	desc := &core.AgentDescriptor{
		ID:           id,
		Name:         name,
		Capabilities: append([]core.Capability(nil), capabilities...),
		Status:       core.AgentActive,
		RegisteredAt: now,
		LastActive:   now,
		Metadata:     metadata,
	}
	c.agents[id] = desc
	c.agentOrder = append(c.agentOrder, id)
	for _, cap := range desc.Capabilities {
		c.routing[cap] = append(c.routing[cap], id)
	}
	c.logger.Info("agent registered", "agent_id", id, "name", name, "capabilities", core.CapabilityStrings(desc.Capabilities))
	return true
}

// UnregisterAgent removes an agent from the registry and from every
// capability list it appears in. Tasks already assigned to it keep their
// status. Returns false for unknown ids.
func (c *Controller) UnregisterAgent(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	desc, exists := c.agents[id]
	if !exists {
		c.logger.Warn("agent not found", "agent_id", id)
		return false
	}
	for _, cap := range desc.Capabilities {
		c.routing[cap] = removeID(c.routing[cap], id)
		if len(c.routing[cap]) == 0 {
			delete(c.routing, cap)
		}
	}
	c.agentOrder = removeID(c.agentOrder, id)
	delete(c.agents, id)
	c.logger.Info("agent unregistered", "agent_id", id, "name", desc.Name)
	return true
}

// CreateTask materializes a pending task, records the required capabilities
// into its metadata as string tags, stores it and immediately attempts
// assignment. The returned id is valid even when assignment fails; the task
// simply stays pending. An empty id is returned only when the active-task cap
// refuses new work.
func (c *Controller) CreateTask(description, creatorID string, required []core.Capability, priority int, deadline *time.Time, metadata map[string]any) string {
	taskMeta := map[string]any{}
	for k, v := range metadata {
		taskMeta[k] = v
	}
	taskMeta[core.MetaRequiredCapabilities] = core.CapabilityStrings(required)

	task := core.NewTask(description, creatorID, priority, taskMeta)
	if deadline != nil {
		d := *deadline
		task.Deadline = &d
	}

	c.mu.Lock()
	if c.maxActiveTasks > 0 && c.activeTaskCountLocked() >= c.maxActiveTasks {
		c.mu.Unlock()
		c.logger.Warn("active task cap reached, task refused", "creator_id", creatorID, "cap", c.maxActiveTasks)
		return ""
	}
	c.tasks[task.ID] = task
	c.mu.Unlock()

	c.logger.Info("task created", "task_id", task.ID, "description", truncate(description, 50))

	c.AssignTask(task.ID, required)

	return task.ID
}

// AssignTask selects the first registered agent, in registration order, whose
// capabilities are a superset of required, transitions the task
// pending→assigned and sends a task_assignment message to the selected agent.
// A non-pending task is a no-op returning false.
func (c *Controller) AssignTask(taskID string, required []core.Capability) bool {
	c.mu.RLock()
	task, exists := c.tasks[taskID]
	if !exists {
		c.mu.RUnlock()
		c.logger.Error("task not found", "task_id", taskID)
		return false
	}

	var selected string
	for _, id := range c.agentOrder {
		if c.agents[id].HasCapabilities(required) {
			selected = id
			break
		}
	}
	c.mu.RUnlock()

	if selected == "" {
		c.logger.Warn("no suitable agent for task", "task_id", taskID)
		return false
	}

	if !task.Assign(selected) {
		c.logger.Warn("task not pending, assignment skipped", "task_id", taskID, "status", task.Status().String())
		return false
	}

	assignment := core.TaskAssignment{
		TaskID:      taskID,
		Description: task.Description,
		Metadata:    task.Metadata,
	}
	c.SendMessage(core.ControllerID, selected, assignment.Content(), core.KindTaskAssignment)

	c.logger.Info("task assigned", "task_id", taskID, "agent_id", selected)
	return true
}

// SendMessage creates a message, appends it to the history, publishes it to
// the bus and synchronously runs the in-process handlers registered for its
// kind. Handler panics are contained and do not abort the remaining handlers.
// Returns the message id.
func (c *Controller) SendMessage(senderID, receiverID string, content map[string]any, kind core.MessageKind) string {
	msg := core.NewMessage(senderID, receiverID, content, kind)

	c.historyMu.Lock()
	c.history = append(c.history, msg)
	c.historyMu.Unlock()

	c.touchAgent(senderID)

	if c.bus != nil {
		c.bus.Publish(msg)
	}

	c.handlersMu.RLock()
	handlers := append([]core.MessageHandler(nil), c.handlers[kind]...)
	c.handlersMu.RUnlock()
	for _, h := range handlers {
		c.runHandler(h, msg)
	}

	c.logger.Debug("message sent", "message_id", msg.ID, "sender_id", senderID, "receiver_id", receiverID)
	return msg.ID
}

func (c *Controller) runHandler(h core.MessageHandler, msg core.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("message handler panicked", "message_id", msg.ID, "panic", r)
		}
	}()
	h(msg)
}

// touchAgent updates LastActive when the controller observes a message from a
// registered agent.
func (c *Controller) touchAgent(senderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if desc, ok := c.agents[senderID]; ok {
		desc.LastActive = time.Now().UTC()
	}
}

// RegisterMessageHandler appends a handler to the per-kind list. Handlers run
// synchronously inside SendMessage in registration order.
func (c *Controller) RegisterMessageHandler(kind core.MessageKind, handler core.MessageHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[kind] = append(c.handlers[kind], handler)
	c.logger.Debug("message handler registered", "kind", kind.String())
}

// UpdateTaskStatus transitions a task and records the result when given. On a
// terminal status a task_result message is sent to the task's creator.
// Illegal transitions and unknown ids return false.
func (c *Controller) UpdateTaskStatus(taskID string, status core.TaskStatus, result map[string]any) bool {
	c.mu.RLock()
	task, exists := c.tasks[taskID]
	c.mu.RUnlock()
	if !exists {
		c.logger.Error("task not found", "task_id", taskID)
		return false
	}

	if !task.Transition(status, result) {
		c.logger.Warn("illegal task transition rejected", "task_id", taskID, "to", status.String())
		return false
	}

	if status.Terminal() {
		res := core.TaskResult{TaskID: taskID, Status: status, Result: task.Result()}
		c.SendMessage(core.ControllerID, task.CreatorID, res.Content(), core.KindTaskResult)
	}

	c.logger.Info("task status updated", "task_id", taskID, "status", status.String())
	return true
}

// GetAgentsByCapability returns a copy of the routing list for a capability.
func (c *Controller) GetAgentsByCapability(capability core.Capability) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.routing[capability]...)
}

// GetAgent returns a copy of the registry descriptor for id.
func (c *Controller) GetAgent(id string) (core.AgentDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	desc, ok := c.agents[id]
	if !ok {
		return core.AgentDescriptor{}, false
	}
	out := *desc
	out.Capabilities = append([]core.Capability(nil), desc.Capabilities...)
	return out, true
}

// GetTask returns the live task for id. The task's own lock guards its
// mutable fields.
func (c *Controller) GetTask(id string) (*core.Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tasks[id]
	return t, ok
}

// GetTaskStatus returns the status of a task, false for unknown ids.
func (c *Controller) GetTaskStatus(taskID string) (core.TaskStatus, bool) {
	c.mu.RLock()
	task, exists := c.tasks[taskID]
	c.mu.RUnlock()
	if !exists {
		return "", false
	}
	return task.Status(), true
}

// SystemStatus summarizes registries and history for operators.
type SystemStatus struct {
	AgentsTotal   int                     `json:"agents_total"`
	AgentsActive  int                     `json:"agents_active"`
	TasksTotal    int                     `json:"tasks_total"`
	TasksByStatus map[core.TaskStatus]int `json:"tasks_by_status"`
	Messages      int                     `json:"messages"`
}

// GetSystemStatus counts agents by active state, tasks by status and total
// messages observed.
func (c *Controller) GetSystemStatus() SystemStatus {
	c.mu.RLock()
	status := SystemStatus{
		AgentsTotal:   len(c.agents),
		TasksTotal:    len(c.tasks),
		TasksByStatus: make(map[core.TaskStatus]int),
	}
	for _, desc := range c.agents {
		if desc.Status == core.AgentActive {
			status.AgentsActive++
		}
	}
	for _, task := range c.tasks {
		status.TasksByStatus[task.Status()]++
	}
	c.mu.RUnlock()

	c.historyMu.Lock()
	status.Messages = len(c.history)
	c.historyMu.Unlock()
	return status
}

// MessageHistory returns a copy of the history log in publish order.
func (c *Controller) MessageHistory() []core.Message {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	return append([]core.Message(nil), c.history...)
}

// SetAgentStatus records a status change for a registered agent, typically
// driven by agent_status messages. Returns false for unknown ids.
func (c *Controller) SetAgentStatus(id string, status core.AgentStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	desc, ok := c.agents[id]
	if !ok {
		return false
	}
	desc.Status = status
	return true
}

// PruneTasks drops terminal tasks created before the retention cutoff and
// returns how many were removed.
func (c *Controller) PruneTasks(retention time.Duration) int {
	cutoff := time.Now().UTC().Add(-retention)
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, task := range c.tasks {
		if task.Status().Terminal() && task.CreatedAt.Before(cutoff) {
			delete(c.tasks, id)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Info("terminal tasks pruned", "removed", removed)
	}
	return removed
}

func (c *Controller) activeTaskCountLocked() int {
	n := 0
	for _, task := range c.tasks {
		if !task.Status().Terminal() {
			n++
		}
	}
	return n
}

func removeID(list []string, id string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
