package agent

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agentfabric/agentfabric/core"
	"github.com/agentfabric/agentfabric/logging"
)

// ErrUnknownTaskKind is returned by ExecuteTask for task kinds no handler was
// registered for.
var ErrUnknownTaskKind = errors.New("unknown task kind")

// TaskHandlerFunc executes one kind of task and returns its result map.
type TaskHandlerFunc func(assignment core.TaskAssignment) (map[string]any, error)

// TaskHandler pairs a handler with the metadata keys it requires. Key
// validation runs before the handler body so handlers can assume their
// inputs are present.
type TaskHandler struct {
	Kind         string
	RequiredKeys []string
	Fn           TaskHandlerFunc
}

// Subscriber is the slice of the bus the agent runtime needs to attach
// itself. *bus.MessageBus satisfies it.
type Subscriber interface {
	Subscribe(agentID string, handler core.MessageHandler) bool
}

// BaseAgent is the shared agent runtime. On construction it registers itself
// with the controller, installs default handlers for task_assignment and
// system_notification messages and transitions to active. Concrete agents
// embed it and register task handlers for their work kinds.
type BaseAgent struct {
	id           string
	name         string
	capabilities []core.Capability
	controller   core.ControllerAPI
	metadata     map[string]any
	logger       logging.Logger

	mu          sync.RWMutex
	status      core.AgentStatus
	currentTask string

	handlersMu sync.RWMutex
	handlers   map[core.MessageKind][]core.MessageHandler

	taskMu       sync.RWMutex
	taskHandlers map[string]TaskHandler
	defaultKind  string
}

// Option customizes agent construction.
type Option func(*BaseAgent)

// WithID overrides the generated agent id.
func WithID(id string) Option {
	return func(a *BaseAgent) { a.id = id }
}

// WithMetadata attaches registry metadata to the agent.
func WithMetadata(md map[string]any) Option {
	return func(a *BaseAgent) { a.metadata = md }
}

// WithLogger sets the agent logger.
func WithLogger(l logging.Logger) Option {
	return func(a *BaseAgent) { a.logger = l }
}

// WithDefaultTaskKind sets the kind assumed for assignments whose metadata
// carries no task_type. Defaults to "qa".
func WithDefaultTaskKind(kind string) Option {
	return func(a *BaseAgent) { a.defaultKind = kind }
}

// New constructs a BaseAgent and registers it with the controller. The
// returned agent is active when registration succeeded; when registration
// fails (duplicate id or nil controller) it stays in its initial paused state
// and a warning is logged.
func New(name string, capabilities []core.Capability, ctrl core.ControllerAPI, optFns ...Option) *BaseAgent {
	a := &BaseAgent{
		id:           core.NewID(),
		name:         name,
		capabilities: append([]core.Capability(nil), capabilities...),
		controller:   ctrl,
		metadata:     map[string]any{},
		logger:       logging.NoOpLogger{},
		status:       core.AgentPaused,
		handlers:     make(map[core.MessageKind][]core.MessageHandler),
		taskHandlers: make(map[string]TaskHandler),
		defaultKind:  "qa",
	}
	for _, fn := range optFns {
		fn(a)
	}

	a.RegisterMessageHandler(core.KindTaskAssignment, a.handleTaskAssignment)
	a.RegisterMessageHandler(core.KindSystemNotification, a.handleSystemNotification)

	if ctrl != nil && ctrl.RegisterAgent(a.id, a.name, a.capabilities, a.metadata) {
		a.setStatus(core.AgentActive)
		a.logger.Info("agent registered with controller", "agent_id", a.id, "name", name)
	} else {
		a.logger.Warn("agent registration failed", "agent_id", a.id, "name", name)
	}
	return a
}

// ID returns the agent id.
func (a *BaseAgent) ID() string { return a.id }

// Name returns the human name.
func (a *BaseAgent) Name() string { return a.name }

// Capabilities returns a copy of the capability set.
func (a *BaseAgent) Capabilities() []core.Capability {
	return append([]core.Capability(nil), a.capabilities...)
}

// Status returns the agent's local lifecycle state.
func (a *BaseAgent) Status() core.AgentStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// CurrentTask returns the id of the assignment being executed, empty when
// idle.
func (a *BaseAgent) CurrentTask() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.currentTask
}

func (a *BaseAgent) setStatus(s core.AgentStatus) {
	a.mu.Lock()
	prev := a.status
	a.status = s
	a.mu.Unlock()
	if prev != s && a.controller != nil {
		a.controller.SendMessage(a.id, core.ControllerID,
			map[string]any{"status": s.String()}, core.KindAgentStatus)
	}
}

// Attach subscribes the agent's message entry point on the bus.
func (a *BaseAgent) Attach(b Subscriber) bool {
	return b.Subscribe(a.id, a.HandleMessage)
}

// RegisterMessageHandler appends a handler for a message kind. Invocation
// order is registration order.
func (a *BaseAgent) RegisterMessageHandler(kind core.MessageKind, h core.MessageHandler) {
	a.handlersMu.Lock()
	defer a.handlersMu.Unlock()
	a.handlers[kind] = append(a.handlers[kind], h)
}

// RegisterTaskHandler installs a handler for a task kind. A handler with a
// nil Fn or empty Kind is rejected.
func (a *BaseAgent) RegisterTaskHandler(h TaskHandler) error {
	if h.Kind == "" || h.Fn == nil {
		return fmt.Errorf("task handler needs kind and fn")
	}
	a.taskMu.Lock()
	defer a.taskMu.Unlock()
	a.taskHandlers[h.Kind] = h
	return nil
}

// HandleMessage is the bus entry point. Messages addressed to another agent
// (and not broadcast) are dropped with a warning; everything else dispatches
// to the per-kind handlers with panic isolation.
func (a *BaseAgent) HandleMessage(msg core.Message) {
	if msg.ReceiverID != a.id && !msg.IsBroadcast() {
		a.logger.Warn("message for another receiver dropped", "agent_id", a.id, "receiver_id", msg.ReceiverID, "message_id", msg.ID)
		return
	}

	a.handlersMu.RLock()
	handlers := append([]core.MessageHandler(nil), a.handlers[msg.Kind]...)
	a.handlersMu.RUnlock()

	if len(handlers) == 0 {
		a.logger.Warn("no handler for message kind", "agent_id", a.id, "kind", msg.Kind.String())
		return
	}
	for _, h := range handlers {
		a.runHandler(h, msg)
	}
}

func (a *BaseAgent) runHandler(h core.MessageHandler, msg core.Message) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("agent handler panicked", "agent_id", a.id, "message_id", msg.ID, "panic", r)
		}
	}()
	h(msg)
}

// ExecuteTask dispatches an assignment to the task handler selected by its
// task_type metadata, validating required keys first.
func (a *BaseAgent) ExecuteTask(assignment core.TaskAssignment) (map[string]any, error) {
	kind := a.defaultKind
	if s, ok := assignment.Metadata[core.MetaTaskType].(string); ok && s != "" {
		kind = s
	}

	a.taskMu.RLock()
	handler, ok := a.taskHandlers[kind]
	a.taskMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskKind, kind)
	}
	for _, key := range handler.RequiredKeys {
		if _, present := assignment.Metadata[key]; !present {
			return nil, fmt.Errorf("task %s missing metadata key %q", assignment.TaskID, key)
		}
	}
	return handler.Fn(assignment)
}

// handleTaskAssignment acknowledges the task as in_progress, executes it and
// reports the terminal status back to the controller. The current-task
// pointer is cleared on every path.
func (a *BaseAgent) handleTaskAssignment(msg core.Message) {
	assignment := core.ParseTaskAssignment(msg.Content)
	if assignment.TaskID == "" {
		a.logger.Warn("assignment without task id", "agent_id", a.id, "message_id", msg.ID)
		return
	}
	a.logger.Info("task assignment received", "agent_id", a.id, "task_id", assignment.TaskID)

	a.mu.Lock()
	a.currentTask = assignment.TaskID
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.currentTask = ""
		a.mu.Unlock()
	}()

	if a.controller != nil {
		a.controller.UpdateTaskStatus(assignment.TaskID, core.TaskInProgress, nil)
	}

	start := time.Now()
	result, err := a.ExecuteTask(assignment)
	if err != nil {
		a.logger.Error("task execution failed", "agent_id", a.id, "task_id", assignment.TaskID, "error", err, "duration", time.Since(start))
		if a.controller != nil {
			a.controller.UpdateTaskStatus(assignment.TaskID, core.TaskFailed, core.ErrorResult(err))
		}
		return
	}
	a.logger.Info("task completed", "agent_id", a.id, "task_id", assignment.TaskID, "duration", time.Since(start))
	if a.controller != nil {
		a.controller.UpdateTaskStatus(assignment.TaskID, core.TaskCompleted, result)
	}
}

// handleSystemNotification transitions the agent's local state. A shutdown
// notification additionally unregisters from the controller.
func (a *BaseAgent) handleSystemNotification(msg core.Message) {
	n := core.ParseSystemNotification(msg.Content)
	a.logger.Info("system notification received", "agent_id", a.id, "type", n.Type)

	switch n.Type {
	case core.NotificationShutdown:
		a.setStatus(core.AgentShuttingDown)
		if a.controller != nil {
			a.controller.UnregisterAgent(a.id)
		}
		a.setStatus(core.AgentTerminated)
	case core.NotificationPause:
		a.setStatus(core.AgentPaused)
	case core.NotificationResume:
		a.setStatus(core.AgentActive)
	default:
		a.logger.Warn("unknown notification type", "agent_id", a.id, "type", n.Type)
	}
}

// SendMessage sends a message on the agent's behalf via the controller.
func (a *BaseAgent) SendMessage(receiverID string, content map[string]any, kind core.MessageKind) string {
	if a.controller == nil {
		a.logger.Error("no controller reference, message not sent", "agent_id", a.id)
		return ""
	}
	return a.controller.SendMessage(a.id, receiverID, content, kind)
}

// CreateTask submits a new task to the controller with this agent as creator.
func (a *BaseAgent) CreateTask(description string, required []core.Capability, priority int, metadata map[string]any) string {
	if a.controller == nil {
		a.logger.Error("no controller reference, task not created", "agent_id", a.id)
		return ""
	}
	return a.controller.CreateTask(description, a.id, required, priority, nil, metadata)
}
