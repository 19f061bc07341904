// Package agentfabric provides a high-level façade over the controller, the
// message bus and the workflow engine, enabling rapid construction of
// multi-agent coordination systems. Most applications interact with this
// package by:
//  1. Creating a Fabric via New() (optionally overriding the sink, logger
//     and configuration)
//  2. Registering one or more agents (text or custom BaseAgent compositions)
//  3. Creating tasks through the controller and, for composite jobs, running
//     workflows through the workflow set
//
// The façade delegates coordination to controller.Controller while keeping
// setup ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a NATS-backed sink and a
// structured logger.
package agentfabric

import (
	"time"

	"github.com/agentfabric/agentfabric/agent"
	"github.com/agentfabric/agentfabric/bus"
	"github.com/agentfabric/agentfabric/config"
	"github.com/agentfabric/agentfabric/controller"
	"github.com/agentfabric/agentfabric/core"
	"github.com/agentfabric/agentfabric/graph"
	"github.com/agentfabric/agentfabric/logging"
	"github.com/agentfabric/agentfabric/model"
	"github.com/agentfabric/agentfabric/rag"
)

// Options configures the Fabric instance.
type Options struct {
	// Config supplies bus, controller, retriever and chunker settings.
	// Nil means config.DefaultConfig().
	Config *config.Config

	// Sink is the external durable log. Nil means bus.NopSink.
	Sink bus.Sink

	// Logger defaults to NoOp logger if nil.
	Logger logging.Logger

	// Model is the text-generation service handed to agents created through
	// the façade.
	Model model.Model

	// Store is the vector store backing retrieval. Nil means the in-memory
	// store.
	Store rag.VectorStore
}

// Fabric aggregates the bus, the controller, the retrieval stack and the
// workflow set behind one handle.
type Fabric struct {
	cfg        *config.Config
	logger     logging.Logger
	bus        *bus.MessageBus
	controller *controller.Controller
	retriever  *rag.Retriever
	mdl        model.Model
	executors  []graph.TaskExecutor
}

// New creates a Fabric with optional overrides. Any unset collaborator is
// substituted by its in-memory default.
func New(optFns ...func(o *Options)) (*Fabric, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	b := bus.New(opts.Sink,
		bus.WithWorkers(cfg.Bus.Workers),
		bus.WithQueueSize(cfg.Bus.QueueSize),
		bus.WithTopic(cfg.Bus.Topic),
		bus.WithDrainGrace(cfg.Bus.DrainGrace),
		bus.WithLogger(logger),
	)

	ctrl := controller.New(b,
		controller.WithLogger(logger),
		controller.WithMaxActiveTasks(cfg.Controller.MaxActiveTasks),
	)

	// Agent status messages flow back into the registry.
	ctrl.RegisterMessageHandler(core.KindAgentStatus, func(msg core.Message) {
		if s, ok := msg.Content["status"].(string); ok {
			ctrl.SetAgentStatus(msg.SenderID, core.AgentStatus(s))
		}
	})

	store := opts.Store
	if store == nil {
		store = rag.NewInMemoryStore()
	}
	chunker, err := rag.NewChunker(rag.ChunkerConfig{
		ChunkSize:    cfg.Chunker.ChunkSize,
		ChunkOverlap: cfg.Chunker.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}
	retriever := rag.NewRetriever(store, chunker,
		rag.WithTopK(cfg.Retriever.TopK),
		rag.WithAlpha(cfg.Retriever.Alpha),
		rag.WithHybridSearch(cfg.Retriever.UseHybridSearch),
		rag.WithLogger(logger),
	)

	return &Fabric{
		cfg:        cfg,
		logger:     logger,
		bus:        b,
		controller: ctrl,
		retriever:  retriever,
		mdl:        opts.Model,
	}, nil
}

// Controller returns the fabric controller.
func (f *Fabric) Controller() *controller.Controller { return f.controller }

// Bus returns the message bus.
func (f *Fabric) Bus() *bus.MessageBus { return f.bus }

// Retriever returns the retrieval stack.
func (f *Fabric) Retriever() *rag.Retriever { return f.retriever }

// NewTextAgent creates a text agent wired to the fabric's controller,
// retriever and model, attaches it to the bus and tracks it for workflow
// execution.
func (f *Fabric) NewTextAgent(optFns ...agent.TextOption) *agent.TextAgent {
	typeCfg, hasTypeCfg := f.cfg.Agents["text"]
	defaults := []agent.TextOption{
		agent.WithBaseOptions(agent.WithLogger(f.logger)),
	}
	if hasTypeCfg {
		if typeCfg.RagK > 0 {
			defaults = append(defaults, agent.WithRagK(typeCfg.RagK))
		}
		if typeCfg.UseHybridSearch != nil {
			defaults = append(defaults, agent.WithHybridSearch(*typeCfg.UseHybridSearch))
		}
	}
	t := agent.NewTextAgent(f.controller, f.retriever, f.mdl, append(defaults, optFns...)...)
	t.Attach(f.bus)
	f.executors = append(f.executors, t)
	return t
}

// RegisterExecutor tracks a custom agent for workflow execution.
func (f *Fabric) RegisterExecutor(e graph.TaskExecutor) {
	f.executors = append(f.executors, e)
}

// Workflows builds a workflow set over the currently registered executors
// and the fabric's retriever.
func (f *Fabric) Workflows() *graph.WorkflowSet {
	return graph.NewWorkflowSet(f.controller, f.executors, f.retriever, f.logger)
}

// PruneTasks drops terminal tasks older than the configured retention and
// returns how many were removed.
func (f *Fabric) PruneTasks() int {
	retention := f.cfg.TaskRetention()
	if retention <= 0 {
		return 0
	}
	return f.controller.PruneTasks(retention)
}

// Shutdown broadcasts a shutdown notification to all agents, gives their
// handlers a moment to run, then drains the bus.
func (f *Fabric) Shutdown() {
	n := core.SystemNotification{Type: core.NotificationShutdown}
	f.controller.SendMessage(core.ControllerID, core.BroadcastID, n.Content(), core.KindSystemNotification)
	time.Sleep(100 * time.Millisecond)
	f.bus.Shutdown()
}
