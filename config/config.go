// Package config provides configuration loading and management for AgentFabric.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete AgentFabric configuration
type Config struct {
	Bus        BusConfig       `yaml:"bus"`
	Controller ControlConfig   `yaml:"controller"`
	Retriever  RetrieverConfig `yaml:"retriever"`
	Chunker    ChunkerConfig   `yaml:"chunker"`
	Agents     AgentsConfig    `yaml:"agents"`
	Log        LogConfig       `yaml:"log"`
	NATS       NATSConfig      `yaml:"nats"`
}

// BusConfig configures the message bus worker pool and stream topics
type BusConfig struct {
	// QueueSize is the total submission queue capacity (default: 1000)
	QueueSize int `yaml:"queue_size"`
	// Workers is the dispatch pool size (default: 4)
	Workers int `yaml:"workers"`
	// Topic is the external log topic (default: mcp-messages)
	Topic string `yaml:"topic"`
	// SystemTopic is the topic name for system notifications
	SystemTopic string `yaml:"system_topic"`
	// TaskTopic is the topic name for task traffic
	TaskTopic string `yaml:"task_topic"`
	// AgentTopic is the topic name for agent lifecycle traffic
	AgentTopic string `yaml:"agent_topic"`
	// DrainGrace bounds the shutdown drain window
	DrainGrace time.Duration `yaml:"drain_grace"`
}

// ControlConfig configures the controller registries
type ControlConfig struct {
	// TaskRetentionDays is how long terminal tasks are kept before pruning
	TaskRetentionDays int `yaml:"task_retention_days"`
	// MaxActiveTasks caps non-terminal tasks, 0 = unlimited
	MaxActiveTasks int `yaml:"max_active_tasks"`
}

// RetrieverConfig configures retrieval defaults
type RetrieverConfig struct {
	// TopK is the default retrieval depth (default: 5)
	TopK int `yaml:"top_k"`
	// Alpha is the default hybrid blend weight (default: 0.5)
	Alpha float64 `yaml:"alpha"`
	// UseHybridSearch toggles hybrid retrieval (default: true)
	UseHybridSearch bool `yaml:"use_hybrid_search"`
}

// ChunkerConfig configures document chunking
type ChunkerConfig struct {
	// ChunkSize is the target chunk length in characters (default: 1000)
	ChunkSize int `yaml:"chunk_size"`
	// ChunkOverlap is the overlap between chunks (default: 200)
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// AgentsConfig holds per-agent-type settings keyed by type name
type AgentsConfig map[string]AgentTypeConfig

// AgentTypeConfig configures one agent type
type AgentTypeConfig struct {
	// Capabilities lists the capability tags for the type. Fabric.NewTextAgent
	// does not read it; a TextAgent always registers text_processing and
	// reasoning.
	Capabilities []string `yaml:"capabilities"`
	// RagK overrides the retrieval depth for the type
	RagK int `yaml:"rag_k"`
	// UseHybridSearch overrides hybrid retrieval for the type
	UseHybridSearch *bool `yaml:"use_hybrid_search"`
}

// LogConfig configures structured logging
type LogConfig struct {
	// Level is one of debug, info, warn, error (default: info)
	Level string `yaml:"level"`
	// Format is json or text (default: json)
	Format string `yaml:"format"`
}

// NATSConfig configures the durable log connection
type NATSConfig struct {
	// URL is the NATS server URL. agentfabric.New does not read it; the bus
	// sink is the one passed in Options.Sink.
	URL string `yaml:"url"`
	// SubjectPrefix namespaces published subjects
	SubjectPrefix string `yaml:"subject_prefix"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Bus: BusConfig{
			QueueSize:   1000,
			Workers:     4,
			Topic:       "mcp-messages",
			SystemTopic: "system",
			TaskTopic:   "tasks",
			AgentTopic:  "agents",
			DrainGrace:  5 * time.Second,
		},
		Controller: ControlConfig{
			TaskRetentionDays: 7,
			MaxActiveTasks:    0,
		},
		Retriever: RetrieverConfig{
			TopK:            5,
			Alpha:           0.5,
			UseHybridSearch: true,
		},
		Chunker: ChunkerConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
		},
		Agents: AgentsConfig{
			"text": {
				Capabilities: []string{"text_processing", "reasoning"},
				RagK:         5,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		NATS: NATSConfig{
			URL: "",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Bus.QueueSize <= 0 {
		return fmt.Errorf("bus.queue_size must be positive")
	}
	if c.Bus.Workers <= 0 {
		return fmt.Errorf("bus.workers must be positive")
	}
	if c.Retriever.TopK <= 0 {
		return fmt.Errorf("retriever.top_k must be positive")
	}
	if c.Retriever.Alpha < 0 || c.Retriever.Alpha > 1 {
		return fmt.Errorf("retriever.alpha must be in [0,1]")
	}
	if c.Chunker.ChunkSize <= 0 {
		return fmt.Errorf("chunker.chunk_size must be positive")
	}
	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		return fmt.Errorf("chunker.chunk_overlap must be in [0, chunk_size)")
	}
	if c.Controller.TaskRetentionDays < 0 {
		return fmt.Errorf("controller.task_retention_days must not be negative")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

// Load reads a YAML config file, layering it over the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

// TaskRetention converts the retention setting to a duration.
func (c *Config) TaskRetention() time.Duration {
	return time.Duration(c.Controller.TaskRetentionDays) * 24 * time.Hour
}
