package graph

import (
	"fmt"
	"sync"
	"time"

	"github.com/agentfabric/agentfabric/logging"
)

// NodeFunc is a graph node: it reads and writes the execution state and
// returns the node's output map.
type NodeFunc func(state *State) (map[string]any, error)

// Predicate guards an edge. It is evaluated against the current state; the
// first predicate that holds selects the successor.
type Predicate func(state *State) bool

// Always is the predicate of an unconditional edge.
func Always(*State) bool { return true }

// edge is a (target, predicate) pair stored per source in insertion order.
// Targets are node indices into the flat node arrays so successor evaluation
// does no map lookups.
type edge struct {
	target int
	pred   Predicate
}

// Graph is a directed, predicate-edged node graph with a single entry and one
// or more terminal nodes. Construction validates edge endpoints; execution is
// deterministic given deterministic predicates.
//
// A Graph is built once and may then be executed many times; Execute itself
// is not safe for concurrent calls on the same Graph because of the shared
// scratchpad.
type Graph struct {
	names  []string
	index  map[string]int
	fns    []NodeFunc
	edges  [][]edge
	entry  int
	exit   []bool
	logger logging.Logger

	scratchMu sync.RWMutex
	scratch   map[string]any
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		index:   make(map[string]int),
		entry:   -1,
		logger:  logging.NoOpLogger{},
		scratch: make(map[string]any),
	}
}

// SetLogger replaces the graph logger.
func (g *Graph) SetLogger(l logging.Logger) *Graph {
	if l != nil {
		g.logger = l
	}
	return g
}

// AddNode registers a named node function. Duplicate names are rejected.
func (g *Graph) AddNode(name string, fn NodeFunc) error {
	if fn == nil {
		return fmt.Errorf("node %q has nil function", name)
	}
	if _, exists := g.index[name]; exists {
		return fmt.Errorf("node %q already added", name)
	}
	g.index[name] = len(g.names)
	g.names = append(g.names, name)
	g.fns = append(g.fns, fn)
	g.edges = append(g.edges, nil)
	g.exit = append(g.exit, false)
	g.logger.Debug("node added", "node", name)
	return nil
}

// SetEntryPoint declares the single entry node. The node must already exist.
func (g *Graph) SetEntryPoint(name string) error {
	i, ok := g.index[name]
	if !ok {
		return fmt.Errorf("entry node %q does not exist", name)
	}
	g.entry = i
	return nil
}

// AddExitNode marks an existing node as terminal.
func (g *Graph) AddExitNode(name string) error {
	i, ok := g.index[name]
	if !ok {
		return fmt.Errorf("exit node %q does not exist", name)
	}
	g.exit[i] = true
	return nil
}

// AddEdge adds an unconditional edge between two existing nodes.
func (g *Graph) AddEdge(from, to string) error {
	return g.AddConditionalEdge(from, to, Always)
}

// AddConditionalEdge adds a predicate-guarded edge between two existing
// nodes. Edges from the same source are evaluated in insertion order.
func (g *Graph) AddConditionalEdge(from, to string, pred Predicate) error {
	src, ok := g.index[from]
	if !ok {
		return fmt.Errorf("source node %q does not exist", from)
	}
	dst, ok := g.index[to]
	if !ok {
		return fmt.Errorf("target node %q does not exist", to)
	}
	if pred == nil {
		pred = Always
	}
	g.edges[src] = append(g.edges[src], edge{target: dst, pred: pred})
	g.logger.Debug("edge added", "from", from, "to", to)
	return nil
}

// Nodes returns the node names in insertion order.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.names...)
}

// SetScratch writes a key into the per-execution scratchpad.
func (g *Graph) SetScratch(key string, value any) {
	g.scratchMu.Lock()
	defer g.scratchMu.Unlock()
	g.scratch[key] = value
}

// Scratch reads a key from the per-execution scratchpad.
func (g *Graph) Scratch(key string) (any, bool) {
	g.scratchMu.RLock()
	defer g.scratchMu.RUnlock()
	v, ok := g.scratch[key]
	return v, ok
}

// Result is the outcome of one graph execution. On failure ExecutionPath and
// NodeOutputs reflect progress up to the failing node.
type Result struct {
	Success       bool
	ExecutionPath []string
	NodeOutputs   map[string]map[string]any
	ErrorMessage  string
}

// LastOutput returns the output of the last executed node, nil when nothing
// ran.
func (r Result) LastOutput() map[string]any {
	if len(r.ExecutionPath) == 0 {
		return nil
	}
	return r.NodeOutputs[r.ExecutionPath[len(r.ExecutionPath)-1]]
}

// Execute runs the graph from the entry node against the given state. The
// state is mutated in place. Node or predicate failures stop execution with a
// failure result carrying the partial path and outputs; reaching a node with
// no passing edge terminates early with success.
func (g *Graph) Execute(state *State) Result {
	res := Result{NodeOutputs: make(map[string]map[string]any)}
	if g.entry < 0 {
		res.ErrorMessage = "entry point not set"
		return res
	}
	if state == nil {
		state = NewState()
	}

	g.scratchMu.Lock()
	g.scratch = make(map[string]any)
	g.scratchMu.Unlock()

	start := time.Now()
	current := g.entry

	for !g.exit[current] {
		name := g.names[current]
		g.logger.Debug("executing node", "node", name)
		res.ExecutionPath = append(res.ExecutionPath, name)

		out, err := g.runNode(current, state)
		if err != nil {
			g.logger.Error("node failed", "node", name, "error", err)
			res.ErrorMessage = err.Error()
			return res
		}
		res.NodeOutputs[name] = out

		next, err := g.nextNode(current, state)
		if err != nil {
			res.ErrorMessage = err.Error()
			return res
		}
		if next < 0 {
			g.logger.Warn("no valid transition, terminating early", "node", name)
			res.Success = true
			return res
		}
		current = next
	}

	name := g.names[current]
	g.logger.Debug("executing exit node", "node", name)
	res.ExecutionPath = append(res.ExecutionPath, name)
	out, err := g.runNode(current, state)
	if err != nil {
		g.logger.Error("exit node failed", "node", name, "error", err)
		res.ErrorMessage = err.Error()
		return res
	}
	res.NodeOutputs[name] = out

	res.Success = true
	g.logger.Debug("graph completed", "steps", len(res.ExecutionPath), "duration", time.Since(start))
	return res
}

// runNode invokes a node function converting panics into errors so one
// misbehaving node cannot take down the caller.
func (g *Graph) runNode(i int, state *State) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("node %s panicked: %v", g.names[i], r)
		}
	}()
	return g.fns[i](state)
}

// nextNode evaluates outgoing edges in insertion order and returns the first
// whose predicate holds, -1 when none do.
func (g *Graph) nextNode(i int, state *State) (next int, err error) {
	defer func() {
		if r := recover(); r != nil {
			next = -1
			err = fmt.Errorf("predicate on %s panicked: %v", g.names[i], r)
		}
	}()
	for _, e := range g.edges[i] {
		if e.pred(state) {
			return e.target, nil
		}
	}
	return -1, nil
}
