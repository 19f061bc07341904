package graph

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentfabric/agentfabric/core"
	"github.com/agentfabric/agentfabric/logging"
	"github.com/agentfabric/agentfabric/rag"
)

// State keys the prebuilt workflows read and write.
const (
	StateTaskID          = "task_id"
	StateDescription     = "description"
	StateTaskType        = "task_type"
	StateStartTime       = "start_time"
	StateQueryAnalysis   = "query_analysis"
	StateContext         = "context"
	StateAnswer          = "answer"
	StateSources         = "sources"
	StateNeedsRefinement = "needs_refinement"
	StateRefinements     = "refinement_count"
	StateMaxRefinements  = "max_refinements"
	StateSuggestions     = "improvement_suggestions"
	StateFinalResponse   = "final_response"
	StateDocumentText    = "document_text"
	StateExtracted       = "extracted_keywords"
	StateSummary         = "summary"
	StateClassification  = "classification"
)

// defaultMaxRefinements bounds the QA refinement loop unless the caller seeds
// max_refinements in the initial state.
const defaultMaxRefinements = 2

// minAnswerLength is the answer-quality floor below which the QA workflow
// asks for one more refinement pass.
const minAnswerLength = 50

// TaskExecutor is the slice of an agent the workflows drive: identity,
// capability match and synchronous task execution. *agent.BaseAgent and
// *agent.TextAgent satisfy it.
type TaskExecutor interface {
	ID() string
	Capabilities() []core.Capability
	ExecuteTask(assignment core.TaskAssignment) (map[string]any, error)
}

// TaskSource resolves task ids to live tasks. *controller.Controller
// satisfies it.
type TaskSource interface {
	GetTask(id string) (*core.Task, bool)
}

// Retriever is the slice of the retrieval stack the QA workflow's
// retrieve_information node drives. *rag.Retriever satisfies it.
type Retriever interface {
	Query(query string, opts rag.QueryOptions) ([]rag.Result, error)
}

// WorkflowSet builds and runs the prebuilt multi-agent workflows against a
// roster of agents. Agent lookup is deterministic: first registered executor
// carrying the capability wins. The retriever may be nil; the QA workflow
// then generates without retrieved context.
type WorkflowSet struct {
	tasks     TaskSource
	agents    []TaskExecutor
	retriever Retriever
	logger    logging.Logger
}

// NewWorkflowSet creates a workflow set over the given task source, agents
// and retriever.
func NewWorkflowSet(tasks TaskSource, agents []TaskExecutor, retriever Retriever, logger logging.Logger) *WorkflowSet {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &WorkflowSet{tasks: tasks, agents: agents, retriever: retriever, logger: logger}
}

// findAgent returns the first executor carrying the capability, nil when none
// does.
func (w *WorkflowSet) findAgent(cap core.Capability) TaskExecutor {
	for _, a := range w.agents {
		if core.ContainsAll(a.Capabilities(), []core.Capability{cap}) {
			return a
		}
	}
	return nil
}

// runAgentTask synchronously executes a one-off assignment on the first agent
// carrying the capability.
func (w *WorkflowSet) runAgentTask(cap core.Capability, taskKind, description string, metadata map[string]any) (map[string]any, error) {
	executor := w.findAgent(cap)
	if executor == nil {
		return nil, fmt.Errorf("no agent with capability %s", cap)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata[core.MetaTaskType] = taskKind
	return executor.ExecuteTask(core.TaskAssignment{
		TaskID:      core.NewID(),
		Description: description,
		Metadata:    metadata,
	})
}

// ExecuteTask looks up a stored task, selects the workflow matching its
// task_type metadata (qa by default) and runs it. The returned map is the
// final node output, or an error map carrying the partial execution path on
// failure.
func (w *WorkflowSet) ExecuteTask(taskID string) (map[string]any, error) {
	task, ok := w.tasks.GetTask(taskID)
	if !ok {
		return nil, fmt.Errorf("task not found: %s", taskID)
	}
	taskType := task.TaskType("qa")

	var g *Graph
	var err error
	switch taskType {
	case "qa":
		g, err = w.NewQAWorkflow()
	case "document_processing":
		g, err = w.NewDocumentWorkflow()
	default:
		return nil, fmt.Errorf("unsupported task type: %s", taskType)
	}
	if err != nil {
		return nil, fmt.Errorf("build %s workflow: %w", taskType, err)
	}

	state := NewState().
		Set(StateTaskID, taskID).
		Set(StateDescription, task.Description).
		Set(StateTaskType, taskType).
		Set(StateStartTime, time.Now().UTC())

	res := g.Execute(state)
	if !res.Success {
		w.logger.Error("workflow failed", "task_id", taskID, "error", res.ErrorMessage)
		return map[string]any{
			"error":          res.ErrorMessage,
			"execution_path": res.ExecutionPath,
		}, fmt.Errorf("workflow execution failed: %s", res.ErrorMessage)
	}
	w.logger.Info("workflow completed", "task_id", taskID, "path", strings.Join(res.ExecutionPath, " -> "))
	return res.LastOutput(), nil
}

// NewQAWorkflow builds the question-answering workflow:
//
//	start → analyze_query → retrieve_information → generate_answer →
//	check_answer → refine_answer (needs_refinement) → generate_answer
//	check_answer → format_response → end
//
// The refinement loop is bounded by the refinement counter kept in state.
func (w *WorkflowSet) NewQAWorkflow() (*Graph, error) {
	g := NewGraph().SetLogger(w.logger)

	nodes := []struct {
		name string
		fn   NodeFunc
	}{
		{"start", w.initializeState},
		{"analyze_query", w.analyzeQuery},
		{"retrieve_information", w.retrieveInformation},
		{"generate_answer", w.generateAnswer},
		{"check_answer", w.checkAnswer},
		{"refine_answer", w.refineAnswer},
		{"format_response", w.formatResponse},
		{"end", w.finalizeResponse},
	}
	for _, n := range nodes {
		if err := g.AddNode(n.name, n.fn); err != nil {
			return nil, err
		}
	}
	if err := g.SetEntryPoint("start"); err != nil {
		return nil, err
	}
	if err := g.AddExitNode("end"); err != nil {
		return nil, err
	}

	steps := [][2]string{
		{"start", "analyze_query"},
		{"analyze_query", "retrieve_information"},
		{"retrieve_information", "generate_answer"},
		{"generate_answer", "check_answer"},
		{"refine_answer", "generate_answer"},
		{"format_response", "end"},
	}
	for _, s := range steps {
		if err := g.AddEdge(s[0], s[1]); err != nil {
			return nil, err
		}
	}
	if err := g.AddConditionalEdge("check_answer", "refine_answer", func(s *State) bool {
		return s.GetBool(StateNeedsRefinement)
	}); err != nil {
		return nil, err
	}
	if err := g.AddConditionalEdge("check_answer", "format_response", func(s *State) bool {
		return !s.GetBool(StateNeedsRefinement)
	}); err != nil {
		return nil, err
	}
	return g, nil
}

// NewDocumentWorkflow builds the linear document-processing workflow:
//
//	start → preprocess → analyze_document → extract_information →
//	generate_summary → classify_document → end
func (w *WorkflowSet) NewDocumentWorkflow() (*Graph, error) {
	g := NewGraph().SetLogger(w.logger)

	nodes := []struct {
		name string
		fn   NodeFunc
	}{
		{"start", w.initializeState},
		{"preprocess", w.preprocessDocument},
		{"analyze_document", w.analyzeDocument},
		{"extract_information", w.extractInformation},
		{"generate_summary", w.generateSummary},
		{"classify_document", w.classifyDocument},
		{"end", w.finalizeDocument},
	}
	for _, n := range nodes {
		if err := g.AddNode(n.name, n.fn); err != nil {
			return nil, err
		}
	}
	if err := g.SetEntryPoint("start"); err != nil {
		return nil, err
	}
	if err := g.AddExitNode("end"); err != nil {
		return nil, err
	}
	steps := [][2]string{
		{"start", "preprocess"},
		{"preprocess", "analyze_document"},
		{"analyze_document", "extract_information"},
		{"extract_information", "generate_summary"},
		{"generate_summary", "classify_document"},
		{"classify_document", "end"},
	}
	for _, s := range steps {
		if err := g.AddEdge(s[0], s[1]); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// ---- shared nodes ----

func (w *WorkflowSet) initializeState(s *State) (map[string]any, error) {
	w.logger.Info("workflow started", "task_id", s.GetString(StateTaskID))
	if !s.Has(StateMaxRefinements) {
		s.Set(StateMaxRefinements, defaultMaxRefinements)
	}
	s.Set(StateRefinements, 0)
	return map[string]any{"status": "initialized"}, nil
}

// ---- QA workflow nodes ----

func (w *WorkflowSet) analyzeQuery(s *State) (map[string]any, error) {
	out, err := w.runAgentTask(core.CapabilityTextProcessing, "text_analysis",
		s.GetString(StateDescription), map[string]any{"analysis_type": "query_analysis"})
	if err != nil {
		return nil, fmt.Errorf("analyze query: %w", err)
	}
	s.Set(StateQueryAnalysis, out)
	return map[string]any{"status": "completed"}, nil
}

// retrieveInformation queries the retrieval stack for the task description
// and records the assembled context and source references in state ahead of
// generation. Retrieval failures degrade to an empty context.
func (w *WorkflowSet) retrieveInformation(s *State) (map[string]any, error) {
	if w.retriever == nil {
		s.Set(StateContext, "")
		s.Set(StateSources, []map[string]any{})
		return map[string]any{"status": "completed", "sources_count": 0}, nil
	}

	results, err := w.retriever.Query(s.GetString(StateDescription), rag.QueryOptions{})
	if err != nil {
		w.logger.Warn("retrieval failed, continuing without context", "task_id", s.GetString(StateTaskID), "error", err)
		results = nil
	}

	contextParts := make([]string, 0, len(results))
	sources := make([]map[string]any, 0, len(results))
	for i, r := range results {
		contextParts = append(contextParts, fmt.Sprintf("[%d] %s", i+1, r.Content))
		sources = append(sources, map[string]any{
			"document_id": r.DocumentID,
			"score":       r.Score,
			"metadata":    r.Metadata,
		})
	}
	s.Set(StateContext, strings.Join(contextParts, "\n\n"))
	s.Set(StateSources, sources)
	return map[string]any{"status": "completed", "sources_count": len(results)}, nil
}

func (w *WorkflowSet) generateAnswer(s *State) (map[string]any, error) {
	metadata := map[string]any{}
	if contextText := s.GetString(StateContext); contextText != "" {
		metadata["context"] = contextText
	}
	if hints := s.GetString(StateSuggestions); hints != "" {
		metadata[StateSuggestions] = hints
	}
	out, err := w.runAgentTask(core.CapabilityTextProcessing, "qa",
		s.GetString(StateDescription), metadata)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	answer, _ := out["answer"].(string)
	s.Set(StateAnswer, answer)
	if sources, ok := out["sources"].([]map[string]any); ok && len(sources) > 0 {
		s.Set(StateSources, sources)
	}
	return map[string]any{"status": "completed", "answer": answer}, nil
}

func (w *WorkflowSet) checkAnswer(s *State) (map[string]any, error) {
	answer := s.GetString(StateAnswer)
	refinements := s.GetInt(StateRefinements)
	maxRefinements := s.GetInt(StateMaxRefinements)

	tooShort := len(answer) < minAnswerLength
	sources, _ := s.GetDefault(StateSources, []map[string]any{}).([]map[string]any)
	noReferences := len(sources) > 0 && !containsCitation(answer)

	var suggestions []string
	if tooShort {
		suggestions = append(suggestions, "expand the answer with more detail")
	}
	if noReferences {
		suggestions = append(suggestions, "cite the retrieved sources with [n] markers")
	}
	s.Set(StateSuggestions, strings.Join(suggestions, "; "))

	needs := (tooShort || noReferences) && refinements < maxRefinements
	s.Set(StateNeedsRefinement, needs)
	return map[string]any{
		"status":            "completed",
		"needs_refinement":  needs,
		"refinement_count":  refinements,
		"answer_length":     len(answer),
		"answer_too_short":  tooShort,
		"missing_citations": noReferences,
	}, nil
}

func (w *WorkflowSet) refineAnswer(s *State) (map[string]any, error) {
	refinements := s.GetInt(StateRefinements) + 1
	s.Set(StateRefinements, refinements)
	return map[string]any{"status": "completed", "refinement_count": refinements}, nil
}

// containsCitation reports whether the answer carries at least one [n]
// source marker, matching the labels retrieveInformation assigns.
func containsCitation(answer string) bool {
	for i := 0; i+2 < len(answer); i++ {
		if answer[i] == '[' && answer[i+1] >= '0' && answer[i+1] <= '9' {
			j := i + 1
			for j < len(answer) && answer[j] >= '0' && answer[j] <= '9' {
				j++
			}
			if j < len(answer) && answer[j] == ']' {
				return true
			}
		}
	}
	return false
}

func (w *WorkflowSet) formatResponse(s *State) (map[string]any, error) {
	response := map[string]any{
		"answer":  s.GetString(StateAnswer),
		"sources": s.GetDefault(StateSources, []map[string]any{}),
	}
	s.Set(StateFinalResponse, response)
	return map[string]any{"status": "completed"}, nil
}

func (w *WorkflowSet) finalizeResponse(s *State) (map[string]any, error) {
	response, _ := s.GetDefault(StateFinalResponse, map[string]any{}).(map[string]any)
	out := map[string]any{"status": "completed", "task_id": s.GetString(StateTaskID)}
	for k, v := range response {
		out[k] = v
	}
	return out, nil
}

// ---- document workflow nodes ----

func (w *WorkflowSet) preprocessDocument(s *State) (map[string]any, error) {
	text := strings.TrimSpace(s.GetString(StateDescription))
	text = strings.Join(strings.Fields(text), " ")
	s.Set(StateDocumentText, text)
	return map[string]any{"status": "completed", "length": len(text)}, nil
}

func (w *WorkflowSet) analyzeDocument(s *State) (map[string]any, error) {
	out, err := w.runAgentTask(core.CapabilityTextProcessing, "text_analysis",
		s.GetString(StateDocumentText), map[string]any{"analysis_type": "document_analysis"})
	if err != nil {
		return nil, fmt.Errorf("analyze document: %w", err)
	}
	s.Set(StateQueryAnalysis, out)
	return map[string]any{"status": "completed"}, nil
}

func (w *WorkflowSet) extractInformation(s *State) (map[string]any, error) {
	keywords := extractKeywords(s.GetString(StateDocumentText), 10)
	s.Set(StateExtracted, keywords)
	return map[string]any{"status": "completed", "keywords": keywords}, nil
}

func (w *WorkflowSet) generateSummary(s *State) (map[string]any, error) {
	out, err := w.runAgentTask(core.CapabilityTextProcessing, "summarization",
		s.GetString(StateDocumentText), nil)
	if err != nil {
		return nil, fmt.Errorf("generate summary: %w", err)
	}
	summary, _ := out["summary"].(string)
	s.Set(StateSummary, summary)
	return map[string]any{"status": "completed", "summary": summary}, nil
}

func (w *WorkflowSet) classifyDocument(s *State) (map[string]any, error) {
	text := s.GetString(StateDocumentText)
	class := "general"
	switch {
	case strings.Contains(strings.ToLower(text), "func ") || strings.Contains(text, "class "):
		class = "technical"
	case len(text) > 2000:
		class = "long_form"
	}
	s.Set(StateClassification, class)
	return map[string]any{"status": "completed", "classification": class}, nil
}

func (w *WorkflowSet) finalizeDocument(s *State) (map[string]any, error) {
	return map[string]any{
		"status":         "completed",
		"task_id":        s.GetString(StateTaskID),
		"summary":        s.GetString(StateSummary),
		"keywords":       s.GetDefault(StateExtracted, []string{}),
		"classification": s.GetString(StateClassification),
	}, nil
}

// extractKeywords returns the top-n most frequent words longer than three
// characters, most frequent first.
func extractKeywords(text string, n int) []string {
	counts := map[string]int{}
	var order []string
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()[]{}")
		if len(word) <= 3 {
			continue
		}
		if counts[word] == 0 {
			order = append(order, word)
		}
		counts[word]++
	}
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			if counts[order[j]] > counts[order[i]] {
				order[i], order[j] = order[j], order[i]
			}
		}
	}
	if len(order) > n {
		order = order[:n]
	}
	return order
}
