package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentfabric/agentfabric/core"
	"github.com/agentfabric/agentfabric/model"
	"github.com/agentfabric/agentfabric/rag"
)

// Task kinds the text agent handles.
const (
	TaskKindQA            = "qa"
	TaskKindSummarization = "summarization"
	TaskKindTextAnalysis  = "text_analysis"
)

// Per-task metadata keys the text agent reads, overriding its defaults.
const (
	metaRagK         = "rag_k"
	metaHybridSearch = "hybrid_search"
	metaFilters      = "filters"
	metaAnalysisType = "analysis_type"
	metaContext      = "context"
)

const qaPromptTemplate = `Answer the question using the provided context. If the context does not contain the answer, say so instead of guessing.

Context:
%s

Question: %s

Answer:`

const summarizationPromptTemplate = `Summarize the following text concisely, preserving the key facts:

%s

Summary:`

const analysisPromptTemplate = `Analyze the following text. Analysis type: %s.
Report intent, main entities and overall sentiment.

Text:
%s

Analysis:`

// TextAgent handles text work: retrieval-augmented question answering,
// summarization and text analysis. Capabilities: text_processing, reasoning.
type TextAgent struct {
	*BaseAgent
	retriever *rag.Retriever
	model     model.Model
	ragK      int
	useHybrid bool
	baseOpts  []Option
}

// TextOption customizes TextAgent construction.
type TextOption func(*TextAgent)

// WithRagK sets the default retrieval depth for QA tasks.
func WithRagK(k int) TextOption {
	return func(t *TextAgent) { t.ragK = k }
}

// WithHybridSearch toggles hybrid retrieval for QA tasks.
func WithHybridSearch(enabled bool) TextOption {
	return func(t *TextAgent) { t.useHybrid = enabled }
}

// WithBaseOptions forwards options to the embedded BaseAgent.
func WithBaseOptions(optFns ...Option) TextOption {
	return func(t *TextAgent) { t.baseOpts = append(t.baseOpts, optFns...) }
}

// NewTextAgent constructs a text agent, registers it with the controller and
// installs its task handlers. The retriever may be nil; QA then answers from
// the model alone.
func NewTextAgent(ctrl core.ControllerAPI, retriever *rag.Retriever, m model.Model, optFns ...TextOption) *TextAgent {
	t := &TextAgent{
		retriever: retriever,
		model:     m,
		ragK:      rag.DefaultTopK,
		useHybrid: true,
	}
	for _, fn := range optFns {
		fn(t)
	}
	t.BaseAgent = New(
		"TextProcessor",
		[]core.Capability{core.CapabilityTextProcessing, core.CapabilityReasoning},
		ctrl,
		t.baseOpts...,
	)

	_ = t.RegisterTaskHandler(TaskHandler{Kind: TaskKindQA, Fn: t.handleQA})
	_ = t.RegisterTaskHandler(TaskHandler{Kind: TaskKindSummarization, Fn: t.handleSummarization})
	_ = t.RegisterTaskHandler(TaskHandler{Kind: TaskKindTextAnalysis, Fn: t.handleAnalysis})
	return t
}

// handleQA answers the task description as a question. Context retrieved
// upstream (a workflow's retrieve node) is passed in via metadata and used
// as-is; otherwise the agent queries its own retriever.
func (t *TextAgent) handleQA(assignment core.TaskAssignment) (map[string]any, error) {
	if t.model == nil {
		return nil, fmt.Errorf("no model configured")
	}
	question := assignment.Description

	ragK := t.ragK
	if v, ok := assignment.Metadata[metaRagK].(int); ok && v > 0 {
		ragK = v
	}
	hybrid := t.useHybrid
	if v, ok := assignment.Metadata[metaHybridSearch].(bool); ok {
		hybrid = v
	}
	var filter map[string]any
	if v, ok := assignment.Metadata[metaFilters].(map[string]any); ok {
		filter = v
	}

	contextText, contextProvided := assignment.Metadata[metaContext].(string)
	sources := []map[string]any{}
	if !contextProvided && t.retriever != nil {
		results, err := t.retriever.Query(question, rag.QueryOptions{
			TopK:   ragK,
			Filter: filter,
			Hybrid: &hybrid,
		})
		if err != nil {
			t.logger.Warn("retrieval failed, answering without context", "agent_id", t.id, "error", err)
		} else {
			contextText = buildContext(results)
			sources = buildSources(results)
		}
	}

	prompt := fmt.Sprintf(qaPromptTemplate, contextText, question)
	answer, err := t.model.GenerateText(context.Background(), prompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return map[string]any{
		"answer":  answer,
		"sources": sources,
	}, nil
}

// handleSummarization summarizes the task description text.
func (t *TextAgent) handleSummarization(assignment core.TaskAssignment) (map[string]any, error) {
	if t.model == nil {
		return nil, fmt.Errorf("no model configured")
	}
	prompt := fmt.Sprintf(summarizationPromptTemplate, assignment.Description)
	summary, err := t.model.GenerateText(context.Background(), prompt)
	if err != nil {
		return nil, fmt.Errorf("generate summary: %w", err)
	}
	return map[string]any{"summary": summary}, nil
}

// handleAnalysis runs a free-form analysis of the description text.
func (t *TextAgent) handleAnalysis(assignment core.TaskAssignment) (map[string]any, error) {
	if t.model == nil {
		return nil, fmt.Errorf("no model configured")
	}
	analysisType := "general"
	if v, ok := assignment.Metadata[metaAnalysisType].(string); ok && v != "" {
		analysisType = v
	}
	prompt := fmt.Sprintf(analysisPromptTemplate, analysisType, assignment.Description)
	analysis, err := t.model.GenerateText(context.Background(), prompt)
	if err != nil {
		return nil, fmt.Errorf("generate analysis: %w", err)
	}
	return map[string]any{
		"analysis":      analysis,
		"analysis_type": analysisType,
	}, nil
}

func buildContext(results []rag.Result) string {
	parts := make([]string, 0, len(results))
	for i, r := range results {
		parts = append(parts, fmt.Sprintf("[%d] %s", i+1, r.Content))
	}
	return strings.Join(parts, "\n\n")
}

func buildSources(results []rag.Result) []map[string]any {
	sources := make([]map[string]any, 0, len(results))
	for _, r := range results {
		sources = append(sources, map[string]any{
			"document_id": r.DocumentID,
			"score":       r.Score,
			"metadata":    r.Metadata,
		})
	}
	return sources
}
