package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfabric/agentfabric/core"
	"github.com/agentfabric/agentfabric/model"
	"github.com/agentfabric/agentfabric/rag"
)

func newTestRetriever(t *testing.T, docs ...string) *rag.Retriever {
	t.Helper()
	r := rag.NewRetriever(rag.NewInMemoryStore(), nil)
	for _, d := range docs {
		require.True(t, r.AddDocument(d, nil, ""))
	}
	return r
}

func TestTextAgentCapabilities(t *testing.T) {
	ctrl := newFakeController()
	ta := NewTextAgent(ctrl, nil, model.NewMockModel("m"))

	assert.Equal(t, "TextProcessor", ta.Name())
	assert.Equal(t, []core.Capability{core.CapabilityTextProcessing, core.CapabilityReasoning}, ta.Capabilities())
}

func TestQATaskUsesRetrievedContext(t *testing.T) {
	ctrl := newFakeController()
	mdl := model.NewMockModel("m")
	retriever := newTestRetriever(t, "The message bus dispatches with a bounded worker pool.")
	ta := NewTextAgent(ctrl, retriever, mdl)

	out, err := ta.ExecuteTask(core.TaskAssignment{
		TaskID:      "t1",
		Description: "How does the bus dispatch messages?",
		Metadata:    map[string]any{core.MetaTaskType: TaskKindQA},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, out["answer"])
	sources, ok := out["sources"].([]map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, sources)

	prompts := mdl.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "bounded worker pool")
	assert.Contains(t, prompts[0], "How does the bus dispatch messages?")
}

func TestQATaskWithoutRetriever(t *testing.T) {
	ctrl := newFakeController()
	mdl := model.NewMockModel("m")
	ta := NewTextAgent(ctrl, nil, mdl)

	out, err := ta.ExecuteTask(core.TaskAssignment{
		TaskID:      "t1",
		Description: "What is Go?",
		Metadata:    map[string]any{core.MetaTaskType: TaskKindQA},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out["answer"])
	assert.Empty(t, out["sources"])
}

func TestSummarizationTask(t *testing.T) {
	ctrl := newFakeController()
	mdl := model.NewMockModel("m")
	ta := NewTextAgent(ctrl, nil, mdl)

	out, err := ta.ExecuteTask(core.TaskAssignment{
		TaskID:      "t1",
		Description: "A long document about queues and workers.",
		Metadata:    map[string]any{core.MetaTaskType: TaskKindSummarization},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out["summary"])

	prompts := mdl.Prompts()
	require.Len(t, prompts, 1)
	assert.True(t, strings.Contains(prompts[0], "Summarize"))
}

func TestAnalysisTaskReportsType(t *testing.T) {
	ctrl := newFakeController()
	ta := NewTextAgent(ctrl, nil, model.NewMockModel("m"))

	out, err := ta.ExecuteTask(core.TaskAssignment{
		TaskID:      "t1",
		Description: "Look at this text.",
		Metadata: map[string]any{
			core.MetaTaskType: TaskKindTextAnalysis,
			"analysis_type":   "query_analysis",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "query_analysis", out["analysis_type"])
	assert.NotEmpty(t, out["analysis"])
}

func TestTextAgentWithoutModelFails(t *testing.T) {
	ctrl := newFakeController()
	ta := NewTextAgent(ctrl, nil, nil)

	_, err := ta.ExecuteTask(core.TaskAssignment{
		TaskID:      "t1",
		Description: "anything",
		Metadata:    map[string]any{core.MetaTaskType: TaskKindQA},
	})
	assert.Error(t, err)
}

func TestTextAgentOptionOverrides(t *testing.T) {
	ctrl := newFakeController()
	ta := NewTextAgent(ctrl, nil, model.NewMockModel("m"),
		WithRagK(9),
		WithHybridSearch(false),
		WithBaseOptions(WithID("text-1")),
	)

	assert.Equal(t, 9, ta.ragK)
	assert.False(t, ta.useHybrid)
	assert.Equal(t, "text-1", ta.ID())
}
