package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ VectorStore = (*InMemoryStore)(nil)

func seedStore(t *testing.T, namespace string) (*InMemoryStore, []string) {
	t.Helper()
	s := NewInMemoryStore()
	ids, err := s.AddDocuments(
		[]string{
			"the quick brown fox jumps over the lazy dog",
			"message buses deliver messages to subscribers",
			"the fox is quick and brown",
		},
		[]map[string]any{
			{"animal": "fox"},
			{"topic": "bus"},
			{"animal": "fox"},
		},
		namespace,
	)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	return s, ids
}

func TestAddDocumentsMetadataLengthMismatch(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.AddDocuments([]string{"a", "b"}, []map[string]any{{}}, "")
	assert.Error(t, err)
}

func TestSimilaritySearchRanksByRelevance(t *testing.T) {
	s, _ := seedStore(t, "")

	results, err := s.SimilaritySearch("quick brown fox", 3, nil, "")
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// Both fox documents outrank the bus document, which shares no terms.
	for _, r := range results {
		assert.NotEqual(t, "bus", r.Metadata["topic"])
	}
	// Scores are sorted descending.
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestSimilaritySearchRespectsTopK(t *testing.T) {
	s, _ := seedStore(t, "")
	results, err := s.SimilaritySearch("the fox", 1, nil, "")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchWithFilter(t *testing.T) {
	s, _ := seedStore(t, "")
	results, err := s.SimilaritySearch("messages to subscribers", 5, map[string]any{"animal": "fox"}, "")
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "fox", r.Metadata["animal"])
	}
}

func TestHybridSearchAlphaBounds(t *testing.T) {
	s, _ := seedStore(t, "")
	_, err := s.HybridSearch("fox", 3, nil, "", -0.1)
	assert.Error(t, err)
	_, err = s.HybridSearch("fox", 3, nil, "", 1.1)
	assert.Error(t, err)
}

func TestHybridSearchBlending(t *testing.T) {
	s, _ := seedStore(t, "")

	vector, err := s.HybridSearch("quick fox", 3, nil, "", 0)
	require.NoError(t, err)
	keyword, err := s.HybridSearch("quick fox", 3, nil, "", 1)
	require.NoError(t, err)

	require.NotEmpty(t, vector)
	require.NotEmpty(t, keyword)
	// Pure keyword scoring: both fox documents contain every query term,
	// so their scores are exactly 1.
	assert.InDelta(t, 1.0, keyword[0].Score, 1e-9)
}

func TestNamespaceIsolation(t *testing.T) {
	s, _ := seedStore(t, "ns-a")
	results, err := s.SimilaritySearch("fox", 5, nil, "ns-b")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteDocuments(t *testing.T) {
	s, ids := seedStore(t, "")
	require.NoError(t, s.DeleteDocuments(ids[:1], ""))

	stats := s.Stats()
	assert.Equal(t, 2, stats["documents_total"])
}

func TestDeleteDocumentsByFilter(t *testing.T) {
	s, _ := seedStore(t, "")
	require.NoError(t, s.DeleteDocumentsByFilter(map[string]any{"animal": "fox"}, ""))

	stats := s.Stats()
	assert.Equal(t, 1, stats["documents_total"])
}

func TestStatsPerNamespace(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.AddDocuments([]string{"doc"}, nil, "")
	require.NoError(t, err)
	_, err = s.AddDocuments([]string{"doc", "doc"}, nil, "research")
	require.NoError(t, err)

	stats := s.Stats()
	assert.Equal(t, 3, stats["documents_total"])
	namespaces := stats["namespaces"].(map[string]any)
	assert.Equal(t, 1, namespaces["default"])
	assert.Equal(t, 2, namespaces["research"])
}

func TestEmptyQueryReturnsNothing(t *testing.T) {
	s, _ := seedStore(t, "")
	results, err := s.SimilaritySearch("", 5, nil, "")
	require.NoError(t, err)
	assert.Empty(t, results)
}
