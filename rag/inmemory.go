package rag

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/agentfabric/agentfabric/core"
)

// document is the internal stored form: raw content plus a term-frequency
// vector precomputed at insert time.
type document struct {
	id       string
	content  string
	metadata map[string]any
	tf       map[string]float64
	norm     float64
}

// InMemoryStore is a process-local VectorStore using term-frequency vectors
// with cosine similarity and term-overlap keyword scoring. Suitable for tests
// and single-node deployments; swap for a hosted vector database behind the
// same interface for production retrieval.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]*document // namespace -> id -> document
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{docs: make(map[string]map[string]*document)}
}

// AddDocuments stores chunks under the namespace and returns their ids.
func (s *InMemoryStore) AddDocuments(chunks []string, metadatas []map[string]any, namespace string) ([]string, error) {
	if len(metadatas) != 0 && len(metadatas) != len(chunks) {
		return nil, fmt.Errorf("metadatas length %d does not match chunks length %d", len(metadatas), len(chunks))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.docs[namespace]
	if !ok {
		ns = make(map[string]*document)
		s.docs[namespace] = ns
	}
	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		var md map[string]any
		if len(metadatas) != 0 && metadatas[i] != nil {
			md = make(map[string]any, len(metadatas[i]))
			for k, v := range metadatas[i] {
				md[k] = v
			}
		} else {
			md = map[string]any{}
		}
		doc := &document{
			id:       core.NewID(),
			content:  chunk,
			metadata: md,
		}
		doc.tf, doc.norm = termVector(chunk)
		ns[doc.id] = doc
		ids[i] = doc.id
	}
	return ids, nil
}

// SimilaritySearch ranks by cosine similarity of term-frequency vectors.
func (s *InMemoryStore) SimilaritySearch(query string, topK int, filter map[string]any, namespace string) ([]Result, error) {
	return s.search(query, topK, filter, namespace, 0)
}

// HybridSearch blends cosine similarity with keyword term overlap:
// score = (1-alpha)*vector + alpha*keyword.
func (s *InMemoryStore) HybridSearch(query string, topK int, filter map[string]any, namespace string, alpha float64) ([]Result, error) {
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("alpha %v outside [0,1]", alpha)
	}
	return s.search(query, topK, filter, namespace, alpha)
}

func (s *InMemoryStore) search(query string, topK int, filter map[string]any, namespace string, alpha float64) ([]Result, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	qtf, qnorm := termVector(query)
	if qnorm == 0 {
		return []Result{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []Result
	for _, doc := range s.docs[namespace] {
		if !matchesFilter(doc.metadata, filter) {
			continue
		}
		vector := cosine(qtf, qnorm, doc.tf, doc.norm)
		keyword := termOverlap(qtf, doc.tf)
		score := (1-alpha)*vector + alpha*keyword
		if score <= 0 {
			continue
		}
		md := make(map[string]any, len(doc.metadata))
		for k, v := range doc.metadata {
			md[k] = v
		}
		results = append(results, Result{
			DocumentID: doc.id,
			Content:    doc.content,
			Score:      score,
			Metadata:   md,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteDocuments removes documents by id. Unknown ids are ignored.
func (s *InMemoryStore) DeleteDocuments(ids []string, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.docs[namespace]
	for _, id := range ids {
		delete(ns, id)
	}
	return nil
}

// DeleteDocumentsByFilter removes every document whose metadata matches the
// filter. An empty filter clears the namespace.
func (s *InMemoryStore) DeleteDocumentsByFilter(filter map[string]any, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.docs[namespace]
	for id, doc := range ns {
		if matchesFilter(doc.metadata, filter) {
			delete(ns, id)
		}
	}
	return nil
}

// Stats reports document counts per namespace and in total.
func (s *InMemoryStore) Stats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	namespaces := map[string]any{}
	for ns, docs := range s.docs {
		total += len(docs)
		name := ns
		if name == "" {
			name = "default"
		}
		namespaces[name] = len(docs)
	}
	return map[string]any{
		"documents_total": total,
		"namespaces":      namespaces,
	}
}

func matchesFilter(metadata, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// termVector computes the term-frequency vector and its Euclidean norm.
func termVector(text string) (map[string]float64, float64) {
	tf := map[string]float64{}
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()[]{}")
		if word == "" {
			continue
		}
		tf[word]++
	}
	var sum float64
	for _, n := range tf {
		sum += n * n
	}
	return tf, math.Sqrt(sum)
}

func cosine(a map[string]float64, aNorm float64, b map[string]float64, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	var dot float64
	for term, av := range a {
		if bv, ok := b[term]; ok {
			dot += av * bv
		}
	}
	return dot / (aNorm * bNorm)
}

// termOverlap is the fraction of distinct query terms present in the
// document.
func termOverlap(query, doc map[string]float64) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for term := range query {
		if _, ok := doc[term]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
