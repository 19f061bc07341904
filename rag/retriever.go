package rag

import (
	"fmt"
	"os"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/agentfabric/agentfabric/logging"
)

// Retrieval defaults.
const (
	// DefaultTopK is the retrieval depth when a query does not specify one.
	DefaultTopK = 5
	// DefaultAlpha is the hybrid-search blend weight.
	DefaultAlpha = 0.5
	// defaultCacheTTL bounds how long identical queries are served from
	// the cache.
	defaultCacheTTL = 5 * time.Minute
)

// QueryOptions tune a single retrieval. Zero values fall back to the
// retriever defaults; Hybrid and Alpha are pointers so "unset" is
// distinguishable from false/zero.
type QueryOptions struct {
	TopK      int
	Filter    map[string]any
	Namespace string
	Hybrid    *bool
	Alpha     *float64
}

// Retriever composes the vector store and the chunker behind a TTL query
// cache. All mutating operations invalidate the cache.
type Retriever struct {
	store   VectorStore
	chunker *Chunker

	topK      int
	alpha     float64
	useHybrid bool

	cache  *gocache.Cache
	logger logging.Logger
}

// RetrieverOption customizes retriever construction.
type RetrieverOption func(*Retriever)

// WithTopK sets the default retrieval depth.
func WithTopK(k int) RetrieverOption {
	return func(r *Retriever) { r.topK = k }
}

// WithAlpha sets the default hybrid blend weight.
func WithAlpha(alpha float64) RetrieverOption {
	return func(r *Retriever) { r.alpha = alpha }
}

// WithHybridSearch toggles hybrid search by default.
func WithHybridSearch(enabled bool) RetrieverOption {
	return func(r *Retriever) { r.useHybrid = enabled }
}

// WithCacheTTL sets the query cache lifetime. Zero disables caching.
func WithCacheTTL(ttl time.Duration) RetrieverOption {
	return func(r *Retriever) {
		if ttl <= 0 {
			r.cache = nil
			return
		}
		r.cache = gocache.New(ttl, 2*ttl)
	}
}

// WithLogger sets the retriever logger.
func WithLogger(l logging.Logger) RetrieverOption {
	return func(r *Retriever) { r.logger = l }
}

// NewRetriever creates a retriever over a store and chunker. A nil chunker is
// replaced by the default one.
func NewRetriever(store VectorStore, chunker *Chunker, optFns ...RetrieverOption) *Retriever {
	if chunker == nil {
		chunker = NewDefaultChunker()
	}
	r := &Retriever{
		store:     store,
		chunker:   chunker,
		topK:      DefaultTopK,
		alpha:     DefaultAlpha,
		useHybrid: true,
		cache:     gocache.New(defaultCacheTTL, 2*defaultCacheTTL),
		logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(r)
	}
	return r
}

// AddDocument chunks one document and stores the chunks with shared
// metadata. Returns false on store failure.
func (r *Retriever) AddDocument(content string, metadata map[string]any, namespace string) bool {
	chunks := r.chunker.Split(content)
	if len(chunks) == 0 {
		r.logger.Warn("document produced no chunks")
		return false
	}
	metadatas := make([]map[string]any, len(chunks))
	for i := range chunks {
		md := make(map[string]any, len(metadata)+1)
		for k, v := range metadata {
			md[k] = v
		}
		md["chunk_index"] = i
		metadatas[i] = md
	}
	if _, err := r.store.AddDocuments(chunks, metadatas, namespace); err != nil {
		r.logger.Error("add document", "error", err)
		return false
	}
	r.invalidate()
	r.logger.Info("document added", "chunks", len(chunks), "namespace", namespace)
	return true
}

// AddDocuments stores several documents, chunking each. Returns false when
// any document fails.
func (r *Retriever) AddDocuments(contents []string, metadatas []map[string]any, namespace string) bool {
	if len(metadatas) != 0 && len(metadatas) != len(contents) {
		r.logger.Error("metadatas length mismatch", "contents", len(contents), "metadatas", len(metadatas))
		return false
	}
	ok := true
	for i, content := range contents {
		var md map[string]any
		if len(metadatas) != 0 {
			md = metadatas[i]
		}
		if !r.AddDocument(content, md, namespace) {
			ok = false
		}
	}
	return ok
}

// LoadFromFile reads a file and adds its contents as one document, recording
// the source path in metadata.
func (r *Retriever) LoadFromFile(path string, metadata map[string]any, namespace string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		r.logger.Error("load file", "path", path, "error", err)
		return false
	}
	md := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		md[k] = v
	}
	md["source"] = path
	return r.AddDocument(string(data), md, namespace)
}

// Query retrieves documents for a query. Identical queries within the cache
// TTL are served from the cache. A failing store yields an error and an empty
// result list.
func (r *Retriever) Query(query string, opts QueryOptions) ([]Result, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = r.topK
	}
	hybrid := r.useHybrid
	if opts.Hybrid != nil {
		hybrid = *opts.Hybrid
	}
	alpha := r.alpha
	if opts.Alpha != nil {
		alpha = *opts.Alpha
	}

	key := fmt.Sprintf("%s|%d|%v|%s|%t|%v", query, topK, opts.Filter, opts.Namespace, hybrid, alpha)
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			return cached.([]Result), nil
		}
	}

	var results []Result
	var err error
	if hybrid {
		results, err = r.store.HybridSearch(query, topK, opts.Filter, opts.Namespace, alpha)
	} else {
		results, err = r.store.SimilaritySearch(query, topK, opts.Filter, opts.Namespace)
	}
	if err != nil {
		r.logger.Error("retrieval failed", "error", err)
		return []Result{}, err
	}

	if r.cache != nil {
		r.cache.SetDefault(key, results)
	}
	return results, nil
}

// DeleteDocuments removes documents by id. Returns false on store failure.
func (r *Retriever) DeleteDocuments(ids []string, namespace string) bool {
	if err := r.store.DeleteDocuments(ids, namespace); err != nil {
		r.logger.Error("delete documents", "error", err)
		return false
	}
	r.invalidate()
	return true
}

// DeleteDocumentsByFilter removes matching documents. Returns false on store
// failure.
func (r *Retriever) DeleteDocumentsByFilter(filter map[string]any, namespace string) bool {
	if err := r.store.DeleteDocumentsByFilter(filter, namespace); err != nil {
		r.logger.Error("delete documents by filter", "error", err)
		return false
	}
	r.invalidate()
	return true
}

// Status reports retriever configuration and store statistics.
func (r *Retriever) Status() map[string]any {
	status := map[string]any{
		"default_top_k":     r.topK,
		"default_alpha":     r.alpha,
		"use_hybrid_search": r.useHybrid,
	}
	for k, v := range r.store.Stats() {
		status[k] = v
	}
	return status
}

func (r *Retriever) invalidate() {
	if r.cache != nil {
		r.cache.Flush()
	}
}
