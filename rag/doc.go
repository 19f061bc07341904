// Package rag holds the retrieval collaborators the fabric core invokes by
// contract: the vector store interface with an in-memory hybrid-search
// implementation, the document chunker and the retriever that composes both
// behind a query cache.
package rag
