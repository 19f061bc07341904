package rag

import (
	"fmt"
	"strings"
)

// Chunking defaults.
const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the number of trailing characters repeated at
	// the start of the next chunk.
	DefaultChunkOverlap = 200
)

// ChunkerConfig holds chunking configuration.
type ChunkerConfig struct {
	// ChunkSize is the target chunk length in characters.
	ChunkSize int
	// ChunkOverlap is the overlap between consecutive chunks.
	ChunkOverlap int
}

// DefaultChunkerConfig returns the standard size/overlap pair.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap}
}

// Validate checks if the configuration is valid.
func (c ChunkerConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("ChunkSize must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("ChunkOverlap must not be negative, got %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("ChunkOverlap (%d) must be less than ChunkSize (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// Chunker splits documents into retrieval-sized chunks, preferring paragraph
// and sentence boundaries and falling back to fixed-size windows when the
// text has no usable structure.
type Chunker struct {
	config ChunkerConfig
}

// NewChunker creates a Chunker with the given configuration. A zero config is
// replaced by defaults; an invalid one is an error.
func NewChunker(cfg ChunkerConfig) (*Chunker, error) {
	if cfg.ChunkSize == 0 && cfg.ChunkOverlap == 0 {
		cfg = DefaultChunkerConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{config: cfg}, nil
}

// MustNewChunker creates a Chunker, panicking on invalid config. Use for
// known-good configurations.
func MustNewChunker(cfg ChunkerConfig) *Chunker {
	c, err := NewChunker(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// NewDefaultChunker creates a Chunker with default configuration.
func NewDefaultChunker() *Chunker {
	return MustNewChunker(DefaultChunkerConfig())
}

// Split divides text into ordered chunks using the configured size and
// overlap.
func (c *Chunker) Split(text string) []string {
	return c.SplitWith(text, c.config.ChunkSize, c.config.ChunkOverlap)
}

// SplitWith divides text into ordered chunks with explicit size and overlap,
// preferring paragraph then sentence boundaries. Invalid size/overlap pairs
// fall back to the configured defaults.
func (c *Chunker) SplitWith(text string, size, overlap int) []string {
	if size <= 0 || overlap < 0 || overlap >= size {
		size, overlap = c.config.ChunkSize, c.config.ChunkOverlap
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= size {
		return []string{text}
	}

	pieces := splitBoundaries(text)
	if len(pieces) < 2 {
		return fixedWindows(text, size, overlap)
	}

	var chunks []string
	var current strings.Builder
	for _, piece := range pieces {
		if len(piece) > size {
			// An oversized piece is windowed on its own; boundary
			// preference cannot hold here.
			if current.Len() > 0 {
				chunks = append(chunks, strings.TrimSpace(current.String()))
				current.Reset()
			}
			chunks = append(chunks, fixedWindows(piece, size, overlap)...)
			continue
		}
		if current.Len() > 0 && current.Len()+len(piece)+1 > size {
			chunk := strings.TrimSpace(current.String())
			chunks = append(chunks, chunk)
			current.Reset()
			if overlap > 0 && len(chunk) > overlap {
				current.WriteString(chunk[len(chunk)-overlap:])
				current.WriteString(" ")
			}
		}
		current.WriteString(piece)
		current.WriteString(" ")
	}
	if strings.TrimSpace(current.String()) != "" {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}
	if len(chunks) == 0 {
		return fixedWindows(text, size, overlap)
	}
	return chunks
}

// splitBoundaries cuts text at paragraph breaks, then splits long paragraphs
// into sentences.
func splitBoundaries(text string) []string {
	var pieces []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		pieces = append(pieces, splitSentences(para)...)
	}
	return pieces
}

func splitSentences(paragraph string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(paragraph)-1; i++ {
		if (paragraph[i] == '.' || paragraph[i] == '!' || paragraph[i] == '?') && paragraph[i+1] == ' ' {
			sentences = append(sentences, strings.TrimSpace(paragraph[start:i+1]))
			start = i + 2
		}
	}
	if start < len(paragraph) {
		sentences = append(sentences, strings.TrimSpace(paragraph[start:]))
	}
	return sentences
}

// fixedWindows is the structure-free fallback: raw windows of size with the
// configured overlap.
func fixedWindows(text string, size, overlap int) []string {
	var chunks []string
	step := size - overlap
	for start := 0; start < len(text); start += step {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, strings.TrimSpace(text[start:end]))
		if end == len(text) {
			break
		}
	}
	return chunks
}
