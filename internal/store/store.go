package store

import (
	"context"
	"errors"

	"github.com/snowretail/docsearch/pkg/models"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// dimension the store was initialized with.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// ErrInvalidLimit is returned for non-positive search limits.
var ErrInvalidLimit = errors.New("search limit must be positive")

// Record is one indexed chunk: its document metadata, text span,
// annotations, and embedding vector.
type Record struct {
	Document   models.DocumentMeta
	Chunk      models.Chunk
	Annotation models.Annotation
	Vector     []float32
}

// QueryOpts narrows a search to document attributes.
type QueryOpts struct {
	DocumentType string // optional: filter by document type
	Department   string // optional: filter by owning department
}

// VectorStore persists chunk records and serves cosine-similarity search
// over their embeddings.
type VectorStore interface {
	// Init prepares storage for vectors of the given dimension.
	Init(ctx context.Context, dim int) error

	// Upsert inserts a record or replaces the record with the same chunk ID.
	Upsert(ctx context.Context, rec Record) error

	// Search returns records whose cosine similarity to queryVec is at
	// least threshold, most similar first, at most limit results.
	Search(ctx context.Context, queryVec []float32, threshold float64, limit int, opt QueryOpts) ([]models.SearchResult, error)

	// DeleteDocument removes every chunk belonging to the document.
	DeleteDocument(ctx context.Context, documentID string) error

	// Documents lists the distinct documents currently indexed.
	Documents(ctx context.Context) ([]models.DocumentMeta, error)
}
