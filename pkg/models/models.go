package models

import "time"

// Document is a unit of ingested text. Documents are immutable once
// ingested; re-ingesting the same document bumps Version and replaces its
// chunks and embeddings.
type Document struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	DocumentType string    `json:"document_type"`
	Department   string    `json:"department"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DocumentMeta is the document without its body, as returned in search
// results and listings.
type DocumentMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	DocumentType string    `json:"document_type"`
	Department   string    `json:"department"`
	Version      int       `json:"version"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Meta strips a document down to its metadata.
func (d Document) Meta() DocumentMeta {
	return DocumentMeta{
		ID:           d.ID,
		Title:        d.Title,
		DocumentType: d.DocumentType,
		Department:   d.Department,
		Version:      d.Version,
		UpdatedAt:    d.UpdatedAt,
	}
}

// Chunk is a contiguous slice of a document's text. Offsets are rune
// offsets into the source; Overlap is the number of runes shared with the
// previous chunk. Chunks of one document ordered by Seq reconstruct the
// source text modulo the declared overlap.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Seq        int       `json:"seq"`
	Start      int       `json:"start"`
	End        int       `json:"end"`
	Overlap    int       `json:"overlap"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// WordStat is one extracted keyword with its part of speech and frequency.
type WordStat struct {
	Word      string `json:"word"`
	Type      string `json:"type"`
	Frequency int    `json:"frequency"`
}

// Annotation holds the per-chunk enrichment produced by the annotation
// pipeline. Fields are nil/empty when the sub-operation was not requested
// or failed; Failures records the per-field failure reason.
type Annotation struct {
	ChunkID    string            `json:"chunk_id"`
	Translated *string           `json:"translated,omitempty"`
	Sentiment  *float64          `json:"sentiment,omitempty"`
	Category   string            `json:"category,omitempty"`
	Words      []WordStat        `json:"words,omitempty"`
	Failures   map[string]string `json:"failures,omitempty"`
}

// QueryRequest is a transient similarity-search request.
type QueryRequest struct {
	Query     string  `json:"query"`
	Threshold float64 `json:"threshold"`
	Limit     int     `json:"limit"`
}

// SearchResult pairs a chunk (and its owning document's metadata) with a
// similarity score. Result lists are ordered descending by score.
type SearchResult struct {
	Document   DocumentMeta `json:"document"`
	Chunk      Chunk        `json:"chunk"`
	Annotation Annotation   `json:"annotation,omitempty"`
	Score      float64      `json:"score"`
}
