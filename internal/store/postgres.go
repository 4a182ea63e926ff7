package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/snowretail/docsearch/pkg/models"
)

// Postgres is a VectorStore backed by Postgres with the pgvector extension.
type Postgres struct {
	pool *pgxpool.Pool
	dim  int
}

// NewPostgres connects to the database at the given URL.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Postgres{pool: p}, nil
}

func (s *Postgres) Close() { s.pool.Close() }

// Ping verifies database connectivity.
func (s *Postgres) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Init applies schema setup for vectors of the given dimension.
func (s *Postgres) Init(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("init: dimension must be positive, got %d", dim)
	}
	s.dim = dim

	q := `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS chunks (
  id            TEXT PRIMARY KEY,
  document_id   TEXT NOT NULL,
  title         TEXT NOT NULL,
  document_type TEXT NOT NULL DEFAULT '',
  department    TEXT NOT NULL DEFAULT '',
  version       INT NOT NULL DEFAULT 1,
  seq           INT NOT NULL,
  start_offset  INT NOT NULL,
  end_offset    INT NOT NULL,
  overlap       INT NOT NULL DEFAULT 0,
  content       TEXT NOT NULL,
  translated    TEXT,
  sentiment     DOUBLE PRECISION,
  category      TEXT,
  words         JSONB,
  embedding     vector(%d),
  inserted_seq  BIGSERIAL,
  created_at    TIMESTAMP WITH TIME ZONE DEFAULT now(),
  updated_at    TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE INDEX IF NOT EXISTS chunks_document_id_idx
  ON chunks (document_id);

CREATE INDEX IF NOT EXISTS chunks_document_type_idx
  ON chunks (document_type);

CREATE INDEX IF NOT EXISTS chunks_embedding_idx
  ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`
	_, err := s.pool.Exec(ctx, fmt.Sprintf(q, dim))
	return err
}

// Upsert inserts a chunk record or replaces the record with the same ID.
func (s *Postgres) Upsert(ctx context.Context, rec Record) error {
	if s.dim > 0 && len(rec.Vector) != s.dim {
		return fmt.Errorf("upsert %s: %w: got %d, want %d", rec.Chunk.ID, ErrDimensionMismatch, len(rec.Vector), s.dim)
	}

	words, err := json.Marshal(rec.Annotation.Words)
	if err != nil {
		return fmt.Errorf("upsert %s: marshal words: %w", rec.Chunk.ID, err)
	}

	const q = `
		INSERT INTO chunks (
			id, document_id, title, document_type, department, version,
			seq, start_offset, end_offset, overlap, content,
			translated, sentiment, category, words, embedding, created_at, updated_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16, now(), now()
		)
		ON CONFLICT (id) DO UPDATE SET
			document_id   = EXCLUDED.document_id,
			title         = EXCLUDED.title,
			document_type = EXCLUDED.document_type,
			department    = EXCLUDED.department,
			version       = EXCLUDED.version,
			seq           = EXCLUDED.seq,
			start_offset  = EXCLUDED.start_offset,
			end_offset    = EXCLUDED.end_offset,
			overlap       = EXCLUDED.overlap,
			content       = EXCLUDED.content,
			translated    = EXCLUDED.translated,
			sentiment     = EXCLUDED.sentiment,
			category      = EXCLUDED.category,
			words         = EXCLUDED.words,
			embedding     = EXCLUDED.embedding,
			updated_at    = now(),
			created_at    = chunks.created_at;`

	var category any
	if rec.Annotation.Category != "" {
		category = rec.Annotation.Category
	}

	_, err = s.pool.Exec(ctx, q,
		rec.Chunk.ID, rec.Document.ID, rec.Document.Title, rec.Document.DocumentType,
		rec.Document.Department, rec.Document.Version,
		rec.Chunk.Seq, rec.Chunk.Start, rec.Chunk.End, rec.Chunk.Overlap, rec.Chunk.Text,
		rec.Annotation.Translated, rec.Annotation.Sentiment, category, words,
		pgvector.NewVector(rec.Vector),
	)
	return err
}

// Search returns the chunks most similar to queryVec, descending by cosine
// similarity with insertion order breaking ties.
func (s *Postgres) Search(ctx context.Context, queryVec []float32, threshold float64, limit int, opt QueryOpts) ([]models.SearchResult, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if s.dim > 0 && len(queryVec) != s.dim {
		return nil, fmt.Errorf("search: %w: got %d, want %d", ErrDimensionMismatch, len(queryVec), s.dim)
	}

	args := []any{pgvector.NewVector(queryVec), threshold}
	where := "TRUE"
	n := 3
	if opt.DocumentType != "" {
		where += fmt.Sprintf(" AND document_type = $%d", n)
		args = append(args, opt.DocumentType)
		n++
	}
	if opt.Department != "" {
		where += fmt.Sprintf(" AND department = $%d", n)
		args = append(args, opt.Department)
		n++
	}
	args = append(args, limit)

	q := fmt.Sprintf(`
SELECT
  id, document_id, title, document_type, department, version,
  seq, start_offset, end_offset, overlap, content,
  translated, sentiment, category, words,
  LEAST(GREATEST(1.0 - (embedding <=> $1), -1), 1) AS similarity
FROM chunks
WHERE %s
  AND 1.0 - (embedding <=> $1) >= $2
ORDER BY similarity DESC, inserted_seq ASC
LIMIT $%d;`, where, n)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SearchResult
	for rows.Next() {
		var (
			r        models.SearchResult
			category *string
			words    []byte
		)
		if err := rows.Scan(
			&r.Chunk.ID, &r.Document.ID, &r.Document.Title, &r.Document.DocumentType,
			&r.Document.Department, &r.Document.Version,
			&r.Chunk.Seq, &r.Chunk.Start, &r.Chunk.End, &r.Chunk.Overlap, &r.Chunk.Text,
			&r.Annotation.Translated, &r.Annotation.Sentiment, &category, &words,
			&r.Score,
		); err != nil {
			return nil, err
		}
		r.Chunk.DocumentID = r.Document.ID
		r.Annotation.ChunkID = r.Chunk.ID
		if category != nil {
			r.Annotation.Category = *category
		}
		if len(words) > 0 {
			if err := json.Unmarshal(words, &r.Annotation.Words); err != nil {
				return nil, fmt.Errorf("search: decode words for %s: %w", r.Chunk.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteDocument removes every chunk belonging to the document.
func (s *Postgres) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM chunks WHERE document_id = $1", documentID)
	return err
}

// Documents lists the distinct documents currently indexed.
func (s *Postgres) Documents(ctx context.Context) ([]models.DocumentMeta, error) {
	const q = `
SELECT DISTINCT ON (document_id)
  document_id, title, document_type, department, version
FROM chunks
ORDER BY document_id, version DESC;`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []models.DocumentMeta
	for rows.Next() {
		var d models.DocumentMeta
		if err := rows.Scan(&d.ID, &d.Title, &d.DocumentType, &d.Department, &d.Version); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
