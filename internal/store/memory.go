package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/snowretail/docsearch/pkg/models"
)

type memRecord struct {
	rec       Record
	seq       int // insertion order, ties break ascending
	visibleAt time.Time
}

// Memory is an in-process VectorStore. Records become searchable only after
// the configured target lag has elapsed, mirroring an eventually-refreshed
// index; writes and deletes themselves are immediate.
type Memory struct {
	mu        sync.RWMutex
	dim       int
	targetLag time.Duration
	now       func() time.Time
	recs      []memRecord
	index     map[string]int // chunk ID -> position in recs
	nextSeq   int
}

// NewMemory creates an in-memory store whose records become visible to
// Search after targetLag (0 means immediately).
func NewMemory(targetLag time.Duration) *Memory {
	return &Memory{
		targetLag: targetLag,
		now:       time.Now,
		index:     make(map[string]int),
	}
}

func (m *Memory) Init(_ context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("init: dimension must be positive, got %d", dim)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dim = dim
	return nil
}

func (m *Memory) Upsert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dim > 0 && len(rec.Vector) != m.dim {
		return fmt.Errorf("upsert %s: %w: got %d, want %d", rec.Chunk.ID, ErrDimensionMismatch, len(rec.Vector), m.dim)
	}

	entry := memRecord{rec: rec, visibleAt: m.now().Add(m.targetLag)}
	if pos, ok := m.index[rec.Chunk.ID]; ok {
		// Replacement keeps the original insertion position; the new
		// version stays hidden until its own lag elapses.
		entry.seq = m.recs[pos].seq
		m.recs[pos] = entry
		return nil
	}
	entry.seq = m.nextSeq
	m.nextSeq++
	m.index[rec.Chunk.ID] = len(m.recs)
	m.recs = append(m.recs, entry)
	return nil
}

func (m *Memory) Search(_ context.Context, queryVec []float32, threshold float64, limit int, opt QueryOpts) ([]models.SearchResult, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.dim > 0 && len(queryVec) != m.dim {
		return nil, fmt.Errorf("search: %w: got %d, want %d", ErrDimensionMismatch, len(queryVec), m.dim)
	}

	now := m.now()
	type scored struct {
		res models.SearchResult
		seq int
	}
	var hits []scored
	for _, r := range m.recs {
		if r.visibleAt.After(now) {
			continue
		}
		if opt.DocumentType != "" && r.rec.Document.DocumentType != opt.DocumentType {
			continue
		}
		if opt.Department != "" && r.rec.Document.Department != opt.Department {
			continue
		}
		sim := cosine(queryVec, r.rec.Vector)
		if sim < threshold {
			continue
		}
		hits = append(hits, scored{
			res: models.SearchResult{
				Document:   r.rec.Document,
				Chunk:      r.rec.Chunk,
				Annotation: r.rec.Annotation,
				Score:      sim,
			},
			seq: r.seq,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].res.Score != hits[j].res.Score {
			return hits[i].res.Score > hits[j].res.Score
		}
		return hits[i].seq < hits[j].seq
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]models.SearchResult, len(hits))
	for i, h := range hits {
		out[i] = h.res
	}
	return out, nil
}

func (m *Memory) DeleteDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.recs[:0]
	for _, r := range m.recs {
		if r.rec.Document.ID == documentID {
			delete(m.index, r.rec.Chunk.ID)
			continue
		}
		kept = append(kept, r)
	}
	m.recs = kept
	for i, r := range m.recs {
		m.index[r.rec.Chunk.ID] = i
	}
	return nil
}

func (m *Memory) Documents(_ context.Context) ([]models.DocumentMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var docs []models.DocumentMeta
	for _, r := range m.recs {
		if seen[r.rec.Document.ID] {
			continue
		}
		seen[r.rec.Document.ID] = true
		docs = append(docs, r.rec.Document)
	}
	return docs, nil
}

// Refresh makes every record visible immediately, regardless of target lag.
func (m *Memory) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for i := range m.recs {
		if m.recs[i].visibleAt.After(now) {
			m.recs[i].visibleAt = now
		}
	}
}

// cosine is dot(a,b) / (|a|*|b|); zero-magnitude vectors score 0.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
