package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/snowretail/docsearch/internal/ai"
	"github.com/snowretail/docsearch/internal/store"
	"github.com/snowretail/docsearch/pkg/models"
)

// Service embeds a query and runs similarity search over the vector store.
type Service struct {
	Client ai.Client
	Store  store.VectorStore

	// Defaults applied when the request leaves them unset.
	Threshold float64
	Limit     int
}

// NewService creates a search service with the given defaults.
func NewService(client ai.Client, st store.VectorStore, threshold float64, limit int) *Service {
	if limit <= 0 {
		limit = 5
	}
	return &Service{Client: client, Store: st, Threshold: threshold, Limit: limit}
}

// Query embeds the request text and returns matching chunks. Embedding
// failures surface as errors rather than empty results, so callers can tell
// "nothing similar" from "service down".
func (s *Service) Query(ctx context.Context, req models.QueryRequest, opt store.QueryOpts) ([]models.SearchResult, error) {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return nil, fmt.Errorf("query: %w: empty query text", ai.ErrInvalidInput)
	}

	threshold := req.Threshold
	if threshold == 0 {
		threshold = s.Threshold
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.Limit
	}

	vecs, err := s.Client.Embed(ctx, []string{q})
	if err != nil {
		return nil, fmt.Errorf("query: embed: %w", err)
	}

	results, err := s.Store.Search(ctx, vecs[0], threshold, limit, opt)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	log.Debug().Str("query", q).Float64("threshold", threshold).Int("limit", limit).
		Int("results", len(results)).Msg("similarity search")
	return results, nil
}
