package search

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/snowretail/docsearch/internal/ai"
	"github.com/snowretail/docsearch/internal/store"
	"github.com/snowretail/docsearch/pkg/models"
)

type mockClient struct {
	embedFunc func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *mockClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return m.embedFunc(ctx, texts)
}

func (m *mockClient) Complete(context.Context, ai.CompletionRequest) (string, error) {
	return "", errors.New("not implemented")
}

func (m *mockClient) CompleteStructured(context.Context, ai.CompletionRequest) (json.RawMessage, error) {
	return nil, errors.New("not implemented")
}

func (m *mockClient) Translate(context.Context, string, string, string) (string, error) {
	return "", errors.New("not implemented")
}

func (m *mockClient) Sentiment(context.Context, string) (float64, error) {
	return 0, errors.New("not implemented")
}

func (m *mockClient) Classify(context.Context, string, []string) (string, error) {
	return "", errors.New("not implemented")
}

func (m *mockClient) Dim() int { return 2 }

type mockStore struct {
	searchFunc func(ctx context.Context, vec []float32, threshold float64, limit int, opt store.QueryOpts) ([]models.SearchResult, error)
}

func (m *mockStore) Init(context.Context, int) error { return nil }

func (m *mockStore) Upsert(context.Context, store.Record) error { return nil }

func (m *mockStore) Search(ctx context.Context, vec []float32, threshold float64, limit int, opt store.QueryOpts) ([]models.SearchResult, error) {
	return m.searchFunc(ctx, vec, threshold, limit, opt)
}

func (m *mockStore) DeleteDocument(context.Context, string) error { return nil }

func (m *mockStore) Documents(context.Context) ([]models.DocumentMeta, error) {
	return nil, nil
}

func TestQuery_EmbedsAndSearches(t *testing.T) {
	var gotTexts []string
	client := &mockClient{
		embedFunc: func(_ context.Context, texts []string) ([][]float32, error) {
			gotTexts = texts
			return [][]float32{{0.5, 0.5}}, nil
		},
	}
	var gotThreshold float64
	var gotLimit int
	var gotOpt store.QueryOpts
	st := &mockStore{
		searchFunc: func(_ context.Context, vec []float32, threshold float64, limit int, opt store.QueryOpts) ([]models.SearchResult, error) {
			gotThreshold, gotLimit, gotOpt = threshold, limit, opt
			return []models.SearchResult{{Chunk: models.Chunk{ID: "c1"}, Score: 0.9}}, nil
		},
	}
	svc := NewService(client, st, 0.2, 5)

	results, err := svc.Query(context.Background(), models.QueryRequest{Query: "  return policy  "}, store.QueryOpts{Department: "retail"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(gotTexts) != 1 || gotTexts[0] != "return policy" {
		t.Errorf("embedded %v, want the trimmed query", gotTexts)
	}
	if gotThreshold != 0.2 || gotLimit != 5 {
		t.Errorf("defaults not applied: threshold=%v limit=%v", gotThreshold, gotLimit)
	}
	if gotOpt.Department != "retail" {
		t.Errorf("opt = %+v, want department filter passed through", gotOpt)
	}
	if len(results) != 1 || results[0].Chunk.ID != "c1" {
		t.Errorf("results = %+v", results)
	}
}

func TestQuery_RequestOverridesDefaults(t *testing.T) {
	client := &mockClient{
		embedFunc: func(_ context.Context, _ []string) ([][]float32, error) {
			return [][]float32{{1, 0}}, nil
		},
	}
	var gotThreshold float64
	var gotLimit int
	st := &mockStore{
		searchFunc: func(_ context.Context, _ []float32, threshold float64, limit int, _ store.QueryOpts) ([]models.SearchResult, error) {
			gotThreshold, gotLimit = threshold, limit
			return nil, nil
		},
	}
	svc := NewService(client, st, 0.2, 5)

	if _, err := svc.Query(context.Background(), models.QueryRequest{Query: "q", Threshold: 0.7, Limit: 2}, store.QueryOpts{}); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if gotThreshold != 0.7 || gotLimit != 2 {
		t.Errorf("overrides not applied: threshold=%v limit=%v", gotThreshold, gotLimit)
	}
}

func TestQuery_EmptyQuery(t *testing.T) {
	svc := NewService(&mockClient{}, &mockStore{}, 0.2, 5)
	if _, err := svc.Query(context.Background(), models.QueryRequest{Query: "   "}, store.QueryOpts{}); !errors.Is(err, ai.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestQuery_EmbedFailureSurfaces(t *testing.T) {
	client := &mockClient{
		embedFunc: func(_ context.Context, _ []string) ([][]float32, error) {
			return nil, ai.ErrEmbeddingUnavailable
		},
	}
	svc := NewService(client, &mockStore{}, 0.2, 5)

	_, err := svc.Query(context.Background(), models.QueryRequest{Query: "q"}, store.QueryOpts{})
	if !errors.Is(err, ai.ErrUnavailable) {
		t.Errorf("err = %v, want wrapped ErrUnavailable", err)
	}
}

func TestQuery_StoreErrorSurfaces(t *testing.T) {
	client := &mockClient{
		embedFunc: func(_ context.Context, _ []string) ([][]float32, error) {
			return [][]float32{{1, 0, 0}}, nil
		},
	}
	st := &mockStore{
		searchFunc: func(_ context.Context, _ []float32, _ float64, _ int, _ store.QueryOpts) ([]models.SearchResult, error) {
			return nil, store.ErrDimensionMismatch
		},
	}
	svc := NewService(client, st, 0.2, 5)

	_, err := svc.Query(context.Background(), models.QueryRequest{Query: "q"}, store.QueryOpts{})
	if !errors.Is(err, store.ErrDimensionMismatch) {
		t.Errorf("err = %v, want ErrDimensionMismatch", err)
	}
}
