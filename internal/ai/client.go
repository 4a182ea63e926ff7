package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// Error taxonomy for remote AI calls. Sentinels compose with errors.Is; the
// service-specific unavailable errors wrap ErrUnavailable.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnavailable   = errors.New("remote service unavailable")

	ErrEmbeddingUnavailable  = fmt.Errorf("embedding service: %w", ErrUnavailable)
	ErrCompletionUnavailable = fmt.Errorf("completion service: %w", ErrUnavailable)

	ErrSchemaValidation = errors.New("response schema validation failed")
)

// SchemaError reports a structured-completion response that violates the
// requested schema. The raw remote response is attached for diagnosis and
// is never silently repaired.
type SchemaError struct {
	Raw    json.RawMessage
	Detail string
}

func (e *SchemaError) Error() string {
	return "response schema validation failed: " + e.Detail
}

func (e *SchemaError) Unwrap() error { return ErrSchemaValidation }

// Client is the boundary to the remote AI services: embedding, completion,
// translation, sentiment scoring, and classification.
type Client interface {
	// Embed converts texts into fixed-dimension vectors, one per input,
	// order-preserving. Inputs are batched into remote calls as needed.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Complete runs a plain-text completion. Req.Schema must be nil.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// CompleteStructured runs a completion constrained to req.Schema and
	// validates the response against it before returning.
	CompleteStructured(ctx context.Context, req CompletionRequest) (json.RawMessage, error)
	// Translate translates text between language codes; from may be empty
	// for auto-detection.
	Translate(ctx context.Context, text, from, to string) (string, error)
	// Sentiment scores text in [-1, 1], negative to positive.
	Sentiment(ctx context.Context, text string) (float64, error)
	// Classify assigns text one label from categories. The returned label
	// is not guaranteed to be in the set; callers enforce membership.
	Classify(ctx context.Context, text string, categories []string) (string, error)
	// Dim returns the embedding dimension for the configured model.
	Dim() int
}

// Provider is enumeration of supported AI providers
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderVertexAI Provider = "vertexai"
	ProviderStub     Provider = "stub"
)

// ClientConfig holds configuration for AI clients
type ClientConfig struct {
	Provider      Provider
	APIKey        string
	BaseURL       string
	EmbedModel    string
	CompleteModel string
	Dim           int
	ProjectID     string
	Location      string
	MaxRetries    int
}

// CompletionRequest is a fully enumerated completion call. Every recognized
// option is a typed field, validated before dispatch.
type CompletionRequest struct {
	Model       string
	System      string
	User        string
	Schema      *jsonschema.Schema
	Temperature float64
	MaxTokens   int
}

func (r CompletionRequest) validate() error {
	if r.Temperature < 0 || r.Temperature > 1 {
		return fmt.Errorf("%w: temperature %v outside [0,1]", ErrInvalidConfig, r.Temperature)
	}
	if r.MaxTokens <= 0 {
		return fmt.Errorf("%w: max tokens must be positive, got %d", ErrInvalidConfig, r.MaxTokens)
	}
	if strings.TrimSpace(r.User) == "" {
		return fmt.Errorf("%w: empty user prompt", ErrInvalidInput)
	}
	return nil
}

// NewClient creates a new AI client based on configuration
func NewClient(config *ClientConfig) (Client, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}

	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderVertexAI:
		return NewVertexAIClient(context.Background(), config)
	case ProviderStub:
		return NewStubClient(config.Dim), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

// validateTexts rejects embedding input that should never reach the remote
// service.
func validateTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts to embed", ErrInvalidInput)
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("%w: text %d is empty", ErrInvalidInput, i)
		}
	}
	return nil
}

// StubClient is a deterministic offline implementation of Client for tests
// and local development.
type StubClient struct {
	dim int
}

// NewStubClient creates a new StubClient
func NewStubClient(dim int) *StubClient {
	if dim <= 0 {
		dim = 1024
	}
	return &StubClient{dim: dim}
}

// Embed returns one unit vector per text, derived from a hash of the text
// so equal inputs embed equally.
func (s *StubClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		h := fnv.New32a()
		h.Write([]byte(t))
		v := make([]float32, s.dim)
		v[int(h.Sum32())%s.dim] = 1
		out[i] = v
	}
	return out, nil
}

// Complete echoes a short deterministic answer.
func (s *StubClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	return "stub answer: " + firstLine(req.User), nil
}

// CompleteStructured returns an empty object of the schema's required
// top-level array fields, which satisfies schemas whose required members
// are arrays.
func (s *StubClient) CompleteStructured(ctx context.Context, req CompletionRequest) (json.RawMessage, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.Schema == nil {
		return nil, fmt.Errorf("%w: structured completion requires a schema", ErrInvalidConfig)
	}
	obj := map[string]any{}
	for _, name := range req.Schema.Required {
		obj[name] = []any{}
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	if err := validateAgainstSchema(req.Schema, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Translate returns the input unmodified.
func (s *StubClient) Translate(ctx context.Context, text, from, to string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty text", ErrInvalidInput)
	}
	return text, nil
}

// Sentiment returns a neutral score.
func (s *StubClient) Sentiment(ctx context.Context, text string) (float64, error) {
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("%w: empty text", ErrInvalidInput)
	}
	return 0, nil
}

// Classify returns the first category.
func (s *StubClient) Classify(ctx context.Context, text string, categories []string) (string, error) {
	if len(categories) == 0 {
		return "", fmt.Errorf("%w: no categories", ErrInvalidInput)
	}
	return categories[0], nil
}

// Dim returns the embedding dimension
func (s *StubClient) Dim() int {
	return s.dim
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
