package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name      string
		config    *ClientConfig
		expectErr bool
	}{
		{name: "nil config", config: nil, expectErr: true},
		{name: "stub provider", config: &ClientConfig{Provider: ProviderStub, Dim: 8}},
		{name: "openai provider", config: &ClientConfig{Provider: ProviderOpenAI, APIKey: "k"}},
		{name: "unknown provider", config: &ClientConfig{Provider: "mainframe"}, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.config)
			if tt.expectErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c == nil {
				t.Error("expected a client")
			}
		})
	}
}

func TestCompletionRequest_Validate(t *testing.T) {
	tests := []struct {
		name string
		req  CompletionRequest
		want error
	}{
		{
			name: "valid",
			req:  CompletionRequest{User: "hi", Temperature: 0.2, MaxTokens: 100},
			want: nil,
		},
		{
			name: "temperature too high",
			req:  CompletionRequest{User: "hi", Temperature: 1.5, MaxTokens: 100},
			want: ErrInvalidConfig,
		},
		{
			name: "temperature negative",
			req:  CompletionRequest{User: "hi", Temperature: -0.1, MaxTokens: 100},
			want: ErrInvalidConfig,
		},
		{
			name: "zero max tokens",
			req:  CompletionRequest{User: "hi", Temperature: 0, MaxTokens: 0},
			want: ErrInvalidConfig,
		},
		{
			name: "empty prompt",
			req:  CompletionRequest{User: "   ", Temperature: 0, MaxTokens: 10},
			want: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestStubClient_Embed(t *testing.T) {
	s := NewStubClient(16)

	vecs, err := s.Embed(context.Background(), []string{"今日は仕事が忙しいですね。", "second"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vecs))
	}
	for i, v := range vecs {
		if len(v) != 16 {
			t.Errorf("vector %d has dimension %d, want 16", i, len(v))
		}
	}

	again, err := s.Embed(context.Background(), []string{"今日は仕事が忙しいですね。"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range again[0] {
		if again[0][i] != vecs[0][i] {
			t.Fatal("stub embedding is not deterministic")
		}
	}
}

func TestStubClient_EmbedInvalidInput(t *testing.T) {
	s := NewStubClient(8)

	if _, err := s.Embed(context.Background(), nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty batch: expected ErrInvalidInput, got %v", err)
	}
	if _, err := s.Embed(context.Background(), []string{"ok", "   "}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank text: expected ErrInvalidInput, got %v", err)
	}
}

func TestStubClient_CompleteStructuredRequiresSchema(t *testing.T) {
	s := NewStubClient(8)
	_, err := s.CompleteStructured(context.Background(), CompletionRequest{User: "x", MaxTokens: 10})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestSchemaError_Unwrap(t *testing.T) {
	var err error = &SchemaError{Raw: []byte(`{"bogus":true}`), Detail: "missing field"}
	if !errors.Is(err, ErrSchemaValidation) {
		t.Error("SchemaError should unwrap to ErrSchemaValidation")
	}

	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatal("errors.As failed for SchemaError")
	}
	if string(se.Raw) != `{"bogus":true}` {
		t.Errorf("raw response not preserved: %s", se.Raw)
	}
}

func TestUnavailableSentinels(t *testing.T) {
	if !errors.Is(ErrEmbeddingUnavailable, ErrUnavailable) {
		t.Error("ErrEmbeddingUnavailable should wrap ErrUnavailable")
	}
	if !errors.Is(ErrCompletionUnavailable, ErrUnavailable) {
		t.Error("ErrCompletionUnavailable should wrap ErrUnavailable")
	}
}

func TestValidateAgainstSchema(t *testing.T) {
	one := 1.0
	schema := &jsonschema.Schema{
		Type:     "object",
		Required: []string{"words"},
		Properties: map[string]*jsonschema.Schema{
			"words": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type:     "object",
					Required: []string{"word", "type", "frequency"},
					Properties: map[string]*jsonschema.Schema{
						"word":      {Type: "string"},
						"type":      {Type: "string", Enum: []any{"noun", "verb", "adjective"}},
						"frequency": {Type: "integer", Minimum: &one},
					},
				},
			},
		},
	}

	tests := []struct {
		name    string
		raw     string
		invalid bool
	}{
		{
			name: "conforming",
			raw:  `{"words":[{"word":"大雪","type":"noun","frequency":2}]}`,
		},
		{
			name: "empty array",
			raw:  `{"words":[]}`,
		},
		{
			name:    "enum violation",
			raw:     `{"words":[{"word":"広い","type":"adverb","frequency":1}]}`,
			invalid: true,
		},
		{
			name:    "frequency below minimum",
			raw:     `{"words":[{"word":"雪","type":"noun","frequency":0}]}`,
			invalid: true,
		},
		{
			name:    "missing required field",
			raw:     `{"words":[{"word":"雪","type":"noun"}]}`,
			invalid: true,
		},
		{
			name:    "wrong type",
			raw:     `{"words":"not an array"}`,
			invalid: true,
		},
		{
			name:    "not json",
			raw:     `words galore`,
			invalid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAgainstSchema(schema, []byte(tt.raw))
			if tt.invalid {
				if !errors.Is(err, ErrSchemaValidation) {
					t.Errorf("expected ErrSchemaValidation, got %v", err)
				}
				var se *SchemaError
				if !errors.As(err, &se) {
					t.Fatal("expected a SchemaError")
				}
				if string(se.Raw) != tt.raw {
					t.Errorf("raw response not attached, got %s", se.Raw)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
