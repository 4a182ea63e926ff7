package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

type VertexAIClient struct {
	config *ClientConfig
	client *genai.Client
}

// NewVertexAIClient creates a new client for the Google Gemini API.
func NewVertexAIClient(ctx context.Context, config *ClientConfig) (*VertexAIClient, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}

	// Defaults for Gemini API
	if config.EmbedModel == "" {
		config.EmbedModel = "text-embedding-005"
	}
	if config.CompleteModel == "" {
		config.CompleteModel = "gemini-2.0-flash"
	}
	if config.Dim == 0 {
		config.Dim = 768
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaultMaxRetries
	}
	if config.Location == "" && strings.TrimSpace(config.APIKey) == "" {
		config.Location = "us-central1"
	}

	cc := genai.ClientConfig{
		Backend: genai.BackendVertexAI,
	}
	if strings.TrimSpace(config.APIKey) != "" {
		cc.APIKey = config.APIKey
	}
	if strings.TrimSpace(config.ProjectID) != "" {
		cc.Project = config.ProjectID
	}
	if strings.TrimSpace(config.Location) != "" {
		cc.Location = config.Location
	}

	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &VertexAIClient{
		config: config,
		client: client,
	}, nil
}

// Embed converts texts into vectors through the Gemini embedding endpoint,
// one remote call per text, order-preserving.
func (c *VertexAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}
	cfg := genai.EmbedContentConfig{
		TaskType: "RETRIEVAL_DOCUMENT",
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.retryEmbed(ctx, text, &cfg)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (c *VertexAIClient) retryEmbed(ctx context.Context, text string, cfg *genai.EmbedContentConfig) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(baseBackoff << (attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		res, err := c.client.Models.EmbedContent(ctx, c.config.EmbedModel, genai.Text(text), cfg)
		if err != nil {
			lastErr = err
			continue
		}
		if res == nil || len(res.Embeddings) == 0 {
			lastErr = errors.New("no embedding returned")
			continue
		}
		return res.Embeddings[0].Values, nil
	}
	return nil, fmt.Errorf("%w: %d attempts: %v", ErrEmbeddingUnavailable, c.config.MaxRetries, lastErr)
}

// Complete runs a plain completion through the Gemini API.
func (c *VertexAIClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	text, err := c.generate(ctx, req, "")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// CompleteStructured requests a JSON response and validates it against the
// schema locally. The schema rides along in the system instruction; local
// validation is the authoritative check either way.
func (c *VertexAIClient) CompleteStructured(ctx context.Context, req CompletionRequest) (json.RawMessage, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.Schema == nil {
		return nil, fmt.Errorf("%w: structured completion requires a schema", ErrInvalidConfig)
	}
	schemaJSON, err := json.Marshal(req.Schema)
	if err != nil {
		return nil, err
	}
	text, err := c.generate(ctx, req, string(schemaJSON))
	if err != nil {
		return nil, err
	}
	raw := json.RawMessage(strings.TrimSpace(text))
	if err := validateAgainstSchema(req.Schema, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *VertexAIClient) generate(ctx context.Context, req CompletionRequest, schemaJSON string) (string, error) {
	model := req.Model
	if model == "" {
		model = c.config.CompleteModel
	}

	system := req.System
	if schemaJSON != "" {
		system += "\nRespond with a single JSON value conforming to this JSON schema, and nothing else:\n" + schemaJSON
	}

	temp := float32(req.Temperature)
	cfg := genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if system != "" {
		cfg.SystemInstruction = genai.Text(system)[0]
	}
	if schemaJSON != "" {
		cfg.ResponseMIMEType = "application/json"
	}

	var lastErr error
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(baseBackoff << (attempt - 1)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(req.User), &cfg)
		if err != nil {
			lastErr = err
			continue
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			lastErr = errors.New("no candidates returned")
			continue
		}
		return resp.Candidates[0].Content.Parts[0].Text, nil
	}
	return "", fmt.Errorf("%w: %d attempts: %v", ErrCompletionUnavailable, c.config.MaxRetries, lastErr)
}

// Translate translates text between languages via a completion call.
func (c *VertexAIClient) Translate(ctx context.Context, text, from, to string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty text", ErrInvalidInput)
	}
	src := from
	if src == "" {
		src = "the detected source language"
	}
	return c.Complete(ctx, CompletionRequest{
		System:      fmt.Sprintf("Translate the user's text from %s to %s. Output only the translation.", src, to),
		User:        text,
		Temperature: 0,
		MaxTokens:   2000,
	})
}

// Sentiment scores text in [-1, 1] via a schema-constrained completion.
func (c *VertexAIClient) Sentiment(ctx context.Context, text string) (float64, error) {
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("%w: empty text", ErrInvalidInput)
	}
	raw, err := c.CompleteStructured(ctx, CompletionRequest{
		System:      "Score the sentiment of the user's text from -1 (most negative) to 1 (most positive). Respond with JSON: {\"score\": <number>}.",
		User:        text,
		Schema:      sentimentSchema(),
		Temperature: 0,
		MaxTokens:   50,
	})
	if err != nil {
		return 0, err
	}
	var out struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, err
	}
	return out.Score, nil
}

// Classify picks one label for text from categories.
func (c *VertexAIClient) Classify(ctx context.Context, text string, categories []string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty text", ErrInvalidInput)
	}
	if len(categories) == 0 {
		return "", fmt.Errorf("%w: no categories", ErrInvalidInput)
	}
	raw, err := c.CompleteStructured(ctx, CompletionRequest{
		System: "Classify the user's text into exactly one of these categories: [" + strings.Join(categories, ", ") +
			"]. Respond with JSON: {\"label\": <category>}.",
		User:        text,
		Schema:      classifySchema(),
		Temperature: 0,
		MaxTokens:   50,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Label string `json:"label"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", err
	}
	return out.Label, nil
}

func (c *VertexAIClient) Dim() int {
	return c.config.Dim
}
