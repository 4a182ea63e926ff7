package ai

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// maxEmbedBatch caps how many inputs go into one embeddings request.
	maxEmbedBatch = 64

	defaultMaxRetries = 3
	baseBackoff       = 500 * time.Millisecond
)

// errRetriesExhausted marks a transient failure that survived the retry
// budget. Public operations map it onto their service-specific sentinel.
var errRetriesExhausted = errors.New("retries exhausted")

type OpenAIClient struct {
	config *ClientConfig
	http   *http.Client
}

func NewOpenAIClient(config *ClientConfig) *OpenAIClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.EmbedModel == "" {
		config.EmbedModel = "text-embedding-3-small"
	}
	if config.CompleteModel == "" {
		config.CompleteModel = "gpt-4o-mini"
	}
	if config.Dim == 0 {
		// Set default dimensions based on the embedding model
		switch config.EmbedModel {
		case "text-embedding-3-small", "text-embedding-ada-002":
			config.Dim = 1536
		case "text-embedding-3-large":
			config.Dim = 3072
		case "multilingual-e5-large":
			config.Dim = 1024
		default:
			config.Dim = 1536
		}
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaultMaxRetries
	}

	// Create HTTP client with optional TLS skip verification
	transport := &http.Transport{}

	// Check for environment variable to skip TLS verification (for corporate proxies, etc.)
	if skipTLS, _ := strconv.ParseBool(os.Getenv("DOCSEARCH_SKIP_TLS_VERIFY")); skipTLS {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	httpClient := &http.Client{
		Timeout:   20 * time.Second,
		Transport: transport,
	}

	return &OpenAIClient{
		config: config,
		http:   httpClient,
	}
}

// Embed converts texts into vectors, splitting the inputs into batches to
// respect the per-request size limit. Order is preserved across batches.
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := start + maxEmbedBatch
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *OpenAIClient) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	payload := map[string]any{
		"input": batch,
		"model": c.config.EmbedModel,
	}

	body, err := c.postJSON(ctx, "/embeddings", payload)
	if err != nil {
		if errors.Is(err, errRetriesExhausted) {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
		}
		return nil, fmt.Errorf("embed: %w", err)
	}

	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("embed: decode response: %w", err)
	}
	if len(out.Data) != len(batch) {
		return nil, fmt.Errorf("embed: got %d vectors for %d inputs", len(out.Data), len(batch))
	}
	vecs := make([][]float32, len(batch))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(batch) {
			return nil, fmt.Errorf("embed: response index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// Complete runs a plain chat completion and returns the answer text.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	raw, err := c.complete(ctx, req, false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// CompleteStructured runs a schema-constrained completion and validates the
// response against the schema before returning it.
func (c *OpenAIClient) CompleteStructured(ctx context.Context, req CompletionRequest) (json.RawMessage, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.Schema == nil {
		return nil, fmt.Errorf("%w: structured completion requires a schema", ErrInvalidConfig)
	}
	raw, err := c.complete(ctx, req, true)
	if err != nil {
		return nil, err
	}
	if err := validateAgainstSchema(req.Schema, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *OpenAIClient) complete(ctx context.Context, req CompletionRequest, structured bool) (json.RawMessage, error) {
	model := req.Model
	if model == "" {
		model = c.config.CompleteModel
	}

	messages := make([]map[string]string, 0, 2)
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.User})

	payload := map[string]any{
		"model":       model,
		"messages":    messages,
		"temperature": req.Temperature,
		"max_tokens":  req.MaxTokens,
	}
	if structured {
		payload["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "response",
				"strict": true,
				"schema": req.Schema,
			},
		}
	}

	body, err := c.postJSON(ctx, "/chat/completions", payload)
	if err != nil {
		if errors.Is(err, errRetriesExhausted) {
			return nil, fmt.Errorf("%w: %v", ErrCompletionUnavailable, err)
		}
		return nil, fmt.Errorf("complete: %w", err)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("complete: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("complete: no choices in response")
	}
	return json.RawMessage(out.Choices[0].Message.Content), nil
}

// Translate translates text between languages via a completion call. An
// empty from code lets the model detect the source language.
func (c *OpenAIClient) Translate(ctx context.Context, text, from, to string) (string, error) {
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
func (c *OpenAIClient) Sentiment(ctx context.Context, text string) (float64, error) {
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

// Classify picks one label for text from categories. The prompt lists the
// allowed categories; the response label is returned as-is.
func (c *OpenAIClient) Classify(ctx context.Context, text string, categories []string) (string, error) {
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

func (c *OpenAIClient) Dim() int {
	return c.config.Dim
}

// postJSON sends one JSON request with bounded retries. Network errors,
// 429, and 5xx responses are retried with exponential backoff; other
// non-2xx responses fail immediately.
func (c *OpenAIClient) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(baseBackoff << (attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		c.setHeaders(req)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		if err := resp.Body.Close(); err != nil {
			lastErr = err
			continue
		}
		if readErr != nil {
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%s: %s", resp.Status, apiErrorMessage(body))
		default:
			return nil, fmt.Errorf("%s: %s", resp.Status, apiErrorMessage(body))
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", errRetriesExhausted, c.config.MaxRetries, lastErr)
}

func apiErrorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// setHeaders sets common headers for OpenAI-compatible requests
func (c *OpenAIClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	if strings.HasPrefix(c.config.APIKey, "sk-proj-") && c.config.ProjectID != "" {
		req.Header.Set("OpenAI-Project", c.config.ProjectID)
	}
}
