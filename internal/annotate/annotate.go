package annotate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/snowretail/docsearch/internal/ai"
	"github.com/snowretail/docsearch/pkg/models"
)

// ErrClassificationInvalid marks a remote classification label that falls
// outside the caller-supplied category set. The category field stays unset.
var ErrClassificationInvalid = errors.New("classification label outside category set")

// wordBatchSize is how many texts share one keyword-extraction call.
const wordBatchSize = 10

// Options selects which annotations to produce for a chunk.
type Options struct {
	Translate  bool
	Sentiment  bool
	Words      bool     // keyword extraction, batched across chunks
	Categories []string // non-empty enables classification
	TargetLang string   // translation target, defaults to "en"
}

// Pipeline runs per-chunk annotation calls concurrently against the remote
// AI services, bounded by a worker pool and a shared rate limiter.
type Pipeline struct {
	client  ai.Client
	limiter *rate.Limiter
	workers int
}

// New creates a pipeline with the given worker count and a remote-call rate
// limit in calls per second (0 disables limiting).
func New(client ai.Client, workers int, callsPerSecond float64) *Pipeline {
	if workers <= 0 {
		workers = 4
	}
	limit := rate.Inf
	if callsPerSecond > 0 {
		limit = rate.Limit(callsPerSecond)
	}
	return &Pipeline{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		workers: workers,
	}
}

func (p *Pipeline) wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// Annotate produces an Annotation for one chunk. The translate, sentiment,
// and classify sub-operations are independent remote calls issued
// concurrently; a failure in one leaves its field unset and is recorded in
// Failures without blocking the others.
func (p *Pipeline) Annotate(ctx context.Context, chunk models.Chunk, opts Options) models.Annotation {
	ann := models.Annotation{ChunkID: chunk.ID}

	target := opts.TargetLang
	if target == "" {
		target = "en"
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		fail = func(field string, err error) {
			mu.Lock()
			defer mu.Unlock()
			if ann.Failures == nil {
				ann.Failures = make(map[string]string)
			}
			ann.Failures[field] = err.Error()
		}
	)

	if opts.Translate {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.wait(ctx); err != nil {
				fail("translated", err)
				return
			}
			translated, err := p.client.Translate(ctx, chunk.Text, "", target)
			if err != nil {
				fail("translated", err)
				return
			}
			mu.Lock()
			ann.Translated = &translated
			mu.Unlock()
		}()
	}

	if opts.Sentiment {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Score on an English rendering of the text; the sentiment
			// model is tuned for English input.
			if err := p.wait(ctx); err != nil {
				fail("sentiment", err)
				return
			}
			english, err := p.client.Translate(ctx, chunk.Text, "", "en")
			if err != nil {
				fail("sentiment", err)
				return
			}
			if err := p.wait(ctx); err != nil {
				fail("sentiment", err)
				return
			}
			score, err := p.client.Sentiment(ctx, english)
			if err != nil {
				fail("sentiment", err)
				return
			}
			mu.Lock()
			ann.Sentiment = &score
			mu.Unlock()
		}()
	}

	if len(opts.Categories) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.wait(ctx); err != nil {
				fail("category", err)
				return
			}
			label, err := p.client.Classify(ctx, chunk.Text, opts.Categories)
			if err != nil {
				fail("category", err)
				return
			}
			if !contains(opts.Categories, label) {
				fail("category", fmt.Errorf("%w: %q", ErrClassificationInvalid, label))
				return
			}
			mu.Lock()
			ann.Category = label
			mu.Unlock()
		}()
	}

	wg.Wait()
	return ann
}

// Result pairs an annotation with the index of its input chunk and any
// terminal error for that item.
type Result struct {
	Index      int
	Annotation models.Annotation
	Err        error
}

// AnnotateAll fans chunk annotation out across the worker pool and returns
// one result per chunk, in input order. Individual failures are reported
// per item; the batch itself always completes.
func (p *Pipeline) AnnotateAll(ctx context.Context, chunks []models.Chunk, opts Options) []Result {
	results := make([]Result, len(chunks))
	for i := range results {
		results[i].Index = i
	}

	work := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				results[i].Annotation = p.Annotate(ctx, chunks[i], opts)
			}
		}()
	}

dispatch:
	for i := range chunks {
		select {
		case work <- i:
		case <-ctx.Done():
			// Stop issuing new work; in-flight annotations finish on
			// their own.
			for j := i; j < len(chunks); j++ {
				results[j].Err = ctx.Err()
			}
			break dispatch
		}
	}
	close(work)
	wg.Wait()

	return results
}

// wordsSchema is the fixed contract for keyword extraction: one entry per
// input text, each with word/part-of-speech/frequency triples.
func wordsSchema() *jsonschema.Schema {
	one := 1.0
	return &jsonschema.Schema{
		Type:     "object",
		Required: []string{"results"},
		Properties: map[string]*jsonschema.Schema{
			"results": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type:     "object",
					Required: []string{"id", "words"},
					Properties: map[string]*jsonschema.Schema{
						"id": {Type: "string"},
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
				},
			},
		},
	}
}

const wordsSystemPrompt = "Extract the important words from each text. For every word report its part of speech " +
	"(noun, verb, or adjective) and how many times it occurs in that text. Analyze each text separately and " +
	"respond with JSON: {\"results\":[{\"id\":...,\"words\":[{\"word\":...,\"type\":...,\"frequency\":...}]}]}."

// ExtractWords requests keyword/part-of-speech/frequency triples for a
// batch of texts through structured completion, ten texts per remote call.
// The response is validated against the fixed schema; a schema violation
// fails the whole call.
func (p *Pipeline) ExtractWords(ctx context.Context, texts []string) ([][]models.WordStat, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]models.WordStat, len(texts))
	for start := 0; start < len(texts); start += wordBatchSize {
		end := start + wordBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		if err := p.extractBatch(ctx, texts, start, end, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *Pipeline) extractBatch(ctx context.Context, texts []string, start, end int, out [][]models.WordStat) error {
	type item struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	batch := make([]item, 0, end-start)
	for i := start; i < end; i++ {
		batch = append(batch, item{ID: fmt.Sprintf("t%d", i), Text: texts[i]})
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		return err
	}

	if err := p.wait(ctx); err != nil {
		return err
	}
	raw, err := p.client.CompleteStructured(ctx, ai.CompletionRequest{
		System:      wordsSystemPrompt,
		User:        string(payload),
		Schema:      wordsSchema(),
		Temperature: 0,
		MaxTokens:   2000,
	})
	if err != nil {
		return err
	}

	var parsed struct {
		Results []struct {
			ID    string            `json:"id"`
			Words []models.WordStat `json:"words"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return err
	}

	// Map results back by id; when the model mangles an id, fall back to
	// positional assignment within the batch.
	position := start
	for _, r := range parsed.Results {
		idx, ok := parseItemID(r.ID, start, end)
		if !ok {
			if position >= end {
				log.Warn().Str("id", r.ID).Msg("dropping extra keyword result")
				continue
			}
			idx = position
		}
		out[idx] = r.Words
		position = idx + 1
	}
	return nil
}

func parseItemID(id string, start, end int) (int, bool) {
	if !strings.HasPrefix(id, "t") {
		return 0, false
	}
	var idx int
	if _, err := fmt.Sscanf(id, "t%d", &idx); err != nil {
		return 0, false
	}
	if idx < start || idx >= end {
		return 0, false
	}
	return idx, true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
