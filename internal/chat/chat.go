package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/snowretail/docsearch/internal/ai"
	"github.com/snowretail/docsearch/internal/store"
	"github.com/snowretail/docsearch/pkg/models"
)

// degradedAnswer is returned when retrieval or generation is down. The chat
// boundary never propagates provider failures to the caller.
const degradedAnswer = "Sorry, document retrieval or answer generation is currently unavailable. Please try again in a moment."

const answerSystemPrompt = "You are an assistant for retail staff. Answer the question using only the " +
	"provided document excerpts. If the excerpts do not contain the answer, say so plainly. Keep answers short."

const condenseSystemPrompt = "Rewrite the user's latest question as a short standalone search query, " +
	"taking the conversation so far into account. Respond with the query only."

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Answer is the chat response: the generated text plus the retrieved chunks
// it was grounded on. Degraded is set when a provider failure forced the
// fallback answer.
type Answer struct {
	Text     string                `json:"text"`
	Sources  []models.SearchResult `json:"sources"`
	Degraded bool                  `json:"degraded,omitempty"`
}

// Searcher is the retrieval dependency of the chat service.
type Searcher interface {
	Query(ctx context.Context, req models.QueryRequest, opt store.QueryOpts) ([]models.SearchResult, error)
}

// Service answers questions over the indexed documents: condense the
// question, retrieve similar chunks, generate a grounded answer.
type Service struct {
	Client ai.Client
	Search Searcher

	Threshold float64
	Limit     int
}

// NewService creates a chat service. Limit is how many chunks feed the
// answer prompt; it defaults to 3.
func NewService(client ai.Client, search Searcher, threshold float64, limit int) *Service {
	if limit <= 0 {
		limit = 3
	}
	return &Service{Client: client, Search: search, Threshold: threshold, Limit: limit}
}

// Ask answers a question, optionally with prior conversation turns for
// context. Provider failures yield a degraded Answer, not an error; only
// invalid input is an error.
func (s *Service) Ask(ctx context.Context, question string, history []Message) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, fmt.Errorf("ask: %w: empty question", ai.ErrInvalidInput)
	}

	query := s.condense(ctx, question, history)

	results, err := s.Search.Query(ctx, models.QueryRequest{
		Query:     query,
		Threshold: s.Threshold,
		Limit:     s.Limit,
	}, store.QueryOpts{})
	if err != nil {
		log.Warn().Err(err).Msg("retrieval failed, returning degraded answer")
		return Answer{Text: degradedAnswer, Degraded: true}, nil
	}

	text, err := s.Client.Complete(ctx, ai.CompletionRequest{
		System:      answerSystemPrompt,
		User:        buildPrompt(question, history, results),
		Temperature: 0.2,
		MaxTokens:   1000,
	})
	if err != nil {
		log.Warn().Err(err).Msg("answer generation failed, returning degraded answer")
		return Answer{Text: degradedAnswer, Sources: results, Degraded: true}, nil
	}

	return Answer{Text: text, Sources: results}, nil
}

// condense turns the question plus history into a retrieval query. On
// failure the raw question is used as-is.
func (s *Service) condense(ctx context.Context, question string, history []Message) string {
	if len(history) == 0 {
		return question
	}
	var b strings.Builder
	for _, m := range history {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	fmt.Fprintf(&b, "user: %s\n", question)

	condensed, err := s.Client.Complete(ctx, ai.CompletionRequest{
		System:      condenseSystemPrompt,
		User:        b.String(),
		Temperature: 0,
		MaxTokens:   200,
	})
	if err != nil || strings.TrimSpace(condensed) == "" {
		log.Warn().Err(err).Msg("question condensing failed, searching with raw question")
		return question
	}
	return strings.TrimSpace(condensed)
}

func buildPrompt(question string, history []Message, results []models.SearchResult) string {
	var b strings.Builder
	b.WriteString("Document excerpts:\n")
	if len(results) == 0 {
		b.WriteString("(none found)\n")
	}
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s (%s, %s)\n%s\n\n",
			i+1, r.Document.Title, r.Document.DocumentType, r.Document.Department, r.Chunk.Text)
	}
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question: %s", question)
	return b.String()
}
