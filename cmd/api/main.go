package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/spf13/pflag"

	"github.com/snowretail/docsearch/internal/ai"
	"github.com/snowretail/docsearch/internal/auth"
	"github.com/snowretail/docsearch/internal/chat"
	"github.com/snowretail/docsearch/internal/config"
	"github.com/snowretail/docsearch/internal/search"
	"github.com/snowretail/docsearch/internal/store"
	"github.com/snowretail/docsearch/pkg/models"
)

type askRequest struct {
	Question string         `json:"question"`
	History  []chat.Message `json:"history,omitempty"`
}

func clientConfigFor(cfg config.Specification) (*ai.ClientConfig, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return &ai.ClientConfig{
			Provider:      ai.ProviderOpenAI,
			APIKey:        cfg.APIKey,
			BaseURL:       cfg.BaseURL,
			EmbedModel:    cfg.EmbedModel,
			CompleteModel: cfg.CompleteModel,
			Dim:           cfg.Dim,
			ProjectID:     cfg.ProjectID,
		}, nil
	case "vertexai", "google":
		return &ai.ClientConfig{
			Provider:      ai.ProviderVertexAI,
			APIKey:        cfg.APIKey,
			EmbedModel:    cfg.EmbedModel,
			CompleteModel: cfg.CompleteModel,
			Dim:           cfg.Dim,
			ProjectID:     cfg.ProjectID,
			Location:      cfg.Location,
		}, nil
	case "stub":
		return &ai.ClientConfig{
			Provider: ai.ProviderStub,
			Dim:      cfg.Dim,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

func openStore(ctx context.Context, cfg config.Specification, logger zerolog.Logger) (store.VectorStore, func(), error) {
	if strings.TrimSpace(cfg.Database) == "" {
		logger.Info().Dur("target_lag", cfg.TargetLag).Msg("using in-memory vector store")
		return store.NewMemory(cfg.TargetLag), func() {}, nil
	}
	pg, err := store.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ai.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ai.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func main() {
	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("docsearch-api", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	logger.Info().Str("provider", cfg.Provider).Str("log_level", cfg.LogLevel).Bool("auth_enabled", cfg.Auth.Enabled).Msg("starting docsearch api")

	clientConfig, err := clientConfigFor(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	auth.InitializeAuth(cfg.Auth.JwtSecret, cfg.Auth.Enabled)

	ctx := context.Background()
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open vector store: %v", err)
	}
	defer closeStore()

	c, err := ai.NewClient(clientConfig)
	if err != nil {
		log.Fatalf("Failed to create AI client: %v", err)
	}

	dim := c.Dim()
	logger.Info().Int("embedding_dim", dim).Str("embed_model", clientConfig.EmbedModel).Msg("AI client initialized")

	if err := st.Init(ctx, dim); err != nil {
		log.Fatalf("Failed to initialize vector store: %v", err)
	}

	searchSvc := search.NewService(c, st, cfg.SearchThreshold, cfg.SearchLimit)
	chatSvc := chat.NewService(c, searchSvc, cfg.SearchThreshold, cfg.ChatLimit)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	mux.HandleFunc("/auth/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]bool{"enabled": auth.IsAuthEnabled()}); err != nil {
			http.Error(w, "Failed to encode response", 500)
		}
	})

	mux.HandleFunc("/search", auth.OptionalAuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		q := r.URL.Query().Get("q")
		if q == "" {
			http.Error(w, "missing query parameter q", http.StatusBadRequest)
			return
		}
		req := models.QueryRequest{Query: q}
		if v := r.URL.Query().Get("k"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				req.Limit = n
			}
		}
		if v := r.URL.Query().Get("threshold"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				req.Threshold = f
			}
		}
		opt := store.QueryOpts{
			DocumentType: r.URL.Query().Get("document_type"),
			Department:   r.URL.Query().Get("department"),
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		res, err := searchSvc.Query(ctx, req, opt)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if res == nil {
			if _, err := w.Write([]byte("[]")); err != nil {
				http.Error(w, "Failed to write response", http.StatusInternalServerError)
				return
			}
		} else {
			for i := range res {
				if math.IsNaN(res[i].Score) || math.IsInf(res[i].Score, 0) {
					res[i].Score = 0
				}
			}
			if err := json.NewEncoder(w).Encode(res); err != nil {
				log.Printf("failed to encode response: %v", err)
				_, _ = w.Write([]byte("[]"))
			}
		}

		hlog.FromRequest(r).Info().Str("path", "/search").Str("q", q).Dur("dur", time.Since(start)).Msg("served")
	}))

	mux.HandleFunc("/ask", auth.OptionalAuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		start := time.Now()

		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
		defer cancel()
		ans, err := chatSvc.Ask(ctx, req.Question, req.History)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(ans); err != nil {
			http.Error(w, "Failed to encode response", 500)
		}

		hlog.FromRequest(r).Info().Str("path", "/ask").Bool("degraded", ans.Degraded).Dur("dur", time.Since(start)).Msg("served")
	}))

	mux.HandleFunc("/documents", auth.OptionalAuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		docs, err := st.Documents(ctx)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if docs == nil {
			docs = []models.DocumentMeta{}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(docs); err != nil {
			http.Error(w, "Failed to encode documents", 500)
		}
	}))

	handler := hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
		})(mux),
	)

	address := fmt.Sprintf(":%d", cfg.Port)
	s := &http.Server{Addr: address, Handler: handler}
	logger.Info().Str("addr", s.Addr).Msg("api server listening")
	log.Fatal(s.ListenAndServe())
}
