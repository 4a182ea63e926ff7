package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/snowretail/docsearch/internal/ai"
	"github.com/snowretail/docsearch/internal/annotate"
	"github.com/snowretail/docsearch/internal/chunker"
	"github.com/snowretail/docsearch/internal/store"
	"github.com/snowretail/docsearch/pkg/models"
)

// Ingestor chunks documents, embeds and annotates the chunks, and writes
// the records into the vector store.
type Ingestor struct {
	Store    store.VectorStore
	Client   ai.Client
	Pipeline *annotate.Pipeline

	ChunkSize    int
	ChunkOverlap int
	Workers      int
	Annotate     annotate.Options
}

// New creates an Ingestor with the given chunking parameters.
func New(st store.VectorStore, client ai.Client, pipeline *annotate.Pipeline, chunkSize, chunkOverlap, workers int, opts annotate.Options) *Ingestor {
	if workers <= 0 {
		workers = 4
	}
	return &Ingestor{
		Store:        st,
		Client:       client,
		Pipeline:     pipeline,
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Workers:      workers,
		Annotate:     opts,
	}
}

// IngestDocument processes one document end to end: chunk, embed, annotate,
// upsert. A document with Version > 1 replaces all chunks of its earlier
// versions first.
func (ig *Ingestor) IngestDocument(ctx context.Context, doc models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Version <= 0 {
		doc.Version = 1
	}

	pieces, err := chunker.Chunk(doc.Content, ig.ChunkSize, ig.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", doc.ID, err)
	}
	if len(pieces) == 0 {
		log.Debug().Str("document", doc.ID).Msg("empty document, nothing to index")
		return nil
	}

	chunks := make([]models.Chunk, len(pieces))
	texts := make([]string, len(pieces))
	for i, p := range pieces {
		chunks[i] = models.Chunk{
			ID:         fmt.Sprintf("%s:%04d", doc.ID, p.Seq),
			DocumentID: doc.ID,
			Seq:        p.Seq,
			Start:      p.Start,
			End:        p.End,
			Overlap:    p.Overlap,
			Text:       p.Text,
		}
		texts[i] = p.Text
	}

	if doc.Version > 1 {
		if err := ig.Store.DeleteDocument(ctx, doc.ID); err != nil {
			return fmt.Errorf("ingest %s: delete previous version: %w", doc.ID, err)
		}
	}

	vecs, err := ig.Client.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("ingest %s: embed: %w", doc.ID, err)
	}
	if len(vecs) != len(chunks) {
		return fmt.Errorf("ingest %s: embed returned %d vectors for %d chunks", doc.ID, len(vecs), len(chunks))
	}

	var annotations []annotate.Result
	if ig.Pipeline != nil {
		annotations = ig.Pipeline.AnnotateAll(ctx, chunks, ig.Annotate)
		if ig.Annotate.Words {
			words, err := ig.Pipeline.ExtractWords(ctx, texts)
			if err != nil {
				log.Warn().Err(err).Str("document", doc.ID).Msg("keyword extraction failed")
			} else {
				for i := range annotations {
					annotations[i].Annotation.Words = words[i]
				}
			}
		}
	}

	meta := doc.Meta()
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := store.Record{
			Document: meta,
			Chunk:    c,
			Vector:   vecs[i],
		}
		if annotations != nil {
			rec.Annotation = annotations[i].Annotation
			if len(rec.Annotation.Failures) > 0 {
				log.Warn().Str("chunk", c.ID).Interface("failures", rec.Annotation.Failures).
					Msg("partial annotation")
			}
		} else {
			rec.Annotation = models.Annotation{ChunkID: c.ID}
		}
		if err := ig.Store.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("ingest %s: upsert %s: %w", doc.ID, c.ID, err)
		}
	}

	log.Info().Str("document", doc.ID).Str("title", doc.Title).
		Int("chunks", len(chunks)).Msg("document indexed")
	return nil
}

// Run ingests documents concurrently across the worker pool. The first
// processing error is returned after all workers drain; remaining errors
// are logged.
func (ig *Ingestor) Run(ctx context.Context, docs []models.Document) error {
	log.Info().Int("workers", ig.Workers).Int("documents", len(docs)).Msg("starting ingestion")

	workChan := make(chan models.Document, ig.Workers*2)
	errorChan := make(chan error, 1)

	var wg sync.WaitGroup
	for i := 0; i < ig.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			log.Debug().Int("worker", workerID).Msg("worker started")

			for doc := range workChan {
				if err := ig.IngestDocument(ctx, doc); err != nil {
					select {
					case errorChan <- err:
					default:
						log.Error().Err(err).Str("document", doc.ID).Msg("worker processing error")
					}
				}
			}

			log.Debug().Int("worker", workerID).Msg("worker finished")
		}(i)
	}

	var dispatchErr error
dispatch:
	for _, doc := range docs {
		select {
		case workChan <- doc:
		case <-ctx.Done():
			dispatchErr = ctx.Err()
			break dispatch
		}
	}
	close(workChan)
	wg.Wait()

	select {
	case err := <-errorChan:
		if err != nil {
			return err
		}
	default:
	}
	return dispatchErr
}
