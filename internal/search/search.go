package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"bookpile/internal/metrics"
	"bookpile/internal/storage"
	"bookpile/internal/vector"
)

// overfetchFactor: retrieve more candidates than requested so that books
// deleted since their vector was written can be dropped without starving
// the result list.
const overfetchFactor = 3

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Result is one ranked search hit, hydrated from the catalog.
type Result struct {
	Book         *storage.Book `json:"book"`
	Score        float64       `json:"score"`
	SourceTitles []string      `json:"source_titles,omitempty"`
}

// Orchestrator answers natural-language queries over the catalog.
type Orchestrator struct {
	store    storage.Store
	index    vector.Index
	embedder Embedder
}

func NewOrchestrator(store storage.Store, index vector.Index, embedder Embedder) *Orchestrator {
	return &Orchestrator{store: store, index: index, embedder: embedder}
}

// Search returns up to limit books ordered most relevant first. There is no
// relevance floor: a query matching nothing well still returns the best
// available candidates. Ties break on book ID for determinism.
func (o *Orchestrator) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	start := time.Now()

	results, err := o.search(ctx, query, limit)
	if err != nil {
		metrics.QueriesProcessed.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.QueriesProcessed.WithLabelValues("success").Inc()
	metrics.QueryDuration.Observe(time.Since(start).Seconds())
	return results, nil
}

func (o *Orchestrator) search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be positive")
	}

	embedding, err := o.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := o.index.Search(ctx, embedding, limit*overfetchFactor)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	results := make([]Result, 0, limit)
	for _, match := range matches {
		book, err := o.store.GetBook(ctx, match.BookID)
		if err != nil {
			return nil, fmt.Errorf("failed to hydrate book %s: %w", match.BookID, err)
		}
		if book == nil {
			// Index/store race: the vector outlived its book. The repair
			// pass will remove it; skip here.
			slog.Debug("Dropping match without catalog row", "book_id", match.BookID)
			continue
		}

		sourceTitles, err := o.store.SourceTitlesForBook(ctx, book.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load source titles for %s: %w", book.ID, err)
		}

		results = append(results, Result{Book: book, Score: match.Score, SourceTitles: sourceTitles})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Book.ID < results[j].Book.ID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SearchRaw bypasses hydration and formatting: identifiers and scores only,
// for diagnostics.
func (o *Orchestrator) SearchRaw(ctx context.Context, query string, limit int) ([]vector.Match, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be positive")
	}

	embedding, err := o.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return o.index.Search(ctx, embedding, limit)
}
