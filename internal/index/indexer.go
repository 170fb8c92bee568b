// Package index keeps the vector store synchronized with the catalog. The
// book's content version is the sole staleness signal: after any indexing
// pass, every record's stored version equals its book's version.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"bookpile/internal/metrics"
	"bookpile/internal/storage"
	"bookpile/internal/vector"

	"github.com/adrg/strutil"
	stringmetrics "github.com/adrg/strutil/metrics"
)

// maxJustifications bounds how many mention snippets feed the embedding so
// one chatty source can't dominate the representation.
const maxJustifications = 5

// nearDuplicateThreshold filters snippets that are near-identical rewordings.
const nearDuplicateThreshold = 0.9

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type Indexer struct {
	store    storage.Store
	index    vector.Index
	embedder Embedder
	metric   *stringmetrics.SorensenDice
}

func NewIndexer(store storage.Store, index vector.Index, embedder Embedder) *Indexer {
	return &Indexer{
		store:    store,
		index:    index,
		embedder: embedder,
		metric:   stringmetrics.NewSorensenDice(),
	}
}

// Report summarizes one indexing pass.
type Report struct {
	Indexed int
	Removed int
	Failed  int
}

// IndexBook rebuilds the embedding record for one book from current catalog
// state.
func (ix *Indexer) IndexBook(ctx context.Context, book *storage.Book) error {
	sourceTitles, err := ix.store.SourceTitlesForBook(ctx, book.ID)
	if err != nil {
		return fmt.Errorf("failed to load source titles for %s: %w", book.ID, err)
	}

	mentions, err := ix.store.ListMentionsForBook(ctx, book.ID)
	if err != nil {
		return fmt.Errorf("failed to load mentions for %s: %w", book.ID, err)
	}

	snippets := make([]string, 0, len(mentions))
	for _, mention := range mentions {
		if strings.TrimSpace(mention.Snippet) != "" {
			snippets = append(snippets, mention.Snippet)
		}
	}

	chunk := ix.BuildChunk(book, sourceTitles, snippets)

	embedding, err := ix.embedder.GenerateEmbedding(ctx, chunk)
	if err != nil {
		metrics.EmbeddingGenerations.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to embed book %s: %w", book.ID, err)
	}
	metrics.EmbeddingGenerations.WithLabelValues("success").Inc()

	record := &vector.Record{
		BookID:         book.ID,
		ContentVersion: book.ContentVersion,
		Chunk:          chunk,
		Embedding:      embedding,
	}
	if err := ix.index.Upsert(ctx, record); err != nil {
		return fmt.Errorf("failed to upsert embedding record for %s: %w", book.ID, err)
	}

	slog.Debug("Indexed book", "book_id", book.ID, "content_version", book.ContentVersion)
	return nil
}

// Sync is the repair pass: reindexes every book whose record is missing or
// stale and removes records for books that no longer exist. A crash between
// a catalog write and its reindex is repaired here; staleness is never
// surfaced as a failure.
func (ix *Indexer) Sync(ctx context.Context) (*Report, error) {
	start := time.Now()

	versions, err := ix.index.Versions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read index versions: %w", err)
	}

	books, err := ix.store.ListBooks(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}

	report := &Report{}
	known := make(map[string]bool, len(books))

	for _, book := range books {
		known[book.ID] = true
		stored, indexed := versions[book.ID]
		if indexed && stored == book.ContentVersion {
			continue
		}
		if indexed {
			slog.Debug("Repairing stale embedding record",
				"book_id", book.ID, "stored_version", stored, "book_version", book.ContentVersion)
			metrics.StaleRecordsRepaired.Inc()
		}
		if err := ix.IndexBook(ctx, book); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			slog.Error("Failed to index book", "book_id", book.ID, "error", err)
			report.Failed++
			continue
		}
		report.Indexed++
	}

	// Orphaned vectors: records whose book is gone.
	for bookID := range versions {
		if known[bookID] {
			continue
		}
		if err := ix.index.Delete(ctx, bookID); err != nil {
			slog.Error("Failed to delete orphaned embedding record", "book_id", bookID, "error", err)
			report.Failed++
			continue
		}
		report.Removed++
	}

	metrics.IndexingDuration.Observe(time.Since(start).Seconds())
	return report, nil
}

// IndexBooks reindexes the given books unconditionally. Used right after
// ingestion for the books it touched.
func (ix *Indexer) IndexBooks(ctx context.Context, ids []string) (*Report, error) {
	report := &Report{}
	for _, id := range ids {
		book, err := ix.store.GetBook(ctx, id)
		if err != nil {
			return report, err
		}
		if book == nil {
			continue
		}
		if err := ix.IndexBook(ctx, book); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			slog.Error("Failed to index book", "book_id", id, "error", err)
			report.Failed++
			continue
		}
		report.Indexed++
	}
	return report, nil
}

// RemoveBook deletes a book's embedding record. Callers invoke this in the
// same logical operation as the catalog delete so no orphaned vector
// survives.
func (ix *Indexer) RemoveBook(ctx context.Context, bookID string) error {
	return ix.index.Delete(ctx, bookID)
}

// BuildChunk builds the composite text a book is embedded from. Construction
// is deterministic and order-stable: title/author first, then description,
// then the distinct contributing source titles, then a bounded set of the
// most distinctive mention snippets.
func (ix *Indexer) BuildChunk(book *storage.Book, sourceTitles, snippets []string) string {
	var parts []string

	if book.Author != "" {
		parts = append(parts, fmt.Sprintf("%s by %s", book.Title, book.Author))
	} else {
		parts = append(parts, book.Title)
	}

	if book.Description != "" {
		parts = append(parts, book.Description)
	}

	if len(sourceTitles) > 0 {
		distinct := distinctSorted(sourceTitles)
		parts = append(parts, "Recommended in: "+strings.Join(distinct, "; "))
	}

	parts = append(parts, ix.selectSnippets(snippets)...)

	return strings.Join(parts, "\n\n")
}

// selectSnippets picks up to maxJustifications snippets, longest first,
// dropping near-duplicates so one source's phrasing doesn't dominate.
func (ix *Indexer) selectSnippets(snippets []string) []string {
	ordered := make([]string, len(snippets))
	copy(ordered, snippets)
	sort.SliceStable(ordered, func(i, j int) bool {
		if len(ordered[i]) != len(ordered[j]) {
			return len(ordered[i]) > len(ordered[j])
		}
		return ordered[i] < ordered[j]
	})

	var selected []string
	for _, snippet := range ordered {
		if len(selected) == maxJustifications {
			break
		}
		duplicate := false
		for _, kept := range selected {
			if strutil.Similarity(strings.ToLower(snippet), strings.ToLower(kept), ix.metric) >= nearDuplicateThreshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			selected = append(selected, snippet)
		}
	}
	return selected
}

func distinctSorted(values []string) []string {
	seen := make(map[string]bool, len(values))
	var distinct []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			distinct = append(distinct, v)
		}
	}
	sort.Strings(distinct)
	return distinct
}
