package enrich

import (
	"context"
	"log/slog"

	"bookpile/internal/metrics"
	"bookpile/internal/storage"

	"golang.org/x/time/rate"
)

// Coordinator attempts exactly one metadata fetch per pending book per
// pass. Failures set enrichment_failed and move on; a failed book stays
// searchable from its mention-derived text and is only retried on an
// explicit re-pass.
type Coordinator struct {
	store   storage.Store
	lookup  Lookup
	limiter *rate.Limiter
}

func NewCoordinator(store storage.Store, lookup Lookup, ratePerSec float64) *Coordinator {
	return &Coordinator{
		store:   store,
		lookup:  lookup,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
	}
}

// Report summarizes one enrichment pass.
type Report struct {
	Enriched int
	NotFound int
	Failed   int
}

// EnrichPending processes pending books, restricted to ids when non-nil.
// Side effects are isolated per book; one failure never aborts the batch.
func (c *Coordinator) EnrichPending(ctx context.Context, ids []string) (*Report, error) {
	books, err := c.store.ListBooksPendingEnrichment(ctx, ids)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, book := range books {
		if err := c.limiter.Wait(ctx); err != nil {
			return report, err
		}

		if err := c.enrichBook(ctx, book, report); err != nil {
			// Only context cancellation propagates.
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			slog.Error("Failed to record enrichment result",
				"book_id", book.ID, "error", err)
		}
	}

	return report, nil
}

func (c *Coordinator) enrichBook(ctx context.Context, book *storage.Book, report *Report) error {
	metadata, err := c.lookup.Lookup(ctx, book.Title, book.Author)
	if err != nil {
		slog.Warn("Enrichment lookup failed",
			"book_id", book.ID, "title", book.Title, "error", err)
		metrics.EnrichmentLookups.WithLabelValues("error").Inc()
		report.Failed++
		return c.store.UpdateBookEnrichment(ctx, book.ID, storage.EnrichmentFields{}, storage.EnrichmentFailed, false)
	}

	if metadata == nil {
		slog.Debug("Book not found in metadata service",
			"book_id", book.ID, "title", book.Title)
		metrics.EnrichmentLookups.WithLabelValues("not_found").Inc()
		report.NotFound++
		return c.store.UpdateBookEnrichment(ctx, book.ID, storage.EnrichmentFields{}, storage.EnrichmentFailed, false)
	}

	fields := storage.EnrichmentFields{
		Title:       metadata.Title,
		Author:      metadata.Author,
		Description: metadata.Description,
		ISBN:        metadata.ISBN,
		CoverURL:    metadata.CoverURL,
		AmazonURL:   metadata.AmazonURL,
	}

	// The content version only moves when a field that feeds the embedding
	// changed.
	bump := embeddedFieldsChanged(book, metadata)

	if err := c.store.UpdateBookEnrichment(ctx, book.ID, fields, storage.EnrichmentDone, bump); err != nil {
		return err
	}

	metrics.EnrichmentLookups.WithLabelValues("success").Inc()
	report.Enriched++
	slog.Debug("Enriched book", "book_id", book.ID, "title", book.Title, "version_bumped", bump)
	return nil
}

func embeddedFieldsChanged(book *storage.Book, metadata *Metadata) bool {
	if metadata.Description != "" && metadata.Description != book.Description {
		return true
	}
	if metadata.Title != "" && metadata.Title != book.Title {
		return true
	}
	if metadata.Author != "" && metadata.Author != book.Author {
		return true
	}
	return false
}
