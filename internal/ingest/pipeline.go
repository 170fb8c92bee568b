// Package ingest runs the per-source pipeline: extract candidates from
// comments, resolve them onto canonical books, enrich, and reindex.
// Failures below the source level are absorbed and counted; only
// source-level failures surface to the caller.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"bookpile/internal/dedup"
	"bookpile/internal/enrich"
	"bookpile/internal/extract"
	"bookpile/internal/index"
	"bookpile/internal/metrics"
	"bookpile/internal/sources"
	"bookpile/internal/storage"
)

// ErrSourceProcessing marks a source-level fatal error. The source is left
// in `failed` state and can be retried; mentions already recorded survive
// so the retry completes the remainder without duplicating them.
var ErrSourceProcessing = errors.New("source processing failed")

type Pipeline struct {
	store     storage.Store
	extractor extract.Extractor
	resolver  *dedup.Resolver
	enricher  *enrich.Coordinator
	indexer   *index.Indexer
	workers   int
}

func NewPipeline(store storage.Store, extractor extract.Extractor, resolver *dedup.Resolver, enricher *enrich.Coordinator, indexer *index.Indexer, workers int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		store:     store,
		extractor: extractor,
		resolver:  resolver,
		enricher:  enricher,
		indexer:   indexer,
		workers:   workers,
	}
}

// Report is what ingestion tells the operator instead of aborting on the
// first error.
type Report struct {
	SourceID           string
	SourceTitle        string
	Skipped            bool
	Comments           int
	FailedComments     int
	MentionsFound      int
	InvalidCandidates  int
	BooksCreated       int
	DuplicatesMatched  int
	MentionsRecorded   int
	EnrichmentFailures int
	Indexed            int
	BooksPruned        int
}

// IngestThread processes one loaded thread. Re-ingesting a processed source
// without force is a no-op; with force its mentions are re-derived from
// scratch (replaced, not appended).
func (p *Pipeline) IngestThread(ctx context.Context, thread *sources.Thread, force bool) (*Report, error) {
	report := &Report{SourceID: thread.ID, SourceTitle: thread.Title, Comments: len(thread.Comments)}

	existing, err := p.store.GetSource(ctx, thread.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceProcessing, err)
	}
	if existing != nil && existing.Status == storage.SourceProcessed && !force {
		report.Skipped = true
		return report, nil
	}

	source := &storage.Source{
		ID:     thread.ID,
		Title:  thread.Title,
		URL:    thread.URL,
		Status: storage.SourceUnprocessed,
	}
	if err := p.store.UpsertSource(ctx, source); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceProcessing, err)
	}
	if err := p.store.SetSourceStatus(ctx, thread.ID, storage.SourceProcessing); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceProcessing, err)
	}

	if force {
		// Evolving extraction output: replace this source's mentions
		// rather than letting stale ones accumulate.
		if _, err := p.store.DeleteMentionsForSource(ctx, thread.ID); err != nil {
			return nil, p.fail(ctx, thread.ID, err)
		}
	}

	extracted := p.extractAll(ctx, thread.Comments, report)

	touched, err := p.resolveAll(ctx, thread, extracted, report)
	if err != nil {
		return report, p.fail(ctx, thread.ID, err)
	}

	// EnrichPending treats a nil id set as "every pending book", so a
	// run that touched nothing must not enrich anything: it would bump
	// versions on books this run never reindexes.
	if len(touched) > 0 {
		if enrichReport, err := p.enricher.EnrichPending(ctx, touched); err != nil {
			if ctx.Err() != nil {
				return report, p.fail(ctx, thread.ID, err)
			}
			slog.Error("Enrichment pass failed", "source_id", thread.ID, "error", err)
		} else {
			report.EnrichmentFailures = enrichReport.Failed + enrichReport.NotFound
		}
	}

	// Orphans can appear after a forced re-run drops a book's only mention.
	pruned, err := p.PruneOrphans(ctx)
	if err != nil {
		return report, p.fail(ctx, thread.ID, err)
	}
	report.BooksPruned = pruned

	indexReport, err := p.indexer.IndexBooks(ctx, touched)
	if err != nil {
		return report, p.fail(ctx, thread.ID, err)
	}
	report.Indexed = indexReport.Indexed

	if err := p.store.SetSourceStatus(ctx, thread.ID, storage.SourceProcessed); err != nil {
		return report, fmt.Errorf("%w: %v", ErrSourceProcessing, err)
	}

	slog.Info("Source processed",
		"source_id", thread.ID,
		"comments", report.Comments,
		"books_created", report.BooksCreated,
		"duplicates_matched", report.DuplicatesMatched,
		"invalid_candidates", report.InvalidCandidates,
		"enrichment_failures", report.EnrichmentFailures)
	return report, nil
}

// extractAll runs extraction over comments with bounded parallelism.
// Results are collected per comment position so resolution can proceed in
// comment order regardless of completion order. A bad comment never aborts
// the rest.
func (p *Pipeline) extractAll(ctx context.Context, comments []sources.Comment, report *Report) [][]extract.RawMention {
	results := make([][]extract.RawMention, len(comments))
	failed := make([]bool, len(comments))

	var wg sync.WaitGroup
	sem := make(chan struct{}, p.workers)

	for i, comment := range comments {
		wg.Add(1)
		go func(i int, comment sources.Comment) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				failed[i] = true
				return
			}

			mentions, err := p.extractor.Extract(ctx, comment.Text)
			if err != nil {
				slog.Warn("Extraction failed for comment",
					"comment_id", comment.ID, "error", err)
				metrics.CommentsProcessed.WithLabelValues("error").Inc()
				failed[i] = true
				return
			}
			metrics.CommentsProcessed.WithLabelValues("success").Inc()
			results[i] = mentions
		}(i, comment)
	}
	wg.Wait()

	for _, f := range failed {
		if f {
			report.FailedComments++
		}
	}
	return results
}

// resolveAll resolves candidates sequentially in comment order, so mentions
// for a source are recorded in comment order.
func (p *Pipeline) resolveAll(ctx context.Context, thread *sources.Thread, extracted [][]extract.RawMention, report *Report) ([]string, error) {
	var touched []string
	seen := make(map[string]bool)

	for position, mentions := range extracted {
		comment := thread.Comments[position]
		for _, raw := range mentions {
			report.MentionsFound++

			candidate, err := extract.NormalizeCandidate(raw, thread.ID, comment.ID, position)
			if err != nil {
				slog.Debug("Dropping invalid candidate",
					"comment_id", comment.ID, "title", raw.Title, "error", err)
				metrics.CandidatesProcessed.WithLabelValues("invalid").Inc()
				report.InvalidCandidates++
				continue
			}
			metrics.CandidatesProcessed.WithLabelValues("valid").Inc()

			resolution, err := p.resolver.Resolve(ctx, candidate)
			if err != nil {
				return touched, err
			}

			if resolution.Created {
				metrics.BooksCreated.Inc()
				report.BooksCreated++
			} else {
				metrics.DuplicatesMatched.Inc()
				report.DuplicatesMatched++
			}
			if resolution.MentionCreated {
				metrics.MentionsRecorded.Inc()
				report.MentionsRecorded++
			}

			if !seen[resolution.Book.ID] {
				seen[resolution.Book.ID] = true
				touched = append(touched, resolution.Book.ID)
			}
		}
	}

	return touched, nil
}

// PruneOrphans removes books left with zero mentions along with their
// embedding records. A book no source mentions is unreachable.
func (p *Pipeline) PruneOrphans(ctx context.Context) (int, error) {
	orphans, err := p.store.ListBooksWithoutMentions(ctx)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, book := range orphans {
		if err := p.indexer.RemoveBook(ctx, book.ID); err != nil {
			return pruned, err
		}
		if err := p.store.DeleteBook(ctx, book.ID); err != nil {
			return pruned, err
		}
		slog.Debug("Pruned book without mentions", "book_id", book.ID, "title", book.Title)
		pruned++
	}
	return pruned, nil
}

// RemoveReport summarizes a source removal.
type RemoveReport struct {
	MentionsDeleted int64
	BooksDeleted    int
	BooksKept       int
}

// RemoveSource deletes a source, its mentions, and any book left without a
// mention afterwards, including that book's embedding record.
func (p *Pipeline) RemoveSource(ctx context.Context, sourceID string) (*RemoveReport, error) {
	source, err := p.store.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, fmt.Errorf("source %s not found", sourceID)
	}

	books, err := p.store.ListBooksForSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	report := &RemoveReport{}
	report.MentionsDeleted, err = p.store.DeleteMentionsForSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	for _, book := range books {
		count, err := p.store.MentionCount(ctx, book.ID)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			report.BooksKept++
			continue
		}
		if err := p.indexer.RemoveBook(ctx, book.ID); err != nil {
			return nil, err
		}
		if err := p.store.DeleteBook(ctx, book.ID); err != nil {
			return nil, err
		}
		report.BooksDeleted++
	}

	if err := p.store.DeleteSource(ctx, sourceID); err != nil {
		return nil, err
	}

	return report, nil
}

func (p *Pipeline) fail(ctx context.Context, sourceID string, cause error) error {
	if err := p.store.SetSourceStatus(ctx, sourceID, storage.SourceFailed); err != nil {
		slog.Error("Failed to mark source failed", "source_id", sourceID, "error", err)
	}
	return fmt.Errorf("%w: %v", ErrSourceProcessing, cause)
}
