package ingest

import (
	"context"
	"errors"
	"testing"

	"bookpile/internal/dedup"
	"bookpile/internal/enrich"
	"bookpile/internal/extract"
	"bookpile/internal/index"
	"bookpile/internal/sources"
	"bookpile/internal/storage"
	"bookpile/internal/vector"
)

// fakeExtractor returns canned mentions keyed by comment text.
type fakeExtractor struct {
	mentions map[string][]extract.RawMention
	failOn   map[string]bool
	calls    int
}

func (f *fakeExtractor) Extract(ctx context.Context, commentText string) ([]extract.RawMention, error) {
	f.calls++
	if f.failOn[commentText] {
		return nil, errors.New("model unavailable")
	}
	return f.mentions[commentText], nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1, 0}, nil
}

type fakeLookup struct {
	metadata map[string]*enrich.Metadata
	calls    int
}

func (f *fakeLookup) Lookup(ctx context.Context, title, author string) (*enrich.Metadata, error) {
	f.calls++
	return f.metadata[title], nil
}

type fixture struct {
	store     *storage.MemStore
	index     *vector.MemIndex
	extractor *fakeExtractor
	pipeline  *Pipeline
}

func newFixture(extractor *fakeExtractor, lookup enrich.Lookup) *fixture {
	store := storage.NewMemStore()
	memIndex := vector.NewMemIndex()
	indexer := index.NewIndexer(store, memIndex, fakeEmbedder{})
	if lookup == nil {
		lookup = &fakeLookup{}
	}
	return &fixture{
		store:     store,
		index:     memIndex,
		extractor: extractor,
		pipeline: NewPipeline(
			store,
			extractor,
			dedup.NewResolver(store),
			enrich.NewCoordinator(store, lookup, 1000),
			indexer,
			2,
		),
	}
}

func thread(id string, comments ...sources.Comment) *sources.Thread {
	return &sources.Thread{
		ID:       id,
		Title:    "thread " + id,
		URL:      "https://example.com/" + id,
		Comments: comments,
	}
}

func mention(title, author string) extract.RawMention {
	return extract.RawMention{Title: title, Author: author, Justification: "you should read " + title}
}

func TestIngestThread(t *testing.T) {
	extractor := &fakeExtractor{mentions: map[string][]extract.RawMention{
		"first comment":  {mention("The Dog Stars", "Peter Heller")},
		"second comment": {mention("the dog stars", "Peter Heller"), mention("Dune", "Frank Herbert")},
	}}
	lookup := &fakeLookup{metadata: map[string]*enrich.Metadata{
		"The Dog Stars": {Description: "A pilot survives a flu pandemic."},
	}}
	f := newFixture(extractor, lookup)
	ctx := context.Background()

	report, err := f.pipeline.IngestThread(ctx, thread("src-1",
		sources.Comment{ID: "c1", Text: "first comment"},
		sources.Comment{ID: "c2", Text: "second comment"},
	), false)
	if err != nil {
		t.Fatalf("IngestThread() error = %v", err)
	}

	if report.BooksCreated != 2 {
		t.Errorf("BooksCreated = %d, want 2", report.BooksCreated)
	}
	if report.DuplicatesMatched != 1 {
		t.Errorf("DuplicatesMatched = %d, want 1", report.DuplicatesMatched)
	}
	if report.MentionsRecorded != 2 {
		t.Errorf("MentionsRecorded = %d, want 2", report.MentionsRecorded)
	}
	if report.Indexed != 2 {
		t.Errorf("Indexed = %d, want 2", report.Indexed)
	}

	source, _ := f.store.GetSource(ctx, "src-1")
	if source.Status != storage.SourceProcessed {
		t.Errorf("source status = %q, want processed", source.Status)
	}
	if source.ProcessedAt == nil {
		t.Error("ProcessedAt not stamped")
	}

	// After the full pass, every touched book's index record carries its
	// current content version, enrichment bumps included.
	books, _ := f.store.ListBooks(ctx, "")
	if len(books) != 2 {
		t.Fatalf("got %d books, want 2", len(books))
	}
	for _, book := range books {
		record := f.index.Record(book.ID)
		if record == nil {
			t.Errorf("book %q has no index record", book.Title)
			continue
		}
		if record.ContentVersion != book.ContentVersion {
			t.Errorf("book %q: index version %d, catalog version %d",
				book.Title, record.ContentVersion, book.ContentVersion)
		}
	}
}

func TestIngestThreadSkipsProcessed(t *testing.T) {
	extractor := &fakeExtractor{mentions: map[string][]extract.RawMention{
		"c": {mention("Dune", "Frank Herbert")},
	}}
	f := newFixture(extractor, nil)
	ctx := context.Background()

	th := thread("src-1", sources.Comment{ID: "c1", Text: "c"})
	if _, err := f.pipeline.IngestThread(ctx, th, false); err != nil {
		t.Fatalf("IngestThread() error = %v", err)
	}
	callsAfterFirst := extractor.calls

	report, err := f.pipeline.IngestThread(ctx, th, false)
	if err != nil {
		t.Fatalf("IngestThread() error = %v", err)
	}
	if !report.Skipped {
		t.Error("expected second ingest to be skipped")
	}
	if extractor.calls != callsAfterFirst {
		t.Errorf("extractor called again on skipped source: %d calls", extractor.calls)
	}
}

func TestIngestThreadForceReplacesMentions(t *testing.T) {
	extractor := &fakeExtractor{mentions: map[string][]extract.RawMention{
		"old text": {mention("Dune", "Frank Herbert")},
		"new text": {mention("Hyperion", "Dan Simmons")},
	}}
	f := newFixture(extractor, nil)
	ctx := context.Background()

	if _, err := f.pipeline.IngestThread(ctx, thread("src-1",
		sources.Comment{ID: "c1", Text: "old text"}), false); err != nil {
		t.Fatalf("IngestThread() error = %v", err)
	}

	dune, _ := f.store.FindBookByKey(ctx, dedup.Key("Dune", "Frank Herbert"))
	if dune == nil {
		t.Fatal("Dune not created")
	}

	// The thread now yields a different book; force re-derives.
	report, err := f.pipeline.IngestThread(ctx, thread("src-1",
		sources.Comment{ID: "c1", Text: "new text"}), true)
	if err != nil {
		t.Fatalf("IngestThread() error = %v", err)
	}
	if report.Skipped {
		t.Fatal("force ingest must not be skipped")
	}
	if report.BooksPruned != 1 {
		t.Errorf("BooksPruned = %d, want 1", report.BooksPruned)
	}

	// Dune lost its only mention: gone from catalog and index.
	if got, _ := f.store.GetBook(ctx, dune.ID); got != nil {
		t.Error("orphaned book not pruned")
	}
	if f.index.Record(dune.ID) != nil {
		t.Error("orphaned index record not removed")
	}

	hyperion, _ := f.store.FindBookByKey(ctx, dedup.Key("Hyperion", "Dan Simmons"))
	if hyperion == nil {
		t.Fatal("Hyperion not created")
	}
	count, _ := f.store.MentionCount(ctx, hyperion.ID)
	if count != 1 {
		t.Errorf("MentionCount = %d, want 1", count)
	}
}

func TestIngestThreadAbsorbsCommentFailures(t *testing.T) {
	extractor := &fakeExtractor{
		mentions: map[string][]extract.RawMention{
			"good comment": {mention("Dune", "Frank Herbert")},
		},
		failOn: map[string]bool{"bad comment": true},
	}
	f := newFixture(extractor, nil)
	ctx := context.Background()

	report, err := f.pipeline.IngestThread(ctx, thread("src-1",
		sources.Comment{ID: "c1", Text: "bad comment"},
		sources.Comment{ID: "c2", Text: "good comment"},
	), false)
	if err != nil {
		t.Fatalf("IngestThread() error = %v", err)
	}

	if report.FailedComments != 1 {
		t.Errorf("FailedComments = %d, want 1", report.FailedComments)
	}
	if report.BooksCreated != 1 {
		t.Errorf("BooksCreated = %d, want 1", report.BooksCreated)
	}

	// One bad comment doesn't fail the source.
	source, _ := f.store.GetSource(ctx, "src-1")
	if source.Status != storage.SourceProcessed {
		t.Errorf("source status = %q, want processed", source.Status)
	}
}

func TestIngestThreadCountsInvalidCandidates(t *testing.T) {
	extractor := &fakeExtractor{mentions: map[string][]extract.RawMention{
		"c": {
			{Title: "", Justification: "no title here"},
			mention("Dune", "Frank Herbert"),
		},
	}}
	f := newFixture(extractor, nil)
	ctx := context.Background()

	report, err := f.pipeline.IngestThread(ctx, thread("src-1",
		sources.Comment{ID: "c1", Text: "c"}), false)
	if err != nil {
		t.Fatalf("IngestThread() error = %v", err)
	}

	if report.MentionsFound != 2 {
		t.Errorf("MentionsFound = %d, want 2", report.MentionsFound)
	}
	if report.InvalidCandidates != 1 {
		t.Errorf("InvalidCandidates = %d, want 1", report.InvalidCandidates)
	}
	if report.BooksCreated != 1 {
		t.Errorf("BooksCreated = %d, want 1", report.BooksCreated)
	}
}

func TestIngestThreadWithoutMentionsLeavesPendingBooksAlone(t *testing.T) {
	extractor := &fakeExtractor{}
	lookup := &fakeLookup{metadata: map[string]*enrich.Metadata{
		"Dune": {Description: "Desert planet politics."},
	}}
	f := newFixture(extractor, lookup)
	ctx := context.Background()

	// A leftover pending book from an earlier run, indexed at its current
	// version.
	dune := &storage.Book{
		ID:               "book-dune",
		Title:            "Dune",
		Author:           "Frank Herbert",
		DedupKey:         dedup.Key("Dune", "Frank Herbert"),
		EnrichmentStatus: storage.EnrichmentPending,
		UserStatus:       storage.StatusUnread,
		ContentVersion:   1,
	}
	if err := f.store.CreateBook(ctx, dune); err != nil {
		t.Fatalf("CreateBook() error = %v", err)
	}
	if err := f.store.UpsertSource(ctx, &storage.Source{ID: "src-0", Title: "older thread"}); err != nil {
		t.Fatalf("UpsertSource() error = %v", err)
	}
	if err := f.store.UpsertMention(ctx, &storage.Mention{BookID: dune.ID, SourceID: "src-0", CommentID: "c1"}); err != nil {
		t.Fatalf("UpsertMention() error = %v", err)
	}
	if err := f.index.Upsert(ctx, &vector.Record{
		BookID:         dune.ID,
		ContentVersion: 1,
		Chunk:          "Dune by Frank Herbert",
		Embedding:      []float32{1, 1, 0},
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	// A thread whose comments yield nothing must not touch the rest of the
	// catalog.
	report, err := f.pipeline.IngestThread(ctx, thread("src-1",
		sources.Comment{ID: "c1", Text: "no books here"}), false)
	if err != nil {
		t.Fatalf("IngestThread() error = %v", err)
	}
	if report.MentionsFound != 0 {
		t.Errorf("MentionsFound = %d, want 0", report.MentionsFound)
	}
	if lookup.calls != 0 {
		t.Errorf("enrichment lookup called %d times, want 0", lookup.calls)
	}

	got, _ := f.store.GetBook(ctx, dune.ID)
	if got.EnrichmentStatus != storage.EnrichmentPending {
		t.Errorf("enrichment status = %q, want pending", got.EnrichmentStatus)
	}
	if got.ContentVersion != 1 {
		t.Errorf("content version = %d, want 1", got.ContentVersion)
	}
	record := f.index.Record(dune.ID)
	if record == nil {
		t.Fatal("index record missing")
	}
	if record.ContentVersion != got.ContentVersion {
		t.Errorf("index version %d, catalog version %d", record.ContentVersion, got.ContentVersion)
	}

	source, _ := f.store.GetSource(ctx, "src-1")
	if source.Status != storage.SourceProcessed {
		t.Errorf("source status = %q, want processed", source.Status)
	}
}

func TestRemoveSource(t *testing.T) {
	extractor := &fakeExtractor{mentions: map[string][]extract.RawMention{
		"thread one text": {mention("Dune", "Frank Herbert"), mention("Hyperion", "Dan Simmons")},
		"thread two text": {mention("Dune", "Frank Herbert")},
	}}
	f := newFixture(extractor, nil)
	ctx := context.Background()

	if _, err := f.pipeline.IngestThread(ctx, thread("src-1",
		sources.Comment{ID: "c1", Text: "thread one text"}), false); err != nil {
		t.Fatalf("IngestThread() error = %v", err)
	}
	if _, err := f.pipeline.IngestThread(ctx, thread("src-2",
		sources.Comment{ID: "c1", Text: "thread two text"}), false); err != nil {
		t.Fatalf("IngestThread() error = %v", err)
	}

	report, err := f.pipeline.RemoveSource(ctx, "src-1")
	if err != nil {
		t.Fatalf("RemoveSource() error = %v", err)
	}

	// Hyperion was only in src-1; Dune survives via src-2.
	if report.BooksDeleted != 1 {
		t.Errorf("BooksDeleted = %d, want 1", report.BooksDeleted)
	}
	if report.BooksKept != 1 {
		t.Errorf("BooksKept = %d, want 1", report.BooksKept)
	}

	if source, _ := f.store.GetSource(ctx, "src-1"); source != nil {
		t.Error("source not deleted")
	}

	hyperion, _ := f.store.FindBookByKey(ctx, dedup.Key("Hyperion", "Dan Simmons"))
	if hyperion != nil {
		t.Error("exclusive book not deleted")
	}

	dune, _ := f.store.FindBookByKey(ctx, dedup.Key("Dune", "Frank Herbert"))
	if dune == nil {
		t.Fatal("shared book deleted")
	}
	if f.index.Record(dune.ID) == nil {
		t.Error("shared book's index record removed")
	}
}

func TestRemoveSourceUnknown(t *testing.T) {
	f := newFixture(&fakeExtractor{}, nil)
	if _, err := f.pipeline.RemoveSource(context.Background(), "nope"); err == nil {
		t.Error("expected error for unknown source")
	}
}
