package enrich

import (
	"context"
	"testing"

	"bookpile/internal/storage"
)

// fakeLookup serves canned metadata per title.
type fakeLookup struct {
	metadata map[string]*Metadata
	err      error
	calls    int
}

func (f *fakeLookup) Lookup(ctx context.Context, title, author string) (*Metadata, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.metadata[title], nil
}

func pendingBook(t *testing.T, store *storage.MemStore, id, title, author string) *storage.Book {
	t.Helper()
	book := &storage.Book{
		ID:               id,
		Title:            title,
		Author:           author,
		DedupKey:         title + "|" + author,
		EnrichmentStatus: storage.EnrichmentPending,
		UserStatus:       storage.StatusUnread,
		ContentVersion:   1,
	}
	if err := store.CreateBook(context.Background(), book); err != nil {
		t.Fatalf("CreateBook() error = %v", err)
	}
	return book
}

func TestEnrichPendingSuccess(t *testing.T) {
	store := storage.NewMemStore()
	lookup := &fakeLookup{metadata: map[string]*Metadata{
		"The Dog Stars": {
			Title:       "The Dog Stars",
			Author:      "Peter Heller",
			Description: "A pilot survives a flu pandemic.",
			ISBN:        "9780307959942",
			AmazonURL:   "https://www.amazon.com/s?k=The+Dog+Stars",
		},
	}}
	coordinator := NewCoordinator(store, lookup, 100)
	ctx := context.Background()

	pendingBook(t, store, "b1", "The Dog Stars", "Peter Heller")

	report, err := coordinator.EnrichPending(ctx, nil)
	if err != nil {
		t.Fatalf("EnrichPending() error = %v", err)
	}
	if report.Enriched != 1 {
		t.Errorf("Enriched = %d, want 1", report.Enriched)
	}

	book, _ := store.GetBook(ctx, "b1")
	if book.EnrichmentStatus != storage.EnrichmentDone {
		t.Errorf("EnrichmentStatus = %q, want enriched", book.EnrichmentStatus)
	}
	if book.Description != "A pilot survives a flu pandemic." {
		t.Errorf("Description = %q", book.Description)
	}
	if book.ISBN != "9780307959942" {
		t.Errorf("ISBN = %q", book.ISBN)
	}
	// Description changed, so the version moved and the indexer will see
	// the record as stale.
	if book.ContentVersion != 2 {
		t.Errorf("ContentVersion = %d, want 2", book.ContentVersion)
	}
}

func TestEnrichPendingNotFound(t *testing.T) {
	store := storage.NewMemStore()
	coordinator := NewCoordinator(store, &fakeLookup{}, 100)
	ctx := context.Background()

	pendingBook(t, store, "b1", "Obscure Zine", "")

	report, err := coordinator.EnrichPending(ctx, nil)
	if err != nil {
		t.Fatalf("EnrichPending() error = %v", err)
	}
	if report.NotFound != 1 {
		t.Errorf("NotFound = %d, want 1", report.NotFound)
	}

	book, _ := store.GetBook(ctx, "b1")
	if book.EnrichmentStatus != storage.EnrichmentFailed {
		t.Errorf("EnrichmentStatus = %q, want enrichment_failed", book.EnrichmentStatus)
	}
	// No metadata, no version bump: the mention-derived embedding stands.
	if book.ContentVersion != 1 {
		t.Errorf("ContentVersion = %d, want 1", book.ContentVersion)
	}
	if book.Title != "Obscure Zine" {
		t.Errorf("Title = %q, must be untouched", book.Title)
	}
}

func TestEnrichPendingLookupFailure(t *testing.T) {
	store := storage.NewMemStore()
	coordinator := NewCoordinator(store, &fakeLookup{err: ErrUnavailable}, 100)
	ctx := context.Background()

	pendingBook(t, store, "b1", "Dune", "Frank Herbert")
	pendingBook(t, store, "b2", "Hyperion", "Dan Simmons")

	report, err := coordinator.EnrichPending(ctx, nil)
	if err != nil {
		t.Fatalf("EnrichPending() error = %v", err)
	}
	// One book's failure doesn't stop the other's attempt.
	if report.Failed != 2 {
		t.Errorf("Failed = %d, want 2", report.Failed)
	}

	for _, id := range []string{"b1", "b2"} {
		book, _ := store.GetBook(ctx, id)
		if book.EnrichmentStatus != storage.EnrichmentFailed {
			t.Errorf("book %s: EnrichmentStatus = %q, want enrichment_failed", id, book.EnrichmentStatus)
		}
	}
}

func TestEnrichPendingRestrictedToIDs(t *testing.T) {
	store := storage.NewMemStore()
	lookup := &fakeLookup{metadata: map[string]*Metadata{}}
	coordinator := NewCoordinator(store, lookup, 100)
	ctx := context.Background()

	pendingBook(t, store, "b1", "Dune", "")
	pendingBook(t, store, "b2", "Hyperion", "")

	if _, err := coordinator.EnrichPending(ctx, []string{"b1"}); err != nil {
		t.Fatalf("EnrichPending() error = %v", err)
	}
	if lookup.calls != 1 {
		t.Errorf("lookup called %d times, want 1", lookup.calls)
	}

	// b2 is still pending for a later pass.
	pending, _ := store.ListBooksPendingEnrichment(ctx, nil)
	if len(pending) != 1 || pending[0].ID != "b2" {
		t.Errorf("pending = %v, want just b2", pending)
	}
}

func TestEnrichPendingSkipsNonPending(t *testing.T) {
	store := storage.NewMemStore()
	lookup := &fakeLookup{}
	coordinator := NewCoordinator(store, lookup, 100)
	ctx := context.Background()

	book := pendingBook(t, store, "b1", "Dune", "")
	store.UpdateBookEnrichment(ctx, book.ID, storage.EnrichmentFields{}, storage.EnrichmentFailed, false)

	report, err := coordinator.EnrichPending(ctx, nil)
	if err != nil {
		t.Fatalf("EnrichPending() error = %v", err)
	}
	if lookup.calls != 0 {
		t.Errorf("lookup called %d times, want 0: failed books are not retried implicitly", lookup.calls)
	}
	if report.Enriched != 0 || report.NotFound != 0 || report.Failed != 0 {
		t.Errorf("report = %+v, want empty", report)
	}
}
