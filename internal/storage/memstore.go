package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store used by tests and local experiments. It
// mirrors PostgresStore behavior, including (nil, nil) lookups, upsert
// conflict rules, and result ordering.
type MemStore struct {
	mu       sync.Mutex
	seq      int64
	books    map[string]*memBook
	sources  map[string]*memSource
	mentions map[string]*Mention
}

type memBook struct {
	Book
	seq int64
}

type memSource struct {
	Source
	seq int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		books:    make(map[string]*memBook),
		sources:  make(map[string]*memSource),
		mentions: make(map[string]*Mention),
	}
}

func mentionKey(bookID, sourceID string) string {
	return bookID + "\x00" + sourceID
}

func (s *MemStore) CreateBook(ctx context.Context, book *Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.books[book.ID]; exists {
		return fmt.Errorf("book %s already exists", book.ID)
	}
	for _, existing := range s.books {
		if existing.DedupKey == book.DedupKey {
			return fmt.Errorf("duplicate dedup key %q", book.DedupKey)
		}
	}

	s.seq++
	stored := &memBook{Book: *book, seq: s.seq}
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.books[book.ID] = stored
	return nil
}

func (s *MemStore) GetBook(ctx context.Context, id string) (*Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.books[id]
	if !ok {
		return nil, nil
	}
	book := stored.Book
	return &book, nil
}

func (s *MemStore) FindBookByKey(ctx context.Context, dedupKey string) (*Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stored := range s.books {
		if stored.DedupKey == dedupKey {
			book := stored.Book
			return &book, nil
		}
	}
	return nil, nil
}

func (s *MemStore) ListBooks(ctx context.Context, status UserStatus) ([]*Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored []*memBook
	for _, b := range s.books {
		if status == "" || b.UserStatus == status {
			stored = append(stored, b)
		}
	}
	sort.Slice(stored, func(i, j int) bool {
		if stored[i].seq != stored[j].seq {
			return stored[i].seq > stored[j].seq
		}
		return stored[i].ID < stored[j].ID
	})

	books := make([]*Book, len(stored))
	for i, b := range stored {
		book := b.Book
		books[i] = &book
	}
	return books, nil
}

func (s *MemStore) UpdateBookCanonical(ctx context.Context, id, title, author, dedupKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.books[id]
	if !ok {
		return nil
	}
	for _, existing := range s.books {
		if existing.ID != id && existing.DedupKey == dedupKey {
			return fmt.Errorf("duplicate dedup key %q", dedupKey)
		}
	}
	stored.Title = title
	stored.Author = author
	stored.DedupKey = dedupKey
	stored.ContentVersion++
	stored.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) UpdateBookEnrichment(ctx context.Context, id string, fields EnrichmentFields, status EnrichmentStatus, bumpVersion bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.books[id]
	if !ok {
		return nil
	}
	merge := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	merge(&stored.Title, fields.Title)
	merge(&stored.Author, fields.Author)
	merge(&stored.Description, fields.Description)
	merge(&stored.ISBN, fields.ISBN)
	merge(&stored.CoverURL, fields.CoverURL)
	merge(&stored.AmazonURL, fields.AmazonURL)
	stored.EnrichmentStatus = status
	if bumpVersion {
		stored.ContentVersion++
	}
	stored.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) UpdateUserStatus(ctx context.Context, id string, status UserStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.books[id]
	if !ok {
		return fmt.Errorf("book %s not found", id)
	}
	stored.UserStatus = status
	stored.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) DeleteBook(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.books, id)
	for key, mention := range s.mentions {
		if mention.BookID == id {
			delete(s.mentions, key)
		}
	}
	return nil
}

func (s *MemStore) ListBooksPendingEnrichment(ctx context.Context, ids []string) ([]*Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ids != nil && len(ids) == 0 {
		return nil, nil
	}
	wanted := make(map[string]bool)
	for _, id := range ids {
		wanted[id] = true
	}

	var stored []*memBook
	for _, b := range s.books {
		if b.EnrichmentStatus != EnrichmentPending {
			continue
		}
		if ids != nil && !wanted[b.ID] {
			continue
		}
		stored = append(stored, b)
	}
	return sortedAscending(stored), nil
}

func (s *MemStore) ListBooksWithoutMentions(ctx context.Context) ([]*Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mentioned := make(map[string]bool)
	for _, mention := range s.mentions {
		mentioned[mention.BookID] = true
	}

	var stored []*memBook
	for _, b := range s.books {
		if !mentioned[b.ID] {
			stored = append(stored, b)
		}
	}
	return sortedAscending(stored), nil
}

func sortedAscending(stored []*memBook) []*Book {
	sort.Slice(stored, func(i, j int) bool {
		if stored[i].seq != stored[j].seq {
			return stored[i].seq < stored[j].seq
		}
		return stored[i].ID < stored[j].ID
	})
	books := make([]*Book, len(stored))
	for i, b := range stored {
		book := b.Book
		books[i] = &book
	}
	return books
}

func (s *MemStore) UpsertSource(ctx context.Context, source *Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sources[source.ID]; ok {
		existing.Title = source.Title
		existing.URL = source.URL
		return nil
	}

	s.seq++
	stored := &memSource{Source: *source, seq: s.seq}
	stored.CreatedAt = time.Now()
	s.sources[source.ID] = stored
	return nil
}

func (s *MemStore) GetSource(ctx context.Context, id string) (*Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sources[id]
	if !ok {
		return nil, nil
	}
	source := stored.Source
	return &source, nil
}

func (s *MemStore) ListSources(ctx context.Context) ([]*Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored []*memSource
	for _, src := range s.sources {
		stored = append(stored, src)
	}
	sort.Slice(stored, func(i, j int) bool {
		if stored[i].seq != stored[j].seq {
			return stored[i].seq > stored[j].seq
		}
		return stored[i].ID < stored[j].ID
	})

	sources := make([]*Source, len(stored))
	for i, src := range stored {
		source := src.Source
		sources[i] = &source
	}
	return sources, nil
}

func (s *MemStore) SetSourceStatus(ctx context.Context, id string, status SourceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sources[id]
	if !ok {
		return nil
	}
	stored.Status = status
	if status == SourceProcessed {
		now := time.Now()
		stored.ProcessedAt = &now
	}
	return nil
}

func (s *MemStore) DeleteSource(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sources, id)
	for key, mention := range s.mentions {
		if mention.SourceID == id {
			delete(s.mentions, key)
		}
	}
	return nil
}

func (s *MemStore) GetMention(ctx context.Context, bookID, sourceID string) (*Mention, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.mentions[mentionKey(bookID, sourceID)]
	if !ok {
		return nil, nil
	}
	mention := *stored
	return &mention, nil
}

func (s *MemStore) UpsertMention(ctx context.Context, mention *Mention) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := mentionKey(mention.BookID, mention.SourceID)
	if existing, ok := s.mentions[key]; ok {
		existing.CommentID = mention.CommentID
		existing.Snippet = mention.Snippet
		return nil
	}
	stored := *mention
	stored.CreatedAt = time.Now()
	s.mentions[key] = &stored
	return nil
}

func (s *MemStore) ListMentionsForBook(ctx context.Context, bookID string) ([]*Mention, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var mentions []*Mention
	for _, stored := range s.mentions {
		if stored.BookID == bookID {
			mention := *stored
			mentions = append(mentions, &mention)
		}
	}
	sort.Slice(mentions, func(i, j int) bool {
		if mentions[i].SourceID != mentions[j].SourceID {
			return mentions[i].SourceID < mentions[j].SourceID
		}
		return mentions[i].Position < mentions[j].Position
	})
	return mentions, nil
}

func (s *MemStore) SourceTitlesForBook(ctx context.Context, bookID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var titles []string
	for _, mention := range s.mentions {
		if mention.BookID != bookID {
			continue
		}
		source, ok := s.sources[mention.SourceID]
		if !ok || seen[source.Title] {
			continue
		}
		seen[source.Title] = true
		titles = append(titles, source.Title)
	}
	sort.Strings(titles)
	return titles, nil
}

func (s *MemStore) ListBooksForSource(ctx context.Context, sourceID string) ([]*Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type positioned struct {
		book     *memBook
		position int
	}
	var matched []positioned
	for _, mention := range s.mentions {
		if mention.SourceID != sourceID {
			continue
		}
		if book, ok := s.books[mention.BookID]; ok {
			matched = append(matched, positioned{book, mention.Position})
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].position != matched[j].position {
			return matched[i].position < matched[j].position
		}
		return matched[i].book.ID < matched[j].book.ID
	})

	books := make([]*Book, len(matched))
	for i, m := range matched {
		book := m.book.Book
		books[i] = &book
	}
	return books, nil
}

func (s *MemStore) MentionCount(ctx context.Context, bookID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, mention := range s.mentions {
		if mention.BookID == bookID {
			count++
		}
	}
	return count, nil
}

func (s *MemStore) DeleteMentionsForSource(ctx context.Context, sourceID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key, mention := range s.mentions {
		if mention.SourceID == sourceID {
			delete(s.mentions, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemStore) Close() error {
	return nil
}
