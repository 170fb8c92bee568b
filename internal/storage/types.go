package storage

import (
	"context"
	"time"
)

// UserStatus is the reader-set shelf state of a book. Ingestion never
// touches it.
type UserStatus string

const (
	StatusUnread    UserStatus = "unread"
	StatusReading   UserStatus = "reading"
	StatusFinished  UserStatus = "finished"
	StatusAbandoned UserStatus = "abandoned"
)

var ValidUserStatuses = []UserStatus{StatusUnread, StatusReading, StatusFinished, StatusAbandoned}

func ValidUserStatus(s UserStatus) bool {
	for _, valid := range ValidUserStatuses {
		if s == valid {
			return true
		}
	}
	return false
}

// EnrichmentStatus tracks the metadata lookup lifecycle of a book.
type EnrichmentStatus string

const (
	EnrichmentPending EnrichmentStatus = "pending"
	EnrichmentDone    EnrichmentStatus = "enriched"
	EnrichmentFailed  EnrichmentStatus = "enrichment_failed"
)

// SourceStatus tracks the processing lifecycle of an ingested source.
type SourceStatus string

const (
	SourceUnprocessed SourceStatus = "unprocessed"
	SourceProcessing  SourceStatus = "processing"
	SourceProcessed   SourceStatus = "processed"
	SourceFailed      SourceStatus = "failed"
)

// Book is the canonical catalog entity. ID is assigned once and never
// changes. ContentVersion increments whenever any field used for the
// embedding changes; the vector index uses it as the sole staleness signal.
type Book struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Author           string           `json:"author,omitempty"`
	Description      string           `json:"description,omitempty"`
	ISBN             string           `json:"isbn,omitempty"`
	CoverURL         string           `json:"cover_url,omitempty"`
	AmazonURL        string           `json:"amazon_url,omitempty"`
	DedupKey         string           `json:"-"`
	EnrichmentStatus EnrichmentStatus `json:"enrichment_status"`
	UserStatus       UserStatus       `json:"user_status"`
	ContentVersion   int64            `json:"content_version"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Source is one ingested discussion thread or document.
type Source struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	URL         string       `json:"url,omitempty"`
	Status      SourceStatus `json:"status"`
	ProcessedAt *time.Time   `json:"processed_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Mention records that a book was referenced by a source. (BookID, SourceID)
// is unique; re-processing a source replaces its mentions rather than
// appending.
type Mention struct {
	BookID    string    `json:"book_id"`
	SourceID  string    `json:"source_id"`
	CommentID string    `json:"comment_id,omitempty"`
	Snippet   string    `json:"snippet,omitempty"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// EnrichmentFields are the merge-able results of a metadata lookup.
type EnrichmentFields struct {
	Title       string
	Author      string
	Description string
	ISBN        string
	CoverURL    string
	AmazonURL   string
}

// Store is the relational source of truth for books, sources, and mentions.
// Lookups return (nil, nil) when the row does not exist.
type Store interface {
	CreateBook(ctx context.Context, book *Book) error
	GetBook(ctx context.Context, id string) (*Book, error)
	FindBookByKey(ctx context.Context, dedupKey string) (*Book, error)
	ListBooks(ctx context.Context, status UserStatus) ([]*Book, error)
	UpdateBookCanonical(ctx context.Context, id, title, author, dedupKey string) error
	UpdateBookEnrichment(ctx context.Context, id string, fields EnrichmentFields, status EnrichmentStatus, bumpVersion bool) error
	UpdateUserStatus(ctx context.Context, id string, status UserStatus) error
	DeleteBook(ctx context.Context, id string) error
	ListBooksPendingEnrichment(ctx context.Context, ids []string) ([]*Book, error)
	ListBooksWithoutMentions(ctx context.Context) ([]*Book, error)

	UpsertSource(ctx context.Context, source *Source) error
	GetSource(ctx context.Context, id string) (*Source, error)
	ListSources(ctx context.Context) ([]*Source, error)
	SetSourceStatus(ctx context.Context, id string, status SourceStatus) error
	DeleteSource(ctx context.Context, id string) error

	GetMention(ctx context.Context, bookID, sourceID string) (*Mention, error)
	UpsertMention(ctx context.Context, mention *Mention) error
	ListMentionsForBook(ctx context.Context, bookID string) ([]*Mention, error)
	SourceTitlesForBook(ctx context.Context, bookID string) ([]string, error)
	ListBooksForSource(ctx context.Context, sourceID string) ([]*Book, error)
	MentionCount(ctx context.Context, bookID string) (int, error)
	DeleteMentionsForSource(ctx context.Context, sourceID string) (int64, error)

	Close() error
}
