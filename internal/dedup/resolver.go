package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"bookpile/internal/extract"
	"bookpile/internal/storage"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/google/uuid"
)

// Tunable matching policy. False merges are worse than near-duplicate
// books, so a best match inside the tie margin of the runner-up is treated
// as ambiguous and rejected.
const (
	SimilarityThreshold = 0.82
	TieMargin           = 0.05

	titleWeight  = 0.7
	authorWeight = 0.3
)

// Resolution is the outcome of resolving one candidate.
type Resolution struct {
	Book           *storage.Book
	Created        bool
	MentionCreated bool
}

// Resolver maps candidates onto canonical books and records mentions.
// Find-or-create runs under a mutex: concurrent extraction of two mentions
// of the same book must not race to create two books.
type Resolver struct {
	store  storage.Store
	metric *metrics.SorensenDice
	mu     sync.Mutex
}

func NewResolver(store storage.Store) *Resolver {
	return &Resolver{
		store:  store,
		metric: metrics.NewSorensenDice(),
	}
}

// Resolve returns the book the candidate belongs to, creating one if
// necessary, and records exactly one mention per (book, source) pair.
// Re-running on an already-recorded pair updates a materially different
// snippet and never duplicates the mention.
func (r *Resolver) Resolve(ctx context.Context, candidate *extract.Candidate) (*Resolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	book, created, err := r.findOrCreate(ctx, candidate)
	if err != nil {
		return nil, err
	}

	mentionCreated, err := r.recordMention(ctx, book, candidate)
	if err != nil {
		return nil, err
	}

	return &Resolution{Book: book, Created: created, MentionCreated: mentionCreated}, nil
}

func (r *Resolver) findOrCreate(ctx context.Context, candidate *extract.Candidate) (*storage.Book, bool, error) {
	key := Key(candidate.Title, candidate.Author)

	book, err := r.store.FindBookByKey(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if book == nil {
		book, err = r.fuzzyMatch(ctx, candidate)
		if err != nil {
			return nil, false, err
		}
	}

	if book != nil {
		if err := r.improveCanonical(ctx, book, candidate); err != nil {
			return nil, false, err
		}
		return book, false, nil
	}

	book = &storage.Book{
		ID:               uuid.New().String(),
		Title:            candidate.Title,
		Author:           candidate.Author,
		DedupKey:         key,
		EnrichmentStatus: storage.EnrichmentPending,
		UserStatus:       storage.StatusUnread,
		ContentVersion:   1,
	}
	if err := r.store.CreateBook(ctx, book); err != nil {
		return nil, false, fmt.Errorf("failed to create book %q: %w", candidate.Title, err)
	}

	slog.Debug("Created book", "book_id", book.ID, "title", book.Title)
	return book, true, nil
}

// fuzzyMatch scores the candidate against every existing book and accepts
// the best match only above the threshold and only when unambiguous.
func (r *Resolver) fuzzyMatch(ctx context.Context, candidate *extract.Candidate) (*storage.Book, error) {
	books, err := r.store.ListBooks(ctx, "")
	if err != nil {
		return nil, err
	}

	candidateTitle := sortedTokens(candidate.Title)
	candidateAuthor := sortedTokens(candidate.Author)

	var best, second *storage.Book
	var bestScore, secondScore float64

	for _, book := range books {
		score := strutil.Similarity(candidateTitle, sortedTokens(book.Title), r.metric)
		if candidateAuthor != "" && book.Author != "" {
			authorScore := strutil.Similarity(candidateAuthor, sortedTokens(book.Author), r.metric)
			score = titleWeight*score + authorWeight*authorScore
		}

		if score > bestScore {
			second, secondScore = best, bestScore
			best, bestScore = book, score
		} else if score > secondScore {
			second, secondScore = book, score
		}
	}

	if best == nil || bestScore < SimilarityThreshold {
		return nil, nil
	}

	if second != nil && bestScore-secondScore < TieMargin {
		// Dedup tie. Creating a near-duplicate book is recoverable;
		// silently merging the wrong one is not.
		slog.Warn("Ambiguous match, treating as new book",
			"title", candidate.Title,
			"best_title", best.Title,
			"best_score", bestScore,
			"runner_up_title", second.Title,
			"runner_up_score", secondScore)
		return nil, nil
	}

	slog.Debug("Fuzzy-matched book",
		"title", candidate.Title, "matched_title", best.Title, "score", bestScore)
	return best, nil
}

// improveCanonical adopts more complete fields observed later: an author
// where the book had none, or a better-cased/longer form of the same title.
// Any change bumps the content version.
func (r *Resolver) improveCanonical(ctx context.Context, book *storage.Book, candidate *extract.Candidate) error {
	title := book.Title
	author := book.Author

	if author == "" && candidate.Author != "" {
		author = candidate.Author
	}
	if betterTitle(title, candidate.Title) {
		title = candidate.Title
	}

	if title == book.Title && author == book.Author {
		return nil
	}

	key := Key(title, author)
	if key != book.DedupKey {
		// Another book may already hold the improved key; adopting it
		// would violate key uniqueness, so keep the book as is.
		holder, err := r.store.FindBookByKey(ctx, key)
		if err != nil {
			return err
		}
		if holder != nil && holder.ID != book.ID {
			slog.Warn("Skipping canonical improvement, key belongs to another book",
				"book_id", book.ID, "holder_id", holder.ID, "key", key)
			return nil
		}
	}
	if err := r.store.UpdateBookCanonical(ctx, book.ID, title, author, key); err != nil {
		return fmt.Errorf("failed to update canonical fields for %s: %w", book.ID, err)
	}

	slog.Debug("Improved canonical fields", "book_id", book.ID, "title", title, "author", author)
	book.Title = title
	book.Author = author
	book.DedupKey = key
	book.ContentVersion++
	return nil
}

// betterTitle reports whether proposed is a more complete form of the same
// title: longer, or properly cased where the current one is all lower-case.
func betterTitle(current, proposed string) bool {
	if NormalizeText(current) != NormalizeText(proposed) {
		return false
	}
	if len(proposed) > len(current) {
		return true
	}
	return current == strings.ToLower(current) && proposed != strings.ToLower(proposed)
}

func (r *Resolver) recordMention(ctx context.Context, book *storage.Book, candidate *extract.Candidate) (bool, error) {
	existing, err := r.store.GetMention(ctx, book.ID, candidate.SourceID)
	if err != nil {
		return false, err
	}

	if existing != nil {
		if !materiallyDifferent(existing.Snippet, candidate.Justification) {
			return false, nil
		}
		existing.Snippet = candidate.Justification
		existing.CommentID = candidate.CommentID
		if err := r.store.UpsertMention(ctx, existing); err != nil {
			return false, err
		}
		return false, nil
	}

	mention := &storage.Mention{
		BookID:    book.ID,
		SourceID:  candidate.SourceID,
		CommentID: candidate.CommentID,
		Snippet:   candidate.Justification,
		Position:  candidate.Position,
	}
	if err := r.store.UpsertMention(ctx, mention); err != nil {
		return false, err
	}
	return true, nil
}

func materiallyDifferent(existing, proposed string) bool {
	proposed = strings.TrimSpace(proposed)
	return proposed != "" && proposed != strings.TrimSpace(existing)
}
