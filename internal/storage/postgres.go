package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewPostgresStoreFromDB wraps an existing connection. Schema init is the
// caller's responsibility.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS books (
			id UUID PRIMARY KEY,
			title TEXT NOT NULL,
			author TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			isbn TEXT NOT NULL DEFAULT '',
			cover_url TEXT NOT NULL DEFAULT '',
			amazon_url TEXT NOT NULL DEFAULT '',
			dedup_key TEXT NOT NULL,
			enrichment_status TEXT NOT NULL DEFAULT 'pending',
			user_status TEXT NOT NULL DEFAULT 'unread',
			content_version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS sources (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'unprocessed',
			processed_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS mentions (
			book_id UUID NOT NULL REFERENCES books(id) ON DELETE CASCADE,
			source_id TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
			comment_id TEXT NOT NULL DEFAULT '',
			snippet TEXT NOT NULL DEFAULT '',
			position INT NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (book_id, source_id)
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_books_dedup_key ON books(dedup_key);`,
		`CREATE INDEX IF NOT EXISTS idx_books_enrichment_status ON books(enrichment_status);`,
		`CREATE INDEX IF NOT EXISTS idx_mentions_source ON mentions(source_id);`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run schema statement: %w", err)
		}
	}

	return nil
}

const bookColumns = `id, title, author, description, isbn, cover_url, amazon_url,
	dedup_key, enrichment_status, user_status, content_version, created_at, updated_at`

func bookColumnsPrefixed(alias string) string {
	return alias + `.id, ` + alias + `.title, ` + alias + `.author, ` + alias + `.description, ` +
		alias + `.isbn, ` + alias + `.cover_url, ` + alias + `.amazon_url, ` + alias + `.dedup_key, ` +
		alias + `.enrichment_status, ` + alias + `.user_status, ` + alias + `.content_version, ` +
		alias + `.created_at, ` + alias + `.updated_at`
}

func scanBook(row interface{ Scan(...any) error }) (*Book, error) {
	book := &Book{}
	err := row.Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&book.Description,
		&book.ISBN,
		&book.CoverURL,
		&book.AmazonURL,
		&book.DedupKey,
		&book.EnrichmentStatus,
		&book.UserStatus,
		&book.ContentVersion,
		&book.CreatedAt,
		&book.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return book, nil
}

func (s *PostgresStore) CreateBook(ctx context.Context, book *Book) error {
	query := `
		INSERT INTO books (id, title, author, description, isbn, cover_url, amazon_url,
			dedup_key, enrichment_status, user_status, content_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		book.ID,
		book.Title,
		book.Author,
		book.Description,
		book.ISBN,
		book.CoverURL,
		book.AmazonURL,
		book.DedupKey,
		book.EnrichmentStatus,
		book.UserStatus,
		book.ContentVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to create book: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetBook(ctx context.Context, id string) (*Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1`
	book, err := scanBook(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return book, nil
}

func (s *PostgresStore) FindBookByKey(ctx context.Context, dedupKey string) (*Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE dedup_key = $1`
	book, err := scanBook(s.db.QueryRowContext(ctx, query, dedupKey))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find book by key: %w", err)
	}
	return book, nil
}

func (s *PostgresStore) ListBooks(ctx context.Context, status UserStatus) ([]*Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books`
	args := []any{}
	if status != "" {
		query += ` WHERE user_status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id`

	return s.queryBooks(ctx, query, args...)
}

func (s *PostgresStore) queryBooks(ctx context.Context, query string, args ...any) ([]*Book, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

// UpdateBookCanonical replaces the canonical title/author/key and bumps the
// content version.
func (s *PostgresStore) UpdateBookCanonical(ctx context.Context, id, title, author, dedupKey string) error {
	query := `
		UPDATE books
		SET title = $1, author = $2, dedup_key = $3,
			content_version = content_version + 1, updated_at = NOW()
		WHERE id = $4
	`
	if _, err := s.db.ExecContext(ctx, query, title, author, dedupKey, id); err != nil {
		return fmt.Errorf("failed to update book canonical fields: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateBookEnrichment(ctx context.Context, id string, fields EnrichmentFields, status EnrichmentStatus, bumpVersion bool) error {
	bump := 0
	if bumpVersion {
		bump = 1
	}
	query := `
		UPDATE books
		SET title = COALESCE(NULLIF($1, ''), title),
			author = COALESCE(NULLIF($2, ''), author),
			description = COALESCE(NULLIF($3, ''), description),
			isbn = COALESCE(NULLIF($4, ''), isbn),
			cover_url = COALESCE(NULLIF($5, ''), cover_url),
			amazon_url = COALESCE(NULLIF($6, ''), amazon_url),
			enrichment_status = $7,
			content_version = content_version + $8,
			updated_at = NOW()
		WHERE id = $9
	`
	_, err := s.db.ExecContext(ctx, query,
		fields.Title,
		fields.Author,
		fields.Description,
		fields.ISBN,
		fields.CoverURL,
		fields.AmazonURL,
		status,
		bump,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update book enrichment: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserStatus(ctx context.Context, id string, status UserStatus) error {
	query := `UPDATE books SET user_status = $1, updated_at = NOW() WHERE id = $2`
	result, err := s.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("book %s not found", id)
	}
	return nil
}

func (s *PostgresStore) DeleteBook(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	return nil
}

// ListBooksPendingEnrichment returns pending books, optionally restricted to
// the given IDs (nil means all pending).
func (s *PostgresStore) ListBooksPendingEnrichment(ctx context.Context, ids []string) ([]*Book, error) {
	if ids == nil {
		query := `SELECT ` + bookColumns + ` FROM books
			WHERE enrichment_status = $1 ORDER BY created_at, id`
		return s.queryBooks(ctx, query, EnrichmentPending)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + bookColumns + ` FROM books
		WHERE enrichment_status = $1 AND id = ANY($2) ORDER BY created_at, id`
	return s.queryBooks(ctx, query, EnrichmentPending, pq.Array(ids))
}

func (s *PostgresStore) ListBooksWithoutMentions(ctx context.Context) ([]*Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books b
		WHERE NOT EXISTS (SELECT 1 FROM mentions m WHERE m.book_id = b.id)
		ORDER BY b.created_at, b.id`
	return s.queryBooks(ctx, query)
}

func (s *PostgresStore) UpsertSource(ctx context.Context, source *Source) error {
	query := `
		INSERT INTO sources (id, title, url, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			url = EXCLUDED.url
	`
	_, err := s.db.ExecContext(ctx, query, source.ID, source.Title, source.URL, source.Status)
	if err != nil {
		return fmt.Errorf("failed to upsert source: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSource(ctx context.Context, id string) (*Source, error) {
	query := `SELECT id, title, url, status, processed_at, created_at FROM sources WHERE id = $1`
	source := &Source{}
	var processedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&source.ID, &source.Title, &source.URL, &source.Status, &processedAt, &source.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	if processedAt.Valid {
		source.ProcessedAt = &processedAt.Time
	}
	return source, nil
}

func (s *PostgresStore) ListSources(ctx context.Context) ([]*Source, error) {
	query := `SELECT id, title, url, status, processed_at, created_at
		FROM sources ORDER BY created_at DESC, id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		source := &Source{}
		var processedAt sql.NullTime
		if err := rows.Scan(&source.ID, &source.Title, &source.URL, &source.Status, &processedAt, &source.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		if processedAt.Valid {
			source.ProcessedAt = &processedAt.Time
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

// SetSourceStatus transitions a source; reaching `processed` also stamps
// processed_at.
func (s *PostgresStore) SetSourceStatus(ctx context.Context, id string, status SourceStatus) error {
	query := `UPDATE sources SET status = $1,
		processed_at = CASE WHEN $1 = 'processed' THEN NOW() ELSE processed_at END
		WHERE id = $2`
	if _, err := s.db.ExecContext(ctx, query, status, id); err != nil {
		return fmt.Errorf("failed to set source status: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteSource(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMention(ctx context.Context, bookID, sourceID string) (*Mention, error) {
	query := `SELECT book_id, source_id, comment_id, snippet, position, created_at
		FROM mentions WHERE book_id = $1 AND source_id = $2`
	mention := &Mention{}
	err := s.db.QueryRowContext(ctx, query, bookID, sourceID).Scan(
		&mention.BookID, &mention.SourceID, &mention.CommentID,
		&mention.Snippet, &mention.Position, &mention.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mention: %w", err)
	}
	return mention, nil
}

func (s *PostgresStore) UpsertMention(ctx context.Context, mention *Mention) error {
	query := `
		INSERT INTO mentions (book_id, source_id, comment_id, snippet, position)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (book_id, source_id) DO UPDATE SET
			comment_id = EXCLUDED.comment_id,
			snippet = EXCLUDED.snippet
	`
	_, err := s.db.ExecContext(ctx, query,
		mention.BookID, mention.SourceID, mention.CommentID, mention.Snippet, mention.Position)
	if err != nil {
		return fmt.Errorf("failed to upsert mention: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMentionsForBook(ctx context.Context, bookID string) ([]*Mention, error) {
	query := `SELECT book_id, source_id, comment_id, snippet, position, created_at
		FROM mentions WHERE book_id = $1 ORDER BY source_id, position`
	rows, err := s.db.QueryContext(ctx, query, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mentions: %w", err)
	}
	defer rows.Close()

	var mentions []*Mention
	for rows.Next() {
		mention := &Mention{}
		if err := rows.Scan(&mention.BookID, &mention.SourceID, &mention.CommentID,
			&mention.Snippet, &mention.Position, &mention.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mention: %w", err)
		}
		mentions = append(mentions, mention)
	}
	return mentions, rows.Err()
}

func (s *PostgresStore) SourceTitlesForBook(ctx context.Context, bookID string) ([]string, error) {
	query := `SELECT DISTINCT s.title FROM sources s
		JOIN mentions m ON m.source_id = s.id
		WHERE m.book_id = $1 ORDER BY s.title`
	rows, err := s.db.QueryContext(ctx, query, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list source titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, err
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

func (s *PostgresStore) ListBooksForSource(ctx context.Context, sourceID string) ([]*Book, error) {
	query := `SELECT ` + bookColumnsPrefixed("b") + ` FROM books b
		JOIN mentions m ON m.book_id = b.id
		WHERE m.source_id = $1 ORDER BY m.position, b.id`
	return s.queryBooks(ctx, query, sourceID)
}

func (s *PostgresStore) MentionCount(ctx context.Context, bookID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mentions WHERE book_id = $1`, bookID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count mentions: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) DeleteMentionsForSource(ctx context.Context, sourceID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM mentions WHERE source_id = $1`, sourceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete mentions for source: %w", err)
	}
	return result.RowsAffected()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// HashContent derives a stable source identifier for local files.
func HashContent(content string) string {
	hash := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", hash)
}
