package vector

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// EmbeddingDim matches text-embedding-3-small.
const EmbeddingDim = 1536

// PgVectorIndex stores embedding records in a pgvector table over its own
// connection.
type PgVectorIndex struct {
	db *sql.DB
}

func NewPgVectorIndex(databaseURL string) (*PgVectorIndex, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector index database: %w", err)
	}

	index := &PgVectorIndex{db: db}
	if err := index.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize vector index schema: %w", err)
	}

	return index, nil
}

func (i *PgVectorIndex) initSchema() error {
	if _, err := i.db.Exec("CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTableSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS book_embeddings (
			book_id TEXT PRIMARY KEY,
			content_version BIGINT NOT NULL,
			chunk TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);`, EmbeddingDim)
	if _, err := i.db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("failed to create book_embeddings table: %w", err)
	}

	// ivfflat needs rows to build; fine to fail on an empty table.
	vectorIndexSQL := `CREATE INDEX IF NOT EXISTS idx_book_embeddings_embedding
		ON book_embeddings USING ivfflat (embedding vector_cosine_ops);`
	if _, err := i.db.Exec(vectorIndexSQL); err != nil {
		slog.Warn("Could not create ivfflat index", "error", err)
	}

	return nil
}

func (i *PgVectorIndex) Upsert(ctx context.Context, record *Record) error {
	query := `
		INSERT INTO book_embeddings (book_id, content_version, chunk, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (book_id) DO UPDATE SET
			content_version = EXCLUDED.content_version,
			chunk = EXCLUDED.chunk,
			embedding = EXCLUDED.embedding,
			updated_at = NOW()
	`
	_, err := i.db.ExecContext(ctx, query,
		record.BookID,
		record.ContentVersion,
		record.Chunk,
		pgvector.NewVector(record.Embedding),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding record: %w", err)
	}
	return nil
}

func (i *PgVectorIndex) Delete(ctx context.Context, bookID string) error {
	if _, err := i.db.ExecContext(ctx,
		`DELETE FROM book_embeddings WHERE book_id = $1`, bookID); err != nil {
		return fmt.Errorf("failed to delete embedding record: %w", err)
	}
	return nil
}

func (i *PgVectorIndex) Search(ctx context.Context, embedding []float32, limit int) ([]Match, error) {
	query := `
		SELECT book_id, 1 - (embedding <=> $1) AS score
		FROM book_embeddings
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	rows, err := i.db.QueryContext(ctx, query, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search embeddings: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var match Match
		if err := rows.Scan(&match.BookID, &match.Score); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, match)
	}
	return matches, rows.Err()
}

func (i *PgVectorIndex) Versions(ctx context.Context) (map[string]int64, error) {
	rows, err := i.db.QueryContext(ctx, `SELECT book_id, content_version FROM book_embeddings`)
	if err != nil {
		return nil, fmt.Errorf("failed to list embedding versions: %w", err)
	}
	defer rows.Close()

	versions := make(map[string]int64)
	for rows.Next() {
		var bookID string
		var version int64
		if err := rows.Scan(&bookID, &version); err != nil {
			return nil, fmt.Errorf("failed to scan embedding version: %w", err)
		}
		versions[bookID] = version
	}
	return versions, rows.Err()
}

func (i *PgVectorIndex) Close() error {
	return i.db.Close()
}
