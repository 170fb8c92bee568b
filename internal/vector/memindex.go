package vector

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemIndex is an in-memory Index used by tests. Search ranks by cosine
// similarity, same as the pgvector-backed index.
type MemIndex struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewMemIndex() *MemIndex {
	return &MemIndex{records: make(map[string]*Record)}
}

func (ix *MemIndex) Upsert(ctx context.Context, record *Record) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	stored := *record
	stored.Embedding = append([]float32(nil), record.Embedding...)
	ix.records[record.BookID] = &stored
	return nil
}

func (ix *MemIndex) Delete(ctx context.Context, bookID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	delete(ix.records, bookID)
	return nil
}

func (ix *MemIndex) Search(ctx context.Context, embedding []float32, limit int) ([]Match, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var matches []Match
	for _, record := range ix.records {
		matches = append(matches, Match{
			BookID: record.BookID,
			Score:  cosineSimilarity(embedding, record.Embedding),
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].BookID < matches[j].BookID
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (ix *MemIndex) Versions(ctx context.Context) (map[string]int64, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	versions := make(map[string]int64, len(ix.records))
	for id, record := range ix.records {
		versions[id] = record.ContentVersion
	}
	return versions, nil
}

// Record returns the stored record for a book, or nil.
func (ix *MemIndex) Record(bookID string) *Record {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	record, ok := ix.records[bookID]
	if !ok {
		return nil
	}
	stored := *record
	return &stored
}

func (ix *MemIndex) Close() error {
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
