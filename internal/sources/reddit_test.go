package sources

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const redditThreadJSON = `[
	{"data": {"children": [
		{"kind": "t3", "data": {
			"id": "abc123",
			"title": "What book changed your life?",
			"selftext": "Looking for recommendations.",
			"permalink": "/r/books/comments/abc123/what_book_changed_your_life/"
		}}
	]}},
	{"data": {"children": [
		{"kind": "t1", "data": {
			"id": "c1",
			"body": "The Dog Stars by Peter Heller, hands down.",
			"replies": {"data": {"children": [
				{"kind": "t1", "data": {"id": "c2", "body": "Seconding this!", "replies": ""}}
			]}}
		}},
		{"kind": "t1", "data": {"id": "c3", "body": "[deleted]", "replies": ""}},
		{"kind": "t1", "data": {"id": "c4", "body": "[removed]", "replies": ""}},
		{"kind": "more", "data": {"id": "c5", "body": "should be skipped"}},
		{"kind": "t1", "data": {"id": "c6", "body": "Dune, obviously.", "replies": ""}}
	]}}
]`

func TestParseRedditListing(t *testing.T) {
	thread, err := parseThreadJSON([]byte(redditThreadJSON))
	if err != nil {
		t.Fatalf("parseThreadJSON() error = %v", err)
	}

	if thread.ID != "abc123" {
		t.Errorf("ID = %q, want abc123", thread.ID)
	}
	if thread.Title != "What book changed your life?" {
		t.Errorf("Title = %q", thread.Title)
	}
	if thread.URL != "https://reddit.com/r/books/comments/abc123/what_book_changed_your_life/" {
		t.Errorf("URL = %q", thread.URL)
	}

	// Post body, two top-level comments, one nested reply. Deleted,
	// removed, and non-comment children are skipped.
	want := []struct{ id, text string }{
		{"abc123", "Looking for recommendations."},
		{"c1", "The Dog Stars by Peter Heller, hands down."},
		{"c2", "Seconding this!"},
		{"c6", "Dune, obviously."},
	}
	if len(thread.Comments) != len(want) {
		t.Fatalf("got %d comments, want %d: %+v", len(thread.Comments), len(want), thread.Comments)
	}
	for i, w := range want {
		if thread.Comments[i].ID != w.id || thread.Comments[i].Text != w.text {
			t.Errorf("comment %d = %+v, want %+v", i, thread.Comments[i], w)
		}
	}
}

func TestParseThreadJSONNormalizedObject(t *testing.T) {
	data := `{"id":"local-1","title":"book club notes","comments":[{"id":"n1","text":"Try Hyperion."}]}`

	thread, err := parseThreadJSON([]byte(data))
	if err != nil {
		t.Fatalf("parseThreadJSON() error = %v", err)
	}
	if thread.ID != "local-1" || thread.Title != "book club notes" {
		t.Errorf("unexpected thread: %+v", thread)
	}
	if len(thread.Comments) != 1 || thread.Comments[0].Text != "Try Hyperion." {
		t.Errorf("unexpected comments: %+v", thread.Comments)
	}
}

func TestParseThreadJSONRejectsEmpty(t *testing.T) {
	if _, err := parseThreadJSON([]byte(`{}`)); err == nil {
		t.Error("expected error for object with no title and no comments")
	}
	if _, err := parseThreadJSON([]byte(`[]`)); err == nil {
		t.Error("expected error for empty listing array")
	}
	if _, err := parseThreadJSON([]byte(`not json`)); err == nil {
		t.Error("expected error for non-JSON input")
	}
}

func TestLoadLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thread.json")
	content := `{"comments":[{"id":"n1","text":"Read Blindsight."}]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	adapter := NewRedditAdapter("")
	thread, err := adapter.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if thread.ID == "" {
		t.Error("expected content-derived ID for file without one")
	}
	if thread.Title != "thread.json" {
		t.Errorf("Title = %q, want file name fallback", thread.Title)
	}

	// Same content, same ID: re-adding the file is a no-op upstream.
	again, err := adapter.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if again.ID != thread.ID {
		t.Errorf("ID changed between loads: %q vs %q", thread.ID, again.ID)
	}
}

func TestLoadRejectsUnknownRef(t *testing.T) {
	adapter := NewRedditAdapter("")
	if _, err := adapter.Load(context.Background(), "/no/such/file.json"); err == nil {
		t.Error("expected error for nonexistent non-reddit ref")
	}
}

func TestNormalizeJSONURL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain thread url",
			input: "https://www.reddit.com/r/books/comments/abc123/title/",
			want:  "https://www.reddit.com/r/books/comments/abc123/title.json",
		},
		{
			name:  "already json",
			input: "https://www.reddit.com/r/books/comments/abc123/title.json",
			want:  "https://www.reddit.com/r/books/comments/abc123/title.json",
		},
		{
			name:  "preserves query params",
			input: "https://www.reddit.com/r/books/comments/abc123/title/?sort=top",
			want:  "https://www.reddit.com/r/books/comments/abc123/title.json?sort=top",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeJSONURL(tt.input); got != tt.want {
				t.Errorf("normalizeJSONURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtractRedditID(t *testing.T) {
	if got := extractRedditID("https://www.reddit.com/r/books/comments/abc123/title/"); got != "abc123" {
		t.Errorf("extractRedditID() = %q, want abc123", got)
	}
	if got := extractRedditID("https://example.com/whatever"); got != "" {
		t.Errorf("extractRedditID() = %q, want empty", got)
	}
}
