// Package sources loads discussion threads into the normalized shape the
// pipeline consumes: a source identifier, a title, and an ordered comment
// list.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"bookpile/internal/storage"
)

// Comment is one normalized thread comment.
type Comment struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Thread is a loaded source document.
type Thread struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	URL      string    `json:"url,omitempty"`
	Comments []Comment `json:"comments"`
}

// Adapter turns a URL or file path into a Thread.
type Adapter interface {
	Load(ctx context.Context, ref string) (*Thread, error)
}

var redditIDPattern = regexp.MustCompile(`/comments/([a-zA-Z0-9]+)`)

// RedditAdapter fetches threads from Reddit's public JSON endpoint (no
// credentials, rate limited) and loads the same shape from local JSON
// files. Fetched threads are cached under cacheDir.
type RedditAdapter struct {
	httpClient *http.Client
	userAgent  string
	cacheDir   string
}

func NewRedditAdapter(cacheDir string) *RedditAdapter {
	return &RedditAdapter{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		userAgent:  "bookpile/1.0 (book recommendation tracker)",
		cacheDir:   cacheDir,
	}
}

func (a *RedditAdapter) Load(ctx context.Context, ref string) (*Thread, error) {
	if _, err := os.Stat(ref); err == nil {
		return a.loadFile(ref)
	}

	if strings.Contains(ref, "reddit.com") || strings.Contains(ref, "redd.it") {
		return a.fetch(ctx, ref)
	}

	return nil, fmt.Errorf("source %q is neither an existing file nor a reddit URL", ref)
}

func (a *RedditAdapter) loadFile(path string) (*Thread, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source file: %w", err)
	}

	thread, err := parseThreadJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source file %s: %w", path, err)
	}

	// Local files without a reddit ID get a content-derived identifier so
	// re-adding the same file is a no-op.
	if thread.ID == "" {
		thread.ID = storage.HashContent(string(data))
	}
	if thread.Title == "" {
		thread.Title = filepath.Base(path)
	}
	return thread, nil
}

func (a *RedditAdapter) fetch(ctx context.Context, threadURL string) (*Thread, error) {
	id := extractRedditID(threadURL)

	if id != "" && a.cacheDir != "" {
		cachePath := filepath.Join(a.cacheDir, id+".json")
		if data, err := os.ReadFile(cachePath); err == nil {
			thread, err := parseThreadJSON(data)
			if err == nil {
				return thread, nil
			}
		}
	}

	jsonURL := normalizeJSONURL(threadURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jsonURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch thread: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read thread response: %w", err)
	}

	thread, err := parseThreadJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse thread: %w", err)
	}

	if a.cacheDir != "" && thread.ID != "" {
		if err := os.MkdirAll(a.cacheDir, 0o755); err == nil {
			_ = os.WriteFile(filepath.Join(a.cacheDir, thread.ID+".json"), data, 0o644)
		}
	}

	return thread, nil
}

func extractRedditID(ref string) string {
	if match := redditIDPattern.FindStringSubmatch(ref); match != nil {
		return match[1]
	}
	return ""
}

// normalizeJSONURL appends .json to a thread URL, preserving query params.
func normalizeJSONURL(threadURL string) string {
	base, params, hasParams := strings.Cut(threadURL, "?")
	if !strings.HasSuffix(base, ".json") {
		base = strings.TrimRight(base, "/") + ".json"
	}
	if hasParams {
		return base + "?" + params
	}
	return base
}

// parseThreadJSON accepts either Reddit's raw two-listing array or an
// already-normalized Thread object.
func parseThreadJSON(data []byte) (*Thread, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		return parseRedditListing(data)
	}

	var thread Thread
	if err := json.Unmarshal(data, &thread); err != nil {
		return nil, fmt.Errorf("invalid thread JSON: %w", err)
	}
	if thread.Title == "" && len(thread.Comments) == 0 {
		return nil, fmt.Errorf("thread JSON has no title and no comments")
	}
	return &thread, nil
}

type redditChild struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type redditListing struct {
	Data struct {
		Children []redditChild `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	SelfText  string `json:"selftext"`
	Permalink string `json:"permalink"`
}

type redditComment struct {
	ID      string          `json:"id"`
	Body    string          `json:"body"`
	Replies json.RawMessage `json:"replies"`
}

// parseRedditListing parses Reddit's format: a two-element array holding
// the submission listing and the comment tree listing.
func parseRedditListing(data []byte) (*Thread, error) {
	var listings []redditListing
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("invalid reddit JSON: %w", err)
	}
	if len(listings) < 2 || len(listings[0].Data.Children) == 0 {
		return nil, fmt.Errorf("invalid reddit JSON format")
	}

	var post redditPost
	if err := json.Unmarshal(listings[0].Data.Children[0].Data, &post); err != nil {
		return nil, fmt.Errorf("failed to parse submission: %w", err)
	}

	thread := &Thread{
		ID:    post.ID,
		Title: post.Title,
		URL:   "https://reddit.com" + post.Permalink,
	}

	// The post body participates in extraction like any comment.
	if body := strings.TrimSpace(post.SelfText); body != "" {
		thread.Comments = append(thread.Comments, Comment{ID: post.ID, Text: body})
	}

	flattenComments(listings[1].Data.Children, thread)
	return thread, nil
}

func flattenComments(children []redditChild, thread *Thread) {
	for _, child := range children {
		if child.Kind != "t1" {
			continue
		}

		var comment redditComment
		if err := json.Unmarshal(child.Data, &comment); err != nil {
			continue
		}

		body := strings.TrimSpace(comment.Body)
		if body != "" && body != "[deleted]" && body != "[removed]" {
			thread.Comments = append(thread.Comments, Comment{ID: comment.ID, Text: body})
		}

		// Replies are either a nested listing or an empty string.
		if len(comment.Replies) > 0 && comment.Replies[0] == '{' {
			var replies redditListing
			if err := json.Unmarshal(comment.Replies, &replies); err == nil {
				flattenComments(replies.Data.Children, thread)
			}
		}
	}
}
