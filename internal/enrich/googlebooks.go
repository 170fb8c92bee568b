package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnavailable marks a lookup that failed for reasons other than
// "no such book": network errors, quota, rate limits. Per-book, non-fatal.
var ErrUnavailable = errors.New("enrichment unavailable")

// Metadata is the merge-able result of one bibliographic lookup.
type Metadata struct {
	Title       string
	Author      string
	Description string
	ISBN        string
	CoverURL    string
	AmazonURL   string
}

// Lookup fetches metadata for a title+author. Returns (nil, nil) when the
// book simply isn't found, so callers can distinguish absence from failure.
type Lookup interface {
	Lookup(ctx context.Context, title, author string) (*Metadata, error)
}

const googleBooksAPI = "https://www.googleapis.com/books/v1/volumes"

type GoogleBooksClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

func NewGoogleBooksClient(apiKey string) *GoogleBooksClient {
	return &GoogleBooksClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiKey:     apiKey,
		baseURL:    googleBooksAPI,
	}
}

// Lookup tries title+author first, then title only.
func (c *GoogleBooksClient) Lookup(ctx context.Context, title, author string) (*Metadata, error) {
	queries := []string{fmt.Sprintf("intitle:%q", title)}
	if author != "" {
		queries = append([]string{fmt.Sprintf("intitle:%q inauthor:%q", title, author)}, queries...)
	}

	for _, query := range queries {
		metadata, err := c.query(ctx, query)
		if err != nil {
			return nil, err
		}
		if metadata != nil {
			return metadata, nil
		}
	}

	return nil, nil
}

func (c *GoogleBooksClient) query(ctx context.Context, query string) (*Metadata, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("maxResults", "5")
	params.Set("langRestrict", "en")
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: rate limited (HTTP 429)", ErrUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: google books returned status %d", ErrUnavailable, resp.StatusCode)
	}

	var result struct {
		TotalItems int `json:"totalItems"`
		Items      []struct {
			ID         string `json:"id"`
			VolumeInfo struct {
				Title               string            `json:"title"`
				Authors             []string          `json:"authors"`
				Description         string            `json:"description"`
				ImageLinks          map[string]string `json:"imageLinks"`
				IndustryIdentifiers []struct {
					Type       string `json:"type"`
					Identifier string `json:"identifier"`
				} `json:"industryIdentifiers"`
			} `json:"volumeInfo"`
		} `json:"items"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrUnavailable, err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, result.Error.Message)
	}
	if result.TotalItems == 0 || len(result.Items) == 0 {
		return nil, nil
	}

	// Prefer the volume with the longest description.
	best := 0
	for i, item := range result.Items {
		if len(item.VolumeInfo.Description) > len(result.Items[best].VolumeInfo.Description) {
			best = i
		}
	}
	info := result.Items[best].VolumeInfo

	isbn := ""
	for _, idType := range []string{"ISBN_13", "ISBN_10"} {
		for _, identifier := range info.IndustryIdentifiers {
			if identifier.Type == idType {
				isbn = identifier.Identifier
				break
			}
		}
		if isbn != "" {
			break
		}
	}

	return &Metadata{
		Title:       info.Title,
		Author:      strings.Join(info.Authors, ", "),
		Description: info.Description,
		ISBN:        isbn,
		CoverURL:    info.ImageLinks["thumbnail"],
		AmazonURL:   amazonSearchURL(info.Title, info.Authors),
	}, nil
}

func amazonSearchURL(title string, authors []string) string {
	if title == "" {
		return ""
	}
	query := title
	if len(authors) > 0 {
		query += " " + authors[0]
	}
	return "https://www.amazon.com/s?k=" + url.QueryEscape(query)
}
