package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"bookpile/internal/search"
)

type SearchHandler struct {
	orchestrator *search.Orchestrator
}

type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type SearchResult struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Author       string   `json:"author,omitempty"`
	Description  string   `json:"description,omitempty"`
	ISBN         string   `json:"isbn,omitempty"`
	CoverURL     string   `json:"cover_url,omitempty"`
	AmazonURL    string   `json:"amazon_url,omitempty"`
	UserStatus   string   `json:"user_status"`
	Score        float64  `json:"score"`
	SourceTitles []string `json:"source_titles,omitempty"`
}

type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

func NewSearchHandler(orchestrator *search.Orchestrator) *SearchHandler {
	return &SearchHandler{orchestrator: orchestrator}
}

const defaultSearchLimit = 10

func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Error decoding search request", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if req.Query == "" {
		http.Error(w, "Query cannot be empty", http.StatusBadRequest)
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultSearchLimit
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	results, err := h.orchestrator.Search(ctx, req.Query, req.Limit)
	if err != nil {
		slog.Error("Error processing search", "query", req.Query, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	response := SearchResponse{
		Query:   req.Query,
		Results: make([]SearchResult, len(results)),
	}
	for i, result := range results {
		response.Results[i] = SearchResult{
			ID:           result.Book.ID,
			Title:        result.Book.Title,
			Author:       result.Book.Author,
			Description:  result.Book.Description,
			ISBN:         result.Book.ISBN,
			CoverURL:     result.Book.CoverURL,
			AmazonURL:    result.Book.AmazonURL,
			UserStatus:   string(result.Book.UserStatus),
			Score:        result.Score,
			SourceTitles: result.SourceTitles,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Error encoding search response", "error", err)
	}
}
