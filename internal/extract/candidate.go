package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidCandidate marks extraction output that failed validation. It is
// per-comment: callers log, count, and continue.
var ErrInvalidCandidate = errors.New("invalid candidate")

// RawMention is one untrusted triple proposed by the extraction service.
type RawMention struct {
	Title         string `json:"title"`
	Author        string `json:"author,omitempty"`
	Justification string `json:"justification,omitempty"`
}

// Candidate is a validated extraction result. Candidates are ephemeral:
// they exist only between extraction and identity resolution and are never
// persisted.
type Candidate struct {
	Title         string `validate:"required,max=250"`
	Author        string `validate:"max=200"`
	Justification string `validate:"required,max=2000"`
	SourceID      string `validate:"required"`
	CommentID     string
	Position      int
}

var validate = validator.New()

var honorifics = []string{"dr.", "dr", "mr.", "mr", "mrs.", "mrs", "ms.", "ms", "prof.", "prof", "sir"}

// NormalizeCandidate turns a raw extraction result into a validated
// Candidate. Pure transform, no side effects.
func NormalizeCandidate(raw RawMention, sourceID, commentID string, position int) (*Candidate, error) {
	title := collapseWhitespace(strings.Trim(strings.TrimSpace(raw.Title), `"'`))
	if title == "" {
		return nil, fmt.Errorf("%w: empty title", ErrInvalidCandidate)
	}

	candidate := &Candidate{
		Title:         title,
		Author:        normalizeAuthor(raw.Author),
		Justification: collapseWhitespace(raw.Justification),
		SourceID:      sourceID,
		CommentID:     commentID,
		Position:      position,
	}

	if err := validate.Struct(candidate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCandidate, err)
	}

	return candidate, nil
}

// normalizeAuthor strips leading honorifics and collapses whitespace. The
// author is optional; placeholder values the model likes to emit become
// empty.
func normalizeAuthor(author string) string {
	author = collapseWhitespace(author)
	lower := strings.ToLower(author)
	switch lower {
	case "unknown", "n/a", "none", "null":
		return ""
	}

	for _, honorific := range honorifics {
		if strings.HasPrefix(lower, honorific+" ") {
			return collapseWhitespace(author[len(honorific)+1:])
		}
	}
	return author
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
