package extract

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseMentions(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     int
	}{
		{
			name:     "clean array",
			response: `[{"title":"Dune","author":"Frank Herbert","justification":"a classic"}]`,
			want:     1,
		},
		{
			name: "array inside code fence",
			response: "```json\n" +
				`[{"title":"Dune"},{"title":"Hyperion"}]` +
				"\n```",
			want: 2,
		},
		{
			name:     "array with surrounding prose",
			response: `Here are the books I found: [{"title":"Dune"}] Hope this helps!`,
			want:     1,
		},
		{
			name:     "bare object instead of array",
			response: `{"title":"Dune","justification":"mentioned once"}`,
			want:     1,
		},
		{
			name:     "empty array",
			response: `[]`,
			want:     0,
		},
		{
			name:     "refusal prose",
			response: "I could not find any books mentioned in this text.",
			want:     0,
		},
		{
			name:     "malformed json",
			response: `[{"title": "Dune"`,
			want:     0,
		},
		{
			name:     "empty response",
			response: "",
			want:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mentions := ParseMentions(tt.response)
			if len(mentions) != tt.want {
				t.Errorf("ParseMentions() returned %d mentions, want %d", len(mentions), tt.want)
			}
		})
	}
}

func TestParseMentionsFields(t *testing.T) {
	mentions := ParseMentions(`[{"title":"The Dispossessed","author":"Ursula K. Le Guin","justification":"anarchist sci-fi"}]`)
	if len(mentions) != 1 {
		t.Fatalf("got %d mentions, want 1", len(mentions))
	}
	m := mentions[0]
	if m.Title != "The Dispossessed" || m.Author != "Ursula K. Le Guin" || m.Justification != "anarchist sci-fi" {
		t.Errorf("unexpected mention: %+v", m)
	}
}

func TestFilterAgainstSource(t *testing.T) {
	comment := "You should read The Dispossessed, it completely changed how I think about property."

	tests := []struct {
		name     string
		mentions []RawMention
		want     int
	}{
		{
			name:     "title present in comment",
			mentions: []RawMention{{Title: "The Dispossessed", Justification: "changed how I think"}},
			want:     1,
		},
		{
			name:     "hallucinated title dropped",
			mentions: []RawMention{{Title: "The Left Hand of Darkness", Justification: "also great"}},
			want:     0,
		},
		{
			name:     "case insensitive match",
			mentions: []RawMention{{Title: "the dispossessed", Justification: "yes"}},
			want:     1,
		},
		{
			name:     "empty title dropped",
			mentions: []RawMention{{Title: "  ", Justification: "yes"}},
			want:     0,
		},
		{
			name: "short-word-only title kept",
			// Nothing longer than three letters to check against.
			mentions: []RawMention{{Title: "It", Justification: "scary"}},
			want:     1,
		},
		{
			name: "mixed batch",
			mentions: []RawMention{
				{Title: "The Dispossessed", Justification: "real"},
				{Title: "Invented Book Nobody Mentioned", Justification: "fake"},
			},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept := FilterAgainstSource(tt.mentions, comment)
			if len(kept) != tt.want {
				t.Errorf("FilterAgainstSource() kept %d, want %d", len(kept), tt.want)
			}
		})
	}
}

func TestFilterAgainstSourceBackfillsJustification(t *testing.T) {
	comment := "Dispossessed is the best thing Le Guin ever wrote."
	kept := FilterAgainstSource([]RawMention{{Title: "Dispossessed"}}, comment)
	if len(kept) != 1 {
		t.Fatalf("got %d mentions, want 1", len(kept))
	}
	if kept[0].Justification != comment {
		t.Errorf("Justification = %q, want comment excerpt", kept[0].Justification)
	}

	long := strings.Repeat("a very long comment ", 50)
	kept = FilterAgainstSource([]RawMention{{Title: "very long comment"}}, long)
	if len(kept) != 1 {
		t.Fatalf("got %d mentions, want 1", len(kept))
	}
	if len(kept[0].Justification) > 300 {
		t.Errorf("excerpt length = %d, want <= 300", len(kept[0].Justification))
	}
}

func TestExcerptKeepsRuneBoundaries(t *testing.T) {
	// Multi-byte runes must never be split mid-sequence, whatever byte the
	// cap lands on.
	text := strings.Repeat("é", 200)
	for max := 1; max <= 8; max++ {
		got := excerpt(text, max)
		if !utf8.ValidString(got) {
			t.Errorf("excerpt(%d) produced invalid UTF-8: %q", max, got)
		}
		if len(got) > max {
			t.Errorf("excerpt(%d) length = %d", max, len(got))
		}
	}

	// The 20-byte prefix puts the 300-byte cap between the two bytes of
	// an "é".
	kept := FilterAgainstSource([]RawMention{{Title: "Dispossessed"}},
		"Dispossessed rocks. "+strings.Repeat("café ", 80))
	if len(kept) != 1 {
		t.Fatalf("got %d mentions, want 1", len(kept))
	}
	if !utf8.ValidString(kept[0].Justification) {
		t.Errorf("backfilled justification is invalid UTF-8: %q", kept[0].Justification)
	}
}
