package dedup

import "testing"

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "lowercases and collapses whitespace",
			input:    "  The  Dog   Stars ",
			expected: "dog stars",
		},
		{
			name:     "strips punctuation",
			input:    "Ender's Game!",
			expected: "ender s game",
		},
		{
			name:     "folds diacritics",
			input:    "Café Crème",
			expected: "cafe creme",
		},
		{
			name:     "drops leading article",
			input:    "A Wizard of Earthsea",
			expected: "wizard of earthsea",
		},
		{
			name:     "drops article anywhere",
			input:    "Wizard of Earthsea, The",
			expected: "wizard of earthsea",
		},
		{
			name:     "keeps digits",
			input:    "Fahrenheit 451",
			expected: "fahrenheit 451",
		},
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
		{
			name:     "only articles",
			input:    "The A An",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.input); got != tt.expected {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestKey(t *testing.T) {
	if Key("The Dog Stars", "Peter Heller") != Key("the dog stars ", "PETER HELLER") {
		t.Error("expected identical keys for normalized-equal title and author")
	}
	if Key("The Dog Stars", "Peter Heller") == Key("Dog Star", "Peter Heller") {
		t.Error("expected different keys for different titles")
	}
	if Key("Dune", "") == Key("Dune", "Frank Herbert") {
		t.Error("expected author to participate in the key")
	}
	if got, want := Key("The Dog Stars", "Peter Heller"), "dog stars|peter heller"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestSortedTokens(t *testing.T) {
	if sortedTokens("Dog Stars") != sortedTokens("Stars, Dog") {
		t.Error("expected token order not to matter")
	}
	if got, want := sortedTokens("The Left Hand of Darkness"), "darkness hand left of"; got != want {
		t.Errorf("sortedTokens() = %q, want %q", got, want)
	}
}
