package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
)

// Extractor proposes book mentions from one comment's text. Output is
// unreliable; everything it returns goes through NormalizeCandidate.
type Extractor interface {
	Extract(ctx context.Context, commentText string) ([]RawMention, error)
}

const extractionSystemPrompt = `You extract book mentions from discussion comments. STRICT RULES:
- ONLY extract books that are EXPLICITLY mentioned by name in the text
- Do NOT invent or guess books - if unsure, skip it
- Do NOT include books from your training data that are not in the text
- If no books are clearly mentioned, return []
Return a JSON array: [{"title": "exact title from text", "author": "author if mentioned", "justification": "the sentence recommending it"}]`

// OpenAIExtractor calls a chat model and parses the JSON array it returns.
type OpenAIExtractor struct {
	client *openai.Client
	model  string
}

func NewOpenAIExtractor(apiKey, model string) *OpenAIExtractor {
	return &OpenAIExtractor{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (e *OpenAIExtractor) Extract(ctx context.Context, commentText string) ([]RawMention, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     e.model,
		MaxTokens: 1000,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: extractionSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Text: %s\n\nJSON:", commentText),
			},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call extraction model: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, nil
	}

	mentions := ParseMentions(resp.Choices[0].Message.Content)
	return FilterAgainstSource(mentions, commentText), nil
}

// ParseMentions pulls the JSON array (or single object) out of a model
// response. Non-JSON output yields no mentions rather than an error.
func ParseMentions(response string) []RawMention {
	response = strings.TrimSpace(response)

	if start := strings.Index(response, "["); start >= 0 {
		if end := strings.LastIndex(response, "]"); end > start {
			var mentions []RawMention
			if err := json.Unmarshal([]byte(response[start:end+1]), &mentions); err == nil {
				return mentions
			}
		}
	}

	if start := strings.Index(response, "{"); start >= 0 {
		if end := strings.LastIndex(response, "}"); end > start {
			var mention RawMention
			if err := json.Unmarshal([]byte(response[start:end+1]), &mention); err == nil {
				return []RawMention{mention}
			}
		}
	}

	return nil
}

// FilterAgainstSource drops mentions whose title shares no significant word
// with the comment text. Models hallucinate titles; a title that never
// appears in the source is not a mention of it. Missing justifications are
// backfilled with a comment excerpt.
func FilterAgainstSource(mentions []RawMention, commentText string) []RawMention {
	sourceLower := strings.ToLower(commentText)
	var kept []RawMention

	for _, mention := range mentions {
		title := strings.TrimSpace(mention.Title)
		if title == "" {
			continue
		}

		significant := false
		anyLong := false
		for _, word := range strings.Fields(strings.ToLower(title)) {
			if len(word) <= 3 {
				continue
			}
			anyLong = true
			if strings.Contains(sourceLower, word) {
				significant = true
				break
			}
		}
		// Titles made only of short words can't be checked this way.
		if anyLong && !significant {
			continue
		}

		if strings.TrimSpace(mention.Justification) == "" {
			mention.Justification = excerpt(commentText, 300)
		}
		kept = append(kept, mention)
	}

	return kept
}

// excerpt truncates on a rune boundary so a multi-byte character is never
// split into invalid UTF-8.
func excerpt(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
