// Package llm synthesizes digest prose from the selected items using an
// OpenAI-compatible API.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/umputun/digestscope/pkg/config"
	"github.com/umputun/digestscope/pkg/domain"
)

// Synthesizer turns a scored shortlist into digest prose
type Synthesizer struct {
	client    *openai.Client
	config    config.LLMConfig
	systemMsg string
}

// NewSynthesizer creates a new digest synthesizer
func NewSynthesizer(cfg config.LLMConfig) *Synthesizer {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}

	// use custom system prompt if provided, otherwise use default
	systemMsg := cfg.SystemPrompt
	if systemMsg == "" {
		systemMsg = defaultSystemPrompt
	}

	return &Synthesizer{
		client:    openai.NewClientWithConfig(clientConfig),
		config:    cfg,
		systemMsg: systemMsg,
	}
}

// default system prompt for digest synthesis
const defaultSystemPrompt = `You are an editor assembling a concise daily digest of AI and ML developments.
You receive a ranked list of items with titles, sources, scores and summaries.

Write the digest in markdown:
- Group related items under short thematic headings.
- For each item write 1-3 sentences capturing what happened and why it matters. Write directly about the content itself, never "the article discusses" or similar framing.
- Keep every item's link as a markdown link on its title.
- Preserve the given order within each theme, higher ranked items come first.
- Do not invent items, numbers or claims not present in the input.`

// Synthesize produces digest prose for the given shortlist. Items arrive
// ordered by rank, the output keeps their links intact.
func (s *Synthesizer) Synthesize(ctx context.Context, items []domain.ScoredItem) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("no items to synthesize")
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.config.Model,
		Temperature: float32(s.config.Temperature),
		MaxTokens:   s.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: s.systemMsg},
			{Role: openai.ChatMessageRoleUser, Content: s.buildPrompt(items)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty response from LLM")
	}
	return content, nil
}

// buildPrompt formats the shortlist for the model
func (s *Synthesizer) buildPrompt(items []domain.ScoredItem) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Today's shortlist, %d items in rank order:\n\n", len(items)))

	for i, it := range items {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, it.Item.Title))
		sb.WriteString(fmt.Sprintf("   url: %s\n", it.Item.URL))
		sb.WriteString(fmt.Sprintf("   source: %s", it.Item.Source))
		if it.Item.Category != "" {
			sb.WriteString(fmt.Sprintf(", category: %s", it.Item.Category))
		}
		sb.WriteString(fmt.Sprintf(", score: %.2f\n", it.Score))

		summary := it.Item.Snippet
		if summary == "" {
			summary = truncate(it.Item.Content, 400)
		}
		if summary != "" {
			sb.WriteString(fmt.Sprintf("   summary: %s\n", summary))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
