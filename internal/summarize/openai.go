package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/meetscribe/ingest-service/internal/observability"
)

// OpenAISummarizer generates markdown summaries through the chat
// completions API.
type OpenAISummarizer struct {
	client *openai.Client
	model  string
}

// NewOpenAISummarizer creates a chat-completion-backed summarizer.
func NewOpenAISummarizer(apiKey, model string) *OpenAISummarizer {
	return &OpenAISummarizer{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Summarize sends the transcript with the session's configuration and
// returns the generated markdown.
func (s *OpenAISummarizer) Summarize(ctx context.Context, transcript string, cfg Config) (string, error) {
	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: 0.3,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildSystemPrompt(cfg)},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Full meeting transcript:\n%s", transcript)},
		},
	})
	observability.RecordSummary(start, err)
	if err != nil {
		return "", fmt.Errorf("summary generation: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summary generation: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
