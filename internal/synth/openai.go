package synth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const systemMessage = `You are an expert assistant for a university community with deep knowledge of campus life, academics, and student resources.

Your responses should be:
- Comprehensive and detailed (aim for 200-400 words)
- Well-structured with clear sections when appropriate
- Specific and actionable when possible
- Professional yet conversational in tone

Always cite specific information from the provided context and acknowledge when information might be limited or outdated.`

// OpenAISynthesizer calls the chat-completions endpoint. Every failure
// maps onto ErrUnavailable so the query path can degrade uniformly.
type OpenAISynthesizer struct {
	client    *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

func NewOpenAISynthesizer(apiKey, model string, maxTokens int, timeout time.Duration) (*OpenAISynthesizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAISynthesizer{
		client:    openai.NewClient(apiKey),
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
	}, nil
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, question, contextText string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prompt := fmt.Sprintf(`Based on the following context, provide a detailed answer to the user's question.

Context:
%s

Question: %s

Answer:`, contextText, question)

	resp, err := s.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   s.maxTokens,
		Temperature: 0.3,
	})
	if err != nil {
		slog.WarnContext(ctx, "answer synthesis failed", "error", err)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrUnavailable)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
