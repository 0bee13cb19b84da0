// Package llm wraps the chat-completion service used to generate
// interview questions and feedback.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/mockview/mockview/internal/config"
)

// ErrNoJSON means the model reply contained no JSON object.
var ErrNoJSON = errors.New("no JSON object in model response")

// Question is one generated interview question.
type Question struct {
	Question       string `json:"question"`
	ExpectedAnswer string `json:"expectedAnswer"`
}

type questionSet struct {
	Questions []Question `json:"questions"`
}

// Client talks to the chat-completion API with a fixed retry schedule.
type Client struct {
	api    *openai.Client
	model  string
	logger zerolog.Logger

	maxAttempts int
	backoffs    []time.Duration
	sleep       func(context.Context, time.Duration)
}

// NewClient builds a client from config. The API key falls back to
// the OPENAI_API_KEY environment variable.
func NewClient(cfg config.LLMConfig, logger zerolog.Logger) *Client {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	apiCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}

	return &Client{
		api:         openai.NewClientWithConfig(apiCfg),
		model:       model,
		logger:      logger.With().Str("component", "llm").Logger(),
		maxAttempts: attempts,
		backoffs:    []time.Duration{300 * time.Millisecond, 800 * time.Millisecond},
		sleep:       sleepCtx,
	}
}

// Generate runs one prompt to completion, retrying transient failures
// on the standard schedule.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			idx := attempt - 1
			if idx >= len(c.backoffs) {
				idx = len(c.backoffs) - 1
			}
			c.sleep(ctx, c.backoffs[idx])
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err == nil && len(resp.Choices) > 0 {
			return resp.Choices[0].Message.Content, nil
		}
		if err == nil {
			err = errors.New("empty completion")
		}
		lastErr = err
		c.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Generation attempt failed")
	}
	return "", fmt.Errorf("text generation failed: %w", lastErr)
}

// GenerateStream runs one prompt and forwards content deltas to
// onChunk as they arrive. Streaming is not retried; a broken stream
// surfaces as an error with whatever chunks already delivered.
func (c *Client) GenerateStream(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Stream: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to open completion stream: %w", err)
	}
	defer stream.Close()

	var b strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), fmt.Errorf("completion stream failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		chunk := resp.Choices[0].Delta.Content
		if chunk == "" {
			continue
		}
		b.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	}
}

// GenerateQuestions asks for a question set and parses the JSON block
// out of the reply.
func (c *Client) GenerateQuestions(ctx context.Context, role string, count int) ([]Question, error) {
	raw, err := c.Generate(ctx, QuestionsPrompt(role, count))
	if err != nil {
		return nil, err
	}

	block, err := extractJSONBlock(raw)
	if err != nil {
		return nil, err
	}

	var set questionSet
	if err := json.Unmarshal([]byte(block), &set); err != nil {
		return nil, fmt.Errorf("failed to parse question set: %w", err)
	}
	if len(set.Questions) == 0 {
		return nil, errors.New("model returned no questions")
	}
	return set.Questions, nil
}

// extractJSONBlock returns the substring from the first '{' to the
// last '}' in s. Models routinely wrap JSON in prose or code fences.
func extractJSONBlock(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", ErrNoJSON
	}
	return s[start : end+1], nil
}

func sleepCtx(ctx context.Context, dur time.Duration) {
	if dur <= 0 {
		return
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
