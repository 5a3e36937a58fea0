// Package rank implements the LLM Ranker (spec.md §4.F): builds the
// pipe-delimited scoring prompt, issues one chat-completion request per
// batch under a hard timeout, and parses the model's response into a
// per-candidate score matrix.
package rank

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/pkoukk/tiktoken-go"
)

// ErrTimeout is surfaced when a rank request exceeds its deadline
// (spec.md §4.F: "a second failure propagates as rank_timeout").
var ErrTimeout = errors.New("rank_timeout")

const (
	defaultTimeout   = 18 * time.Second
	maxOutputTokens  = 800
	encodingForModel = "cl100k_base"
)

// Client wraps a single OpenAI-compatible chat model for ranking. It
// never streams and never uses tool-calling — spec.md §9 explicitly
// collapses the source's dual UI/batch ranker code paths into one
// library surface with a single request/response shape.
type Client struct {
	oa      openai.Client
	model   string
	Timeout time.Duration
}

// NewClient builds a ranker client against model (e.g. "gpt-4o-mini")
// using apiKey.
func NewClient(apiKey, model string) *Client {
	return &Client{
		oa:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		Timeout: defaultTimeout,
	}
}

// Rank issues one chat-completion request for prompt and returns the
// model's raw text response.
func (c *Client) Rank(ctx context.Context, prompt Prompt) (string, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.oa.Chat.Completions.New(reqCtx, openai.ChatCompletionNewParams{
		Model:     c.model,
		MaxTokens: openai.Int(maxOutputTokens),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.System),
			openai.UserMessage(prompt.User),
		},
	})
	if err != nil {
		if reqCtx.Err() != nil {
			return "", ErrTimeout
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("rank: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// EstimateTokens returns an approximate token count for text using the
// same encoding family the ranker's target models use, so the caller can
// log a budget warning before a prompt risks truncation.
func EstimateTokens(text string) (int, error) {
	enc, err := tiktoken.GetEncoding(encodingForModel)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}
