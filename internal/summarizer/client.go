package summarizer

import (
	"context"
	"fmt"
	"time"

	"notez-go/internal/logger"
)

// NoSummary is returned when the model answers with empty content.
const NoSummary = "No summary available"

const userPromptTemplate = "Here is a meeting transcript:\n\n%s\n\nPlease provide a concise summary and a list of action items."

// Request is one summarization call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
}

// Backend sends a Request to a text-generation provider and returns the raw content.
type Backend interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type Options struct {
	SystemPrompt string
	Temperature  float64
	Timeout      time.Duration
}

type Client struct {
	backend Backend
	opts    Options
	log     *logger.Logger
}

func NewClient(backend Backend, opts Options, log *logger.Logger) *Client {
	return &Client{backend: backend, opts: opts, log: log.WithComponent("summarizer")}
}

// Summarize produces a summary with action items. Empty model output is not
// an error; it yields NoSummary.
func (c *Client) Summarize(ctx context.Context, transcript string) (string, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	content, err := c.backend.Complete(ctx, Request{
		SystemPrompt: c.opts.SystemPrompt,
		UserPrompt:   fmt.Sprintf(userPromptTemplate, transcript),
		Temperature:  c.opts.Temperature,
	})
	if err != nil {
		return "", err
	}
	if content == "" {
		c.log.Warn("model returned empty content")
		return NoSummary, nil
	}
	return content, nil
}
