// Package llmtest provides scripted llm.Provider fakes for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/brunobiangulo/clausegraph/llm"
)

// Chat replays Responses in order and records every request. When Err is
// set every call fails with it.
type Chat struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Requests  []llm.ChatRequest
}

func (c *Chat) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Requests = append(c.Requests, req)
	if c.Err != nil {
		return nil, c.Err
	}
	if len(c.Responses) == 0 {
		return nil, fmt.Errorf("llmtest: no scripted response for call %d", len(c.Requests))
	}
	content := c.Responses[0]
	c.Responses = c.Responses[1:]
	return &llm.ChatResponse{Content: content, Model: "scripted", Usage: llm.Usage{TotalTokens: len(content) / 4}}, nil
}

// Embed returns a fixed vector per text, or Err.
type Embed struct {
	Vector []float32
	Err    error
	Calls  int
}

func (e *Embed) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.Calls++
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = append([]float32(nil), e.Vector...)
	}
	return out, nil
}
