package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/brunobiangulo/clausegraph/failure"
)

// APIError is a non-2xx response from a provider endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm: status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus exposes the status code to failure classification.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// retryPolicy bounds how often a request is re-sent after a transport error
// or a 429/502/503/504 response.
type retryPolicy struct {
	attempts  int           // retries after the first try
	base      time.Duration // doubled on every retry
	rateFloor time.Duration // minimum wait after a 429, doubled per attempt
}

var defaultRetry = retryPolicy{attempts: 3, base: 2 * time.Second, rateFloor: 5 * time.Second}

func retryable(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// delay returns the wait before retry number n (1-based). A Retry-After
// header on a 429 is honoured when it asks for longer.
func (p retryPolicy) delay(n int, last *http.Response) time.Duration {
	d := p.base << (n - 1)
	if last == nil || last.StatusCode != http.StatusTooManyRequests {
		return d
	}
	if floor := p.rateFloor << (n - 1); floor > d {
		d = floor
	}
	if secs, err := strconv.Atoi(last.Header.Get("Retry-After")); err == nil {
		if hd := time.Duration(secs) * time.Second; hd > d {
			d = hd
		}
	}
	return d
}

// client speaks the OpenAI chat-completions and embeddings wire format.
type client struct {
	cfg        Config
	http       *http.Client
	prefix     string // path prefix, "/v1" for most endpoints
	requireKey bool
	retry      retryPolicy
}

func newClient(cfg Config, prefix string) *client {
	return &client{
		cfg:    cfg,
		prefix: prefix,
		// Local runtimes load the model on the first request.
		http:  &http.Client{Timeout: 120 * time.Second},
		retry: defaultRetry,
	}
}

type completionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

func (c *client) chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body := completionRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if body.Model == "" {
		body.Model = c.cfg.Model
	}
	if req.ResponseFormat != "" {
		body.ResponseFormat = &responseFormat{Type: req.ResponseFormat}
	}

	var resp completionResponse
	if err := c.post(ctx, c.prefix+"/chat/completions", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("llm: completion has no choices")
	}
	choice := resp.Choices[0]
	return &ChatResponse{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: choice.FinishReason,
		Usage:        resp.Usage,
	}, nil
}

func (c *client) embed(ctx context.Context, texts []string) ([][]float32, error) {
	var resp struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	req := map[string]any{"model": c.cfg.Model, "input": texts}
	if err := c.post(ctx, c.prefix+"/embeddings", req, &resp); err != nil {
		return nil, err
	}

	// Entries may arrive out of order.
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}

// post sends body as JSON to BaseURL+path and decodes a 200 response into
// out, retrying per c.retry.
func (c *client) post(ctx context.Context, path string, body, out any) error {
	if c.requireKey && c.cfg.APIKey == "" {
		return fmt.Errorf("llm: no api key for %s: %w", c.cfg.BaseURL, failure.ErrUnconfigured)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := c.cfg.BaseURL + path

	var (
		lastErr  error
		lastResp *http.Response
	)
	for attempt := 0; attempt <= c.retry.attempts; attempt++ {
		if attempt > 0 {
			d := c.retry.delay(attempt, lastResp)
			slog.Warn("llm: retrying request", "url", url, "attempt", attempt, "delay", d, "error", lastErr)
			if err := sleep(ctx, d); err != nil {
				return err
			}
		}

		data, resp, err := c.send(ctx, url, payload)
		lastResp = resp
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			lastErr = err
			continue
		case resp.StatusCode == http.StatusOK:
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("llm: decoding %s response: %w", path, err)
			}
			return nil
		}

		lastErr = &APIError{StatusCode: resp.StatusCode, Body: string(data)}
		if !retryable(resp.StatusCode) {
			return lastErr
		}
	}
	return fmt.Errorf("llm: giving up after %d attempts: %w", c.retry.attempts+1, lastErr)
}

func (c *client) send(ctx context.Context, url string, payload []byte) ([]byte, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("llm: %s: %w: %w", url, err, failure.ErrUnavailable)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp, fmt.Errorf("llm: reading %s: %w: %w", url, err, failure.ErrUnavailable)
	}
	return data, resp, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
