package llm

import (
	"context"
	"fmt"
)

// Chatter sends chat completion requests. Query generation and result
// analysis only need this half of a Provider.
type Chatter interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Embedder generates embeddings for a batch of texts.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Provider chats and embeds.
type Provider interface {
	Chatter
	Embedder
}

// ChatRequest asks for one completion. An empty Model uses the
// provider's configured model.
type ChatRequest struct {
	Model          string
	Messages       []Message
	Temperature    float64
	MaxTokens      int
	ResponseFormat string // "json_object" or empty
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System returns a system-role message.
func System(content string) Message { return Message{Role: "system", Content: content} }

// User returns a user-role message.
func User(content string) Message { return Message{Role: "user", Content: content} }

// Usage counts tokens as reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse carries the first choice.
type ChatResponse struct {
	Content      string
	Model        string
	FinishReason string
	Usage
}

// Config configures an LLM provider.
type Config struct {
	Provider string `json:"provider"` // a key of endpoints, "ollama" or "genai"
	Model    string `json:"model"`
	BaseURL  string `json:"base_url"`
	APIKey   string `json:"api_key"`
}

// NewProvider creates the provider named by cfg.Provider. Endpoint
// defaults fill an empty BaseURL and Model.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	case "genai":
		return NewGenAI(ctx, cfg)
	case "ollama":
		return NewOllama(cfg), nil
	}
	if _, ok := endpoints[cfg.Provider]; !ok {
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	return newCompat(cfg.Provider, cfg), nil
}
