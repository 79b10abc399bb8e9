package llm

import (
	"context"
	"fmt"
)

// ollama chats over the OpenAI-compatible surface but embeds through the
// native /api/embed endpoint, which batches inputs.
type ollama struct {
	*compat
}

// NewOllama creates a provider for a local Ollama daemon.
func NewOllama(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	return &ollama{compat: &compat{c: newClient(cfg, "/v1")}}
}

func (p *ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var resp struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	req := map[string]any{"model": p.c.cfg.Model, "input": texts}
	if err := p.c.post(ctx, "/api/embed", req, &resp); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		v := make([]float32, len(emb))
		for j, x := range emb {
			v[j] = float32(x)
		}
		out[i] = v
	}
	return out, nil
}
