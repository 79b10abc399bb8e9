package llm

import "context"

// endpoint holds the defaults of a known OpenAI-compatible service.
type endpoint struct {
	baseURL string
	prefix  string
	model   string
	keyed   bool // rejects anonymous calls
}

var endpoints = map[string]endpoint{
	"custom":     {prefix: "/v1"},
	"lmstudio":   {baseURL: "http://localhost:1234", prefix: "/v1"},
	"openai":     {baseURL: "https://api.openai.com", prefix: "/v1", model: "gpt-4o", keyed: true},
	"groq":       {baseURL: "https://api.groq.com/openai", prefix: "/v1", model: "llama-3.3-70b-versatile", keyed: true},
	"openrouter": {baseURL: "https://openrouter.ai/api", prefix: "/v1", keyed: true},
	"xai":        {baseURL: "https://api.x.ai", prefix: "/v1", keyed: true},
	// No /v1 segment on Gemini's compatibility surface.
	"gemini": {baseURL: "https://generativelanguage.googleapis.com/v1beta/openai", keyed: true},
}

// compat is a Provider for any OpenAI-compatible endpoint.
type compat struct {
	c *client
}

func newCompat(name string, cfg Config) *compat {
	ep := endpoints[name]
	if cfg.BaseURL == "" {
		cfg.BaseURL = ep.baseURL
	}
	if cfg.Model == "" {
		cfg.Model = ep.model
	}
	c := newClient(cfg, ep.prefix)
	c.requireKey = ep.keyed
	return &compat{c: c}
}

func (p *compat) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.c.chat(ctx, req)
}

func (p *compat) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.c.embed(ctx, texts)
}

func (p *compat) config() Config { return p.c.cfg }

// NewOpenAICompat creates a provider for an arbitrary OpenAI-compatible
// server at cfg.BaseURL.
func NewOpenAICompat(cfg Config) Provider { return newCompat("custom", cfg) }

// NewOpenAI creates a provider for OpenAI. Chat defaults to gpt-4o; set
// the model to text-embedding-3-small (1536 dim) for embeddings.
func NewOpenAI(cfg Config) Provider { return newCompat("openai", cfg) }
