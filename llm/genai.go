package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/brunobiangulo/clausegraph/failure"
)

// genaiProvider implements Provider on the native Gemini SDK. System
// messages become the system instruction; assistant turns map to the
// model role.
type genaiProvider struct {
	client *genai.Client
	model  string
}

// NewGenAI creates a provider backed by google.golang.org/genai. With no
// API key the SDK falls back to GOOGLE_API_KEY / GEMINI_API_KEY.
func NewGenAI(ctx context.Context, cfg Config) (Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w: %w", err, failure.ErrUnconfigured)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &genaiProvider{client: client, model: model}, nil
}

func (p *genaiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.ResponseFormat == "json_object" {
		cfg.ResponseMIMEType = "application/json"
	}

	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			cfg.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, wrapGenAIError(err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	out := &ChatResponse{
		Content:      resp.Text(),
		Model:        model,
		FinishReason: string(resp.Candidates[0].FinishReason),
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.PromptTokens = int(u.PromptTokenCount)
		out.CompletionTokens = int(u.CandidatesTokenCount)
		out.TotalTokens = int(u.TotalTokenCount)
	}
	return out, nil
}

func (p *genaiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	resp, err := p.client.Models.EmbedContent(ctx, p.model, contents, nil)
	if err != nil {
		return nil, wrapGenAIError(err)
	}
	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if i < len(out) && e != nil {
			out[i] = e.Values
		}
	}
	return out, nil
}

// wrapGenAIError carries the SDK status code into an *APIError so
// failure classification treats both transports alike.
func wrapGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("genai: %w", &APIError{StatusCode: apiErr.Code, Body: apiErr.Message})
	}
	return fmt.Errorf("genai: %w", err)
}
