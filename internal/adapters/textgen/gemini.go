package textgen

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"go.trai.ch/parablock/internal/core/domain"
	"go.trai.ch/parablock/internal/core/ports"
)

var _ ports.TextGenerator = (*Gemini)(nil)

// Gemini generates text with the Gemini API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGemini creates a Gemini generator. cfg.BaseURL overrides the API endpoint.
func NewGemini(ctx context.Context, cfg domain.GeneratorConfig, apiKey string) (*Gemini, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, serviceError(err, domain.ProviderGemini)
	}
	return &Gemini{client: client, model: cfg.Model, temperature: cfg.Temperature}, nil
}

// Generate sends the prompt and returns the response text.
func (g *Gemini) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}
	if prompt.System != "" {
		config.SystemInstruction = genai.NewContentFromText(prompt.System, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt.User, genai.RoleUser)}, config)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", statusError(err, domain.ProviderGemini, apiErr.Code)
		}
		return "", serviceError(err, domain.ProviderGemini)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", serviceError(domain.ErrEmptyResponse, domain.ProviderGemini)
	}
	return text, nil
}
