package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.trai.ch/zerr"

	"go.trai.ch/parablock/internal/core/domain"
	"go.trai.ch/parablock/internal/core/ports"
)

var _ ports.TextGenerator = (*OpenAI)(nil)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	openAIRequestTimeout = 2 * time.Minute
	maxErrorBody         = 4 << 10
)

// OpenAI generates text with an OpenAI-compatible chat-completions endpoint.
type OpenAI struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float32
}

// NewOpenAI creates an OpenAI-compatible generator.
func NewOpenAI(cfg domain.GeneratorConfig, apiKey string) *OpenAI {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAI{
		client:      &http.Client{Timeout: openAIRequestTimeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate sends the prompt and returns the first choice's content.
func (o *OpenAI) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	req := chatRequest{Model: o.model, Temperature: o.temperature}
	if prompt.System != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: prompt.System})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: prompt.User})

	body, err := json.Marshal(req)
	if err != nil {
		return "", zerr.Wrap(err, "failed to encode chat request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", serviceError(err, domain.ProviderOpenAI)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", serviceError(err, domain.ProviderOpenAI)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := fmt.Errorf("chat completions returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
		return "", statusError(err, domain.ProviderOpenAI, resp.StatusCode)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", serviceError(err, domain.ProviderOpenAI)
	}
	if decoded.Error != nil {
		return "", serviceError(fmt.Errorf("chat completions error: %s", decoded.Error.Message), domain.ProviderOpenAI)
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return "", serviceError(domain.ErrEmptyResponse, domain.ProviderOpenAI)
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}
