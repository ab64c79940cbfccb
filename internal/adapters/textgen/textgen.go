// Package textgen adapts text-generation services to ports.TextGenerator.
package textgen

import (
	"context"
	"net/http"
	"os"

	"github.com/cenkalti/backoff/v4"
	"go.trai.ch/zerr"

	"go.trai.ch/parablock/internal/core/domain"
	"go.trai.ch/parablock/internal/core/ports"
)

// New builds the generator selected by cfg.Provider. The API key is read from the
// environment variable named by cfg.APIKeyEnv through getenv, or os.Getenv when nil.
func New(ctx context.Context, cfg domain.GeneratorConfig, getenv func(string) string) (ports.TextGenerator, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	apiKey := ""
	if cfg.APIKeyEnv != "" {
		apiKey = getenv(cfg.APIKeyEnv)
	}

	switch cfg.Provider {
	case domain.ProviderGemini:
		if apiKey == "" {
			return nil, zerr.With(zerr.Wrap(domain.ErrMissingAPIKey, "cannot create text generator"), "env", cfg.APIKeyEnv)
		}
		return NewGemini(ctx, cfg, apiKey)
	case domain.ProviderOpenAI:
		// Local OpenAI-compatible servers often run without a key.
		if apiKey == "" && cfg.BaseURL == "" {
			return nil, zerr.With(zerr.Wrap(domain.ErrMissingAPIKey, "cannot create text generator"), "env", cfg.APIKeyEnv)
		}
		return NewOpenAI(cfg, apiKey), nil
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrUnknownProvider, "cannot create text generator"), "provider", cfg.Provider)
	}
}

// serviceError classifies err as ErrServiceUnavailable, keeping its text as the message.
func serviceError(err error, provider string) error {
	return zerr.With(zerr.Wrap(domain.ErrServiceUnavailable, err.Error()), "provider", provider)
}

// statusError classifies a failed response. Client errors other than timeouts and rate limits
// fail the same way on every retry, so they are marked permanent.
func statusError(err error, provider string, status int) error {
	err = zerr.With(serviceError(err, provider), "status", status)
	if retryable(status) {
		return err
	}
	return backoff.Permanent(err)
}

func retryable(status int) bool {
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return true
	case status >= 400 && status < 500:
		return false
	default:
		return true
	}
}
