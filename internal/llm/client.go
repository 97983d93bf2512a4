// Package llm holds the chat-completion clients used by the pipeline steps.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Client sends a prompt and returns the response text.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Providers understood by Factory.
const (
	ProviderGroq      = "groq"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

const (
	defaultTemperature = 0.3
	defaultMaxTokens   = 2048
	defaultGroqBaseURL = "https://api.groq.com/openai/v1"
)

// ErrNoAPIKey is returned when a hosted provider is selected without credentials.
var ErrNoAPIKey = errors.New("llm: api key not configured")

// FactoryConfig carries provider credentials and defaults.
type FactoryConfig struct {
	DefaultProvider string
	DefaultModel    string
	GroqAPIKey      string
	GroqBaseURL     string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	OllamaURL       string
	Timeout         time.Duration
}

// Factory resolves model names into Clients.
type Factory struct {
	cfg FactoryConfig
	// Observe, when set, is called after every completion.
	Observe func(provider, model string, took time.Duration, err error)
}

// NewFactory returns a Factory for cfg.
func NewFactory(cfg FactoryConfig) *Factory {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = ProviderGroq
	}
	if cfg.GroqBaseURL == "" {
		cfg.GroqBaseURL = defaultGroqBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Factory{cfg: cfg}
}

// ParseModel splits "provider:model". A bare model name uses defaultProvider.
func ParseModel(name, defaultProvider string) (provider, model string) {
	if p, m, ok := strings.Cut(name, ":"); ok {
		switch strings.ToLower(p) {
		case ProviderGroq, ProviderOpenAI, ProviderAnthropic, ProviderOllama:
			return strings.ToLower(p), m
		}
	}
	return defaultProvider, name
}

// Resolve returns a client for model, e.g. "gemma2-9b-it" or "anthropic:claude-haiku-4-5".
func (f *Factory) Resolve(ctx context.Context, model string) (Client, error) {
	if strings.TrimSpace(model) == "" {
		model = f.cfg.DefaultModel
	}
	provider, name := ParseModel(model, f.cfg.DefaultProvider)
	if name == "" {
		return nil, fmt.Errorf("llm: no model configured for provider %s", provider)
	}

	var (
		c   Client
		err error
	)
	switch provider {
	case ProviderGroq:
		if f.cfg.GroqAPIKey == "" {
			return nil, fmt.Errorf("groq: %w", ErrNoAPIKey)
		}
		c, err = NewOpenAICompatible(ctx, f.cfg.GroqAPIKey, f.cfg.GroqBaseURL, name, f.cfg.Timeout)
	case ProviderOpenAI:
		if f.cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai: %w", ErrNoAPIKey)
		}
		c, err = NewOpenAICompatible(ctx, f.cfg.OpenAIAPIKey, "", name, f.cfg.Timeout)
	case ProviderAnthropic:
		if f.cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic: %w", ErrNoAPIKey)
		}
		c = NewAnthropic(f.cfg.AnthropicAPIKey, name)
	case ProviderOllama:
		c = NewOllama(f.cfg.OllamaURL, name)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", provider)
	}
	if err != nil {
		return nil, err
	}
	if f.Observe != nil {
		c = observed{Client: c, provider: provider, model: name, fn: f.Observe}
	}
	return c, nil
}

type observed struct {
	Client
	provider, model string
	fn              func(provider, model string, took time.Duration, err error)
}

func (o observed) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	out, err := o.Client.Complete(ctx, systemPrompt, userPrompt)
	o.fn(o.provider, o.model, time.Since(start), err)
	return out, err
}
