package models

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// Provider ids.
const (
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
	ProviderClaude     = "claude"
	ProviderGrok       = "grok"
	ProviderOpenRouter = "openrouter"
)

// DefaultModelNames maps each provider to the model used when none is configured.
var DefaultModelNames = map[string]string{
	ProviderGemini:     "gemini-2.0-flash",
	ProviderOpenAI:     "gpt-3.5-turbo",
	ProviderClaude:     "claude-3-sonnet-20240229",
	ProviderGrok:       "grok-4-fast",
	ProviderOpenRouter: "meta-llama/llama-3.1-8b-instruct",
}

// Constructor builds a model.LLM for one API key.
type Constructor func(ctx context.Context, modelName string, cfg *genai.ClientConfig) (model.LLM, error)

// Factory builds per-request models, since every request carries its own key.
type Factory struct {
	constructors map[string]Constructor
	modelNames   map[string]string
	baseURLs     map[string]string
	httpClient   *http.Client
}

// NewFactory returns a Factory for all known providers. Entries in
// modelNames override DefaultModelNames.
func NewFactory(modelNames map[string]string) *Factory {
	f := &Factory{
		constructors: map[string]Constructor{
			ProviderGemini:     NewGeminiModel,
			ProviderOpenAI:     NewOpenAIModel,
			ProviderClaude:     NewClaudeModel,
			ProviderGrok:       NewGrokModel,
			ProviderOpenRouter: NewOpenRouterModel,
		},
		modelNames: make(map[string]string, len(DefaultModelNames)),
		baseURLs:   make(map[string]string),
	}
	for p, name := range DefaultModelNames {
		f.modelNames[p] = name
	}
	for p, name := range modelNames {
		if name != "" {
			f.modelNames[strings.ToLower(p)] = name
		}
	}
	return f
}

// SetBaseURL points a provider at a different endpoint.
func (f *Factory) SetBaseURL(provider, baseURL string) {
	f.baseURLs[strings.ToLower(provider)] = baseURL
}

// SetHTTPClient sets the client used by providers that accept one.
func (f *Factory) SetHTTPClient(c *http.Client) {
	f.httpClient = c
}

// Register adds or replaces a provider constructor.
func (f *Factory) Register(provider, modelName string, c Constructor) {
	provider = strings.ToLower(provider)
	f.constructors[provider] = c
	if modelName != "" {
		f.modelNames[provider] = modelName
	}
}

// ModelName returns the model configured for provider.
func (f *Factory) ModelName(provider string) string {
	return f.modelNames[strings.ToLower(provider)]
}

// Supports reports whether provider has a constructor.
func (f *Factory) Supports(provider string) bool {
	_, ok := f.constructors[strings.ToLower(provider)]
	return ok
}

// New builds the provider's model authenticated with apiKey.
func (f *Factory) New(ctx context.Context, provider, apiKey string) (model.LLM, error) {
	provider = strings.ToLower(provider)
	build, ok := f.constructors[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		HTTPClient: f.httpClient,
	}
	if base := f.baseURLs[provider]; base != "" {
		cfg.HTTPOptions.BaseURL = base
	}
	llm, err := build(ctx, f.modelNames[provider], cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s model: %w", provider, err)
	}
	return llm, nil
}
