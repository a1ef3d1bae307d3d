package backend

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/easeaico/rolechat/internal/prompt"
	"github.com/easeaico/rolechat/internal/reply"
	"github.com/easeaico/rolechat/internal/types"
	"github.com/easeaico/rolechat/internal/utils"
)

// LLMFactory builds a model for a provider and API key.
type LLMFactory interface {
	New(ctx context.Context, provider, apiKey string) (model.LLM, error)
}

// ChatConfig configures a ChatBackend.
type ChatConfig struct {
	Provider        string
	Window          int
	Temperature     float32
	MaxOutputTokens int32
	Timeout         time.Duration
	Logger          *slog.Logger
}

// ChatBackend sends a system instruction plus role-tagged messages to a
// chat-style provider (OpenAI compatible endpoints or Claude).
type ChatBackend struct {
	factory LLMFactory
	cfg     ChatConfig
	logger  *slog.Logger
}

// NewChatBackend returns a ChatBackend for cfg.Provider.
func NewChatBackend(factory LLMFactory, cfg ChatConfig) *ChatBackend {
	if cfg.Window <= 0 {
		cfg.Window = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatBackend{factory: factory, cfg: cfg, logger: logger}
}

// OpenAIConfig mirrors the settings used for OpenAI-compatible providers.
func OpenAIConfig(provider string, timeout time.Duration) ChatConfig {
	return ChatConfig{Provider: provider, Window: 10, Temperature: 0.9, Timeout: timeout}
}

// ClaudeConfig mirrors the settings used for the Anthropic Messages API.
func ClaudeConfig(timeout time.Duration) ChatConfig {
	return ChatConfig{Provider: "claude", Window: 10, Temperature: 0.7, MaxOutputTokens: 1000, Timeout: timeout}
}

func (b *ChatBackend) Name() string {
	return b.cfg.Provider
}

func (b *ChatBackend) Generate(ctx context.Context, req Request) (text string, err error) {
	defer guard(b.Name(), b.logger, &err)

	if strings.TrimSpace(req.APIKey) == "" {
		return "", &GenerationError{Class: ClassInvalidRequest, Provider: b.Name(), Detail: "API key is required"}
	}
	llmReq, err := b.buildRequest(req)
	if err != nil {
		return "", &GenerationError{Class: ClassInvalidRequest, Provider: b.Name(), Detail: err.Error(), Err: err}
	}

	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	llm, err := b.factory.New(ctx, b.cfg.Provider, req.APIKey)
	if err != nil {
		return "", &GenerationError{Class: ClassInvalidRequest, Provider: b.Name(), Detail: err.Error(), Err: err}
	}

	var resp *model.LLMResponse
	var callErr error
	for r, e := range llm.GenerateContent(ctx, llmReq, false) {
		resp, callErr = r, e
		break
	}
	if callErr != nil {
		return "", classify(b.Name(), callErr)
	}
	if resp == nil || resp.Content == nil {
		return "", &GenerationError{Class: ClassMalformedResponse, Provider: b.Name(), Detail: "empty response"}
	}
	raw := strings.TrimSpace(utils.ExtractContentText(resp.Content))
	if raw == "" {
		return "", &GenerationError{Class: ClassMalformedResponse, Provider: b.Name(), Detail: "empty reply text"}
	}
	return reply.Format(raw, req.Character), nil
}

func (b *ChatBackend) buildRequest(req Request) (*model.LLMRequest, error) {
	system, err := prompt.BuildSystemPrompt(req.Character, req.MemoryText)
	if err != nil {
		return nil, err
	}

	history := prompt.Window(req.History, b.cfg.Window, req.UserMessage)
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		role := "user"
		if turn.Role == types.RoleAssistant {
			role = "model"
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, genai.Role(role)))
	}
	contents = append(contents, genai.NewContentFromText(req.UserMessage, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, "system"),
		Temperature:       genai.Ptr(b.cfg.Temperature),
	}
	if b.cfg.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = b.cfg.MaxOutputTokens
	}
	return &model.LLMRequest{Contents: contents, Config: cfg}, nil
}
