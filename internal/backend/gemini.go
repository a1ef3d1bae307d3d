package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/easeaico/rolechat/internal/prompt"
	"github.com/easeaico/rolechat/internal/reply"
	"github.com/easeaico/rolechat/internal/utils"
)

const geminiHistoryWindow = 15

// GeminiModels is the subset of *genai.Models the adapter calls.
type GeminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClientFunc opens a client for one API key.
type GeminiClientFunc func(ctx context.Context, apiKey string) (GeminiModels, error)

// GeminiConfig configures GeminiBackend.
type GeminiConfig struct {
	Model      string
	Timeout    time.Duration
	BaseURL    string
	HTTPClient *http.Client
	// NewClient overrides client construction, mainly for tests.
	NewClient GeminiClientFunc
	Logger    *slog.Logger
}

// GeminiBackend sends a single text prompt to the Gemini API.
type GeminiBackend struct {
	model     string
	timeout   time.Duration
	newClient GeminiClientFunc
	logger    *slog.Logger
}

// NewGeminiBackend returns a GeminiBackend.
func NewGeminiBackend(cfg GeminiConfig) *GeminiBackend {
	b := &GeminiBackend{
		model:     cfg.Model,
		timeout:   cfg.Timeout,
		newClient: cfg.NewClient,
		logger:    cfg.Logger,
	}
	if b.model == "" {
		b.model = "gemini-2.0-flash"
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.newClient == nil {
		b.newClient = func(ctx context.Context, apiKey string) (GeminiModels, error) {
			clientCfg := &genai.ClientConfig{
				APIKey:     apiKey,
				Backend:    genai.BackendGeminiAPI,
				HTTPClient: cfg.HTTPClient,
			}
			clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
			client, err := genai.NewClient(ctx, clientCfg)
			if err != nil {
				return nil, err
			}
			return client.Models, nil
		}
	}
	return b
}

func (b *GeminiBackend) Name() string {
	return "gemini"
}

func (b *GeminiBackend) Generate(ctx context.Context, req Request) (text string, err error) {
	defer guard(b.Name(), b.logger, &err)

	if strings.TrimSpace(req.APIKey) == "" {
		return "", &GenerationError{Class: ClassInvalidRequest, Provider: b.Name(), Detail: "API key is required"}
	}
	promptText, err := prompt.BuildTranscript(prompt.Input{
		Character:   req.Character,
		History:     req.History,
		UserMessage: req.UserMessage,
		MemoryText:  req.MemoryText,
	}, geminiHistoryWindow)
	if err != nil {
		return "", &GenerationError{Class: ClassInvalidRequest, Provider: b.Name(), Detail: err.Error(), Err: err}
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	client, err := b.newClient(ctx, req.APIKey)
	if err != nil {
		return "", classify(b.Name(), fmt.Errorf("failed to create genai client: %w", err))
	}

	raw, genErr := b.call(ctx, client, promptText, true)
	if genErr != nil && genErr.Class == ClassSafetyBlocked {
		b.logger.Warn("gemini safety rejection, retrying without safety settings", "detail", genErr.Detail)
		raw, genErr = b.call(ctx, client, promptText, false)
	}
	if genErr != nil {
		return "", genErr
	}
	return reply.Format(raw, req.Character), nil
}

func (b *GeminiBackend) call(ctx context.Context, client GeminiModels, promptText string, withSafety bool) (string, *GenerationError) {
	resp, err := client.GenerateContent(ctx, b.model, genai.Text(promptText), geminiConfig(withSafety))
	if err != nil {
		return "", classify(b.Name(), err)
	}
	if resp == nil {
		return "", &GenerationError{Class: ClassMalformedResponse, Provider: b.Name(), Detail: "empty response"}
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return "", &GenerationError{
			Class:    ClassSafetyBlocked,
			Provider: b.Name(),
			Detail:   fmt.Sprintf("prompt blocked: %s", fb.BlockReason),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", &GenerationError{Class: ClassMalformedResponse, Provider: b.Name(), Detail: "no candidates in response"}
	}

	candidate := resp.Candidates[0]
	text := strings.TrimSpace(utils.ExtractContentText(candidate.Content))
	if text == "" {
		if candidate.FinishReason == genai.FinishReasonSafety {
			return "", &GenerationError{Class: ClassSafetyBlocked, Provider: b.Name(), Detail: "candidate blocked for safety"}
		}
		return "", &GenerationError{Class: ClassMalformedResponse, Provider: b.Name(), Detail: "empty reply text"}
	}
	return text, nil
}

func geminiConfig(withSafety bool) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.85),
		TopP:            genai.Ptr[float32](0.92),
		TopK:            genai.Ptr[float32](40),
		MaxOutputTokens: 1024,
	}
	if withSafety {
		cfg.SafetySettings = []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
		}
	}
	return cfg
}
