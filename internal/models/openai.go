// Package models 提供各家模型提供方的 model.LLM 适配器实现。
package models

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"runtime"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// openaiModel 封装 OpenAI 兼容的聊天客户端（OpenAI、x.ai、OpenRouter）。
type openaiModel struct {
	client    *openai.Client
	name      string
	provider  string
	userAgent string
}

// NewOpenAIModel creates a model.LLM backed by the OpenAI chat completions API.
func NewOpenAIModel(ctx context.Context, modelName string, cfg *genai.ClientConfig) (model.LLM, error) {
	return newOpenAICompatible("openai", "", modelName, cfg)
}

func newOpenAICompatible(provider, baseURL, modelName string, cfg *genai.ClientConfig) (*openaiModel, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name cannot be empty")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	// 测试或代理场景下允许覆盖 base URL。
	if cfg.HTTPOptions.BaseURL != "" {
		baseURL = cfg.HTTPOptions.BaseURL
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := openai.NewClient(opts...)

	return &openaiModel{
		client:    &client,
		name:      modelName,
		provider:  provider,
		userAgent: fmt.Sprintf("rolechat-%s go/%s", provider, strings.TrimPrefix(runtime.Version(), "go")),
	}, nil
}

func (m *openaiModel) Name() string {
	return m.name
}

// GenerateContent issues one chat completion. Streaming is not used by this
// service, so a streaming request yields the same single final response.
func (m *openaiModel) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		resp, err := m.generate(ctx, req)
		yield(resp, err)
	}
}

func (m *openaiModel) generate(ctx context.Context, req *model.LLMRequest) (*model.LLMResponse, error) {
	ensureUserContent(req)
	params := buildOpenAIParams(req, m.name)

	resp, err := m.client.Chat.Completions.New(ctx, *params, option.WithHeader("User-Agent", m.userAgent))
	if err != nil {
		slog.Error("failed to call llm API", "provider", m.provider, "model", m.name, "error", err.Error())
		return nil, fmt.Errorf("failed to call %s API: %w", m.provider, err)
	}

	if resp == nil || len(resp.Choices) == 0 {
		return &model.LLMResponse{TurnComplete: true}, nil
	}

	message := resp.Choices[0].Message
	content := &genai.Content{Role: "model"}
	if message.Content != "" {
		content.Parts = append(content.Parts, &genai.Part{Text: message.Content})
	}

	// OpenAI 工具类型目前仅支持 function。
	for _, call := range message.ToolCalls {
		if call.Type != "function" || call.Function.Name == "" {
			continue
		}
		content.Parts = append(content.Parts, &genai.Part{
			FunctionCall: &genai.FunctionCall{
				ID:   call.ID,
				Name: call.Function.Name,
				Args: parseFunctionArgs(call.Function.Arguments),
			},
		})
	}

	return &model.LLMResponse{
		Content:      content,
		TurnComplete: true,
	}, nil
}

// ensureUserContent 保证请求至少以一条用户消息结尾。
func ensureUserContent(req *model.LLMRequest) {
	if len(req.Contents) == 0 {
		req.Contents = append(req.Contents, genai.NewContentFromText("Handle the requests as specified in the System Instruction.", "user"))
		return
	}
	if last := req.Contents[len(req.Contents)-1]; last != nil && last.Role != "user" {
		req.Contents = append(req.Contents, genai.NewContentFromText("Continue.", "user"))
	}
}

func parseFunctionArgs(jsonStr string) map[string]any {
	if jsonStr == "" {
		return make(map[string]any)
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &args); err != nil {
		slog.Error("failed to parse function arguments", "error", err.Error(), "json", jsonStr)
		return make(map[string]any)
	}
	return args
}
