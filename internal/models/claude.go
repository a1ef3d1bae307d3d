package models

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/easeaico/rolechat/internal/utils"
)

// claudeMaxTokens is used when the request leaves MaxOutputTokens unset;
// the Messages API requires the field.
const claudeMaxTokens = 1000

// claudeModel 封装 Anthropic Messages API 客户端。
type claudeModel struct {
	client *anthropic.Client
	name   string
}

// NewClaudeModel creates a model.LLM backed by the Anthropic Messages API.
// cfg.HTTPOptions.BaseURL and cfg.HTTPClient override the defaults.
func NewClaudeModel(ctx context.Context, modelName string, cfg *genai.ClientConfig) (model.LLM, error) {
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
	if cfg.HTTPOptions.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.HTTPOptions.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := anthropic.NewClient(opts...)

	return &claudeModel{client: &client, name: modelName}, nil
}

func (m *claudeModel) Name() string {
	return m.name
}

func (m *claudeModel) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		resp, err := m.generate(ctx, req)
		yield(resp, err)
	}
}

func (m *claudeModel) generate(ctx context.Context, req *model.LLMRequest) (*model.LLMResponse, error) {
	params := buildClaudeParams(req, m.name)

	msg, err := m.client.Messages.New(ctx, params)
	if err != nil {
		slog.Error("failed to call llm API", "provider", "claude", "model", m.name, "error", err.Error())
		return nil, fmt.Errorf("failed to call claude API: %w", err)
	}

	content := &genai.Content{Role: "model"}
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: block.Text})
		}
	}
	return &model.LLMResponse{Content: content, TurnComplete: true}, nil
}

type claudeTurn struct {
	role anthropic.MessageParamRole
	text string
}

// claudeTurns folds system contents into one system text and merges
// consecutive turns of the same role, which the API rejects.
func claudeTurns(req *model.LLMRequest) (string, []claudeTurn) {
	var system []string
	if cfg := req.Config; cfg != nil {
		if text := utils.ExtractContentText(cfg.SystemInstruction); text != "" {
			system = append(system, text)
		}
	}

	var turns []claudeTurn
	for _, content := range req.Contents {
		if content == nil {
			continue
		}
		text := utils.ExtractContentText(content)
		role := anthropic.MessageParamRoleUser
		switch content.Role {
		case "system":
			system = append(system, text)
			continue
		case "model", "assistant":
			role = anthropic.MessageParamRoleAssistant
		}
		if n := len(turns); n > 0 && turns[n-1].role == role {
			turns[n-1].text += "\n" + text
			continue
		}
		turns = append(turns, claudeTurn{role: role, text: text})
	}

	// The conversation must open with a user message.
	if len(turns) > 0 && turns[0].role != anthropic.MessageParamRoleUser {
		turns = turns[1:]
	}
	if len(turns) == 0 {
		turns = []claudeTurn{{role: anthropic.MessageParamRoleUser, text: "Continue."}}
	}
	return strings.Join(system, "\n\n"), turns
}

func buildClaudeParams(req *model.LLMRequest, modelName string) anthropic.MessageNewParams {
	name := req.Model
	if name == "" {
		name = modelName
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(name),
		MaxTokens: claudeMaxTokens,
	}

	if cfg := req.Config; cfg != nil {
		if cfg.MaxOutputTokens > 0 {
			params.MaxTokens = int64(cfg.MaxOutputTokens)
		}
		if cfg.Temperature != nil {
			params.Temperature = anthropic.Float(float64(*cfg.Temperature))
		}
		if cfg.TopP != nil {
			params.TopP = anthropic.Float(float64(*cfg.TopP))
		}
		if cfg.TopK != nil {
			params.TopK = anthropic.Int(int64(*cfg.TopK))
		}
	}

	system, turns := claudeTurns(req)
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, turn := range turns {
		block := anthropic.NewTextBlock(turn.text)
		if turn.role == anthropic.MessageParamRoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
			continue
		}
		params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
	}
	return params
}
