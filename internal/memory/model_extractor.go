package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/easeaico/rolechat/internal/types"
	"github.com/easeaico/rolechat/internal/utils"
)

const recordToolName = "record_user_memory"

// extractionInstruction 要求模型只记录用户明确透露的信息。
const extractionInstruction = `你是对话记忆整理助手。阅读用户最近说的话，只提取用户明确透露的、以后值得记住的信息：
1. personal_info：用户的名字、年龄、职业、居住地等个人信息
2. preferences：用户喜欢或讨厌的事物
3. important_events：用户提到的经历、计划或重要日子

每条信息用一句简短的中文陈述，以“用户”开头。没有可记录的信息时返回空数组。
调用 record_user_memory 工具提交结果；如果无法调用工具，只输出一个 JSON 对象，键为 personal_info、preferences、important_events。`

var recordToolSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		string(types.MemoryPersonalInfo): {
			Type:        "array",
			Description: "Personal facts the user revealed about themselves.",
			Items:       &jsonschema.Schema{Type: "string"},
		},
		string(types.MemoryPreferences): {
			Type:        "array",
			Description: "Things the user likes or dislikes.",
			Items:       &jsonschema.Schema{Type: "string"},
		},
		string(types.MemoryImportantEvents): {
			Type:        "array",
			Description: "Events, plans or dates the user mentioned.",
			Items:       &jsonschema.Schema{Type: "string"},
		},
	},
	Required: []string{
		string(types.MemoryPersonalInfo),
		string(types.MemoryPreferences),
		string(types.MemoryImportantEvents),
	},
}

// LLMFactory builds a model for a provider and API key.
type LLMFactory interface {
	New(ctx context.Context, provider, apiKey string) (model.LLM, error)
}

// ModelExtractor asks a model to report facts through a function tool and
// falls back to another Extractor when the call fails.
type ModelExtractor struct {
	factory  LLMFactory
	fallback Extractor
	timeout  time.Duration
	logger   *slog.Logger
}

// NewModelExtractor returns a ModelExtractor. A nil fallback uses KeywordExtractor.
func NewModelExtractor(factory LLMFactory, fallback Extractor, timeout time.Duration, logger *slog.Logger) *ModelExtractor {
	if fallback == nil {
		fallback = KeywordExtractor{}
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelExtractor{factory: factory, fallback: fallback, timeout: timeout, logger: logger}
}

func (e *ModelExtractor) Extract(ctx context.Context, in ExtractInput) (types.MemoryRecord, error) {
	messages := RecentUserMessages(in.Turns)
	if len(messages) == 0 {
		return types.NewMemoryRecord(), nil
	}

	record, err := e.extract(ctx, in, messages)
	if err != nil {
		e.logger.Warn("model memory extraction failed, using fallback", "provider", in.Provider, "error", err.Error())
		return e.fallback.Extract(ctx, in)
	}
	return record, nil
}

func (e *ModelExtractor) extract(ctx context.Context, in ExtractInput, messages []string) (types.MemoryRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	llm, err := e.factory.New(ctx, in.Provider, in.APIKey)
	if err != nil {
		return types.MemoryRecord{}, err
	}

	var sb strings.Builder
	sb.WriteString("用户最近说的话：")
	for _, m := range messages {
		sb.WriteString("\n- ")
		sb.WriteString(m)
	}

	req := &model.LLMRequest{
		Contents: []*genai.Content{genai.NewContentFromText(sb.String(), genai.RoleUser)},
		Config: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(extractionInstruction, "system"),
			Temperature:       genai.Ptr[float32](0.1),
			Tools: []*genai.Tool{{
				FunctionDeclarations: []*genai.FunctionDeclaration{{
					Name:                 recordToolName,
					Description:          "Record facts learned about the user.",
					ParametersJsonSchema: recordToolSchema,
				}},
			}},
		},
	}

	var resp *model.LLMResponse
	for r, callErr := range llm.GenerateContent(ctx, req, false) {
		resp, err = r, callErr
		break
	}
	if err != nil {
		return types.MemoryRecord{}, fmt.Errorf("failed to call extraction model: %w", err)
	}
	if resp == nil || resp.Content == nil {
		return types.MemoryRecord{}, fmt.Errorf("empty extraction response")
	}
	return parseExtraction(resp.Content)
}

func parseExtraction(content *genai.Content) (types.MemoryRecord, error) {
	for _, part := range content.Parts {
		if part == nil || part.FunctionCall == nil || part.FunctionCall.Name != recordToolName {
			continue
		}
		raw, err := json.Marshal(part.FunctionCall.Args)
		if err != nil {
			return types.MemoryRecord{}, fmt.Errorf("failed to encode tool arguments: %w", err)
		}
		var record types.MemoryRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return types.MemoryRecord{}, fmt.Errorf("failed to decode tool arguments: %w", err)
		}
		return Normalize(record), nil
	}

	text := utils.ExtractContentText(content)
	var record types.MemoryRecord
	if err := utils.DecodeJSONObject(text, &record); err != nil {
		return types.MemoryRecord{}, err
	}
	return Normalize(record), nil
}
