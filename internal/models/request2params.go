package models

import (
	"encoding/json"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/openai/openai-go/v3"
	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/easeaico/rolechat/internal/utils"
)

// buildOpenAIParams converts an ADK request to chat completion parameters.
func buildOpenAIParams(req *model.LLMRequest, modelName string) *openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: req.Model,
	}
	if req.Model == "" {
		params.Model = modelName
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.Config != nil {
		if system := utils.ExtractContentText(req.Config.SystemInstruction); system != "" {
			messages = append(messages, openai.SystemMessage(system))
		}
	}
	messages = append(messages, convertContentsToMessages(req.Contents)...)
	params.Messages = messages

	if req.Config != nil {
		if req.Config.Temperature != nil {
			params.Temperature = openai.Float(float64(*req.Config.Temperature))
		}
		if req.Config.TopP != nil {
			params.TopP = openai.Float(float64(*req.Config.TopP))
		}
		if req.Config.MaxOutputTokens > 0 {
			params.MaxTokens = openai.Int(int64(req.Config.MaxOutputTokens))
		}
		if tools := convertToolsToOpenAI(req.Config.Tools); len(tools) > 0 {
			params.Tools = tools
		}
	}

	return &params
}

// convertToolsToOpenAI converts function declarations to OpenAI tools.
func convertToolsToOpenAI(tools []*genai.Tool) []openai.ChatCompletionToolUnionParam {
	var out []openai.ChatCompletionToolUnionParam
	for _, t := range tools {
		if t == nil {
			continue
		}
		for _, fn := range t.FunctionDeclarations {
			out = append(out, openai.ChatCompletionToolUnionParam{
				OfFunction: &openai.ChatCompletionFunctionToolParam{
					Function: openai.FunctionDefinitionParam{
						Name:        fn.Name,
						Description: openai.String(fn.Description),
						Parameters:  functionParameters(fn),
					},
				},
			})
		}
	}
	return out
}

// functionParameters renders ParametersJsonSchema as a plain JSON object.
func functionParameters(fn *genai.FunctionDeclaration) openai.FunctionParameters {
	switch schema := fn.ParametersJsonSchema.(type) {
	case *jsonschema.Schema:
		return schemaToMap(schema)
	case map[string]any:
		return openai.FunctionParameters(schema)
	default:
		return openai.FunctionParameters{"type": "object", "properties": map[string]any{}}
	}
}

func schemaToMap(schema *jsonschema.Schema) openai.FunctionParameters {
	raw, err := json.Marshal(schema)
	if err != nil {
		slog.Error("failed to encode tool schema", "error", err.Error())
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		slog.Error("failed to decode tool schema", "error", err.Error())
		return nil
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	return openai.FunctionParameters(out)
}

// convertContentsToMessages maps genai roles onto chat roles.
func convertContentsToMessages(contents []*genai.Content) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	for _, content := range contents {
		if content == nil {
			continue
		}
		text := utils.ExtractContentText(content)
		switch content.Role {
		case "model", "assistant":
			messages = append(messages, openai.AssistantMessage(text))
		case "system":
			messages = append(messages, openai.SystemMessage(text))
		default:
			messages = append(messages, openai.UserMessage(text))
		}
	}
	return messages
}
