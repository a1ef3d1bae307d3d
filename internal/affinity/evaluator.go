// Package affinity scores how a completed turn changes the relationship.
package affinity

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"runtime/debug"
	"strconv"
	"strings"
	"text/template"
	"time"

	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/easeaico/rolechat/internal/conversation"
	"github.com/easeaico/rolechat/internal/types"
	"github.com/easeaico/rolechat/internal/utils"
)

// DefaultTimeout bounds one evaluation call.
const DefaultTimeout = 15 * time.Second

var deltaPattern = regexp.MustCompile(`[+-]?\d+`)

const evaluationTemplateText = `你是一个关系评估器。请根据角色{{.Character.Name}}的设定，评估这一轮对话对好感度的影响。
{{- if .Character.Personality}}
角色性格：{{.Character.Personality}}
{{- end}}
{{- if .Character.Likes}}
角色喜欢：{{.Character.Likes}}
{{- end}}
{{- if .Character.Dislikes}}
角色讨厌：{{.Character.Dislikes}}
{{- end}}
当前好感度：{{.Current}}/100

用户说：{{.UserMessage}}
{{.Character.Name}}回复：{{.Reply}}

考虑用户是否友善、尊重，是否符合角色的喜好，是否投入地交流。
只输出一个 -5 到 +5 之间的整数，例如 +2、0、-3，不要输出任何其他内容。`

var evaluationTemplate = template.Must(template.New("evaluation").Parse(evaluationTemplateText))

// LLMFactory builds a model for a provider and API key.
type LLMFactory interface {
	New(ctx context.Context, provider, apiKey string) (model.LLM, error)
}

// Input describes one completed turn.
type Input struct {
	APIKey          string
	Provider        string
	Character       *types.Character
	UserMessage     string
	Reply           string
	CurrentAffinity int
}

// Evaluator asks a model for a signed affinity delta.
type Evaluator struct {
	factory   LLMFactory
	timeout   time.Duration
	logger    *slog.Logger
	onFailure func(reason string)
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithFailureHook is called with a short reason whenever evaluation degrades to 0.
func WithFailureHook(fn func(reason string)) Option {
	return func(e *Evaluator) {
		e.onFailure = fn
	}
}

// NewEvaluator returns an Evaluator.
func NewEvaluator(factory LLMFactory, opts ...Option) *Evaluator {
	e := &Evaluator{
		factory: factory,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate returns a delta in [-5, 5]. Every failure yields 0.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) (delta int) {
	defer func() {
		if rec := recover(); rec != nil {
			e.fail("panic", fmt.Errorf("%v", rec), "stack", string(debug.Stack()))
			delta = 0
		}
	}()

	if e == nil || e.factory == nil {
		return 0
	}
	if in.Character == nil {
		e.fail("invalid_input", fmt.Errorf("character is required"))
		return 0
	}

	promptText, err := buildPrompt(in)
	if err != nil {
		e.fail("prompt", err)
		return 0
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	llm, err := e.factory.New(ctx, in.Provider, in.APIKey)
	if err != nil {
		e.fail("model", err)
		return 0
	}

	req := &model.LLMRequest{
		Contents: []*genai.Content{genai.NewContentFromText(promptText, genai.RoleUser)},
		Config: &genai.GenerateContentConfig{
			Temperature:     genai.Ptr[float32](0.1),
			TopP:            genai.Ptr[float32](0.95),
			TopK:            genai.Ptr[float32](40),
			MaxOutputTokens: 16,
		},
	}

	var resp *model.LLMResponse
	for r, callErr := range llm.GenerateContent(ctx, req, false) {
		resp, err = r, callErr
		break
	}
	if err != nil {
		e.fail("call", err)
		return 0
	}

	text := ""
	if resp != nil {
		text = utils.ExtractContentText(resp.Content)
	}
	d, ok := ParseDelta(text)
	if !ok {
		e.fail("parse", fmt.Errorf("no integer in evaluator response"), "response", text)
		return 0
	}
	return d
}

func (e *Evaluator) fail(reason string, err error, attrs ...any) {
	args := append([]any{"reason", reason, "error", err.Error()}, attrs...)
	e.logger.Warn("affinity evaluation failed", args...)
	if e.onFailure != nil {
		e.onFailure(reason)
	}
}

// ParseDelta extracts the first integer token and clamps it to [-5, 5].
func ParseDelta(text string) (int, bool) {
	token := deltaPattern.FindString(text)
	if token == "" {
		return 0, false
	}
	v, err := strconv.Atoi(token)
	if err != nil {
		// Out of int range; only the sign matters after clamping.
		if strings.HasPrefix(token, "-") {
			return -conversation.MaxAffinityDelta, true
		}
		return conversation.MaxAffinityDelta, true
	}
	return conversation.ClampDelta(v), true
}

func buildPrompt(in Input) (string, error) {
	data := struct {
		Character   *types.Character
		Current     int
		UserMessage string
		Reply       string
	}{
		Character:   in.Character.Sanitized(),
		Current:     in.CurrentAffinity,
		UserMessage: in.UserMessage,
		Reply:       in.Reply,
	}
	var buf bytes.Buffer
	if err := evaluationTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to build evaluation prompt: %w", err)
	}
	return buf.String(), nil
}
