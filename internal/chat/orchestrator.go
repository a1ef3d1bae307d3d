// Package chat runs the per-turn conversation pipeline.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/easeaico/rolechat/internal/affinity"
	"github.com/easeaico/rolechat/internal/backend"
	"github.com/easeaico/rolechat/internal/callback"
	"github.com/easeaico/rolechat/internal/character"
	"github.com/easeaico/rolechat/internal/conversation"
	"github.com/easeaico/rolechat/internal/memory"
	"github.com/easeaico/rolechat/internal/observability"
	"github.com/easeaico/rolechat/internal/types"
	"github.com/easeaico/rolechat/internal/utils"
)

// DefaultUserID is used when a turn names no user.
const DefaultUserID = "default_user"

// BackendResolver selects an adapter by provider id.
type BackendResolver interface {
	Resolve(id string) (backend.Backend, error)
}

// AffinityEvaluator scores a completed turn.
type AffinityEvaluator interface {
	Evaluate(ctx context.Context, in affinity.Input) int
}

// TurnRequest is one user message.
type TurnRequest struct {
	APIKey       string `json:"api_key"`
	CharacterID  string `json:"character_id"`
	Message      string `json:"message"`
	UserID       string `json:"user_id"`
	ResetContext bool   `json:"reset_context"`
	ProviderID   string `json:"model_type"`
}

// TurnResponse is the result of a successful turn.
type TurnResponse struct {
	Success        bool   `json:"success"`
	Reply          string `json:"reply"`
	HistoryLength  int    `json:"history_length"`
	Affinity       int    `json:"affinity"`
	AffinityChange int    `json:"affinity_change"`
	TurnID         string `json:"turn_id"`
}

// Config wires an Orchestrator.
type Config struct {
	Characters    character.Directory
	Backends      BackendResolver
	Conversations *conversation.Store
	Memory        *memory.Service
	Evaluator     AffinityEvaluator
	Tasks         *callback.Queue
	Metrics       *observability.Metrics
	Logger        *slog.Logger
	// Debug includes stack traces in unexpected-error responses.
	Debug bool
}

// Orchestrator runs turns. Turns for the same (user, character) are
// serialized; different keys never wait on each other.
type Orchestrator struct {
	characters    character.Directory
	backends      BackendResolver
	conversations *conversation.Store
	memory        *memory.Service
	evaluator     AffinityEvaluator
	tasks         *callback.Queue
	metrics       *observability.Metrics
	logger        *slog.Logger
	debug         bool
	locks         *utils.KeyedMutex
}

// New validates cfg and returns an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Characters == nil:
		return nil, errors.New("chat: character directory is required")
	case cfg.Backends == nil:
		return nil, errors.New("chat: backend resolver is required")
	case cfg.Conversations == nil:
		return nil, errors.New("chat: conversation store is required")
	case cfg.Memory == nil:
		return nil, errors.New("chat: memory service is required")
	case cfg.Evaluator == nil:
		return nil, errors.New("chat: affinity evaluator is required")
	case cfg.Tasks == nil:
		return nil, errors.New("chat: task queue is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		characters:    cfg.Characters,
		backends:      cfg.Backends,
		conversations: cfg.Conversations,
		memory:        cfg.Memory,
		evaluator:     cfg.Evaluator,
		tasks:         cfg.Tasks,
		metrics:       cfg.Metrics,
		logger:        logger,
		debug:         cfg.Debug,
		locks:         utils.NewKeyedMutex(),
	}, nil
}

// HandleTurn runs one turn. A non-nil error is always a *TurnError.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (resp *TurnResponse, err error) {
	start := time.Now()
	req = withDefaults(req)
	turnID := uuid.NewString()
	logger := o.logger.With("turn_id", turnID, "user_id", req.UserID, "character_id", req.CharacterID, "provider", req.ProviderID)

	// Labelled by the resolved adapter; raw model_type values never become series.
	provider, outcome := "unknown", "ok"
	defer func() {
		if rec := recover(); rec != nil {
			err = o.unexpected(logger, fmt.Errorf("panic: %v", rec), string(debug.Stack()))
			resp = nil
		}
		if err != nil {
			var te *TurnError
			if errors.As(err, &te) {
				outcome = string(te.Kind)
			}
		}
		o.metrics.ObserveTurn(provider, outcome, time.Since(start))
	}()

	if strings.TrimSpace(req.APIKey) == "" {
		return nil, missingAPIKey()
	}
	profile, lookupErr := o.characters.GetByID(ctx, req.CharacterID)
	if lookupErr != nil || profile == nil {
		if lookupErr != nil && !errors.Is(lookupErr, types.ErrCharacterNotFound) {
			logger.Warn("character lookup failed", "error", lookupErr.Error())
		}
		return nil, missingCharacter(req.CharacterID, lookupErr)
	}
	profile = profile.Sanitized()

	unlock := o.locks.Lock(utils.ConversationKey(req.UserID, req.CharacterID))
	defer unlock()

	if req.ResetContext {
		o.conversations.Reset(req.UserID, req.CharacterID)
		logger.Info("conversation context reset")
	}
	o.conversations.Append(req.UserID, req.CharacterID, types.RoleUser, req.Message)

	adapter, resolveErr := o.backends.Resolve(req.ProviderID)
	if resolveErr != nil {
		return nil, o.unexpected(logger, resolveErr, "")
	}
	provider = adapter.Name()

	memoryText := o.memory.Store().Formatted(ctx, req.UserID, req.CharacterID)
	reply, genErr := adapter.Generate(ctx, backend.Request{
		APIKey:      req.APIKey,
		Character:   profile,
		History:     o.conversations.History(req.UserID, req.CharacterID),
		UserMessage: req.Message,
		MemoryText:  memoryText,
	})
	if genErr != nil {
		return nil, o.generationFailed(logger, adapter.Name(), genErr)
	}

	historyLen := o.conversations.Append(req.UserID, req.CharacterID, types.RoleAssistant, reply)
	o.launchMemoryTask(logger, req, adapter.Name(), profile)

	current := o.conversations.Affinity(req.UserID, req.CharacterID)
	delta := conversation.ClampDelta(o.evaluator.Evaluate(ctx, affinity.Input{
		APIKey:          req.APIKey,
		Provider:        adapter.Name(),
		Character:       profile,
		UserMessage:     req.Message,
		Reply:           reply,
		CurrentAffinity: current,
	}))
	updated, _ := o.conversations.ApplyAffinityDelta(req.UserID, req.CharacterID, delta)
	o.metrics.ObserveAffinityDelta(delta)

	logger.Info("turn completed",
		"history_length", historyLen,
		"affinity", updated,
		"affinity_change", delta,
		"duration", time.Since(start))

	return &TurnResponse{
		Success:        true,
		Reply:          reply,
		HistoryLength:  historyLen,
		Affinity:       updated,
		AffinityChange: delta,
		TurnID:         turnID,
	}, nil
}

// Close drains pending memory tasks.
func (o *Orchestrator) Close(ctx context.Context) error {
	return o.tasks.Close(ctx)
}

// Conversations exposes the conversation store for administrative routes.
func (o *Orchestrator) Conversations() *conversation.Store {
	return o.conversations
}

// Memory exposes the memory store for administrative routes.
func (o *Orchestrator) Memory() *memory.Store {
	return o.memory.Store()
}

func (o *Orchestrator) launchMemoryTask(logger *slog.Logger, req TurnRequest, provider string, profile *types.Character) {
	turns := o.conversations.History(req.UserID, req.CharacterID)
	in := memory.ExtractInput{
		APIKey:    req.APIKey,
		Provider:  provider,
		Character: profile,
		Turns:     turns,
	}
	userID, characterID := req.UserID, req.CharacterID
	err := o.tasks.Submit("memory:"+userID+"/"+characterID, func(ctx context.Context) error {
		n, err := o.memory.Learn(ctx, userID, characterID, in)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Debug("memory facts extracted", "count", n)
		}
		return nil
	})
	if err != nil {
		o.metrics.ObserveMemoryTask("dropped")
		logger.Warn("memory task not scheduled", "error", err.Error())
	}
}

func (o *Orchestrator) generationFailed(logger *slog.Logger, provider string, err error) *TurnError {
	te := &TurnError{
		Kind:       FailureGeneration,
		Message:    "生成回复失败",
		Details:    err.Error(),
		StatusCode: http.StatusBadGateway,
		Err:        err,
	}
	class := "unknown"
	var ge *backend.GenerationError
	if errors.As(err, &ge) {
		class = string(ge.Class)
		te.StatusCode = ge.HTTPStatus()
		if ge.Detail != "" {
			te.Details = ge.Detail
		}
	}
	o.metrics.ObserveProviderError(provider, class)
	logger.Error("generation failed", "class", class, "status", te.StatusCode, "error", err.Error())
	return te
}

func (o *Orchestrator) unexpected(logger *slog.Logger, err error, stack string) *TurnError {
	if stack == "" {
		stack = string(debug.Stack())
	}
	logger.Error("unexpected turn failure", "error", err.Error(), "stack", stack)
	te := &TurnError{
		Kind:       FailureUnexpected,
		Message:    "处理聊天请求时发生错误",
		Details:    "内部服务器错误",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
	if o.debug {
		te.Details = err.Error()
		te.Traceback = stack
	}
	return te
}

func withDefaults(req TurnRequest) TurnRequest {
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		req.UserID = DefaultUserID
	}
	req.ProviderID = strings.ToLower(strings.TrimSpace(req.ProviderID))
	if req.ProviderID == "" {
		req.ProviderID = backend.DefaultProvider
	}
	req.CharacterID = strings.TrimSpace(req.CharacterID)
	return req
}
