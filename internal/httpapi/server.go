// Package httpapi exposes the conversation service over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/easeaico/rolechat/internal/backend"
	"github.com/easeaico/rolechat/internal/character"
	"github.com/easeaico/rolechat/internal/chat"
	"github.com/easeaico/rolechat/internal/conversation"
	"github.com/easeaico/rolechat/internal/memory"
	"github.com/easeaico/rolechat/internal/observability"
)

// ModelLister lists selectable providers.
type ModelLister interface {
	Supported() []backend.ModelInfo
}

// Status describes the deployment on the root route.
type Status struct {
	FrontendURL      string
	BackendKeyIsSet  bool
	CharacterSource  string
	MemoryStoreKind  string
	MemoryExtraction string
}

// Options wires a Server.
type Options struct {
	Orchestrator *chat.Orchestrator
	Characters   character.Directory
	Models       ModelLister
	Metrics      *observability.Metrics
	// Ready reports backing store health for /readyz. Nil means always ready.
	Ready  func(ctx context.Context) error
	Status Status
	Logger *slog.Logger
}

type Server struct {
	orch       *chat.Orchestrator
	characters character.Directory
	models     ModelLister
	metrics    *observability.Metrics
	ready      func(ctx context.Context) error
	status     Status
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		orch:       opts.Orchestrator,
		characters: opts.Characters,
		models:     opts.Models,
		metrics:    opts.Metrics,
		ready:      opts.Ready,
		status:     opts.Status,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The chat frontend is served from another origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

var endpoints = []string{
	"/chat",
	"/ws/chat",
	"/supported_models",
	"/characters",
	"/characters/list",
	"/affinity/{user_id}/{character_id}",
	"/reset_chat",
	"/reset_all_chats",
	"/memory/{user_id}/{character_id}",
	"/memory/formatted/{user_id}/{character_id}",
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})

	r.Post("/chat", s.handleChat)
	r.Get("/ws/chat", s.handleChatWS)
	r.Get("/supported_models", s.handleSupportedModels)
	r.Get("/characters", s.handleCharacterIDs)
	r.Get("/characters/list", s.handleCharacterList)
	r.Get("/affinity/{userID}/{characterID}", s.handleGetAffinity)
	r.Post("/affinity/{userID}/{characterID}", s.handleSetAffinity)
	r.Post("/reset_chat", s.handleResetChat)
	r.Post("/reset_all_chats", s.handleResetAll)
	r.Get("/memory/formatted/{userID}/{characterID}", s.handleFormattedMemory)
	r.Get("/memory/{userID}/{characterID}", s.handleGetMemory)
	r.Delete("/memory/{userID}/{characterID}", s.handleClearMemory)

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	ids := make([]string, 0)
	for _, m := range s.models.Supported() {
		ids = append(ids, m.ID)
	}
	loaded := 0
	if cache, ok := s.characters.(*character.Cache); ok {
		loaded = len(cache.IDs())
	} else if all, err := s.characters.List(r.Context()); err == nil {
		loaded = len(all)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":            "online",
		"api_version":       "1.0",
		"frontend_url":      s.status.FrontendURL,
		"backend_api_key":   s.status.BackendKeyIsSet,
		"character_source":  s.status.CharacterSource,
		"memory_store":      s.status.MemoryStoreKind,
		"memory_extractor":  s.status.MemoryExtraction,
		"loaded_characters": loaded,
		"supported_models":  ids,
		"endpoints":         endpoints,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chat.TurnRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	resp, err := s.orch.HandleTurn(r.Context(), req)
	if err != nil {
		failure := turnFailure(err)
		respondJSON(w, failure.StatusCode, failure)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleChatWS runs turns over a websocket. Each text frame is one turn
// request and gets exactly one response frame.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(1 << 20)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var out any
		var req chat.TurnRequest
		if err := json.Unmarshal(data, &req); err != nil {
			out = chat.FailureResponse{
				Error:      "invalid_request",
				Details:    err.Error(),
				StatusCode: http.StatusBadRequest,
			}
		} else if resp, err := s.orch.HandleTurn(r.Context(), req); err != nil {
			out = turnFailure(err)
		} else {
			out = resp
		}

		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(out); err != nil {
			s.logger.Warn("websocket write failed", "error", err.Error())
			return
		}
	}
}

func (s *Server) handleSupportedModels(w http.ResponseWriter, _ *http.Request) {
	models := make(map[string]backend.ModelInfo)
	for _, m := range s.models.Supported() {
		models[m.ID] = m
	}
	respondJSON(w, http.StatusOK, map[string]any{"models": models})
}

func (s *Server) handleCharacterIDs(w http.ResponseWriter, r *http.Request) {
	all, err := s.characters.List(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "character_source_unavailable", err.Error())
		return
	}
	ids := make([]string, 0, len(all))
	for _, c := range all {
		ids = append(ids, c.ID)
	}
	respondJSON(w, http.StatusOK, map[string]any{"characters": ids})
}

type characterSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Avatar      string `json:"avatar"`
	Job         string `json:"job"`
	Gender      string `json:"gender"`
	Quote       string `json:"quote"`
	Description string `json:"description"`
}

func (s *Server) handleCharacterList(w http.ResponseWriter, r *http.Request) {
	all, err := s.characters.List(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "character_source_unavailable", err.Error())
		return
	}
	out := make([]characterSummary, 0, len(all))
	for _, c := range all {
		out = append(out, characterSummary{
			ID:          c.ID,
			Name:        c.Name,
			Avatar:      c.Avatar,
			Job:         c.Job,
			Gender:      c.Gender,
			Quote:       c.Quote,
			Description: c.Description,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"characters": out})
}

func (s *Server) handleGetAffinity(w http.ResponseWriter, r *http.Request) {
	userID, characterID := chi.URLParam(r, "userID"), chi.URLParam(r, "characterID")
	respondJSON(w, http.StatusOK, map[string]any{
		"affinity": s.orch.Conversations().Affinity(userID, characterID),
	})
}

func (s *Server) handleSetAffinity(w http.ResponseWriter, r *http.Request) {
	userID, characterID := chi.URLParam(r, "userID"), chi.URLParam(r, "characterID")

	raw := r.URL.Query().Get("value")
	if raw == "" {
		var body struct {
			Value *int `json:"value"`
		}
		if err := decodeJSON(r, &body); err != nil && !errors.Is(err, errEmptyBody) {
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if body.Value == nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "value is required")
			return
		}
		raw = strconv.Itoa(*body.Value)
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "value must be an integer")
		return
	}

	updated, err := s.orch.Conversations().SetAffinity(userID, characterID, value)
	if errors.Is(err, conversation.ErrAffinityOutOfRange) {
		respondError(w, http.StatusBadRequest, "affinity_out_of_range", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"affinity": updated})
}

type resetRequest struct {
	UserID      string `json:"user_id"`
	CharacterID string `json:"character_id"`
}

func (s *Server) readReset(r *http.Request) (resetRequest, error) {
	req := resetRequest{
		UserID:      r.URL.Query().Get("user_id"),
		CharacterID: r.URL.Query().Get("character_id"),
	}
	if req.UserID != "" || req.CharacterID != "" {
		return req, nil
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		return req, err
	}
	return req, nil
}

func (s *Server) handleResetChat(w http.ResponseWriter, r *http.Request) {
	req, err := s.readReset(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.CharacterID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "user_id and character_id are required")
		return
	}
	s.orch.Conversations().Reset(req.UserID, req.CharacterID)
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "已重置 " + req.UserID + " 与 " + req.CharacterID + " 的对话",
	})
}

func (s *Server) handleResetAll(w http.ResponseWriter, r *http.Request) {
	req, err := s.readReset(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	n := s.orch.Conversations().ResetAll(req.UserID)
	message := "已重置所有对话"
	if req.UserID != "" {
		message = "已重置用户 " + req.UserID + " 的所有对话"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": message,
		"reset":   n,
	})
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	userID, characterID := chi.URLParam(r, "userID"), chi.URLParam(r, "characterID")
	respondJSON(w, http.StatusOK, s.orch.Memory().Get(r.Context(), userID, characterID))
}

func (s *Server) handleClearMemory(w http.ResponseWriter, r *http.Request) {
	userID, characterID := chi.URLParam(r, "userID"), chi.URLParam(r, "characterID")
	s.orch.Memory().Clear(r.Context(), userID, characterID)
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "已清除 " + userID + " 与 " + characterID + " 的记忆",
	})
}

func (s *Server) handleFormattedMemory(w http.ResponseWriter, r *http.Request) {
	userID, characterID := chi.URLParam(r, "userID"), chi.URLParam(r, "characterID")
	respondJSON(w, http.StatusOK, map[string]any{
		"memory_text": memory.Format(s.orch.Memory().Get(r.Context(), userID, characterID)),
	})
}

func turnFailure(err error) chat.FailureResponse {
	var te *chat.TurnError
	if errors.As(err, &te) {
		return te.Response()
	}
	return chat.FailureResponse{
		Error:      "处理聊天请求时发生错误",
		Details:    "内部服务器错误",
		StatusCode: http.StatusInternalServerError,
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
