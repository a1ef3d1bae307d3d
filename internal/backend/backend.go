// Package backend turns a conversation turn into a provider request and the
// provider's answer into a formatted reply.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/easeaico/rolechat/internal/types"
)

// DefaultProvider is used when a request names no provider or an unknown one.
const DefaultProvider = "gemini"

// Request carries everything an adapter needs for one generation.
type Request struct {
	APIKey      string
	Character   *types.Character
	History     []types.Turn
	UserMessage string
	MemoryText  string
}

// Backend generates a formatted reply. Any returned error is a *GenerationError.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// ModelInfo describes a selectable provider.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Registry selects a Backend by provider id.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
	infos    []ModelInfo
	fallback string
	logger   *slog.Logger
}

// NewRegistry returns an empty registry falling back to DefaultProvider.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		backends: make(map[string]Backend),
		fallback: DefaultProvider,
		logger:   logger,
	}
}

// Register adds b under its Name.
func (r *Registry) Register(b Backend, displayName, description string) {
	id := strings.ToLower(b.Name())
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.backends[id]; !exists {
		r.infos = append(r.infos, ModelInfo{ID: id, Name: displayName, Description: description})
	}
	r.backends[id] = b
}

// Resolve returns the backend for id, or the fallback backend when id is
// empty or unknown.
func (r *Registry) Resolve(id string) (Backend, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.backends[id]; ok {
		return b, nil
	}
	if id != "" {
		r.logger.Warn("unknown provider, using fallback", "provider", id, "fallback", r.fallback)
	}
	if b, ok := r.backends[r.fallback]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("no backend registered for %q", r.fallback)
}

// Supported lists registered providers in registration order.
func (r *Registry) Supported() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ModelInfo, len(r.infos))
	copy(out, r.infos)
	return out
}

// guard converts a panic inside an adapter into a GenerationError.
func guard(provider string, logger *slog.Logger, errp *error) {
	if rec := recover(); rec != nil {
		logger.Error("backend panic", "provider", provider, "error", fmt.Sprint(rec), "stack", string(debug.Stack()))
		*errp = &GenerationError{
			Class:    ClassInternal,
			Provider: provider,
			Detail:   "unexpected adapter failure",
		}
	}
}
