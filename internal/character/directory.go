// Package character resolves character profiles from the configured source.
package character

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/easeaico/rolechat/internal/types"
)

// Directory looks up character profiles.
type Directory interface {
	GetByID(ctx context.Context, id string) (*types.Character, error)
	List(ctx context.Context) ([]types.Character, error)
}

// userPlaceholder replaces {{user}} in profile text loaded ahead of any turn.
const userPlaceholder = "你"

// Normalize expands template placeholders and escaped newlines in the
// free-text fields of c.
func Normalize(c *types.Character) {
	if c == nil {
		return
	}
	for _, field := range []*string{
		&c.Description,
		&c.BasicInfo,
		&c.Personality,
		&c.SpeakingStyle,
		&c.Quote,
		&c.FirstChatScene,
		&c.FirstChatLine,
	} {
		*field = expandPlaceholders(*field, c.Name)
	}
}

// expandPlaceholders substitutes {{char}} and {{user}} and unescapes the
// literal \n, \r\n and \" sequences some character editors store.
func expandPlaceholders(text, charName string) string {
	return strings.NewReplacer(
		"{{char}}", charName,
		"{{user}}", userPlaceholder,
		`\r\n`, "\n",
		`\n`, "\n",
		`\"`, `"`,
	).Replace(text)
}

// Cache memoizes a Directory. Entries are filled lazily on miss and by List;
// lookups that fail are not cached.
type Cache struct {
	source Directory
	logger *slog.Logger

	mu    sync.RWMutex
	byID  map[string]types.Character
	order []string
}

// NewCache wraps source.
func NewCache(source Directory, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		source: source,
		logger: logger,
		byID:   make(map[string]types.Character),
	}
}

func (c *Cache) GetByID(ctx context.Context, id string) (*types.Character, error) {
	c.mu.RLock()
	cached, ok := c.byID[id]
	c.mu.RUnlock()
	if ok {
		return &cached, nil
	}

	found, err := c.source.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, types.ErrCharacterNotFound) {
			c.logger.Warn("character lookup failed", "character_id", id, "error", err.Error())
		}
		return nil, err
	}
	if found == nil {
		return nil, types.ErrCharacterNotFound
	}

	c.mu.Lock()
	c.store(*found)
	c.mu.Unlock()
	out := *found
	return &out, nil
}

// List refreshes the cache from the source. When the source fails, the
// cached characters are returned instead.
func (c *Cache) List(ctx context.Context) ([]types.Character, error) {
	all, err := c.source.List(ctx)
	if err != nil {
		c.logger.Warn("character list failed, serving cache", "error", err.Error())
		cached := c.Cached()
		if len(cached) == 0 {
			return nil, err
		}
		return cached, nil
	}

	c.mu.Lock()
	for _, ch := range all {
		if ch.ID == "" {
			continue
		}
		c.store(ch)
	}
	c.mu.Unlock()
	return all, nil
}

// Cached returns the cached characters in load order.
func (c *Cache) Cached() []types.Character {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.Character, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// IDs returns the cached character IDs, sorted.
func (c *Cache) IDs() []string {
	c.mu.RLock()
	ids := append([]string(nil), c.order...)
	c.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (c *Cache) store(ch types.Character) {
	if _, ok := c.byID[ch.ID]; !ok {
		c.order = append(c.order, ch.ID)
	}
	c.byID[ch.ID] = ch
}
