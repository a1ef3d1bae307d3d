package memory

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/easeaico/rolechat/internal/types"
	"github.com/easeaico/rolechat/internal/utils"
)

// RowStore persists memory facts one row per fact.
type RowStore interface {
	ListByKey(ctx context.Context, userID, characterID string) ([]types.MemoryRow, error)
	Insert(ctx context.Context, row types.MemoryRow) error
	DeleteByID(ctx context.Context, id int64) error
	DeleteByKey(ctx context.Context, userID, characterID string) error
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// Timeout bounds each RowStore call. Zero means no extra bound.
	Timeout time.Duration
	Logger  *slog.Logger
	// OnPersistFailure is called with the failed operation name.
	OnPersistFailure func(op string)
}

// Store caches memory records in process and reconciles them into a
// RowStore. The cache is authoritative once filled; entries are dropped only
// by Clear.
type Store struct {
	rows      RowStore
	opts      StoreOptions
	logger    *slog.Logger
	locks     *utils.KeyedMutex
	mu        sync.RWMutex
	cache     map[string]types.MemoryRecord
	onFailure func(op string)
}

// NewStore returns a Store. A nil rows keeps memory in process only.
func NewStore(rows RowStore, opts StoreOptions) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		rows:      rows,
		opts:      opts,
		logger:    logger,
		locks:     utils.NewKeyedMutex(),
		cache:     make(map[string]types.MemoryRecord),
		onFailure: opts.OnPersistFailure,
	}
}

// Get returns the record for a key, loading it from the RowStore on first
// access. A load failure caches an empty record.
func (s *Store) Get(ctx context.Context, userID, characterID string) types.MemoryRecord {
	unlock := s.locks.Lock(utils.ConversationKey(userID, characterID))
	defer unlock()
	return s.get(ctx, userID, characterID).Clone()
}

// Update replaces the record, then reconciles the RowStore.
func (s *Store) Update(ctx context.Context, userID, characterID string, record types.MemoryRecord) {
	unlock := s.locks.Lock(utils.ConversationKey(userID, characterID))
	defer unlock()
	s.update(ctx, userID, characterID, Normalize(record))
}

// Merge appends facts from partial that are not yet known and persists the
// result. Merging the same partial twice is a no-op the second time.
func (s *Store) Merge(ctx context.Context, userID, characterID string, partial types.MemoryRecord) types.MemoryRecord {
	unlock := s.locks.Lock(utils.ConversationKey(userID, characterID))
	defer unlock()

	existing := s.get(ctx, userID, characterID)
	merged, changed := MergeRecords(existing, partial)
	if changed {
		s.update(ctx, userID, characterID, merged)
	}
	return merged.Clone()
}

// AddFact merges a single fact into one category.
func (s *Store) AddFact(ctx context.Context, userID, characterID string, category types.MemoryCategory, fact string) types.MemoryRecord {
	partial := types.NewMemoryRecord()
	partial.SetFacts(category, []string{fact})
	return s.Merge(ctx, userID, characterID, partial)
}

// AddPersonalInfo records one personal fact.
func (s *Store) AddPersonalInfo(ctx context.Context, userID, characterID, fact string) types.MemoryRecord {
	return s.AddFact(ctx, userID, characterID, types.MemoryPersonalInfo, fact)
}

// AddPreference records one preference.
func (s *Store) AddPreference(ctx context.Context, userID, characterID, fact string) types.MemoryRecord {
	return s.AddFact(ctx, userID, characterID, types.MemoryPreferences, fact)
}

// AddImportantEvent records one event.
func (s *Store) AddImportantEvent(ctx context.Context, userID, characterID, fact string) types.MemoryRecord {
	return s.AddFact(ctx, userID, characterID, types.MemoryImportantEvents, fact)
}

// Clear drops the cached record and deletes persisted rows. The cache is
// cleared even when the RowStore fails.
func (s *Store) Clear(ctx context.Context, userID, characterID string) {
	key := utils.ConversationKey(userID, characterID)
	unlock := s.locks.Lock(key)
	defer unlock()

	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()

	if s.rows == nil {
		return
	}
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	if err := s.rows.DeleteByKey(ctx, userID, characterID); err != nil {
		s.persistFailed("delete_by_key", err, userID, characterID)
	}
}

// Formatted renders the record for prompt use, or "" when it is empty.
func (s *Store) Formatted(ctx context.Context, userID, characterID string) string {
	return Format(s.Get(ctx, userID, characterID))
}

func (s *Store) get(ctx context.Context, userID, characterID string) types.MemoryRecord {
	key := utils.ConversationKey(userID, characterID)
	s.mu.RLock()
	record, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return record
	}

	record = types.NewMemoryRecord()
	if s.rows != nil {
		ctx, cancel := s.callContext(ctx)
		rows, err := s.rows.ListByKey(ctx, userID, characterID)
		cancel()
		if err != nil {
			s.persistFailed("list", err, userID, characterID)
		} else {
			record = recordFromRows(rows)
		}
	}

	s.mu.Lock()
	s.cache[key] = record
	s.mu.Unlock()
	return record
}

func (s *Store) update(ctx context.Context, userID, characterID string, record types.MemoryRecord) {
	s.mu.Lock()
	s.cache[utils.ConversationKey(userID, characterID)] = record.Clone()
	s.mu.Unlock()

	if s.rows == nil {
		return
	}
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	s.reconcile(ctx, userID, characterID, record)
}

// reconcile inserts facts missing from the RowStore and deletes rows whose
// fact is no longer in record.
func (s *Store) reconcile(ctx context.Context, userID, characterID string, record types.MemoryRecord) {
	rows, err := s.rows.ListByKey(ctx, userID, characterID)
	if err != nil {
		s.persistFailed("list", err, userID, characterID)
		return
	}

	stored := make(map[types.MemoryCategory]map[string]bool, len(types.MemoryCategories))
	for _, row := range rows {
		if stored[row.MemoryType] == nil {
			stored[row.MemoryType] = make(map[string]bool)
		}
		wanted := slices.Contains(record.Facts(row.MemoryType), row.Content)
		if !wanted || stored[row.MemoryType][row.Content] {
			if err := s.rows.DeleteByID(ctx, row.ID); err != nil {
				s.persistFailed("delete", err, userID, characterID)
			}
			continue
		}
		stored[row.MemoryType][row.Content] = true
	}

	for _, category := range types.MemoryCategories {
		for _, fact := range record.Facts(category) {
			if stored[category][fact] {
				continue
			}
			row := types.MemoryRow{
				UserID:      userID,
				CharacterID: characterID,
				MemoryType:  category,
				Content:     fact,
			}
			if err := s.rows.Insert(ctx, row); err != nil {
				s.persistFailed("insert", err, userID, characterID)
			}
		}
	}
}

func (s *Store) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout > 0 {
		return context.WithTimeout(ctx, s.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

func (s *Store) persistFailed(op string, err error, userID, characterID string) {
	s.logger.Error("memory store operation failed",
		"op", op, "user_id", userID, "character_id", characterID, "error", err.Error())
	if s.onFailure != nil {
		s.onFailure(op)
	}
}

func recordFromRows(rows []types.MemoryRow) types.MemoryRecord {
	record := types.NewMemoryRecord()
	for _, row := range rows {
		if !row.MemoryType.Valid() {
			continue
		}
		facts := record.Facts(row.MemoryType)
		if slices.Contains(facts, row.Content) {
			continue
		}
		record.SetFacts(row.MemoryType, append(facts, row.Content))
	}
	return record
}
