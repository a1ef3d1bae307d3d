package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/easeaico/rolechat/internal/types"
)

type mockMemoryRepo struct {
	mu        sync.Mutex
	rows      []types.MemoryRow
	nextID    int64
	listCalls int
	listErr   error
	insertErr error
	deleteErr error
}

func (m *mockMemoryRepo) ListByKey(ctx context.Context, userID, characterID string) ([]types.MemoryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []types.MemoryRow
	for _, r := range m.rows {
		if r.UserID == userID && r.CharacterID == characterID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockMemoryRepo) Insert(ctx context.Context, row types.MemoryRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.nextID++
	row.ID = m.nextID
	m.rows = append(m.rows, row)
	return nil
}

func (m *mockMemoryRepo) DeleteByID(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for i, r := range m.rows {
		if r.ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockMemoryRepo) DeleteByKey(ctx context.Context, userID, characterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	kept := m.rows[:0]
	for _, r := range m.rows {
		if r.UserID != userID || r.CharacterID != characterID {
			kept = append(kept, r)
		}
	}
	m.rows = kept
	return nil
}

func (m *mockMemoryRepo) contents(category types.MemoryCategory) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, r := range m.rows {
		if r.MemoryType == category {
			out = append(out, r.Content)
		}
	}
	return out
}

func TestStoreGetLoadsAndCaches(t *testing.T) {
	repo := &mockMemoryRepo{}
	_ = repo.Insert(context.Background(), types.MemoryRow{UserID: "u", CharacterID: "c", MemoryType: types.MemoryPreferences, Content: "喜欢猫"})
	_ = repo.Insert(context.Background(), types.MemoryRow{UserID: "u", CharacterID: "c", MemoryType: types.MemoryPreferences, Content: "喜欢猫"})
	s := NewStore(repo, StoreOptions{})

	got := s.Get(context.Background(), "u", "c")
	if len(got.Preferences) != 1 || got.Preferences[0] != "喜欢猫" {
		t.Fatalf("unexpected record: %#v", got)
	}
	s.Get(context.Background(), "u", "c")
	if repo.listCalls != 1 {
		t.Fatalf("expected a single load, got %d", repo.listCalls)
	}
}

func TestStoreGetCachesEmptyOnFailure(t *testing.T) {
	repo := &mockMemoryRepo{listErr: errors.New("db down")}
	failures := 0
	s := NewStore(repo, StoreOptions{OnPersistFailure: func(string) { failures++ }})

	for i := 0; i < 3; i++ {
		got := s.Get(context.Background(), "u", "c")
		if !got.Empty() || got.PersonalInfo == nil {
			t.Fatalf("expected empty three-category record, got %#v", got)
		}
	}
	if repo.listCalls != 1 || failures != 1 {
		t.Fatalf("expected one failed load, got %d calls %d failures", repo.listCalls, failures)
	}
}

func TestStoreUpdateReconcilesRows(t *testing.T) {
	repo := &mockMemoryRepo{}
	s := NewStore(repo, StoreOptions{})
	ctx := context.Background()

	s.Update(ctx, "u", "c", types.MemoryRecord{
		PersonalInfo: []string{"名字是小明"},
		Preferences:  []string{"喜欢猫", "喜欢咖啡"},
	})
	if got := repo.contents(types.MemoryPreferences); len(got) != 2 {
		t.Fatalf("expected 2 preference rows, got %v", got)
	}

	s.Update(ctx, "u", "c", types.MemoryRecord{
		Preferences: []string{"喜欢咖啡", "喜欢下雨天"},
	})
	prefs := repo.contents(types.MemoryPreferences)
	if len(prefs) != 2 || prefs[0] != "喜欢咖啡" || prefs[1] != "喜欢下雨天" {
		t.Fatalf("unexpected preference rows: %v", prefs)
	}
	if got := repo.contents(types.MemoryPersonalInfo); len(got) != 0 {
		t.Fatalf("removed facts should be deleted, got %v", got)
	}
}

func TestStoreUpdateKeepsCacheOnStoreFailure(t *testing.T) {
	repo := &mockMemoryRepo{insertErr: errors.New("write failed")}
	s := NewStore(repo, StoreOptions{})
	ctx := context.Background()

	s.Update(ctx, "u", "c", types.MemoryRecord{ImportantEvents: []string{"明天考试"}})
	got := s.Get(ctx, "u", "c")
	if len(got.ImportantEvents) != 1 || got.ImportantEvents[0] != "明天考试" {
		t.Fatalf("cache should stay authoritative, got %#v", got)
	}
}

func TestStoreMergeIsIdempotent(t *testing.T) {
	repo := &mockMemoryRepo{}
	s := NewStore(repo, StoreOptions{})
	ctx := context.Background()
	partial := types.MemoryRecord{
		PersonalInfo: []string{"叫小明"},
		Preferences:  []string{"喜欢猫", "喜欢猫"},
	}

	once := s.Merge(ctx, "u", "c", partial)
	twice := s.Merge(ctx, "u", "c", partial)
	if len(once.PersonalInfo) != 1 || len(once.Preferences) != 1 {
		t.Fatalf("unexpected merge result: %#v", once)
	}
	if len(twice.PersonalInfo) != 1 || len(twice.Preferences) != 1 {
		t.Fatalf("second merge should not duplicate: %#v", twice)
	}
	if got := repo.contents(types.MemoryPreferences); len(got) != 1 {
		t.Fatalf("expected single persisted row, got %v", got)
	}
}

func TestStoreMergeAppendsInOrder(t *testing.T) {
	s := NewStore(nil, StoreOptions{})
	ctx := context.Background()
	s.Update(ctx, "u", "c", types.MemoryRecord{Preferences: []string{"a"}})
	got := s.Merge(ctx, "u", "c", types.MemoryRecord{Preferences: []string{"b", "a", "c"}})
	if len(got.Preferences) != 3 || got.Preferences[0] != "a" || got.Preferences[1] != "b" || got.Preferences[2] != "c" {
		t.Fatalf("unexpected order: %v", got.Preferences)
	}
}

func TestStoreClearDropsCacheEvenOnFailure(t *testing.T) {
	repo := &mockMemoryRepo{}
	s := NewStore(repo, StoreOptions{})
	ctx := context.Background()
	s.AddFact(ctx, "u", "c", types.MemoryPreferences, "喜欢猫")

	repo.deleteErr = errors.New("db down")
	s.Clear(ctx, "u", "c")

	repo.deleteErr = nil
	repo.listErr = errors.New("db still down")
	if got := s.Get(ctx, "u", "c"); !got.Empty() {
		t.Fatalf("cleared key should reload, got %#v", got)
	}
}

func TestStoreFormattedEmpty(t *testing.T) {
	s := NewStore(nil, StoreOptions{})
	if got := s.Formatted(context.Background(), "u", "c"); got != "" {
		t.Fatalf("expected empty text, got %q", got)
	}
}

func TestStoreKeysAreIndependent(t *testing.T) {
	s := NewStore(nil, StoreOptions{})
	ctx := context.Background()
	s.AddFact(ctx, "u", "c1", types.MemoryPersonalInfo, "x")
	if got := s.Get(ctx, "u", "c2"); !got.Empty() {
		t.Fatalf("other key should be empty, got %#v", got)
	}
}
