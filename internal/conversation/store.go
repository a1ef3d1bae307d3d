// Package conversation keeps per-(user, character) dialogue history and affinity.
package conversation

import (
	"errors"
	"sync"

	"github.com/easeaico/rolechat/internal/types"
)

const (
	// DefaultMaxTurns caps the number of turns retained per conversation.
	DefaultMaxTurns = 50
	// MaxAffinityDelta bounds a single affinity change.
	MaxAffinityDelta = 5
	// MinAffinity and MaxAffinity bound the stored score.
	MinAffinity = 0
	MaxAffinity = 100
)

// ErrAffinityOutOfRange is returned by SetAffinity for values outside [0, 100].
var ErrAffinityOutOfRange = errors.New("affinity must be between 0 and 100")

type key struct {
	userID      string
	characterID string
}

type state struct {
	mu       sync.Mutex
	turns    []types.Turn
	affinity int
}

// Store holds conversation state in process memory.
type Store struct {
	mu       sync.RWMutex
	states   map[key]*state
	maxTurns int
}

// NewStore returns a Store retaining at most maxTurns turns per key.
func NewStore(maxTurns int) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Store{
		states:   make(map[key]*state),
		maxTurns: maxTurns,
	}
}

// state returns the entry for the key, creating it on first access.
func (s *Store) state(userID, characterID string) *state {
	k := key{userID: userID, characterID: characterID}

	s.mu.RLock()
	st, ok := s.states[k]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok = s.states[k]; ok {
		return st
	}
	st = &state{turns: []types.Turn{}}
	s.states[k] = st
	return st
}

// History returns a copy of the conversation turns in order.
func (s *Store) History(userID, characterID string) []types.Turn {
	st := s.state(userID, characterID)
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]types.Turn, len(st.turns))
	copy(out, st.turns)
	return out
}

// Len returns the number of retained turns.
func (s *Store) Len(userID, characterID string) int {
	st := s.state(userID, characterID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.turns)
}

// Append adds a turn, dropping the oldest turns beyond the cap.
func (s *Store) Append(userID, characterID string, role types.Role, content string) int {
	st := s.state(userID, characterID)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.turns = append(st.turns, types.Turn{Role: role, Content: content})
	if over := len(st.turns) - s.maxTurns; over > 0 {
		kept := make([]types.Turn, s.maxTurns)
		copy(kept, st.turns[over:])
		st.turns = kept
	}
	return len(st.turns)
}

// Reset empties the turn sequence for one conversation. Affinity is kept.
func (s *Store) Reset(userID, characterID string) {
	st := s.state(userID, characterID)
	st.mu.Lock()
	st.turns = []types.Turn{}
	st.mu.Unlock()
}

// ResetAll empties every conversation of userID, or of all users when
// userID is empty. It returns the number of conversations touched.
func (s *Store) ResetAll(userID string) int {
	s.mu.RLock()
	targets := make([]*state, 0, len(s.states))
	for k, st := range s.states {
		if userID == "" || k.userID == userID {
			targets = append(targets, st)
		}
	}
	s.mu.RUnlock()

	for _, st := range targets {
		st.mu.Lock()
		st.turns = []types.Turn{}
		st.mu.Unlock()
	}
	return len(targets)
}

// Affinity returns the current score, 0 for a new conversation.
func (s *Store) Affinity(userID, characterID string) int {
	st := s.state(userID, characterID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.affinity
}

// SetAffinity overwrites the score. Values outside [0, 100] are rejected.
func (s *Store) SetAffinity(userID, characterID string, value int) (int, error) {
	if value < MinAffinity || value > MaxAffinity {
		return 0, ErrAffinityOutOfRange
	}
	st := s.state(userID, characterID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.affinity = value
	return st.affinity, nil
}

// ApplyAffinityDelta adds a bounded delta and returns the new score and the
// change actually applied.
func (s *Store) ApplyAffinityDelta(userID, characterID string, delta int) (int, int) {
	delta = ClampDelta(delta)
	st := s.state(userID, characterID)
	st.mu.Lock()
	defer st.mu.Unlock()
	before := st.affinity
	st.affinity = ClampAffinity(st.affinity + delta)
	return st.affinity, st.affinity - before
}

// ClampAffinity bounds a score to [0, 100].
func ClampAffinity(score int) int {
	switch {
	case score < MinAffinity:
		return MinAffinity
	case score > MaxAffinity:
		return MaxAffinity
	default:
		return score
	}
}

// ClampDelta bounds a single change to [-5, 5].
func ClampDelta(delta int) int {
	switch {
	case delta < -MaxAffinityDelta:
		return -MaxAffinityDelta
	case delta > MaxAffinityDelta:
		return MaxAffinityDelta
	default:
		return delta
	}
}
