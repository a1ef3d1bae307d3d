package conversation

import (
	"fmt"
	"sync"
	"testing"

	"github.com/easeaico/rolechat/internal/types"
)

func TestAppendScenario(t *testing.T) {
	s := NewStore(0)
	if got := s.History("u", "c"); len(got) != 0 {
		t.Fatalf("expected empty history, got %#v", got)
	}

	s.Append("u", "c", types.RoleUser, "Hi")
	history := s.History("u", "c")
	if len(history) != 1 || history[0].Role != types.RoleUser || history[0].Content != "Hi" {
		t.Fatalf("unexpected history: %#v", history)
	}

	if n := s.Append("u", "c", types.RoleAssistant, "*(smiles)*\nHello"); n != 2 {
		t.Fatalf("expected length 2, got %d", n)
	}
}

func TestAppendKeepsLastFiftyInOrder(t *testing.T) {
	s := NewStore(DefaultMaxTurns)
	for i := 0; i < 137; i++ {
		s.Append("u", "c", types.RoleUser, fmt.Sprintf("m%d", i))
		if n := s.Len("u", "c"); n > DefaultMaxTurns {
			t.Fatalf("history exceeded cap: %d", n)
		}
	}
	history := s.History("u", "c")
	if len(history) != DefaultMaxTurns {
		t.Fatalf("expected %d turns, got %d", DefaultMaxTurns, len(history))
	}
	for i, turn := range history {
		want := fmt.Sprintf("m%d", 137-DefaultMaxTurns+i)
		if turn.Content != want {
			t.Fatalf("turn %d: expected %s, got %s", i, want, turn.Content)
		}
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	s := NewStore(0)
	s.Append("u", "c", types.RoleUser, "a")
	h := s.History("u", "c")
	h[0].Content = "mutated"
	if s.History("u", "c")[0].Content != "a" {
		t.Fatalf("history should not alias internal state")
	}
}

func TestResetKeepsAffinity(t *testing.T) {
	s := NewStore(0)
	s.Append("u", "c", types.RoleUser, "a")
	if _, err := s.SetAffinity("u", "c", 40); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	s.Reset("u", "c")
	if n := s.Len("u", "c"); n != 0 {
		t.Fatalf("expected empty history, got %d", n)
	}
	if a := s.Affinity("u", "c"); a != 40 {
		t.Fatalf("expected affinity 40, got %d", a)
	}
}

func TestResetAllScopedToUser(t *testing.T) {
	s := NewStore(0)
	s.Append("u1", "c1", types.RoleUser, "a")
	s.Append("u1", "c2", types.RoleUser, "b")
	s.Append("u2", "c1", types.RoleUser, "c")

	if n := s.ResetAll("u1"); n != 2 {
		t.Fatalf("expected 2 conversations reset, got %d", n)
	}
	if s.Len("u1", "c1") != 0 || s.Len("u1", "c2") != 0 {
		t.Fatalf("u1 conversations should be empty")
	}
	if s.Len("u2", "c1") != 1 {
		t.Fatalf("u2 conversation should be untouched")
	}

	s.ResetAll("")
	if s.Len("u2", "c1") != 0 {
		t.Fatalf("global reset should clear u2")
	}
}

func TestAffinityDefaultsToZero(t *testing.T) {
	s := NewStore(0)
	if a := s.Affinity("new", "c"); a != 0 {
		t.Fatalf("expected 0, got %d", a)
	}
}

func TestApplyAffinityDeltaClamps(t *testing.T) {
	cases := []struct {
		name    string
		start   int
		delta   int
		want    int
		applied int
	}{
		{name: "upper bound", start: 98, delta: 5, want: 100, applied: 2},
		{name: "lower bound", start: 2, delta: -5, want: 0, applied: -2},
		{name: "delta clamped", start: 50, delta: 40, want: 55, applied: 5},
		{name: "negative delta clamped", start: 50, delta: -9, want: 45, applied: -5},
		{name: "zero", start: 10, delta: 0, want: 10, applied: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStore(0)
			if _, err := s.SetAffinity("u", "c", tc.start); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			got, applied := s.ApplyAffinityDelta("u", "c", tc.delta)
			if got != tc.want || applied != tc.applied {
				t.Fatalf("expected %d (%+d), got %d (%+d)", tc.want, tc.applied, got, applied)
			}
		})
	}
}

func TestSetAffinityRejectsOutOfRange(t *testing.T) {
	s := NewStore(0)
	for _, v := range []int{-1, 101} {
		if _, err := s.SetAffinity("u", "c", v); err != ErrAffinityOutOfRange {
			t.Fatalf("expected ErrAffinityOutOfRange for %d, got %v", v, err)
		}
	}
	if a := s.Affinity("u", "c"); a != 0 {
		t.Fatalf("rejected write should not change affinity, got %d", a)
	}
}

func TestConcurrentAppendsToDifferentKeys(t *testing.T) {
	s := NewStore(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				s.Append(fmt.Sprintf("u%d", i), "c", types.RoleUser, "x")
				s.ApplyAffinityDelta(fmt.Sprintf("u%d", i), "c", 1)
			}
		}(i)
	}
	wg.Wait()
	for i := 0; i < 8; i++ {
		u := fmt.Sprintf("u%d", i)
		if s.Len(u, "c") != 20 || s.Affinity(u, "c") != 20 {
			t.Fatalf("%s: unexpected state len=%d affinity=%d", u, s.Len(u, "c"), s.Affinity(u, "c"))
		}
	}
}
