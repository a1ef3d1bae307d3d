package utils

import (
	"sync"
	"testing"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("a")
			v := counter
			counter = v + 1
			unlock()
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("expected 50, got %d", counter)
	}
	if len(km.locks) != 0 {
		t.Fatalf("expected lock table to drain, got %d entries", len(km.locks))
	}
}

func TestKeyedMutexDifferentKeysIndependent(t *testing.T) {
	km := NewKeyedMutex()
	unlockA := km.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()
	<-done
}

func TestConversationKeyDistinguishesSplits(t *testing.T) {
	if ConversationKey("ab", "c") == ConversationKey("a", "bc") {
		t.Fatalf("keys should differ")
	}
}
