// Package memory keeps categorized facts about users per character.
package memory

import (
	"context"
	"fmt"

	"github.com/easeaico/rolechat/internal/types"
)

// Service runs extraction and merges the result into the Store.
type Service struct {
	store     *Store
	extractor Extractor
}

// NewService returns a Service. A nil extractor uses KeywordExtractor.
func NewService(store *Store, extractor Extractor) *Service {
	if extractor == nil {
		extractor = KeywordExtractor{}
	}
	return &Service{store: store, extractor: extractor}
}

// Store returns the underlying Store.
func (s *Service) Store() *Store {
	return s.store
}

// Learn extracts facts from recent turns and merges them into the record
// for (userID, characterID). It returns the number of facts extracted.
func (s *Service) Learn(ctx context.Context, userID, characterID string, in ExtractInput) (int, error) {
	extracted, err := s.extractor.Extract(ctx, in)
	if err != nil {
		return 0, fmt.Errorf("failed to extract memory: %w", err)
	}
	n := countFacts(extracted)
	if n == 0 {
		return 0, nil
	}
	s.store.Merge(ctx, userID, characterID, extracted)
	return n, nil
}

func countFacts(r types.MemoryRecord) int {
	return len(r.PersonalInfo) + len(r.Preferences) + len(r.ImportantEvents)
}
