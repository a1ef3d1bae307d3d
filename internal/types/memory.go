package types

import "time"

// MemoryCategory names one fact list of a MemoryRecord.
type MemoryCategory string

const (
	// MemoryPersonalInfo stores facts the user revealed about themselves.
	MemoryPersonalInfo MemoryCategory = "personal_info"
	// MemoryPreferences stores likes and dislikes.
	MemoryPreferences MemoryCategory = "preferences"
	// MemoryImportantEvents stores dated or notable events.
	MemoryImportantEvents MemoryCategory = "important_events"
)

// MemoryCategories lists categories in rendering order.
var MemoryCategories = []MemoryCategory{
	MemoryPersonalInfo,
	MemoryPreferences,
	MemoryImportantEvents,
}

// Valid reports whether c is a known category.
func (c MemoryCategory) Valid() bool {
	switch c {
	case MemoryPersonalInfo, MemoryPreferences, MemoryImportantEvents:
		return true
	default:
		return false
	}
}

// MemoryRecord holds the categorized facts known about a user for one character.
type MemoryRecord struct {
	PersonalInfo    []string `json:"personal_info"`
	Preferences     []string `json:"preferences"`
	ImportantEvents []string `json:"important_events"`
}

// NewMemoryRecord returns a record with all categories present and empty.
func NewMemoryRecord() MemoryRecord {
	return MemoryRecord{
		PersonalInfo:    []string{},
		Preferences:     []string{},
		ImportantEvents: []string{},
	}
}

// Facts returns the facts of a category.
func (r MemoryRecord) Facts(c MemoryCategory) []string {
	switch c {
	case MemoryPersonalInfo:
		return r.PersonalInfo
	case MemoryPreferences:
		return r.Preferences
	case MemoryImportantEvents:
		return r.ImportantEvents
	default:
		return nil
	}
}

// SetFacts replaces the facts of a category.
func (r *MemoryRecord) SetFacts(c MemoryCategory, facts []string) {
	switch c {
	case MemoryPersonalInfo:
		r.PersonalInfo = facts
	case MemoryPreferences:
		r.Preferences = facts
	case MemoryImportantEvents:
		r.ImportantEvents = facts
	}
}

// Empty reports whether every category is empty.
func (r MemoryRecord) Empty() bool {
	return len(r.PersonalInfo) == 0 && len(r.Preferences) == 0 && len(r.ImportantEvents) == 0
}

// Clone returns a deep copy with non-nil category slices.
func (r MemoryRecord) Clone() MemoryRecord {
	out := NewMemoryRecord()
	for _, c := range MemoryCategories {
		out.SetFacts(c, append([]string{}, r.Facts(c)...))
	}
	return out
}

// MemoryRow is one persisted fact.
type MemoryRow struct {
	ID          int64
	UserID      string
	CharacterID string
	MemoryType  MemoryCategory
	Content     string
	CreatedAt   time.Time
}
