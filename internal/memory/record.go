package memory

import (
	"slices"
	"strings"

	"github.com/easeaico/rolechat/internal/types"
)

const formattedHeading = "关于用户的记忆:"

var categoryLabels = map[types.MemoryCategory]string{
	types.MemoryPersonalInfo:    "用户个人信息:",
	types.MemoryPreferences:     "用户偏好:",
	types.MemoryImportantEvents: "重要对话或事件:",
}

// MergeRecords appends facts of partial missing from existing, per
// category and in order. It reports whether anything was added.
func MergeRecords(existing, partial types.MemoryRecord) (types.MemoryRecord, bool) {
	merged := existing.Clone()
	changed := false
	for _, category := range types.MemoryCategories {
		facts := merged.Facts(category)
		for _, fact := range partial.Facts(category) {
			fact = strings.TrimSpace(fact)
			if fact == "" || slices.Contains(facts, fact) {
				continue
			}
			facts = append(facts, fact)
			changed = true
		}
		merged.SetFacts(category, facts)
	}
	return merged, changed
}

// Normalize trims facts and removes blanks and duplicates, keeping first
// occurrences.
func Normalize(record types.MemoryRecord) types.MemoryRecord {
	out, _ := MergeRecords(types.NewMemoryRecord(), record)
	return out
}

// Format renders non-empty categories as bullet lists in a fixed order.
func Format(record types.MemoryRecord) string {
	var sections []string
	for _, category := range types.MemoryCategories {
		facts := record.Facts(category)
		if len(facts) == 0 {
			continue
		}
		var sb strings.Builder
		sb.WriteString(categoryLabels[category])
		for _, fact := range facts {
			sb.WriteString("\n- ")
			sb.WriteString(fact)
		}
		sections = append(sections, sb.String())
	}
	if len(sections) == 0 {
		return ""
	}
	return formattedHeading + "\n\n" + strings.Join(sections, "\n\n")
}
