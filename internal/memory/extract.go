package memory

import (
	"context"
	"strings"

	"github.com/easeaico/rolechat/internal/types"
)

// ExtractionWindow is the number of recent turns an extractor inspects.
const ExtractionWindow = 10

// ExtractInput is the material for one extraction pass.
type ExtractInput struct {
	APIKey    string
	Provider  string
	Character *types.Character
	Turns     []types.Turn
}

// Extractor derives candidate facts from recent turns.
type Extractor interface {
	Extract(ctx context.Context, in ExtractInput) (types.MemoryRecord, error)
}

type cueRule struct {
	category types.MemoryCategory
	cues     []string
	template string
}

var cueRules = []cueRule{
	{
		category: types.MemoryPersonalInfo,
		cues:     []string{"我是", "我叫", "我的名字", "my name is", "i am ", "i'm "},
		template: "用户介绍了自己：",
	},
	{
		category: types.MemoryPreferences,
		cues:     []string{"我喜欢", "我爱", "我讨厌", "i like", "i love", "i enjoy", "i hate"},
		template: "用户表达了喜好：",
	},
	{
		category: types.MemoryImportantEvents,
		cues:     []string{"昨天", "今天", "明天", "下周", "上周", "yesterday", "today", "tomorrow"},
		template: "用户提到的事件：",
	},
}

// KeywordExtractor matches fixed self-identification, liking and temporal
// cues in the user's recent messages.
type KeywordExtractor struct{}

func (KeywordExtractor) Extract(ctx context.Context, in ExtractInput) (types.MemoryRecord, error) {
	record := types.NewMemoryRecord()
	for _, text := range RecentUserMessages(in.Turns) {
		lower := strings.ToLower(text)
		for _, rule := range cueRules {
			if !containsCue(lower, rule.cues) {
				continue
			}
			record.SetFacts(rule.category, append(record.Facts(rule.category), rule.template+text))
		}
	}
	return Normalize(record), nil
}

// RecentUserMessages returns user-authored texts from the last
// ExtractionWindow turns.
func RecentUserMessages(turns []types.Turn) []string {
	if len(turns) > ExtractionWindow {
		turns = turns[len(turns)-ExtractionWindow:]
	}
	var out []string
	for _, t := range turns {
		if t.Role == types.RoleUser && strings.TrimSpace(t.Content) != "" {
			out = append(out, strings.TrimSpace(t.Content))
		}
	}
	return out
}

func containsCue(text string, cues []string) bool {
	for _, c := range cues {
		if strings.Contains(text, c) {
			return true
		}
	}
	return false
}
