// Package reply normalizes generated replies into narration plus dialogue.
package reply

import (
	"strings"

	"github.com/easeaico/rolechat/internal/types"
)

type narrationRule struct {
	keywords  []string
	narration string
}

// narrationRules are matched in order against the character's personality.
var narrationRules = []narrationRule{
	{keywords: []string{"害羞", "內向", "内向", "shy", "introvert"}, narration: "轻声说道，眼神略显羞涩"},
	{keywords: []string{"活潑", "活泼", "開朗", "开朗", "熱情", "热情", "energetic", "cheerful", "lively", "outgoing"}, narration: "精神抖擞地说，脸上挂着明朗的笑容"},
	{keywords: []string{"冷靜", "冷静", "沉穩", "沉稳", "calm", "composed", "steady"}, narration: "沉稳地回应，表情平静而专注"},
	{keywords: []string{"傲嬌", "傲娇", "高傲", "proud", "tsundere", "aloof"}, narration: "微微扬起下巴，假装不太在意地说"},
	{keywords: []string{"溫柔", "温柔", "體貼", "体贴", "gentle", "caring", "kind"}, narration: "温柔地微笑着，眼中流露出关切之情"},
}

const defaultNarration = "看着你，眼神中带着一丝好奇"

// Format trims raw, prepends a narration segment when the reply has none and
// puts every narration segment on its own line. Format is idempotent.
func Format(raw string, character *types.Character) string {
	text := strings.TrimSpace(raw)

	if !hasMarkup(text) {
		lead := Narration(character)
		if text == "" {
			text = lead
		} else {
			text = lead + "\n" + text
		}
	}

	return breakAroundNarration(text)
}

// breakAroundNarration puts a newline after every ")*" and before every "*("
// that is not already on a line boundary. A "*" shared by ")*(" closes the
// segment. Delimiters are ASCII, so scanning bytes is safe for UTF-8 text.
func breakAroundNarration(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 8)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '*' {
			b.WriteByte(c)
			continue
		}
		closes := i > 0 && text[i-1] == ')'
		opens := !closes && i+1 < len(text) && text[i+1] == '('
		if opens && i > 0 && text[i-1] != '\n' {
			b.WriteByte('\n')
		}
		b.WriteByte(c)
		if closes && i+1 < len(text) && text[i+1] != '\n' {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Narration renders the synthesized narration segment for a character.
func Narration(character *types.Character) string {
	name := ""
	personality := ""
	if character != nil {
		name = character.Name
		personality = strings.ToLower(character.Personality)
	}

	text := defaultNarration
	for _, rule := range narrationRules {
		if containsAny(personality, rule.keywords) {
			text = rule.narration
			break
		}
	}
	return "*(" + name + text + ")*"
}

func hasMarkup(text string) bool {
	return strings.Contains(text, "*(") || strings.Contains(text, ")*") || strings.Contains(text, "**")
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
