// Package prompt renders role-play instructions from character profiles.
package prompt

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/easeaico/rolechat/internal/types"
)

// Input is everything a backend needs to build its payload.
type Input struct {
	Character   *types.Character
	History     []types.Turn
	UserMessage string
	MemoryText  string
}

// BuildSystemPrompt renders the role-play instruction for a character.
// Instruction overrides carried on the character are ignored.
func BuildSystemPrompt(character *types.Character, memoryText string) (string, error) {
	if character == nil {
		return "", fmt.Errorf("character is required")
	}

	data := struct {
		Character *types.Character
		Memory    string
	}{
		Character: character.Sanitized(),
		Memory:    strings.TrimSpace(memoryText),
	}

	var buf bytes.Buffer
	if err := systemPromptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to build system prompt: %w", err)
	}
	return buf.String(), nil
}

// Window returns at most size recent turns, excluding a trailing user turn
// that repeats userMessage so the caller can add the current message once.
func Window(history []types.Turn, size int, userMessage string) []types.Turn {
	end := len(history)
	if end > 0 {
		last := history[end-1]
		if last.Role == types.RoleUser && last.Content == userMessage {
			end--
		}
	}
	start := 0
	if size > 0 && end > size {
		start = end - size
	}
	out := make([]types.Turn, end-start)
	copy(out, history[start:end])
	return out
}
