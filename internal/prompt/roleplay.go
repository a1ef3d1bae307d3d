package prompt

import (
	"bytes"
	"fmt"

	"github.com/easeaico/rolechat/internal/types"
)

// BuildTranscript renders a single text prompt: the instruction, the last
// window turns of history and the current user message.
func BuildTranscript(in Input, window int) (string, error) {
	system, err := BuildSystemPrompt(in.Character, in.MemoryText)
	if err != nil {
		return "", err
	}

	data := struct {
		System      string
		Character   *types.Character
		History     []types.Turn
		UserMessage string
	}{
		System:      system,
		Character:   in.Character.Sanitized(),
		History:     Window(in.History, window, in.UserMessage),
		UserMessage: in.UserMessage,
	}

	var buf bytes.Buffer
	if err := transcriptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to build transcript: %w", err)
	}
	return buf.String(), nil
}
