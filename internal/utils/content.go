package utils

import (
	"strings"

	"google.golang.org/genai"
)

// ExtractContentText concatenates the visible text parts of a model content.
// Thought parts are skipped so reasoning never reaches a reply or a parser.
func ExtractContentText(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range content.Parts {
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}
