package utils

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONObject returns the outermost {...} span of raw, dropping any
// surrounding prose or code fences.
func ExtractJSONObject(raw string) string {
	clean := strings.TrimSpace(raw)
	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start >= 0 && end > start {
		return clean[start : end+1]
	}
	return clean
}

// DecodeJSONObject decodes the JSON object embedded in raw into out.
func DecodeJSONObject(raw string, out any) error {
	if err := json.Unmarshal([]byte(ExtractJSONObject(raw)), out); err != nil {
		return fmt.Errorf("failed to parse model output: %w", err)
	}
	return nil
}
