package utils

import (
	"testing"

	"google.golang.org/genai"
)

func TestDecodeJSONObject(t *testing.T) {
	var got struct {
		Preferences []string `json:"preferences"`
	}
	if err := DecodeJSONObject(`{"preferences":["猫"]}`, &got); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got.Preferences) != 1 || got.Preferences[0] != "猫" {
		t.Fatalf("unexpected value: %#v", got)
	}
}

func TestDecodeJSONObjectWithWrapper(t *testing.T) {
	var got map[string]any
	if err := DecodeJSONObject("```json\n{\"a\":1}\n```", &got); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got["a"] != float64(1) {
		t.Fatalf("unexpected value: %#v", got)
	}
}

func TestDecodeJSONObjectInvalid(t *testing.T) {
	var got map[string]any
	if err := DecodeJSONObject("no json here", &got); err == nil {
		t.Fatalf("expected error for missing object")
	}
}

func TestExtractContentTextSkipsThoughts(t *testing.T) {
	content := &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{
		{Text: "（思考中）", Thought: true},
		{Text: "*(笑)*"},
		nil,
		{Text: "\n你好"},
	}}
	if got := ExtractContentText(content); got != "*(笑)*\n你好" {
		t.Fatalf("unexpected text: %q", got)
	}
	if ExtractContentText(nil) != "" {
		t.Fatalf("nil content should yield empty text")
	}
}
