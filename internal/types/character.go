package types

import "time"

// Character is the profile a conversation role-plays.
type Character struct {
	ID             string `json:"id" yaml:"id"`
	Name           string `json:"name" yaml:"name"`
	Gender         string `json:"gender,omitempty" yaml:"gender"`
	Age            string `json:"age,omitempty" yaml:"age"`
	Job            string `json:"job,omitempty" yaml:"job"`
	Personality    string `json:"personality,omitempty" yaml:"personality"`
	SpeakingStyle  string `json:"speakingStyle,omitempty" yaml:"speaking_style"`
	Likes          string `json:"likes,omitempty" yaml:"likes"`
	Dislikes       string `json:"dislikes,omitempty" yaml:"dislikes"`
	Quote          string `json:"quote,omitempty" yaml:"quote"`
	Description    string `json:"description,omitempty" yaml:"description"`
	BasicInfo      string `json:"basicInfo,omitempty" yaml:"basic_info"`
	FirstChatScene string `json:"firstChatScene,omitempty" yaml:"first_chat_scene"`
	FirstChatLine  string `json:"firstChatLine,omitempty" yaml:"first_chat_line"`
	Avatar         string `json:"avatar,omitempty" yaml:"avatar"`
	// SystemPrompt is a caller-supplied instruction override. It is never
	// rendered into a prompt; Sanitized drops it.
	SystemPrompt string    `json:"system,omitempty" yaml:"system"`
	CreatedAt    time.Time `json:"createdAt,omitempty" yaml:"-"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty" yaml:"-"`
}

// Sanitized returns a copy without instruction override fields.
func (c *Character) Sanitized() *Character {
	if c == nil {
		return nil
	}
	clean := *c
	clean.SystemPrompt = ""
	return &clean
}
