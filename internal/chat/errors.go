package chat

import (
	"fmt"
	"net/http"
)

// FailureKind names the terminal failure of a turn.
type FailureKind string

const (
	FailureMissingAPIKey    FailureKind = "missing_api_key"
	FailureMissingCharacter FailureKind = "missing_character"
	FailureGeneration       FailureKind = "generation_failed"
	FailureUnexpected       FailureKind = "unexpected_error"
)

// TurnError is the caller-visible failure of a turn.
type TurnError struct {
	Kind       FailureKind
	Message    string
	Details    string
	StatusCode int
	// Traceback is set only in debug mode.
	Traceback string
	Err       error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Kind, e.Details, e.StatusCode)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// FailureResponse is the wire shape of a failed turn.
type FailureResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Details    string `json:"details"`
	StatusCode int    `json:"status_code"`
	Traceback  string `json:"traceback,omitempty"`
}

// Response renders e for the caller.
func (e *TurnError) Response() FailureResponse {
	return FailureResponse{
		Success:    false,
		Error:      e.Message,
		Details:    e.Details,
		StatusCode: e.StatusCode,
		Traceback:  e.Traceback,
	}
}

func missingAPIKey() *TurnError {
	return &TurnError{
		Kind:       FailureMissingAPIKey,
		Message:    "缺少 API 密钥",
		Details:    "请在设置页面中添加对应模型的 API 密钥",
		StatusCode: http.StatusBadRequest,
	}
}

func missingCharacter(characterID string, err error) *TurnError {
	return &TurnError{
		Kind:       FailureMissingCharacter,
		Message:    "缺少角色设定",
		Details:    fmt.Sprintf("找不到 ID 为 %s 的角色设定", characterID),
		StatusCode: http.StatusNotFound,
		Err:        err,
	}
}
