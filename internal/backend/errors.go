package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"
)

// ErrorClass is a machine-readable failure category.
type ErrorClass string

const (
	ClassTransport         ErrorClass = "transport"
	ClassUpstreamStatus    ErrorClass = "upstream_status"
	ClassMalformedResponse ErrorClass = "malformed_response"
	ClassSafetyBlocked     ErrorClass = "safety_blocked"
	ClassInvalidRequest    ErrorClass = "invalid_request"
	ClassInternal          ErrorClass = "internal"
)

// GenerationError is the only error type a Backend returns.
type GenerationError struct {
	Class      ErrorClass
	Provider   string
	StatusCode int
	Detail     string
	Err        error
}

func (e *GenerationError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s generation failed (%s, status %d): %s", e.Provider, e.Class, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s generation failed (%s): %s", e.Provider, e.Class, e.Detail)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// HTTPStatus is the status reported to the caller: the provider's own
// status when there is one.
func (e *GenerationError) HTTPStatus() int {
	if e.StatusCode >= 400 {
		return e.StatusCode
	}
	switch e.Class {
	case ClassInvalidRequest:
		return http.StatusBadRequest
	case ClassInternal:
		return http.StatusInternalServerError
	case ClassTransport:
		if errors.Is(e.Err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
	}
	return http.StatusBadGateway
}

// classify maps any provider error to a GenerationError.
func classify(provider string, err error) *GenerationError {
	if err == nil {
		return nil
	}
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr
	}

	out := &GenerationError{Class: ClassTransport, Provider: provider, Detail: err.Error(), Err: err}

	if errors.Is(err, context.DeadlineExceeded) {
		out.Detail = "request timed out"
		return out
	}

	var oaiErr *openai.Error
	var claudeErr *anthropic.Error
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &oaiErr):
		out.Class = ClassUpstreamStatus
		out.StatusCode = oaiErr.StatusCode
		if oaiErr.Message != "" {
			out.Detail = oaiErr.Message
		}
	case errors.As(err, &claudeErr):
		out.Class = ClassUpstreamStatus
		out.StatusCode = claudeErr.StatusCode
		if msg := claudeErrorMessage(claudeErr.RawJSON()); msg != "" {
			out.Detail = msg
		}
	case errors.As(err, &apiErr):
		fillAPIError(out, apiErr)
	case errors.As(err, &apiErrPtr):
		fillAPIError(out, *apiErrPtr)
	}
	return out
}

// claudeErrorMessage reads error.message from an Anthropic error body.
func claudeErrorMessage(raw string) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(raw), &body) != nil {
		return ""
	}
	return body.Error.Message
}

func fillAPIError(out *GenerationError, apiErr genai.APIError) {
	out.Class = ClassUpstreamStatus
	out.StatusCode = apiErr.Code
	if apiErr.Message != "" {
		out.Detail = apiErr.Message
	}
	if isSafetyText(apiErr.Message) || isSafetyText(apiErr.Status) {
		out.Class = ClassSafetyBlocked
	}
}

func isSafetyText(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "safety") || strings.Contains(s, "harm")
}
