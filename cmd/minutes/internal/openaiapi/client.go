// Package openaiapi builds OpenAI-compatible clients and classifies their
// errors for retry decisions.
package openaiapi

import (
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// NewClient returns a client for the OpenAI API or any compatible endpoint.
func NewClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if u := strings.TrimRight(strings.TrimSpace(baseURL), "/"); u != "" {
		cfg.BaseURL = u
	}
	return openai.NewClientWithConfig(cfg)
}

// StatusCode extracts the HTTP status from an API or request error, 0 when
// the request never got a response.
func StatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// Retryable reports whether a failed call may succeed when repeated: no
// response at all, rate limiting, or a server error.
func Retryable(err error) bool {
	code := StatusCode(err)
	return code == 0 || code == http.StatusTooManyRequests || code >= 500
}

// Unreachable reports whether the call failed before any response arrived.
func Unreachable(err error) bool {
	return StatusCode(err) == 0
}
