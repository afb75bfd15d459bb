// Package generation defines the text generation boundary used by the
// summarization pipeline and its local (Ollama) and remote (OpenAI-compatible)
// adapters.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Request is one generation call.
type Request struct {
	// System is the instruction message; may be empty.
	System string
	// Prompt is the user message.
	Prompt string
	// Model is the backend model identifier.
	Model string
	// JSON asks the backend to answer with a single JSON object.
	JSON bool
	// Timeout bounds the call; zero means the backend default.
	Timeout time.Duration
}

// Backend generates text from a prompt. Implementations report failures as
// *GenerationError.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// ErrorCode classifies generation failures.
type ErrorCode string

const (
	// ErrCodeUnreachable means no usable response arrived (network error,
	// timeout, rate limit, or server error after retries).
	ErrCodeUnreachable ErrorCode = "BACKEND_UNREACHABLE"
	// ErrCodeRejected means the backend refused the request (4xx).
	ErrCodeRejected ErrorCode = "BACKEND_REJECTED"
	// ErrCodeMalformed means a response arrived but could not be used.
	ErrCodeMalformed ErrorCode = "MALFORMED_OUTPUT"
)

// GenerationError reports a failed generation call.
type GenerationError struct {
	Code      ErrorCode
	Backend   string
	Model     string
	Message   string
	Cause     error
	Timestamp time.Time
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Backend)
	if e.Model != "" {
		msg += "(" + e.Model + ")"
	}
	msg += ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error { return e.Cause }

// NewGenerationError builds a GenerationError stamped with the current time.
func NewGenerationError(code ErrorCode, backend, model, message string, cause error) *GenerationError {
	return &GenerationError{
		Code:      code,
		Backend:   backend,
		Model:     model,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// CodeOf returns the code of a GenerationError, or ErrCodeUnreachable for
// any other failure.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ErrCodeUnreachable
}

// IsUnreachable reports whether err means the backend could not be reached.
func IsUnreachable(err error) bool { return err != nil && CodeOf(err) == ErrCodeUnreachable }

// IsMalformed reports whether the backend answered with unusable output.
func IsMalformed(err error) bool { return err != nil && CodeOf(err) == ErrCodeMalformed }

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
