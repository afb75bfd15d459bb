package whisper

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorCode classifies transcription failures.
type ErrorCode string

const (
	ErrCodeEngineUnavailable ErrorCode = "ENGINE_UNAVAILABLE"
	ErrCodeEngineHTTP        ErrorCode = "ENGINE_HTTP_ERROR"
	ErrCodeEngineCLI         ErrorCode = "ENGINE_CLI_ERROR"
	ErrCodeDecodeFailure     ErrorCode = "DECODE_FAILURE"
	ErrCodeInvalidModel      ErrorCode = "INVALID_MODEL"
	ErrCodeCanceled          ErrorCode = "CANCELED"
)

// TranscriptionError is reported per utterance and never aborts a session.
type TranscriptionError struct {
	Code      ErrorCode
	Engine    string
	Seq       int
	Message   string
	Cause     error
	Timestamp time.Time
}

func (e *TranscriptionError) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Code)
	if e.Engine != "" {
		prefix += " " + e.Engine
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *TranscriptionError) Unwrap() error { return e.Cause }

// NewTranscriptionError builds a TranscriptionError stamped with the current time.
func NewTranscriptionError(code ErrorCode, engine, message string, cause error) *TranscriptionError {
	return &TranscriptionError{Code: code, Engine: engine, Message: message, Cause: cause, Timestamp: time.Now()}
}

// CodeOf extracts the error code for logs and metrics.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var te *TranscriptionError
	if errors.As(err, &te) {
		return te.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrCodeCanceled
	}
	return ErrCodeEngineUnavailable
}

// AsTranscriptionError normalizes any engine failure into a
// TranscriptionError tagged with the utterance sequence.
func AsTranscriptionError(err error, engine string, seq int) *TranscriptionError {
	var te *TranscriptionError
	if errors.As(err, &te) {
		if te.Seq == 0 {
			te.Seq = seq
		}
		return te
	}
	te = NewTranscriptionError(CodeOf(err), engine, "transcription failed", err)
	te.Seq = seq
	return te
}
