package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode classifies audio failures.
type ErrorCode string

const (
	ErrCodeCaptureFailed     ErrorCode = "CAPTURE_FAILED"
	ErrCodeDeviceUnavailable ErrorCode = "DEVICE_UNAVAILABLE"
	ErrCodeDecodeFailed      ErrorCode = "DECODE_FAILED"
)

// ErrStopped is returned by sources after Stop when no buffered audio remains.
var ErrStopped = errors.New("audio source stopped")

// CaptureError is fatal to the session that owns the source.
type CaptureError struct {
	Code      ErrorCode
	Message   string
	Cause     error
	Timestamp time.Time
}

func (e *CaptureError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *CaptureError) Unwrap() error { return e.Cause }

// NewCaptureError builds a CaptureError stamped with the current time.
func NewCaptureError(code ErrorCode, message string, cause error) *CaptureError {
	return &CaptureError{Code: code, Message: message, Cause: cause, Timestamp: time.Now()}
}

// IsCaptureError reports whether err carries a CaptureError.
func IsCaptureError(err error) bool {
	var ce *CaptureError
	return errors.As(err, &ce)
}
