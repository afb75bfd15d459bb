package orchestrator

import (
	"errors"
	"fmt"
	"time"
)

// ErrBusy is returned when a session is started while another is running.
var ErrBusy = errors.New("a session is already running")

// ErrorCode 表示会话级错误类型代码
type ErrorCode string

const (
	// ErrCodeCaptureFailed 音频源失败（设备不可用、流中断、文件无法解码）
	ErrCodeCaptureFailed ErrorCode = "CAPTURE_FAILED"

	// ErrCodeSinkFailed 转写稿持久化失败（磁盘满、权限）
	ErrCodeSinkFailed ErrorCode = "SINK_FAILED"

	// ErrCodeSummaryFailed 纪要生成失败，转写稿已保存
	ErrCodeSummaryFailed ErrorCode = "SUMMARY_FAILED"

	// ErrCodeInvalidConfig 配置无法用于启动会话
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
)

// SessionError 表示会话级错误，已追加的转写稿不受影响
type SessionError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Output    string    `json:"output,omitempty"`
	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Error 实现 error 接口
func (e *SessionError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Output != "" {
		msg += " (transcript kept at " + e.Output + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap 实现错误链支持
func (e *SessionError) Unwrap() error {
	return e.Cause
}

// NewSessionError 创建新的会话错误
func NewSessionError(code ErrorCode, message, output string, cause error) *SessionError {
	return &SessionError{
		Code:      code,
		Message:   message,
		Output:    output,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// CodeOf 提取错误代码，非会话错误返回空
func CodeOf(err error) ErrorCode {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
