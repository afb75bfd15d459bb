package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 定义日志初始化配置
// Level 支持 debug/info/warn/error，Format 支持 text/json
// Environment 为 prod 时强制 JSON 输出
// File 非空时同时写入按大小轮转的日志文件
type Config struct {
	Level       string
	Format      string
	Environment string
	WithSource  bool
	File        string
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
}

var (
	global *slog.Logger
	once   sync.Once
)

func levelFromString(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.New("invalid log level: " + level)
	}
}

// rotatingWriter 返回轮转文件 writer，参数为 0 时使用默认值
func rotatingWriter(cfg Config) io.Writer {
	maxSize, maxBackups, maxAge := cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays
	if maxSize <= 0 {
		maxSize = 100
	}
	if maxBackups <= 0 {
		maxBackups = 10
	}
	if maxAge <= 0 {
		maxAge = 30
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
		Compress:   true,
	}
}

// New 根据配置创建新的 slog.Logger，不设置全局实例
// 日志写入 stderr，使 stdout 保留给转写文本输出
func New(cfg Config) (*slog.Logger, error) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter 与 New 相同，但允许指定基础输出
func NewWithWriter(cfg Config, base io.Writer) (*slog.Logger, error) {
	lvl, err := levelFromString(cfg.Level)
	if err != nil {
		return nil, err
	}

	out := base
	if cfg.File != "" {
		out = io.MultiWriter(base, rotatingWriter(cfg))
	}

	handlerOpts := &slog.HandlerOptions{Level: lvl, AddSource: cfg.WithSource}
	var handler slog.Handler
	if strings.ToLower(cfg.Environment) == "prod" || strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	return slog.New(handler), nil
}

// Init 初始化全局日志实例，重复调用将返回首次创建的 logger
func Init(cfg Config) (*slog.Logger, error) {
	var initErr error
	once.Do(func() {
		global, initErr = New(cfg)
		if initErr == nil {
			slog.SetDefault(global)
		}
	})
	return global, initErr
}

// L 返回已初始化的全局 logger，未初始化时返回 slog 默认 logger
func L() *slog.Logger {
	if global == nil {
		return slog.Default()
	}
	return global
}

// Discard 返回丢弃所有输出的 logger，供测试和未配置日志的调用方使用
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// LogUtterance 记录单个语音片段处理事件的结构化日志
// component: vad/segment/asr/assemble/summary
// action: start/success/error/retry/filtered
// seq: 片段序号
// durationMs: 处理耗时（毫秒）
// errorCode: 错误代码（可选）
func LogUtterance(logger *slog.Logger, component, action string, seq int, durationMs int64, errorCode string) {
	attrs := []slog.Attr{
		slog.String("component", component),
		slog.String("action", action),
		slog.Int("seq", seq),
		slog.Int64("duration_ms", durationMs),
	}

	if errorCode != "" {
		attrs = append(attrs, slog.String("error_code", errorCode))
		logger.LogAttrs(context.Background(), slog.LevelError, "utterance processing error", attrs...)
	} else {
		logger.LogAttrs(context.Background(), slog.LevelDebug, "utterance processing event", attrs...)
	}
}
