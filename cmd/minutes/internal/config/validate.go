package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/houzhh15/minutes/cmd/minutes/internal/generation"
	"github.com/houzhh15/minutes/cmd/minutes/internal/whisper"
)

// Validate 验证配置的有效性，一次性返回全部问题
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	// 1. 音频
	if c.Audio.SampleRate <= 0 {
		add("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.FrameDuration <= 0 {
		add("audio.frame_duration must be positive, got %s", c.Audio.FrameDuration)
	}
	if c.Audio.MaxDuration < 0 {
		add("audio.max_duration must not be negative")
	}

	// 2. VAD 阈值 (0, 1]
	if !(c.VAD.Threshold > 0) || c.VAD.Threshold > 1 {
		add("vad.threshold must be in (0, 1], got %v", c.VAD.Threshold)
	}

	// 3. 分段
	if err := c.SegmentConfig().Validate(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			add("segment: %s", line)
		}
	}

	// 4. 转写引擎
	if !contains(whisper.Kinds, strings.ToLower(c.Engine.Kind)) {
		add("engine.kind %q is invalid (must be: %s)", c.Engine.Kind, strings.Join(whisper.Kinds, ", "))
	}
	if _, err := whisper.ParseModelSize(c.Engine.Model); err != nil {
		add("engine.model %q is invalid (must be: tiny, base, small, medium, large-v3)", c.Engine.Model)
	}
	if strings.EqualFold(c.Engine.Kind, whisper.KindHTTP) && c.Engine.URL == "" {
		add("engine.url is required for the http engine")
	}
	if c.Engine.Temperature < 0 || c.Engine.Temperature > 1 {
		add("engine.temperature must be in [0, 1], got %v", c.Engine.Temperature)
	}
	if c.Engine.Timeout < 0 {
		add("engine.timeout must not be negative")
	}
	if c.Engine.Degrade && c.Engine.HealthInterval <= 0 {
		add("engine.health_interval must be positive when degradation is enabled")
	}

	// 5. 流水线
	if c.Pipeline.Workers < 1 {
		add("pipeline.workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.QueueSoftCap < 0 {
		add("pipeline.queue_soft_cap must not be negative")
	}
	if c.Pipeline.DrainTimeout <= 0 {
		add("pipeline.drain_timeout must be positive, got %s", c.Pipeline.DrainTimeout)
	}

	// 6. 纪要生成
	backends := []string{generation.KindOllama, generation.KindOpenAI}
	if !contains(backends, strings.ToLower(c.Generation.Backend)) {
		add("generation.backend %q is invalid (must be: %s)", c.Generation.Backend, strings.Join(backends, ", "))
	}
	if c.Generation.Model == "" {
		add("generation.model is required")
	}
	if c.Generation.ChunkSize <= 0 {
		add("generation.chunk_size must be positive, got %d", c.Generation.ChunkSize)
	}
	if c.Generation.ContextSize < 0 || (c.Generation.ChunkSize > 0 && c.Generation.ContextSize >= c.Generation.ChunkSize) {
		add("generation.context_size must be in [0, chunk_size), got %d", c.Generation.ContextSize)
	}

	// 7. 日志
	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	if !contains(validLevels, strings.ToLower(c.Log.Level)) {
		add("log.level %q is invalid (must be: debug, info, warn, error)", c.Log.Level)
	}
	validFormats := []string{"text", "json"}
	if !contains(validFormats, strings.ToLower(c.Log.Format)) {
		add("log.format %q is invalid (must be: text, json)", c.Log.Format)
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// String 打印配置（脱敏）
func (c *Config) String() string {
	return fmt.Sprintf(`Configuration:
  Audio:
    - Sample Rate: %d
    - Frame Duration: %s
    - Device: %s
    - Max Duration: %s
  VAD Threshold: %v
  Segment:
    - Silence: %s
    - Min Utterance: %s
    - Max Utterance: %s
  Engine:
    - Kind: %s
    - URL: %s
    - Model: %s
    - Language: %s
    - API Key: %s
    - Degrade: %t
  Pipeline:
    - Workers: %d
    - Queue Soft Cap: %d
    - Drain Timeout: %s
  Generation:
    - Backend: %s
    - Endpoint: %s
    - Model: %s
    - Correction Model: %s
    - API Key: %s
  Output:
    - Dir: %s
    - Journal: %s
  Log:
    - Level: %s
    - Format: %s
  Server Listen: %s`,
		c.Audio.SampleRate, c.Audio.FrameDuration, orDefault(c.Audio.Device), c.Audio.MaxDuration,
		c.VAD.Threshold,
		c.Segment.SilenceDuration, c.Segment.MinUtterance, c.Segment.MaxUtterance,
		c.Engine.Kind, c.Engine.URL, c.Engine.Model, orDefault(c.Engine.Language), maskSecret(c.Engine.APIKey), c.Engine.Degrade,
		c.Pipeline.Workers, c.Pipeline.QueueSoftCap, c.Pipeline.DrainTimeout,
		c.Generation.Backend, c.Generation.Endpoint, c.Generation.Model, c.Generation.CorrectionModel, maskSecret(c.Generation.APIKey),
		orDefault(c.Output.Dir), orDefault(c.Output.Journal),
		c.Log.Level, c.Log.Format,
		orDefault(c.Server.Listen),
	)
}

// maskSecret 对敏感信息进行脱敏
func maskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}

func orDefault(v string) string {
	if v == "" {
		return "<default>"
	}
	return v
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func sortStrings(s []string) []string {
	sort.Strings(s)
	return s
}
