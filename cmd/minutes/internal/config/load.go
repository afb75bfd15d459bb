package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "MINUTES_"

// LoadOptions 指定配置文件位置，为空时使用默认位置（不存在则跳过）
type LoadOptions struct {
	File   string
	DotEnv string
}

// DefaultFile 返回 ~/.minutes/config.yaml
func DefaultFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".minutes", "config.yaml")
}

// Load 依次叠加默认值、配置文件、.env 文件和环境变量
// 显式指定的文件必须存在；默认位置的文件可以缺失
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	file, required := opts.File, true
	if file == "" {
		file, required = DefaultFile(), false
	}
	if err := loadFile(cfg, file, required); err != nil {
		return nil, err
	}

	dotenv, required := opts.DotEnv, true
	if dotenv == "" {
		dotenv, required = ".env", false
	}
	if err := loadDotEnv(dotenv, required); err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile 从 YAML 文件读取配置，未知字段视为错误
func loadFile(cfg *Config, path string, required bool) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// loadDotEnv 加载 .env 文件，已存在的环境变量不会被覆盖
func loadDotEnv(path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// envBindings 环境变量名（不含前缀）到配置字段的映射
func (c *Config) envBindings() map[string]any {
	return map[string]any{
		"SAMPLE_RATE":           &c.Audio.SampleRate,
		"FRAME_DURATION":        &c.Audio.FrameDuration,
		"DEVICE":                &c.Audio.Device,
		"FFMPEG_PATH":           &c.Audio.FFmpegPath,
		"INPUT_FORMAT":          &c.Audio.InputFormat,
		"MAX_DURATION":          &c.Audio.MaxDuration,
		"VAD_THRESHOLD":         &c.VAD.Threshold,
		"SILENCE_DURATION":      &c.Segment.SilenceDuration,
		"MIN_UTTERANCE":         &c.Segment.MinUtterance,
		"MAX_UTTERANCE":         &c.Segment.MaxUtterance,
		"ENGINE":                &c.Engine.Kind,
		"ENGINE_URL":            &c.Engine.URL,
		"ENGINE_PROGRAM":        &c.Engine.Program,
		"ENGINE_WORK_DIR":       &c.Engine.WorkDir,
		"ENGINE_API_KEY":        &c.Engine.APIKey,
		"ENGINE_API_MODEL":      &c.Engine.APIModel,
		"GOOGLE_CREDENTIALS":    &c.Engine.Credentials,
		"MODEL":                 &c.Engine.Model,
		"LANGUAGE":              &c.Engine.Language,
		"PROMPT":                &c.Engine.Prompt,
		"TEMPERATURE":           &c.Engine.Temperature,
		"ENGINE_TIMEOUT":        &c.Engine.Timeout,
		"ENGINE_MAX_RETRIES":    &c.Engine.MaxRetries,
		"HEALTH_INTERVAL":       &c.Engine.HealthInterval,
		"HEALTH_FAIL_THRESHOLD": &c.Engine.HealthFailThreshold,
		"DEGRADE":               &c.Engine.Degrade,
		"WORKERS":               &c.Pipeline.Workers,
		"QUEUE_SOFT_CAP":        &c.Pipeline.QueueSoftCap,
		"DRAIN_TIMEOUT":         &c.Pipeline.DrainTimeout,
		"WARMUP":                &c.Pipeline.Warmup,
		"GENERATION_BACKEND":    &c.Generation.Backend,
		"GENERATION_ENDPOINT":   &c.Generation.Endpoint,
		"GENERATION_API_KEY":    &c.Generation.APIKey,
		"SUMMARY_MODEL":         &c.Generation.Model,
		"CORRECTION_MODEL":      &c.Generation.CorrectionModel,
		"CORRECT":               &c.Generation.Correct,
		"CHUNK_SIZE":            &c.Generation.ChunkSize,
		"CONTEXT_SIZE":          &c.Generation.ContextSize,
		"GENERATION_TIMEOUT":    &c.Generation.Timeout,
		"OUTPUT_DIR":            &c.Output.Dir,
		"JOURNAL":               &c.Output.Journal,
		"FAILURE_MARKER":        &c.Output.FailureMarker,
		"LOG_LEVEL":             &c.Log.Level,
		"LOG_FORMAT":            &c.Log.Format,
		"LOG_FILE":              &c.Log.File,
		"ENV":                   &c.Log.Environment,
		"LISTEN":                &c.Server.Listen,
	}
}

// applyEnv 用环境变量覆盖配置，收集所有解析错误
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var problems []string
	for name, field := range c.envBindings() {
		v, ok := lookup(EnvPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := SetValue(field, v); err != nil {
			problems = append(problems, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid environment:\n  - %s", strings.Join(sortStrings(problems), "\n  - "))
	}
	return nil
}

// SetValue 按字段类型解析字符串并赋值
func SetValue(field any, raw string) error {
	raw = strings.TrimSpace(raw)
	switch p := field.(type) {
	case *string:
		*p = raw
	case *int:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		*p = v
	case *uint:
		v, err := strconv.ParseUint(raw, 10, 0)
		if err != nil {
			return err
		}
		*p = uint(v)
	case *float64:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		*p = v
	case *bool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		*p = v
	case *time.Duration:
		v, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*p = v
	default:
		return fmt.Errorf("unsupported field type %T", field)
	}
	return nil
}
