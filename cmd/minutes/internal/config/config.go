// Package config 定义 minutes 的统一配置结构
// 优先级（低 → 高）：内置默认值 < YAML 配置文件 < .env 文件 < MINUTES_* 环境变量 < 命令行标志
package config

import (
	"time"

	"github.com/houzhh15/minutes/cmd/minutes/internal/audio"
	"github.com/houzhh15/minutes/cmd/minutes/internal/generation"
	"github.com/houzhh15/minutes/cmd/minutes/internal/segment"
	"github.com/houzhh15/minutes/cmd/minutes/internal/summary"
	"github.com/houzhh15/minutes/cmd/minutes/internal/vad"
	"github.com/houzhh15/minutes/cmd/minutes/internal/whisper"
	"github.com/houzhh15/minutes/pkg/logger"
	"github.com/houzhh15/minutes/pkg/retry"
)

// DefaultDrainTimeout 停止后等待已排队片段转写完成的默认时长
const DefaultDrainTimeout = 30 * time.Second

// Config 统一配置结构，会话开始时解析一次并显式传递
type Config struct {
	Audio      AudioConfig      `yaml:"audio"`
	VAD        VADConfig        `yaml:"vad"`
	Segment    SegmentConfig    `yaml:"segment"`
	Engine     EngineConfig     `yaml:"engine"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Generation GenerationConfig `yaml:"generation"`
	Output     OutputConfig     `yaml:"output"`
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
}

// AudioConfig 音频采集配置
type AudioConfig struct {
	SampleRate    int           `yaml:"sample_rate"`
	FrameDuration time.Duration `yaml:"frame_duration"`
	Device        string        `yaml:"device"`
	FFmpegPath    string        `yaml:"ffmpeg_path"`
	InputFormat   string        `yaml:"input_format"` // avfoundation / pulse / alsa / dshow
	MaxDuration   time.Duration `yaml:"max_duration"` // 0 表示直到取消
}

// VADConfig 语音活动检测配置
type VADConfig struct {
	Threshold float64 `yaml:"threshold"`
}

// SegmentConfig 分段配置
type SegmentConfig struct {
	SilenceDuration time.Duration `yaml:"silence_duration"`
	MinUtterance    time.Duration `yaml:"min_utterance"`
	MaxUtterance    time.Duration `yaml:"max_utterance"`
}

// EngineConfig 转写引擎配置
type EngineConfig struct {
	Kind                string        `yaml:"kind"` // http / cli / openai / google / mock
	URL                 string        `yaml:"url"`
	Program             string        `yaml:"program"`
	WorkDir             string        `yaml:"work_dir"`
	APIKey              string        `yaml:"api_key"`
	APIModel            string        `yaml:"api_model"`
	Credentials         string        `yaml:"credentials"`
	Model               string        `yaml:"model"` // tiny / base / small / medium / large-v3
	Language            string        `yaml:"language"`
	Prompt              string        `yaml:"prompt"`
	Temperature         float64       `yaml:"temperature"`
	Timeout             time.Duration `yaml:"timeout"`
	MaxRetries          uint          `yaml:"max_retries"`
	HealthInterval      time.Duration `yaml:"health_interval"`
	HealthFailThreshold int           `yaml:"health_fail_threshold"`
	Degrade             bool          `yaml:"degrade"`
}

// PipelineConfig 转写流水线配置
type PipelineConfig struct {
	Workers      int           `yaml:"workers"`
	QueueSoftCap int           `yaml:"queue_soft_cap"`
	DrainTimeout time.Duration `yaml:"drain_timeout"`
	Warmup       bool          `yaml:"warmup"`
	Whole        bool          `yaml:"whole"`
}

// GenerationConfig 纪要生成配置
type GenerationConfig struct {
	Backend         string        `yaml:"backend"` // ollama / openai
	Endpoint        string        `yaml:"endpoint"`
	APIKey          string        `yaml:"api_key"`
	Model           string        `yaml:"model"`
	CorrectionModel string        `yaml:"correction_model"`
	Correct         bool          `yaml:"correct"`
	ChunkSize       int           `yaml:"chunk_size"`
	ContextSize     int           `yaml:"context_size"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      uint          `yaml:"max_retries"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	Dir           string `yaml:"dir"`
	Journal       string `yaml:"journal"` // 为空时不记录会话日志库
	FailureMarker string `yaml:"failure_marker"`
	SaveAudio     bool   `yaml:"save_audio"`
	Summarize     bool   `yaml:"summarize"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"` // text / json
	Environment string `yaml:"environment"`
	File        string `yaml:"file"`
}

// ServerConfig 状态服务配置
type ServerConfig struct {
	Listen string `yaml:"listen"` // 为空时不启动
}

// Default 返回内置默认配置
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:    audio.DefaultSampleRate,
			FrameDuration: audio.DefaultFrameDuration,
			FFmpegPath:    "ffmpeg",
		},
		VAD: VADConfig{Threshold: vad.DefaultThreshold},
		Segment: SegmentConfig{
			SilenceDuration: segment.DefaultSilenceDuration,
		},
		Engine: EngineConfig{
			Kind:                whisper.KindHTTP,
			URL:                 "http://localhost:8082",
			Program:             "whisper",
			Model:               string(whisper.DefaultModelSize),
			Language:            "ja",
			Timeout:             5 * time.Minute,
			MaxRetries:          3,
			HealthInterval:      30 * time.Second,
			HealthFailThreshold: 3,
			Degrade:             true,
		},
		Pipeline: PipelineConfig{
			Workers:      2,
			QueueSoftCap: 32,
			DrainTimeout: DefaultDrainTimeout,
			Warmup:       true,
		},
		Generation: GenerationConfig{
			Backend:         generation.KindOllama,
			Endpoint:        generation.DefaultOllamaURL,
			Model:           summary.DefaultModel,
			CorrectionModel: summary.DefaultCorrectionModel,
			Correct:         true,
			ChunkSize:       summary.DefaultChunkSize,
			ContextSize:     summary.DefaultContextSize,
			Timeout:         10 * time.Minute,
			MaxRetries:      3,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "text",
			Environment: "dev",
		},
	}
}

// FrameSize 每帧采样数
func (c *Config) FrameSize() int {
	return audio.FrameSize(c.Audio.SampleRate, c.Audio.FrameDuration)
}

// FFmpeg 返回 ffmpeg 配置
func (c *Config) FFmpeg() audio.FFmpegConfig {
	return audio.FFmpegConfig{Path: c.Audio.FFmpegPath, InputFormat: c.Audio.InputFormat}
}

// SegmentConfig 返回分段器配置
func (c *Config) SegmentConfig() segment.Config {
	return segment.Config{
		SilenceDuration: c.Segment.SilenceDuration,
		MinUtterance:    c.Segment.MinUtterance,
		MaxUtterance:    c.Segment.MaxUtterance,
	}
}

func policy(maxTries uint) retry.Policy {
	p := retry.DefaultPolicy()
	if maxTries > 0 {
		p.MaxTries = maxTries
	}
	return p
}

// EngineSettings 返回转写引擎构造参数
func (c *Config) EngineSettings() whisper.EngineSettings {
	return whisper.EngineSettings{
		Kind:        c.Engine.Kind,
		URL:         c.Engine.URL,
		Program:     c.Engine.Program,
		WorkDir:     c.Engine.WorkDir,
		APIKey:      c.Engine.APIKey,
		APIModel:    c.Engine.APIModel,
		Credentials: c.Engine.Credentials,
		Retry:       policy(c.Engine.MaxRetries),
	}
}

// TranscribeOptions 返回单次转写参数
func (c *Config) TranscribeOptions() *whisper.TranscribeOptions {
	model, err := whisper.ParseModelSize(c.Engine.Model)
	if err != nil {
		model = whisper.DefaultModelSize
	}
	return &whisper.TranscribeOptions{
		Model:       model,
		Language:    c.Engine.Language,
		Prompt:      c.Engine.Prompt,
		Temperature: c.Engine.Temperature,
		Timeout:     c.Engine.Timeout,
	}
}

// GenerationSettings 返回生成后端构造参数
func (c *Config) GenerationSettings() generation.Settings {
	return generation.Settings{
		Kind:     c.Generation.Backend,
		Endpoint: c.Generation.Endpoint,
		APIKey:   c.Generation.APIKey,
		Retry:    policy(c.Generation.MaxRetries),
	}
}

// SummaryOptions 返回纪要流水线参数
func (c *Config) SummaryOptions() summary.Options {
	return summary.Options{
		Model:           c.Generation.Model,
		CorrectionModel: c.Generation.CorrectionModel,
		Correct:         c.Generation.Correct,
		ChunkSize:       c.Generation.ChunkSize,
		ContextSize:     c.Generation.ContextSize,
		Timeout:         c.Generation.Timeout,
	}
}

// LoggerConfig 返回日志配置
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:       c.Log.Level,
		Format:      c.Log.Format,
		Environment: c.Log.Environment,
		File:        c.Log.File,
	}
}
