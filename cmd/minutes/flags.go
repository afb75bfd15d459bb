package main

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/houzhh15/minutes/cmd/minutes/internal/config"
	"github.com/houzhh15/minutes/pkg/logger"
)

// addGlobalFlags 为 root 命令添加全局标志
func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", "", "配置文件 (默认: ~/.minutes/config.yaml，可缺失)")
	cmd.PersistentFlags().String("env-file", "", "dotenv 文件 (默认: ./.env，可缺失)")
	cmd.PersistentFlags().String("log-level", "", "日志级别: debug / info / warn / error")
	cmd.PersistentFlags().String("log-format", "", "日志格式: text / json")
	cmd.PersistentFlags().String("log-file", "", "同时写入按大小轮转的日志文件")
}

// addEngineFlags 转写引擎与分段标志
func addEngineFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("model", "m", "", "模型大小: tiny / base / small / medium / large-v3")
	f.StringP("language", "l", "", "语言提示 (如 ja / en，空为自动检测)")
	f.String("engine", "", "转写引擎: http / cli / openai / google / mock")
	f.String("engine-url", "", "go-whisper 服务地址或 OpenAI 兼容地址")
	f.Float64("threshold", 0, "VAD 能量阈值 (0, 1]")
	f.Duration("silence", 0, "静音多久结束一段话 (如 1.5s)")
	f.Duration("min-utterance", 0, "过滤短于该时长的噪声片段")
	f.Duration("max-utterance", 0, "单段最长时长，超过强制切分 (0 为不限)")
	f.Int("workers", 0, "并发转写数")
	f.String("journal", "", "会话日志库路径 (SQLite)")
	f.String("failure-marker", "", "转写失败片段在文本中的占位符")
	f.String("output-dir", "", "默认输出目录")
	f.StringP("output", "o", "", "转写文本输出路径")
	f.Bool("summarize", false, "转写结束后生成会议纪要 (<输出>.md)")
	addGenerationFlags(cmd)
}

// addLiveFlags 实时采集相关标志
func addLiveFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("device", "d", "", "采集设备 ID (见 minutes devices)")
	f.Duration("duration", 0, "最长录制时长 (0 为直到 Ctrl-C)")
	f.Bool("save-audio", false, "同时保存录音为 <输出>.wav")
	f.String("listen", "", "状态服务监听地址 (如 :8090)")
}

// addGenerationFlags 纪要生成标志
func addGenerationFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("backend", "", "生成后端: ollama / openai")
	f.String("endpoint", "", "生成后端地址")
	f.String("summary-model", "", "纪要模型")
	f.String("correction-model", "", "校对模型")
	f.Bool("correct", true, "是否先校对转写文本")
}

// flagBindings 标志名到配置字段的映射，只有显式设置的标志才覆盖配置
func flagBindings(c *config.Config) map[string]any {
	return map[string]any{
		"log-level":        &c.Log.Level,
		"log-format":       &c.Log.Format,
		"log-file":         &c.Log.File,
		"model":            &c.Engine.Model,
		"language":         &c.Engine.Language,
		"engine":           &c.Engine.Kind,
		"engine-url":       &c.Engine.URL,
		"threshold":        &c.VAD.Threshold,
		"silence":          &c.Segment.SilenceDuration,
		"min-utterance":    &c.Segment.MinUtterance,
		"max-utterance":    &c.Segment.MaxUtterance,
		"workers":          &c.Pipeline.Workers,
		"journal":          &c.Output.Journal,
		"failure-marker":   &c.Output.FailureMarker,
		"output-dir":       &c.Output.Dir,
		"summarize":        &c.Output.Summarize,
		"device":           &c.Audio.Device,
		"duration":         &c.Audio.MaxDuration,
		"save-audio":       &c.Output.SaveAudio,
		"listen":           &c.Server.Listen,
		"whole":            &c.Pipeline.Whole,
		"backend":          &c.Generation.Backend,
		"endpoint":         &c.Generation.Endpoint,
		"summary-model":    &c.Generation.Model,
		"correction-model": &c.Generation.CorrectionModel,
		"correct":          &c.Generation.Correct,
	}
}

// loadConfig 加载配置并叠加命令行标志，然后校验
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(config.LoadOptions{File: file, DotEnv: envFile})
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags 命令行标志覆盖配置
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	var problems []string
	for name, field := range flagBindings(cfg) {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := config.SetValue(field, f.Value.String()); err != nil {
			problems = append(problems, fmt.Sprintf("--%s: %v", name, err))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("invalid flags:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// initLogger 初始化全局日志
func initLogger(cfg *config.Config) (*slog.Logger, error) {
	log, err := logger.Init(cfg.LoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}
