package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/houzhh15/minutes/cmd/minutes/internal/api"
	"github.com/houzhh15/minutes/cmd/minutes/internal/config"
	"github.com/houzhh15/minutes/cmd/minutes/internal/generation"
	"github.com/houzhh15/minutes/cmd/minutes/internal/journal"
	"github.com/houzhh15/minutes/cmd/minutes/internal/orchestrator"
	"github.com/houzhh15/minutes/cmd/minutes/internal/summary"
)

const shutdownTimeout = 5 * time.Second

func newFileCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "file <audio>",
		Short: "转写录音文件",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, orchestrator.ModeFile, args[0])
		},
	}
	addEngineFlags(c)
	c.Flags().Bool("whole", false, "整个文件一次提交给引擎，不做分段")
	return c
}

func newRecordCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "record",
		Short: "从麦克风录音并转写，Ctrl-C 结束",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, orchestrator.ModeRecord, "")
		},
	}
	addEngineFlags(c)
	addLiveFlags(c)
	return c
}

func newRealtimeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "realtime",
		Short: "实时转写，每段话识别后立即输出",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, orchestrator.ModeRealtime, "")
		},
	}
	addEngineFlags(c)
	addLiveFlags(c)
	return c
}

// runSession 组装依赖并运行一次会话
// 第一次 Ctrl-C 停止采集并等待已排队的片段，第二次直接退出
func runSession(cmd *cobra.Command, mode orchestrator.Mode, input string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := initLogger(cfg)
	if err != nil {
		return err
	}
	log.Debug("configuration resolved", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	engine, err := orchestrator.NewEngine(context.Background(), cfg, log)
	if err != nil {
		return err
	}
	engine.Start(context.Background())
	defer engine.Stop()

	deps := orchestrator.Deps{Engine: engine, Log: log}
	if mode == orchestrator.ModeRealtime {
		deps.Console = cmd.OutOrStdout()
	}
	if cfg.Output.Journal != "" {
		store, err := journal.Open(cfg.Output.Journal)
		if err != nil {
			return err
		}
		defer store.Close()
		deps.Journal = store
	}
	if cfg.Output.Summarize {
		p, err := newSummaryPipeline(cfg, log)
		if err != nil {
			return err
		}
		deps.Summarizer = p
	}

	orch := orchestrator.New(cfg, deps)
	var srv *api.Server
	defer func() { closeSession(orch, srv, log) }()

	if cfg.Server.Listen != "" {
		gin.SetMode(gin.ReleaseMode)
		srv, err = api.Start(cfg.Server.Listen, api.NewRouter(orch, log), log)
		if err != nil {
			return fmt.Errorf("start status server: %w", err)
		}
	}

	output, _ := cmd.Flags().GetString("output")
	if mode != orchestrator.ModeFile {
		fmt.Fprintln(cmd.ErrOrStderr(), "Recording... press Ctrl-C to stop.")
	}

	var res *orchestrator.Result
	switch mode {
	case orchestrator.ModeFile:
		res, err = orch.RunFile(ctx, input, output)
	case orchestrator.ModeRecord:
		res, err = orch.RunRecord(ctx, output)
	default:
		res, err = orch.RunRealtime(ctx, output)
	}
	if res != nil {
		printResult(cmd.OutOrStdout(), res)
	}
	return err
}

// closeSession 先断开 SSE 订阅者，再关闭状态服务，否则 Shutdown 会等待事件流超时
func closeSession(orch *orchestrator.Orchestrator, srv *api.Server, log *slog.Logger) {
	orch.Close()
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("status server shutdown", "error", err)
	}
}

func newSummaryPipeline(cfg *config.Config, log *slog.Logger) (*summary.Pipeline, error) {
	backend, err := generation.New(cfg.GenerationSettings(), log)
	if err != nil {
		return nil, err
	}
	return summary.NewPipeline(backend, cfg.SummaryOptions(), log), nil
}

// printResult 输出会话结果摘要
func printResult(w io.Writer, res *orchestrator.Result) {
	fmt.Fprintf(w, "Transcript saved to %s (%d segments", res.Output, res.Segments)
	if res.Failed > 0 {
		fmt.Fprintf(w, ", %d failed", res.Failed)
	}
	if res.Degraded > 0 {
		fmt.Fprintf(w, ", %d degraded", res.Degraded)
	}
	if res.Abandoned > 0 {
		fmt.Fprintf(w, ", %d abandoned", res.Abandoned)
	}
	fmt.Fprintf(w, ", %s of audio)\n", res.Audio.Round(time.Second))
	if res.AudioPath != "" {
		fmt.Fprintf(w, "Audio saved to %s\n", res.AudioPath)
	}
	if res.SummaryPath != "" {
		fmt.Fprintf(w, "Summary saved to %s\n", res.SummaryPath)
	}
	if res.SessionID != "" {
		fmt.Fprintf(w, "Session %s\n", res.SessionID)
	}
}
