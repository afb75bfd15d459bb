package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/houzhh15/minutes/cmd/minutes/internal/orchestrator"
)

func newSummarizeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "summarize <transcript>",
		Short: "根据转写文本生成会议纪要 (Markdown)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, err := initLogger(cfg)
			if err != nil {
				return err
			}

			input := args[0]
			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("read transcript: %w", err)
			}
			output, _ := cmd.Flags().GetString("output")
			if output == "" {
				output = orchestrator.SummaryPath(input)
			}

			p, err := newSummaryPipeline(cfg, log)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			doc, err := orchestrator.WriteSummary(ctx, p, string(data), output)
			if err != nil {
				return fmt.Errorf("summarize %s: %w", input, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Summary saved to %s\n", output)
			if missing := doc.Missing(); len(missing) > 0 {
				names := make([]string, len(missing))
				for i, k := range missing {
					names[i] = k.Title()
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: the model did not produce: %s\n", strings.Join(names, ", "))
			}
			return nil
		},
	}
	c.Flags().StringP("output", "o", "", "纪要输出路径 (默认: <输入>.md)")
	addGenerationFlags(c)
	return c
}
