package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/houzhh15/minutes/cmd/minutes/internal/journal"
)

func newSessionsCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "sessions",
		Short: "查看会话日志库中的历史会话",
	}
	c.PersistentFlags().String("journal", "", "会话日志库路径 (默认: 配置值或 ~/.minutes/journal.sqlite)")
	c.AddCommand(newSessionsListCmd(), newSessionsExportCmd())
	return c
}

func newSessionsListCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "list",
		Short: "列出最近的会话",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJournal(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			sessions, err := store.Sessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tMODE\tSTATUS\tSEGMENTS\tSTARTED\tDURATION\tOUTPUT")
			for _, s := range sessions {
				dur := "-"
				if s.EndedAt != nil {
					dur = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
					s.ID, s.Mode, s.Status, s.Segments, s.StartedAt.Local().Format("2006-01-02 15:04:05"), dur, s.Output)
			}
			return tw.Flush()
		},
	}
	c.Flags().Int("limit", 20, "最多显示的会话数")
	return c
}

func newSessionsExportCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "export <id>",
		Short: "导出会话转写文本 (可用于崩溃后恢复)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJournal(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			text, err := store.Export(cmd.Context(), args[0])
			if errors.Is(err, journal.ErrNotFound) {
				return fmt.Errorf("session %s not found", args[0])
			}
			if err != nil {
				return err
			}
			output, _ := cmd.Flags().GetString("output")
			if output == "" {
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			}
			if err := os.WriteFile(output, []byte(text+"\n"), 0o644); err != nil {
				return fmt.Errorf("write transcript: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Transcript saved to %s\n", output)
			return nil
		},
	}
	c.Flags().StringP("output", "o", "", "写入文件而不是标准输出")
	return c
}

// openJournal 按 --journal、配置、默认路径的顺序打开会话日志库
func openJournal(cmd *cobra.Command) (*journal.Store, error) {
	path, _ := cmd.Flags().GetString("journal")
	if path == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		path = cfg.Output.Journal
	}
	if path == "" {
		path = journal.DefaultPath()
	}
	return journal.Open(path)
}
