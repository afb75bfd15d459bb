package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "minutes",
		Short: "minutes - 会议录音转写与纪要生成",
		Long: "将录音文件或麦克风实时音频转写为文本，并通过本地或远程大模型生成结构化会议纪要。\n" +
			"配置优先级（低 → 高）：内置默认值 < ~/.minutes/config.yaml < .env < MINUTES_* 环境变量 < 命令行标志。",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addGlobalFlags(rootCmd)

	rootCmd.AddCommand(newFileCmd())
	rootCmd.AddCommand(newRecordCmd())
	rootCmd.AddCommand(newRealtimeCmd())
	rootCmd.AddCommand(newDevicesCmd())
	rootCmd.AddCommand(newSummarizeCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newConfigCmd())
	return rootCmd
}
