package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/houzhh15/minutes/cmd/minutes/internal/audio"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "列出可用的音频采集设备",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if _, err := initLogger(cfg); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			devices, err := audio.ListDevices(ctx, cfg.FFmpeg())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "No audio input devices found.")
				return nil
			}
			def := defaultDevice(devices, cfg.Audio.Device)
			fmt.Fprintln(out, "Audio input devices:")
			for i, d := range devices {
				mark := " "
				if i == def {
					mark = "*"
				}
				fmt.Fprintf(out, " %s [%s] %s\n", mark, d.ID, d.Name)
			}
			return nil
		},
	}
}

// defaultDevice 返回将被使用的设备下标：配置指定的设备，否则系统默认设备，否则第一个
func defaultDevice(devices []audio.Device, configured string) int {
	if configured != "" {
		for i, d := range devices {
			if d.ID == configured || d.Name == configured {
				return i
			}
		}
		return -1
	}
	for i, d := range devices {
		if d.Kind == "audio-default" {
			return i
		}
	}
	if len(devices) > 0 {
		return 0
	}
	return -1
}
