package audio

import (
	"context"
	"os/exec"
	"regexp"
	"strings"
)

// Device is one capture input reported by ffmpeg.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

var (
	// [AVFoundation indev @ 0x...] [0] MacBook Pro Microphone
	reAVFDevice = regexp.MustCompile(`\[(\d+)\]\s+(.+)`)
	// [dshow @ 0x...] "Microphone (Realtek Audio)" (audio)
	reDShowDevice = regexp.MustCompile(`"([^"]+)"\s+\((audio|video)\)`)
	// * alsa_input.pci-0000_00_1f.3.analog-stereo [Built-in Audio Analog Stereo] (none)
	rePulseSource = regexp.MustCompile(`^\s*(\*?)\s*(\S+)\s+\[(.+?)\]`)
)

// ListDevices asks ffmpeg for the audio inputs of the capture demuxer.
func ListDevices(ctx context.Context, cfg FFmpegConfig) ([]Device, error) {
	format := cfg.format()
	var args []string
	switch format {
	case "avfoundation", "dshow":
		args = []string{"-hide_banner", "-f", format, "-list_devices", "true", "-i", ""}
	default:
		args = []string{"-hide_banner", "-sources", format}
	}
	cmd := exec.CommandContext(ctx, cfg.bin(), args...)
	// ffmpeg exits non-zero when listing because there is no real input
	out, err := cmd.CombinedOutput()
	if len(out) == 0 && err != nil {
		return nil, NewCaptureError(ErrCodeDeviceUnavailable, "list devices", err)
	}
	return ParseDeviceList(format, string(out)), nil
}

// ParseDeviceList extracts audio inputs from ffmpeg's listing output.
func ParseDeviceList(format, output string) []Device {
	devices := []Device{}
	lines := strings.Split(output, "\n")
	switch format {
	case "avfoundation":
		section := ""
		for _, ln := range lines {
			switch {
			case strings.Contains(ln, "AVFoundation video devices"):
				section = "video"
				continue
			case strings.Contains(ln, "AVFoundation audio devices"):
				section = "audio"
				continue
			}
			// skip the "[AVFoundation indev @ 0x..]" prefix before matching
			body := ln
			if i := strings.Index(ln, "] "); i >= 0 && strings.Contains(ln[:i], "@") {
				body = ln[i+2:]
			}
			if m := reAVFDevice.FindStringSubmatch(strings.TrimSpace(body)); m != nil && section == "audio" {
				devices = append(devices, Device{ID: m[1], Name: strings.TrimSpace(m[2]), Kind: "audio"})
			}
		}
	case "dshow":
		for _, ln := range lines {
			if m := reDShowDevice.FindStringSubmatch(ln); m != nil && m[2] == "audio" {
				devices = append(devices, Device{ID: m[1], Name: m[1], Kind: "audio"})
			}
		}
	default:
		for _, ln := range lines {
			if strings.HasPrefix(strings.TrimSpace(ln), "Auto-detected") {
				continue
			}
			m := rePulseSource.FindStringSubmatch(ln)
			if m == nil || strings.Contains(m[2], ".monitor") {
				continue
			}
			d := Device{ID: m[2], Name: m[3], Kind: "audio"}
			if m[1] == "*" {
				d.Kind = "audio-default"
			}
			devices = append(devices, d)
		}
	}
	return devices
}
