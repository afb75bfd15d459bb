package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// FFmpegConfig locates the ffmpeg program and the capture input format.
type FFmpegConfig struct {
	Path string
	// InputFormat overrides the per-platform default (avfoundation, pulse, dshow).
	InputFormat string
}

func (c FFmpegConfig) bin() string {
	if p := strings.TrimSpace(c.Path); p != "" {
		return p
	}
	return "ffmpeg"
}

func (c FFmpegConfig) format() string {
	if f := strings.TrimSpace(c.InputFormat); f != "" {
		return f
	}
	return DefaultInputFormat()
}

// DefaultInputFormat returns the ffmpeg capture demuxer for this platform.
func DefaultInputFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "pulse"
	}
}

// inputArg builds the -i argument for a device on the given demuxer.
func inputArg(format, device string) string {
	switch format {
	case "avfoundation":
		if device == "" {
			device = "0"
		}
		return ":" + device
	case "dshow":
		return "audio=" + device
	default:
		if device == "" {
			return "default"
		}
		return device
	}
}

// captureArgs returns the ffmpeg arguments that stream raw mono s16le to stdout.
func captureArgs(format, device string, sampleRate int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", format, "-i", inputArg(format, device),
		"-ac", "1", "-ar", strconv.Itoa(sampleRate),
		"-f", "s16le", "-",
	}
}

// ConvertToWAV transcodes any ffmpeg-readable file to a mono WAV at
// sampleRate in a temp directory. The caller removes the returned path.
func ConvertToWAV(ctx context.Context, cfg FFmpegConfig, input string, sampleRate int) (string, error) {
	dir, err := os.MkdirTemp("", "minutes-convert-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	out := filepath.Join(dir, strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))+".wav")

	cmd := exec.CommandContext(ctx, cfg.bin(), "-hide_banner", "-loglevel", "error", "-y",
		"-i", input, "-ac", "1", "-ar", strconv.Itoa(sampleRate), "-f", "wav", out)
	setProcessGroup(cmd)
	if msg, err := cmd.CombinedOutput(); err != nil {
		os.RemoveAll(dir)
		return "", NewCaptureError(ErrCodeDecodeFailed,
			fmt.Sprintf("ffmpeg convert %s: %s", input, strings.TrimSpace(string(msg))), err)
	}
	return out, nil
}
