package orchestrator

import (
	"path/filepath"
	"strings"
	"time"
)

const stampLayout = "20060102_150405"

// DefaultOutput names the transcript file when none is given: the input
// with a .txt extension in file mode, and recording_<stamp>.txt or
// realtime_<stamp>.txt for live sessions. A non-empty dir overrides the
// directory.
func DefaultOutput(mode Mode, input, dir string, now time.Time) string {
	var name string
	switch mode {
	case ModeFile:
		name = withExt(input, ".txt")
		if name == input {
			name = withExt(input, ".transcript.txt")
		}
	case ModeRecord:
		name = "recording_" + now.Format(stampLayout) + ".txt"
	default:
		name = "realtime_" + now.Format(stampLayout) + ".txt"
	}
	if dir != "" {
		return filepath.Join(dir, filepath.Base(name))
	}
	return name
}

// SummaryPath is where the notes for a transcript are written.
func SummaryPath(transcriptPath string) string {
	return withExt(transcriptPath, ".md")
}

// AudioPath is where --save-audio writes the captured audio.
func AudioPath(transcriptPath string) string {
	return withExt(transcriptPath, ".wav")
}

func withExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
