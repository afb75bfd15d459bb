package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/minutes/cmd/minutes/internal/audio"
	"github.com/houzhh15/minutes/cmd/minutes/internal/config"
)

func TestApplyFlags(t *testing.T) {
	newCmd := func() *cobra.Command {
		c := &cobra.Command{Use: "test"}
		addGlobalFlags(c)
		addEngineFlags(c)
		addLiveFlags(c)
		c.Flags().Bool("whole", false, "")
		return c
	}

	t.Run("only changed flags override", func(t *testing.T) {
		cmd := newCmd()
		require.NoError(t, cmd.ParseFlags([]string{"--workers", "4", "--silence", "2s", "-l", "ja", "--whole"}))
		cfg := config.Default()
		cfg.Engine.Model = "small"

		require.NoError(t, applyFlags(cmd, cfg))
		assert.Equal(t, 4, cfg.Pipeline.Workers)
		assert.Equal(t, 2*time.Second, cfg.Segment.SilenceDuration)
		assert.Equal(t, "ja", cfg.Engine.Language)
		assert.True(t, cfg.Pipeline.Whole)
		assert.Equal(t, "small", cfg.Engine.Model)
		assert.True(t, cfg.Generation.Correct)
	})

	t.Run("explicit false overrides default true", func(t *testing.T) {
		cmd := newCmd()
		require.NoError(t, cmd.ParseFlags([]string{"--correct=false"}))
		cfg := config.Default()
		require.NoError(t, applyFlags(cmd, cfg))
		assert.False(t, cfg.Generation.Correct)
	})

	t.Run("every binding has a flag", func(t *testing.T) {
		cmd := newCmd()
		require.NoError(t, cmd.ParseFlags(nil))
		for name := range flagBindings(config.Default()) {
			assert.NotNil(t, cmd.Flags().Lookup(name), name)
		}
	})
}

func TestDefaultDevice(t *testing.T) {
	devices := []audio.Device{
		{ID: "0", Name: "Built-in", Kind: "audio"},
		{ID: "1", Name: "USB Mic", Kind: "audio-default"},
	}
	assert.Equal(t, 1, defaultDevice(devices, ""))
	assert.Equal(t, 0, defaultDevice(devices, "0"))
	assert.Equal(t, 1, defaultDevice(devices, "USB Mic"))
	assert.Equal(t, -1, defaultDevice(devices, "missing"))
	assert.Equal(t, 0, defaultDevice(devices[:1], ""))
	assert.Equal(t, -1, defaultDevice(nil, ""))
}
