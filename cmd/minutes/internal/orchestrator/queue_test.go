package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkQueue(t *testing.T) {
	t.Run("never drops past the soft cap", func(t *testing.T) {
		q := NewWorkQueue[int](2, nil)
		for i := 1; i <= 10; i++ {
			require.True(t, q.Push(i))
		}
		assert.Equal(t, 10, q.Len())
		for i := 1; i <= 10; i++ {
			v, ok := q.Pop(context.Background())
			require.True(t, ok)
			assert.Equal(t, i, v)
		}
	})

	t.Run("close drains then ends", func(t *testing.T) {
		q := NewWorkQueue[string](0, nil)
		q.Push("a")
		q.Close()
		q.Close()
		assert.False(t, q.Push("b"))

		v, ok := q.Pop(context.Background())
		require.True(t, ok)
		assert.Equal(t, "a", v)
		_, ok = q.Pop(context.Background())
		assert.False(t, ok)
	})

	t.Run("pop waits for push", func(t *testing.T) {
		q := NewWorkQueue[int](0, nil)
		got := make(chan int, 1)
		go func() {
			v, _ := q.Pop(context.Background())
			got <- v
		}()
		time.Sleep(10 * time.Millisecond)
		q.Push(7)
		select {
		case v := <-got:
			assert.Equal(t, 7, v)
		case <-time.After(time.Second):
			t.Fatal("pop did not wake up")
		}
	})

	t.Run("pop honours context", func(t *testing.T) {
		q := NewWorkQueue[int](0, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, ok := q.Pop(ctx)
		assert.False(t, ok)
	})
}

func TestDefaultOutput(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	tests := []struct {
		name  string
		mode  Mode
		input string
		dir   string
		want  string
	}{
		{"file next to input", ModeFile, "/data/meeting.m4a", "", "/data/meeting.txt"},
		{"file into dir", ModeFile, "/data/meeting.wav", "/out", "/out/meeting.txt"},
		{"text input is not overwritten", ModeFile, "notes.txt", "", "notes.transcript.txt"},
		{"record", ModeRecord, "", "", "recording_20260304_050607.txt"},
		{"realtime into dir", ModeRealtime, "", "/out", "/out/realtime_20260304_050607.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultOutput(tt.mode, tt.input, tt.dir, now))
		})
	}

	assert.Equal(t, "/out/a.md", SummaryPath("/out/a.txt"))
	assert.Equal(t, "/out/a.wav", AudioPath("/out/a.txt"))
}
