package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/minutes/cmd/minutes/internal/audio"
	"github.com/houzhh15/minutes/cmd/minutes/internal/config"
	"github.com/houzhh15/minutes/cmd/minutes/internal/journal"
	"github.com/houzhh15/minutes/cmd/minutes/internal/summary"
	"github.com/houzhh15/minutes/cmd/minutes/internal/transcript"
	"github.com/houzhh15/minutes/cmd/minutes/internal/whisper"
)

const (
	testRate  = 16000
	testFrame = 1600 // 100ms
)

// fakeEngine answers "utt-<seq>" and can fail, block or signal per sequence.
type fakeEngine struct {
	name string

	mu        sync.Mutex
	calls     []int
	completed []int
	fail      map[int]error
	waitFor   map[int]<-chan struct{}
	signal    map[int]chan struct{}
	onCall    func(seq int)
	blockAll  bool
	lastLen   int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		name:    "fake",
		fail:    map[int]error{},
		waitFor: map[int]<-chan struct{}{},
		signal:  map[int]chan struct{}{},
	}
}

func (f *fakeEngine) Transcribe(ctx context.Context, req *whisper.Request) (*whisper.TranscriptionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Seq)
	f.lastLen = len(req.Samples)
	wait := f.waitFor[req.Seq]
	failErr := f.fail[req.Seq]
	onCall := f.onCall
	block := f.blockAll
	f.mu.Unlock()

	if onCall != nil {
		onCall(req.Seq)
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	f.completed = append(f.completed, req.Seq)
	if ch, ok := f.signal[req.Seq]; ok {
		close(ch)
	}
	f.mu.Unlock()

	if failErr != nil {
		return nil, failErr
	}
	return &whisper.TranscriptionResult{Text: fmt.Sprintf("utt-%d", req.Seq), Language: "en"}, nil
}

func (f *fakeEngine) HealthCheck(ctx context.Context) (bool, error) { return true, nil }
func (f *fakeEngine) Name() string                                  { return f.name }

// pattern renders s (speech) and _ (silence) characters as 100ms frames.
func pattern(p string) []float32 {
	out := make([]float32, 0, len(p)*testFrame)
	for _, c := range p {
		v := float32(0)
		if c == 's' {
			v = 0.5
		}
		for i := 0; i < testFrame; i++ {
			out = append(out, v)
		}
	}
	return out
}

// utterances renders n utterances of 5 speech frames, each followed by 2s of silence.
func utterances(n int) []float32 {
	return pattern(strings.Repeat("sssss"+strings.Repeat("_", 20), n))
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Output.Dir = t.TempDir()
	cfg.Pipeline.Warmup = false
	cfg.Pipeline.Workers = 2
	return cfg
}

func newTestOrchestrator(cfg *config.Config, eng whisper.Transcriber, samples []float32) *Orchestrator {
	return New(cfg, Deps{
		Engine: NewStaticEngine(eng),
		OpenFile: func(ctx context.Context, path string) (audio.Source, error) {
			return audio.NewSliceSource(samples, testRate, testFrame), nil
		},
	})
}

func seqs(segs []transcript.Segment) []int {
	out := make([]int, len(segs))
	for i, s := range segs {
		out[i] = s.Seq
	}
	return out
}

func TestRunFileFailedUtteranceDoesNotAbortSession(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.FailureMarker = "[inaudible]"
	eng := newFakeEngine()
	eng.fail[3] = whisper.NewTranscriptionError(whisper.ErrCodeDecodeFailure, "fake", "bad audio", nil)
	o := newTestOrchestrator(cfg, eng, utterances(5))

	out := filepath.Join(cfg.Output.Dir, "meeting.txt")
	res, err := o.RunFile(context.Background(), "meeting.wav", out)
	require.NoError(t, err)

	segs := o.Segments()
	require.Len(t, segs, 5)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, seqs(segs))
	assert.Equal(t, transcript.StatusFailed, segs[2].Status)
	assert.Contains(t, segs[2].Error, "DECODE_FAILURE")
	for _, i := range []int{0, 1, 3, 4} {
		assert.Equal(t, transcript.StatusOK, segs[i].Status)
	}

	assert.Equal(t, 5, res.Segments)
	assert.Equal(t, 1, res.Failed)
	assert.False(t, res.Cancelled)
	assert.Equal(t, "utt-1\nutt-2\nutt-4\nutt-5", res.Text)
	assert.Equal(t, StateCompleted, o.State())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "utt-1\nutt-2\n[inaudible]\nutt-4\nutt-5\n", string(data))
}

func TestRunFileOutOfOrderCompletion(t *testing.T) {
	cfg := testConfig(t)
	eng := newFakeEngine()
	secondDone := make(chan struct{})
	eng.signal[2] = secondDone
	eng.waitFor[1] = secondDone
	o := newTestOrchestrator(cfg, eng, utterances(2))

	events, cancel := o.Subscribe()
	defer cancel()

	res, err := o.RunFile(context.Background(), "in.wav", filepath.Join(cfg.Output.Dir, "out.txt"))
	require.NoError(t, err)

	eng.mu.Lock()
	assert.Equal(t, []int{2, 1}, eng.completed)
	eng.mu.Unlock()
	assert.Equal(t, []int{1, 2}, seqs(o.Segments()))
	assert.Equal(t, "utt-1\nutt-2", res.Text)

	first, second := <-events, <-events
	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, 2, second.Seq)
}

func TestRunFileTimestamps(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(cfg, newFakeEngine(), pattern(strings.Repeat("_", 10)+"sssss"))

	_, err := o.RunFile(context.Background(), "in.wav", filepath.Join(cfg.Output.Dir, "out.txt"))
	require.NoError(t, err)

	segs := o.Segments()
	require.Len(t, segs, 1)
	assert.Equal(t, time.Second, segs[0].Offset)
	assert.Equal(t, 500*time.Millisecond, segs[0].Duration)
	assert.Equal(t, "en", segs[0].Language)
}

func TestRunFileWhole(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.Whole = true
	eng := newFakeEngine()
	samples := utterances(3)
	o := newTestOrchestrator(cfg, eng, samples)

	res, err := o.RunFile(context.Background(), "in.wav", filepath.Join(cfg.Output.Dir, "out.txt"))
	require.NoError(t, err)

	assert.Equal(t, []int{1}, eng.calls)
	assert.Equal(t, len(samples), eng.lastLen)
	assert.Equal(t, 1, res.Segments)
	assert.Equal(t, "utt-1", res.Text)
}

func TestRunFileDegradedEngine(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(cfg, whisper.NewMockTranscriber(nil), utterances(2))

	res, err := o.RunFile(context.Background(), "in.wav", filepath.Join(cfg.Output.Dir, "out.txt"))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Segments)
	assert.Equal(t, 2, res.Degraded)
	assert.Empty(t, res.Text)
	for _, s := range o.Segments() {
		assert.Equal(t, transcript.StatusDegraded, s.Status)
	}
	assert.True(t, o.Progress().Degraded)
}

func TestRunFileFilteredUtterancesConsumeNoSequence(t *testing.T) {
	cfg := testConfig(t)
	cfg.Segment.MinUtterance = 300 * time.Millisecond
	// A one-frame spike, then a real utterance.
	samples := pattern("s" + strings.Repeat("_", 20) + "sssss" + strings.Repeat("_", 20))
	o := newTestOrchestrator(cfg, newFakeEngine(), samples)

	res, err := o.RunFile(context.Background(), "in.wav", filepath.Join(cfg.Output.Dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Filtered)
	assert.Equal(t, []int{1}, seqs(o.Segments()))
}

func TestRunFileOpenError(t *testing.T) {
	cfg := testConfig(t)
	o := New(cfg, Deps{
		Engine: NewStaticEngine(newFakeEngine()),
		OpenFile: func(ctx context.Context, path string) (audio.Source, error) {
			return nil, audio.NewCaptureError(audio.ErrCodeDecodeFailed, "not audio", nil)
		},
	})
	_, err := o.RunFile(context.Background(), "bad.bin", "")
	require.Error(t, err)
	assert.Equal(t, ErrCodeCaptureFailed, CodeOf(err))
	assert.Equal(t, StateFailed, o.State())

	// The orchestrator accepts a new session after a failure.
	assert.NoError(t, o.reserve())
}

func TestReserveRejectsConcurrentSession(t *testing.T) {
	o := New(config.Default(), Deps{Engine: NewStaticEngine(newFakeEngine())})
	require.NoError(t, o.reserve())
	assert.ErrorIs(t, o.reserve(), ErrBusy)
	o.release(StateCompleted)
	assert.NoError(t, o.reserve())
}

// liveSource produces speech until stopped and cancels the session after
// stopAfter frames, like a user pressing Ctrl-C mid-sentence.
type liveSource struct {
	cancel    context.CancelFunc
	stopAfter int
	index     int
	stopped   bool
	failAt    int
}

func (l *liveSource) SampleRate() int { return testRate }
func (l *liveSource) FrameSize() int  { return testFrame }
func (l *liveSource) Close() error    { return nil }
func (l *liveSource) Stop()           { l.stopped = true }

func (l *liveSource) Next(ctx context.Context) (audio.Frame, error) {
	if l.stopped {
		return audio.Frame{}, io.EOF
	}
	if l.failAt > 0 && l.index == l.failAt {
		return audio.Frame{}, audio.NewCaptureError(audio.ErrCodeCaptureFailed, "device unplugged", nil)
	}
	samples := make([]float32, testFrame)
	for i := range samples {
		samples[i] = 0.5
	}
	f := audio.Frame{Index: l.index, SampleRate: testRate, Samples: samples}
	l.index++
	if l.cancel != nil && l.index == l.stopAfter {
		l.cancel()
	}
	return f, nil
}

func newLiveOrchestrator(cfg *config.Config, eng whisper.Transcriber, src *liveSource) *Orchestrator {
	return New(cfg, Deps{
		Engine: NewStaticEngine(eng),
		Capture: func(audio.CaptureConfig, *slog.Logger) (audio.Source, error) {
			return src, nil
		},
	})
}

func TestRunRecordCancellationFlushesOpenUtterance(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.SaveAudio = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &liveSource{cancel: cancel, stopAfter: 10}
	o := newLiveOrchestrator(cfg, newFakeEngine(), src)

	out := filepath.Join(cfg.Output.Dir, "rec.txt")
	res, err := o.RunRecord(ctx, out)
	require.NoError(t, err)

	assert.True(t, res.Cancelled)
	assert.Equal(t, StateStopped, o.State())
	require.Len(t, o.Segments(), 1)
	assert.Equal(t, "utt-1", res.Text)
	assert.Equal(t, time.Second, res.Audio)

	require.Equal(t, filepath.Join(cfg.Output.Dir, "rec.wav"), res.AudioPath)
	f, err := os.Open(res.AudioPath)
	require.NoError(t, err)
	defer f.Close()
	samples, err := audio.DecodeWAV(f, testRate)
	require.NoError(t, err)
	require.Len(t, samples, 10*testFrame)
	want := make([]float32, len(samples))
	for i := range want {
		want[i] = 0.5
	}
	assert.InDeltaSlice(t, want, samples, 1e-3, "saved audio keeps the captured level")
}

func TestRunRecordDrainTimeoutAbandonsPendingWork(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.DrainTimeout = 50 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := newFakeEngine()
	eng.blockAll = true
	eng.onCall = func(int) { cancel() }
	src := &liveSource{stopAfter: -1}
	// Seal one utterance by length so the engine is called while capturing.
	cfg.Segment.MaxUtterance = 500 * time.Millisecond
	o := newLiveOrchestrator(cfg, eng, src)

	res, err := o.RunRecord(ctx, filepath.Join(cfg.Output.Dir, "rec.txt"))
	require.NoError(t, err)

	assert.True(t, res.Cancelled)
	require.NotEmpty(t, o.Segments())
	for _, s := range o.Segments() {
		assert.Equal(t, transcript.StatusAbandoned, s.Status)
	}
	assert.Equal(t, res.Segments, res.Abandoned)
}

func TestRunRecordCaptureErrorKeepsSealedWork(t *testing.T) {
	cfg := testConfig(t)
	src := &liveSource{failAt: 7}
	o := newLiveOrchestrator(cfg, newFakeEngine(), src)

	res, err := o.RunRecord(context.Background(), filepath.Join(cfg.Output.Dir, "rec.txt"))
	require.Error(t, err)
	assert.Equal(t, ErrCodeCaptureFailed, CodeOf(err))
	var ce *audio.CaptureError
	assert.True(t, errors.As(err, &ce))

	require.NotNil(t, res)
	assert.Equal(t, "utt-1", res.Text)
	assert.Equal(t, StateFailed, o.State())
}

func TestRunRealtimeEchoesToConsoleAndWarmsUp(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.Warmup = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &liveSource{cancel: cancel, stopAfter: 5}
	eng := newFakeEngine()

	var console strings.Builder
	o := New(cfg, Deps{
		Engine:  NewStaticEngine(eng),
		Console: &console,
		Capture: func(audio.CaptureConfig, *slog.Logger) (audio.Source, error) { return src, nil },
	})

	res, err := o.RunRealtime(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, eng.calls, "warm-up call precedes the first utterance")
	assert.Contains(t, console.String(), "utt-1")
	assert.True(t, strings.HasPrefix(filepath.Base(res.Output), "realtime_"))
}

type fakeSummarizer struct {
	got string
	err error
}

func (f *fakeSummarizer) Run(ctx context.Context, raw string) (*summary.Document, error) {
	f.got = raw
	if f.err != nil {
		return nil, f.err
	}
	if strings.TrimSpace(raw) == "" {
		return nil, summary.ErrEmptyTranscript
	}
	doc := summary.NewDocument()
	doc.SetTranscript(raw)
	return doc, nil
}

func TestRunFileChainsSummary(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Summarize = true
	sum := &fakeSummarizer{}
	o := New(cfg, Deps{
		Engine:     NewStaticEngine(newFakeEngine()),
		Summarizer: sum,
		OpenFile: func(ctx context.Context, path string) (audio.Source, error) {
			return audio.NewSliceSource(utterances(2), testRate, testFrame), nil
		},
	})

	out := filepath.Join(cfg.Output.Dir, "notes.txt")
	res, err := o.RunFile(context.Background(), "in.wav", out)
	require.NoError(t, err)

	assert.Equal(t, "utt-1\nutt-2", sum.got)
	assert.Equal(t, filepath.Join(cfg.Output.Dir, "notes.md"), res.SummaryPath)
	md, err := os.ReadFile(res.SummaryPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "# Meeting Notes")
	assert.Contains(t, string(md), "utt-2")

	t.Run("summary failure keeps transcript", func(t *testing.T) {
		sum.err = errors.New("backend down")
		o.deps.OpenFile = func(ctx context.Context, path string) (audio.Source, error) {
			return audio.NewSliceSource(utterances(1), testRate, testFrame), nil
		}
		out := filepath.Join(cfg.Output.Dir, "again.txt")
		res, err := o.RunFile(context.Background(), "in.wav", out)
		require.Error(t, err)
		assert.Equal(t, ErrCodeSummaryFailed, CodeOf(err))
		require.NotNil(t, res)
		assert.Empty(t, res.SummaryPath)
		data, rerr := os.ReadFile(out)
		require.NoError(t, rerr)
		assert.Equal(t, "utt-1\n", string(data))
	})
}

func TestRunFileJournal(t *testing.T) {
	cfg := testConfig(t)
	store, err := journal.Open(filepath.Join(t.TempDir(), "journal.sqlite"))
	require.NoError(t, err)
	defer store.Close()

	o := New(cfg, Deps{
		Engine:  NewStaticEngine(newFakeEngine()),
		Journal: store,
		OpenFile: func(ctx context.Context, path string) (audio.Source, error) {
			return audio.NewSliceSource(utterances(3), testRate, testFrame), nil
		},
	})
	res, err := o.RunFile(context.Background(), "in.wav", filepath.Join(cfg.Output.Dir, "out.txt"))
	require.NoError(t, err)

	sess, err := store.Session(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusCompleted, sess.Status)
	assert.Equal(t, "file", sess.Mode)

	text, err := store.Export(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, res.Text, strings.TrimSpace(text))
}

func TestProgress(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(cfg, newFakeEngine(), utterances(2))
	assert.Equal(t, StateCreated, o.Progress().State)

	_, err := o.RunFile(context.Background(), "in.wav", filepath.Join(cfg.Output.Dir, "out.txt"))
	require.NoError(t, err)

	p := o.Progress()
	assert.Equal(t, StateCompleted, p.State)
	assert.Equal(t, ModeFile, p.Mode)
	assert.Equal(t, 2, p.Utterances)
	assert.Equal(t, 2, p.Segments)
	assert.Zero(t, p.Queued)
	assert.Zero(t, p.InFlight)
	assert.Equal(t, "fake", p.Engine)
	assert.NotEmpty(t, p.SessionID)
}

func TestFlushReorderReleasesPastMissingSequence(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(cfg, newFakeEngine(), nil)
	src := audio.NewSliceSource(nil, testRate, testFrame)
	s, err := o.newSession(context.Background(), ModeFile, src, "in.wav", filepath.Join(cfg.Output.Dir, "gap.txt"))
	require.NoError(t, err)

	require.NoError(t, s.emit(transcript.Segment{Seq: 2, Text: "second", Status: transcript.StatusOK}))
	assert.Empty(t, s.asm.Segments(), "seq 2 waits for seq 1")

	require.NoError(t, s.flushReorder())
	require.Len(t, s.asm.Segments(), 1)
	assert.Equal(t, 2, s.asm.Segments()[0].Seq)
	assert.Equal(t, 0, s.reorder.Pending())

	require.NoError(t, s.flushReorder(), "nothing left to release")
	text, err := s.asm.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "second", text)
}
