package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/houzhh15/minutes/cmd/minutes/internal/audio"
	"github.com/houzhh15/minutes/cmd/minutes/internal/config"
	"github.com/houzhh15/minutes/cmd/minutes/internal/journal"
	"github.com/houzhh15/minutes/cmd/minutes/internal/metrics"
	"github.com/houzhh15/minutes/cmd/minutes/internal/segment"
	"github.com/houzhh15/minutes/cmd/minutes/internal/transcript"
	"github.com/houzhh15/minutes/cmd/minutes/internal/vad"
	"github.com/houzhh15/minutes/cmd/minutes/internal/whisper"
	"github.com/houzhh15/minutes/pkg/logger"
	"github.com/houzhh15/minutes/pkg/simhash"
)

// job is one sealed utterance waiting for the engine.
type job struct {
	seq      int
	samples  []float32
	rate     int
	offset   time.Duration
	duration time.Duration
	sealedAt time.Time
}

type session struct {
	o       *Orchestrator
	cfg     *config.Config
	mode    Mode
	id      string
	input   string
	output  string
	log     *slog.Logger
	started time.Time

	asm     *transcript.Assembler
	reorder *transcript.Reorderer
	queue   *WorkQueue[job]
	opts    *whisper.TranscribeOptions
	emitMu  sync.Mutex
	jsink   *journal.Sink

	rate       int
	frameSize  int
	samples    atomic.Int64
	recorded   []float32 // producer goroutine only
	captureErr error     // producer goroutine only, read after Wait

	utterances atomic.Int64
	filtered   atomic.Int64
	inFlight   atomic.Int64
	segments   atomic.Int64
	failed     atomic.Int64
	degraded   atomic.Int64
	abandoned  atomic.Int64
	repeated   atomic.Int64
	engineName atomic.Value // string
	isDegraded atomic.Bool
}

func (o *Orchestrator) newSession(ctx context.Context, mode Mode, src audio.Source, input, output string) (*session, error) {
	s := &session{
		o:         o,
		cfg:       o.cfg,
		mode:      mode,
		input:     input,
		output:    output,
		started:   o.deps.Now(),
		reorder:   transcript.NewReorderer(1),
		opts:      o.cfg.TranscribeOptions(),
		rate:      src.SampleRate(),
		frameSize: src.FrameSize(),
	}
	s.engineName.Store(o.deps.Engine.Transcriber().Name())

	fileSink, err := transcript.NewFileSink(output, o.cfg.Output.FailureMarker)
	if err != nil {
		return nil, NewSessionError(ErrCodeSinkFailed, "open transcript", output, err)
	}
	sinks := []transcript.Sink{fileSink}

	if o.deps.Journal != nil {
		id, err := o.deps.Journal.Begin(ctx, string(mode), input, output, s.engine())
		if err != nil {
			_ = fileSink.Close()
			return nil, NewSessionError(ErrCodeSinkFailed, "begin journal session", output, err)
		}
		s.id = id
		s.jsink = journal.NewSink(o.deps.Journal, id)
		sinks = append(sinks, s.jsink)
	} else {
		s.id = uuid.NewString()
	}
	if mode == ModeRealtime && o.deps.Console != nil {
		sinks = append(sinks, transcript.NewConsoleSink(o.deps.Console))
	}
	sinks = append(sinks, &progressSink{s: s}, o.feed)

	s.log = o.log.With("session", s.id, "mode", string(mode))
	s.queue = NewWorkQueue[job](o.cfg.Pipeline.QueueSoftCap, s.log)
	s.asm = transcript.NewAssembler(s.log,
		transcript.WithSinks(sinks...),
		transcript.WithRepetitionDetector(simhash.NewRepetitionDetector(simhash.DefaultThreshold)))
	s.log.Info("session started", "input", input, "output", fileSink.Path(), "engine", s.engine())
	return s, nil
}

func (s *session) engine() string {
	if v, ok := s.engineName.Load().(string); ok {
		return v
	}
	return ""
}

// run drives one session to completion. User cancellation stops the source,
// flushes the open utterance and drains the queue; pending work is abandoned
// once the drain grace period expires. Capture errors end the capture side
// only and are returned after queued work has been appended.
func (s *session) run(ctx context.Context, src audio.Source) error {
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	workCtx, cancelWork := context.WithCancel(gctx)
	defer cancelWork()

	done := make(chan struct{})
	go s.watchDrain(ctx, done, cancelWork)

	g.Go(func() error {
		if s.mode == ModeFile && s.cfg.Pipeline.Whole {
			s.produceWhole(ctx, gctx, src)
		} else {
			s.produce(ctx, gctx, src)
		}
		return nil
	})
	g.Go(func() error {
		return s.dispatch(gctx, workCtx, g)
	})

	err := g.Wait()
	close(done)
	if err != nil {
		return err
	}
	if err := s.flushReorder(); err != nil {
		return err
	}
	if s.captureErr != nil {
		var se *SessionError
		if errors.As(s.captureErr, &se) {
			return se
		}
		return NewSessionError(ErrCodeCaptureFailed, "audio source failed", s.output, s.captureErr)
	}
	return nil
}

func (s *session) watchDrain(ctx context.Context, done <-chan struct{}, cancelWork context.CancelFunc) {
	select {
	case <-done:
		return
	case <-ctx.Done():
	}
	grace := s.cfg.Pipeline.DrainTimeout
	if grace <= 0 {
		grace = config.DefaultDrainTimeout
	}
	s.log.Info("stop requested, draining queued utterances", "queued", s.queue.Len(),
		"in_flight", s.inFlight.Load(), "grace", grace)
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		s.log.Warn("drain grace period expired, abandoning pending utterances",
			"queued", s.queue.Len(), "in_flight", s.inFlight.Load())
		cancelWork()
	}
}

// readFrames feeds every frame of src to fn. After ctx is cancelled the
// source is stopped and what it already buffered is still read.
func (s *session) readFrames(ctx, gctx context.Context, src audio.Source, fn func(audio.Frame)) {
	readCtx := context.WithoutCancel(ctx)
	stopped := false
	for gctx.Err() == nil {
		if !stopped && ctx.Err() != nil {
			stopped = true
			s.o.setState(StateStopping)
			st, ok := src.(audio.Stopper)
			if !ok {
				return
			}
			st.Stop()
		}
		f, err := src.Next(readCtx)
		if errors.Is(err, io.EOF) || errors.Is(err, audio.ErrStopped) {
			return
		}
		if err != nil {
			s.captureErr = err
			s.log.Error("audio source failed", "error", err)
			return
		}
		s.samples.Add(int64(len(f.Samples)))
		if s.cfg.Output.SaveAudio && s.mode != ModeFile {
			s.recorded = append(s.recorded, f.Samples...)
		}
		fn(f)
	}
}

func (s *session) produce(ctx, gctx context.Context, src audio.Source) {
	defer s.closeQueue()

	seg, err := segment.New(s.cfg.SegmentConfig(), s.log)
	if err != nil {
		s.captureErr = NewSessionError(ErrCodeInvalidConfig, "segmenter", s.output, err)
		return
	}
	det, err := vad.NewDetector(s.cfg.VAD.Threshold)
	if err != nil {
		s.captureErr = NewSessionError(ErrCodeInvalidConfig, "vad", s.output, err)
		return
	}
	s.log.Debug("segmenting", "vad_threshold", det.Threshold(),
		"silence", s.cfg.Segment.SilenceDuration, "min_utterance", s.cfg.Segment.MinUtterance)
	s.readFrames(ctx, gctx, src, func(f audio.Frame) {
		s.handle(seg.Push(f, det.Classify(f)))
	})
	s.handle(seg.Close())
}

// produceWhole sends the entire input as one request, bypassing segmentation.
func (s *session) produceWhole(ctx, gctx context.Context, src audio.Source) {
	defer s.closeQueue()

	var samples []float32
	first := -1
	s.readFrames(ctx, gctx, src, func(f audio.Frame) {
		if first < 0 {
			first = f.Index
		}
		samples = append(samples, f.Samples...)
	})
	if len(samples) == 0 {
		return
	}
	s.utterances.Add(1)
	metrics.RecordUtterance(false, "whole")
	s.queue.Push(job{
		seq:      1,
		samples:  samples,
		rate:     s.rate,
		offset:   s.frameOffset(first),
		duration: sampleDuration(len(samples), s.rate),
		sealedAt: s.o.deps.Now(),
	})
}

func (s *session) closeQueue() {
	s.queue.Close()
	s.o.setState(StateDraining)
}

func (s *session) handle(e segment.Emission) {
	switch {
	case e.Utterance != nil:
		u := e.Utterance
		s.utterances.Add(1)
		metrics.RecordUtterance(false, string(u.Reason))
		s.queue.Push(job{
			seq:      u.Seq,
			samples:  u.Samples(),
			rate:     u.SampleRate(),
			offset:   s.frameOffset(u.FirstIndex()),
			duration: u.Duration(),
			sealedAt: s.o.deps.Now(),
		})
	case e.Filtered != nil:
		s.filtered.Add(1)
		metrics.RecordUtterance(true, string(e.Filtered.Reason))
	}
}

func (s *session) frameOffset(index int) time.Duration {
	if index < 0 {
		return 0
	}
	return sampleDuration(index*s.frameSize, s.rate)
}

func sampleDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

// dispatch hands queued utterances to at most Pipeline.Workers concurrent
// engine calls. Once workCtx is cancelled the rest are abandoned unsent.
func (s *session) dispatch(gctx, workCtx context.Context, g *errgroup.Group) error {
	workers := s.cfg.Pipeline.Workers
	if workers < 1 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))
	for {
		j, ok := s.queue.Pop(gctx)
		if !ok {
			return nil
		}
		if err := sem.Acquire(workCtx, 1); err != nil {
			if err := s.emit(s.abandon(j, err)); err != nil {
				return err
			}
			continue
		}
		s.inFlight.Add(1)
		g.Go(func() error {
			defer sem.Release(1)
			defer s.inFlight.Add(-1)
			return s.emit(s.transcribe(workCtx, j))
		})
	}
}

func (s *session) baseSegment(j job) transcript.Segment {
	return transcript.Segment{
		Seq:       j.seq,
		Timestamp: j.sealedAt,
		Offset:    j.offset,
		Duration:  j.duration,
	}
}

func (s *session) abandon(j job, cause error) transcript.Segment {
	seg := s.baseSegment(j)
	seg.Status = transcript.StatusAbandoned
	seg.Error = fmt.Sprintf("abandoned after drain timeout: %v", cause)
	logger.LogUtterance(s.log, "asr", "error", j.seq, 0, string(whisper.ErrCodeCanceled))
	return seg
}

// transcribe never fails: engine errors become failed segments.
func (s *session) transcribe(ctx context.Context, j job) transcript.Segment {
	t := s.o.deps.Engine.Current()
	name := t.Name()
	s.engineName.Store(name)
	s.isDegraded.Store(name == whisper.MockName)

	logger.LogUtterance(s.log, "asr", "start", j.seq, 0, "")
	start := time.Now()
	res, err := t.Transcribe(ctx, &whisper.Request{Seq: j.seq, Samples: j.samples, SampleRate: j.rate, Options: s.opts})
	elapsed := time.Since(start)
	metrics.RecordDuration("asr", elapsed.Seconds())

	if err != nil && ctx.Err() != nil {
		return s.abandon(j, err)
	}
	seg := s.baseSegment(j)
	if err != nil {
		te := whisper.AsTranscriptionError(err, name, j.seq)
		logger.LogUtterance(s.log, "asr", "error", j.seq, elapsed.Milliseconds(), string(te.Code))
		metrics.RecordTranscriptionError(string(te.Code))
		seg.Status = transcript.StatusFailed
		seg.Error = te.Error()
		return seg
	}

	if res == nil {
		res = &whisper.TranscriptionResult{}
	}
	seg.Text = strings.TrimSpace(res.FullText())
	seg.Language = res.Language
	seg.Confidence = res.Confidence
	seg.Status = transcript.StatusOK
	if name == whisper.MockName {
		seg.Status = transcript.StatusDegraded
	}
	logger.LogUtterance(s.log, "asr", "success", j.seq, elapsed.Milliseconds(), "")
	return seg
}

// emit releases completed segments to the assembler in sequence order.
func (s *session) emit(seg transcript.Segment) error {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	for _, r := range s.reorder.Complete(seg) {
		if err := s.asm.Append(r); err != nil {
			return NewSessionError(ErrCodeSinkFailed, fmt.Sprintf("persist segment %d", r.Seq), s.output, err)
		}
	}
	return nil
}

// flushReorder appends segments still held behind a sequence that never
// completed. Every job ends completed or abandoned, so this is normally a no-op.
func (s *session) flushReorder() error {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.reorder.Pending() == 0 {
		return nil
	}
	s.log.Warn("releasing segments past a missing sequence",
		"waiting_for", s.reorder.Next(), "pending", s.reorder.Pending())
	for _, r := range s.reorder.Drain() {
		if err := s.asm.Append(r); err != nil {
			return NewSessionError(ErrCodeSinkFailed, fmt.Sprintf("persist segment %d", r.Seq), s.output, err)
		}
	}
	return nil
}

// progressSink keeps the session counters in step with the transcript.
type progressSink struct{ s *session }

func (p *progressSink) Append(seg transcript.Segment) error {
	s := p.s
	s.segments.Add(1)
	switch seg.Status {
	case transcript.StatusFailed:
		s.failed.Add(1)
	case transcript.StatusAbandoned:
		s.abandoned.Add(1)
	case transcript.StatusDegraded:
		s.degraded.Add(1)
	}
	if seg.Repeated {
		s.repeated.Add(1)
	}
	metrics.RecordSegment(string(seg.Status), seg.Repeated)
	logger.LogUtterance(s.log, "assemble", "success", seg.Seq, time.Since(seg.Timestamp).Milliseconds(), "")
	return nil
}

func (p *progressSink) Close() error { return nil }

func (s *session) endJournal(runErr error) {
	if s.jsink == nil {
		return
	}
	status := journal.StatusCompleted
	if runErr != nil {
		status = journal.StatusFailed
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.o.deps.Journal.End(ctx, s.id, status); err != nil {
		s.log.Error("close journal session failed", "error", err)
	}
}

func (s *session) result(text string, cancelled bool) *Result {
	res := &Result{
		SessionID: s.id,
		Mode:      s.mode,
		Output:    s.output,
		Text:      text,
		Segments:  int(s.segments.Load()),
		Failed:    int(s.failed.Load()),
		Degraded:  int(s.degraded.Load()),
		Abandoned: int(s.abandoned.Load()),
		Filtered:  int(s.filtered.Load()),
		Audio:     sampleDuration(int(s.samples.Load()), s.rate),
		Cancelled: cancelled,
	}
	if s.cfg.Output.SaveAudio && s.mode != ModeFile {
		res.AudioPath = AudioPath(s.output)
	}
	return res
}

func (s *session) saveAudio(res *Result) error {
	if res.AudioPath == "" {
		return nil
	}
	if err := audio.WriteWAVFile(res.AudioPath, s.recorded, s.rate); err != nil {
		return err
	}
	s.log.Info("audio saved", "path", res.AudioPath, "duration", res.Audio)
	return nil
}

func (s *session) progress() ProgressInfo {
	return ProgressInfo{
		Mode:       s.mode,
		SessionID:  s.id,
		Output:     s.output,
		Engine:     s.engine(),
		Degraded:   s.isDegraded.Load(),
		Utterances: int(s.utterances.Load()),
		Filtered:   int(s.filtered.Load()),
		Queued:     s.queue.Len(),
		InFlight:   int(s.inFlight.Load()),
		Reordering: s.reorder.Pending(),
		Segments:   int(s.segments.Load()),
		Failed:     int(s.failed.Load()),
		Repeated:   int(s.repeated.Load()),
		Audio:      sampleDuration(int(s.samples.Load()), s.rate),
		StartedAt:  s.started,
		UpdatedAt:  s.o.deps.Now(),
	}
}
