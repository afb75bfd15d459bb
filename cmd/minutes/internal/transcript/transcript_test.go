package transcript

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/minutes/pkg/simhash"
)

func seg(seq int, text string) Segment {
	return Segment{Seq: seq, Text: text, Status: StatusOK}
}

func TestJoin(t *testing.T) {
	got := Join([]Segment{seg(1, " hello "), seg(2, ""), seg(3, "world")})
	assert.Equal(t, "hello\nworld", got)
	assert.Equal(t, "", Join(nil))
}

func TestReorderer(t *testing.T) {
	t.Run("out of order completion", func(t *testing.T) {
		r := NewReorderer(1)
		assert.Empty(t, r.Complete(seg(2, "B")))
		assert.Equal(t, 1, r.Pending())

		out := r.Complete(seg(1, "A"))
		require.Len(t, out, 2)
		assert.Equal(t, 1, out[0].Seq)
		assert.Equal(t, 2, out[1].Seq)
		assert.Equal(t, 3, r.Next())
	})

	t.Run("duplicates and stale ignored", func(t *testing.T) {
		r := NewReorderer(1)
		require.Len(t, r.Complete(seg(1, "A")), 1)
		assert.Empty(t, r.Complete(seg(1, "A again")))
		assert.Empty(t, r.Complete(seg(3, "C")))
		assert.Empty(t, r.Complete(seg(3, "C again")))
		assert.Equal(t, 1, r.Pending())
	})

	t.Run("drain skips gaps", func(t *testing.T) {
		r := NewReorderer(1)
		r.Complete(seg(4, "D"))
		r.Complete(seg(3, "C"))
		out := r.Drain()
		require.Len(t, out, 2)
		assert.Equal(t, 3, out[0].Seq)
		assert.Equal(t, 4, out[1].Seq)
		assert.Equal(t, 5, r.Next())
		assert.Zero(t, r.Pending())
		assert.Empty(t, r.Complete(seg(1, "late")))
	})

	t.Run("random permutations release in order", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		for trial := 0; trial < 50; trial++ {
			n := 1 + rng.Intn(20)
			r := NewReorderer(1)
			var released []int
			for _, i := range rng.Perm(n) {
				for _, s := range r.Complete(seg(i+1, "x")) {
					released = append(released, s.Seq)
				}
			}
			require.Len(t, released, n)
			for i, s := range released {
				assert.Equal(t, i+1, s)
			}
		}
	})
}

type recordingSink struct {
	got    []Segment
	closed bool
	err    error
}

func (s *recordingSink) Append(seg Segment) error {
	s.got = append(s.got, seg)
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func TestAssembler(t *testing.T) {
	t.Run("appends in order and writes sinks", func(t *testing.T) {
		sink := &recordingSink{}
		a := NewAssembler(nil, WithSinks(sink))
		require.NoError(t, a.Append(seg(1, "A")))
		require.NoError(t, a.Append(seg(3, "C")))
		assert.Len(t, sink.got, 2)
		assert.Equal(t, "A\nC", a.Text())

		err := a.Append(seg(2, "B"))
		assert.ErrorIs(t, err, ErrOutOfOrder)
		assert.Equal(t, 2, a.Len())
	})

	t.Run("failed segment kept but absent from text", func(t *testing.T) {
		a := NewAssembler(nil)
		require.NoError(t, a.Append(seg(1, "A")))
		require.NoError(t, a.Append(Segment{Seq: 2, Status: StatusFailed, Error: "ENGINE_UNAVAILABLE"}))
		require.NoError(t, a.Append(seg(3, "C")))
		assert.Equal(t, "A\nC", a.Text())
		assert.Len(t, a.Segments(), 3)
	})

	t.Run("sink error surfaces", func(t *testing.T) {
		boom := errors.New("disk full")
		a := NewAssembler(nil, WithSinks(&recordingSink{err: boom}))
		assert.ErrorIs(t, a.Append(seg(1, "A")), boom)
	})

	t.Run("repeated segment flagged", func(t *testing.T) {
		a := NewAssembler(nil, WithRepetitionDetector(simhash.NewRepetitionDetector(simhash.DefaultThreshold)))
		require.NoError(t, a.Append(seg(1, "thank you for watching")))
		require.NoError(t, a.Append(seg(2, "thank you for watching")))
		require.NoError(t, a.Append(seg(3, "the budget was approved by finance")))
		got := a.Segments()
		assert.False(t, got[0].Repeated)
		assert.True(t, got[1].Repeated)
		assert.False(t, got[2].Repeated)
		assert.Contains(t, a.Text(), "thank you for watching\nthank you for watching")
	})

	t.Run("finalize closes sinks", func(t *testing.T) {
		sink := &recordingSink{}
		a := NewAssembler(nil, WithSinks(sink))
		require.NoError(t, a.Append(seg(1, "A")))

		text, err := a.Finalize()
		require.NoError(t, err)
		assert.Equal(t, "A", text)
		assert.True(t, sink.closed)

		assert.ErrorIs(t, a.Append(seg(2, "B")), ErrClosed)
		again, err := a.Finalize()
		require.NoError(t, err)
		assert.Equal(t, "A", again)
	})
}

func TestFeed(t *testing.T) {
	f := NewFeed(nil)
	ch, cancel := f.Subscribe()
	assert.Equal(t, 1, f.Subscribers())

	a := NewAssembler(nil, WithSinks(f))
	require.NoError(t, a.Append(seg(1, "A")))
	got := <-ch
	assert.Equal(t, 1, got.Seq)

	_, err := a.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 1, f.Subscribers(), "session end keeps subscribers")

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)

	ch2, _ := f.Subscribe()
	f.Shutdown()
	_, open = <-ch2
	assert.False(t, open)

	ch3, _ := f.Subscribe()
	_, open = <-ch3
	assert.False(t, open, "subscriptions after shutdown start closed")
}

func TestFeedDropsForSlowSubscriber(t *testing.T) {
	f := NewFeed(nil)
	ch, cancel := f.Subscribe()
	defer cancel()
	for i := 1; i <= feedBuffer+10; i++ {
		require.NoError(t, f.Append(seg(i, "x")))
	}
	assert.Len(t, ch, feedBuffer)
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "meeting.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("stale\n"), 0o644))

	sink, err := NewFileSink(path, "")
	require.NoError(t, err)
	assert.Equal(t, path, sink.Path())

	require.NoError(t, sink.Append(seg(1, "first line")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first line\n", string(data), "visible before close")

	require.NoError(t, sink.Append(Segment{Seq: 2, Status: StatusFailed}))
	require.NoError(t, sink.Append(seg(3, "   ")))
	require.NoError(t, sink.Append(seg(4, "second line")))
	require.NoError(t, sink.Close())

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first line\nsecond line\n", string(data))
}

func TestFileSinkFailureMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meeting.txt")
	sink, err := NewFileSink(path, "[inaudible]")
	require.NoError(t, err)
	require.NoError(t, sink.Append(seg(1, "A")))
	require.NoError(t, sink.Append(Segment{Seq: 2, Status: StatusFailed}))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "A\n[inaudible]\n", string(data))
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleSink(&buf)
	require.NoError(t, c.Append(seg(1, "hello")))
	require.NoError(t, c.Append(seg(2, "")))
	require.NoError(t, c.Append(Segment{Seq: 3, Status: StatusFailed, Error: "ENGINE_UNAVAILABLE"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "] hello"))
	assert.Contains(t, lines[1], "ENGINE_UNAVAILABLE")
}
