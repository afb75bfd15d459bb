package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/minutes/cmd/minutes/internal/transcript"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "journal.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.Begin(ctx, "file", "meeting.wav", "meeting.txt", "go-whisper")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	conf := 0.8
	require.NoError(t, s.AppendSegment(ctx, id, transcript.Segment{Seq: 1, Text: "A", Status: transcript.StatusOK, Confidence: &conf}))
	require.NoError(t, s.AppendSegment(ctx, id, transcript.Segment{Seq: 2, Status: transcript.StatusFailed, Error: "ENGINE_UNAVAILABLE"}))
	require.NoError(t, s.AppendSegment(ctx, id, transcript.Segment{Seq: 3, Text: "C", Status: transcript.StatusOK, Repeated: true}))

	sess, err := s.Session(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, sess.Status)
	assert.Equal(t, 3, sess.Segments)
	assert.Nil(t, sess.EndedAt)

	require.NoError(t, s.End(ctx, id, StatusCompleted))
	sess, err = s.Session(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, sess.Status)
	assert.NotNil(t, sess.EndedAt)

	segs, err := s.Segments(ctx, id)
	require.NoError(t, err)
	require.Len(t, segs, 3)
	require.NotNil(t, segs[0].Confidence)
	assert.InDelta(t, 0.8, *segs[0].Confidence, 1e-9)
	assert.Nil(t, segs[1].Confidence)
	assert.Equal(t, transcript.StatusFailed, segs[1].Status)
	assert.True(t, segs[2].Repeated)

	text, err := s.Export(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "A\nC", text)
}

func TestDuplicateSeqRejected(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	id, err := s.Begin(ctx, "record", "", "", "mock")
	require.NoError(t, err)
	require.NoError(t, s.AppendSegment(ctx, id, transcript.Segment{Seq: 1, Text: "A", Status: transcript.StatusOK}))
	assert.Error(t, s.AppendSegment(ctx, id, transcript.Segment{Seq: 1, Text: "A", Status: transcript.StatusOK}))
}

func TestSessionsListing(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	first, err := s.Begin(ctx, "file", "a.wav", "a.txt", "openai")
	require.NoError(t, err)
	second, err := s.Begin(ctx, "realtime", "", "b.txt", "openai")
	require.NoError(t, err)

	all, err := s.Sessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	ids := []string{all[0].ID, all[1].ID}
	assert.ElementsMatch(t, []string{first, second}, ids)

	one, err := s.Sessions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestUnknownSession(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, err := s.Session(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Export(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.End(ctx, "missing", StatusFailed), ErrNotFound)
}

func TestSinkWithAssembler(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	id, err := s.Begin(ctx, "file", "x.wav", "x.txt", "mock")
	require.NoError(t, err)

	sink := NewSink(s, id)
	assert.Equal(t, id, sink.SessionID())
	a := transcript.NewAssembler(nil, transcript.WithSinks(sink))
	require.NoError(t, a.Append(transcript.Segment{Seq: 1, Text: "hello", Status: transcript.StatusOK}))
	require.NoError(t, a.Append(transcript.Segment{Seq: 2, Text: "world", Status: transcript.StatusOK}))
	_, err = a.Finalize()
	require.NoError(t, err)

	text, err := s.Export(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld", text)
}
