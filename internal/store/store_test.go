package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestSession(t *testing.T, s *Store) *Session {
	t.Helper()
	sess, err := s.CreateSession(context.Background(), "sess-1", "Untitled recording", SessionConfig{})
	require.NoError(t, err)
	return sess
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := createTestSession(t, s)
	assert.Equal(t, "sess-1", sess.ID)
	assert.Equal(t, "Untitled recording", sess.Title)
	assert.Equal(t, 0, sess.ReceivedChunks)
	assert.Nil(t, sess.ExpectedChunks)
	assert.False(t, sess.Finalized)
	assert.False(t, sess.Complete)
	assert.Equal(t, "auto", sess.SummaryLength)
	assert.Equal(t, "auto", sess.SummaryLanguageMode)

	_, err := s.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRecordRealChunk(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestSession(t, s)

	resumed, err := s.RecordRealChunk(ctx, "sess-1", 1, "sess-1/1", false)
	require.NoError(t, err)
	assert.False(t, resumed)

	sess, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1, sess.ReceivedChunks)
	assert.False(t, sess.Finalized)

	// Final flag pins expected to the received count.
	_, err = s.RecordRealChunk(ctx, "sess-1", 2, "sess-1/2", true)
	require.NoError(t, err)

	sess, err = s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, sess.Finalized)
	require.NotNil(t, sess.ExpectedChunks)
	assert.Equal(t, 2, *sess.ExpectedChunks)
	assert.Equal(t, 2, sess.EffectiveExpected())
}

func TestRecordRealChunk_ReuploadResetsText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestSession(t, s)

	_, err := s.RecordRealChunk(ctx, "sess-1", 1, "sess-1/1", false)
	require.NoError(t, err)
	require.NoError(t, s.SetChunkText(ctx, "sess-1", 1, "hello"))

	n, err := s.TranscribedCount(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Re-upload of the same index forces retranscription.
	_, err = s.RecordRealChunk(ctx, "sess-1", 1, "sess-1/1", false)
	require.NoError(t, err)

	n, err = s.TranscribedCount(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	chunks, err := s.RealChunks(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Nil(t, chunks[0].Text)
}

func TestRecordRealChunk_ResumesCompletedSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestSession(t, s)

	_, err := s.RecordRealChunk(ctx, "sess-1", 1, "sess-1/1", true)
	require.NoError(t, err)
	require.NoError(t, s.FinishSession(ctx, "sess-1", "## Summary", nil))

	sess, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, sess.Complete)

	resumed, err := s.RecordRealChunk(ctx, "sess-1", 2, "sess-1/2", false)
	require.NoError(t, err)
	assert.True(t, resumed)

	sess, err = s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, sess.Complete)
	assert.Nil(t, sess.Summary)
	assert.False(t, sess.SummaryEnqueued)
	assert.Equal(t, 2, sess.ReceivedChunks)
}

func TestRecordSignalChunk(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestSession(t, s)

	_, err := s.RecordRealChunk(ctx, "sess-1", 1, "sess-1/1", false)
	require.NoError(t, err)

	// Signal-only chunks are never counted.
	require.NoError(t, s.RecordSignalChunk(ctx, "sess-1", false))
	sess, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1, sess.ReceivedChunks)
	assert.False(t, sess.Finalized)

	// But they can carry the final flag.
	require.NoError(t, s.RecordSignalChunk(ctx, "sess-1", true))
	sess, err = s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, sess.Finalized)
	require.NotNil(t, sess.ExpectedChunks)
	assert.Equal(t, 1, *sess.ExpectedChunks)
}

func TestExpectedNeverDecreases(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestSession(t, s)

	for i := 1; i <= 3; i++ {
		_, err := s.RecordRealChunk(ctx, "sess-1", i, "k", false)
		require.NoError(t, err)
	}
	require.NoError(t, s.RecordSignalChunk(ctx, "sess-1", true))

	sess, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, sess.ExpectedChunks)
	assert.Equal(t, 3, *sess.ExpectedChunks)

	// A second final signal after no new chunks must not shrink it.
	require.NoError(t, s.RecordSignalChunk(ctx, "sess-1", true))
	sess, err = s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 3, *sess.ExpectedChunks)
}

func TestTryMarkSummaryEnqueued(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestSession(t, s)

	ok, err := s.TryMarkSummaryEnqueued(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Second claim loses the race.
	ok, err = s.TryMarkSummaryEnqueued(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFinishSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestSession(t, s)

	require.NoError(t, s.SaveTranscript(ctx, "sess-1", "hello world", 2, 30))

	title := "Weekly planning sync"
	require.NoError(t, s.FinishSession(ctx, "sess-1", "## Summary", &title))

	sess, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, sess.Complete)
	assert.False(t, sess.SummaryEnqueued)
	assert.Equal(t, "Weekly planning sync", sess.Title)
	require.NotNil(t, sess.Summary)
	assert.Equal(t, "## Summary", *sess.Summary)
	require.NotNil(t, sess.Transcript)
	assert.Equal(t, "hello world", *sess.Transcript)
	require.NotNil(t, sess.WordCount)
	assert.Equal(t, 2, *sess.WordCount)
	require.NotNil(t, sess.DurationSeconds)
	assert.Equal(t, 30, *sess.DurationSeconds)
}

func TestPendingChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestSession(t, s)

	for i := 1; i <= 3; i++ {
		_, err := s.RecordRealChunk(ctx, "sess-1", i, "k", false)
		require.NoError(t, err)
	}
	require.NoError(t, s.SetChunkText(ctx, "sess-1", 2, "middle"))

	pending, err := s.PendingChunks(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 1, pending[0].Index)
	assert.Equal(t, 3, pending[1].Index)
}

func TestStaleAndStuckQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestSession(t, s)

	future := time.Now().Add(time.Hour)

	stale, err := s.StaleUnfinalized(ctx, future)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "sess-1", stale[0].ID)

	stuck, err := s.StuckSessions(ctx, future)
	require.NoError(t, err)
	assert.Empty(t, stuck)

	require.NoError(t, s.MarkFinalized(ctx, "sess-1"))

	stale, err = s.StaleUnfinalized(ctx, future)
	require.NoError(t, err)
	assert.Empty(t, stale)

	stuck, err = s.StuckSessions(ctx, future)
	require.NoError(t, err)
	require.Len(t, stuck, 1)

	// Nothing is stale or stuck with a cutoff in the past.
	past := time.Now().Add(-time.Hour)
	stuck, err = s.StuckSessions(ctx, past)
	require.NoError(t, err)
	assert.Empty(t, stuck)
}

func TestUpdateConfigAndResetSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestSession(t, s)

	require.NoError(t, s.FinishSession(ctx, "sess-1", "## Old summary", nil))

	language := "French"
	require.NoError(t, s.UpdateConfigAndResetSummary(ctx, "sess-1", SessionConfig{
		SummaryLength:         "one_page",
		SummaryLanguageMode:   "custom",
		SummaryCustomLanguage: &language,
	}))

	sess, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, sess.Summary)
	assert.False(t, sess.Complete)
	assert.True(t, sess.SummaryEnqueued)
	assert.Equal(t, "one_page", sess.SummaryLength)
	assert.Equal(t, "custom", sess.SummaryLanguageMode)
	require.NotNil(t, sess.SummaryCustomLanguage)
	assert.Equal(t, "French", *sess.SummaryCustomLanguage)
}
