package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetscribe/ingest-service/internal/blob"
	"github.com/meetscribe/ingest-service/internal/httpapi"
	"github.com/meetscribe/ingest-service/internal/observability"
	"github.com/meetscribe/ingest-service/internal/pipeline"
	"github.com/meetscribe/ingest-service/internal/resilience"
	"github.com/meetscribe/ingest-service/internal/store"
	"github.com/meetscribe/ingest-service/internal/summarize"
)

type echoTranscriber struct{}

func (echoTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return "spoken words from the chunk", nil
}

type countingSummarizer struct {
	calls atomic.Int64
}

func (c *countingSummarizer) Summarize(ctx context.Context, transcript string, cfg summarize.Config) (string, error) {
	c.calls.Add(1)
	return "## Team Sync\nNotes about " + cfg.Length + " length.", nil
}

type testServer struct {
	srv        *httptest.Server
	store      *store.Store
	summarizer *countingSummarizer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "api.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	blobs, err := blob.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	sum := &countingSummarizer{}
	queue := pipeline.NewQueue(64)
	breaker := resilience.NewCircuitBreaker("summarizer", 100, time.Minute)
	settings := pipeline.Settings{
		MinChunkBytes:      8,
		HeaderMaxBytes:     1024,
		MinTranscriptChars: 10,
		SecondsPerChunk:    30,
		InactivityWindow:   time.Hour,
		StuckWindow:        time.Hour,
		Retry: &resilience.RetryConfig{
			MaxAttempts:       2,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        5 * time.Millisecond,
			BackoffMultiplier: 2.0,
		},
	}
	p := pipeline.New(st, blobs, echoTranscriber{}, sum, queue, settings, breaker)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go queue.RunWorkers(ctx, 2, p.Handle) //nolint:errcheck

	mux := http.NewServeMux()
	checks := map[string]observability.HealthCheckFunc{
		"database": func(ctx context.Context) (bool, error) { return true, nil },
	}
	httpapi.RegisterRoutes(mux, httpapi.NewHandlers(p, st), checks)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, store: st, summarizer: sum}
}

func (ts *testServer) createSession(t *testing.T, body string) httpapi.SessionResponse {
	t.Helper()
	resp, err := http.Post(ts.srv.URL+"/api/sessions", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out httpapi.SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (ts *testServer) uploadChunk(t *testing.T, sessionID string, index int, data []byte, final bool) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("session_id", sessionID))
	require.NoError(t, mw.WriteField("chunk_index", strconv.Itoa(index)))
	require.NoError(t, mw.WriteField("is_final", strconv.FormatBool(final)))
	fw, err := mw.CreateFormFile("file", "chunk.webm")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.srv.URL+"/api/chunks", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	return resp
}

func (ts *testServer) waitComplete(t *testing.T, sessionID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		sess, err := ts.store.GetSession(context.Background(), sessionID)
		return err == nil && sess.Complete
	}, 2*time.Second, 10*time.Millisecond)
}

func audioBytes() []byte {
	return bytes.Repeat([]byte("audio-payload-"), 4)
}

func TestCreateSession(t *testing.T) {
	ts := newTestServer(t)

	created := ts.createSession(t, `{"title":"Standup","summary_length":"half"}`)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Standup", created.Title)
	assert.Equal(t, "half", created.SummaryLength)
	assert.False(t, created.Done)
	assert.Equal(t, 0, created.ReceivedChunks)

	// An empty body yields the placeholder title and default settings.
	defaulted := ts.createSession(t, "")
	assert.Equal(t, pipeline.PlaceholderTitle, defaulted.Title)
	assert.Equal(t, "auto", defaulted.SummaryLength)
}

func TestChunkUploadToCompletion(t *testing.T) {
	ts := newTestServer(t)
	created := ts.createSession(t, "{}")

	resp := ts.uploadChunk(t, created.ID, 1, audioBytes(), true)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ack httpapi.ChunkResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	assert.True(t, ack.OK)
	assert.False(t, ack.Skipped)

	ts.waitComplete(t, created.ID)

	statusResp, err := http.Get(ts.srv.URL + "/api/sessions/" + created.ID)
	require.NoError(t, err)
	defer statusResp.Body.Close()
	require.Equal(t, http.StatusOK, statusResp.StatusCode)

	var status httpapi.SessionResponse
	require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&status))
	assert.True(t, status.Done)
	assert.Equal(t, "spoken words from the chunk", status.Transcript)
	require.NotNil(t, status.Summary)
	assert.Contains(t, *status.Summary, "Team Sync")
	require.NotNil(t, status.DurationSeconds)
	assert.Equal(t, 30, *status.DurationSeconds)
}

func TestSignalChunkIsSkipped(t *testing.T) {
	ts := newTestServer(t)
	created := ts.createSession(t, "{}")

	resp := ts.uploadChunk(t, created.ID, 0, []byte("x"), false)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ack httpapi.ChunkResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	assert.True(t, ack.OK)
	assert.True(t, ack.Skipped)
}

func TestChunkUploadValidation(t *testing.T) {
	ts := newTestServer(t)
	created := ts.createSession(t, "{}")

	// Unknown session.
	resp := ts.uploadChunk(t, "no-such-session", 1, audioBytes(), false)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Malformed index.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("session_id", created.ID))
	require.NoError(t, mw.WriteField("chunk_index", "not-a-number"))
	fw, err := mw.CreateFormFile("file", "chunk.webm")
	require.NoError(t, err)
	_, err = fw.Write(audioBytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	resp2, err := http.Post(ts.srv.URL+"/api/chunks", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)

	// Missing file part.
	var buf2 bytes.Buffer
	mw2 := multipart.NewWriter(&buf2)
	require.NoError(t, mw2.WriteField("session_id", created.ID))
	require.NoError(t, mw2.WriteField("chunk_index", "1"))
	require.NoError(t, mw2.Close())
	resp3, err := http.Post(ts.srv.URL+"/api/chunks", mw2.FormDataContentType(), &buf2)
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp3.StatusCode)
}

func TestStatusUnknownSession(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/api/sessions/no-such-session")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListSessions(t *testing.T) {
	ts := newTestServer(t)
	ts.createSession(t, `{"title":"First"}`)
	ts.createSession(t, `{"title":"Second"}`)

	resp, err := http.Get(ts.srv.URL + "/api/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var items []httpapi.SessionListItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	assert.Len(t, items, 2)
}

func TestRegenerateSummary(t *testing.T) {
	ts := newTestServer(t)
	created := ts.createSession(t, "{}")

	resp := ts.uploadChunk(t, created.ID, 1, audioBytes(), true)
	resp.Body.Close()
	ts.waitComplete(t, created.ID)
	require.EqualValues(t, 1, ts.summarizer.calls.Load())

	regenResp, err := http.Post(ts.srv.URL+"/api/sessions/"+created.ID+"/regenerate",
		"application/json", strings.NewReader(`{"summary_length":"two_page"}`))
	require.NoError(t, err)
	defer regenResp.Body.Close()
	require.Equal(t, http.StatusAccepted, regenResp.StatusCode)

	ts.waitComplete(t, created.ID)
	require.Eventually(t, func() bool {
		return ts.summarizer.calls.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)

	sess, err := ts.store.GetSession(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "two_page", sess.SummaryLength)
	require.NotNil(t, sess.Summary)
	assert.Contains(t, *sess.Summary, "two_page")

	// Unknown session.
	missing, err := http.Post(ts.srv.URL+"/api/sessions/no-such-session/regenerate",
		"application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestRegenerateIncompleteSession(t *testing.T) {
	ts := newTestServer(t)
	created := ts.createSession(t, "{}")

	// No chunks yet, so the session has no terminal result to regenerate.
	resp, err := http.Post(ts.srv.URL+"/api/sessions/"+created.ID+"/regenerate",
		"application/json", strings.NewReader(`{"summary_length":"half"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.EqualValues(t, 0, ts.summarizer.calls.Load())
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/health", "/ready"} {
		resp, err := http.Get(ts.srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
