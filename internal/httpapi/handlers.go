// Package httpapi exposes the ingest pipeline over HTTP: session CRUD, the
// multipart chunk upload endpoint, the status poll and summary regeneration.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meetscribe/ingest-service/internal/observability"
	"github.com/meetscribe/ingest-service/internal/pipeline"
	"github.com/meetscribe/ingest-service/internal/store"
)

// maxChunkUpload caps one multipart upload held in memory.
const maxChunkUpload = 32 << 20

// Handlers holds the HTTP handler methods for the ingest API.
type Handlers struct {
	pipeline *pipeline.Pipeline
	store    *store.Store
	log      zerolog.Logger
}

// NewHandlers creates a Handlers backed by the given pipeline and store.
func NewHandlers(p *pipeline.Pipeline, st *store.Store) *Handlers {
	return &Handlers{pipeline: p, store: st, log: observability.GetLogger()}
}

// RegisterRoutes registers the API plus the health and readiness endpoints
// on the given mux. The metrics endpoint is registered by the caller so it
// can be disabled by configuration.
func RegisterRoutes(mux *http.ServeMux, h *Handlers, checks map[string]observability.HealthCheckFunc) {
	mux.HandleFunc("POST /api/sessions", h.HandleCreateSession)
	mux.HandleFunc("GET /api/sessions", h.HandleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", h.HandleSessionStatus)
	mux.HandleFunc("POST /api/sessions/{id}/regenerate", h.HandleRegenerate)
	mux.HandleFunc("POST /api/chunks", h.HandleChunkUpload)

	mux.HandleFunc("GET /health", observability.HealthCheckHandler())
	mux.HandleFunc("GET /ready", observability.ReadinessHandler(checks))
}

// HandleCreateSession starts a new recording session and returns its
// initial status payload.
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	title := req.Title
	if title == "" {
		title = pipeline.PlaceholderTitle
	}

	id := uuid.NewString()
	_, err := h.store.CreateSession(r.Context(), id, title, store.SessionConfig{
		SummaryLength:         req.SummaryLength,
		SummaryLanguageMode:   req.SummaryLanguageMode,
		SummaryCustomLanguage: req.SummaryCustomLanguage,
		Context:               req.Context,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create session")
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	observability.RecordSessionCreated()

	status, err := h.pipeline.Status(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(status))
}

// HandleListSessions returns the session history, newest first.
func (h *Handlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list sessions")
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	items := make([]SessionListItem, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, SessionListItem{
			ID:              s.ID,
			Title:           s.Title,
			CreatedAt:       s.CreatedAt,
			Done:            s.Complete,
			WordCount:       s.WordCount,
			DurationSeconds: s.DurationSeconds,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleSessionStatus returns one session's status payload. Polling this
// endpoint also drives the lazy recovery triggers.
func (h *Handlers) HandleSessionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.pipeline.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.log.Error().Err(err).Msg("Failed to read session status")
		writeError(w, http.StatusInternalServerError, "failed to read session status")
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(status))
}

// HandleRegenerate updates summarization settings and queues a fresh
// summary over the existing transcript.
func (h *Handlers) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req RegenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id := r.PathValue("id")
	err := h.pipeline.Regenerate(r.Context(), id, store.SessionConfig{
		SummaryLength:         req.SummaryLength,
		SummaryLanguageMode:   req.SummaryLanguageMode,
		SummaryCustomLanguage: req.SummaryCustomLanguage,
		Context:               req.Context,
	})
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		if errors.Is(err, pipeline.ErrSessionNotComplete) {
			writeError(w, http.StatusConflict, "session is still processing")
			return
		}
		h.log.Error().Err(err).Msg("Failed to regenerate summary")
		writeError(w, http.StatusInternalServerError, "failed to regenerate summary")
		return
	}

	status, err := h.pipeline.Status(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read session status")
		return
	}
	writeJSON(w, http.StatusAccepted, toSessionResponse(status))
}

// HandleChunkUpload accepts one multipart audio chunk: session_id,
// chunk_index, is_final and the file part. It persists and enqueues, then
// returns without waiting for transcription.
func (h *Handlers) HandleChunkUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxChunkUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	index, err := strconv.Atoi(r.FormValue("chunk_index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "chunk_index must be a non-negative integer")
		return
	}

	isFinal, _ := strconv.ParseBool(r.FormValue("is_final"))

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file part is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file part")
		return
	}

	res, err := h.pipeline.IngestChunk(r.Context(), sessionID, index, data, isFinal)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.log.Error().Err(err).
			Str("session_id", sessionID).Int("chunk_index", index).
			Msg("Chunk ingest failed")
		writeError(w, http.StatusInternalServerError, "chunk ingest failed")
		return
	}

	writeJSON(w, http.StatusOK, ChunkResponse{OK: true, Skipped: res.Skipped})
}

func toSessionResponse(s *pipeline.SessionStatus) SessionResponse {
	return SessionResponse{
		ID:                    s.ID,
		Title:                 s.Title,
		CreatedAt:             s.CreatedAt,
		Done:                  s.Done,
		Finalized:             s.Finalized,
		ReceivedChunks:        s.ReceivedChunks,
		ExpectedChunks:        s.ExpectedChunks,
		TranscribedChunks:     s.TranscribedChunks,
		Transcript:            s.Transcript,
		Summary:               s.Summary,
		WordCount:             s.WordCount,
		DurationSeconds:       s.DurationSeconds,
		SummaryLength:         s.SummaryLength,
		SummaryLanguageMode:   s.SummaryLanguageMode,
		SummaryCustomLanguage: s.SummaryCustomLanguage,
		Context:               s.Context,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
