// Package pipeline implements the chunk-ingestion and finalization pipeline:
// the ingest path, the background transcription task, the finalization
// routine, the status read path and the janitor sweep.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/meetscribe/ingest-service/internal/blob"
	"github.com/meetscribe/ingest-service/internal/config"
	"github.com/meetscribe/ingest-service/internal/observability"
	"github.com/meetscribe/ingest-service/internal/resilience"
	"github.com/meetscribe/ingest-service/internal/store"
	"github.com/meetscribe/ingest-service/internal/stt"
	"github.com/meetscribe/ingest-service/internal/summarize"
)

// PlaceholderTitle is the system-assigned title for sessions created without
// one. Finalization replaces it with a title derived from the summary.
const PlaceholderTitle = "New Recording"

// Settings are the tuning knobs the pipeline needs from configuration.
type Settings struct {
	MinChunkBytes      int
	HeaderMaxBytes     int
	MinTranscriptChars int
	SecondsPerChunk    int
	InactivityWindow   time.Duration
	StuckWindow        time.Duration
	Retry              *resilience.RetryConfig
}

// SettingsFromConfig derives pipeline settings from the service config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		MinChunkBytes:      cfg.MinChunkBytes,
		HeaderMaxBytes:     cfg.HeaderMaxBytes,
		MinTranscriptChars: cfg.MinTranscriptChars,
		SecondsPerChunk:    cfg.SecondsPerChunk,
		InactivityWindow:   cfg.InactivityWindow(),
		StuckWindow:        cfg.StuckWindow(),
		Retry: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
		},
	}
}

// Pipeline wires the persistent records, chunk storage, AI collaborators and
// the task queue together. All dependencies are explicit so tests can swap
// in fakes.
type Pipeline struct {
	store       *store.Store
	blobs       blob.Store
	transcriber stt.Transcriber
	summarizer  summarize.Summarizer
	breaker     *resilience.CircuitBreaker
	queue       *Queue
	settings    Settings
	log         zerolog.Logger
}

// New creates a pipeline. The breaker guards the summarization service; a
// rejected call is a terminal summary failure like any other.
func New(st *store.Store, blobs blob.Store, transcriber stt.Transcriber, summarizer summarize.Summarizer, queue *Queue, settings Settings, breaker *resilience.CircuitBreaker) *Pipeline {
	return &Pipeline{
		store:       st,
		blobs:       blobs,
		transcriber: transcriber,
		summarizer:  summarizer,
		breaker:     breaker,
		queue:       queue,
		settings:    settings,
		log:         observability.GetLogger(),
	}
}

// Handle dispatches one background task. It is the worker pool entry point.
func (p *Pipeline) Handle(ctx context.Context, task Task) error {
	switch task.Kind {
	case TaskTranscribe:
		return p.runTranscription(ctx, task)
	case TaskFinalize:
		return p.finalize(ctx, task.SessionID)
	default:
		p.log.Error().Str("kind", string(task.Kind)).Msg("Unknown task kind")
		return nil
	}
}

// maybeFinalize runs the completion check and enqueues finalization when the
// session is finalized and every expected chunk has been transcribed.
func (p *Pipeline) maybeFinalize(ctx context.Context, sessionID string) error {
	sess, err := p.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	transcribed, err := p.store.TranscribedCount(ctx, sessionID)
	if err != nil {
		return err
	}

	expected := sess.EffectiveExpected()
	p.log.Debug().
		Str("session_id", sessionID).
		Int("transcribed", transcribed).
		Int("expected", expected).
		Bool("finalized", sess.Finalized).
		Bool("complete", sess.Complete).
		Msg("Completion check")

	if !sess.Complete && sess.Finalized && expected > 0 && transcribed >= expected {
		p.queue.Enqueue(Task{Kind: TaskFinalize, SessionID: sessionID})
	}
	return nil
}
