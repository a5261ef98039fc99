package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/meetscribe/ingest-service/internal/blob"
	"github.com/meetscribe/ingest-service/internal/observability"
	"github.com/meetscribe/ingest-service/internal/resilience"
)

// runTranscription transcribes one chunk and runs the completion check. It
// is idempotent: re-running overwrites the chunk text with a fresh result.
// When every attempt fails the text stays null, leaving the chunk pending
// for the janitor sweep to re-drive.
func (p *Pipeline) runTranscription(ctx context.Context, task Task) error {
	log := observability.WithChunk(task.SessionID, task.ChunkIndex)

	audio, err := p.blobs.Get(ctx, task.StorageKey)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch chunk bytes")
		return err
	}

	audio = p.withHeader(ctx, task, audio)

	var text string
	err = resilience.Retry(ctx, p.settings.Retry, func(ctx context.Context) error {
		var terr error
		text, terr = p.transcriber.Transcribe(ctx, audio)
		return terr
	})
	if err != nil {
		// Retries exhausted: the chunk stays pending rather than being
		// marked permanently failed.
		observability.RecordError("transcription", "pipeline")
		log.Warn().Err(err).Msg("Transcription failed, chunk left pending")
		return err
	}

	if err := p.store.SetChunkText(ctx, task.SessionID, task.ChunkIndex, text); err != nil {
		return fmt.Errorf("persist chunk text: %w", err)
	}

	log.Debug().Int("chars", len(text)).Msg("Chunk transcribed")
	return p.maybeFinalize(ctx, task.SessionID)
}

// withHeader prepends the index-0 header chunk so the container format can
// be decoded standalone. An absent or implausibly large header falls back
// to the chunk's own bytes.
func (p *Pipeline) withHeader(ctx context.Context, task Task, audio []byte) []byte {
	if task.ChunkIndex == 0 {
		return audio
	}

	log := observability.WithChunk(task.SessionID, task.ChunkIndex)

	header, err := p.blobs.Get(ctx, blob.Key(task.SessionID, 0))
	if err != nil {
		if !errors.Is(err, blob.ErrNotFound) {
			log.Warn().Err(err).Msg("Header chunk unavailable, transcribing standalone")
		}
		return audio
	}

	if len(header) == 0 || len(header) > p.settings.HeaderMaxBytes {
		log.Warn().Int("header_size", len(header)).Msg("Header chunk implausible, transcribing standalone")
		return audio
	}

	combined := make([]byte, 0, len(header)+len(audio))
	combined = append(combined, header...)
	return append(combined, audio...)
}
