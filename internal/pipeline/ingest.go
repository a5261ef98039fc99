package pipeline

import (
	"context"
	"fmt"

	"github.com/meetscribe/ingest-service/internal/blob"
	"github.com/meetscribe/ingest-service/internal/observability"
)

// IngestResult reports how one upload was handled.
type IngestResult struct {
	// Skipped is true for signal-only chunks: the index-0 header and
	// anything below the minimum-bytes threshold. They carry the final
	// flag but are never transcribed or counted.
	Skipped bool
}

// IngestChunk persists one uploaded fragment and enqueues its transcription.
// It returns as soon as records are updated and the task is queued; it never
// waits on transcription. Storage failures propagate to the caller.
func (p *Pipeline) IngestChunk(ctx context.Context, sessionID string, index int, data []byte, isFinal bool) (*IngestResult, error) {
	// Unknown sessions are rejected before any bytes are stored.
	if _, err := p.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	key := blob.Key(sessionID, index)
	if err := p.blobs.Put(ctx, key, data); err != nil {
		return nil, fmt.Errorf("store chunk bytes: %w", err)
	}

	signalOnly := index == 0 || len(data) < p.settings.MinChunkBytes
	observability.RecordChunkReceived(!signalOnly, len(data))

	log := observability.WithChunk(sessionID, index)

	if signalOnly {
		log.Debug().Bool("is_final", isFinal).Int("size", len(data)).Msg("Signal-only chunk")
		if err := p.store.RecordSignalChunk(ctx, sessionID, isFinal); err != nil {
			return nil, err
		}
		if isFinal {
			// The final marker may arrive after every real chunk is
			// already transcribed; check completion now rather than
			// waiting for a poll or the janitor.
			if err := p.maybeFinalize(ctx, sessionID); err != nil {
				return nil, err
			}
		}
		return &IngestResult{Skipped: true}, nil
	}

	resumed, err := p.store.RecordRealChunk(ctx, sessionID, index, key, isFinal)
	if err != nil {
		return nil, err
	}
	if resumed {
		observability.RecordSessionResumed()
		log.Info().Msg("Completed session reopened by late chunk")
	}

	p.queue.Enqueue(Task{
		Kind:       TaskTranscribe,
		SessionID:  sessionID,
		ChunkIndex: index,
		StorageKey: key,
	})

	log.Debug().Bool("is_final", isFinal).Int("size", len(data)).Msg("Chunk queued for transcription")
	return &IngestResult{}, nil
}
