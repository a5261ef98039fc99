package pipeline

import (
	"context"
	"errors"

	"github.com/meetscribe/ingest-service/internal/store"
)

// ErrSessionNotComplete is returned when regeneration is requested for a
// session that has not reached its terminal state yet.
var ErrSessionNotComplete = errors.New("session has not completed")

// Regenerate applies new summarization settings to a completed session,
// discards its current summary and queues a fresh finalization run. The
// existing transcript is reused; no audio is re-transcribed.
//
// Sessions still mid-recording are rejected: finalizing them here would
// store a partial transcript as the terminal result.
func (p *Pipeline) Regenerate(ctx context.Context, sessionID string, cfg store.SessionConfig) error {
	sess, err := p.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !sess.Complete {
		return ErrSessionNotComplete
	}

	if err := p.store.UpdateConfigAndResetSummary(ctx, sessionID, cfg); err != nil {
		return err
	}
	p.log.Info().Str("session_id", sessionID).Msg("Regenerating summary")
	p.queue.Enqueue(Task{Kind: TaskFinalize, SessionID: sessionID})
	return nil
}
