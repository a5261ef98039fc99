package pipeline

import (
	"context"
	"time"

	"github.com/meetscribe/ingest-service/internal/observability"
)

// RunJanitor sweeps once immediately (to recover work lost to a crash) and
// then on every tick until the context is cancelled.
func (p *Pipeline) RunJanitor(ctx context.Context, period time.Duration) error {
	p.Sweep(ctx)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep repairs stalled sessions: it force-finalizes sessions whose client
// went quiet, re-enqueues transcription for chunks left pending past the
// stuck window, and re-runs finalization for sessions where everything is
// transcribed but the terminal transition itself was lost.
func (p *Pipeline) Sweep(ctx context.Context) {
	observability.RecordJanitorSweep()
	now := time.Now()

	stale, err := p.store.StaleUnfinalized(ctx, now.Add(-p.settings.InactivityWindow))
	if err != nil {
		p.log.Error().Err(err).Msg("Janitor: stale session query failed")
	}
	for _, sess := range stale {
		log := observability.WithSession(sess.ID)
		if err := p.store.MarkFinalized(ctx, sess.ID); err != nil {
			log.Error().Err(err).Msg("Janitor: force-finalize failed")
			continue
		}
		observability.RecordJanitorRecovery("finalized")
		log.Info().Msg("Janitor: force-finalized inactive session")

		if err := p.maybeFinalize(ctx, sess.ID); err != nil {
			log.Error().Err(err).Msg("Janitor: completion check failed")
		}
	}

	stuck, err := p.store.StuckSessions(ctx, now.Add(-p.settings.StuckWindow))
	if err != nil {
		p.log.Error().Err(err).Msg("Janitor: stuck session query failed")
		return
	}
	for _, sess := range stuck {
		log := observability.WithSession(sess.ID)

		pending, err := p.store.PendingChunks(ctx, sess.ID)
		if err != nil {
			log.Error().Err(err).Msg("Janitor: pending chunk query failed")
			continue
		}

		if len(pending) == 0 {
			// Everything is transcribed yet the session never completed:
			// finalization itself failed, so run it again directly.
			observability.RecordJanitorRecovery("resummarized")
			log.Info().Msg("Janitor: re-running finalization for stuck session")
			if err := p.finalize(ctx, sess.ID); err != nil {
				log.Error().Err(err).Msg("Janitor: finalization failed")
			}
			continue
		}

		for _, c := range pending {
			p.queue.Enqueue(Task{
				Kind:       TaskTranscribe,
				SessionID:  sess.ID,
				ChunkIndex: c.Index,
				StorageKey: c.StorageKey,
			})
		}
		observability.RecordJanitorRecovery("requeued")
		log.Info().Int("chunks", len(pending)).Msg("Janitor: re-enqueued pending chunks")

		// Bump activity so the next sweep does not re-trigger the same
		// recovery before the new tasks have had a chance to run.
		if err := p.store.TouchActivity(ctx, sess.ID); err != nil {
			log.Error().Err(err).Msg("Janitor: activity touch failed")
		}
	}
}
