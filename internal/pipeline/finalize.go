package pipeline

import (
	"context"
	"strings"

	"github.com/meetscribe/ingest-service/internal/observability"
	"github.com/meetscribe/ingest-service/internal/summarize"
)

// finalize rebuilds the ordered transcript, derives its metrics and invokes
// summarization. It always terminates the session: empty input and summary
// failures are stored as terminal sentinels with complete set.
//
// It may be invoked more than once concurrently (last transcription task,
// lazy status trigger, janitor). Each run recomputes from persisted state,
// and the complete check below bounds, but deliberately does not eliminate,
// duplicate-finalization races.
func (p *Pipeline) finalize(ctx context.Context, sessionID string) error {
	log := observability.WithSession(sessionID)

	sess, err := p.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Complete {
		log.Debug().Msg("Session already complete, skipping finalization")
		return nil
	}

	chunks, err := p.store.RealChunks(ctx, sessionID)
	if err != nil {
		return err
	}

	var parts []string
	for _, c := range chunks {
		if c.Text != nil && strings.TrimSpace(*c.Text) != "" {
			parts = append(parts, strings.TrimSpace(*c.Text))
		}
	}
	transcript := strings.Join(parts, " ")

	// The duration is a coarse estimate (fixed seconds per real chunk),
	// not measured playback time.
	wordCount := len(strings.Fields(transcript))
	durationSeconds := len(chunks) * p.settings.SecondsPerChunk

	if err := p.store.SaveTranscript(ctx, sessionID, transcript, wordCount, durationSeconds); err != nil {
		return err
	}

	if len(strings.TrimSpace(transcript)) < p.settings.MinTranscriptChars {
		log.Info().Int("chars", len(transcript)).Msg("Transcript too short to summarize")
		if err := p.store.FinishSession(ctx, sessionID, summarize.TooShortSentinel, nil); err != nil {
			return err
		}
		observability.RecordSessionCompleted()
		return nil
	}

	cfg := summarize.Config{
		Length:       sess.SummaryLength,
		LanguageMode: sess.SummaryLanguageMode,
	}
	if sess.SummaryCustomLanguage != nil {
		cfg.CustomLanguage = *sess.SummaryCustomLanguage
	}
	if sess.Context != nil {
		cfg.Context = *sess.Context
	}

	var summary string
	err = p.breaker.Call(func() error {
		var serr error
		summary, serr = p.summarizer.Summarize(ctx, transcript, cfg)
		return serr
	})
	if err != nil {
		// A failed summary is a distinguishable terminal state, not an
		// infinite pending one.
		observability.RecordError("summarization", "pipeline")
		log.Error().Err(err).Msg("Summary generation failed")
		if err := p.store.FinishSession(ctx, sessionID, summarize.FailedSentinel, nil); err != nil {
			return err
		}
		observability.RecordSessionCompleted()
		return nil
	}

	var title *string
	if sess.Title == PlaceholderTitle || sess.Title == "" {
		if derived := titleFromSummary(summary); derived != "" {
			title = &derived
		}
	}

	if err := p.store.FinishSession(ctx, sessionID, summary, title); err != nil {
		return err
	}
	observability.RecordSessionCompleted()
	log.Info().Int("words", wordCount).Msg("Session finalized")
	return nil
}

// titleFromSummary derives a session title from the summary's first heading
// or, failing that, its first non-empty line.
func titleFromSummary(summary string) string {
	for _, line := range strings.Split(summary, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
		if line == "" {
			continue
		}
		// Truncate on rune boundaries so non-ASCII headings stay valid UTF-8.
		const maxTitle = 80
		if runes := []rune(line); len(runes) > maxTitle {
			line = strings.TrimSpace(string(runes[:maxTitle]))
		}
		return line
	}
	return ""
}
