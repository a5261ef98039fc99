package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/meetscribe/ingest-service/internal/observability"
	"github.com/meetscribe/ingest-service/internal/store"
)

// SessionStatus is the polling payload: session fields plus derived counts
// and the live or final transcript.
type SessionStatus struct {
	ID                    string
	Title                 string
	CreatedAt             time.Time
	Done                  bool
	Finalized             bool
	ReceivedChunks        int
	ExpectedChunks        *int
	TranscribedChunks     int
	Transcript            string
	Summary               *string
	WordCount             *int
	DurationSeconds       *int
	SummaryLength         string
	SummaryLanguageMode   string
	SummaryCustomLanguage *string
	Context               *string
}

// Status reads one session's state. As side effects it auto-finalizes
// sessions whose client went quiet without a final marker, and lazily
// enqueues summarization when everything is transcribed but no trigger
// fired (the primary trigger path can be lost to crashes).
func (p *Pipeline) Status(ctx context.Context, sessionID string) (*SessionStatus, error) {
	sess, err := p.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !sess.Finalized && time.Since(sess.LastActivity) > p.settings.InactivityWindow {
		log := observability.WithSession(sessionID)
		log.Info().
			Time("last_activity", sess.LastActivity).
			Msg("Session inactive, auto-finalizing")
		if err := p.store.MarkFinalized(ctx, sessionID); err != nil {
			return nil, err
		}
		sess, err = p.store.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
	}

	transcribed, err := p.store.TranscribedCount(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !sess.Complete && !sess.SummaryEnqueued && sess.Summary == nil &&
		sess.Finalized && transcribed >= sess.EffectiveExpected() {
		claimed, err := p.store.TryMarkSummaryEnqueued(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		// Concurrent pollers race for the claim; only the winner enqueues.
		if claimed {
			p.queue.Enqueue(Task{Kind: TaskFinalize, SessionID: sessionID})
			sess.SummaryEnqueued = true
		}
	}

	transcript := ""
	if sess.Complete && sess.Transcript != nil {
		transcript = *sess.Transcript
	} else {
		transcript, err = p.liveTranscript(ctx, sessionID)
		if err != nil {
			return nil, err
		}
	}

	return &SessionStatus{
		ID:                    sess.ID,
		Title:                 sess.Title,
		CreatedAt:             sess.CreatedAt,
		Done:                  sess.Complete,
		Finalized:             sess.Finalized,
		ReceivedChunks:        sess.ReceivedChunks,
		ExpectedChunks:        sess.ExpectedChunks,
		TranscribedChunks:     transcribed,
		Transcript:            transcript,
		Summary:               sess.Summary,
		WordCount:             sess.WordCount,
		DurationSeconds:       sess.DurationSeconds,
		SummaryLength:         sess.SummaryLength,
		SummaryLanguageMode:   sess.SummaryLanguageMode,
		SummaryCustomLanguage: sess.SummaryCustomLanguage,
		Context:               sess.Context,
	}, nil
}

// liveTranscript builds the partial transcript shown while chunks are still
// arriving: a strictly contiguous prefix that stops at the first missing or
// pending index, so text never appears ahead of an unfilled gap.
func (p *Pipeline) liveTranscript(ctx context.Context, sessionID string) (string, error) {
	chunks, err := p.store.RealChunks(ctx, sessionID)
	if err != nil {
		return "", err
	}

	byIndex := make(map[int]*store.Chunk, len(chunks))
	for i := range chunks {
		byIndex[chunks[i].Index] = &chunks[i]
	}

	var parts []string
	for i := 1; ; i++ {
		c, ok := byIndex[i]
		if !ok || c.Text == nil {
			break
		}
		if t := strings.TrimSpace(*c.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}
