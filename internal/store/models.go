// Package store persists recording sessions and their uploaded chunks in SQLite.
package store

import "time"

// Session tracks ingestion progress and the final result for one recording.
type Session struct {
	ID                    string
	Title                 string
	CreatedAt             time.Time
	LastActivity          time.Time
	ExpectedChunks        *int // total real chunks promised, set at finalization
	ReceivedChunks        int  // real chunks seen so far
	Finalized             bool // client declared or system inferred "no more chunks"
	Transcript            *string
	Summary               *string
	Complete              bool
	SummaryEnqueued       bool // guards duplicate lazy summary triggers
	WordCount             *int
	DurationSeconds       *int
	SummaryLength         string // auto, quarter, half, one_page, two_page
	SummaryLanguageMode   string // auto, fixed, custom
	SummaryCustomLanguage *string
	Context               *string
}

// EffectiveExpected is the completion bar: the promised chunk count once the
// session is finalized, otherwise the continuously rising received count.
func (s *Session) EffectiveExpected() int {
	if s.Finalized && s.ExpectedChunks != nil {
		return *s.ExpectedChunks
	}
	return s.ReceivedChunks
}

// Chunk tracks one uploaded fragment. Index 0 is the container header and is
// never transcribed or counted. A nil Text means transcription is pending,
// an empty string means processed with no speech.
type Chunk struct {
	ID         int64
	SessionID  string
	Index      int
	StorageKey string
	Text       *string
}

// SessionConfig carries the summarization settings supplied at creation
// or by a regenerate request.
type SessionConfig struct {
	SummaryLength         string
	SummaryLanguageMode   string
	SummaryCustomLanguage *string
	Context               *string
}
