package httpapi

import "time"

// CreateSessionRequest starts a new recording session. All fields are
// optional; summarization settings default to "auto".
type CreateSessionRequest struct {
	Title                 string  `json:"title,omitempty"`
	SummaryLength         string  `json:"summary_length,omitempty"`
	SummaryLanguageMode   string  `json:"summary_language_mode,omitempty"`
	SummaryCustomLanguage *string `json:"summary_custom_language,omitempty"`
	Context               *string `json:"context,omitempty"`
}

// RegenerateRequest updates summarization settings and requests a fresh
// summary. Omitted fields keep their current values.
type RegenerateRequest struct {
	SummaryLength         string  `json:"summary_length,omitempty"`
	SummaryLanguageMode   string  `json:"summary_language_mode,omitempty"`
	SummaryCustomLanguage *string `json:"summary_custom_language,omitempty"`
	Context               *string `json:"context,omitempty"`
}

// SessionResponse is the polling payload for one session.
type SessionResponse struct {
	ID                    string    `json:"id"`
	Title                 string    `json:"title"`
	CreatedAt             time.Time `json:"created_at"`
	Done                  bool      `json:"done"`
	Finalized             bool      `json:"finalized"`
	ReceivedChunks        int       `json:"received_chunks"`
	ExpectedChunks        *int      `json:"expected_chunks"`
	TranscribedChunks     int       `json:"transcribed_chunks"`
	Transcript            string    `json:"transcript"`
	Summary               *string   `json:"summary"`
	WordCount             *int      `json:"word_count"`
	DurationSeconds       *int      `json:"duration_seconds"`
	SummaryLength         string    `json:"summary_length"`
	SummaryLanguageMode   string    `json:"summary_language_mode"`
	SummaryCustomLanguage *string   `json:"summary_custom_language,omitempty"`
	Context               *string   `json:"context,omitempty"`
}

// SessionListItem is one row of the session history listing.
type SessionListItem struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	CreatedAt       time.Time `json:"created_at"`
	Done            bool      `json:"done"`
	WordCount       *int      `json:"word_count"`
	DurationSeconds *int      `json:"duration_seconds"`
}

// ChunkResponse acknowledges one chunk upload. Skipped marks signal-only
// chunks that carried no transcribable audio.
type ChunkResponse struct {
	OK      bool `json:"ok"`
	Skipped bool `json:"skipped,omitempty"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
