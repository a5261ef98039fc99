// Package stt abstracts speech-to-text over swappable backends.
package stt

import (
	"context"
	"fmt"

	"github.com/meetscribe/ingest-service/internal/config"
)

// Transcriber turns one audio fragment into text. Implementations are
// stateless and safe for concurrent use by the worker pool.
type Transcriber interface {
	// Transcribe returns the recognized text for the audio bytes. An empty
	// string with a nil error means the fragment contained no speech.
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// New selects the backend named by STT_BACKEND.
func New(cfg *config.Config) (Transcriber, error) {
	switch cfg.STTBackend {
	case "openai":
		return NewWhisperTranscriber(cfg.OpenAIAPIKey, cfg.WhisperModel), nil
	case "deepgram":
		return NewDeepgramTranscriber(cfg.DeepgramAPIKey, cfg.DeepgramModel, cfg.DeepgramLanguage), nil
	default:
		return nil, fmt.Errorf("unknown STT backend %q", cfg.STTBackend)
	}
}
