package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/meetscribe/ingest-service/internal/observability"
)

// WhisperTranscriber transcribes audio through OpenAI's hosted Whisper API.
type WhisperTranscriber struct {
	client *openai.Client
	model  string
}

// NewWhisperTranscriber creates a Whisper-backed transcriber.
func NewWhisperTranscriber(apiKey, model string) *WhisperTranscriber {
	return &WhisperTranscriber{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Transcribe sends the audio bytes to the transcription endpoint.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	start := time.Now()
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:  w.model,
		Reader: bytes.NewReader(audio),
		// The API infers the container format from the file name.
		FilePath: "chunk.webm",
	})
	observability.RecordSTT(start, err)
	if err != nil {
		return "", fmt.Errorf("whisper transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
