package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	listenv1rest "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/meetscribe/ingest-service/internal/observability"
)

// DeepgramTranscriber transcribes audio through Deepgram's pre-recorded API.
type DeepgramTranscriber struct {
	client   *listenv1rest.Client
	model    string
	language string
}

// NewDeepgramTranscriber creates a Deepgram-backed transcriber.
func NewDeepgramTranscriber(apiKey, model, language string) *DeepgramTranscriber {
	rest := listenClient.NewREST(apiKey, &interfaces.ClientOptions{})
	return &DeepgramTranscriber{
		client:   listenv1rest.New(rest),
		model:    model,
		language: language,
	}
}

// Transcribe sends the audio bytes to the pre-recorded transcription endpoint.
func (d *DeepgramTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       d.model,
		Language:    d.language,
		SmartFormat: true,
	}

	start := time.Now()
	resp, err := d.client.FromStream(ctx, bytes.NewReader(audio), options)
	observability.RecordSTT(start, err)
	if err != nil {
		return "", fmt.Errorf("deepgram transcription: %w", err)
	}

	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Results.Channels[0].Alternatives[0].Transcript), nil
}
