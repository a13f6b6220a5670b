// Package transcription forwards recorded audio to a hosted speech-to-text
// service and translates its failures into messages fit for end users.
package transcription

import (
	"context"
	"time"
)

// Request is one audio file to transcribe. Audio is held in memory so a
// retried call can resend it unchanged.
type Request struct {
	FileName string
	MIMEType string
	Audio    []byte
	Language string
}

// Result is a completed transcription
type Result struct {
	Text     string
	Provider string
	Latency  time.Duration
}

// Provider is a speech-to-text backend
type Provider interface {
	// Name identifies the provider in logs and metrics
	Name() string
	// Ready returns a KindNotConfigured error when credentials are missing
	Ready() error
	Transcribe(ctx context.Context, req Request) (*Result, error)
}
