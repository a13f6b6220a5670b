package transcription

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/lexiqai/voice-transcribe/internal/resilience"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is the Whisper model used when none is configured
const DefaultOpenAIModel = openai.Whisper1

// OpenAIConfig configures the Whisper provider
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string // empty uses the public API
	Language   string
	HTTPClient *http.Client
}

// OpenAIProvider transcribes audio with the OpenAI Whisper API
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client *openai.Client
}

// NewOpenAIProvider creates the provider. A missing API key is reported by
// Ready and by every Transcribe call rather than here.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	p := &OpenAIProvider{cfg: cfg}
	if cfg.APIKey != "" {
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		if cfg.HTTPClient != nil {
			clientCfg.HTTPClient = cfg.HTTPClient
		}
		p.client = openai.NewClientWithConfig(clientCfg)
	}
	return p
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Ready() error {
	if p.client == nil {
		return newError(KindNotConfigured, MsgNotConfigured, nil)
	}
	return nil
}

// Transcribe sends the file unmodified to the transcriptions endpoint
func (p *OpenAIProvider) Transcribe(ctx context.Context, req Request) (*Result, error) {
	if err := p.Ready(); err != nil {
		return nil, err
	}
	if len(req.Audio) == 0 {
		return nil, newError(KindEmptyInput, MsgEmptyInput, nil)
	}

	language := req.Language
	if language == "" {
		language = p.cfg.Language
	}

	start := time.Now()
	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    p.cfg.Model,
		FilePath: req.FileName,
		Reader:   bytes.NewReader(req.Audio),
		Language: language,
	})
	if err != nil {
		return nil, p.translate(err)
	}

	return &Result{Text: resp.Text, Provider: p.Name(), Latency: time.Since(start)}, nil
}

func (p *OpenAIProvider) translate(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return Classify(apiErr.HTTPStatusCode, Redact(apiErr.Message, p.cfg.APIKey), err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return Classify(reqErr.HTTPStatusCode, "", err)
	}

	return transportError(err)
}

// transportError classifies a failure that never produced a service response
func transportError(err error) *Error {
	e := newError(KindUnavailable, MsgUnavailable, err)
	if errors.Is(err, context.DeadlineExceeded) {
		e.Message = "Transcription request timed out. Please try again."
		return e
	}
	if errors.Is(err, context.Canceled) {
		e.Message = "Transcription request was cancelled"
		return e
	}
	e.Retryable = resilience.IsRetryableNetworkError(err)
	if !e.Retryable {
		e.Kind = KindUpstream
		e.Message = MsgUpstream
	}
	return e
}
