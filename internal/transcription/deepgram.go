package transcription

import (
	"bytes"
	"context"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/lexiqai/voice-transcribe/internal/resilience"
)

// DefaultDeepgramModel is used when no model is configured
const DefaultDeepgramModel = "nova-2"

// DeepgramConfig configures the Deepgram pre-recorded provider
type DeepgramConfig struct {
	APIKey   string
	Model    string
	Language string
}

// DeepgramProvider transcribes audio with Deepgram's pre-recorded API
type DeepgramProvider struct {
	cfg    DeepgramConfig
	client *api.Client
}

// NewDeepgramProvider creates the provider. A missing API key is reported by
// Ready and by every Transcribe call.
func NewDeepgramProvider(cfg DeepgramConfig) *DeepgramProvider {
	if cfg.Model == "" {
		cfg.Model = DefaultDeepgramModel
	}

	p := &DeepgramProvider{cfg: cfg}
	if cfg.APIKey != "" {
		c := listenClient.NewREST(cfg.APIKey, &interfaces.ClientOptions{})
		p.client = api.New(c)
	}
	return p
}

func (p *DeepgramProvider) Name() string {
	return "deepgram"
}

func (p *DeepgramProvider) Ready() error {
	if p.client == nil {
		return newError(KindNotConfigured, MsgNotConfigured, nil)
	}
	return nil
}

func (p *DeepgramProvider) Transcribe(ctx context.Context, req Request) (*Result, error) {
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

	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       p.cfg.Model,
		Language:    language,
		Punctuate:   true,
		SmartFormat: true,
	}

	start := time.Now()
	res, err := p.client.FromStream(ctx, bytes.NewReader(req.Audio), options)
	if err != nil {
		if resilience.IsRetryableNetworkError(err) || ctx.Err() != nil {
			return nil, transportError(err)
		}
		return nil, Classify(0, Redact(err.Error(), p.cfg.APIKey), err)
	}

	text := ""
	if res != nil && res.Results != nil && len(res.Results.Channels) > 0 &&
		len(res.Results.Channels[0].Alternatives) > 0 {
		text = res.Results.Channels[0].Alternatives[0].Transcript
	}
	if text == "" {
		return nil, newError(KindNoSpeech, MsgNoSpeech, nil)
	}

	return &Result{Text: text, Provider: p.Name(), Latency: time.Since(start)}, nil
}
