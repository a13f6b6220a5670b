package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Supported transcription providers
const (
	ProviderOpenAI   = "openai"
	ProviderDeepgram = "deepgram"
)

// Config holds all configuration for the transcription relay
type Config struct {
	// Server configuration
	Port           string `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	TranscribePath string `envconfig:"TRANSCRIBE_PATH" default:"/api/transcribe" validate:"startswith=/"`

	// Provider selection: openai or deepgram
	Provider string `envconfig:"TRANSCRIPTION_PROVIDER" default:"openai" validate:"oneof=openai deepgram"`

	// OpenAI transcription configuration. A missing key fails each request, not startup.
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"whisper-1"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:"" validate:"omitempty,url"` // Override for proxies and tests

	// Deepgram pre-recorded transcription configuration
	DeepgramAPIKey string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel  string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"` // nova-2, enhanced, base

	// Shared request options
	Language             string `envconfig:"TRANSCRIPTION_LANGUAGE" default:""`                   // Empty lets the provider detect
	TranscriptionTimeout int    `envconfig:"TRANSCRIPTION_TIMEOUT" default:"60" validate:"gte=0"` // seconds
	MaxUploadBytes       int64  `envconfig:"MAX_UPLOAD_BYTES" default:"26214400" validate:"gt=0"`

	// Silence guard for uncompressed uploads
	SilenceGuardEnabled bool    `envconfig:"SILENCE_GUARD_ENABLED" default:"false"`
	VADEnergyThreshold  float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"` // RMS energy threshold for VAD
	VADSilenceFrames    int     `envconfig:"VAD_SILENCE_FRAMES" default:"10"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`        // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"`      // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"1" validate:"gte=1"` // 1 disables retries
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"500"`             // milliseconds

	// HTTP server timeouts in seconds
	HTTPReadTimeout  int `envconfig:"HTTP_READ_TIMEOUT" default:"30"`
	HTTPWriteTimeout int `envconfig:"HTTP_WRITE_TIMEOUT" default:"90"`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// RecorderConfig holds configuration for the recorder CLI
type RecorderConfig struct {
	RelayURL        string   `envconfig:"RELAY_URL" default:"http://localhost:8080/api/transcribe" validate:"required,url"`
	ChunkIntervalMS int      `envconfig:"RECORDER_CHUNK_INTERVAL_MS" default:"1000" validate:"gt=0"`
	Formats         []string `envconfig:"RECORDER_FORMATS" default:"audio/mp4,audio/wav,audio/webm;codecs=opus"`
	SampleRate      int      `envconfig:"RECORDER_SAMPLE_RATE" default:"16000" validate:"gt=0"`
	UploadTimeout   int      `envconfig:"RECORDER_UPLOAD_TIMEOUT" default:"120"` // seconds
	FileName        string   `envconfig:"RECORDER_FILE_NAME" default:"recording"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"true"`
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would make every request fail the same way.
// A missing API key is not one of them.
func (c *Config) Validate() error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	return validateStruct(c)
}

// APIKey returns the key of the selected provider
func (c *Config) APIKey() string {
	if c.Provider == ProviderDeepgram {
		return c.DeepgramAPIKey
	}
	return c.OpenAIAPIKey
}

// Secrets lists every configured credential, for log redaction
func (c *Config) Secrets() []string {
	var out []string
	for _, s := range []string{c.OpenAIAPIKey, c.DeepgramAPIKey} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Timeout returns the per-request provider timeout
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TranscriptionTimeout) * time.Second
}

// LoadRecorder reads the recorder CLI configuration
func LoadRecorder() (*RecorderConfig, error) {
	_ = godotenv.Load()

	var cfg RecorderConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load recorder config: %w", err)
	}
	if err := validateStruct(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ChunkInterval returns the encoder timeslice
func (c *RecorderConfig) ChunkInterval() time.Duration {
	return time.Duration(c.ChunkIntervalMS) * time.Millisecond
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator returns a validator that names fields by their environment key
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			if name := fld.Tag.Get("envconfig"); name != "" {
				return name
			}
			return fld.Name
		})
	})
	return validate
}

func validateStruct(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	messages := make([]string, 0, len(verrs))
	for _, e := range verrs {
		messages = append(messages, fmt.Sprintf("%s: invalid value %q (%s)", e.Field(), fmt.Sprint(e.Value()), rule(e)))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(messages, "; "))
}

func rule(e validator.FieldError) string {
	if e.Param() != "" {
		return e.Tag() + "=" + e.Param()
	}
	return e.Tag()
}
