package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexiqai/voice-transcribe/internal/audio"
	"github.com/lexiqai/voice-transcribe/internal/config"
	"github.com/lexiqai/voice-transcribe/internal/observability"
	"github.com/lexiqai/voice-transcribe/internal/relay"
	"github.com/lexiqai/voice-transcribe/internal/resilience"
	"github.com/lexiqai/voice-transcribe/internal/transcription"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("provider", cfg.Provider).
		Bool("api_key_set", cfg.APIKey() != "").
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Transcription relay starting")

	if cfg.APIKey() == "" {
		logger.Warn().Str("provider", cfg.Provider).Msg("No API key configured, transcription requests will fail")
	}

	provider := transcription.NewGuarded(newProvider(cfg), transcription.GuardedConfig{
		Breaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.CircuitBreakerMaxFailures,
			ResetTimeout: time.Duration(cfg.CircuitBreakerResetTimeout) * time.Second,
		},
		Retry: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
	})

	vad := audio.DefaultVADConfig()
	vad.EnergyThreshold = cfg.VADEnergyThreshold
	vad.SilenceFrames = cfg.VADSilenceFrames

	// Create HTTP server
	mux := http.NewServeMux()

	mux.Handle("POST "+cfg.TranscribePath, relay.NewHandler(provider, relay.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		Timeout:        cfg.Timeout(),
		SilenceGuard:   cfg.SilenceGuardEnabled,
		VAD:            vad,
		Secrets:        cfg.Secrets(),
	}))

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness checks provider configuration and breaker state, no API call is made
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		provider.Name(): func(ctx context.Context) error {
			return provider.Healthy()
		},
	}))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.HTTPReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTPWriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("http://localhost:%s%s", cfg.Port, cfg.TranscribePath)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}

func newProvider(cfg *config.Config) transcription.Provider {
	switch cfg.Provider {
	case config.ProviderDeepgram:
		return transcription.NewDeepgramProvider(transcription.DeepgramConfig{
			APIKey:   cfg.DeepgramAPIKey,
			Model:    cfg.DeepgramModel,
			Language: cfg.Language,
		})
	default:
		return transcription.NewOpenAIProvider(transcription.OpenAIConfig{
			APIKey:   cfg.OpenAIAPIKey,
			Model:    cfg.OpenAIModel,
			BaseURL:  cfg.OpenAIBaseURL,
			Language: cfg.Language,
		})
	}
}
