// Command recorder captures audio from a PCM source, sends the recording to
// the transcription relay and prints the transcript.
//
// Live capture pipes raw PCM on stdin:
//
//	arecord -q -f S16_LE -r 16000 -c 1 | recorder -input -
//
// A WAV file is played back in real time and then padded with silence until
// the recording is stopped.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexiqai/voice-transcribe/internal/audio"
	"github.com/lexiqai/voice-transcribe/internal/capture"
	"github.com/lexiqai/voice-transcribe/internal/config"
	"github.com/lexiqai/voice-transcribe/internal/observability"
	"github.com/lexiqai/voice-transcribe/internal/recorder"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadRecorder()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 2
	}

	var (
		input    = flag.String("input", "-", `PCM source: "-" for raw S16LE on stdin, or a WAV file path`)
		rate     = flag.Int("rate", 16000, "sample rate of raw stdin input")
		channels = flag.Int("channels", 1, "channel count of raw stdin input")
		duration = flag.Duration("duration", 0, "stop after this long (0 waits for Enter or Ctrl-C)")
		relayURL = flag.String("relay", cfg.RelayURL, "transcription relay URL")
		fileName = flag.String("name", cfg.FileName, "base name of the uploaded file")
		logLevel = flag.String("log-level", cfg.LogLevel, "log level: debug, info, warn, error")
		jsonLogs = flag.Bool("json-logs", !cfg.LogPretty, "write JSON logs instead of console output")
	)
	flag.Parse()

	logger := observability.NewLogger(os.Stderr, *logLevel, !*jsonLogs)

	device, fromFile, err := openDevice(*input, audio.PCMParams{SampleRate: *rate, Channels: *channels})
	if err != nil {
		logger.Error().Err(err).Str("input", *input).Msg("Failed to open input")
		return 1
	}

	done := make(chan recorder.Result, 1)
	observer := recorder.NewLogObserver(logger)
	ctrl := recorder.NewController(
		recorder.Config{
			Timeslice: cfg.ChunkInterval(),
			Formats:   audio.Preference(cfg.Formats),
			FileName:  *fileName,
		},
		device,
		capture.NewWAVEncoder(cfg.SampleRate),
		recorder.NewHTTPUploader(*relayURL, time.Duration(cfg.UploadTimeout)*time.Second),
		recorder.ObserverFuncs{
			Event: observer.OnEvent,
			Result: func(r recorder.Result) {
				observer.OnResult(r)
				done <- r
			},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ctrl.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, userMessage(err))
		return 1
	}

	var timeout <-chan time.Time
	if *duration > 0 {
		timeout = time.After(*duration)
	}
	enter := make(chan struct{})
	if fromFile {
		fmt.Fprintln(os.Stderr, "Recording... press Enter to stop")
		go func() {
			_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
			close(enter)
		}()
	} else {
		fmt.Fprintln(os.Stderr, "Recording... press Ctrl-C to stop")
	}

	select {
	case <-ctx.Done():
	case <-timeout:
	case <-enter:
	case r := <-done:
		// The input ended before anyone asked to stop
		fmt.Fprintln(os.Stderr, r.Err.Message)
		return 1
	}

	// Signals during submission abort the upload instead of stopping twice
	stopCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	result, err := ctrl.Stop(stopCtx)
	if err != nil {
		fmt.Fprintln(os.Stderr, userMessage(err))
		return 1
	}
	fmt.Println(result.Text)
	return 0
}

// openDevice builds a device for input. WAV files report true.
func openDevice(input string, raw audio.PCMParams) (capture.Device, bool, error) {
	if input == "-" {
		dev := capture.NewReaderDevice(func(ctx context.Context) (io.ReadCloser, error) {
			return io.NopCloser(os.Stdin), nil
		}, capture.ReaderDeviceConfig{Params: raw})
		return dev, false, nil
	}

	// Read the header once up front so format errors surface before capture
	f, err := os.Open(input)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open %s: %w", input, err)
	}
	params, _, err := audio.ReadWAVHeader(f)
	f.Close()
	if err != nil {
		return nil, false, err
	}

	dev := capture.NewReaderDevice(func(ctx context.Context) (io.ReadCloser, error) {
		f, err := os.Open(input)
		if err != nil {
			if errors.Is(err, os.ErrPermission) {
				return nil, fmt.Errorf("%w: %v", capture.ErrPermissionDenied, err)
			}
			return nil, fmt.Errorf("%w: %v", capture.ErrNoDevice, err)
		}
		if _, _, err := audio.ReadWAVHeader(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %v", capture.ErrNoDevice, err)
		}
		return &paddedFile{Reader: io.MultiReader(f, silence{}), f: f}, nil
	}, capture.ReaderDeviceConfig{Params: params, Realtime: true})
	return dev, true, nil
}

// paddedFile yields the file's samples followed by endless silence
type paddedFile struct {
	io.Reader
	f *os.File
}

func (p *paddedFile) Close() error { return p.f.Close() }

type silence struct{}

func (silence) Read(b []byte) (int, error) {
	clear(b)
	return len(b), nil
}

func userMessage(err error) string {
	var e *recorder.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
