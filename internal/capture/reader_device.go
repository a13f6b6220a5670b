package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"
	"time"

	"github.com/lexiqai/voice-transcribe/internal/audio"
)

// OpenFunc opens the underlying PCM source
type OpenFunc func(ctx context.Context) (io.ReadCloser, error)

// ReaderDeviceConfig holds configuration for a ReaderDevice
type ReaderDeviceConfig struct {
	Params        audio.PCMParams // Format of the raw PCM the source produces
	FrameDuration time.Duration   // Length of each emitted frame (default 20ms)
	Realtime      bool            // Pace frames at playback speed (for file sources)
}

// ReaderDevice is a Device backed by a stream of signed 16-bit little-endian
// PCM, such as the stdout of `arecord -f S16_LE` or the data section of a WAV
// file. End of input is reported as ErrDeviceDisconnected.
type ReaderDevice struct {
	open   OpenFunc
	config ReaderDeviceConfig

	mu    sync.Mutex
	inUse bool
}

// NewReaderDevice creates a new reader-backed input device
func NewReaderDevice(open OpenFunc, config ReaderDeviceConfig) *ReaderDevice {
	if config.FrameDuration <= 0 {
		config.FrameDuration = 20 * time.Millisecond
	}
	return &ReaderDevice{open: open, config: config}
}

// Acquire opens the source and starts producing frames
func (d *ReaderDevice) Acquire(ctx context.Context) (Stream, error) {
	if err := d.config.Params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}

	d.mu.Lock()
	if d.inUse {
		d.mu.Unlock()
		return nil, ErrDeviceBusy
	}
	d.inUse = true
	d.mu.Unlock()

	rc, err := d.open(ctx)
	if err != nil {
		d.release()
		switch {
		case errors.Is(err, fs.ErrPermission):
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
		default:
			return nil, fmt.Errorf("failed to open audio input: %w", err)
		}
	}

	s := &readerStream{
		device: d,
		rc:     rc,
		params: d.config.Params,
		frames: make(chan []int16, 50),
		stop:   make(chan struct{}),
	}
	s.track = &readerTrack{stream: s}

	go s.produce(d.config.FrameDuration, d.config.Realtime)
	return s, nil
}

func (d *ReaderDevice) release() {
	d.mu.Lock()
	d.inUse = false
	d.mu.Unlock()
}

// InUse reports whether a stream currently holds the device
func (d *ReaderDevice) InUse() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inUse
}

type readerStream struct {
	device *ReaderDevice
	rc     io.ReadCloser
	params audio.PCMParams
	frames chan []int16
	track  *readerTrack

	stop      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

func (s *readerStream) Tracks() []Track         { return []Track{s.track} }
func (s *readerStream) Params() audio.PCMParams { return s.params }
func (s *readerStream) Frames() <-chan []int16  { return s.frames }

func (s *readerStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *readerStream) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *readerStream) closeReader() {
	s.closeOnce.Do(func() { _ = s.rc.Close() })
}

// produce reads fixed-size frames until the reader ends or the track stops
func (s *readerStream) produce(frameDuration time.Duration, realtime bool) {
	defer close(s.frames)

	frameSamples := s.params.FrameSamples(int(frameDuration / time.Millisecond))
	if frameSamples < s.params.Channels {
		frameSamples = s.params.Channels
	}
	buf := make([]byte, frameSamples*2)

	var tick <-chan time.Time
	if realtime {
		ticker := time.NewTicker(frameDuration)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		n, err := io.ReadFull(s.rc, buf)
		if n >= 2 {
			samples, _ := audio.BytesToSamples(buf[:n-n%2])
			select {
			case s.frames <- samples:
			case <-s.stop:
				return
			}
		}
		if err != nil {
			if !s.stopped() {
				s.mu.Lock()
				s.err = fmt.Errorf("%w: %v", ErrDeviceDisconnected, err)
				s.mu.Unlock()
			}
			s.closeReader()
			return
		}
		if tick != nil {
			select {
			case <-tick:
			case <-s.stop:
				return
			}
		}
	}
}

type readerTrack struct {
	stream *readerStream
}

func (t *readerTrack) Kind() string { return "audio" }

// Stop ends frame production, closes the source and frees the device
func (t *readerTrack) Stop() {
	t.stream.stopOnce.Do(func() {
		close(t.stream.stop)
		t.stream.closeReader()
		t.stream.device.release()
	})
}
