// Package capture abstracts audio input devices and encoders so the recorder
// lifecycle can run against real inputs or test fakes alike.
package capture

import (
	"context"
	"errors"
	"time"

	"github.com/lexiqai/voice-transcribe/internal/audio"
)

var (
	// ErrPermissionDenied is returned when access to the input is refused
	ErrPermissionDenied = errors.New("permission to use the audio input was denied")

	// ErrNoDevice is returned when there is no input to acquire
	ErrNoDevice = errors.New("no audio input device found")

	// ErrDeviceBusy is returned when the device is already held by another stream
	ErrDeviceBusy = errors.New("audio input device is already in use")

	// ErrDeviceDisconnected reports that the input stopped producing audio
	// before the encoder was finalized
	ErrDeviceDisconnected = errors.New("audio input device disconnected")

	// ErrUnsupportedStream is returned by encoders that cannot read the stream
	ErrUnsupportedStream = errors.New("stream does not provide PCM audio")
)

// Device grants exclusive access to an audio input.
type Device interface {
	// Acquire opens the input. Errors wrap ErrPermissionDenied or ErrNoDevice
	// when access is refused or nothing is available.
	Acquire(ctx context.Context) (Stream, error)
}

// Stream is an acquired input. It stays live until all its tracks are stopped.
type Stream interface {
	Tracks() []Track
}

// Track is one media track of a stream
type Track interface {
	Kind() string
	// Stop releases the track. Calling Stop more than once has no effect.
	Stop()
}

// PCMStream is a Stream that exposes raw interleaved PCM frames.
type PCMStream interface {
	Stream
	Params() audio.PCMParams
	// Frames is closed when the stream stops producing audio
	Frames() <-chan []int16
	// Err explains why Frames closed. It is nil when the tracks were stopped.
	Err() error
}

// Encoder turns a stream into encoded chunks.
type Encoder interface {
	IsTypeSupported(mimeType string) bool
	// Begin starts encoding and emits a chunk roughly every timeslice.
	Begin(stream Stream, format audio.Format, timeslice time.Duration) (Session, error)
}

// Session is one running encoder.
type Session interface {
	// MIMEType is the type actually produced, which may differ from the
	// requested format when the default format was requested.
	MIMEType() string
	// Chunks delivers encoded data in capture order and is closed after the
	// final chunk.
	Chunks() <-chan []byte
	// Finalize asks the encoder to flush and close Chunks.
	Finalize()
	// Err is non-nil when the input ended before Finalize. Valid once Chunks is closed.
	Err() error
}
