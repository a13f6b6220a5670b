package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/lexiqai/voice-transcribe/internal/audio"
)

const defaultTimeslice = time.Second

// WAVEncoder encodes PCM streams into mono 16-bit WAV.
//
// The first chunk starts with a header whose size fields hold
// audio.StreamingDataSize, so the concatenation of all chunks is a playable
// file without rewriting the header.
type WAVEncoder struct {
	sampleRate int // Output sample rate; 0 keeps the input rate
}

// NewWAVEncoder creates a WAV encoder that resamples to sampleRate
func NewWAVEncoder(sampleRate int) *WAVEncoder {
	return &WAVEncoder{sampleRate: sampleRate}
}

// IsTypeSupported reports whether mimeType is a WAV alias
func (e *WAVEncoder) IsTypeSupported(mimeType string) bool {
	return audio.IsWAV(mimeType)
}

// Begin starts encoding stream. Requests for formats other than WAV (the
// default fallback) produce audio/wav.
func (e *WAVEncoder) Begin(stream Stream, format audio.Format, timeslice time.Duration) (Session, error) {
	pcm, ok := stream.(PCMStream)
	if !ok {
		return nil, ErrUnsupportedStream
	}

	in := pcm.Params()
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("invalid input params: %w", err)
	}

	mimeType := format.MIMEType
	if !audio.IsWAV(mimeType) {
		mimeType = "audio/wav"
	}
	if timeslice <= 0 {
		timeslice = defaultTimeslice
	}

	out := audio.PCMParams{SampleRate: e.sampleRate, Channels: 1}
	if out.SampleRate <= 0 {
		out.SampleRate = in.SampleRate
	}

	s := &wavSession{
		mimeType: mimeType,
		in:       in,
		out:      out,
		chunks:   make(chan []byte, 16),
		finalize: make(chan struct{}),
	}
	go s.run(pcm, timeslice)
	return s, nil
}

type wavSession struct {
	mimeType string
	in       audio.PCMParams
	out      audio.PCMParams

	chunks       chan []byte
	finalize     chan struct{}
	finalizeOnce sync.Once

	mu  sync.Mutex
	err error
}

func (s *wavSession) MIMEType() string      { return s.mimeType }
func (s *wavSession) Chunks() <-chan []byte { return s.chunks }

func (s *wavSession) Finalize() {
	s.finalizeOnce.Do(func() { close(s.finalize) })
}

func (s *wavSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *wavSession) run(pcm PCMStream, timeslice time.Duration) {
	defer close(s.chunks)

	ticker := time.NewTicker(timeslice)
	defer ticker.Stop()

	pending := audio.EncodeWAVHeader(s.out, audio.StreamingDataSize)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		s.chunks <- pending
		pending = nil
	}

	frames := pcm.Frames()
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				err := pcm.Err()
				if err == nil {
					// Tracks were stopped underneath a running encoder
					err = ErrDeviceDisconnected
				}
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
				flush()
				return
			}
			pending = append(pending, s.encode(frame)...)

		case <-ticker.C:
			flush()

		case <-s.finalize:
			s.drain(frames, &pending)
			flush()
			return
		}
	}
}

// drain encodes every frame already waiting on frames without blocking
func (s *wavSession) drain(frames <-chan []int16, pending *[]byte) {
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}
			*pending = append(*pending, s.encode(frame)...)
		default:
			return
		}
	}
}

func (s *wavSession) encode(frame []int16) []byte {
	mono := audio.Downmix(frame, s.in.Channels)
	return audio.SamplesToBytes(audio.Resample(mono, s.in.SampleRate, s.out.SampleRate))
}
