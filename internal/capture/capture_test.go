package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"testing"
	"time"

	"github.com/lexiqai/voice-transcribe/internal/audio"
)

func openBytes(data []byte) OpenFunc {
	return func(ctx context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

func drainFrames(t *testing.T, s PCMStream) []int16 {
	t.Helper()
	var out []int16
	timeout := time.After(2 * time.Second)
	for {
		select {
		case frame, ok := <-s.Frames():
			if !ok {
				return out
			}
			out = append(out, frame...)
		case <-timeout:
			t.Fatal("Timed out waiting for frames to close")
		}
	}
}

func TestReaderDevice_ProducesFramesThenDisconnects(t *testing.T) {
	samples := make([]int16, 1000)
	for i := range samples {
		samples[i] = int16(i)
	}
	dev := NewReaderDevice(openBytes(audio.SamplesToBytes(samples)), ReaderDeviceConfig{
		Params: audio.PCMParams{SampleRate: 16000, Channels: 1},
	})

	stream, err := dev.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	pcm := stream.(PCMStream)

	got := drainFrames(t, pcm)
	if len(got) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(got))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Fatalf("Sample %d out of order: expected %d, got %d", i, samples[i], got[i])
		}
	}
	if !errors.Is(pcm.Err(), ErrDeviceDisconnected) {
		t.Errorf("Expected ErrDeviceDisconnected at end of input, got %v", pcm.Err())
	}
}

func TestReaderDevice_Exclusive(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	dev := NewReaderDevice(func(ctx context.Context) (io.ReadCloser, error) {
		return pr, nil
	}, ReaderDeviceConfig{Params: audio.PCMParams{SampleRate: 8000, Channels: 1}})

	stream, err := dev.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if _, err := dev.Acquire(context.Background()); !errors.Is(err, ErrDeviceBusy) {
		t.Errorf("Expected ErrDeviceBusy, got %v", err)
	}

	for _, track := range stream.Tracks() {
		track.Stop()
		track.Stop() // idempotent
	}
	if dev.InUse() {
		t.Error("Expected device to be released after stopping tracks")
	}
}

func TestReaderDevice_StopWhileBlocked(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	dev := NewReaderDevice(func(ctx context.Context) (io.ReadCloser, error) {
		return pr, nil
	}, ReaderDeviceConfig{Params: audio.PCMParams{SampleRate: 8000, Channels: 1}})

	stream, err := dev.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	pcm := stream.(PCMStream)

	stream.Tracks()[0].Stop()
	drainFrames(t, pcm)

	if pcm.Err() != nil {
		t.Errorf("Expected nil error after Stop, got %v", pcm.Err())
	}
}

func TestReaderDevice_OpenErrors(t *testing.T) {
	tests := []struct {
		name    string
		openErr error
		want    error
	}{
		{"permission", fmt.Errorf("open /dev/snd: %w", fs.ErrPermission), ErrPermissionDenied},
		{"missing", fmt.Errorf("open input.wav: %w", fs.ErrNotExist), ErrNoDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := NewReaderDevice(func(ctx context.Context) (io.ReadCloser, error) {
				return nil, tt.openErr
			}, ReaderDeviceConfig{Params: audio.PCMParams{SampleRate: 8000, Channels: 1}})

			_, err := dev.Acquire(context.Background())
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if dev.InUse() {
				t.Error("Expected device to stay free after failed open")
			}
		})
	}
}

func TestReaderDevice_InvalidParams(t *testing.T) {
	dev := NewReaderDevice(openBytes(nil), ReaderDeviceConfig{})
	if _, err := dev.Acquire(context.Background()); !errors.Is(err, ErrNoDevice) {
		t.Errorf("Expected ErrNoDevice for invalid params, got %v", err)
	}
}

// fakePCMStream feeds frames synchronously to an encoder
type fakePCMStream struct {
	params audio.PCMParams
	frames chan []int16
	err    error
}

func newFakePCMStream(params audio.PCMParams) *fakePCMStream {
	return &fakePCMStream{params: params, frames: make(chan []int16)}
}

func (f *fakePCMStream) Tracks() []Track         { return nil }
func (f *fakePCMStream) Params() audio.PCMParams { return f.params }
func (f *fakePCMStream) Frames() <-chan []int16  { return f.frames }
func (f *fakePCMStream) Err() error              { return f.err }

type plainStream struct{}

func (plainStream) Tracks() []Track { return nil }

func collectChunks(t *testing.T, s Session) [][]byte {
	t.Helper()
	var out [][]byte
	timeout := time.After(2 * time.Second)
	for {
		select {
		case c, ok := <-s.Chunks():
			if !ok {
				return out
			}
			out = append(out, c)
		case <-timeout:
			t.Fatal("Timed out waiting for chunks to close")
		}
	}
}

func TestWAVEncoder_IsTypeSupported(t *testing.T) {
	enc := NewWAVEncoder(16000)
	if !enc.IsTypeSupported("audio/wav") {
		t.Error("Expected audio/wav to be supported")
	}
	if enc.IsTypeSupported("audio/mp4") {
		t.Error("Expected audio/mp4 to be unsupported")
	}
}

func TestWAVEncoder_FinalizeProducesValidWAV(t *testing.T) {
	params := audio.PCMParams{SampleRate: 16000, Channels: 1}
	stream := newFakePCMStream(params)
	enc := NewWAVEncoder(16000)

	session, err := enc.Begin(stream, audio.FormatFor("audio/wav"), time.Hour)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	var want []int16
	for i := 0; i < 5; i++ {
		frame := []int16{int16(i), int16(i * 2), int16(-i)}
		want = append(want, frame...)
		stream.frames <- frame
	}
	session.Finalize()

	chunks := collectChunks(t, session)
	if len(chunks) == 0 {
		t.Fatal("Expected at least one chunk")
	}
	if string(chunks[0][:4]) != "RIFF" {
		t.Error("Expected first chunk to start with the WAV header")
	}
	if session.Err() != nil {
		t.Errorf("Expected nil error after Finalize, got %v", session.Err())
	}

	wav, err := audio.ParseWAV(bytes.Join(chunks, nil))
	if err != nil {
		t.Fatalf("ParseWAV failed: %v", err)
	}
	if len(wav.Samples) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(wav.Samples))
	}
	for i := range want {
		if wav.Samples[i] != want[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, want[i], wav.Samples[i])
		}
	}
}

func TestWAVEncoder_FinalizeDrainsQueuedFrames(t *testing.T) {
	params := audio.PCMParams{SampleRate: 16000, Channels: 1}

	want := make([]int16, 40*320)
	for i := range want {
		want[i] = int16(i)
	}

	// Frames already buffered by the device must survive an immediate Finalize
	for run := 0; run < 20; run++ {
		stream := &fakePCMStream{params: params, frames: make(chan []int16, 50)}
		for i := 0; i < 40; i++ {
			stream.frames <- want[i*320 : (i+1)*320]
		}

		session, err := NewWAVEncoder(16000).Begin(stream, audio.FormatFor("audio/wav"), time.Hour)
		if err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		session.Finalize()

		wav, err := audio.ParseWAV(bytes.Join(collectChunks(t, session), nil))
		if err != nil {
			t.Fatalf("ParseWAV failed: %v", err)
		}
		if len(wav.Samples) != len(want) {
			t.Fatalf("Run %d: expected %d samples, got %d", run, len(want), len(wav.Samples))
		}
		for i := range want {
			if wav.Samples[i] != want[i] {
				t.Fatalf("Run %d: sample %d expected %d, got %d", run, i, want[i], wav.Samples[i])
			}
		}
	}
}

func TestWAVEncoder_DeviceLost(t *testing.T) {
	stream := newFakePCMStream(audio.PCMParams{SampleRate: 8000, Channels: 1})
	stream.err = fmt.Errorf("%w: unplugged", ErrDeviceDisconnected)

	session, err := NewWAVEncoder(0).Begin(stream, audio.FormatFor("audio/wav"), time.Hour)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	stream.frames <- []int16{1, 2, 3}
	close(stream.frames)

	chunks := collectChunks(t, session)
	if len(chunks) != 1 {
		t.Errorf("Expected pending data flushed as one chunk, got %d", len(chunks))
	}
	if !errors.Is(session.Err(), ErrDeviceDisconnected) {
		t.Errorf("Expected ErrDeviceDisconnected, got %v", session.Err())
	}
}

func TestWAVEncoder_DefaultFormatUsesNativeType(t *testing.T) {
	stream := newFakePCMStream(audio.PCMParams{SampleRate: 8000, Channels: 1})
	session, err := NewWAVEncoder(0).Begin(stream, audio.DefaultFormat, time.Hour)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer session.Finalize()

	if session.MIMEType() != "audio/wav" {
		t.Errorf("Expected audio/wav, got %s", session.MIMEType())
	}
}

func TestWAVEncoder_DownmixAndResample(t *testing.T) {
	stream := newFakePCMStream(audio.PCMParams{SampleRate: 32000, Channels: 2})
	session, err := NewWAVEncoder(16000).Begin(stream, audio.FormatFor("audio/wav"), time.Hour)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	stream.frames <- make([]int16, 640) // 10ms of stereo at 32kHz
	session.Finalize()

	wav, err := audio.ParseWAV(bytes.Join(collectChunks(t, session), nil))
	if err != nil {
		t.Fatalf("ParseWAV failed: %v", err)
	}
	if wav.Params.SampleRate != 16000 || wav.Params.Channels != 1 {
		t.Errorf("Expected 16kHz mono, got %+v", wav.Params)
	}
	if len(wav.Samples) != 160 {
		t.Errorf("Expected 160 samples, got %d", len(wav.Samples))
	}
}

func TestWAVEncoder_UnsupportedStream(t *testing.T) {
	_, err := NewWAVEncoder(16000).Begin(plainStream{}, audio.FormatFor("audio/wav"), time.Second)
	if !errors.Is(err, ErrUnsupportedStream) {
		t.Errorf("Expected ErrUnsupportedStream, got %v", err)
	}
}
