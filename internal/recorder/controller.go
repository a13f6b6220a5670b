// Package recorder drives one capture session at a time: it acquires the
// input, negotiates an encoding, buffers chunks, and submits the finished
// recording for transcription, reporting every step to an Observer.
package recorder

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lexiqai/voice-transcribe/internal/audio"
	"github.com/lexiqai/voice-transcribe/internal/capture"
	"github.com/lexiqai/voice-transcribe/internal/observability"
)

// State is the controller's lifecycle state
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateFinalizing
	StateSubmitting
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateFinalizing:
		return "finalizing"
	case StateSubmitting:
		return "submitting"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// active reports whether a session occupies the controller
func (s State) active() bool {
	return s == StateCapturing || s == StateFinalizing || s == StateSubmitting
}

// Config configures a Controller
type Config struct {
	Timeslice time.Duration    // Chunk interval requested from the encoder, default 1s
	Formats   audio.Preference // Format priority, default audio.DefaultPreference
	FileName  string           // Upload base name, default "recording"
}

// Controller runs capture sessions against a device, an encoder and an uploader
type Controller struct {
	cfg      Config
	device   capture.Device
	encoder  capture.Encoder
	uploader Uploader
	observer Observer

	startMu sync.Mutex // serializes Start

	mu      sync.Mutex // guards state and session
	state   State
	session *session

	eventMu sync.Mutex // serializes observer calls
	seq     uint64
}

// session is one capture from Start to its result
type session struct {
	id      string
	started time.Time
	stream  capture.Stream
	enc     capture.Session
	buf     *audio.ChunkBuffer
	metrics *observability.SessionMetrics

	collected     chan struct{} // closed once the encoder's chunk channel is drained
	stopRequested atomic.Bool
	releaseOnce   sync.Once
	resultOnce    sync.Once
}

// NewController creates a controller. A nil observer discards events.
func NewController(cfg Config, device capture.Device, encoder capture.Encoder, uploader Uploader, observer Observer) *Controller {
	if cfg.Timeslice <= 0 {
		cfg.Timeslice = time.Second
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = audio.DefaultPreference
	}
	if cfg.FileName == "" {
		cfg.FileName = "recording"
	}
	if observer == nil {
		observer = ObserverFuncs{}
	}
	return &Controller{
		cfg:      cfg,
		device:   device,
		encoder:  encoder,
		uploader: uploader,
		observer: observer,
		state:    StateIdle,
	}
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start acquires the device and begins capturing. On failure the error
// result is also delivered to the observer and the state becomes error.
func (c *Controller) Start(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	s := &session{
		id:        uuid.New().String(),
		buf:       audio.NewChunkBuffer(),
		collected: make(chan struct{}),
	}

	c.mu.Lock()
	if c.state.active() {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.session = s
	c.mu.Unlock()

	c.emit(Event{SessionID: s.id, Kind: KindPermissionRequested})
	stream, err := c.device.Acquire(ctx)
	if err != nil {
		e := acquisitionError(err)
		c.emit(Event{SessionID: s.id, Kind: KindPermissionDenied, Message: e.Message, Err: err})
		c.finish(s, Result{SessionID: s.id, Err: e})
		return e
	}
	s.stream = stream
	c.emit(Event{SessionID: s.id, Kind: KindPermissionGranted})

	format, ok := c.cfg.Formats.Select(c.encoder.IsTypeSupported)
	if ok {
		c.emit(Event{SessionID: s.id, Kind: KindFormatSelected, MIMEType: format.MIMEType})
	} else {
		c.emit(Event{
			SessionID: s.id,
			Kind:      KindFormatFallback,
			MIMEType:  format.MIMEType,
			Message:   "none of " + strings.Join(c.cfg.Formats, ", ") + " is supported",
			Err:       ErrEncodingUnavailable,
		})
	}

	enc, err := c.encoder.Begin(stream, format, c.cfg.Timeslice)
	if err != nil {
		e := encodingError(err)
		c.release(s)
		c.finish(s, Result{SessionID: s.id, Err: e})
		return e
	}
	s.enc = enc
	s.started = time.Now()
	s.metrics = observability.NewSessionMetrics()

	c.mu.Lock()
	c.state = StateCapturing
	c.mu.Unlock()

	c.emit(Event{SessionID: s.id, Kind: KindCaptureStarted, MIMEType: enc.MIMEType()})
	go c.collect(s)
	return nil
}

// collect appends chunks in arrival order until the encoder closes its
// channel. If that happens before Stop, the session is interrupted.
func (c *Controller) collect(s *session) {
	for chunk := range s.enc.Chunks() {
		total := s.buf.Append(chunk)
		s.metrics.RecordChunk(len(chunk))
		c.emit(Event{SessionID: s.id, Kind: KindChunkReceived, Bytes: len(chunk), TotalBytes: total})
	}
	close(s.collected)

	c.mu.Lock()
	interrupted := c.session == s && c.state == StateCapturing && !s.stopRequested.Load()
	if interrupted {
		c.state = StateError
	}
	c.mu.Unlock()

	if !interrupted {
		return
	}

	cause := s.enc.Err()
	if cause == nil {
		cause = capture.ErrDeviceDisconnected
	}
	c.release(s)
	c.finish(s, Result{SessionID: s.id, Err: interruptedError(cause), Duration: time.Since(s.started)})
}

// Stop finalizes the encoder, releases the device, uploads the artifact once
// and returns the interpreted result. The returned error is the result's
// Err, or ErrNoActiveSession.
func (c *Controller) Stop(ctx context.Context) (Result, error) {
	c.mu.Lock()
	s := c.session
	if s == nil || c.state != StateCapturing {
		state := c.state
		c.mu.Unlock()

		id := ""
		if s != nil {
			id = s.id
		}
		c.emit(Event{SessionID: id, Kind: KindNoActiveSession, Message: "stop requested in state " + state.String()})
		return Result{}, ErrNoActiveSession
	}
	s.stopRequested.Store(true)
	c.state = StateFinalizing
	c.mu.Unlock()

	c.emit(Event{SessionID: s.id, Kind: KindStopRequested})
	s.enc.Finalize()

	select {
	case <-s.collected:
	case <-ctx.Done():
		c.release(s)
		return c.fail(s, interruptedError(ctx.Err()))
	}
	c.release(s)

	artifact := audio.NewArtifact(s.buf, s.enc.MIMEType(), c.cfg.FileName, time.Since(s.started))
	c.emit(Event{
		SessionID: s.id,
		Kind:      KindArtifactReady,
		Bytes:     artifact.Size(),
		MIMEType:  artifact.MIMEType(),
		Message:   artifact.FileName(),
		Empty:     artifact.Empty(),
	})

	c.mu.Lock()
	c.state = StateSubmitting
	c.mu.Unlock()

	c.emit(Event{SessionID: s.id, Kind: KindUploading, Bytes: artifact.Size()})
	resp, err := c.uploader.Upload(WithRequestID(ctx, s.id), artifact)
	if err != nil {
		return c.fail(s, transportError(err))
	}
	c.emit(Event{SessionID: s.id, Kind: KindResponseReceived, Status: resp.StatusCode})

	result := interpret(resp)
	result.SessionID = s.id
	result.Duration = artifact.Duration()
	c.finish(s, result)
	if result.Err != nil {
		return result, result.Err
	}
	return result, nil
}

// interpret maps a relay response to a result by its body alone. Text wins
// over error and the HTTP status is not consulted, so a non-2xx reply that
// carries text is a success and a 200 reply with only an error is a failure.
func interpret(resp *Response) Result {
	switch {
	case resp.Text != "":
		return Result{Text: resp.Text}
	case resp.Error != "":
		return Result{Err: remoteError(resp.Error)}
	default:
		return Result{Err: remoteError(MsgNoResult)}
	}
}

func (c *Controller) fail(s *session, e *Error) (Result, error) {
	result := Result{SessionID: s.id, Err: e, Duration: time.Since(s.started)}
	c.finish(s, result)
	return result, e
}

// release stops every track of the session's stream exactly once
func (c *Controller) release(s *session) {
	s.releaseOnce.Do(func() {
		if s.stream == nil {
			return
		}
		for _, track := range s.stream.Tracks() {
			track.Stop()
			c.emit(Event{SessionID: s.id, Kind: KindTrackStopped, TrackKind: track.Kind()})
		}
	})
}

// finish records the terminal state and delivers the result exactly once
func (c *Controller) finish(s *session, result Result) {
	s.resultOnce.Do(func() {
		final, outcome := StateDone, "done"
		if result.Err != nil {
			final, outcome = StateError, string(result.Err.Stage)
		}

		c.mu.Lock()
		if c.session == s {
			c.state = final
		}
		c.mu.Unlock()

		if s.metrics != nil {
			s.metrics.RecordEnd(outcome)
		}

		if result.Err != nil {
			c.emit(Event{SessionID: s.id, Kind: KindSessionFailed, Message: result.Err.Message, Err: result.Err})
		} else {
			c.emit(Event{SessionID: s.id, Kind: KindTranscriptionReceived, Bytes: len(result.Text)})
		}

		c.eventMu.Lock()
		c.observer.OnResult(result)
		c.eventMu.Unlock()
	})
}

// emit stamps e with the next sequence number and delivers it
func (c *Controller) emit(e Event) {
	c.eventMu.Lock()
	defer c.eventMu.Unlock()

	c.seq++
	e.Seq = c.seq
	e.Time = time.Now()
	c.observer.OnEvent(e)
}
