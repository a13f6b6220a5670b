package recorder

import "time"

// Kind identifies a lifecycle event
type Kind string

const (
	KindPermissionRequested   Kind = "permission_requested"
	KindPermissionGranted     Kind = "permission_granted"
	KindPermissionDenied      Kind = "permission_denied"
	KindFormatSelected        Kind = "format_selected"
	KindFormatFallback        Kind = "format_fallback"
	KindCaptureStarted        Kind = "capture_started"
	KindChunkReceived         Kind = "chunk_received"
	KindStopRequested         Kind = "stop_requested"
	KindNoActiveSession       Kind = "no_active_session"
	KindTrackStopped          Kind = "track_stopped"
	KindArtifactReady         Kind = "artifact_ready"
	KindUploading             Kind = "uploading"
	KindResponseReceived      Kind = "response_received"
	KindTranscriptionReceived Kind = "transcription_received"
	KindSessionFailed         Kind = "session_failed"
)

// Event is one observable step of a session. Only the payload fields
// relevant to Kind are set.
type Event struct {
	Seq       uint64
	Time      time.Time
	SessionID string
	Kind      Kind

	Bytes      int    // chunk_received, artifact_ready
	TotalBytes int    // chunk_received
	MIMEType   string // format_selected, format_fallback, capture_started, artifact_ready
	TrackKind  string // track_stopped
	Status     int    // response_received
	Message    string
	Empty      bool  // artifact_ready
	Err        error // permission_denied, format_fallback, session_failed
}

// Result is the outcome of a session: a transcription or an error
type Result struct {
	SessionID string
	Text      string
	Err       *Error
	Duration  time.Duration
}

// OK reports whether the session produced a transcription
func (r Result) OK() bool {
	return r.Err == nil
}

// Observer receives events and the final result of every session.
// Calls are serialized; an Observer must not call back into the Controller.
type Observer interface {
	OnEvent(Event)
	OnResult(Result)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Event  func(Event)
	Result func(Result)
}

func (o ObserverFuncs) OnEvent(e Event) {
	if o.Event != nil {
		o.Event(e)
	}
}

func (o ObserverFuncs) OnResult(r Result) {
	if o.Result != nil {
		o.Result(r)
	}
}
