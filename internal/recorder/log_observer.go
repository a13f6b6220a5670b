package recorder

import (
	"github.com/rs/zerolog"
)

// LogObserver writes session events and results to a zerolog logger
type LogObserver struct {
	logger zerolog.Logger
}

// NewLogObserver creates an observer logging to logger
func NewLogObserver(logger zerolog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) OnEvent(e Event) {
	var ev *zerolog.Event
	switch e.Kind {
	case KindChunkReceived:
		ev = o.logger.Debug().Int("bytes", e.Bytes).Int("total_bytes", e.TotalBytes)
	case KindPermissionDenied, KindFormatFallback, KindNoActiveSession, KindSessionFailed:
		ev = o.logger.Warn()
	default:
		ev = o.logger.Info()
	}

	ev = ev.Uint64("seq", e.Seq).Str("session_id", e.SessionID).Str("event", string(e.Kind))
	if e.MIMEType != "" {
		ev = ev.Str("mime_type", e.MIMEType)
	}
	if e.TrackKind != "" {
		ev = ev.Str("track", e.TrackKind)
	}
	if e.Status != 0 {
		ev = ev.Int("status", e.Status)
	}
	if e.Kind == KindArtifactReady {
		ev = ev.Int("bytes", e.Bytes).Bool("empty", e.Empty)
	}
	if e.Err != nil {
		ev = ev.Err(e.Err)
	}
	ev.Msg(e.Message)
}

func (o *LogObserver) OnResult(r Result) {
	if r.Err != nil {
		o.logger.Error().
			Str("session_id", r.SessionID).
			Str("stage", string(r.Err.Stage)).
			Err(r.Err).
			Msg(r.Err.Message)
		return
	}
	o.logger.Info().
		Str("session_id", r.SessionID).
		Dur("duration", r.Duration).
		Int("text_length", len(r.Text)).
		Msg("Transcription received")
}
