package transcription

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
)

// Kind classifies a provider failure
type Kind string

const (
	KindNotConfigured     Kind = "not_configured"
	KindAuth              Kind = "auth"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindEmptyInput        Kind = "empty_input"
	KindTooLarge          Kind = "too_large"
	KindNoSpeech          Kind = "no_speech"
	KindUnavailable       Kind = "unavailable"
	KindUpstream          Kind = "upstream"
)

// User-facing messages
const (
	MsgNotConfigured     = "Transcription service is not configured"
	MsgAuth              = "Invalid transcription API key. Please check your API key and try again."
	MsgUnsupportedFormat = "Unsupported audio format. Please use one of these formats: mp3, mp4, mpeg, m4a, wav, or webm."
	MsgEmptyInput        = "Cannot transcribe empty file"
	MsgTooLarge          = "Audio file is too large. Please limit your recording to 25MB or less."
	MsgNoSpeech          = "No speech detected in the audio. Please speak clearly and try again."
	MsgUnavailable       = "Transcription service is temporarily unavailable. Please try again later."
	MsgUpstream          = "Failed to transcribe audio"
)

// Error is a classified provider failure. Message is safe to show to users.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or KindUpstream for unclassified errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Classify maps a provider HTTP status and error message to a Kind.
// Message substrings take precedence over status codes.
func Classify(status int, message string, err error) *Error {
	msg := strings.ToLower(message)

	switch {
	case strings.Contains(msg, "api key") || status == http.StatusUnauthorized || status == http.StatusForbidden:
		return newError(KindAuth, MsgAuth, err)
	case strings.Contains(msg, "format") || strings.Contains(msg, "unsupported"):
		return newError(KindUnsupportedFormat, MsgUnsupportedFormat, err)
	case strings.Contains(msg, "too large") || strings.Contains(msg, "size") || status == http.StatusRequestEntityTooLarge:
		return newError(KindTooLarge, MsgTooLarge, err)
	case strings.Contains(msg, "no speech"):
		return newError(KindNoSpeech, MsgNoSpeech, err)
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return newError(KindUnavailable, MsgUnavailable, err)
	}

	if message == "" {
		message = MsgUpstream
	}
	return newError(KindUpstream, message, err)
}

const redacted = "[REDACTED]"

var keyPattern = regexp.MustCompile(`sk-[A-Za-z0-9_\-]{8,}`)

// Redact removes every non-empty secret and anything shaped like an
// OpenAI key from text.
func Redact(text string, secrets ...string) string {
	for _, s := range secrets {
		if s != "" {
			text = strings.ReplaceAll(text, s, redacted)
		}
	}
	return keyPattern.ReplaceAllString(text, redacted)
}
