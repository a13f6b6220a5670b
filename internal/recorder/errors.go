package recorder

import (
	"errors"
	"fmt"

	"github.com/lexiqai/voice-transcribe/internal/capture"
)

var (
	// ErrDeviceAccess is matched by errors from a refused or missing input
	ErrDeviceAccess = errors.New("audio input could not be acquired")

	// ErrNoActiveSession is returned by Stop when nothing is being captured
	ErrNoActiveSession = errors.New("no active capture session")

	// ErrSessionActive is returned by Start while another session is running
	ErrSessionActive = errors.New("a capture session is already active")

	// ErrEncodingUnavailable is reported in a format_fallback event when no
	// preferred format is supported. It never fails a session.
	ErrEncodingUnavailable = errors.New("no preferred encoding is supported")

	// ErrEncoding is matched when the encoder could not start
	ErrEncoding = errors.New("audio encoding could not be started")

	// ErrTransport is matched by upload failures that produced no usable response
	ErrTransport = errors.New("transcription request failed")

	// ErrRemoteService is matched by errors reported by the relay
	ErrRemoteService = errors.New("transcription service returned an error")

	// ErrCaptureInterrupted is matched when the input ended before Stop
	ErrCaptureInterrupted = errors.New("capture interrupted")
)

// Stage names where a session failed
type Stage string

const (
	StageAcquisition Stage = "acquisition"
	StageEncoding    Stage = "encoding"
	StageCapture     Stage = "capture"
	StageNetwork     Stage = "network"
	StageRemote      Stage = "remote"
)

// User-facing messages
const (
	MsgPermissionDenied = "Microphone access was denied. Please allow microphone access and try again."
	MsgNoDevice         = "No microphone was found. Please connect a microphone and try again."
	MsgDeviceBusy       = "The microphone is already in use by another application."
	MsgDeviceAccess     = "Could not access the microphone."
	MsgEncoding         = "Recording could not be started."
	MsgInterrupted      = "Recording stopped unexpectedly because the microphone was disconnected."
	MsgTransport        = "Could not reach the transcription service. Please try again."
	MsgNoResult         = "No transcription or error returned"
)

// Error is a session failure. It matches its sentinel and its cause with errors.Is.
type Error struct {
	Stage    Stage
	Message  string
	Sentinel error
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Sentinel != nil {
		errs = append(errs, e.Sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func acquisitionError(err error) *Error {
	msg := MsgDeviceAccess
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		msg = MsgPermissionDenied
	case errors.Is(err, capture.ErrNoDevice):
		msg = MsgNoDevice
	case errors.Is(err, capture.ErrDeviceBusy):
		msg = MsgDeviceBusy
	}
	return &Error{Stage: StageAcquisition, Message: msg, Sentinel: ErrDeviceAccess, Err: err}
}

func encodingError(err error) *Error {
	return &Error{Stage: StageEncoding, Message: MsgEncoding, Sentinel: ErrEncoding, Err: err}
}

func interruptedError(err error) *Error {
	return &Error{Stage: StageCapture, Message: MsgInterrupted, Sentinel: ErrCaptureInterrupted, Err: err}
}

func transportError(err error) *Error {
	return &Error{Stage: StageNetwork, Message: MsgTransport, Sentinel: ErrTransport, Err: err}
}

func remoteError(message string) *Error {
	return &Error{Stage: StageRemote, Message: message, Sentinel: ErrRemoteService}
}
