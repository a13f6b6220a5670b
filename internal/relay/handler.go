// Package relay implements the server side of transcription: a stateless
// HTTP handler that validates an uploaded recording and forwards it to a
// transcription provider so the provider's credentials stay on the server.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/lexiqai/voice-transcribe/internal/audio"
	"github.com/lexiqai/voice-transcribe/internal/observability"
	"github.com/lexiqai/voice-transcribe/internal/resilience"
	"github.com/lexiqai/voice-transcribe/internal/transcription"
	"github.com/rs/zerolog"
)

// DefaultMaxUploadBytes matches the provider's 25MB file limit
const DefaultMaxUploadBytes int64 = 25 << 20

// multipartOverhead is allowed on top of the file limit for boundaries and headers
const multipartOverhead int64 = 1 << 20

// SupportedExtensions lists the file extensions accepted for upload
var SupportedExtensions = []string{"mp3", "mp4", "mpeg", "mpga", "m4a", "wav", "webm", "ogg"}

const (
	msgNoFile       = "No file provided"
	msgEmptyFile    = "File is empty"
	msgInvalidForm  = "Invalid upload"
	msgNotAllowed   = "Method not allowed"
	msgSniffedBlock = "Unsupported audio format. The uploaded file does not contain audio."
)

// Options configures the relay handler
type Options struct {
	MaxUploadBytes int64            // 0 uses DefaultMaxUploadBytes
	Timeout        time.Duration    // Per-request provider timeout, 0 for none
	SilenceGuard   bool             // Reject PCM WAV uploads with no speech before forwarding
	VAD            *audio.VADConfig // nil uses audio.DefaultVADConfig
	Secrets        []string         // Redacted from every log line
}

// Handler is the transcription relay endpoint
type Handler struct {
	provider transcription.Provider
	opts     Options
}

// NewHandler creates the relay endpoint around a provider
func NewHandler(provider transcription.Provider, opts Options) http.Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{provider: provider, opts: opts}
}

type textResponse struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// upload is a validated file part
type upload struct {
	fileName string
	mimeType string
	language string
	data     []byte
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	metrics := observability.NewRequestMetrics()
	logger := observability.WithCorrelationID(r.Header.Get("X-Request-ID"))

	status, body := h.handle(r.Context(), w, r, logger, metrics)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error().Err(err).Msg("Failed to write response")
	}
	metrics.RecordDone(status)
}

func (h *Handler) handle(ctx context.Context, w http.ResponseWriter, r *http.Request, logger zerolog.Logger, metrics *observability.RequestMetrics) (int, any) {
	if r.Method != http.MethodPost {
		return http.StatusMethodNotAllowed, errorResponse{Error: msgNotAllowed}
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes+multipartOverhead)

	up, err := h.readUpload(r)
	if err != nil {
		status, msg := statusForReadError(err)
		logger.Warn().Int("status", status).Str("reason", msg).Msg("Rejected upload")
		observability.RecordError("invalid_upload", "relay")
		return status, errorResponse{Error: msg}
	}
	metrics.RecordUpload(int64(len(up.data)))

	logger.Info().
		Str("file_name", up.fileName).
		Str("mime_type", up.mimeType).
		Int("size_kb", len(up.data)/1024).
		Msg("Received file")

	if status, msg := h.validate(up); status != http.StatusOK {
		logger.Warn().Int("status", status).Str("reason", msg).Msg("Rejected upload")
		observability.RecordError("invalid_upload", "relay")
		return status, errorResponse{Error: msg}
	}

	if h.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.Timeout)
		defer cancel()
	}

	res, err := h.provider.Transcribe(ctx, transcription.Request{
		FileName: up.fileName,
		MIMEType: up.mimeType,
		Audio:    up.data,
		Language: up.language,
	})
	if err != nil {
		status, msg := h.mapError(err)
		logger.Error().
			Str("provider", h.provider.Name()).
			Str("kind", string(transcription.KindOf(err))).
			Str("cause", h.describe(err)).
			Int("status", status).
			Msg("Transcription failed")
		observability.RecordError(string(transcription.KindOf(err)), "relay")
		return status, errorResponse{Error: msg}
	}

	logger.Info().
		Str("provider", res.Provider).
		Dur("latency", res.Latency).
		Int("text_length", len(res.Text)).
		Msg("Transcription completed")
	return http.StatusOK, textResponse{Text: res.Text}
}

// readUpload streams the multipart body and keeps the "file" part and the
// optional "language" field.
func (h *Handler) readUpload(r *http.Request) (*upload, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errNoFile
	}

	var up *upload
	language := ""
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch part.FormName() {
		case "file":
			if up == nil {
				up, err = h.readFilePart(part)
				if err != nil {
					return nil, err
				}
			}
		case "language":
			value, err := io.ReadAll(io.LimitReader(part, 64))
			if err != nil {
				return nil, err
			}
			language = strings.TrimSpace(string(value))
		}
		part.Close()
	}

	if up == nil {
		return nil, errNoFile
	}
	up.language = language
	return up, nil
}

var (
	errNoFile   = errors.New("no file part")
	errTooLarge = errors.New("upload exceeds size limit")
)

func (h *Handler) readFilePart(part *multipart.Part) (*upload, error) {
	data, err := io.ReadAll(io.LimitReader(part, h.opts.MaxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > h.opts.MaxUploadBytes {
		return nil, errTooLarge
	}
	return &upload{
		fileName: part.FileName(),
		mimeType: part.Header.Get("Content-Type"),
		data:     data,
	}, nil
}

func statusForReadError(err error) (int, string) {
	if errors.Is(err, errNoFile) {
		return http.StatusBadRequest, msgNoFile
	}
	var maxErr *http.MaxBytesError
	if errors.Is(err, errTooLarge) || errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge, transcription.MsgTooLarge
	}
	return http.StatusBadRequest, msgInvalidForm
}

// validate applies the content checks in order: empty, extension, sniffed
// type, then the optional silence guard.
func (h *Handler) validate(up *upload) (int, string) {
	if len(up.data) == 0 {
		return http.StatusBadRequest, msgEmptyFile
	}

	ext := fileExtension(up.fileName)
	if !isSupportedExtension(ext) {
		return http.StatusBadRequest, fmt.Sprintf("Unsupported audio format: %s. Supported formats are: %s",
			ext, strings.Join(SupportedExtensions, ", "))
	}

	detected := mimetype.Detect(up.data).String()
	if strings.HasPrefix(detected, "text/") || strings.HasPrefix(detected, "image/") {
		return http.StatusBadRequest, msgSniffedBlock
	}

	if h.opts.SilenceGuard && ext == "wav" && !h.hasSpeech(up.data) {
		return http.StatusUnprocessableEntity, transcription.MsgNoSpeech
	}

	return http.StatusOK, ""
}

// hasSpeech reports false only for a parseable PCM WAV with no voiced frame.
// Anything it cannot parse is left for the provider to judge.
func (h *Handler) hasSpeech(data []byte) bool {
	wav, err := audio.ParseWAV(data)
	if err != nil {
		return true
	}
	samples := audio.Downmix(wav.Samples, wav.Params.Channels)
	return audio.ContainsSpeech(samples, h.opts.VAD)
}

func (h *Handler) mapError(err error) (int, string) {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return http.StatusServiceUnavailable, transcription.MsgUnavailable
	}

	var e *transcription.Error
	if errors.As(err, &e) {
		return http.StatusInternalServerError, e.Message
	}
	return http.StatusInternalServerError, transcription.MsgUpstream
}

// describe renders the underlying cause of err for logs with secrets removed
func (h *Handler) describe(err error) string {
	cause := err
	var e *transcription.Error
	if errors.As(err, &e) && e.Err != nil {
		cause = e.Err
	}
	return transcription.Redact(cause.Error(), h.opts.Secrets...)
}

// fileExtension returns the lowercased extension without the dot. A name
// without a dot is returned whole so it fails the supported check.
func fileExtension(name string) string {
	name = strings.ToLower(path.Base(name))
	if ext := path.Ext(name); ext != "" {
		return strings.TrimPrefix(ext, ".")
	}
	return name
}

func isSupportedExtension(ext string) bool {
	for _, s := range SupportedExtensions {
		if s == ext {
			return true
		}
	}
	return false
}
