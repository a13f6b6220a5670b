package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/lexiqai/voice-transcribe/internal/audio"
)

// maxResponseBytes bounds how much of a relay response is decoded
const maxResponseBytes = 1 << 20

// Response is the relay's reply to an upload
type Response struct {
	StatusCode int    `json:"-"`
	Text       string `json:"text"`
	Error      string `json:"error"`
}

// Uploader submits a finished artifact for transcription. A non-nil error
// means no usable response was received.
type Uploader interface {
	Upload(ctx context.Context, artifact audio.Artifact) (*Response, error)
}

type requestIDKey struct{}

// WithRequestID attaches an id sent as X-Request-ID by HTTPUploader
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// HTTPUploader posts artifacts to the relay as multipart/form-data
type HTTPUploader struct {
	url    string
	client *http.Client
}

// NewHTTPUploader creates an uploader for the relay at url
func NewHTTPUploader(url string, timeout time.Duration) *HTTPUploader {
	return &HTTPUploader{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Upload sends one "file" part named after the artifact with its MIME type
func (u *HTTPUploader) Upload(ctx context.Context, artifact audio.Artifact) (*Response, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(artifact.FileName())))
	h.Set("Content-Type", artifact.MIMEType())

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := part.Write(artifact.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	out := &Response{StatusCode: resp.StatusCode}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return nil, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	out.StatusCode = resp.StatusCode
	return out, nil
}
