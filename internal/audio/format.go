package audio

import (
	"mime"
	"strings"
)

// Format describes an encoded audio container.
type Format struct {
	MIMEType  string // Full MIME type, may carry codec parameters
	Extension string // File extension without the dot
}

// DefaultFormat is used when the runtime supports none of the preferred formats.
// Encoders receiving it are free to pick their native type.
var DefaultFormat = Format{MIMEType: "audio/webm", Extension: "webm"}

// DefaultPreference lists formats in priority order: a broadly compatible
// compressed container first, then uncompressed wave, then webm/opus.
var DefaultPreference = Preference{
	"audio/mp4",
	"audio/wav",
	"audio/webm;codecs=opus",
}

// extensions maps base media types to file extensions the transcription
// providers recognise.
var extensions = map[string]string{
	"audio/mp4":      "mp4",
	"audio/m4a":      "m4a",
	"audio/x-m4a":    "m4a",
	"audio/mpeg":     "mp3",
	"audio/mp3":      "mp3",
	"audio/wav":      "wav",
	"audio/wave":     "wav",
	"audio/x-wav":    "wav",
	"audio/vnd.wave": "wav",
	"audio/webm":     "webm",
	"video/webm":     "webm",
	"audio/ogg":      "ogg",
}

// BaseType strips parameters from a MIME type ("audio/webm;codecs=opus" -> "audio/webm").
func BaseType(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		// Fall back to a manual split for slightly malformed values
		mediaType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	return strings.ToLower(mediaType)
}

// ExtensionFor returns the file extension for a MIME type.
// Unknown types map to the default container's extension.
func ExtensionFor(mimeType string) string {
	if ext, ok := extensions[BaseType(mimeType)]; ok {
		return ext
	}
	return DefaultFormat.Extension
}

// FormatFor builds a Format from a MIME type.
func FormatFor(mimeType string) Format {
	return Format{MIMEType: mimeType, Extension: ExtensionFor(mimeType)}
}

// IsWAV reports whether the MIME type is one of the wave aliases.
func IsWAV(mimeType string) bool {
	return extensions[BaseType(mimeType)] == "wav"
}

// Preference is an ordered list of MIME types, highest priority first.
type Preference []string

// Select returns the first format the supported func accepts.
// When none is supported it returns DefaultFormat and false.
func (p Preference) Select(supported func(mimeType string) bool) (Format, bool) {
	for _, mimeType := range p {
		mimeType = strings.TrimSpace(mimeType)
		if mimeType == "" {
			continue
		}
		if supported(mimeType) {
			return FormatFor(mimeType), true
		}
	}
	return DefaultFormat, false
}
