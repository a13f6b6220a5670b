package audio

import "testing"

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		mimeType string
		want     string
	}{
		{"audio/mp4", "mp4"},
		{"audio/wav", "wav"},
		{"audio/x-wav", "wav"},
		{"audio/webm;codecs=opus", "webm"},
		{"audio/webm; codecs=\"opus\"", "webm"},
		{"AUDIO/MPEG", "mp3"},
		{"audio/ogg", "ogg"},
		{"application/octet-stream", "webm"},
		{"", "webm"},
	}

	for _, tt := range tests {
		t.Run(tt.mimeType, func(t *testing.T) {
			if got := ExtensionFor(tt.mimeType); got != tt.want {
				t.Errorf("ExtensionFor(%q) = %q, want %q", tt.mimeType, got, tt.want)
			}
		})
	}
}

func TestIsWAV(t *testing.T) {
	if !IsWAV("audio/wave") {
		t.Error("Expected audio/wave to be WAV")
	}
	if IsWAV("audio/webm") {
		t.Error("Expected audio/webm not to be WAV")
	}
}

func TestPreference_SelectHighestPriority(t *testing.T) {
	format, ok := DefaultPreference.Select(func(string) bool { return true })

	if !ok {
		t.Fatal("Expected a supported format")
	}
	if format.MIMEType != "audio/mp4" {
		t.Errorf("Expected audio/mp4, got %s", format.MIMEType)
	}
	if format.Extension != "mp4" {
		t.Errorf("Expected mp4 extension, got %s", format.Extension)
	}
}

func TestPreference_SelectFallback(t *testing.T) {
	supported := map[string]bool{"audio/webm;codecs=opus": true}
	format, ok := DefaultPreference.Select(func(m string) bool { return supported[m] })

	if !ok {
		t.Fatal("Expected a supported format")
	}
	if format.MIMEType != "audio/webm;codecs=opus" {
		t.Errorf("Expected webm/opus, got %s", format.MIMEType)
	}
}

func TestPreference_SelectNoneSupported(t *testing.T) {
	format, ok := DefaultPreference.Select(func(string) bool { return false })

	if ok {
		t.Error("Expected no supported format")
	}
	if format != DefaultFormat {
		t.Errorf("Expected default format, got %+v", format)
	}
}

func TestPreference_SkipsBlankEntries(t *testing.T) {
	p := Preference{"", "  ", " audio/wav "}
	format, ok := p.Select(func(m string) bool { return m == "audio/wav" })

	if !ok || format.Extension != "wav" {
		t.Errorf("Expected wav selection, got %+v (ok=%v)", format, ok)
	}
}
