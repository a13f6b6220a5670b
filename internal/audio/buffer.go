package audio

import (
	"sync"
	"time"
)

// ChunkBuffer is a thread-safe, append-only sequence of encoded audio chunks.
// Chunks are copied on append and never reordered or mutated afterwards.
type ChunkBuffer struct {
	chunks [][]byte
	size   int
	mu     sync.RWMutex
}

// NewChunkBuffer creates an empty chunk buffer
func NewChunkBuffer() *ChunkBuffer {
	return &ChunkBuffer{}
}

// Append adds a copy of chunk to the end of the buffer and returns the
// total number of bytes held afterwards.
func (cb *ChunkBuffer) Append(chunk []byte) int {
	cp := make([]byte, len(chunk))
	copy(cp, chunk)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.chunks = append(cb.chunks, cp)
	cb.size += len(cp)
	return cb.size
}

// Len returns the number of chunks appended so far
func (cb *ChunkBuffer) Len() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return len(cb.chunks)
}

// Size returns the total number of bytes across all chunks
func (cb *ChunkBuffer) Size() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.size
}

// Bytes returns the concatenation of all chunks in append order
func (cb *ChunkBuffer) Bytes() []byte {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	out := make([]byte, 0, cb.size)
	for _, c := range cb.chunks {
		out = append(out, c...)
	}
	return out
}

// Artifact is a finalized, immutable encoded recording.
type Artifact struct {
	data     []byte
	mimeType string
	fileName string
	duration time.Duration
}

// NewArtifact assembles an artifact from the buffer's chunks. The file name is
// baseName plus the extension matching mimeType.
func NewArtifact(buf *ChunkBuffer, mimeType, baseName string, duration time.Duration) Artifact {
	if baseName == "" {
		baseName = "recording"
	}
	return Artifact{
		data:     buf.Bytes(),
		mimeType: mimeType,
		fileName: baseName + "." + ExtensionFor(mimeType),
		duration: duration,
	}
}

// Bytes returns a copy of the artifact's data
func (a Artifact) Bytes() []byte {
	out := make([]byte, len(a.data))
	copy(out, a.data)
	return out
}

// Size returns the artifact length in bytes
func (a Artifact) Size() int { return len(a.data) }

// Empty reports whether the artifact holds no audio bytes
func (a Artifact) Empty() bool { return len(a.data) == 0 }

// MIMEType returns the artifact's MIME type
func (a Artifact) MIMEType() string { return a.mimeType }

// FileName returns the upload file name, e.g. "recording.wav"
func (a Artifact) FileName() string { return a.fileName }

// Duration returns the capture duration
func (a Artifact) Duration() time.Duration { return a.duration }
