package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// StreamingDataSize is written into the RIFF and data size fields when the
// final length is unknown at the time the header is emitted.
const StreamingDataSize = 0xFFFFFFFF

// wavHeaderSize is the length of the canonical 44-byte PCM header
const wavHeaderSize = 44

// WAVHeader represents the canonical header structure of a PCM WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// WAV is a decoded 16-bit PCM wave file
type WAV struct {
	Params  PCMParams
	Samples []int16 // Interleaved samples
}

// Duration returns the playback length in seconds
func (w *WAV) Duration() float64 {
	if w.Params.SampleRate == 0 || w.Params.Channels == 0 {
		return 0
	}
	return float64(len(w.Samples)/w.Params.Channels) / float64(w.Params.SampleRate)
}

// EncodeWAVHeader builds a 44-byte PCM header for dataLen bytes of audio.
// Pass StreamingDataSize when the length is not yet known.
func EncodeWAVHeader(params PCMParams, dataLen uint32) []byte {
	bitsPerSample := uint16(16)
	channels := uint16(params.Channels)

	chunkSize := uint32(StreamingDataSize)
	if dataLen != StreamingDataSize {
		chunkSize = 36 + dataLen
	}

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     chunkSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   channels,
		SampleRate:    uint32(params.SampleRate),
		ByteRate:      uint32(params.SampleRate) * uint32(channels) * uint32(bitsPerSample) / 8,
		BlockAlign:    channels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataLen,
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize))
	// Writing a fixed-size struct to a bytes.Buffer cannot fail
	_ = binary.Write(buf, binary.LittleEndian, header)
	return buf.Bytes()
}

// EncodeWAV encodes PCM-16 samples into a complete WAV file
func EncodeWAV(samples []int16, params PCMParams) ([]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid PCM params: %w", err)
	}

	data := SamplesToBytes(samples)
	out := EncodeWAVHeader(params, uint32(len(data)))
	return append(out, data...), nil
}

// ReadWAVHeader consumes a WAV header from r, leaving r positioned at the
// start of the PCM data. It returns the PCM params and the declared data
// length (StreamingDataSize if unknown).
func ReadWAVHeader(r io.Reader) (PCMParams, uint32, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return PCMParams{}, 0, fmt.Errorf("failed to read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" {
		return PCMParams{}, 0, fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(riff[8:12]) != "WAVE" {
		return PCMParams{}, 0, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	var (
		params  PCMParams
		haveFmt bool
	)
	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r, chunkHeader[:]); err != nil {
			return PCMParams{}, 0, fmt.Errorf("invalid WAV file: missing data chunk: %w", err)
		}
		id := string(chunkHeader[0:4])
		size := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return PCMParams{}, 0, fmt.Errorf("invalid WAV file: fmt chunk too short (%d bytes)", size)
			}
			fmtChunk := make([]byte, size)
			if _, err := io.ReadFull(r, fmtChunk); err != nil {
				return PCMParams{}, 0, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			audioFormat := binary.LittleEndian.Uint16(fmtChunk[0:2])
			bits := binary.LittleEndian.Uint16(fmtChunk[14:16])
			if audioFormat != 1 {
				return PCMParams{}, 0, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", audioFormat)
			}
			if bits != 16 {
				return PCMParams{}, 0, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", bits)
			}
			params = PCMParams{
				Channels:   int(binary.LittleEndian.Uint16(fmtChunk[2:4])),
				SampleRate: int(binary.LittleEndian.Uint32(fmtChunk[4:8])),
			}
			haveFmt = true
			if size%2 == 1 {
				if _, err := io.CopyN(io.Discard, r, 1); err != nil {
					return PCMParams{}, 0, fmt.Errorf("failed to skip fmt padding: %w", err)
				}
			}

		case "data":
			if !haveFmt {
				return PCMParams{}, 0, fmt.Errorf("invalid WAV file: data chunk before fmt chunk")
			}
			if err := params.Validate(); err != nil {
				return PCMParams{}, 0, fmt.Errorf("invalid WAV file: %w", err)
			}
			return params, size, nil

		default:
			// LIST, fact and other metadata chunks are word aligned
			skip := int64(size) + int64(size%2)
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return PCMParams{}, 0, fmt.Errorf("failed to skip %q chunk: %w", id, err)
			}
		}
	}
}

// ParseWAV decodes a complete 16-bit PCM WAV file held in memory. A data size
// larger than the remaining bytes (including StreamingDataSize) is clamped.
func ParseWAV(data []byte) (*WAV, error) {
	if len(data) < wavHeaderSize {
		return nil, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", wavHeaderSize, len(data))
	}

	r := bytes.NewReader(data)
	params, size, err := ReadWAVHeader(r)
	if err != nil {
		return nil, err
	}

	remaining := r.Len()
	if int64(size) < int64(remaining) {
		remaining = int(size)
	}
	remaining -= remaining % 2

	pcm := make([]byte, remaining)
	if _, err := io.ReadFull(r, pcm); err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	samples, err := BytesToSamples(pcm)
	if err != nil {
		return nil, err
	}
	return &WAV{Params: params, Samples: samples}, nil
}
