package tts

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildWAV constructs a minimal RIFF/WAVE file with the given format and PCM
// payload. extraChunk, if non-empty, is inserted between fmt and data to
// exercise chunk walking.
func buildWAV(sampleRate, channels int, pcm []byte, extraChunk []byte) []byte {
	var buf bytes.Buffer
	write := func(v any) { binary.Write(&buf, binary.LittleEndian, v) }

	buf.WriteString("RIFF")
	write(uint32(0)) // overall size, not validated
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	write(uint32(16))
	write(uint16(1)) // PCM
	write(uint16(channels))
	write(uint32(sampleRate))
	write(uint32(sampleRate * channels * 2)) // byte rate
	write(uint16(channels * 2))              // block align
	write(uint16(16))                        // bits per sample

	if len(extraChunk) > 0 {
		buf.WriteString("LIST")
		write(uint32(len(extraChunk)))
		buf.Write(extraChunk)
		if len(extraChunk)%2 != 0 {
			buf.WriteByte(0)
		}
	}

	buf.WriteString("data")
	write(uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

func TestDecodeWAV_Simple(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	wav := buildWAV(24000, 1, pcm, nil)

	clip, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if clip.SampleRate != 24000 {
		t.Errorf("sample rate: want 24000, got %d", clip.SampleRate)
	}
	if clip.Channels != 1 {
		t.Errorf("channels: want 1, got %d", clip.Channels)
	}
	if !bytes.Equal(clip.PCM, pcm) {
		t.Errorf("pcm mismatch: want %v, got %v", pcm, clip.PCM)
	}
}

func TestDecodeWAV_SkipsUnknownChunks(t *testing.T) {
	pcm := []byte{9, 9, 9, 9}
	wav := buildWAV(44100, 2, pcm, []byte("INFOmetadata"))

	clip, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if clip.SampleRate != 44100 || clip.Channels != 2 {
		t.Errorf("format: want 44100/2, got %d/%d", clip.SampleRate, clip.Channels)
	}
	if !bytes.Equal(clip.PCM, pcm) {
		t.Errorf("pcm mismatch")
	}
}

func TestDecodeWAV_TruncatedDataChunk(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	wav := buildWAV(16000, 1, pcm, nil)
	// Chop the last two PCM bytes; declared size now exceeds actual bytes.
	wav = wav[:len(wav)-2]

	clip, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if len(clip.PCM) != 6 {
		t.Errorf("expected 6 pcm bytes after truncation, got %d", len(clip.PCM))
	}
}

func TestDecodeWAV_Invalid(t *testing.T) {
	cases := map[string][]byte{
		"too short":    []byte("RIFF"),
		"not riff":     append([]byte("JUNK1234WAVE"), make([]byte, 32)...),
		"not wave":     append([]byte("RIFF1234JUNK"), make([]byte, 32)...),
		"no data":      buildWAV(16000, 1, nil, nil)[:20],
		"empty":        {},
	}
	for name, data := range cases {
		if _, err := DecodeWAV(data); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
