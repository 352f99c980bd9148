package tts

import (
	"encoding/binary"
	"errors"
)

// DecodeWAV scans the RIFF/WAVE container in wav and returns a Clip holding
// the raw PCM from the "data" chunk together with the format from the "fmt "
// sub-chunk. Walking the chunk list is more robust than hardcoding a fixed
// 44-byte offset because the fmt chunk size may vary between encoders.
//
// Returns an error if wav is not a valid RIFF/WAVE container or if the fmt
// or data chunk cannot be located.
func DecodeWAV(wav []byte) (*Clip, error) {
	if len(wav) < 12 {
		return nil, errors.New("tts: WAV data too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return nil, errors.New("tts: WAV data missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return nil, errors.New("tts: WAV data missing WAVE identifier")
	}

	clip := &Clip{}
	foundFmt := false

	// Walk RIFF chunks starting immediately after the 12-byte RIFF/WAVE header.
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				clip.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				clip.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			if !foundFmt {
				return nil, errors.New("tts: WAV data chunk precedes fmt chunk")
			}
			end := offset + 8 + chunkSize
			if end > len(wav) {
				// Streamed WAV headers sometimes declare a placeholder size;
				// take whatever bytes are actually present.
				end = len(wav)
			}
			clip.PCM = wav[offset+8 : end]
			return clip, nil
		}

		// Advance past this chunk (chunks are word-aligned: pad by 1 if odd size).
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return nil, errors.New("tts: WAV data missing data chunk")
}
