package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// EncodeWAV wraps PCM16 data in a minimal RIFF/WAVE container so it can be
// uploaded to transcription APIs that refuse raw PCM. The chunk sizes are
// backfilled after the body is written.
func EncodeWAV(pcm []byte, f Format) []byte {
	var buf bytes.Buffer

	bitDepth := 16
	byteRate := f.SampleRate * f.Channels * bitDepth / 8
	blockAlign := f.Channels * bitDepth / 8

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // RIFF size, backfilled
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16)) // PCM fmt chunk size
	binary.Write(&buf, binary.LittleEndian, uint16(1))  // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(f.Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(f.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitDepth))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	out := buf.Bytes()
	binary.LittleEndian.PutUint32(out[4:], uint32(len(out)-8))
	return out
}

// DecodeWAV extracts the PCM16 payload and its format from a RIFF/WAVE
// container. It walks the chunk list rather than assuming a fixed 44-byte
// header because some encoders insert LIST or fact chunks before the data.
func DecodeWAV(wav []byte) ([]byte, Format, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, Format{}, errors.New("audio: not a RIFF/WAVE container")
	}

	var f Format
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8 : offset+8+16]
				codec := binary.LittleEndian.Uint16(fmtData[0:2])
				bits := binary.LittleEndian.Uint16(fmtData[14:16])
				if codec != 1 || bits != 16 {
					return nil, Format{}, fmt.Errorf("audio: unsupported wav encoding (codec %d, %d-bit)", codec, bits)
				}
				f.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				f.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
			}
		case "data":
			if err := f.Validate(); err != nil {
				return nil, Format{}, fmt.Errorf("audio: wav fmt chunk: %w", err)
			}
			start := offset + 8
			end := start + chunkSize
			if end > len(wav) {
				end = len(wav)
			}
			return wav[start:end], f, nil
		}

		// Chunks are word-aligned: odd sizes carry one pad byte.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return nil, Format{}, errors.New("audio: wav data chunk not found")
}
