package audio

import (
	"fmt"
	"time"
)

// Format describes the sample rate and channel count of a PCM16 stream.
type Format struct {
	SampleRate int
	Channels   int
}

// PipelineFormat is the fixed format all pipeline-internal audio uses:
// 16 kHz mono signed 16-bit little-endian PCM.
var PipelineFormat = Format{SampleRate: 16000, Channels: 1}

// Validate reports whether the format is usable for PCM16 processing.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("audio: channels must be 1 or 2, got %d", f.Channels)
	}
	return nil
}

// BytesPerFrame returns the byte length of a frame of the given duration,
// 2 bytes per sample per channel.
func (f Format) BytesPerFrame(d time.Duration) int {
	samples := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	return samples * 2 * f.Channels
}

// FrameDuration returns the play time of n bytes of PCM16 in this format.
func (f Format) FrameDuration(n int) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := n / (2 * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Frame is a single chunk of audio flowing through the pipeline. Frames are
// the atomic unit of transport: captured from input sources, scored by the
// VAD, buffered into speech segments, and forwarded to streaming sessions.
type Frame struct {
	// Data is little-endian int16 PCM.
	Data []byte

	// SampleRate in Hz (e.g. 48000 for a desktop microphone, 16000 inside
	// the pipeline).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the play time of the frame.
func (f Frame) Duration() time.Duration {
	return Format{SampleRate: f.SampleRate, Channels: f.Channels}.FrameDuration(len(f.Data))
}

// SpeechSegment is one detected utterance, padded with pre- and post-roll
// audio so downstream recognition does not clip word onsets or tails.
type SpeechSegment struct {
	// PCM is the padded utterance audio in Format.
	PCM    []byte
	Format Format

	// Start is the segment start relative to stream start. It covers the
	// pre-roll, so it precedes the detected speech onset.
	Start time.Duration

	// End is the segment end including post-roll.
	End time.Duration

	// Speech is the detected speech duration without padding.
	Speech time.Duration

	// Confidence is the detector's confidence in [0,1] that the segment
	// contains speech.
	Confidence float64
}

// Duration returns the padded segment length.
func (s SpeechSegment) Duration() time.Duration { return s.End - s.Start }
