package vad

import (
	"errors"
	"fmt"
	"time"

	"github.com/voxlate/voxlate/pkg/audio"
)

// Config holds the detector tuning. All fields are read at construction;
// mutating a Config after [New] has no effect on the detector it built.
//
// Validation is strict: out-of-range values fail [Config.Validate] rather
// than being clamped, so a typo in a config file surfaces at startup instead
// of as silently degraded detection.
type Config struct {
	// Format of incoming frames. Defaults to [audio.PipelineFormat]
	// (16 kHz mono PCM16).
	Format audio.Format

	// FrameDuration is the fixed length of every frame passed to
	// [Detector.ProcessFrame]. Default 30 ms (480 samples at 16 kHz).
	FrameDuration time.Duration

	// HistorySize is the number of recent frame energies kept for the
	// adaptive threshold. Default 10 (~300 ms of context).
	HistorySize int

	// SpeechStartFrames is the number of consecutive speech-positive frames
	// required to leave SILENT. Debounces transient spikes. Default 3.
	SpeechStartFrames int

	// SpeechEndFrames is the number of consecutive speech-negative frames
	// required to leave SPEAKING. Default 10.
	SpeechEndFrames int

	// MinSpeechDuration is the shortest speech run that yields a
	// [audio.SpeechSegment]. Shorter runs end the SPEAKING state but are
	// discarded. Default 500 ms.
	MinSpeechDuration time.Duration

	// MaxSilenceDuration ends the SPEAKING state once trailing silence
	// exceeds it, independent of SpeechEndFrames. Default 1500 ms.
	MaxSilenceDuration time.Duration

	// EnergyThreshold is the static floor of the adaptive energy threshold,
	// in normalized RMS units [0,1]. Default 0.01.
	EnergyThreshold float64

	// ZCRThreshold is the minimum zero-crossing rate for a frame to count
	// as speech. Steady low-frequency noise carries energy but few
	// crossings; requiring both rejects it. Default 0.05.
	ZCRThreshold float64

	// PreRoll is how much audio preceding the detected onset is prepended
	// to each segment, so recognition does not clip the first phoneme.
	// Default 240 ms.
	PreRoll time.Duration

	// PostRoll is how much trailing silence is kept after the last speech
	// frame. Default 120 ms.
	PostRoll time.Duration
}

// DefaultConfig returns the detector defaults for 16 kHz mono input.
func DefaultConfig() Config {
	return Config{
		Format:             audio.PipelineFormat,
		FrameDuration:      30 * time.Millisecond,
		HistorySize:        10,
		SpeechStartFrames:  3,
		SpeechEndFrames:    10,
		MinSpeechDuration:  500 * time.Millisecond,
		MaxSilenceDuration: 1500 * time.Millisecond,
		EnergyThreshold:    0.01,
		ZCRThreshold:       0.05,
		PreRoll:            240 * time.Millisecond,
		PostRoll:           120 * time.Millisecond,
	}
}

// Validate reports every constraint violation in the config.
func (c Config) Validate() error {
	var errs []error
	if err := c.Format.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.FrameDuration <= 0 {
		errs = append(errs, fmt.Errorf("vad: frame_duration must be positive, got %v", c.FrameDuration))
	}
	if c.HistorySize < 1 {
		errs = append(errs, fmt.Errorf("vad: history_size must be at least 1, got %d", c.HistorySize))
	}
	if c.SpeechStartFrames < 1 {
		errs = append(errs, fmt.Errorf("vad: speech_start_frames must be at least 1, got %d", c.SpeechStartFrames))
	}
	if c.SpeechEndFrames < 1 {
		errs = append(errs, fmt.Errorf("vad: speech_end_frames must be at least 1, got %d", c.SpeechEndFrames))
	}
	if c.MinSpeechDuration < 0 {
		errs = append(errs, fmt.Errorf("vad: min_speech_duration must be non-negative, got %v", c.MinSpeechDuration))
	}
	if c.MaxSilenceDuration <= 0 {
		errs = append(errs, fmt.Errorf("vad: max_silence_duration must be positive, got %v", c.MaxSilenceDuration))
	}
	if c.EnergyThreshold < 0 {
		errs = append(errs, fmt.Errorf("vad: energy_threshold must be non-negative, got %g", c.EnergyThreshold))
	}
	if c.ZCRThreshold < 0 {
		errs = append(errs, fmt.Errorf("vad: zcr_threshold must be non-negative, got %g", c.ZCRThreshold))
	}
	if c.PreRoll < 0 {
		errs = append(errs, fmt.Errorf("vad: pre_roll must be non-negative, got %v", c.PreRoll))
	}
	if c.PostRoll < 0 {
		errs = append(errs, fmt.Errorf("vad: post_roll must be non-negative, got %v", c.PostRoll))
	}
	if c.Format.SampleRate > 0 && c.FrameDuration > 0 && c.Format.BytesPerFrame(c.FrameDuration) == 0 {
		errs = append(errs, fmt.Errorf("vad: frame_duration %v yields zero samples at %d Hz", c.FrameDuration, c.Format.SampleRate))
	}
	return errors.Join(errs...)
}
