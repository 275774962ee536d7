package stt

import "time"

// Result is a completed transcription of one speech segment.
type Result struct {
	// Text is the recognized speech content. Empty when the segment contained
	// no recognizable speech.
	Text string

	// Language is the language of the transcript. Providers that auto-detect
	// report the detected language; otherwise this echoes the requested one.
	Language string

	// Duration is the length of the transcribed audio.
	Duration time.Duration
}
