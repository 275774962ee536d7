//go:build !local

package local

// Capture is unavailable in binaries built without the "local" tag.
type Capture struct{}

var _ Source = (*Capture)(nil)

// NewCapture returns [ErrDisabled]: this binary was built without local audio
// device support.
func NewCapture(CaptureConfig) (*Capture, error) { return nil, ErrDisabled }

func (*Capture) Frames() <-chan []byte { return nil }

func (*Capture) Close() error { return nil }

// Playback is unavailable in binaries built without the "local" tag.
type Playback struct{}

var _ Sink = (*Playback)(nil)

// NewPlayback returns [ErrDisabled]: this binary was built without local audio
// device support.
func NewPlayback(PlaybackConfig) (*Playback, error) { return nil, ErrDisabled }

func (*Playback) Enqueue([]byte) {}

func (*Playback) Flush() {}

func (*Playback) Close() error { return nil }
