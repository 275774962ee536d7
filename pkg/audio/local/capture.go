//go:build local

package local

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/voxlate/voxlate/pkg/audio"
)

// Capture reads PCM16 frames from the default input device through PortAudio.
type Capture struct {
	stream *portaudio.Stream
	frames chan []byte

	closeOnce sync.Once
	closeErr  error
}

var _ Source = (*Capture)(nil)

// NewCapture opens the default input device and starts delivering frames of
// cfg.FrameDuration. Close releases the device.
func NewCapture(cfg CaptureConfig) (*Capture, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Format.Validate(); err != nil {
		return nil, fmt.Errorf("local: capture format: %w", err)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("local: initialize portaudio: %w", err)
	}

	c := &Capture{frames: make(chan []byte, cfg.Buffer)}

	// PortAudio counts buffer size in frames: one sample per channel.
	perBuffer := cfg.Format.BytesPerFrame(cfg.FrameDuration) / (2 * cfg.Format.Channels)
	stream, err := portaudio.OpenDefaultStream(
		cfg.Format.Channels, 0, float64(cfg.Format.SampleRate), perBuffer, c.onFrame)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("local: open input stream: %w", err)
	}
	c.stream = stream

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("local: start input stream: %w", err)
	}
	return c, nil
}

// onFrame runs on the PortAudio callback thread and must not block: when the
// channel is full the frame is dropped, which the detector reads as silence.
func (c *Capture) onFrame(in []int16) {
	select {
	case c.frames <- audio.SamplesToBytes(in):
	default:
	}
}

// Frames returns the capture stream. The channel closes on Close.
func (c *Capture) Frames() <-chan []byte { return c.frames }

// Close stops the capture stream and releases the audio device.
func (c *Capture) Close() error {
	c.closeOnce.Do(func() {
		// Stop blocks until in-flight callbacks return, so closing the
		// channel afterwards cannot race onFrame.
		if err := c.stream.Stop(); err != nil {
			c.closeErr = fmt.Errorf("local: stop input stream: %w", err)
		}
		if err := c.stream.Close(); err != nil && c.closeErr == nil {
			c.closeErr = fmt.Errorf("local: close input stream: %w", err)
		}
		if err := portaudio.Terminate(); err != nil && c.closeErr == nil {
			c.closeErr = fmt.Errorf("local: terminate portaudio: %w", err)
		}
		close(c.frames)
	})
	return c.closeErr
}
