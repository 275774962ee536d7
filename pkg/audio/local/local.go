// Package local adapts the machine's default audio devices to the translation
// pipeline: a PortAudio microphone capture source and an oto playback sink.
//
// The device-backed implementations are gated behind the "local" build tag so
// server deployments compile without native audio dependencies; without the
// tag [NewCapture] and [NewPlayback] return [ErrDisabled]. [MockSource] and
// [MockSink] are always available for tests and headless runs.
package local

import (
	"errors"
	"sync"
	"time"

	"github.com/voxlate/voxlate/pkg/audio"
)

// ErrDisabled is returned by NewCapture and NewPlayback when the binary was
// built without the "local" build tag.
var ErrDisabled = errors.New("local: audio device support not compiled in (build with -tags local)")

// PlaybackFormat is the default playback sample layout. The bundled synthesis
// providers emit 24 kHz mono PCM16 unless configured otherwise.
var PlaybackFormat = audio.Format{SampleRate: 24000, Channels: 1}

// Source delivers frames of interleaved PCM16 capture audio.
type Source interface {
	// Frames returns the capture stream. The channel closes when the
	// source shuts down.
	Frames() <-chan []byte

	// Close releases the source. Safe to call more than once.
	Close() error
}

// Sink plays interleaved PCM16 audio.
type Sink interface {
	// Enqueue schedules pcm for playback. It never blocks on the device.
	Enqueue(pcm []byte)

	// Flush drops queued audio that has not reached the device yet.
	Flush()

	// Close stops playback and releases the sink. Queued audio is
	// discarded.
	Close() error
}

// CaptureConfig configures microphone capture.
type CaptureConfig struct {
	// Format is the capture sample layout. Defaults to [audio.PipelineFormat].
	Format audio.Format

	// FrameDuration is the length of each delivered frame. Defaults to 20ms,
	// matching the detector's default frame size.
	FrameDuration time.Duration

	// Buffer is the frame channel capacity. Defaults to 64 frames.
	Buffer int
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.Format == (audio.Format{}) {
		c.Format = audio.PipelineFormat
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = 20 * time.Millisecond
	}
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
	return c
}

// PlaybackConfig configures speaker output.
type PlaybackConfig struct {
	// Format is the playback sample layout. Defaults to [PlaybackFormat].
	Format audio.Format
}

func (c PlaybackConfig) withDefaults() PlaybackConfig {
	if c.Format == (audio.Format{}) {
		c.Format = PlaybackFormat
	}
	return c
}

// queue is a goroutine-safe PCM buffer exposed to the output device as an
// io.Reader. Read blocks until audio arrives; once closed it serves silence
// so the device can drain whatever it already buffered.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.buf = append(q.buf, pcm...)
	q.cond.Signal()
}

func (q *queue) flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buf = q.buf[:0]
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *queue) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.buf) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed && len(q.buf) == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	n := copy(p, q.buf)
	q.buf = q.buf[n:]
	return n, nil
}
