//go:build local

package local

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// Playback plays PCM16 audio on the default output device through oto. Audio
// is buffered in an internal queue; Enqueue never blocks on the device.
type Playback struct {
	otoCtx *oto.Context
	player *oto.Player
	q      *queue

	closeOnce sync.Once
	closeErr  error
}

var _ Sink = (*Playback)(nil)

// NewPlayback initialises the default output device and starts the playback
// loop. It blocks until the device is ready.
func NewPlayback(cfg PlaybackConfig) (*Playback, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Format.Validate(); err != nil {
		return nil, fmt.Errorf("local: playback format: %w", err)
	}

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   cfg.Format.SampleRate,
		ChannelCount: cfg.Format.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("local: initialize audio output: %w", err)
	}
	<-ready

	p := &Playback{otoCtx: otoCtx, q: newQueue()}
	p.player = otoCtx.NewPlayer(p.q)
	p.player.Play()
	return p, nil
}

// Enqueue schedules pcm for playback.
func (p *Playback) Enqueue(pcm []byte) { p.q.push(pcm) }

// Flush drops queued audio that has not reached the device yet. Use it to cut
// a translation short when the speaker starts a new utterance.
func (p *Playback) Flush() { p.q.flush() }

// Close stops playback and releases the device. Queued audio is discarded.
func (p *Playback) Close() error {
	p.closeOnce.Do(func() {
		// Closing the queue first wakes any blocked device read; it serves
		// silence until the player shuts down.
		p.q.close()
		p.closeErr = p.player.Close()
	})
	return p.closeErr
}
