// Package vad implements energy-based voice activity detection over fixed-size
// PCM16 frames.
//
// The detector classifies each frame by normalized RMS energy and
// zero-crossing rate against an adaptive threshold, then runs a two-state
// machine (SILENT ⇄ SPEAKING) with frame-count debounce on both transitions:
//
//  1. The adaptive energy threshold is max(static floor, mean + 2σ) over a
//     rolling window of recent non-speech frame energies, so detection tracks
//     the ambient noise floor instead of relying on a single fixed cutoff.
//  2. A frame is speech-positive only when energy exceeds the adaptive
//     threshold AND the zero-crossing rate exceeds its threshold. Steady hum
//     passes the energy test but not the ZCR test; both together reject it.
//  3. SILENT → SPEAKING fires after SpeechStartFrames consecutive positives,
//     with the onset backdated across the debounce run so the first syllable
//     is not truncated. SPEAKING → SILENT fires after SpeechEndFrames
//     consecutive negatives or once trailing silence exceeds
//     MaxSilenceDuration.
//  4. A finished run is emitted as an [audio.SpeechSegment] — padded with
//     pre-roll audio from before the onset and post-roll trailing silence —
//     only when the speech lasted at least MinSpeechDuration. Shorter blips
//     end the state without emitting anything.
//
// A Detector is owned by a single pipeline goroutine and is not safe for
// concurrent use. It copies every frame it retains, so callers may reuse
// their frame buffers between calls.
package vad

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/voxlate/voxlate/pkg/audio"
)

// State is the detector's position in the speech/silence state machine.
type State int

const (
	// StateSilent means no debounced speech run is in progress.
	StateSilent State = iota
	// StateSpeaking means a debounced speech run is being buffered.
	StateSpeaking
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateSilent:
		return "silent"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Event marks a state transition observed while processing a frame.
type Event int

const (
	// EventNone means the frame caused no transition.
	EventNone Event = iota
	// EventSpeechStart marks the SILENT → SPEAKING transition.
	EventSpeechStart
	// EventSpeechEnd marks the SPEAKING → SILENT transition. The segment is
	// attached only when the run met the minimum speech duration.
	EventSpeechEnd
)

// String returns the lowercase event name.
func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventSpeechStart:
		return "speech_start"
	case EventSpeechEnd:
		return "speech_end"
	default:
		return "unknown"
	}
}

// Result is the per-frame classification snapshot. It is returned by value
// and never retained by the detector.
type Result struct {
	// State after processing the frame.
	State State

	// Event is the transition this frame caused, if any.
	Event Event

	// Energy is the frame's normalized RMS in [0,1].
	Energy float64

	// ZCR is the frame's zero-crossing rate in [0,1].
	ZCR float64

	// Threshold is the adaptive energy threshold the frame was scored
	// against, computed from the noise history before this frame could
	// join it.
	Threshold float64

	// Confidence is how speech-like the frame looked in [0,1]: the mean of
	// the capped energy-over-threshold and ZCR-over-threshold ratios.
	Confidence float64

	// SpeechDuration is the elapsed speech time since the (backdated) onset
	// while SPEAKING; zero while SILENT.
	SpeechDuration time.Duration

	// SilenceDuration is the trailing silence inside a speech run while
	// SPEAKING, or the time since the last transition to SILENT otherwise.
	SilenceDuration time.Duration

	// Segment is the finished utterance, set only on [EventSpeechEnd] when
	// the run met the minimum speech duration.
	Segment *audio.SpeechSegment
}

// Detector segments a frame stream into speech and silence.
//
// Stream position is derived from the frame count (every frame is exactly
// Config.FrameDuration long); incoming Frame.Timestamp values are ignored.
type Detector struct {
	cfg        Config
	frameBytes int
	frameDur   time.Duration

	state       State
	pos         time.Duration // stream position after the current frame
	silentSince time.Duration

	// energy history ring for the adaptive threshold; order is irrelevant,
	// only mean and deviation are read
	hist    []float64
	histPos int

	speechRun   int
	pendingConf float64
	silenceRun  int

	pre *frameRing

	// in-progress segment
	seg           []audio.Frame
	segStart      time.Duration // backdated onset
	lastSpeechEnd time.Duration // end of the most recent positive frame
	speechFrames  int
	confSum       float64
}

// New constructs a Detector. Invalid config fails here; ProcessFrame can
// only fail on malformed frames afterwards.
func New(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	preFrames := int((cfg.PreRoll + cfg.FrameDuration - 1) / cfg.FrameDuration)
	return &Detector{
		cfg:        cfg,
		frameBytes: cfg.Format.BytesPerFrame(cfg.FrameDuration),
		frameDur:   cfg.FrameDuration,
		hist:       make([]float64, 0, cfg.HistorySize),
		pre:        newFrameRing(preFrames + cfg.SpeechStartFrames),
	}, nil
}

// State returns the current machine state.
func (d *Detector) State() State { return d.state }

// Reset returns the detector to its initial SILENT state, dropping the
// energy history, pre-roll buffer, and any in-progress segment. Idempotent.
func (d *Detector) Reset() {
	d.state = StateSilent
	d.pos = 0
	d.silentSince = 0
	d.hist = d.hist[:0]
	d.histPos = 0
	d.speechRun = 0
	d.pendingConf = 0
	d.silenceRun = 0
	d.pre.reset()
	d.seg = nil
	d.segStart = 0
	d.lastSpeechEnd = 0
	d.speechFrames = 0
	d.confSum = 0
}

// ProcessFrame classifies one frame and advances the state machine. The
// frame must match the configured format and be exactly one FrameDuration
// long; anything else is an error and leaves the detector state untouched.
func (d *Detector) ProcessFrame(frame audio.Frame) (Result, error) {
	if len(frame.Data) != d.frameBytes {
		return Result{}, fmt.Errorf("vad: frame is %d bytes, want %d (%v at %d Hz)",
			len(frame.Data), d.frameBytes, d.frameDur, d.cfg.Format.SampleRate)
	}
	if frame.SampleRate != 0 && frame.SampleRate != d.cfg.Format.SampleRate {
		return Result{}, fmt.Errorf("vad: frame sample rate %d Hz, want %d Hz", frame.SampleRate, d.cfg.Format.SampleRate)
	}
	if frame.Channels != 0 && frame.Channels != d.cfg.Format.Channels {
		return Result{}, fmt.Errorf("vad: frame has %d channels, want %d", frame.Channels, d.cfg.Format.Channels)
	}

	start := d.pos
	d.pos += d.frameDur

	energy := audio.RMS(frame.Data)
	zcr := audio.ZeroCrossingRate(frame.Data)

	// The energy history tracks the ambient noise floor: only frames
	// classified as non-speech feed it, so an utterance never raises the bar
	// it is judged against. Each frame is scored before its own energy can
	// enter the history.
	thr := d.adaptiveThreshold()
	positive := energy > thr && zcr > d.cfg.ZCRThreshold
	if !positive {
		d.pushEnergy(energy)
	}
	conf := frameConfidence(energy, thr, zcr, d.cfg.ZCRThreshold)

	res := Result{
		State:      d.state,
		Energy:     energy,
		ZCR:        zcr,
		Threshold:  thr,
		Confidence: conf,
	}

	switch d.state {
	case StateSilent:
		d.pre.push(d.retain(frame, start))
		if positive {
			d.speechRun++
			d.pendingConf += conf
			if d.speechRun >= d.cfg.SpeechStartFrames {
				d.enterSpeaking(start)
				res.State = StateSpeaking
				res.Event = EventSpeechStart
				res.SpeechDuration = d.pos - d.segStart
				return res, nil
			}
		} else {
			d.speechRun = 0
			d.pendingConf = 0
		}
		res.SilenceDuration = d.pos - d.silentSince

	case StateSpeaking:
		d.seg = append(d.seg, d.retain(frame, start))
		if positive {
			d.silenceRun = 0
			d.lastSpeechEnd = d.pos
			d.speechFrames++
			d.confSum += conf
		} else {
			d.silenceRun++
		}
		res.SpeechDuration = d.pos - d.segStart
		res.SilenceDuration = time.Duration(d.silenceRun) * d.frameDur
		if d.silenceRun >= d.cfg.SpeechEndFrames || res.SilenceDuration > d.cfg.MaxSilenceDuration {
			res.Segment = d.finishSegment()
			res.State = StateSilent
			res.Event = EventSpeechEnd
		}
	}
	return res, nil
}

// enterSpeaking flips to SPEAKING at the end of the debounce run. start is
// the stream position of the frame that completed the run.
func (d *Detector) enterSpeaking(start time.Duration) {
	// Backdate the onset to the first frame of the run.
	d.segStart = start - time.Duration(d.cfg.SpeechStartFrames-1)*d.frameDur
	if d.segStart < 0 {
		d.segStart = 0
	}
	window := d.segStart - d.cfg.PreRoll
	if window < 0 {
		window = 0
	}
	// The ring holds the debounce run plus up to PreRoll of audio before it.
	d.seg = d.pre.from(window)
	d.pre.reset()

	d.state = StateSpeaking
	d.lastSpeechEnd = start + d.frameDur
	d.speechFrames = d.cfg.SpeechStartFrames
	d.confSum = d.pendingConf
	d.speechRun = 0
	d.pendingConf = 0
	d.silenceRun = 0

	slog.Debug("speech started",
		"component", "vad",
		"onset", d.segStart,
		"buffered_frames", len(d.seg),
	)
}

// finishSegment flips back to SILENT and builds the segment, or returns nil
// when the run was shorter than the configured minimum.
func (d *Detector) finishSegment() *audio.SpeechSegment {
	frames := d.seg
	onset := d.segStart
	speechEnd := d.lastSpeechEnd
	speech := speechEnd - onset
	speechFrames := d.speechFrames
	confSum := d.confSum

	d.state = StateSilent
	d.silentSince = d.pos
	d.seg = nil
	d.segStart = 0
	d.lastSpeechEnd = 0
	d.speechFrames = 0
	d.confSum = 0
	d.speechRun = 0
	d.pendingConf = 0
	d.silenceRun = 0

	if speech < d.cfg.MinSpeechDuration || len(frames) == 0 {
		slog.Debug("speech run below minimum, discarding",
			"component", "vad",
			"speech", speech,
			"min", d.cfg.MinSpeechDuration,
		)
		return nil
	}

	// Trim trailing silence beyond the post-roll window. The buffer holds up
	// to SpeechEndFrames of silence; the segment keeps only PostRoll of it.
	cut := speechEnd + d.cfg.PostRoll
	kept := 0
	size := 0
	end := frames[0].Timestamp
	for _, f := range frames {
		if f.Timestamp >= cut {
			break
		}
		size += len(f.Data)
		end = f.Timestamp + d.frameDur
		kept++
	}
	pcm := make([]byte, 0, size)
	for _, f := range frames[:kept] {
		pcm = append(pcm, f.Data...)
	}

	conf := 0.0
	if speechFrames > 0 {
		conf = confSum / float64(speechFrames)
	}
	seg := &audio.SpeechSegment{
		PCM:        pcm,
		Format:     d.cfg.Format,
		Start:      frames[0].Timestamp,
		End:        end,
		Speech:     speech,
		Confidence: conf,
	}
	slog.Debug("speech segment finished",
		"component", "vad",
		"start", seg.Start,
		"end", seg.End,
		"speech", speech,
		"confidence", conf,
	)
	return seg
}

// adaptiveThreshold returns max(static floor, mean + 2σ) over the energy
// history. An empty history (stream start, after Reset) yields the floor.
func (d *Detector) adaptiveThreshold() float64 {
	n := len(d.hist)
	if n == 0 {
		return d.cfg.EnergyThreshold
	}
	var sum float64
	for _, e := range d.hist {
		sum += e
	}
	mean := sum / float64(n)
	var dev float64
	for _, e := range d.hist {
		diff := e - mean
		dev += diff * diff
	}
	sigma := math.Sqrt(dev / float64(n))
	if thr := mean + 2*sigma; thr > d.cfg.EnergyThreshold {
		return thr
	}
	return d.cfg.EnergyThreshold
}

func (d *Detector) pushEnergy(e float64) {
	if len(d.hist) < d.cfg.HistorySize {
		d.hist = append(d.hist, e)
		return
	}
	d.hist[d.histPos] = e
	d.histPos = (d.histPos + 1) % d.cfg.HistorySize
}

// retain copies a frame for buffering, stamping it with the detector's own
// stream position. Callers of ProcessFrame may reuse their Data buffers.
func (d *Detector) retain(frame audio.Frame, start time.Duration) audio.Frame {
	data := make([]byte, len(frame.Data))
	copy(data, frame.Data)
	return audio.Frame{
		Data:       data,
		SampleRate: d.cfg.Format.SampleRate,
		Channels:   d.cfg.Format.Channels,
		Timestamp:  start,
	}
}

// frameConfidence scores how speech-like a frame looks: the mean of the
// energy-over-threshold and ZCR-over-threshold ratios, each capped at 1.
func frameConfidence(energy, thr, zcr, zcrThr float64) float64 {
	e := 1.0
	switch {
	case thr > 0:
		e = min(energy/thr, 1)
	case energy <= 0:
		e = 0
	}
	z := 1.0
	switch {
	case zcrThr > 0:
		z = min(zcr/zcrThr, 1)
	case zcr <= 0:
		z = 0
	}
	return (e + z) / 2
}

// ─── Pre-roll ring ──────────────────────────────────────────────────────────

// frameRing keeps the most recent frames seen while SILENT so a new segment
// can be padded with audio from before its detected onset.
type frameRing struct {
	buf []audio.Frame
	pos int // oldest element once the ring is full
}

func newFrameRing(capacity int) *frameRing {
	if capacity < 1 {
		capacity = 1
	}
	return &frameRing{buf: make([]audio.Frame, 0, capacity)}
}

func (r *frameRing) push(f audio.Frame) {
	if len(r.buf) < cap(r.buf) {
		r.buf = append(r.buf, f)
		return
	}
	r.buf[r.pos] = f
	r.pos = (r.pos + 1) % len(r.buf)
}

// from returns the buffered frames with timestamps at or after cutoff,
// oldest first. Ownership of the returned frames moves to the caller.
func (r *frameRing) from(cutoff time.Duration) []audio.Frame {
	n := len(r.buf)
	out := make([]audio.Frame, 0, n)
	for i := 0; i < n; i++ {
		f := r.buf[(r.pos+i)%n]
		if f.Timestamp >= cutoff {
			out = append(out, f)
		}
	}
	return out
}

func (r *frameRing) reset() {
	r.buf = r.buf[:0]
	r.pos = 0
}
