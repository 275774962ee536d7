package vad_test

import (
	"math"
	"testing"
	"time"

	"github.com/voxlate/voxlate/internal/vad"
	"github.com/voxlate/voxlate/pkg/audio"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

// frameSamples is the sample count of one 30 ms frame at 16 kHz mono.
const frameSamples = 480

// dcFrame returns a 30 ms frame holding a constant amplitude. A constant
// signal never crosses zero, so these always classify as non-speech and feed
// the detector's noise history.
func dcFrame(amp int16) audio.Frame {
	samples := make([]int16, frameSamples)
	for i := range samples {
		samples[i] = amp
	}
	return audio.Frame{Data: audio.SamplesToBytes(samples), SampleRate: 16000, Channels: 1}
}

// squareFrame returns a 30 ms square wave with a 16-sample period: RMS is
// exactly amp/32768 and the zero-crossing rate ≈ 0.123, comfortably above
// the default ZCR threshold.
func squareFrame(amp int16) audio.Frame {
	samples := make([]int16, frameSamples)
	for i := range samples {
		if (i/8)%2 == 0 {
			samples[i] = amp
		} else {
			samples[i] = -amp
		}
	}
	return audio.Frame{Data: audio.SamplesToBytes(samples), SampleRate: 16000, Channels: 1}
}

func silence() audio.Frame     { return dcFrame(33) }       // energy ≈ 0.001, below the static floor
func speechFrame() audio.Frame { return squareFrame(8000) } // energy ≈ 0.244

func repeat(f audio.Frame, n int) []audio.Frame {
	out := make([]audio.Frame, n)
	for i := range out {
		out[i] = f
	}
	return out
}

func concat(seqs ...[]audio.Frame) []audio.Frame {
	var out []audio.Frame
	for _, s := range seqs {
		out = append(out, s...)
	}
	return out
}

// processAll feeds every frame and collects the per-frame results.
func processAll(t *testing.T, d *vad.Detector, frames []audio.Frame) []vad.Result {
	t.Helper()
	out := make([]vad.Result, 0, len(frames))
	for i, f := range frames {
		res, err := d.ProcessFrame(f)
		if err != nil {
			t.Fatalf("ProcessFrame(%d): unexpected error: %v", i, err)
		}
		out = append(out, res)
	}
	return out
}

// segments extracts the emitted segments from a result sequence.
func segments(results []vad.Result) []*audio.SpeechSegment {
	var out []*audio.SpeechSegment
	for _, r := range results {
		if r.Segment != nil {
			out = append(out, r.Segment)
		}
	}
	return out
}

// events counts occurrences of an event kind in a result sequence.
func events(results []vad.Result, e vad.Event) int {
	n := 0
	for _, r := range results {
		if r.Event == e {
			n++
		}
	}
	return n
}

func newDetector(t *testing.T, cfg vad.Config) *vad.Detector {
	t.Helper()
	d, err := vad.New(cfg)
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	return d
}

// ─── TestNew_ValidatesConfig ──────────────────────────────────────────────────

func TestNew_ValidatesConfig(t *testing.T) {
	t.Parallel()

	if _, err := vad.New(vad.DefaultConfig()); err != nil {
		t.Fatalf("New(DefaultConfig): unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*vad.Config)
	}{
		{"zero frame duration", func(c *vad.Config) { c.FrameDuration = 0 }},
		{"zero history size", func(c *vad.Config) { c.HistorySize = 0 }},
		{"zero speech start frames", func(c *vad.Config) { c.SpeechStartFrames = 0 }},
		{"zero speech end frames", func(c *vad.Config) { c.SpeechEndFrames = 0 }},
		{"negative min speech", func(c *vad.Config) { c.MinSpeechDuration = -time.Second }},
		{"zero max silence", func(c *vad.Config) { c.MaxSilenceDuration = 0 }},
		{"negative energy threshold", func(c *vad.Config) { c.EnergyThreshold = -0.1 }},
		{"negative zcr threshold", func(c *vad.Config) { c.ZCRThreshold = -0.1 }},
		{"negative pre-roll", func(c *vad.Config) { c.PreRoll = -time.Millisecond }},
		{"negative post-roll", func(c *vad.Config) { c.PostRoll = -time.Millisecond }},
		{"bad sample rate", func(c *vad.Config) { c.Format.SampleRate = 0 }},
		{"bad channel count", func(c *vad.Config) { c.Format.Channels = 5 }},
		{"frame shorter than one sample", func(c *vad.Config) { c.FrameDuration = 30 * time.Microsecond }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := vad.DefaultConfig()
			tt.mutate(&cfg)
			if _, err := vad.New(cfg); err == nil {
				t.Errorf("New: want error for %s, got nil", tt.name)
			}
		})
	}
}

// ─── TestProcessFrame_RejectsMalformedFrames ──────────────────────────────────

func TestProcessFrame_RejectsMalformedFrames(t *testing.T) {
	t.Parallel()

	d := newDetector(t, vad.DefaultConfig())

	tests := []struct {
		name  string
		frame audio.Frame
	}{
		{"wrong byte length", audio.Frame{Data: make([]byte, 100), SampleRate: 16000, Channels: 1}},
		{"wrong sample rate", audio.Frame{Data: make([]byte, frameSamples*2), SampleRate: 48000, Channels: 1}},
		{"wrong channel count", audio.Frame{Data: make([]byte, frameSamples*2), SampleRate: 16000, Channels: 2}},
	}
	for _, tt := range tests {
		if _, err := d.ProcessFrame(tt.frame); err == nil {
			t.Errorf("%s: want error, got nil", tt.name)
		}
	}

	// A rejected frame must not advance the detector.
	if got := d.State(); got != vad.StateSilent {
		t.Errorf("state after rejected frames: want silent, got %v", got)
	}
}

// ─── TestDetector_Debounce ────────────────────────────────────────────────────

// Two speech-positive frames (below the three-frame debounce) followed by
// negatives must never leave SILENT and must never emit a segment.
func TestDetector_Debounce(t *testing.T) {
	t.Parallel()

	d := newDetector(t, vad.DefaultConfig())
	results := processAll(t, d, concat(
		repeat(silence(), 10),
		repeat(speechFrame(), 2),
		repeat(silence(), 5),
	))

	for i, r := range results {
		if r.State != vad.StateSilent {
			t.Fatalf("frame %d: state %v, want silent", i, r.State)
		}
		if r.Event != vad.EventNone {
			t.Fatalf("frame %d: event %v, want none", i, r.Event)
		}
	}
	if segs := segments(results); len(segs) != 0 {
		t.Errorf("segments emitted: want 0, got %d", len(segs))
	}
}

// ─── TestDetector_CleanUtterance ──────────────────────────────────────────────

// A 600 ms utterance between silence stretches yields exactly one segment
// with exact, frame-aligned boundaries: 240 ms pre-roll, 600 ms speech,
// 120 ms post-roll.
func TestDetector_CleanUtterance(t *testing.T) {
	t.Parallel()

	d := newDetector(t, vad.DefaultConfig())
	results := processAll(t, d, concat(
		repeat(silence(), 20),      // frames 0..19: noise floor
		repeat(speechFrame(), 20),  // frames 20..39: 600 ms of speech
		repeat(silence(), 10),      // frames 40..49: debounced end
	))

	if got := events(results, vad.EventSpeechStart); got != 1 {
		t.Fatalf("speech_start events: want 1, got %d", got)
	}
	if got := events(results, vad.EventSpeechEnd); got != 1 {
		t.Fatalf("speech_end events: want 1, got %d", got)
	}

	// Start fires on the third positive frame (index 22), end on the tenth
	// negative frame (index 49).
	if results[22].Event != vad.EventSpeechStart {
		t.Errorf("frame 22: event %v, want speech_start", results[22].Event)
	}
	if results[49].Event != vad.EventSpeechEnd {
		t.Errorf("frame 49: event %v, want speech_end", results[49].Event)
	}

	segs := segments(results)
	if len(segs) != 1 {
		t.Fatalf("segments emitted: want 1, got %d", len(segs))
	}
	seg := segs[0]

	if want := 360 * time.Millisecond; seg.Start != want {
		t.Errorf("segment start: want %v, got %v", want, seg.Start)
	}
	if want := 1320 * time.Millisecond; seg.End != want {
		t.Errorf("segment end: want %v, got %v", want, seg.End)
	}
	if want := 600 * time.Millisecond; seg.Speech != want {
		t.Errorf("segment speech duration: want %v, got %v", want, seg.Speech)
	}
	if want := 960 * time.Millisecond; seg.Duration() != want {
		t.Errorf("segment padded duration: want %v, got %v", want, seg.Duration())
	}
	// 8 pre-roll + 20 speech + 4 post-roll frames, 960 bytes each.
	if want := 32 * frameSamples * 2; len(seg.PCM) != want {
		t.Errorf("segment PCM bytes: want %d, got %d", want, len(seg.PCM))
	}
	// Loud square-wave speech saturates both confidence ratios.
	if seg.Confidence != 1.0 {
		t.Errorf("segment confidence: want 1.0, got %g", seg.Confidence)
	}
}

// ─── TestDetector_PreRollClampedAtStreamStart ─────────────────────────────────

// An utterance beginning on the very first frame has no pre-roll audio to
// draw on; the segment starts at zero rather than a negative timestamp.
func TestDetector_PreRollClampedAtStreamStart(t *testing.T) {
	t.Parallel()

	d := newDetector(t, vad.DefaultConfig())
	results := processAll(t, d, concat(
		repeat(speechFrame(), 20), // frames 0..19
		repeat(silence(), 10),
	))

	segs := segments(results)
	if len(segs) != 1 {
		t.Fatalf("segments emitted: want 1, got %d", len(segs))
	}
	seg := segs[0]
	if seg.Start != 0 {
		t.Errorf("segment start: want 0, got %v", seg.Start)
	}
	if want := 720 * time.Millisecond; seg.End != want {
		t.Errorf("segment end: want %v, got %v", want, seg.End)
	}
	// 3 debounce + 17 speech + 4 post-roll frames; no pre-roll available.
	if want := 24 * frameSamples * 2; len(seg.PCM) != want {
		t.Errorf("segment PCM bytes: want %d, got %d", want, len(seg.PCM))
	}
}

// ─── TestDetector_ShortBlipDiscarded ──────────────────────────────────────────

// A 150 ms speech run passes the debounce and flips state, but falls short
// of MinSpeechDuration: the end event fires with no segment attached.
func TestDetector_ShortBlipDiscarded(t *testing.T) {
	t.Parallel()

	d := newDetector(t, vad.DefaultConfig())
	results := processAll(t, d, concat(
		repeat(silence(), 20),
		repeat(speechFrame(), 5), // 150 ms < 500 ms minimum
		repeat(silence(), 10),
	))

	if got := events(results, vad.EventSpeechStart); got != 1 {
		t.Fatalf("speech_start events: want 1, got %d", got)
	}
	if got := events(results, vad.EventSpeechEnd); got != 1 {
		t.Fatalf("speech_end events: want 1, got %d", got)
	}
	if segs := segments(results); len(segs) != 0 {
		t.Errorf("segments emitted: want 0, got %d", len(segs))
	}
	if got := d.State(); got != vad.StateSilent {
		t.Errorf("final state: want silent, got %v", got)
	}
}

// ─── TestDetector_MaxSilenceBackstop ──────────────────────────────────────────

// With the frame-count rule effectively disabled, trailing silence beyond
// MaxSilenceDuration still ends the run.
func TestDetector_MaxSilenceBackstop(t *testing.T) {
	t.Parallel()

	cfg := vad.DefaultConfig()
	cfg.SpeechEndFrames = 100
	cfg.MaxSilenceDuration = 300 * time.Millisecond

	d := newDetector(t, cfg)
	results := processAll(t, d, concat(
		repeat(silence(), 20),
		repeat(speechFrame(), 20),
		repeat(silence(), 15),
	))

	segs := segments(results)
	if len(segs) != 1 {
		t.Fatalf("segments emitted: want 1, got %d", len(segs))
	}
	// Silence exceeds 300 ms on the 11th trailing frame (330 ms): global
	// frame index 50.
	if results[50].Event != vad.EventSpeechEnd {
		t.Errorf("frame 50: event %v, want speech_end", results[50].Event)
	}
	// Post-roll still trims the kept silence to 120 ms.
	if want := 1320 * time.Millisecond; segs[0].End != want {
		t.Errorf("segment end: want %v, got %v", want, segs[0].End)
	}
}

// ─── TestDetector_AdaptiveThresholdScalesWithNoise ────────────────────────────

// Scaling the ambient noise floor by k scales the adaptive component
// (mean + 2σ) by exactly k, and reclassifies speech that no longer clears
// the raised floor.
func TestDetector_AdaptiveThresholdScalesWithNoise(t *testing.T) {
	t.Parallel()

	baseAmps := []int16{1000, 1200, 1400, 1600, 1800, 2000, 2200, 2400, 2600, 2800}

	threshold := func(scale int16) float64 {
		d := newDetector(t, vad.DefaultConfig())
		for _, amp := range baseAmps {
			if _, err := d.ProcessFrame(dcFrame(amp * scale)); err != nil {
				t.Fatalf("ProcessFrame: unexpected error: %v", err)
			}
		}
		res, err := d.ProcessFrame(silence())
		if err != nil {
			t.Fatalf("ProcessFrame(probe): unexpected error: %v", err)
		}
		return res.Threshold
	}

	thr1 := threshold(1)
	thr3 := threshold(3)

	if thr1 <= vad.DefaultConfig().EnergyThreshold {
		t.Fatalf("baseline threshold %g not above static floor", thr1)
	}
	if ratio := thr3 / thr1; math.Abs(ratio-3) > 1e-9 {
		t.Errorf("threshold ratio: want 3, got %g (thr1=%g thr3=%g)", ratio, thr1, thr3)
	}

	// The same speech frame that starts a run over quiet noise must stay
	// sub-threshold over 3× noise.
	speaks := func(scale int16) bool {
		d := newDetector(t, vad.DefaultConfig())
		for _, amp := range baseAmps {
			if _, err := d.ProcessFrame(dcFrame(amp * scale)); err != nil {
				t.Fatalf("ProcessFrame: unexpected error: %v", err)
			}
		}
		results := processAll(t, d, repeat(speechFrame(), 3))
		return events(results, vad.EventSpeechStart) == 1
	}

	if !speaks(1) {
		t.Error("speech over quiet noise: want speech_start, got none")
	}
	if speaks(3) {
		t.Error("speech under 3x noise: want no speech_start, got one")
	}
}

// ─── TestDetector_ResetIdempotent ─────────────────────────────────────────────

// Double reset mid-utterance behaves exactly like a fresh detector.
func TestDetector_ResetIdempotent(t *testing.T) {
	t.Parallel()

	utterance := concat(
		repeat(silence(), 20),
		repeat(speechFrame(), 20),
		repeat(silence(), 10),
	)

	fresh := newDetector(t, vad.DefaultConfig())
	want := segments(processAll(t, fresh, utterance))

	d := newDetector(t, vad.DefaultConfig())
	d.Reset() // reset from the initial state is a no-op
	processAll(t, d, concat(repeat(silence(), 7), repeat(speechFrame(), 9)))
	d.Reset()
	d.Reset()
	if got := d.State(); got != vad.StateSilent {
		t.Fatalf("state after reset: want silent, got %v", got)
	}

	got := segments(processAll(t, d, utterance))
	if len(got) != len(want) || len(want) != 1 {
		t.Fatalf("segments after reset: want %d, got %d", len(want), len(got))
	}
	if got[0].Start != want[0].Start || got[0].End != want[0].End || got[0].Speech != want[0].Speech {
		t.Errorf("segment after reset differs: want [%v..%v speech %v], got [%v..%v speech %v]",
			want[0].Start, want[0].End, want[0].Speech,
			got[0].Start, got[0].End, got[0].Speech)
	}
	if len(got[0].PCM) != len(want[0].PCM) {
		t.Errorf("segment PCM length after reset: want %d, got %d", len(want[0].PCM), len(got[0].PCM))
	}
}
