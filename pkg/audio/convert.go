package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// FormatConverter normalizes PCM16 frames to a target format: resample first,
// then channel mix. A frame already in the target layout passes through
// without allocation.
//
// Mismatch and corruption warnings fire once per converter so a misconfigured
// client cannot flood the log. Create one per stream; a converter is not safe
// for shared use across goroutines.
type FormatConverter struct {
	Target Format

	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert returns frame normalized to the target format. A frame whose data
// is not whole int16 samples is dropped (returned with nil Data) — resampling
// misaligned bytes would inject a phase glitch into every later frame.
func (c *FormatConverter) Convert(frame Frame) Frame {
	if len(frame.Data)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("dropping misaligned PCM16 frame",
				"bytes", len(frame.Data),
				"sample_rate", frame.SampleRate,
				"channels", frame.Channels,
			)
		})
		return Frame{SampleRate: c.Target.SampleRate, Channels: c.Target.Channels, Timestamp: frame.Timestamp}
	}

	src := Format{SampleRate: frame.SampleRate, Channels: frame.Channels}
	if src == c.Target {
		return frame
	}
	c.warnedMismatch.Do(func() {
		slog.Warn("normalizing audio format",
			"from", describeFormat(src),
			"to", describeFormat(c.Target),
		)
	})

	pcm := frame.Data
	if src.SampleRate != c.Target.SampleRate {
		pcm = resampleLinear16(pcm, src.SampleRate, c.Target.SampleRate, src.Channels)
	}
	switch {
	case src.Channels == 1 && c.Target.Channels == 2:
		pcm = MonoToStereo(pcm)
	case src.Channels == 2 && c.Target.Channels == 1:
		pcm = StereoToMono(pcm)
	}

	return Frame{
		Data:       pcm,
		SampleRate: c.Target.SampleRate,
		Channels:   c.Target.Channels,
		Timestamp:  frame.Timestamp,
	}
}

// ConvertStream normalizes a frame channel to the target format. The returned
// channel closes when in closes; dropped (misaligned) frames are skipped.
func ConvertStream(in <-chan Frame, target Format) <-chan Frame {
	out := make(chan Frame, cap(in))
	go func() {
		defer close(out)
		conv := FormatConverter{Target: target}
		for frame := range in {
			converted := conv.Convert(frame)
			if len(converted.Data) == 0 {
				continue
			}
			out <- converted
		}
	}()
	return out
}

// MonoToStereo duplicates each mono sample into an interleaved L+R pair.
func MonoToStereo(pcm []byte) []byte {
	samples := BytesToSamples(pcm)
	out := make([]int16, 0, len(samples)*2)
	for _, s := range samples {
		out = append(out, s, s)
	}
	return SamplesToBytes(out)
}

// StereoToMono averages each interleaved L+R pair into one mono sample.
func StereoToMono(pcm []byte) []byte {
	samples := BytesToSamples(pcm)
	pairs := len(samples) / 2
	out := make([]int16, pairs)
	for i := range out {
		// Averaging two int16 values cannot overflow int32.
		out[i] = int16((int32(samples[i*2]) + int32(samples[i*2+1])) / 2)
	}
	return SamplesToBytes(out)
}

// ResampleMono16 resamples mono PCM16 between rates by linear interpolation.
// Equal rates return the input unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	return resampleLinear16(pcm, srcRate, dstRate, 1)
}

// ResampleStereo16 resamples interleaved stereo PCM16 between rates by linear
// interpolation. Equal rates return the input unchanged.
func ResampleStereo16(pcm []byte, srcRate, dstRate int) []byte {
	return resampleLinear16(pcm, srcRate, dstRate, 2)
}

// resampleLinear16 is the shared linear-interpolation core. A sample group is
// one point in time across all channels; each channel interpolates between
// the same pair of neighbouring groups.
func resampleLinear16(pcm []byte, srcRate, dstRate, channels int) []byte {
	if srcRate <= 0 || dstRate <= 0 || channels <= 0 || srcRate == dstRate {
		return pcm
	}
	samples := BytesToSamples(pcm)
	srcGroups := len(samples) / channels
	if srcGroups < 1 {
		return pcm
	}
	dstGroups := int(int64(srcGroups) * int64(dstRate) / int64(srcRate))
	if dstGroups == 0 {
		return nil
	}

	out := make([]int16, dstGroups*channels)
	step := float64(srcRate) / float64(dstRate)
	for g := range dstGroups {
		pos := float64(g) * step
		idx := int(pos)
		frac := pos - float64(idx)
		next := idx + 1
		if next >= srcGroups {
			next = idx
		}
		for ch := range channels {
			s0 := float64(samples[idx*channels+ch])
			s1 := float64(samples[next*channels+ch])
			out[g*channels+ch] = int16(s0 + (s1-s0)*frac)
		}
	}
	return SamplesToBytes(out)
}

// describeFormat renders a format for log lines, e.g. "48000Hz stereo".
func describeFormat(f Format) string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	}
}
