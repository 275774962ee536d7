package audio

import "math"

// BytesToSamples reinterprets little-endian PCM16 bytes as int16 samples.
// A trailing odd byte is ignored.
func BytesToSamples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return out
}

// SamplesToBytes encodes int16 samples as little-endian PCM16 bytes.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// RMS returns the root-mean-square energy of PCM16 data, normalized to [0,1]
// by the int16 full-scale value. Empty input returns 0.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		sum += s * s
	}
	return math.Sqrt(sum/float64(n)) / 32768.0
}

// ZeroCrossingRate returns the fraction of adjacent PCM16 sample pairs whose
// signs differ, in [0,1]. Voiced speech typically lands between 0.05 and 0.3;
// hiss and fricatives higher, silence and hum lower.
func ZeroCrossingRate(pcm []byte) float64 {
	n := len(pcm) / 2
	if n < 2 {
		return 0
	}
	var crossings int
	prev := int16(pcm[0]) | int16(pcm[1])<<8
	for i := 1; i < n; i++ {
		cur := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		if (prev >= 0) != (cur >= 0) {
			crossings++
		}
		prev = cur
	}
	return float64(crossings) / float64(n-1)
}
