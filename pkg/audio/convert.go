package audio

import (
	"log/slog"
	"sync"
)

// pcm16Scale converts between int16 PCM and normalized float samples.
const pcm16Scale = 32768.0

// DecodePCM16 converts little-endian int16 PCM bytes into normalized float64
// samples. A trailing odd byte is ignored.
func DecodePCM16(pcm []byte) []float64 {
	n := len(pcm) / 2
	out := make([]float64, n)
	for i := range n {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float64(s) / pcm16Scale
	}
	return out
}

// EncodePCM16 converts normalized float64 samples into little-endian int16
// PCM bytes, clamping values outside [-1, 1].
func EncodePCM16(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		scaled := v * pcm16Scale
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		s := int16(scaled)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// StereoToMono averages interleaved L+R sample pairs into mono output.
// A trailing unpaired sample is dropped.
func StereoToMono(samples []float64) []float64 {
	frames := len(samples) / 2
	out := make([]float64, frames)
	for i := range frames {
		out[i] = (samples[i*2] + samples[i*2+1]) / 2
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. If the rates match or either is invalid, the input is
// returned unchanged.
func Resample(samples []float64, srcRate, dstRate int) []float64 {
	if srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	if srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float64, dstLen)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstLen {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// Normalizer coerces incoming frames to a target sample rate. It logs a
// warning on the first rate mismatch only. Create one per stream; not
// designed for shared use across goroutines.
type Normalizer struct {
	TargetRate     int
	warnedMismatch sync.Once
	warnedEmpty    sync.Once
}

// Normalize returns the frame resampled to the target rate. If the source
// rate already matches, the frame is returned unchanged (zero allocation).
// Frames without samples are passed through after a one-time warning.
func (n *Normalizer) Normalize(frame Frame) Frame {
	if len(frame.Samples) == 0 {
		n.warnedEmpty.Do(func() {
			slog.Warn("audio normalizer: empty frame",
				"sampleRate", frame.SampleRate,
			)
		})
		return frame
	}

	if frame.SampleRate == n.TargetRate || n.TargetRate <= 0 {
		return frame
	}

	n.warnedMismatch.Do(func() {
		slog.Warn("audio sample rate mismatch: resampling",
			"from", frame.SampleRate,
			"to", n.TargetRate,
		)
	})

	return Frame{
		Samples:    Resample(frame.Samples, frame.SampleRate, n.TargetRate),
		SampleRate: n.TargetRate,
		Timestamp:  frame.Timestamp,
	}
}
