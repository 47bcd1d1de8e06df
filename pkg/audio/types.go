package audio

import "time"

// Frame represents a single frame of mono audio flowing through the pipeline.
// Frames are the atomic unit of processing — captured from input sources,
// cleaned by noise cancellation, and classified by VAD. Samples are normalized
// to [-1, 1].
type Frame struct {
	// Samples holds mono floating-point samples in [-1, 1].
	Samples []float64

	// SampleRate in Hz (e.g., 44100 for device capture, 16000 for files).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the play time covered by the frame's samples. A frame with
// an invalid sample rate has zero duration.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(f.Samples)) / float64(f.SampleRate) * float64(time.Second))
}

// Clone returns a deep copy of the frame. Components must not retain a frame
// beyond a single call unless they copy it first; profile snapshots and
// calibration samples go through Clone.
func (f Frame) Clone() Frame {
	samples := make([]float64, len(f.Samples))
	copy(samples, f.Samples)
	return Frame{Samples: samples, SampleRate: f.SampleRate, Timestamp: f.Timestamp}
}
