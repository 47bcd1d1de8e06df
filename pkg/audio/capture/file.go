package capture

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"

	"github.com/kothalabs/kotha/pkg/audio"
)

// Compile-time assertion that File satisfies the Source interface.
var _ Source = (*File)(nil)

// File replays a WAV file as a frame source. Stereo files are downmixed to
// mono. Delivery runs as fast as the callback consumes frames unless
// Realtime is set, in which case frames are paced at their play duration.
type File struct {
	path      string
	frameSize int

	// Realtime paces delivery at the file's play speed instead of
	// delivering frames back to back.
	Realtime bool

	mu         sync.Mutex
	sampleRate int
	done       chan struct{}
}

// NewFile creates a WAV file source producing frames of frameSize samples.
// The file is decoded on Start.
func NewFile(path string, frameSize int) *File {
	return &File{path: path, frameSize: frameSize}
}

// Start implements [Source]. The whole file is decoded up front; decode
// failures are reported synchronously. Delivery ends when the samples run
// out, the context is cancelled, or Stop is called.
func (f *File) Start(ctx context.Context, fn FrameFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.done != nil {
		return fmt.Errorf("capture: file source already started")
	}

	samples, rate, err := decodeWAV(f.path)
	if err != nil {
		return err
	}
	f.sampleRate = rate
	f.done = make(chan struct{})
	go f.loop(ctx, samples, fn, f.done)
	return nil
}

func (f *File) loop(ctx context.Context, samples []float64, fn FrameFunc, done chan struct{}) {
	frameDur := time.Duration(float64(f.frameSize) / float64(f.sampleRate) * float64(time.Second))
	var elapsed time.Duration

	for off := 0; off+f.frameSize <= len(samples); off += f.frameSize {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		default:
		}

		fn(audio.Frame{
			Samples:    samples[off : off+f.frameSize],
			SampleRate: f.sampleRate,
			Timestamp:  elapsed,
		})
		elapsed += frameDur

		if f.Realtime {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-time.After(frameDur):
			}
		}
	}
}

// Stop implements [Source].
func (f *File) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done == nil {
		return nil
	}
	close(f.done)
	f.done = nil
	return nil
}

// SampleRate implements [Source]. It reports 0 before Start.
func (f *File) SampleRate() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sampleRate
}

// decodeWAV reads the whole file into normalized mono float64 samples.
func decodeWAV(path string) (samples []float64, sampleRate int, err error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("capture: open wav: %w", err)
	}
	defer fh.Close()

	dec := wav.NewDecoder(fh)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("capture: %s is not a valid wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("capture: decode wav: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, 0, fmt.Errorf("capture: %s contains no samples", path)
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))

	out := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = float64(v) / scale
	}

	channels := 1
	rate := 44100
	if buf.Format != nil {
		if buf.Format.NumChannels > 0 {
			channels = buf.Format.NumChannels
		}
		if buf.Format.SampleRate > 0 {
			rate = buf.Format.SampleRate
		}
	}
	if channels == 2 {
		out = audio.StereoToMono(out)
	} else if channels > 2 {
		mono := make([]float64, len(out)/channels)
		for i := range mono {
			var sum float64
			for c := range channels {
				sum += out[i*channels+c]
			}
			mono[i] = sum / float64(channels)
		}
		out = mono
	}
	return out, rate, nil
}
