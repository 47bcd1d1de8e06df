package capture

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/kothalabs/kotha/pkg/audio"
)

// Compile-time assertion that Tone satisfies the Source interface.
var _ Source = (*Tone)(nil)

// Tone generates a synthetic sine signal, optionally interleaving periods
// of silence so that VAD transitions can be exercised without a
// microphone. It backs the daemon's demo mode and the package tests.
type Tone struct {
	sampleRate int
	frameSize  int

	// Frequency of the sine in Hz. Default 220.
	Frequency float64

	// Amplitude of the sine. Default 0.2.
	Amplitude float64

	// SpeechDur and SilenceDur alternate signal and silence. When
	// SilenceDur is zero the tone is continuous.
	SpeechDur  time.Duration
	SilenceDur time.Duration

	// Frames caps the number of delivered frames; 0 means unlimited.
	Frames int

	// Realtime paces delivery at play speed.
	Realtime bool

	mu   sync.Mutex
	done chan struct{}
}

// NewTone creates a synthetic source producing frames of frameSize samples
// at sampleRate Hz.
func NewTone(sampleRate, frameSize int) *Tone {
	return &Tone{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		Frequency:  220,
		Amplitude:  0.2,
	}
}

// Start implements [Source].
func (t *Tone) Start(ctx context.Context, fn FrameFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done != nil {
		return fmt.Errorf("capture: tone source already started")
	}
	t.done = make(chan struct{})
	go t.loop(ctx, fn, t.done)
	return nil
}

func (t *Tone) loop(ctx context.Context, fn FrameFunc, done chan struct{}) {
	frameDur := time.Duration(float64(t.frameSize) / float64(t.sampleRate) * float64(time.Second))
	cycle := t.SpeechDur + t.SilenceDur
	var elapsed time.Duration

	for n := 0; t.Frames == 0 || n < t.Frames; n++ {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		default:
		}

		silent := cycle > 0 && elapsed%cycle >= t.SpeechDur
		samples := make([]float64, t.frameSize)
		if !silent {
			for i := range samples {
				pos := elapsed.Seconds() + float64(i)/float64(t.sampleRate)
				samples[i] = t.Amplitude * math.Sin(2*math.Pi*t.Frequency*pos)
			}
		}
		fn(audio.Frame{Samples: samples, SampleRate: t.sampleRate, Timestamp: elapsed})
		elapsed += frameDur

		if t.Realtime {
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
func (t *Tone) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done == nil {
		return nil
	}
	close(t.done)
	t.done = nil
	return nil
}

// SampleRate implements [Source].
func (t *Tone) SampleRate() int { return t.sampleRate }
