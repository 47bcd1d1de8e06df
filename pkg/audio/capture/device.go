package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/kothalabs/kotha/pkg/audio"
)

// Compile-time assertion that Device satisfies the Source interface.
var _ Source = (*Device)(nil)

// Device captures mono frames from the default input device via PortAudio.
// A Device can be restarted after Stop; it must not be started twice
// without an intervening Stop.
type Device struct {
	sampleRate int
	frameSize  int

	mu     sync.Mutex
	stream *portaudio.Stream
	done   chan struct{}
}

// NewDevice creates a microphone source producing frames of frameSize
// samples at sampleRate Hz. The device itself is not opened until Start.
func NewDevice(sampleRate, frameSize int) *Device {
	return &Device{sampleRate: sampleRate, frameSize: frameSize}
}

// Start implements [Source]. It initializes PortAudio, opens the default
// input stream, and spawns the delivery loop. Open failures wrap
// [ErrDeviceUnavailable].
func (d *Device) Start(ctx context.Context, fn FrameFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream != nil {
		return fmt.Errorf("capture: device already started")
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("capture: %w: %v", ErrDeviceUnavailable, err)
	}

	buf := make([]float32, d.frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(d.sampleRate), len(buf), buf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("capture: %w: %v", ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("capture: %w: %v", ErrDeviceUnavailable, err)
	}

	d.stream = stream
	d.done = make(chan struct{})
	go d.loop(ctx, stream.Read, buf, fn, d.done)
	return nil
}

// maxReadFailures bounds consecutive stream read errors before the loop
// gives up; an unplugged device would otherwise busy-spin and flood the
// log.
const maxReadFailures = 10

// loop reads buffers until the read function fails persistently, the
// context is cancelled, or done is closed by Stop. An isolated read error
// skips that frame after waiting out one frame interval; maxReadFailures
// errors in a row end delivery.
func (d *Device) loop(ctx context.Context, read func() error, buf []float32, fn FrameFunc, done chan struct{}) {
	samples := make([]float64, len(buf))
	var elapsed time.Duration
	frameDur := time.Duration(float64(len(buf)) / float64(d.sampleRate) * float64(time.Second))

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		default:
		}

		if err := read(); err != nil {
			failures++
			if failures >= maxReadFailures {
				slog.Error("capture: device read failing persistently, stopping delivery",
					"err", err, "failures", failures)
				return
			}
			slog.Warn("capture: device read failed, skipping frame", "err", err)
			time.Sleep(frameDur)
			continue
		}
		failures = 0
		for i, s := range buf {
			samples[i] = float64(s)
		}
		fn(audio.Frame{Samples: samples, SampleRate: d.sampleRate, Timestamp: elapsed})
		elapsed += frameDur
	}
}

// Stop implements [Source]. It closes the stream and terminates PortAudio.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream == nil {
		return nil
	}
	close(d.done)
	err := d.stream.Stop()
	if cerr := d.stream.Close(); err == nil {
		err = cerr
	}
	portaudio.Terminate()
	d.stream = nil
	d.done = nil
	if err != nil {
		return fmt.Errorf("capture: close device: %w", err)
	}
	return nil
}

// SampleRate implements [Source].
func (d *Device) SampleRate() int { return d.sampleRate }
