// Package capture provides the audio frame sources that feed the voice
// pipeline. A [Source] delivers fixed-size mono frames to a caller-supplied
// callback, one frame at a time: processing of one frame is expected to
// finish before the next callback fires, so the source doubles as the
// pipeline's frame-path scheduler.
//
// Three implementations are provided:
//
//   - [Device] — microphone capture via PortAudio.
//   - [File] — WAV file playback for offline runs and fixtures.
//   - [Tone] — a synthetic signal generator for tests and demo mode.
package capture

import (
	"context"
	"errors"

	"github.com/kothalabs/kotha/pkg/audio"
)

// ErrDeviceUnavailable is returned by [Source.Start] when the underlying
// capture device cannot be opened (missing hardware, permission denied).
var ErrDeviceUnavailable = errors.New("capture device unavailable")

// FrameFunc receives one captured frame. The frame's sample slice is only
// valid for the duration of the call; callbacks that retain it must copy
// via [audio.Frame.Clone].
type FrameFunc func(audio.Frame)

// Source delivers a stream of fixed-size mono frames.
//
// Start opens the source and begins invoking fn once per frame until the
// context is cancelled, Stop is called, or the source is exhausted. Start
// returns immediately after the source is opened; open failures (wrapping
// [ErrDeviceUnavailable] where a device is involved) are reported
// synchronously. Frames are delivered from a single goroutine, so fn never
// runs concurrently with itself.
//
// Stop ends delivery and releases capture resources. It is idempotent and
// safe to call concurrently with frame delivery.
type Source interface {
	Start(ctx context.Context, fn FrameFunc) error
	Stop() error

	// SampleRate reports the rate of delivered frames in Hz.
	SampleRate() int
}
