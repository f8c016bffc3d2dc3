package enhance

import (
	"errors"
	"fmt"

	"github.com/gogpu/enhance/internal/gpu"
)

// Fatal session errors. A session that hits one of these terminates and
// raises an advisory; other sessions are unaffected.
var (
	// ErrCompileFailed means both the enhancement program and the
	// passthrough fallback failed to build.
	ErrCompileFailed = errors.New("enhance: shader compilation failed")

	// ErrContextLost means the GPU device or its surface was lost.
	ErrContextLost = errors.New("enhance: GPU context lost")

	// ErrCrossOriginBlocked is returned by Source.ReadFrame when the frame
	// exists but may not be read.
	ErrCrossOriginBlocked = errors.New("enhance: source frame is not readable")

	// ErrSourceClosed is returned by Source.ReadFrame when the source is
	// permanently gone.
	ErrSourceClosed = errors.New("enhance: source closed")

	// ErrSourceTooLarge means a source side exceeds the device's maximum
	// texture dimension, so its frames cannot be uploaded. Acquire refuses
	// such sources; a session whose source grows past the limit stops.
	ErrSourceTooLarge = errors.New("enhance: source exceeds device texture limit")
)

// Registry errors. None of these mutate the registry.
var (
	// ErrQuotaExceeded is returned by Acquire when the registry already
	// holds MaxInstances sessions.
	ErrQuotaExceeded = errors.New("enhance: session quota exceeded")

	// ErrAlreadyActive is returned by Acquire when the source already has a
	// session. The existing session is returned with it.
	ErrAlreadyActive = errors.New("enhance: source already has a session")

	// ErrSourceTooSmall is returned by Acquire for sources under the
	// minimum eligible size.
	ErrSourceTooSmall = errors.New("enhance: source too small")

	// ErrNoDevice is returned when no device opener is configured or the
	// opener fails.
	ErrNoDevice = errors.New("enhance: no GPU device")
)

// ErrTerminated is returned by operations on a terminated session.
var ErrTerminated = errors.New("enhance: session terminated")

// isFatal reports whether err must terminate the session.
func isFatal(err error) bool {
	return errors.Is(err, ErrContextLost) ||
		errors.Is(err, ErrCrossOriginBlocked) ||
		errors.Is(err, ErrSourceClosed) ||
		errors.Is(err, ErrSourceTooLarge) ||
		errors.Is(err, ErrCompileFailed)
}

// mapGPUError lifts internal gpu errors onto the public sentinels while
// keeping the original chain.
func mapGPUError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gpu.ErrDeviceLost), errors.Is(err, gpu.ErrReleased):
		return fmt.Errorf("%w: %w", ErrContextLost, err)
	case errors.Is(err, gpu.ErrCompileFailed):
		return fmt.Errorf("%w: %w", ErrCompileFailed, err)
	default:
		return err
	}
}
