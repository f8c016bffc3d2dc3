package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/wgpu/hal"
)

// Resource errors.
var (
	// ErrCompileFailed is returned when a shader module or render pipeline
	// cannot be created.
	ErrCompileFailed = errors.New("gpu: shader compilation failed")

	// ErrDeviceLost is returned when the device or its surface is lost.
	ErrDeviceLost = errors.New("gpu: device lost")

	// ErrReleased is returned by operations on a released manager.
	ErrReleased = errors.New("gpu: manager released")

	// ErrNotReady is returned by Draw before the first Resize.
	ErrNotReady = errors.New("gpu: renderer not sized")

	// ErrFrameSize is returned when the uploaded frame does not match the
	// source texture.
	ErrFrameSize = errors.New("gpu: frame size mismatch")
)

// CompileError reports which stage failed to build. It matches
// ErrCompileFailed and the underlying cause with errors.Is.
type CompileError struct {
	// Stage is "vertex", "fragment", or "pipeline".
	Stage string
	Err   error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("gpu: %s stage failed: %v", e.Stage, e.Err)
}

func (e *CompileError) Unwrap() []error { return []error{ErrCompileFailed, e.Err} }

// deviceErr tags hal errors that mean the device is gone.
func deviceErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, hal.ErrDeviceLost) ||
		errors.Is(err, hal.ErrSurfaceLost) ||
		errors.Is(err, hal.ErrDeviceOutOfMemory) {
		return fmt.Errorf("%s: %w: %w", op, ErrDeviceLost, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
