package gpu

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/gogpu/wgpu/hal"
)

const (
	testVertex      = "@vertex fn vs_main() {}"
	testFragment    = "@fragment fn fs_main() {}"
	testPassthrough = "@fragment fn fs_main() { passthrough }"
)

func newTestRenderer(t *testing.T, dev hal.Device, q hal.Queue, limits Limits) *FrameRenderer {
	t.Helper()
	r := NewFrameRenderer(NewManager(dev, q, limits), testVertex)
	if err := r.Init(testFragment, testPassthrough); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return r
}

func TestFrameRendererLifecycle(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	r := newTestRenderer(t, device, queue, Limits{})
	if r.UsingFallback() {
		t.Error("UsingFallback = true for a valid program")
	}
	if w, h := r.OutputSize(); w != 0 || h != 0 {
		t.Errorf("OutputSize before Resize = %dx%d", w, h)
	}
	if r.Output() != nil {
		t.Error("Output before Resize is non-nil")
	}

	w, h, err := r.Resize(640, 360, 1280, 720)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if w != 1280 || h != 720 {
		t.Errorf("Resize = %dx%d, want 1280x720", w, h)
	}
	if r.Output() == nil {
		t.Error("Output after Resize is nil")
	}

	frame := make([]byte, 640*360*4)
	for i := 0; i < 3; i++ {
		if err := r.Draw(frame, Params{SrcWidth: 640, SrcHeight: 360, Sharpen: 0.5}); err != nil {
			t.Fatalf("Draw %d: %v", i, err)
		}
	}
	if r.Frames() != 3 {
		t.Errorf("Frames = %d, want 3", r.Frames())
	}

	if err := r.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := r.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if r.Manager().Live() != 0 {
		t.Errorf("Live after Release = %d", r.Manager().Live())
	}
	if err := r.Draw(frame, Params{}); !errors.Is(err, ErrReleased) {
		t.Errorf("Draw after Release = %v, want ErrReleased", err)
	}
}

func TestFrameRendererDrawBeforeResize(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	r := newTestRenderer(t, device, queue, Limits{})
	defer func() { _ = r.Release() }()

	if err := r.Draw(nil, Params{}); !errors.Is(err, ErrNotReady) {
		t.Errorf("Draw = %v, want ErrNotReady", err)
	}
}

func TestFrameRendererFrameSizeMismatch(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	r := newTestRenderer(t, device, queue, Limits{})
	defer func() { _ = r.Release() }()

	if _, _, err := r.Resize(200, 100, 400, 200); err != nil {
		t.Fatal(err)
	}
	err := r.Draw(make([]byte, 10), Params{})
	if !errors.Is(err, ErrFrameSize) {
		t.Errorf("Draw = %v, want ErrFrameSize", err)
	}
	if r.Frames() != 0 {
		t.Errorf("Frames = %d, want 0", r.Frames())
	}
}

func TestFrameRendererResizeTracksSource(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	r := newTestRenderer(t, device, queue, Limits{})
	defer func() { _ = r.Release() }()

	if _, _, err := r.Resize(640, 360, 1280, 720); err != nil {
		t.Fatal(err)
	}
	live := r.Manager().Live()

	w, h, err := r.Resize(1280, 720, 2560, 1440)
	if err != nil {
		t.Fatal(err)
	}
	if w != 2560 || h != 1440 {
		t.Errorf("Resize = %dx%d, want 2560x1440", w, h)
	}
	if got := r.Manager().Live(); got != live {
		t.Errorf("Live after resize = %d, want %d (old objects leaked)", got, live)
	}

	buf := r.Program().EncodeParams(Params{SrcWidth: 1280, SrcHeight: 720})
	if got := decodeF32(buf[0:]); got != 1280 {
		t.Errorf("tex width = %v, want 1280", got)
	}
	if err := r.Draw(make([]byte, 1280*720*4), Params{SrcWidth: 1280, SrcHeight: 720}); err != nil {
		t.Errorf("Draw after resize: %v", err)
	}
}

func TestFrameRendererClampsToDeviceLimit(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	r := newTestRenderer(t, device, queue, Limits{MaxSurfaceDimension: 4096})
	defer func() { _ = r.Release() }()

	w, h, err := r.Resize(1920, 1080, 7680, 4320)
	if err != nil {
		t.Fatal(err)
	}
	if w != 4096 || h != 2304 {
		t.Errorf("Resize = %dx%d, want 4096x2304", w, h)
	}
	if ow, oh := r.OutputSize(); ow != w || oh != h {
		t.Errorf("OutputSize = %dx%d", ow, oh)
	}
}

func TestFrameRendererPassthroughFallback(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	fd := &faultyDevice{Device: device, failModule: "enhance_fs"}

	r := newTestRenderer(t, fd, queue, Limits{})
	defer func() { _ = r.Release() }()

	if !r.UsingFallback() {
		t.Error("UsingFallback = false after fragment failure")
	}
	if r.Program().Label != "passthrough" {
		t.Errorf("program = %q, want passthrough", r.Program().Label)
	}
	if _, _, err := r.Resize(320, 240, 640, 480); err != nil {
		t.Fatal(err)
	}
	if err := r.Draw(make([]byte, 320*240*4), Params{}); err != nil {
		t.Errorf("Draw with fallback: %v", err)
	}
}

func TestFrameRendererFallbackFails(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	fd := &faultyDevice{Device: device, failModule: "_fs"}

	r := NewFrameRenderer(NewManager(fd, queue, Limits{}), testVertex)
	err := r.Init(testFragment, testPassthrough)
	if !errors.Is(err, ErrCompileFailed) {
		t.Fatalf("Init = %v, want ErrCompileFailed", err)
	}
	var ce *CompileError
	if !errors.As(err, &ce) || ce.Stage != "fragment" {
		t.Errorf("CompileError stage = %+v", ce)
	}
	if err := r.Release(); err != nil {
		t.Fatal(err)
	}
	if r.Manager().Live() != 0 {
		t.Errorf("Live = %d, want 0", r.Manager().Live())
	}
}

func TestFrameRendererSwapProgram(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	r := newTestRenderer(t, device, queue, Limits{})
	defer func() { _ = r.Release() }()
	if _, _, err := r.Resize(200, 200, 400, 400); err != nil {
		t.Fatal(err)
	}
	live := r.Manager().Live()
	first := r.Program()

	if err := r.SwapProgram(testFragment+" ", testPassthrough); err != nil {
		t.Fatal(err)
	}
	if r.Program() == first {
		t.Error("program not replaced")
	}
	if got := r.Manager().Live(); got != live {
		t.Errorf("Live after swap = %d, want %d", got, live)
	}
	if err := r.Draw(make([]byte, 200*200*4), Params{}); err != nil {
		t.Errorf("Draw after swap: %v", err)
	}
}

func TestFrameRendererDeviceLost(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	fd := &faultyDevice{Device: device}

	r := newTestRenderer(t, fd, queue, Limits{})
	defer func() { _ = r.Release() }()
	if _, _, err := r.Resize(200, 200, 400, 400); err != nil {
		t.Fatal(err)
	}
	fd.lostOnEncoder = true
	err := r.Draw(make([]byte, 200*200*4), Params{})
	if !errors.Is(err, ErrDeviceLost) {
		t.Errorf("Draw = %v, want ErrDeviceLost", err)
	}
}

func TestEncodeParamsLayout(t *testing.T) {
	p := &Program{slots: defaultSlots()}
	buf := p.EncodeParams(Params{SrcWidth: 640, SrcHeight: 360, Sharpen: 0.25, Vibrance: -0.5, Dither: true})
	if len(buf) != UniformSize {
		t.Fatalf("len = %d, want %d", len(buf), UniformSize)
	}
	want := []float32{640, 360, 0.25, -0.5, 1}
	for i, w := range want {
		if got := decodeF32(buf[i*4:]); got != w {
			t.Errorf("word %d = %v, want %v", i, got, w)
		}
	}
}

func decodeF32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
