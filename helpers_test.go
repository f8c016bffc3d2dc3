package enhance

import (
	"errors"
	"image"
	"image/color"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// noopAdapter enumerates the noop backend's only adapter.
func noopAdapter(t *testing.T) hal.ExposedAdapter {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	t.Cleanup(instance.Destroy)
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		t.Fatal("noop backend has no adapters")
	}
	return adapters[0]
}

// createNoopDevice opens a device on the noop backend.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue) {
	t.Helper()
	a := noopAdapter(t)
	od, err := a.Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(od.Device.Destroy)
	return od.Device, od.Queue
}

// faultyDevice wraps a device, injects failures, and counts releases.
type faultyDevice struct {
	hal.Device

	// failModule fails CreateShaderModule for labels containing it.
	failModule string
	// lost fails CreateCommandEncoder with ErrDeviceLost once set.
	lost atomic.Bool

	modules   atomic.Int32
	destroyed atomic.Int32
}

func (d *faultyDevice) CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error) {
	if d.failModule != "" && strings.Contains(desc.Label, d.failModule) {
		return nil, errors.New("shader: syntax error")
	}
	d.modules.Add(1)
	return d.Device.CreateShaderModule(desc)
}

func (d *faultyDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	if d.lost.Load() {
		return nil, hal.ErrDeviceLost
	}
	return d.Device.CreateCommandEncoder(desc)
}

func (d *faultyDevice) DestroyTexture(t hal.Texture) {
	d.destroyed.Add(1)
	d.Device.DestroyTexture(t)
}

func (d *faultyDevice) DestroyBuffer(b hal.Buffer) {
	d.destroyed.Add(1)
	d.Device.DestroyBuffer(b)
}

// newFaultyRegistry returns a cooperative registry on a faultyDevice.
func newFaultyRegistry(t *testing.T, failModule string) (*Registry, *recorder, *faultyDevice) {
	t.Helper()
	dev, q := createNoopDevice(t)
	fd := &faultyDevice{Device: dev, failModule: failModule}
	rec := &recorder{}
	reg := NewRegistry(testCaps(),
		WithOpener(SharedDevice(fd, q)),
		WithMode(ModeCooperative),
		WithAdvisorySink(rec.sink),
	)
	t.Cleanup(reg.ReleaseAll)
	return reg, rec, fd
}

// testCaps is a basic device without offscreen submission.
func testCaps() Capabilities {
	return Capabilities{MaxSurfaceDimension: 8192}
}

// recorder collects advisories.
type recorder struct {
	mu   sync.Mutex
	advs []Advisory
}

func (r *recorder) sink(a Advisory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advs = append(r.advs, a)
}

func (r *recorder) kinds() []AdvisoryKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AdvisoryKind, len(r.advs))
	for i, a := range r.advs {
		out[i] = a.Kind
	}
	return out
}

func (r *recorder) count(kind AdvisoryKind) int {
	n := 0
	for _, k := range r.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

// newTestRegistry returns a cooperative registry sharing one noop device.
func newTestRegistry(t *testing.T, caps Capabilities, opts ...Option) (*Registry, *recorder) {
	t.Helper()
	dev, q := createNoopDevice(t)
	rec := &recorder{}
	base := []Option{
		WithOpener(SharedDevice(dev, q)),
		WithMode(ModeCooperative),
		WithAdvisorySink(rec.sink),
	}
	reg := NewRegistry(caps, append(base, opts...)...)
	t.Cleanup(reg.ReleaseAll)
	return reg, rec
}

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func newSource(w, h int) *ImageSource {
	return NewImageSource(solidImage(64, 36, color.RGBA{R: 200, G: 80, B: 40, A: 255}), w, h)
}

// frames runs n frames spaced step apart, starting at start. It returns
// the time of the next frame.
func frames(t *testing.T, s *Session, start time.Time, step time.Duration, n int) time.Time {
	t.Helper()
	now := start
	for i := range n {
		if err := s.Frame(now); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		now = now.Add(step)
	}
	return now
}
