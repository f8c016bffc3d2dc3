package gpu

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Limits are the device capabilities the manager needs.
type Limits struct {
	// MaxSurfaceDimension bounds both sides of every surface and source
	// texture. Zero means gputypes.DefaultLimits().MaxTextureDimension2D.
	MaxSurfaceDimension int

	// Anisotropy enables anisotropic sampling on source textures.
	Anisotropy bool

	// SurfaceFormat is the output surface format. Zero means RGBA8Unorm.
	SurfaceFormat gputypes.TextureFormat
}

// maxAnisotropy is applied when the device reports anisotropic filtering.
const maxAnisotropy = 16

// ShaderCompiler turns WGSL into SPIR-V words. When set on a manager,
// shader modules are created from SPIR-V instead of WGSL text.
type ShaderCompiler func(wgsl string) ([]uint32, error)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithOwnedDevice makes ReleaseAll destroy the device after releasing
// every handle. Use it when the device was opened for this manager alone.
func WithOwnedDevice() ManagerOption {
	return func(m *Manager) { m.owned = true }
}

// WithCompiler sets the shader compiler.
func WithCompiler(c ShaderCompiler) ManagerOption {
	return func(m *Manager) { m.compiler = c }
}

// handle is one tracked GPU object.
type handle struct {
	label   string
	destroy func()
}

// submission is a command buffer waiting for the GPU to finish with it.
type submission struct {
	index   uint64
	encoder hal.CommandEncoder
	cmd     hal.CommandBuffer
}

// Manager tracks GPU handles for one session.
type Manager struct {
	device   hal.Device
	queue    hal.Queue
	limits   Limits
	owned    bool
	compiler ShaderCompiler

	mu       sync.Mutex
	handles  map[uint64]handle
	next     uint64
	pending  []submission
	released bool
}

// NewManager returns a manager over device and queue.
func NewManager(device hal.Device, queue hal.Queue, limits Limits, opts ...ManagerOption) *Manager {
	if limits.MaxSurfaceDimension <= 0 {
		limits.MaxSurfaceDimension = int(gputypes.DefaultLimits().MaxTextureDimension2D)
	}
	if limits.SurfaceFormat == gputypes.TextureFormatUndefined {
		limits.SurfaceFormat = gputypes.TextureFormatRGBA8Unorm
	}
	m := &Manager{
		device:  device,
		queue:   queue,
		limits:  limits,
		handles: make(map[uint64]handle),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Device returns the underlying device.
func (m *Manager) Device() hal.Device { return m.device }

// Queue returns the underlying queue.
func (m *Manager) Queue() hal.Queue { return m.queue }

// Limits returns the manager's device limits.
func (m *Manager) Limits() Limits { return m.limits }

// Live returns the number of tracked handles.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// Released reports whether ReleaseAll has run.
func (m *Manager) Released() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// track records a handle and returns its token. Tokens increase with
// creation order.
func (m *Manager) track(label string, destroy func()) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.handles[m.next] = handle{label: label, destroy: destroy}
	return m.next
}

func (m *Manager) checkLive() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return ErrReleased
	}
	return nil
}

// free destroys the handles behind tokens, newest first. Failures are
// logged and do not stop the remaining releases.
func (m *Manager) free(tokens ...uint64) error {
	m.mu.Lock()
	hs := make([]handle, 0, len(tokens))
	sorted := append([]uint64(nil), tokens...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	for _, t := range sorted {
		if h, ok := m.handles[t]; ok {
			hs = append(hs, h)
			delete(m.handles, t)
		}
	}
	m.mu.Unlock()

	var errs []error
	for _, h := range hs {
		if err := safeDestroy(h.label, h.destroy); err != nil {
			slogger().Warn("gpu: release failed", "handle", h.label, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// safeDestroy runs a destroy call and converts a panic into an error.
func safeDestroy(label string, destroy func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("release %s: %v", label, r)
		}
	}()
	destroy()
	return nil
}

// ReleaseAll destroys every tracked handle in reverse creation order. A
// failure destroying one handle is recorded and the rest are still
// released. When the manager owns the device it is destroyed last, so the
// context's memory is reclaimed immediately. The returned error joins every
// individual failure. Calling ReleaseAll again is a no-op.
func (m *Manager) ReleaseAll() error {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return nil
	}
	m.released = true
	tokens := make([]uint64, 0, len(m.handles))
	for t := range m.handles {
		tokens = append(tokens, t)
	}
	m.mu.Unlock()

	var errs []error
	if m.device != nil {
		if err := safeDestroy("wait idle", func() {
			if err := m.device.WaitIdle(); err != nil {
				errs = append(errs, fmt.Errorf("wait idle: %w", err))
			}
		}); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, m.reclaim(true))
	errs = append(errs, m.free(tokens...))

	if m.owned && m.device != nil {
		if err := safeDestroy("device", m.device.Destroy); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		slogger().Warn("gpu: release completed with errors", "err", err)
	} else {
		slogger().Debug("gpu: released all handles", "count", len(tokens))
	}
	return err
}

// submit sends one encoded command buffer and keeps it until the GPU is
// done with it.
func (m *Manager) submit(encoder hal.CommandEncoder, cmd hal.CommandBuffer) error {
	idx, err := m.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		m.device.FreeCommandBuffer(cmd)
		encoder.Destroy()
		return deviceErr("submit", err)
	}
	m.mu.Lock()
	m.pending = append(m.pending, submission{index: idx, encoder: encoder, cmd: cmd})
	m.mu.Unlock()
	return nil
}

// reclaim frees command buffers the GPU has finished with. With all set,
// every pending buffer is freed; the caller must have waited for idle.
func (m *Manager) reclaim(all bool) error {
	m.mu.Lock()
	done := uint64(0)
	if !all && m.queue != nil {
		done = m.queue.PollCompleted()
	}
	var ready []submission
	keep := m.pending[:0]
	for _, s := range m.pending {
		if all || s.index <= done {
			ready = append(ready, s)
		} else {
			keep = append(keep, s)
		}
	}
	m.pending = keep
	m.mu.Unlock()

	var errs []error
	for _, s := range ready {
		if err := safeDestroy("command buffer", func() {
			m.device.FreeCommandBuffer(s.cmd)
			s.encoder.Destroy()
		}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pending returns the number of submissions not yet reclaimed.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// CreateStaticBuffer creates a vertex buffer holding data. The contents are
// written once and never change.
func (m *Manager) CreateStaticBuffer(label string, data []float32) (hal.Buffer, error) {
	if err := m.checkLive(); err != nil {
		return nil, err
	}
	raw := float32Bytes(data)
	buf, err := m.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(len(raw)),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, deviceErr("create "+label, err)
	}
	tok := m.track(label, func() { m.device.DestroyBuffer(buf) })
	if err := m.queue.WriteBuffer(buf, 0, raw); err != nil {
		_ = m.free(tok)
		return nil, deviceErr("upload "+label, err)
	}
	return buf, nil
}

// createUniformBuffer creates a uniform buffer of size bytes.
func (m *Manager) createUniformBuffer(label string, size uint64) (hal.Buffer, error) {
	if err := m.checkLive(); err != nil {
		return nil, err
	}
	buf, err := m.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, deviceErr("create "+label, err)
	}
	m.track(label, func() { m.device.DestroyBuffer(buf) })
	return buf, nil
}
