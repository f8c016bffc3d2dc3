package enhance

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Default session quotas by device class.
const (
	DefaultInstancesOffscreen = 8
	DefaultInstancesHighTier  = 6
	DefaultInstancesBasic     = 3
)

// Capabilities is what the engine needs to know about the GPU. It is
// probed once and shared by every session of a registry.
type Capabilities struct {
	// HighTier is set for hardware GPUs. It raises the auto quality cap
	// from 2x to 4x.
	HighTier bool

	// MaxSurfaceDimension bounds both sides of every output surface.
	MaxSurfaceDimension int

	// OffscreenSubmission is set when the device may be driven from a
	// worker goroutine that owns it exclusively.
	OffscreenSubmission bool

	// Anisotropy is set when samplers may use anisotropic filtering.
	Anisotropy bool

	// SurfaceFormat is the output surface format. Undefined means RGBA8.
	SurfaceFormat gputypes.TextureFormat

	AdapterName string
}

// fits reports whether a w x h source can be uploaded as one texture.
// A non-positive MaxSurfaceDimension means no limit.
func (c Capabilities) fits(w, h int) bool {
	return c.MaxSurfaceDimension <= 0 || (w <= c.MaxSurfaceDimension && h <= c.MaxSurfaceDimension)
}

// ProbeAdapter derives capabilities from an enumerated adapter.
func ProbeAdapter(a hal.ExposedAdapter) Capabilities {
	caps := Capabilities{
		HighTier:            a.Info.DeviceType == gputypes.DeviceTypeDiscreteGPU || a.Info.DeviceType == gputypes.DeviceTypeIntegratedGPU,
		MaxSurfaceDimension: int(a.Capabilities.Limits.MaxTextureDimension2D),
		// GL contexts are bound to the goroutine's OS thread that made them.
		OffscreenSubmission: a.Info.Backend != gputypes.BackendGL,
		Anisotropy:          a.Capabilities.DownlevelCapabilities.Flags&hal.DownlevelFlagsAnisotropicFiltering != 0,
		AdapterName:         a.Info.Name,
	}
	if caps.MaxSurfaceDimension <= 0 {
		caps.MaxSurfaceDimension = int(gputypes.DefaultLimits().MaxTextureDimension2D)
	}
	return caps
}

// ProbeProvider derives capabilities from a host application's device
// provider. The host keeps ownership of its device, so sessions on it are
// always cooperative.
func ProbeProvider(p gpucontext.DeviceProvider, limits gputypes.Limits) Capabilities {
	info := p.AdapterInfo()
	caps := Capabilities{
		HighTier:            info.Type == gpucontext.AdapterTypeDiscrete || info.Type == gpucontext.AdapterTypeIntegrated,
		MaxSurfaceDimension: int(limits.MaxTextureDimension2D),
		SurfaceFormat:       p.SurfaceFormat(),
		AdapterName:         info.Name,
	}
	if caps.MaxSurfaceDimension <= 0 {
		caps.MaxSurfaceDimension = int(gputypes.DefaultLimits().MaxTextureDimension2D)
	}
	return caps
}

// DefaultMaxInstances returns the session quota for a device class: 8 for
// high-tier devices with offscreen submission, 6 for high-tier devices
// without it, 3 otherwise.
func DefaultMaxInstances(caps Capabilities) int {
	switch {
	case caps.HighTier && caps.OffscreenSubmission:
		return DefaultInstancesOffscreen
	case caps.HighTier:
		return DefaultInstancesHighTier
	default:
		return DefaultInstancesBasic
	}
}

// Mode selects where a session's GPU work runs.
type Mode int

const (
	// ModeAuto picks ModeOffloaded when the device supports offscreen
	// submission, else ModeCooperative.
	ModeAuto Mode = iota

	// ModeCooperative runs GPU work inline in Session.Frame.
	ModeCooperative

	// ModeOffloaded runs GPU work on a worker goroutine that owns the
	// device. Frames are handed over through a single-slot mailbox.
	ModeOffloaded
)

// String returns the render strategy name.
func (m Mode) String() string {
	switch m {
	case ModeCooperative:
		return "main"
	case ModeOffloaded:
		return "worker-offscreen"
	default:
		return "auto"
	}
}

// resolve fixes ModeAuto for one session.
func (m Mode) resolve(caps Capabilities) Mode {
	if m != ModeAuto {
		return m
	}
	if caps.OffscreenSubmission {
		return ModeOffloaded
	}
	return ModeCooperative
}

// Device is an opened device and its queue.
type Device struct {
	Device hal.Device
	Queue  hal.Queue

	// Owned devices are destroyed with the session that opened them.
	Owned bool
}

// DeviceOpener opens the device for one session. It is called once per
// session; in offloaded mode it runs on the session's worker goroutine.
type DeviceOpener func() (Device, error)

// AdapterOpener opens a fresh device on a for every session, so each
// session's cleanup destroys its own device and reclaims its memory.
func AdapterOpener(a hal.ExposedAdapter) DeviceOpener {
	return func() (Device, error) {
		od, err := a.Adapter.Open(0, a.Capabilities.Limits)
		if err != nil {
			return Device{}, fmt.Errorf("%w: open %s: %w", ErrNoDevice, a.Info.Name, err)
		}
		return Device{Device: od.Device, Queue: od.Queue, Owned: true}, nil
	}
}

// SharedDevice hands the same device to every session. Sessions release
// their own objects but never destroy the device. Offloaded sessions on a
// shared device submit from several goroutines at once, so pair it with
// ModeCooperative unless the backend allows that.
func SharedDevice(device hal.Device, queue hal.Queue) DeviceOpener {
	return func() (Device, error) {
		if device == nil || queue == nil {
			return Device{}, ErrNoDevice
		}
		return Device{Device: device, Queue: queue}, nil
	}
}

// halProvider is implemented by providers that expose their hal objects,
// such as the gogpu application context.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// ProviderDevice shares a host application's device. The provider must
// expose hal objects through HalDevice and HalQueue.
func ProviderDevice(p gpucontext.DeviceProvider) DeviceOpener {
	return func() (Device, error) {
		hp, ok := p.(halProvider)
		if !ok {
			return Device{}, fmt.Errorf("%w: provider %T does not expose hal objects", ErrNoDevice, p)
		}
		dev, ok1 := hp.HalDevice().(hal.Device)
		q, ok2 := hp.HalQueue().(hal.Queue)
		if !ok1 || !ok2 || dev == nil || q == nil {
			return Device{}, fmt.Errorf("%w: provider %T returned no hal device", ErrNoDevice, p)
		}
		return Device{Device: dev, Queue: q}, nil
	}
}
