// Package gpu opens a hardware GPU for the enhance engine.
//
// Importing this package registers every HAL backend available on the
// platform. Open picks the most capable backend, prefers a hardware
// adapter over software ones, and probes its capabilities.
//
// Usage:
//
//	g, err := gpu.Open()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer g.Close()
//	reg := enhance.NewRegistry(g.Caps, enhance.WithOpener(g.Opener()))
//
// Build with the nogpu tag to leave the backends out; Open then fails with
// enhance.ErrNoDevice and hosts supply devices through enhance.SharedDevice
// or enhance.ProviderDevice.
package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/enhance"
)

// GPU is an enumerated adapter and the instance it came from.
type GPU struct {
	Instance hal.Instance
	Adapter  hal.ExposedAdapter
	Caps     enhance.Capabilities
}

// Open creates an instance on the best available backend and selects an
// adapter.
func Open() (*GPU, error) {
	backend, err := hal.SelectBestBackend()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", enhance.ErrNoDevice, err)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", enhance.ErrNoDevice, err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: %s: no adapters", enhance.ErrNoDevice, backend.Variant())
	}

	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	g := &GPU{
		Instance: instance,
		Adapter:  *selected,
		Caps:     enhance.ProbeAdapter(*selected),
	}
	enhance.Logger().Info("gpu: adapter selected",
		"adapter", selected.Info.Name, "backend", selected.Info.Backend.String(),
		"high_tier", g.Caps.HighTier, "max_dim", g.Caps.MaxSurfaceDimension)
	return g, nil
}

// Opener opens a fresh device on the adapter for each session.
func (g *GPU) Opener() enhance.DeviceOpener {
	return enhance.AdapterOpener(g.Adapter)
}

// Close destroys the instance. Every session must be released first.
func (g *GPU) Close() error {
	if g.Instance == nil {
		return errors.New("gpu: already closed")
	}
	g.Instance.Destroy()
	g.Instance = nil
	return nil
}
