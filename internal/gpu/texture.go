package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/enhance/internal/resolution"
)

// SourceTexture receives uploaded video frames.
type SourceTexture struct {
	Texture hal.Texture
	View    hal.TextureView
	Sampler hal.Sampler
	Width   int
	Height  int

	// Anisotropy is the sampler's anisotropy clamp; 1 when unsupported.
	Anisotropy uint16

	tokens []uint64
}

// Surface is the output render target.
type Surface struct {
	Texture hal.Texture
	View    hal.TextureView
	Width   int
	Height  int

	tokens []uint64
}

// CreateSourceTexture creates an RGBA8 texture of w x h with a view and an
// edge-clamped, linearly filtered sampler. Anisotropic filtering is enabled
// only when the device supports it.
func (m *Manager) CreateSourceTexture(w, h int) (*SourceTexture, error) {
	if err := m.checkLive(); err != nil {
		return nil, err
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("gpu: invalid source size %dx%d", w, h)
	}
	if w > m.limits.MaxSurfaceDimension || h > m.limits.MaxSurfaceDimension {
		return nil, fmt.Errorf("gpu: source %dx%d exceeds device limit %d", w, h, m.limits.MaxSurfaceDimension)
	}

	st := &SourceTexture{Width: w, Height: h, Anisotropy: 1}
	tex, view, tokens, err := m.createTexture("source_texture", w, h,
		gputypes.TextureFormatRGBA8Unorm,
		gputypes.TextureUsageTextureBinding|gputypes.TextureUsageCopyDst)
	st.tokens = tokens
	if err != nil {
		_ = m.free(st.tokens...)
		return nil, err
	}
	st.Texture, st.View = tex, view

	if m.limits.Anisotropy {
		st.Anisotropy = maxAnisotropy
	}
	sampler, err := m.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "source_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
		LodMinClamp:  0,
		LodMaxClamp:  32,
		Anisotropy:   st.Anisotropy,
	})
	if err != nil {
		_ = m.free(st.tokens...)
		return nil, deviceErr("create source sampler", err)
	}
	st.Sampler = sampler
	st.tokens = append(st.tokens, m.track("source_sampler", func() { m.device.DestroySampler(sampler) }))
	return st, nil
}

// DestroySourceTexture releases a source texture. Safe on nil.
func (m *Manager) DestroySourceTexture(st *SourceTexture) error {
	if st == nil {
		return nil
	}
	err := m.free(st.tokens...)
	st.tokens = nil
	st.Texture, st.View, st.Sampler = nil, nil, nil
	return err
}

// CreateSurface creates an output surface of w x h, clamped to the device
// limit. The returned surface's Width and Height are the clamped size.
func (m *Manager) CreateSurface(w, h int) (*Surface, error) {
	s := &Surface{}
	if err := m.ResizeSurface(s, w, h); err != nil {
		return nil, err
	}
	return s, nil
}

// ResizeSurface sets the surface's requested size, clamps it to the device
// limit, and reallocates the render target if the size changed.
func (m *Manager) ResizeSurface(s *Surface, w, h int) error {
	if err := m.checkLive(); err != nil {
		return err
	}
	if w <= 0 || h <= 0 {
		return fmt.Errorf("gpu: invalid surface size %dx%d", w, h)
	}
	cw, ch := resolution.ClampToDeviceLimit(w, h, m.limits.MaxSurfaceDimension)
	if s.Texture != nil && cw == s.Width && ch == s.Height {
		return nil
	}
	if err := m.DestroySurface(s); err != nil {
		slogger().Warn("gpu: release of old surface failed", "err", err)
	}
	s.Width, s.Height = w, h
	changed, err := m.ClampSurfaceToDeviceLimit(s)
	if err != nil {
		return err
	}
	if !changed {
		return m.allocSurface(s)
	}
	return nil
}

// ClampSurfaceToDeviceLimit shrinks s in place if either side exceeds the
// device's maximum surface dimension, preserving aspect ratio. It reports
// whether the size changed; callers must then re-bind viewport state.
func (m *Manager) ClampSurfaceToDeviceLimit(s *Surface) (bool, error) {
	cw, ch := resolution.ClampToDeviceLimit(s.Width, s.Height, m.limits.MaxSurfaceDimension)
	if cw == s.Width && ch == s.Height {
		return false, nil
	}
	slogger().Debug("gpu: surface clamped to device limit",
		"from_w", s.Width, "from_h", s.Height, "to_w", cw, "to_h", ch,
		"limit", m.limits.MaxSurfaceDimension)
	s.Width, s.Height = cw, ch
	if err := m.allocSurface(s); err != nil {
		return true, err
	}
	return true, nil
}

// allocSurface (re)creates the render target at s's current size.
func (m *Manager) allocSurface(s *Surface) error {
	if len(s.tokens) > 0 {
		_ = m.free(s.tokens...)
		s.tokens = nil
		s.Texture, s.View = nil, nil
	}
	tex, view, tokens, err := m.createTexture("output_surface", s.Width, s.Height,
		m.limits.SurfaceFormat,
		gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageTextureBinding|gputypes.TextureUsageCopySrc)
	if err != nil {
		_ = m.free(tokens...)
		return err
	}
	s.Texture, s.View, s.tokens = tex, view, tokens
	return nil
}

// DestroySurface releases a surface. Safe on nil.
func (m *Manager) DestroySurface(s *Surface) error {
	if s == nil {
		return nil
	}
	err := m.free(s.tokens...)
	s.tokens = nil
	s.Texture, s.View = nil, nil
	return err
}

// createTexture creates a 2D texture and its default view. Tokens for
// whatever was created are returned even on error so the caller can free
// them.
func (m *Manager) createTexture(label string, w, h int, format gputypes.TextureFormat, usage gputypes.TextureUsage) (hal.Texture, hal.TextureView, []uint64, error) {
	tex, err := m.device.CreateTexture(&hal.TextureDescriptor{
		Label: label,
		Size: hal.Extent3D{
			Width:              uint32(w), //nolint:gosec // bounded by device limit
			Height:             uint32(h), //nolint:gosec // bounded by device limit
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, nil, nil, deviceErr("create "+label, err)
	}
	tokens := []uint64{m.track(label, func() { m.device.DestroyTexture(tex) })}

	view, err := m.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         label + "_view",
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		return nil, nil, tokens, deviceErr("create "+label+" view", err)
	}
	tokens = append(tokens, m.track(label+"_view", func() { m.device.DestroyTextureView(view) }))
	return tex, view, tokens, nil
}
