package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Full-surface quad drawn as a 4-vertex triangle strip.
var (
	quadPositions = []float32{-1, -1, 1, -1, -1, 1, 1, 1}
	quadTexCoords = []float32{0, 1, 1, 1, 0, 0, 1, 0}
)

const quadVertexCount = 4

// FrameRenderer draws one session's frames. It owns the session's program,
// static quad buffers, uniform buffer, source texture, output surface, and
// the bind group tying them together. All objects are tracked by the
// manager, so Release tears down everything including objects that failed
// half-way through a rebuild.
//
// Architecture:
//
//	FrameRenderer
//	  +-- Program (vertex + assembled fragment, or passthrough fallback)
//	  +-- quad position + texcoord buffers (static)
//	  +-- params uniform buffer (rewritten every frame)
//	  +-- SourceTexture (recreated when the source size changes)
//	  +-- Surface (recreated when the output size changes)
//	  +-- bind group (recreated with program or source texture)
type FrameRenderer struct {
	mgr       *Manager
	vertexSrc string

	program  *Program
	fallback bool

	posBuf     hal.Buffer
	uvBuf      hal.Buffer
	uniformBuf hal.Buffer

	source  *SourceTexture
	surface *Surface

	bindGroup hal.BindGroup
	bindToken uint64

	frames uint64
}

// NewFrameRenderer returns a renderer on mgr. Nothing is allocated until
// Init.
func NewFrameRenderer(mgr *Manager, vertexSrc string) *FrameRenderer {
	return &FrameRenderer{mgr: mgr, vertexSrc: vertexSrc}
}

// Manager returns the renderer's manager.
func (r *FrameRenderer) Manager() *Manager { return r.mgr }

// Init builds the program, the static quad buffers, and the uniform buffer.
// If the fragment stage fails to build, the passthrough stage is tried
// before giving up; UsingFallback reports which one is active.
func (r *FrameRenderer) Init(fragmentSrc, passthroughSrc string) error {
	if err := r.loadProgram(fragmentSrc, passthroughSrc); err != nil {
		return err
	}

	var err error
	if r.posBuf, err = r.mgr.CreateStaticBuffer("quad_positions", quadPositions); err != nil {
		return err
	}
	if r.uvBuf, err = r.mgr.CreateStaticBuffer("quad_texcoords", quadTexCoords); err != nil {
		return err
	}
	if r.uniformBuf, err = r.mgr.createUniformBuffer("params_uniform", UniformSize); err != nil {
		return err
	}
	return nil
}

// loadProgram builds a program from fragmentSrc, falling back to
// passthroughSrc on a compile failure. The previous program, if any, is
// destroyed only after the replacement is built.
func (r *FrameRenderer) loadProgram(fragmentSrc, passthroughSrc string) error {
	prog, err := r.mgr.CreateProgram("enhance", r.vertexSrc, fragmentSrc)
	fallback := false
	if err != nil {
		if !errors.Is(err, ErrCompileFailed) || passthroughSrc == "" {
			return err
		}
		slogger().Warn("gpu: enhancement program failed, using passthrough", "err", err)
		var fbErr error
		prog, fbErr = r.mgr.CreateProgram("passthrough", r.vertexSrc, passthroughSrc)
		if fbErr != nil {
			return fmt.Errorf("fallback program: %w (primary: %w)", fbErr, err)
		}
		fallback = true
	}

	old := r.program
	r.program, r.fallback = prog, fallback
	if old != nil {
		if err := r.mgr.DestroyProgram(old); err != nil {
			slogger().Warn("gpu: release of previous program failed", "err", err)
		}
	}
	return r.rebind()
}

// SwapProgram replaces the program, keeping buffers, textures, and surface.
func (r *FrameRenderer) SwapProgram(fragmentSrc, passthroughSrc string) error {
	return r.loadProgram(fragmentSrc, passthroughSrc)
}

// UsingFallback reports whether the passthrough stage is active.
func (r *FrameRenderer) UsingFallback() bool { return r.fallback }

// Program returns the active program.
func (r *FrameRenderer) Program() *Program { return r.program }

// Resize matches the source texture to the source size and the surface to
// the requested output size. The surface may come out smaller than
// requested if the device limit clamps it; the actual size is returned.
func (r *FrameRenderer) Resize(srcW, srcH, outW, outH int) (int, int, error) {
	if r.source == nil || r.source.Width != srcW || r.source.Height != srcH {
		if err := r.mgr.DestroySourceTexture(r.source); err != nil {
			slogger().Warn("gpu: release of source texture failed", "err", err)
		}
		r.source = nil
		st, err := r.mgr.CreateSourceTexture(srcW, srcH)
		if err != nil {
			return 0, 0, err
		}
		r.source = st
		if err := r.rebind(); err != nil {
			return 0, 0, err
		}
	}

	if r.surface == nil {
		s, err := r.mgr.CreateSurface(outW, outH)
		if err != nil {
			return 0, 0, err
		}
		r.surface = s
	} else if err := r.mgr.ResizeSurface(r.surface, outW, outH); err != nil {
		return 0, 0, err
	}
	return r.surface.Width, r.surface.Height, nil
}

// OutputSize returns the surface size, or zero before the first Resize.
func (r *FrameRenderer) OutputSize() (int, int) {
	if r.surface == nil {
		return 0, 0
	}
	return r.surface.Width, r.surface.Height
}

// Output returns the surface view the frames are drawn into.
func (r *FrameRenderer) Output() hal.TextureView {
	if r.surface == nil {
		return nil
	}
	return r.surface.View
}

// Frames returns the number of frames submitted.
func (r *FrameRenderer) Frames() uint64 { return r.frames }

// rebind recreates the bind group for the current program and source
// texture. It is a no-op until both exist.
func (r *FrameRenderer) rebind() error {
	if r.bindToken != 0 {
		_ = r.mgr.free(r.bindToken)
		r.bindToken, r.bindGroup = 0, nil
	}
	if r.program == nil || r.source == nil || r.uniformBuf == nil {
		return nil
	}
	bg, err := r.mgr.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "enhance_bind_group",
		Layout: r.program.BindGroupLayout(),
		Entries: []gputypes.BindGroupEntry{
			{Binding: bindingTexture, Resource: gputypes.TextureViewBinding{TextureView: r.source.View.NativeHandle()}},
			{Binding: bindingSampler, Resource: gputypes.SamplerBinding{Sampler: r.source.Sampler.NativeHandle()}},
			{Binding: bindingParams, Resource: gputypes.BufferBinding{Buffer: r.uniformBuf.NativeHandle(), Offset: 0, Size: UniformSize}},
		},
	})
	if err != nil {
		return deviceErr("create bind group", err)
	}
	r.bindGroup = bg
	r.bindToken = r.mgr.track("enhance_bind_group", func() { r.mgr.device.DestroyBindGroup(bg) })
	return nil
}

// Draw uploads params and one RGBA8 frame, then draws the quad over the
// whole surface and submits. pixels must be exactly srcW*srcH*4 bytes for
// the size given to the last Resize.
func (r *FrameRenderer) Draw(pixels []byte, params Params) error {
	if err := r.mgr.checkLive(); err != nil {
		return err
	}
	if r.program == nil || r.source == nil || r.surface == nil || r.bindGroup == nil {
		return ErrNotReady
	}
	if want := r.source.Width * r.source.Height * 4; len(pixels) != want {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(pixels), want)
	}

	if err := r.mgr.reclaim(false); err != nil {
		slogger().Warn("gpu: command buffer reclaim failed", "err", err)
	}

	if err := r.mgr.queue.WriteBuffer(r.uniformBuf, 0, r.program.EncodeParams(params)); err != nil {
		return deviceErr("upload params", err)
	}

	w := uint32(r.source.Width)  //nolint:gosec // bounded by device limit
	h := uint32(r.source.Height) //nolint:gosec // bounded by device limit
	err := r.mgr.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: r.source.Texture, Aspect: gputypes.TextureAspectAll},
		pixels,
		&hal.ImageDataLayout{BytesPerRow: w * 4, RowsPerImage: h},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
	if err != nil {
		return deviceErr("upload frame", err)
	}

	return r.encodeSubmit()
}

func (r *FrameRenderer) encodeSubmit() error {
	encoder, err := r.mgr.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "enhance_encoder",
	})
	if err != nil {
		return deviceErr("create command encoder", err)
	}
	if err := encoder.BeginEncoding("enhance_frame"); err != nil {
		encoder.Destroy()
		return deviceErr("begin encoding", err)
	}

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "enhance_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       r.surface.View,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	})
	rp.SetPipeline(r.program.Pipeline())
	rp.SetBindGroup(0, r.bindGroup, nil)
	rp.SetVertexBuffer(0, r.posBuf, 0)
	rp.SetVertexBuffer(1, r.uvBuf, 0)
	rp.SetViewport(0, 0, float32(r.surface.Width), float32(r.surface.Height), 0, 1)
	rp.Draw(quadVertexCount, 1, 0, 0)
	rp.End()

	cmd, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		encoder.Destroy()
		return deviceErr("end encoding", err)
	}
	if err := r.mgr.submit(encoder, cmd); err != nil {
		return err
	}
	r.frames++
	return nil
}

// Release destroys everything the renderer's manager tracks. Safe to call
// more than once.
func (r *FrameRenderer) Release() error {
	err := r.mgr.ReleaseAll()
	r.program, r.source, r.surface = nil, nil, nil
	r.posBuf, r.uvBuf, r.uniformBuf = nil, nil, nil
	r.bindGroup, r.bindToken = nil, 0
	return err
}
