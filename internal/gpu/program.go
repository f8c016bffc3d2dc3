package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Parameter slot names. Every program exposes the same slots.
const (
	SlotTexture  = "texture"
	SlotTexSize  = "texSize"
	SlotSharpen  = "sharpen"
	SlotVibrance = "vibrance"
	SlotDither   = "dither"
)

// Bind group layout of every program.
const (
	bindingTexture = 0
	bindingSampler = 1
	bindingParams  = 2
)

// UniformSize is the size of the params uniform block in bytes:
// tex_size vec2, sharpen, vibrance, dither, three f32 of padding.
const UniformSize = 32

// Entry points of the vertex and fragment stages.
const (
	vertexEntry   = "vs_main"
	fragmentEntry = "fs_main"
)

// Slot locates one parameter. Texture slots have Size zero.
type Slot struct {
	Binding uint32
	Offset  uint64
	Size    uint64
}

// defaultSlots mirrors the Params struct declared in the shader prelude.
func defaultSlots() map[string]Slot {
	return map[string]Slot{
		SlotTexture:  {Binding: bindingTexture},
		SlotTexSize:  {Binding: bindingParams, Offset: 0, Size: 8},
		SlotSharpen:  {Binding: bindingParams, Offset: 8, Size: 4},
		SlotVibrance: {Binding: bindingParams, Offset: 12, Size: 4},
		SlotDither:   {Binding: bindingParams, Offset: 16, Size: 4},
	}
}

// Program is a compiled vertex + fragment pair with its pipeline.
type Program struct {
	Label string

	vertex     hal.ShaderModule
	fragment   hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.RenderPipeline

	slots  map[string]Slot
	tokens []uint64
}

// Slot returns the named parameter slot.
func (p *Program) Slot(name string) (Slot, bool) {
	s, ok := p.slots[name]
	return s, ok
}

// Pipeline returns the render pipeline.
func (p *Program) Pipeline() hal.RenderPipeline { return p.pipeline }

// BindGroupLayout returns the layout of group 0.
func (p *Program) BindGroupLayout() hal.BindGroupLayout { return p.bindLayout }

// Params are the per-frame uniform values.
type Params struct {
	SrcWidth, SrcHeight int
	Sharpen             float32
	Vibrance            float32
	Dither              bool
}

// EncodeParams lays out params at the program's slot offsets.
func (p *Program) EncodeParams(params Params) []byte {
	buf := make([]byte, UniformSize)
	put := func(name string, v float32) {
		if s, ok := p.slots[name]; ok {
			binary.LittleEndian.PutUint32(buf[s.Offset:], math.Float32bits(v))
		}
	}
	if s, ok := p.slots[SlotTexSize]; ok {
		binary.LittleEndian.PutUint32(buf[s.Offset:], math.Float32bits(float32(params.SrcWidth)))
		binary.LittleEndian.PutUint32(buf[s.Offset+4:], math.Float32bits(float32(params.SrcHeight)))
	}
	put(SlotSharpen, params.Sharpen)
	put(SlotVibrance, params.Vibrance)
	dither := float32(0)
	if params.Dither {
		dither = 1
	}
	put(SlotDither, dither)
	return buf
}

// CreateProgram compiles the two stages and builds a triangle-strip render
// pipeline over them. On failure every partially created object is
// destroyed and the error matches ErrCompileFailed.
func (m *Manager) CreateProgram(label, vertexSrc, fragmentSrc string) (*Program, error) {
	if err := m.checkLive(); err != nil {
		return nil, err
	}
	p := &Program{Label: label, slots: defaultSlots()}
	if err := m.buildProgram(p, vertexSrc, fragmentSrc); err != nil {
		_ = m.free(p.tokens...)
		return nil, err
	}
	slogger().Debug("gpu: program created", "label", label)
	return p, nil
}

// DestroyProgram releases a program's objects. Safe on nil and on a
// program already destroyed.
func (m *Manager) DestroyProgram(p *Program) error {
	if p == nil {
		return nil
	}
	err := m.free(p.tokens...)
	p.tokens = nil
	p.vertex, p.fragment = nil, nil
	p.bindLayout, p.pipeLayout, p.pipeline = nil, nil, nil
	return err
}

func (m *Manager) buildProgram(p *Program, vertexSrc, fragmentSrc string) error {
	vs, err := m.createModule(p.Label+"_vs", vertexSrc)
	if err != nil {
		return &CompileError{Stage: "vertex", Err: err}
	}
	p.vertex = vs
	p.tokens = append(p.tokens, m.track(p.Label+"_vs", func() { m.device.DestroyShaderModule(vs) }))

	fs, err := m.createModule(p.Label+"_fs", fragmentSrc)
	if err != nil {
		return &CompileError{Stage: "fragment", Err: err}
	}
	p.fragment = fs
	p.tokens = append(p.tokens, m.track(p.Label+"_fs", func() { m.device.DestroyShaderModule(fs) }))

	bindLayout, err := m.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: p.Label + "_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    bindingTexture,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    bindingSampler,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
			{
				Binding:    bindingParams,
				Visibility: gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return &CompileError{Stage: "pipeline", Err: fmt.Errorf("create bind group layout: %w", err)}
	}
	p.bindLayout = bindLayout
	p.tokens = append(p.tokens, m.track(p.Label+"_bind_layout", func() { m.device.DestroyBindGroupLayout(bindLayout) }))

	pipeLayout, err := m.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            p.Label + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		return &CompileError{Stage: "pipeline", Err: fmt.Errorf("create pipeline layout: %w", err)}
	}
	p.pipeLayout = pipeLayout
	p.tokens = append(p.tokens, m.track(p.Label+"_pipe_layout", func() { m.device.DestroyPipelineLayout(pipeLayout) }))

	replace := gputypes.BlendStateReplace()
	pipeline, err := m.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  p.Label + "_pipeline",
		Layout: pipeLayout,
		Vertex: hal.VertexState{
			Module:     vs,
			EntryPoint: vertexEntry,
			Buffers:    quadVertexLayout(),
		},
		Fragment: &hal.FragmentState{
			Module:     fs,
			EntryPoint: fragmentEntry,
			Targets: []gputypes.ColorTargetState{
				{
					Format:    m.limits.SurfaceFormat,
					Blend:     &replace,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleStrip,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return &CompileError{Stage: "pipeline", Err: fmt.Errorf("create render pipeline: %w", err)}
	}
	p.pipeline = pipeline
	p.tokens = append(p.tokens, m.track(p.Label+"_pipeline", func() { m.device.DestroyRenderPipeline(pipeline) }))
	return nil
}

// createModule creates a shader module from WGSL, or from SPIR-V when the
// manager has a compiler.
func (m *Manager) createModule(label, wgsl string) (hal.ShaderModule, error) {
	if wgsl == "" {
		return nil, fmt.Errorf("%s: empty shader source", label)
	}
	src := hal.ShaderSource{WGSL: wgsl}
	if m.compiler != nil {
		words, err := m.compiler(wgsl)
		if err != nil {
			return nil, err
		}
		src = hal.ShaderSource{SPIRV: words}
	}
	return m.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: src,
	})
}

// quadVertexLayout describes the two static vertex buffers: slot 0 holds
// clip-space positions, slot 1 texture coordinates.
func quadVertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: 8,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
			},
		},
		{
			ArrayStride: 8,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 1},
			},
		},
	}
}

// float32Bytes encodes data as little-endian bytes.
func float32Bytes(data []float32) []byte {
	out := make([]byte, len(data)*4)
	for i, v := range data {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}
