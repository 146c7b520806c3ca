package halgpu

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/hwdec/gpu"
)

//go:embed shaders/weave.wgsl
var weaveShaderWGSL string

// weaveVertexStride is the size of one gpu.Vertex in the vertex buffer:
// position (vec2) followed by texcoord (vec2).
const weaveVertexStride = 16

// pipelineKey selects a weave pipeline variant. The fragment entry point
// depends on how sources are addressed, the color target on the format.
type pipelineKey struct {
	format gpu.Format
	target gpu.TextureTarget
}

// passRenderer draws field weave passes. Layouts are created with the
// renderer; the shader and the per-format pipelines on first use.
type passRenderer struct {
	c *Context

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipelines  map[pipelineKey]hal.RenderPipeline

	released bool
}

// compileShaderToSPIRV compiles WGSL source to SPIR-V words.
func compileShaderToSPIRV(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}
	// SPIR-V is little-endian 32-bit words.
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return code, nil
}

// ensureLayouts creates the bind group and pipeline layouts.
// Must be called with c.mu held.
func (r *passRenderer) ensureLayouts() error {
	if r.pipeLayout != nil {
		return nil
	}
	fieldEntry := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeUnfilterableFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		}
	}
	bindLayout, err := r.c.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   r.c.label("weave_bind_layout"),
		Entries: []gputypes.BindGroupLayoutEntry{fieldEntry(0), fieldEntry(1)},
	})
	if err != nil {
		return fmt.Errorf("create weave bind layout: %w", err)
	}
	r.bindLayout = bindLayout

	pipeLayout, err := r.c.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            r.c.label("weave_pipe_layout"),
		BindGroupLayouts: []hal.BindGroupLayout{r.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create weave pipeline layout: %w", err)
	}
	r.pipeLayout = pipeLayout
	return nil
}

// ensurePipeline returns the pipeline for key, compiling the shader and
// creating the pipeline if needed. Must be called with c.mu held.
func (r *passRenderer) ensurePipeline(key pipelineKey) (hal.RenderPipeline, error) {
	if p, ok := r.pipelines[key]; ok {
		return p, nil
	}
	if r.shader == nil {
		code, err := compileShaderToSPIRV(weaveShaderWGSL)
		if err != nil {
			return nil, err
		}
		shader, err := r.c.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  r.c.label("weave_shader"),
			Source: hal.ShaderSource{SPIRV: code},
		})
		if err != nil {
			return nil, fmt.Errorf("create weave shader: %w", err)
		}
		r.shader = shader
	}

	entry := "fs_rect"
	if key.target == gpu.Target2D {
		entry = "fs_norm"
	}
	pipeline, err := r.c.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  r.c.label(fmt.Sprintf("weave_pipeline_%v_%v", key.format, key.target)),
		Layout: r.pipeLayout,
		Vertex: hal.VertexState{
			Module:     r.shader,
			EntryPoint: "vs_main",
			Buffers:    weaveVertexLayout(),
		},
		Fragment: &hal.FragmentState{
			Module:     r.shader,
			EntryPoint: entry,
			Targets: []gputypes.ColorTargetState{
				{
					Format:    key.format.TextureFormat(),
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
		return nil, fmt.Errorf("create weave pipeline: %w", err)
	}
	r.pipelines[key] = pipeline
	slogger().Debug("halgpu: weave pipeline created", "format", key.format, "target", key.target)
	return pipeline, nil
}

func weaveVertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: weaveVertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0}, // position
				{Format: gputypes.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1}, // texcoord
			},
		},
	}
}

// encodeVertices packs vertices into the little-endian layout described by
// weaveVertexLayout.
func encodeVertices(vs []gpu.Vertex) []byte {
	buf := make([]byte, len(vs)*weaveVertexStride)
	for i, v := range vs {
		b := buf[i*weaveVertexStride:]
		binary.LittleEndian.PutUint32(b[0:], math.Float32bits(v.Position[0]))
		binary.LittleEndian.PutUint32(b[4:], math.Float32bits(v.Position[1]))
		binary.LittleEndian.PutUint32(b[8:], math.Float32bits(v.TexCoord[0]))
		binary.LittleEndian.PutUint32(b[12:], math.Float32bits(v.TexCoord[1]))
	}
	return buf
}

// Draw records the pass into a command buffer, submits it and waits for
// the device to go idle, so the target is complete when Draw returns.
func (r *passRenderer) Draw(p *gpu.Pass) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.released {
		return fmt.Errorf("%w: renderer released", gpu.ErrInvalidPass)
	}
	if p.Program != gpu.ProgramFieldWeave {
		return fmt.Errorf("%w: unknown program %d", gpu.ErrInvalidPass, p.Program)
	}
	if len(p.Sources) != 2 || len(p.Vertices) != 4 {
		return fmt.Errorf("%w: %d sources, %d vertices", gpu.ErrInvalidPass, len(p.Sources), len(p.Vertices))
	}
	dstID, ok := r.c.targets[p.Target.ID]
	if !ok {
		return fmt.Errorf("%w: unknown render target %d", gpu.ErrInvalidPass, p.Target.ID)
	}
	dst := r.c.textures[dstID]
	var views [2]hal.TextureView
	for i, id := range p.Sources {
		t, ok := r.c.textures[id]
		if !ok {
			return fmt.Errorf("%w: %d", gpu.ErrUnknownTexture, id)
		}
		if t.target != p.SourceTarget {
			return fmt.Errorf("%w: source %d is %v, pass samples %v", gpu.ErrInvalidPass, id, t.target, p.SourceTarget)
		}
		if t.view == nil && (i == 0 || dst.height > 1) {
			return fmt.Errorf("%w: source %d has no storage", gpu.ErrInvalidPass, id)
		}
		views[i] = t.view
	}
	if views[1] == nil {
		// A one-row target has an empty odd field and never samples it.
		views[1] = views[0]
	}

	pipeline, err := r.ensurePipeline(pipelineKey{format: dst.format, target: p.SourceTarget})
	if err != nil {
		return err
	}
	return r.encode(pipeline, dst, views, encodeVertices(p.Vertices))
}

// encode records, submits and waits for one weave pass.
// Must be called with c.mu held.
func (r *passRenderer) encode(pipeline hal.RenderPipeline, dst *texture, views [2]hal.TextureView, vertices []byte) error {
	device, queue := r.c.device, r.c.queue

	vertBuf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: r.c.label("weave_vertices"),
		Size:  uint64(len(vertices)),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create weave vertex buffer: %w", err)
	}
	defer device.DestroyBuffer(vertBuf)
	if err := queue.WriteBuffer(vertBuf, 0, vertices); err != nil {
		return fmt.Errorf("write weave vertices: %w", err)
	}

	bindGroup, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  r.c.label("weave_bind"),
		Layout: r.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.TextureViewBinding{TextureView: views[0].NativeHandle()}},
			{Binding: 1, Resource: gputypes.TextureViewBinding{TextureView: views[1].NativeHandle()}},
		},
	})
	if err != nil {
		return fmt.Errorf("create weave bind group: %w", err)
	}
	defer device.DestroyBindGroup(bindGroup)

	encoder, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: r.c.label("weave_encoder"),
	})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(r.c.label("weave")); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: r.c.label("weave_pass"),
		ColorAttachments: []hal.RenderPassColorAttachment{
			{
				View:       dst.view,
				LoadOp:     gputypes.LoadOpClear,
				StoreOp:    gputypes.StoreOpStore,
				ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 0},
			},
		},
	})
	rp.SetViewport(0, 0, float32(dst.width), float32(dst.height), 0, 1)
	rp.SetPipeline(pipeline)
	rp.SetBindGroup(0, bindGroup, nil)
	rp.SetVertexBuffer(0, vertBuf, 0)
	rp.Draw(4, 1, 0, 0)
	rp.End()

	cmd, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer device.FreeCommandBuffer(cmd)

	if _, err := queue.Submit([]hal.CommandBuffer{cmd}); err != nil {
		return fmt.Errorf("submit weave pass: %w", err)
	}
	if err := device.WaitIdle(); err != nil {
		return fmt.Errorf("wait for weave pass: %w", err)
	}
	return nil
}

// Release implements gpu.PassRenderer.
func (r *passRenderer) Release() {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.released {
		return
	}
	r.destroy()
	delete(r.c.renderers, r)
}

// destroy releases the HAL objects of the renderer in dependency order.
// Must be called with c.mu held.
func (r *passRenderer) destroy() {
	r.released = true
	device := r.c.device
	for key, p := range r.pipelines {
		device.DestroyRenderPipeline(p)
		delete(r.pipelines, key)
	}
	if r.pipeLayout != nil {
		device.DestroyPipelineLayout(r.pipeLayout)
		r.pipeLayout = nil
	}
	if r.bindLayout != nil {
		device.DestroyBindGroupLayout(r.bindLayout)
		r.bindLayout = nil
	}
	if r.shader != nil {
		device.DestroyShaderModule(r.shader)
		r.shader = nil
	}
}
