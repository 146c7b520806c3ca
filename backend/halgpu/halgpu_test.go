package halgpu

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/hwdec/device"
	"github.com/gogpu/hwdec/device/devicetest"
	"github.com/gogpu/hwdec/gpu"
)

// createNoopDevice creates a noop HAL device and queue for testing.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

func newTestContext(t *testing.T) *Context {
	t.Helper()
	dev, queue, cleanup := createNoopDevice(t)
	t.Cleanup(cleanup)
	c, err := New(dev, queue, DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

// skipIfNagaUnsupported skips the test when naga cannot yet compile the
// weave shader.
func skipIfNagaUnsupported(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		return
	}
	if s := err.Error(); strings.Contains(s, "not yet implemented") || strings.Contains(s, "not supported") {
		t.Skipf("Skipping: naga feature not yet implemented: %v", err)
	}
}

type provider struct {
	dev   any
	queue any
}

func (p provider) HalDevice() any { return p.dev }
func (p provider) HalQueue() any  { return p.queue }

type adapterProvider struct {
	provider
	info gpucontext.AdapterInfo
}

func (p adapterProvider) AdapterInfo() gpucontext.AdapterInfo { return p.info }

func TestNewRejectsNil(t *testing.T) {
	if _, err := New(nil, nil, DefaultConfig()); err == nil {
		t.Error("New(nil, nil) should fail")
	}
}

func TestNewFromProvider(t *testing.T) {
	dev, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	c, err := NewFromProvider(provider{dev: dev, queue: queue}, DefaultConfig())
	if err != nil {
		t.Fatalf("NewFromProvider: %v", err)
	}
	c.Close()

	info := gpucontext.AdapterInfo{Name: "llvmpipe", Type: gpucontext.AdapterTypeSoftware}
	c, err = NewFromProvider(adapterProvider{provider{dev: dev, queue: queue}, info}, DefaultConfig())
	if err != nil {
		t.Fatalf("NewFromProvider: %v", err)
	}
	if got := c.AdapterInfo(); got != info {
		t.Errorf("AdapterInfo() = %+v, want %+v", got, info)
	}
	c.Close()

	tests := []struct {
		name     string
		provider any
	}{
		{"not a provider", struct{}{}},
		{"bad device", provider{dev: "device", queue: queue}},
		{"bad queue", provider{dev: dev, queue: 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFromProvider(tt.provider, DefaultConfig()); err == nil {
				t.Error("NewFromProvider should fail")
			}
		})
	}
}

func TestCaps(t *testing.T) {
	c := newTestContext(t)
	if !c.Caps().Has(gpu.CapVideoInterop) {
		t.Error("default config should enable video interop")
	}
	if c.Display() != 0 {
		t.Errorf("Display() = %d, want 0", c.Display())
	}

	dev, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	cfg := DefaultConfig()
	cfg.Interop = false
	c2, err := New(dev, queue, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()
	if c2.Caps().Has(gpu.CapVideoInterop) {
		t.Error("interop disabled, Caps() still has video interop")
	}
	if err := c2.Interop().Init(1, devicetest.New()); err == nil {
		t.Error("Init on a context without interop should fail")
	}
}

func TestTexturesAndRenderTargets(t *testing.T) {
	c := newTestContext(t)

	ids, err := c.GenTextures(gpu.TargetRectangle, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 4 {
		t.Fatalf("GenTextures returned %d names", len(ids))
	}
	if v := c.TextureView(ids[0]); v != nil {
		t.Error("fresh texture name should have no storage")
	}

	rt, err := c.NewRenderTarget(8, 4, gpu.FormatRG8)
	if err != nil {
		t.Fatal(err)
	}
	if !rt.Valid() || rt.Width != 8 || rt.Height != 4 {
		t.Errorf("NewRenderTarget() = %+v", rt)
	}
	if c.TextureView(rt.Texture) == nil {
		t.Error("render target texture has no view")
	}
	if w, h, ok := c.TextureSize(rt.Texture); !ok || w != 8 || h != 4 {
		t.Errorf("TextureSize() = %d, %d, %v", w, h, ok)
	}

	// Render target textures are not deleted through DeleteTextures.
	c.DeleteTextures([]gpu.TextureID{rt.Texture})
	if c.TextureView(rt.Texture) == nil {
		t.Error("DeleteTextures removed a render target texture")
	}
	c.DeleteRenderTarget(rt)
	if _, _, ok := c.TextureSize(rt.Texture); ok {
		t.Error("render target texture still present after DeleteRenderTarget")
	}
	c.DeleteTextures(ids)
	if _, _, ok := c.TextureSize(ids[0]); ok {
		t.Error("texture still present after DeleteTextures")
	}

	if _, err := c.NewRenderTarget(0, 4, gpu.FormatR8); err == nil {
		t.Error("NewRenderTarget(0x4) should fail")
	}
}

func TestClosed(t *testing.T) {
	c := newTestContext(t)
	c.Close()
	c.Close()
	if _, err := c.GenTextures(gpu.Target2D, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("GenTextures after Close = %v, want ErrClosed", err)
	}
	if _, err := c.NewRenderTarget(1, 1, gpu.FormatR8); !errors.Is(err, ErrClosed) {
		t.Errorf("NewRenderTarget after Close = %v, want ErrClosed", err)
	}
	if _, err := c.NewPassRenderer(); !errors.Is(err, ErrClosed) {
		t.Errorf("NewPassRenderer after Close = %v, want ErrClosed", err)
	}
}

func TestInteropLifecycle(t *testing.T) {
	c := newTestContext(t)
	dev := devicetest.New()
	s := dev.AddSurface(devicetest.NewSurface(device.Chroma420, 4, 5, devicetest.RowPattern))
	in := c.Interop()

	ids, _ := c.GenTextures(gpu.TargetRectangle, 4)
	if _, err := in.RegisterVideoSurface(s, gpu.TargetRectangle, ids); !errors.Is(err, gpu.ErrInteropState) {
		t.Errorf("register before init = %v, want ErrInteropState", err)
	}
	if err := in.Init(dev.Handle(), dev); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := in.Init(dev.Handle(), dev); !errors.Is(err, gpu.ErrInteropState) {
		t.Errorf("second Init = %v, want ErrInteropState", err)
	}

	if _, err := in.RegisterVideoSurface(s, gpu.Target2D, ids); err == nil {
		t.Error("register with mismatched target should fail")
	}
	name, err := in.RegisterVideoSurface(s, gpu.TargetRectangle, ids)
	if err != nil {
		t.Fatalf("RegisterVideoSurface: %v", err)
	}

	// 4x5 4:2:0: luma fields 4x3 and 4x2, chroma fields 2x2 and 2x1.
	want := [4][2]int{{4, 3}, {4, 2}, {2, 2}, {2, 1}}
	for n, id := range ids {
		w, h, _ := c.TextureSize(id)
		if w != want[n][0] || h != want[n][1] {
			t.Errorf("field %d storage %dx%d, want %dx%d", n, w, h, want[n][0], want[n][1])
		}
	}

	if err := in.SetAccess(name, gpu.AccessReadOnly); err != nil {
		t.Fatal(err)
	}
	if err := in.Map(name); err != nil {
		t.Fatalf("Map: %v", err)
	}
	if reg, mapped := c.Registrations(); reg != 1 || mapped != 1 {
		t.Errorf("Registrations() = %d, %d; want 1, 1", reg, mapped)
	}
	if err := in.Map(name); !errors.Is(err, gpu.ErrInteropState) {
		t.Errorf("second Map = %v, want ErrInteropState", err)
	}
	if err := in.SetAccess(name, gpu.AccessReadWrite); !errors.Is(err, gpu.ErrInteropState) {
		t.Errorf("SetAccess while mapped = %v, want ErrInteropState", err)
	}
	if err := in.Unregister(name); !errors.Is(err, gpu.ErrInteropState) {
		t.Errorf("Unregister while mapped = %v, want ErrInteropState", err)
	}
	if err := in.Unmap(name); err != nil {
		t.Fatal(err)
	}
	if err := in.Unmap(name); !errors.Is(err, gpu.ErrInteropState) {
		t.Errorf("second Unmap = %v, want ErrInteropState", err)
	}
	if err := in.Unregister(name); err != nil {
		t.Fatal(err)
	}
	if v := c.TextureView(ids[0]); v != nil {
		t.Error("unregister kept field storage")
	}

	if _, err := in.RegisterVideoSurface(s, gpu.TargetRectangle, ids); err != nil {
		t.Fatal(err)
	}
	if err := in.Fini(); err != nil {
		t.Fatalf("Fini: %v", err)
	}
	if reg, _ := c.Registrations(); reg != 0 {
		t.Errorf("%d registrations after Fini", reg)
	}
	if err := in.Fini(); !errors.Is(err, gpu.ErrInteropState) {
		t.Errorf("second Fini = %v, want ErrInteropState", err)
	}
}

func TestInteropMapReadFailure(t *testing.T) {
	c := newTestContext(t)
	dev := devicetest.New()
	s := dev.AddSurface(devicetest.NewSurface(device.Chroma420, 4, 4, devicetest.RowPattern))
	in := c.Interop()
	if err := in.Init(dev.Handle(), dev); err != nil {
		t.Fatal(err)
	}
	ids, _ := c.GenTextures(gpu.TargetRectangle, 4)
	name, err := in.RegisterVideoSurface(s, gpu.TargetRectangle, ids)
	if err != nil {
		t.Fatal(err)
	}

	dev.FailNext(devicetest.OpGetBits, device.StatusError)
	if err := in.Map(name); err == nil {
		t.Fatal("Map should fail when the surface cannot be read")
	}
	if _, mapped := c.Registrations(); mapped != 0 {
		t.Error("failed Map left the surface mapped")
	}

	// Write-discard access skips the read.
	dev.FailNext(devicetest.OpGetBits, device.StatusError)
	if err := in.SetAccess(name, gpu.AccessWriteDiscard); err != nil {
		t.Fatal(err)
	}
	if err := in.Map(name); err != nil {
		t.Errorf("write-discard Map = %v", err)
	}
}

func TestWeaveShaderCompiles(t *testing.T) {
	if weaveShaderWGSL == "" {
		t.Fatal("weave shader source is empty")
	}
	spirvBytes, err := naga.Compile(weaveShaderWGSL)
	skipIfNagaUnsupported(t, err)
	if err != nil {
		t.Fatalf("failed to compile weave shader: %v", err)
	}
	if len(spirvBytes) < 4 {
		t.Fatal("SPIR-V too short")
	}
	if magic := binary.LittleEndian.Uint32(spirvBytes); magic != 0x07230203 {
		t.Errorf("SPIR-V magic = %#x", magic)
	}
}

func TestEncodeVertices(t *testing.T) {
	vs := []gpu.Vertex{
		{Position: [2]float32{-1, 1}, TexCoord: [2]float32{0, 0}},
		{Position: [2]float32{1, -1}, TexCoord: [2]float32{4, 2.5}},
	}
	buf := encodeVertices(vs)
	if len(buf) != 2*weaveVertexStride {
		t.Fatalf("len = %d, want %d", len(buf), 2*weaveVertexStride)
	}
	f := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])) }
	got := []float32{f(0), f(4), f(8), f(12), f(16), f(20), f(24), f(28)}
	want := []float32{-1, 1, 0, 0, 1, -1, 4, 2.5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("float %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPassRenderer(t *testing.T) {
	c := newTestContext(t)
	dev := devicetest.New()
	s := dev.AddSurface(devicetest.NewSurface(device.Chroma420, 4, 4, devicetest.RowPattern))
	in := c.Interop()
	if err := in.Init(dev.Handle(), dev); err != nil {
		t.Fatal(err)
	}
	ids, _ := c.GenTextures(gpu.TargetRectangle, 4)
	if _, err := in.RegisterVideoSurface(s, gpu.TargetRectangle, ids); err != nil {
		t.Fatal(err)
	}

	r, err := c.NewPassRenderer()
	if err != nil {
		t.Fatalf("NewPassRenderer: %v", err)
	}
	defer r.Release()
	rt, err := c.NewRenderTarget(4, 4, gpu.FormatR8)
	if err != nil {
		t.Fatal(err)
	}
	quad := []gpu.Vertex{
		{Position: [2]float32{-1, 1}, TexCoord: [2]float32{0, 0}},
		{Position: [2]float32{-1, -1}, TexCoord: [2]float32{0, 2}},
		{Position: [2]float32{1, 1}, TexCoord: [2]float32{4, 0}},
		{Position: [2]float32{1, -1}, TexCoord: [2]float32{4, 2}},
	}
	pass := &gpu.Pass{
		Program:      gpu.ProgramFieldWeave,
		Target:       rt,
		Sources:      ids[:2],
		SourceTarget: gpu.TargetRectangle,
		Vertices:     quad,
	}
	err = r.Draw(pass)
	skipIfNagaUnsupported(t, err)
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	// The pipeline is cached per format and source target.
	if err := r.Draw(pass); err != nil {
		t.Fatalf("second Draw: %v", err)
	}
	if n := len(r.(*passRenderer).pipelines); n != 1 {
		t.Errorf("%d pipelines cached, want 1", n)
	}

	bad := []struct {
		name string
		edit func(p *gpu.Pass)
	}{
		{"unknown program", func(p *gpu.Pass) { p.Program = 9 }},
		{"one source", func(p *gpu.Pass) { p.Sources = ids[:1] }},
		{"three vertices", func(p *gpu.Pass) { p.Vertices = quad[:3] }},
		{"unknown target", func(p *gpu.Pass) { p.Target.ID = 99 }},
		{"wrong source target", func(p *gpu.Pass) { p.SourceTarget = gpu.Target2D }},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			p := *pass
			tt.edit(&p)
			if err := r.Draw(&p); !errors.Is(err, gpu.ErrInvalidPass) {
				t.Errorf("Draw() = %v, want ErrInvalidPass", err)
			}
		})
	}

	r.Release()
	r.Release()
	if err := r.Draw(pass); !errors.Is(err, gpu.ErrInvalidPass) {
		t.Errorf("Draw after Release = %v, want ErrInvalidPass", err)
	}
}

func TestDrawWithoutStorage(t *testing.T) {
	c := newTestContext(t)
	r, err := c.NewPassRenderer()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Release()
	ids, _ := c.GenTextures(gpu.TargetRectangle, 2)
	rt, _ := c.NewRenderTarget(2, 2, gpu.FormatR8)
	err = r.Draw(&gpu.Pass{
		Program:      gpu.ProgramFieldWeave,
		Target:       rt,
		Sources:      ids,
		SourceTarget: gpu.TargetRectangle,
		Vertices:     make([]gpu.Vertex, 4),
	})
	if !errors.Is(err, gpu.ErrInvalidPass) {
		t.Errorf("Draw() = %v, want ErrInvalidPass", err)
	}
}

func TestInteropEmptyOddField(t *testing.T) {
	c := newTestContext(t)
	dev := devicetest.New()
	in := c.Interop()
	if err := in.Init(dev.Handle(), dev); err != nil {
		t.Fatal(err)
	}

	for _, h := range []int{2, 3} {
		s := dev.AddSurface(devicetest.NewSurface(device.Chroma420, 4, h, devicetest.RowPattern))
		ids, _ := c.GenTextures(gpu.TargetRectangle, 4)
		name, err := in.RegisterVideoSurface(s, gpu.TargetRectangle, ids)
		if err != nil {
			t.Fatalf("4x%d: RegisterVideoSurface: %v", h, err)
		}
		// The 4x1 chroma plane has no odd rows.
		if c.TextureView(ids[3]) != nil {
			t.Errorf("4x%d: empty chroma field got storage", h)
		}
		if c.TextureView(ids[2]) == nil {
			t.Errorf("4x%d: chroma even field has no storage", h)
		}
		if err := in.Map(name); err != nil {
			t.Fatalf("4x%d: Map: %v", h, err)
		}

		r, err := c.NewPassRenderer()
		if err != nil {
			t.Fatal(err)
		}
		pass := func(height int) *gpu.Pass {
			rt, err := c.NewRenderTarget(2, height, gpu.FormatRG8)
			if err != nil {
				t.Fatal(err)
			}
			return &gpu.Pass{
				Program:      gpu.ProgramFieldWeave,
				Target:       rt,
				Sources:      ids[2:],
				SourceTarget: gpu.TargetRectangle,
				Vertices:     make([]gpu.Vertex, 4),
			}
		}
		err = r.Draw(pass(1))
		skipIfNagaUnsupported(t, err)
		if err != nil {
			t.Errorf("4x%d: one-row chroma Draw: %v", h, err)
		}
		if err := r.Draw(pass(2)); !errors.Is(err, gpu.ErrInvalidPass) {
			t.Errorf("4x%d: two-row Draw from an empty field = %v, want ErrInvalidPass", h, err)
		}
		r.Release()

		if err := in.Unmap(name); err != nil {
			t.Fatal(err)
		}
		if err := in.Unregister(name); err != nil {
			t.Fatal(err)
		}
	}
}
