package soft

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/hwdec/device"
	"github.com/gogpu/hwdec/device/devicetest"
	"github.com/gogpu/hwdec/gpu"
)

func TestGenAndDeleteTextures(t *testing.T) {
	c := New(DefaultConfig())
	ids, err := c.GenTextures(gpu.TargetRectangle, 4)
	if err != nil {
		t.Fatalf("GenTextures: %v", err)
	}
	if len(ids) != 4 {
		t.Fatalf("got %d names, want 4", len(ids))
	}
	if target, ok := c.TextureTarget(ids[0]); !ok || target != gpu.TargetRectangle {
		t.Errorf("TextureTarget() = %v, %v; want rectangle", target, ok)
	}
	if got := c.Live().Textures; got != 4 {
		t.Errorf("Live().Textures = %d, want 4", got)
	}
	c.DeleteTextures(ids)
	c.DeleteTextures(ids)
	if !c.Live().Zero() {
		t.Errorf("Live() = %+v, want zero", c.Live())
	}
}

func TestRenderTargetLifecycle(t *testing.T) {
	c := New(DefaultConfig())
	rt, err := c.NewRenderTarget(4, 2, gpu.FormatRG8)
	if err != nil {
		t.Fatalf("NewRenderTarget: %v", err)
	}
	if !rt.Valid() || rt.Width != 4 || rt.Height != 2 || rt.Format != gpu.FormatRG8 {
		t.Errorf("NewRenderTarget() = %+v", rt)
	}
	w, h, f, data, err := c.ReadTexture(rt.Texture)
	if err != nil || w != 4 || h != 2 || f != gpu.FormatRG8 || len(data) != 16 {
		t.Errorf("ReadTexture() = %d, %d, %v, %d bytes, %v", w, h, f, len(data), err)
	}

	// Target textures are owned by the target, not by DeleteTextures.
	c.DeleteTextures([]gpu.TextureID{rt.Texture})
	if c.Live().RenderTargets != 1 {
		t.Fatal("DeleteTextures removed a render target texture")
	}
	c.DeleteRenderTarget(rt)
	c.DeleteRenderTarget(rt)
	if !c.Live().Zero() {
		t.Errorf("Live() = %+v, want zero", c.Live())
	}

	if _, err := c.NewRenderTarget(0, 2, gpu.FormatR8); err == nil {
		t.Error("expected error for zero width")
	}
}

func TestFaultInjectionIsOneShot(t *testing.T) {
	c := New(DefaultConfig())
	c.FailNext(OpGenTextures, nil)
	if _, err := c.GenTextures(gpu.TargetRectangle, 1); !errors.Is(err, ErrInjected) {
		t.Fatalf("GenTextures err = %v, want ErrInjected", err)
	}
	if _, err := c.GenTextures(gpu.TargetRectangle, 1); err != nil {
		t.Fatalf("second GenTextures: %v", err)
	}
}

func TestFieldWeavePass(t *testing.T) {
	c := New(DefaultConfig())
	ids, err := c.GenTextures(gpu.TargetRectangle, 2)
	if err != nil {
		t.Fatalf("GenTextures: %v", err)
	}
	// Two 3×2 fields: even rows hold 0 and 2, odd rows hold 1 and 3.
	if err := c.WriteTexture(ids[0], 3, 2, gpu.FormatR8, []byte{0, 0, 0, 2, 2, 2}); err != nil {
		t.Fatal(err)
	}
	if err := c.WriteTexture(ids[1], 3, 2, gpu.FormatR8, []byte{1, 1, 1, 3, 3, 3}); err != nil {
		t.Fatal(err)
	}
	rt, err := c.NewRenderTarget(3, 4, gpu.FormatR8)
	if err != nil {
		t.Fatalf("NewRenderTarget: %v", err)
	}
	r, err := c.NewPassRenderer()
	if err != nil {
		t.Fatalf("NewPassRenderer: %v", err)
	}
	defer r.Release()

	err = r.Draw(&gpu.Pass{
		Program:      gpu.ProgramFieldWeave,
		Target:       rt,
		Sources:      ids,
		SourceTarget: gpu.TargetRectangle,
		Vertices: []gpu.Vertex{
			{Position: [2]float32{-1, 1}, TexCoord: [2]float32{0, 0}},
			{Position: [2]float32{-1, -1}, TexCoord: [2]float32{0, 2}},
			{Position: [2]float32{1, 1}, TexCoord: [2]float32{3, 0}},
			{Position: [2]float32{1, -1}, TexCoord: [2]float32{3, 2}},
		},
	})
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	_, _, _, data, _ := c.ReadTexture(rt.Texture)
	want := []byte{0, 0, 0, 1, 1, 1, 2, 2, 2, 3, 3, 3}
	if !bytes.Equal(data, want) {
		t.Errorf("woven rows = %v, want %v", data, want)
	}
	if c.Live().PassesRendered != 1 {
		t.Errorf("PassesRendered = %d, want 1", c.Live().PassesRendered)
	}
}

func TestDrawRejectsBadPass(t *testing.T) {
	c := New(DefaultConfig())
	ids, _ := c.GenTextures(gpu.Target2D, 2)
	rt, _ := c.NewRenderTarget(2, 2, gpu.FormatR8)
	r, _ := c.NewPassRenderer()
	quad := []gpu.Vertex{
		{Position: [2]float32{-1, 1}}, {Position: [2]float32{-1, -1}},
		{Position: [2]float32{1, 1}}, {Position: [2]float32{1, -1}},
	}

	tests := []struct {
		name string
		pass gpu.Pass
	}{
		{"no program", gpu.Pass{Target: rt, Sources: ids, SourceTarget: gpu.Target2D, Vertices: quad}},
		{"one source", gpu.Pass{Program: gpu.ProgramFieldWeave, Target: rt, Sources: ids[:1], SourceTarget: gpu.Target2D, Vertices: quad}},
		{"unknown target", gpu.Pass{Program: gpu.ProgramFieldWeave, Sources: ids, SourceTarget: gpu.Target2D, Vertices: quad}},
		{"target mismatch", gpu.Pass{Program: gpu.ProgramFieldWeave, Target: rt, Sources: ids, SourceTarget: gpu.TargetRectangle, Vertices: quad}},
	}
	for _, tt := range tests {
		if err := r.Draw(&tt.pass); !errors.Is(err, gpu.ErrInvalidPass) {
			t.Errorf("%s: err = %v, want ErrInvalidPass", tt.name, err)
		}
	}

	r.Release()
	if err := r.Draw(&gpu.Pass{}); err == nil {
		t.Error("Draw after Release should fail")
	}
}

func newInterop(t *testing.T) (*Context, *devicetest.Device, []gpu.TextureID) {
	t.Helper()
	c := New(DefaultConfig())
	dev := devicetest.New()
	if err := c.Interop().Init(dev.Handle(), dev.Functions()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ids, err := c.GenTextures(gpu.TargetRectangle, 4)
	if err != nil {
		t.Fatalf("GenTextures: %v", err)
	}
	return c, dev, ids
}

func TestInteropMapCopiesFields(t *testing.T) {
	c, dev, ids := newInterop(t)
	surf := devicetest.NewSurface(device.Chroma420, 4, 4, devicetest.RowPattern)
	h := dev.AddSurface(surf)

	api := c.Interop()
	name, err := api.RegisterVideoSurface(h, gpu.TargetRectangle, ids)
	if err != nil {
		t.Fatalf("RegisterVideoSurface: %v", err)
	}
	if err := api.SetAccess(name, gpu.AccessReadOnly); err != nil {
		t.Fatalf("SetAccess: %v", err)
	}
	if err := api.Map(name); err != nil {
		t.Fatalf("Map: %v", err)
	}

	regs := c.Registrations()
	if len(regs) != 1 || !regs[0].Mapped || regs[0].Access != gpu.AccessReadOnly || regs[0].Surface != h {
		t.Fatalf("Registrations() = %+v", regs)
	}

	w, hh, f, data, _ := c.ReadTexture(ids[1])
	if w != 4 || hh != 2 || f != gpu.FormatR8 {
		t.Errorf("luma odd field is %dx%d %v, want 4x2 r8", w, hh, f)
	}
	if want := []byte{1, 1, 1, 1, 3, 3, 3, 3}; !bytes.Equal(data, want) {
		t.Errorf("luma odd field = %v, want %v", data, want)
	}

	if err := api.Unregister(name); !errors.Is(err, gpu.ErrInteropState) {
		t.Errorf("Unregister while mapped: err = %v, want ErrInteropState", err)
	}
	if err := api.Unmap(name); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	if err := api.Unregister(name); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if err := api.Fini(); err != nil {
		t.Fatalf("Fini: %v", err)
	}
	c.DeleteTextures(ids)
	if !c.Live().Zero() {
		t.Errorf("Live() = %+v, want zero", c.Live())
	}
}

func TestInteropRegisterErrors(t *testing.T) {
	c, dev, ids := newInterop(t)
	h := dev.AddSurface(devicetest.NewSurface(device.Chroma420, 2, 2, devicetest.RowPattern))
	api := c.Interop()

	if _, err := api.RegisterVideoSurface(h, gpu.TargetRectangle, ids[:3]); err == nil {
		t.Error("expected error for 3 textures")
	}
	if _, err := api.RegisterVideoSurface(h, gpu.Target2D, ids); err == nil {
		t.Error("expected error for target mismatch")
	}
	if _, err := api.RegisterVideoSurface(0x9999, gpu.TargetRectangle, ids); !errors.Is(err, device.StatusInvalidHandle) {
		t.Errorf("unknown surface: err = %v, want StatusInvalidHandle", err)
	}
	if err := api.Init(dev.Handle(), dev.Functions()); !errors.Is(err, gpu.ErrInteropState) {
		t.Errorf("double Init: err = %v, want ErrInteropState", err)
	}
}

func TestInteropFiniReleasesRegistrations(t *testing.T) {
	c, dev, ids := newInterop(t)
	h := dev.AddSurface(devicetest.NewSurface(device.Chroma420, 2, 2, devicetest.RowPattern))
	api := c.Interop()
	name, err := api.RegisterVideoSurface(h, gpu.TargetRectangle, ids)
	if err != nil {
		t.Fatalf("RegisterVideoSurface: %v", err)
	}
	if err := api.Map(name); err != nil {
		t.Fatalf("Map: %v", err)
	}
	if err := api.Fini(); err != nil {
		t.Fatalf("Fini: %v", err)
	}
	if s := c.Live(); s.Registrations != 0 || s.Mapped != 0 || s.InteropActive {
		t.Errorf("Live() after Fini = %+v", s)
	}
	if _, err := api.RegisterVideoSurface(h, gpu.TargetRectangle, ids); !errors.Is(err, gpu.ErrInteropState) {
		t.Errorf("register after Fini: err = %v, want ErrInteropState", err)
	}
}
