package hwdec

import (
	"testing"

	"github.com/gogpu/hwdec/backend/soft"
	"github.com/gogpu/hwdec/device"
	"github.com/gogpu/hwdec/device/devicetest"
	"github.com/gogpu/hwdec/gpu"
)

// newTestDriver creates a driver on a soft GPU context and a fake decoder
// device published in a private device list.
func newTestDriver(t *testing.T, opts ...Option) (*VDPAU, *soft.Context, *devicetest.Device, *device.DeviceList) {
	t.Helper()
	g := soft.New(soft.DefaultConfig())
	dev := devicetest.New()
	list := device.NewDeviceList()
	opts = append([]Option{WithOpener(dev.Opener()), WithDeviceRegistry(list)}, opts...)
	d := NewVDPAU(g, opts...)
	if err := d.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return d, g, dev, list
}

// newDriverOn creates a driver on g with a fresh fake decoder device.
func newDriverOn(t *testing.T, g gpu.Context, opts ...Option) (*VDPAU, *devicetest.Device) {
	t.Helper()
	dev := devicetest.New()
	opts = append([]Option{WithOpener(dev.Opener()), WithDeviceRegistry(device.NewDeviceList())}, opts...)
	d := NewVDPAU(g, opts...)
	if err := d.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return d, dev
}

// newImage adds a w×h 4:2:0 row-pattern surface to dev and wraps it in a
// hardware image.
func newImage(dev *devicetest.Device, w, h int) *HWImage {
	s := dev.AddSurface(devicetest.NewSurface(device.Chroma420, w, h, devicetest.RowPattern))
	return imageOf(s, w, h)
}

func imageOf(s device.SurfaceHandle, w, h int) *HWImage {
	img := &HWImage{Format: FormatVDPAU, Width: w, Height: h}
	img.Planes[3] = device.ImagePlane(s)
	return img
}

// reinit configures d for w×h frames.
func reinit(t *testing.T, d *VDPAU, w, h int) {
	t.Helper()
	params := FrameParams{Width: w, Height: h, Format: FormatVDPAU}
	if err := d.Reinit(&params); err != nil {
		t.Fatalf("Reinit: %v", err)
	}
}

// checkZeroLive fails unless g and dev hold no live objects.
func checkZeroLive(t *testing.T, g *soft.Context, dev *devicetest.Device) {
	t.Helper()
	if s := g.Live(); !s.Zero() {
		t.Errorf("live GPU objects: %+v", s)
	}
	if n := dev.LiveOutputSurfaces(); n != 0 {
		t.Errorf("live output surfaces: %d", n)
	}
	if n := dev.LiveMixers(); n != 0 {
		t.Errorf("live mixers: %d", n)
	}
}
