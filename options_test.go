package hwdec

import (
	"log/slog"
	"testing"

	"github.com/gogpu/hwdec/device"
	"github.com/gogpu/hwdec/device/devicetest"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.probing {
		t.Error("probing should be off by default")
	}
	if o.opener != nil {
		t.Error("opener should be nil by default")
	}
	if o.registry != device.Default() {
		t.Error("registry should default to the process-wide device list")
	}
	if o.strategy != StrategyWeave {
		t.Errorf("strategy = %v, want weave", o.strategy)
	}
}

func TestOptionsApply(t *testing.T) {
	dev := devicetest.New()
	list := device.NewDeviceList()
	logger := slog.Default()

	d := NewVDPAU(nil,
		WithProbing(true),
		WithOpener(dev.Opener()),
		WithDeviceRegistry(list),
		WithStrategy(StrategyFused),
		WithLogger(logger),
	)
	if !d.opts.probing {
		t.Error("WithProbing not applied")
	}
	if d.opts.opener == nil {
		t.Error("WithOpener not applied")
	}
	if d.opts.registry != list {
		t.Error("WithDeviceRegistry not applied")
	}
	if d.opts.strategy != StrategyFused {
		t.Error("WithStrategy not applied")
	}
	if d.log() != logger {
		t.Error("WithLogger not applied")
	}
}

func TestOutputFormat(t *testing.T) {
	if f := outputFormat(StrategyWeave); f != FormatNV12 {
		t.Errorf("outputFormat(weave) = %v, want nv12", f)
	}
	if f := outputFormat(StrategyFused); f != FormatRGB0 {
		t.Errorf("outputFormat(fused) = %v, want rgb0", f)
	}
}
