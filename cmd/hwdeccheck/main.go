// Command hwdeccheck runs synthetic decoder surfaces through the VDPAU
// interop driver and checks that the reconstructed planes keep the row
// order of the source frame.
//
// Every source row is filled with a value derived from its index, so a
// swapped or duplicated field shows up as a wrong value in the output. The
// check runs on the CPU backend; -backend=noop runs the same sequence on a
// noop HAL device to exercise the GPU path without reading pixels back.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/hwdec"
	"github.com/gogpu/hwdec/backend/halgpu"
	"github.com/gogpu/hwdec/backend/soft"
	"github.com/gogpu/hwdec/device"
	"github.com/gogpu/hwdec/gpu"
)

// openGPU opens the GPU backend by name. Tests replace it to observe the
// release of the backend.
var openGPU = openBackend

func main() {
	os.Exit(realMain(os.Args[1:], os.Stderr))
}

// realMain runs the check and returns the process exit code. The GPU
// backend is released before it returns, on failure too.
func realMain(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("hwdeccheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		width    = fs.Int("width", 64, "frame width")
		height   = fs.Int("height", 48, "frame height")
		chroma   = fs.String("chroma", "420", "chroma subsampling: 420, 422 or 444")
		frames   = fs.Int("frames", 4, "frames to map")
		preempt  = fs.Int("preempt", 0, "preempt the decoder device every n frames (0 disables)")
		backend  = fs.String("backend", "soft", "GPU backend: soft or noop")
		output   = fs.String("output", "", "write the planes of the last frame as PNG files with this prefix")
		verbose  = fs.Bool("v", false, "debug logging")
		strategy = fs.String("strategy", "weave", "reconstruction strategy: weave or fused")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	hwdec.SetLogger(logger)

	cfg := checkConfig{
		width:   *width,
		height:  *height,
		frames:  *frames,
		preempt: *preempt,
		output:  *output,
	}
	var err error
	if cfg.chroma, err = parseChroma(*chroma); err != nil {
		return fail(logger, err)
	}
	if cfg.strategy, err = parseStrategy(*strategy); err != nil {
		return fail(logger, err)
	}

	g, closeGPU, err := openGPU(*backend)
	if err != nil {
		return fail(logger, err)
	}
	defer closeGPU()

	res, err := run(g, cfg, logger)
	if err != nil {
		return fail(logger, err)
	}
	logger.Info("hwdeccheck: done",
		slog.Int("frames", res.frames),
		slog.Int("verified", res.verified),
		slog.Int("recoveries", res.stats.Recoveries),
		slog.Int("reinits", res.stats.Reinits))
	return 0
}

func fail(logger *slog.Logger, err error) int {
	logger.Error("hwdeccheck: failed", slog.Any("err", err))
	return 1
}

func parseChroma(s string) (device.ChromaType, error) {
	switch s {
	case "420":
		return device.Chroma420, nil
	case "422":
		return device.Chroma422, nil
	case "444":
		return device.Chroma444, nil
	default:
		return 0, fmt.Errorf("unknown chroma %q", s)
	}
}

func parseStrategy(s string) (hwdec.Strategy, error) {
	switch s {
	case "weave":
		return hwdec.StrategyWeave, nil
	case "fused":
		return hwdec.StrategyFused, nil
	default:
		return 0, fmt.Errorf("unknown strategy %q", s)
	}
}

// openBackend returns a GPU context for name and a function releasing it.
func openBackend(name string) (gpu.Context, func(), error) {
	switch name {
	case "soft":
		return soft.New(soft.DefaultConfig()), func() {}, nil
	case "noop":
		instance, err := noop.API{}.CreateInstance(nil)
		if err != nil {
			return nil, nil, fmt.Errorf("create noop instance: %w", err)
		}
		openDev, err := instance.EnumerateAdapters(nil)[0].Adapter.Open(0, gputypes.DefaultLimits())
		if err != nil {
			instance.Destroy()
			return nil, nil, fmt.Errorf("open noop adapter: %w", err)
		}
		cfg := halgpu.DefaultConfig()
		cfg.Display = 1
		cfg.Label = "hwdeccheck"
		g, err := halgpu.New(openDev.Device, openDev.Queue, cfg)
		if err != nil {
			openDev.Device.Destroy()
			instance.Destroy()
			return nil, nil, err
		}
		return g, func() {
			g.Close()
			openDev.Device.Destroy()
			instance.Destroy()
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", name)
	}
}
