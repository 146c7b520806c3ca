package hwdec

import (
	"log/slog"

	"github.com/gogpu/hwdec/device"
	"github.com/gogpu/hwdec/internal/reconstruct"
)

// Strategy selects how mapped surfaces are turned into planes.
type Strategy = reconstruct.Kind

const (
	// StrategyWeave renders luma and chroma planes from the field textures
	// with one pass each. Frames come out as FormatNV12.
	StrategyWeave = reconstruct.Weave

	// StrategyFused composites the surface into a single RGB texture with
	// the decoder's mixer. Not available; Create fails with
	// ErrCapabilityUnavailable.
	StrategyFused = reconstruct.Fused
)

// outputFormat returns the format of frames mapped with s.
func outputFormat(s Strategy) ImageFormat {
	if s == StrategyFused {
		return FormatRGB0
	}
	return FormatNV12
}

// Option configures a driver during creation.
//
// Example:
//
//	d := hwdec.NewVDPAU(g,
//	    hwdec.WithOpener(open),
//	    hwdec.WithProbing(true),
//	)
type Option func(*driverOptions)

// driverOptions holds optional configuration for a driver.
type driverOptions struct {
	probing  bool
	opener   device.Opener
	registry device.Registry
	strategy Strategy
	logger   *slog.Logger
}

// defaultOptions returns the default driver options.
func defaultOptions() driverOptions {
	return driverOptions{
		registry: device.Default(),
		strategy: StrategyWeave,
	}
}

// WithProbing makes Create reject degraded backends: decoder devices that
// run on a software emulation layer and GPU adapters of software type.
// Players set it while auto-selecting a driver so that a usable software
// path wins over a slow hardware one.
func WithProbing(probing bool) Option {
	return func(o *driverOptions) {
		o.probing = probing
	}
}

// WithOpener sets the function that opens the decoder device for the
// display of the GPU context. Without it Create fails.
func WithOpener(open device.Opener) Option {
	return func(o *driverOptions) {
		o.opener = open
	}
}

// WithDeviceRegistry sets the registry the opened device is published in.
// The default is device.Default().
func WithDeviceRegistry(r device.Registry) Option {
	return func(o *driverOptions) {
		o.registry = r
	}
}

// WithStrategy selects the reconstruction strategy.
func WithStrategy(s Strategy) Option {
	return func(o *driverOptions) {
		o.strategy = s
	}
}

// WithLogger sets the logger of the driver, overriding the package logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *driverOptions) {
		o.logger = l
	}
}
