package hwdec

import (
	"sort"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/hwdec/gpu"
)

// DriverInfo describes a registered driver.
type DriverInfo struct {
	// Name is the name players select the driver by.
	Name string
	// API is the decoder API the driver maps surfaces of.
	API string
	// NativeFormat is the image format of decoded images the driver accepts.
	NativeFormat ImageFormat
	// New creates an uninitialized driver rendering with g.
	New func(g gpu.Context, opts ...Option) Driver
}

// drivers is the global driver table, ordered by preference.
var drivers = gpucontext.NewRegistry[DriverInfo](
	gpucontext.WithPriority(VDPAUName),
)

func init() {
	RegisterDriver(DriverInfo{
		Name:         VDPAUName,
		API:          VDPAUAPI,
		NativeFormat: FormatVDPAU,
		New: func(g gpu.Context, opts ...Option) Driver {
			return NewVDPAU(g, opts...)
		},
	})
}

// RegisterDriver adds info to the driver table, replacing a driver of the
// same name.
func RegisterDriver(info DriverInfo) {
	drivers.Register(info.Name, func() DriverInfo { return info })
}

// UnregisterDriver removes the named driver from the table.
func UnregisterDriver(name string) {
	drivers.Unregister(name)
}

// LookupDriver returns the named driver.
func LookupDriver(name string) (DriverInfo, bool) {
	if !drivers.Has(name) {
		return DriverInfo{}, false
	}
	return drivers.Get(name), true
}

// BestDriver returns the preferred registered driver.
func BestDriver() (DriverInfo, bool) {
	if drivers.Count() == 0 {
		return DriverInfo{}, false
	}
	return drivers.Best(), true
}

// DriverForFormat returns the preferred driver accepting images of format f.
func DriverForFormat(f ImageFormat) (DriverInfo, bool) {
	if best, ok := BestDriver(); ok && best.NativeFormat == f {
		return best, true
	}
	for _, name := range Drivers() {
		if info, ok := LookupDriver(name); ok && info.NativeFormat == f {
			return info, true
		}
	}
	return DriverInfo{}, false
}

// Drivers returns the names of all registered drivers, sorted.
func Drivers() []string {
	names := drivers.Available()
	sort.Strings(names)
	return names
}
