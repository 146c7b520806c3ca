package device

// SurfaceFromImage recovers the decoder surface handle carried by a decoded
// hardware image.
//
// Hardware images travel through the player as generic frames whose plane
// pointers are pointer-sized slots. The decoder stores its 32-bit surface id
// in the last slot instead of a real address, so the value must be
// reinterpreted rather than dereferenced. This is the only place in the
// module where a pointer-sized value becomes a decoder id; everything past
// this boundary is typed.
func SurfaceFromImage(plane uintptr) SurfaceHandle {
	return SurfaceHandle(uint32(plane))
}

// ImagePlane is the inverse of [SurfaceFromImage]. Decoders and tests use
// it to build hardware images.
func ImagePlane(s SurfaceHandle) uintptr {
	return uintptr(s)
}
