package gpu

import (
	"fmt"

	"github.com/gogpu/hwdec/device"
)

// FieldTexture is the shape of one field texture of a registered surface.
type FieldTexture struct {
	Width  int
	Height int
	Format Format
}

// FieldLayout returns the shapes of the four field textures a surface with
// params exposes: luma even, luma odd, chroma even, chroma odd. Width is in
// texels. An odd row count gives the even field the extra row.
func FieldLayout(params device.SurfaceParams) [4]FieldTexture {
	w, h := int(params.Width), int(params.Height)
	cw, ch := params.ChromaSize()
	return [4]FieldTexture{
		{Width: w, Height: (h + 1) / 2, Format: FormatR8},
		{Width: w, Height: h / 2, Format: FormatR8},
		{Width: int(cw), Height: (int(ch) + 1) / 2, Format: FormatRG8},
		{Width: int(cw), Height: int(ch) / 2, Format: FormatRG8},
	}
}

// SplitFields splits rows of rowBytes bytes, stored pitch bytes apart in src,
// into tightly packed even and odd fields.
func SplitFields(src []byte, pitch, rowBytes, rows int) (even, odd []byte, err error) {
	if rows < 0 || rowBytes < 0 || pitch < rowBytes {
		return nil, nil, fmt.Errorf("gpu: split fields: pitch %d, row %d bytes, %d rows", pitch, rowBytes, rows)
	}
	if rows > 0 && len(src) < pitch*(rows-1)+rowBytes {
		return nil, nil, fmt.Errorf("gpu: split fields: %d bytes cannot hold %d rows of pitch %d", len(src), rows, pitch)
	}
	even = make([]byte, 0, (rows+1)/2*rowBytes)
	odd = make([]byte, 0, rows/2*rowBytes)
	for y := 0; y < rows; y++ {
		row := src[y*pitch : y*pitch+rowBytes]
		if y%2 == 0 {
			even = append(even, row...)
		} else {
			odd = append(odd, row...)
		}
	}
	return even, odd, nil
}

// ReadFields reads surface s through fns and splits both planes into
// fields in FieldLayout order. Copy-based interop implementations call it on
// every map.
func ReadFields(fns device.Functions, s device.SurfaceHandle, params device.SurfaceParams) ([4][]byte, error) {
	var fields [4][]byte
	w, h := int(params.Width), int(params.Height)
	cw, ch := params.ChromaSize()
	cpitch := int(cw) * 2

	luma := make([]byte, w*h)
	cbcr := make([]byte, cpitch*int(ch))
	if err := fns.VideoSurfaceGetBitsYCbCr(s, device.YCbCrFormatNV12,
		[][]byte{luma, cbcr}, []uint32{uint32(w), uint32(cpitch)}); err != nil {
		return fields, fmt.Errorf("gpu: read surface %#x: %w", uint32(s), err)
	}

	var err error
	if fields[0], fields[1], err = SplitFields(luma, w, w, h); err != nil {
		return fields, err
	}
	if fields[2], fields[3], err = SplitFields(cbcr, cpitch, cpitch, int(ch)); err != nil {
		return fields, err
	}
	return fields, nil
}
