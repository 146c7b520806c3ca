package reconstruct

import (
	"fmt"

	"github.com/gogpu/hwdec/gpu"
)

// planeFormats are the target formats of the luma and chroma planes.
var planeFormats = [2]gpu.Format{gpu.FormatR8, gpu.FormatRG8}

// weave reconstructs each plane with one field-weave pass.
type weave struct {
	gpu      gpu.Context
	renderer gpu.PassRenderer
	targets  [2]gpu.RenderTarget
}

func (w *weave) Kind() Kind { return Weave }

func (w *weave) Reconstruct(src *Source) ([]gpu.Plane, error) {
	if len(src.Textures) != 4 {
		return nil, fmt.Errorf("reconstruct: need 4 field textures, got %d", len(src.Textures))
	}
	if src.Width <= 0 || src.Height <= 0 {
		return nil, fmt.Errorf("reconstruct: invalid surface size %dx%d", src.Width, src.Height)
	}

	sx, sy := src.Chroma.Shift()
	planes := make([]gpu.Plane, 0, 2)
	for p := 0; p < 2; p++ {
		dw, dh := src.Width, src.Height
		if p == 1 {
			dw >>= sx
			dh >>= sy
		}
		if err := w.ensureTarget(p, dw, dh); err != nil {
			return nil, err
		}
		pass := &gpu.Pass{
			Program:      gpu.ProgramFieldWeave,
			Target:       w.targets[p],
			Sources:      src.Textures[p*2 : p*2+2],
			SourceTarget: src.Target,
			Vertices:     quadVertices(dw, dh),
		}
		if err := w.renderer.Draw(pass); err != nil {
			return nil, fmt.Errorf("reconstruct: plane %d pass: %w", p, err)
		}
		planes = append(planes, gpu.Plane{
			Texture: w.targets[p].Texture,
			Target:  gpu.Target2D,
			Width:   dw,
			Height:  dh,
		})
	}
	return planes, nil
}

// ensureTarget creates or recreates the target of plane p if its size or
// format differs from the request.
func (w *weave) ensureTarget(p, width, height int) error {
	rt := w.targets[p]
	if rt.Valid() && rt.Width == width && rt.Height == height && rt.Format == planeFormats[p] {
		return nil
	}
	if rt.Valid() {
		w.gpu.DeleteRenderTarget(rt)
		w.targets[p] = gpu.RenderTarget{}
	}
	rt, err := w.gpu.NewRenderTarget(width, height, planeFormats[p])
	if err != nil {
		return fmt.Errorf("reconstruct: plane %d target %dx%d: %w", p, width, height, err)
	}
	w.targets[p] = rt
	return nil
}

func (w *weave) Release() {
	for p := range w.targets {
		if w.targets[p].Valid() {
			w.gpu.DeleteRenderTarget(w.targets[p])
			w.targets[p] = gpu.RenderTarget{}
		}
	}
}

// quadVertices returns a full-viewport triangle strip for a dw×dh plane.
// Texel coordinates span the field textures, which are half the plane's
// height, so output row y samples field row y/2 and the fragment program
// picks the field from the row parity.
func quadVertices(dw, dh int) []gpu.Vertex {
	v := make([]gpu.Vertex, 4)
	for n := range v {
		v[n] = gpu.Vertex{
			Position: [2]float32{float32(n/2*2 - 1), float32(1 - n%2*2)},
			TexCoord: [2]float32{float32(n/2 * dw), float32(n%2*dh) / 2},
		}
	}
	return v
}
