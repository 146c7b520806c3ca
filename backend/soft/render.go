package soft

import (
	"fmt"
	"math"

	"github.com/gogpu/hwdec/gpu"
)

type passRenderer struct {
	c        *Context
	released bool
}

func (r *passRenderer) Release() {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.released {
		return
	}
	r.released = true
	r.c.renderers--
}

type vec2 struct{ x, y float64 }

func (a vec2) sub(b vec2) vec2 { return vec2{a.x - b.x, a.y - b.y} }

// Draw rasterizes the pass quad. The quad must be a parallelogram given as
// a triangle strip; texel coordinates are interpolated affinely and fetched
// with nearest filtering and clamp-to-edge.
func (r *passRenderer) Draw(p *gpu.Pass) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.released {
		return fmt.Errorf("%w: renderer released", gpu.ErrInvalidPass)
	}
	if err := r.c.takeFault(OpDraw); err != nil {
		return err
	}
	if p.Program != gpu.ProgramFieldWeave {
		return fmt.Errorf("%w: unknown program %d", gpu.ErrInvalidPass, p.Program)
	}
	if len(p.Sources) != 2 || len(p.Vertices) != 4 {
		return fmt.Errorf("%w: %d sources, %d vertices", gpu.ErrInvalidPass, len(p.Sources), len(p.Vertices))
	}
	dstID, ok := r.c.targets[p.Target.ID]
	if !ok {
		return fmt.Errorf("%w: unknown render target %d", gpu.ErrInvalidPass, p.Target.ID)
	}
	dst := r.c.textures[dstID]
	var src [2]*texture
	for i, id := range p.Sources {
		t, ok := r.c.textures[id]
		if !ok {
			return fmt.Errorf("%w: %d", gpu.ErrUnknownTexture, id)
		}
		if t.target != p.SourceTarget {
			return fmt.Errorf("%w: source %d is %v, pass samples %v", gpu.ErrInvalidPass, id, t.target, p.SourceTarget)
		}
		src[i] = t
	}

	w, h := float64(dst.width), float64(dst.height)
	var pos, tc [4]vec2
	for i, v := range p.Vertices {
		pos[i] = vec2{(float64(v.Position[0]) + 1) / 2 * w, (1 - float64(v.Position[1])) / 2 * h}
		tc[i] = vec2{float64(v.TexCoord[0]), float64(v.TexCoord[1])}
	}
	e1, e2 := pos[1].sub(pos[0]), pos[2].sub(pos[0])
	if far := pos[3].sub(pos[1]).sub(e2); math.Abs(far.x) > 1e-3 || math.Abs(far.y) > 1e-3 {
		return fmt.Errorf("%w: quad is not a parallelogram", gpu.ErrInvalidPass)
	}
	det := e1.x*e2.y - e1.y*e2.x
	if det == 0 {
		return fmt.Errorf("%w: degenerate quad", gpu.ErrInvalidPass)
	}
	t1, t2 := tc[1].sub(tc[0]), tc[2].sub(tc[0])

	bpp := dst.format.BytesPerTexel()
	for y := 0; y < dst.height; y++ {
		fy := float64(y) + 0.5
		for x := 0; x < dst.width; x++ {
			fx := float64(x) + 0.5
			d := vec2{fx - pos[0].x, fy - pos[0].y}
			a := (d.x*e2.y - d.y*e2.x) / det
			b := (e1.x*d.y - e1.y*d.x) / det
			if a < 0 || a > 1 || b < 0 || b > 1 {
				continue
			}
			coord := vec2{tc[0].x + a*t1.x + b*t2.x, tc[0].y + a*t1.y + b*t2.y}

			s := src[0]
			if _, frac := math.Modf(fy / 2); frac >= 0.5 {
				s = src[1]
			}
			out := dst.data[(y*dst.width+x)*bpp : (y*dst.width+x+1)*bpp]
			clear(out)
			copy(out, fetch(s, coord, p.SourceTarget))
		}
	}
	r.c.draws++
	return nil
}

// fetch returns the texel at coord with nearest filtering and clamp-to-edge.
// Rectangle textures take texel coordinates, 2D textures normalized ones.
func fetch(t *texture, coord vec2, target gpu.TextureTarget) []byte {
	if t.width == 0 || t.height == 0 {
		return nil
	}
	if target == gpu.Target2D {
		coord = vec2{coord.x * float64(t.width), coord.y * float64(t.height)}
	}
	x := clampInt(int(math.Floor(coord.x)), 0, t.width-1)
	y := clampInt(int(math.Floor(coord.y)), 0, t.height-1)
	bpp := t.format.BytesPerTexel()
	off := (y*t.width + x) * bpp
	return t.data[off : off+bpp]
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
