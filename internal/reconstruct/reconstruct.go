// Package reconstruct turns the field textures of a mapped decoder surface
// into progressive output planes.
package reconstruct

import (
	"errors"
	"fmt"

	"github.com/gogpu/hwdec/device"
	"github.com/gogpu/hwdec/gpu"
)

// ErrStrategyUnavailable is returned by New for strategies that exist by
// name only.
var ErrStrategyUnavailable = errors.New("reconstruct: strategy not available")

// Kind selects a reconstruction strategy.
type Kind uint8

const (
	// Weave renders each plane in one pass that interleaves the even and
	// odd field textures row by row.
	Weave Kind = iota
	// Fused would composite the whole surface into the output surface with
	// the decoder's mixer and expose that single RGB texture. Not
	// implemented.
	Fused
)

// String returns the name of the strategy.
func (k Kind) String() string {
	switch k {
	case Weave:
		return "weave"
	case Fused:
		return "fused"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Source describes a mapped surface.
type Source struct {
	// Textures are the field textures in the order luma even, luma odd,
	// chroma even, chroma odd.
	Textures []gpu.TextureID
	Target   gpu.TextureTarget
	Chroma   device.ChromaType
	Width    int
	Height   int
}

// Strategy reconstructs planes from a mapped surface.
type Strategy interface {
	Kind() Kind

	// Reconstruct renders src into the strategy's plane targets and
	// returns them. The planes stay valid until the next call or Release.
	Reconstruct(src *Source) ([]gpu.Plane, error)

	// Release deletes every GPU object the strategy owns. It is safe to
	// call more than once.
	Release()
}

// Available reports whether New can build a strategy of kind k.
func Available(k Kind) error {
	switch k {
	case Weave:
		return nil
	case Fused:
		return fmt.Errorf("%w: %v", ErrStrategyUnavailable, k)
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrStrategyUnavailable, uint8(k))
	}
}

// New returns a strategy of kind k rendering with g and r.
func New(k Kind, g gpu.Context, r gpu.PassRenderer) (Strategy, error) {
	if err := Available(k); err != nil {
		return nil, err
	}
	return &weave{gpu: g, renderer: r}, nil
}
