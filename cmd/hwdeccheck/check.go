package main

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/hwdec"
	"github.com/gogpu/hwdec/backend/soft"
	"github.com/gogpu/hwdec/device"
	"github.com/gogpu/hwdec/device/devicetest"
	"github.com/gogpu/hwdec/gpu"
)

type checkConfig struct {
	width    int
	height   int
	chroma   device.ChromaType
	strategy hwdec.Strategy
	frames   int
	preempt  int
	output   string
}

type checkResult struct {
	frames   int
	verified int
	stats    hwdec.Stats
}

// pixelReader is implemented by backends that can read texture contents
// back to the CPU.
type pixelReader interface {
	ReadTexture(id gpu.TextureID) (width, height int, format gpu.Format, data []byte, err error)
}

// run maps cfg.frames row-pattern surfaces and verifies every frame the
// backend can read back.
func run(g gpu.Context, cfg checkConfig, logger *slog.Logger) (checkResult, error) {
	var res checkResult
	if cfg.width <= 0 || cfg.height <= 0 {
		return res, fmt.Errorf("invalid frame size %dx%d", cfg.width, cfg.height)
	}

	dev := devicetest.New()
	d := hwdec.NewVDPAU(g,
		hwdec.WithOpener(dev.Opener()),
		hwdec.WithDeviceRegistry(device.NewDeviceList()),
		hwdec.WithStrategy(cfg.strategy),
		hwdec.WithLogger(logger),
	)
	if err := d.Create(); err != nil {
		return res, fmt.Errorf("create driver: %w", err)
	}
	defer d.Destroy()

	params := hwdec.FrameParams{Width: cfg.width, Height: cfg.height, Format: hwdec.FormatVDPAU}
	if err := d.Reinit(&params); err != nil {
		return res, fmt.Errorf("reinit: %w", err)
	}
	logger.Info("hwdeccheck: configured",
		slog.Int("width", cfg.width),
		slog.Int("height", cfg.height),
		slog.String("chroma", cfg.chroma.String()),
		slog.String("output", params.Format.String()))

	reader, canRead := g.(pixelReader)
	for i := 0; i < cfg.frames; i++ {
		if cfg.preempt > 0 && i > 0 && i%cfg.preempt == 0 {
			logger.Info("hwdeccheck: preempting device", slog.Int("frame", i))
			dev.Preempt()
		}
		s := dev.AddSurface(devicetest.NewSurface(cfg.chroma, cfg.width, cfg.height, devicetest.RowPattern))
		img := &hwdec.HWImage{Format: hwdec.FormatVDPAU, Width: cfg.width, Height: cfg.height}
		img.Planes[3] = device.ImagePlane(s)

		frame, err := d.Map(img)
		if err != nil {
			return res, fmt.Errorf("frame %d: map: %w", i, err)
		}
		res.frames++
		if canRead {
			if err := verifyFrame(reader, frame); err != nil {
				return res, fmt.Errorf("frame %d: %w", i, err)
			}
			res.verified++
			if cfg.output != "" && i == cfg.frames-1 {
				if err := writePlanes(reader, frame, cfg.output); err != nil {
					return res, err
				}
			}
		}
		d.Unmap()
	}
	res.stats = d.Stats()
	return res, nil
}

// errRowOrder reports a reconstructed sample that came from the wrong
// source row.
var errRowOrder = errors.New("row order broken")

// verifyFrame checks every sample of the luma and chroma planes against
// the row pattern of the source surface.
func verifyFrame(r pixelReader, frame *hwdec.Frame) error {
	if len(frame.Planes) != 2 {
		return fmt.Errorf("got %d planes, want 2", len(frame.Planes))
	}
	for n, p := range frame.Planes {
		w, h, format, data, err := r.ReadTexture(p.Texture)
		if err != nil {
			return fmt.Errorf("plane %d: %w", n, err)
		}
		if w != p.Width || h != p.Height {
			return fmt.Errorf("plane %d: texture %dx%d, plane %dx%d", n, w, h, p.Width, p.Height)
		}
		bpp := format.BytesPerTexel()
		for y := 0; y < h; y++ {
			for x := 0; x < w*bpp; x++ {
				want := devicetest.RowPattern(n, x, y)
				if got := data[y*w*bpp+x]; got != want {
					return fmt.Errorf("%w: plane %d byte %d row %d = %d, want %d", errRowOrder, n, x, y, got, want)
				}
			}
		}
	}
	return nil
}

// writePlanes writes the planes of frame as <prefix>-luma.png and
// <prefix>-chroma.png. The chroma plane is upsampled to the luma size so
// the two images line up pixel for pixel.
func writePlanes(r pixelReader, frame *hwdec.Frame, prefix string) error {
	names := []string{"luma", "chroma"}
	var size image.Rectangle
	for n, p := range frame.Planes {
		w, h, format, data, err := r.ReadTexture(p.Texture)
		if err != nil {
			return fmt.Errorf("read plane %d: %w", n, err)
		}
		img := planeImage(w, h, format, data)
		if n == 0 {
			size = img.Bounds()
		} else if img.Bounds() != size {
			img = upsample(img, size)
		}
		path := fmt.Sprintf("%s-%s.png", prefix, names[n])
		if err := savePNG(path, img); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

// upsample scales src to size with nearest-neighbor sampling, repeating
// every chroma sample over the luma samples it covers.
func upsample(src image.Image, size image.Rectangle) image.Image {
	dst := image.NewNRGBA(size)
	xdraw.NearestNeighbor.Scale(dst, size, src, src.Bounds(), xdraw.Src, nil)
	return dst
}

// planeImage converts plane texels to an image. Two-channel chroma texels
// map Cb to red and Cr to green.
func planeImage(w, h int, format gpu.Format, data []byte) image.Image {
	rect := image.Rect(0, 0, w, h)
	if format == gpu.FormatR8 {
		img := image.NewGray(rect)
		copy(img.Pix, data)
		return img
	}
	img := image.NewNRGBA(rect)
	bpp := format.BytesPerTexel()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			texel := data[(y*w+x)*bpp:]
			c := color.NRGBA{A: 255}
			c.R = texel[0]
			if bpp > 1 {
				c.G = texel[1]
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	return png.Encode(f, img)
}

var _ pixelReader = (*soft.Context)(nil)
