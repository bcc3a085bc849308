package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	xdraw "golang.org/x/image/draw"
)

// maxDigitalZoom is the magnification applied at zoom level 1.
const maxDigitalZoom = 4.0

type PatternConfig struct {
	Width       int
	Height      int
	FPS         int
	JPEGQuality int
}

// Pattern is a synthetic camera: moving color bars with a timestamp overlay.
// Zoom is applied digitally by cropping around the center and scaling back up.
type Pattern struct {
	l   *slog.Logger
	cfg PatternConfig

	zoom  atomic.Uint64
	count uint64

	text *overlay
}

func NewPattern(l *slog.Logger, cfg PatternConfig) (*Pattern, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid pattern size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = jpeg.DefaultQuality
	}

	text, err := newOverlay(14, 72)
	if err != nil {
		return nil, err
	}

	return &Pattern{l: l, cfg: cfg, text: text}, nil
}

func (p *Pattern) SetZoom(level float64) error {
	if math.IsNaN(level) || level < 0 || level > 1 {
		return fmt.Errorf("zoom level %v out of range", level)
	}
	p.zoom.Store(math.Float64bits(level))
	p.l.Debug("pattern zoom", "level", level)
	return nil
}

func (p *Pattern) Run(ctx context.Context, sink FrameSink) error {
	ticker := time.NewTicker(time.Second / time.Duration(p.cfg.FPS))
	defer ticker.Stop()

	p.l.Info("pattern camera started",
		"width", p.cfg.Width,
		"height", p.cfg.Height,
		"fps", p.cfg.FPS,
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			frame, err := p.Render(now)
			if err != nil {
				return err
			}
			sink.SetFrame(frame)
		}
	}
}

// Render produces one JPEG frame for time now.
func (p *Pattern) Render(now time.Time) ([]byte, error) {
	p.count++
	img := image.NewRGBA(image.Rect(0, 0, p.cfg.Width, p.cfg.Height))
	p.bars(img, int(p.count))

	level := math.Float64frombits(p.zoom.Load())
	if level > 0 {
		img = zoom(img, 1+level*(maxDigitalZoom-1))
	}

	label := fmt.Sprintf("%s  #%d  zoom %.2f", now.Format("15:04:05.000"), p.count, level)
	if err := p.text.draw(img, label, image.Pt(8, 8)); err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(make([]byte, 0, p.cfg.Width*p.cfg.Height/4))
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: p.cfg.JPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var barColors = []color.RGBA{
	{192, 192, 192, 255},
	{192, 192, 0, 255},
	{0, 192, 192, 255},
	{0, 192, 0, 255},
	{192, 0, 192, 255},
	{192, 0, 0, 255},
	{0, 0, 192, 255},
}

func (p *Pattern) bars(img *image.RGBA, offset int) {
	b := img.Bounds()
	w := b.Dx()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := barColors[((x+offset*2)%w)*len(barColors)/w]
			img.SetRGBA(x, y, c)
		}
	}
}

// zoom crops the center 1/factor of src and scales it back to src's size.
func zoom(src *image.RGBA, factor float64) *image.RGBA {
	b := src.Bounds()
	cw := int(float64(b.Dx()) / factor)
	ch := int(float64(b.Dy()) / factor)
	if cw < 1 || ch < 1 {
		return src
	}
	crop := image.Rect(0, 0, cw, ch).Add(image.Pt((b.Dx()-cw)/2, (b.Dy()-ch)/2))

	dst := image.NewRGBA(b)
	xdraw.ApproxBiLinear.Scale(dst, b, src, crop, xdraw.Src, nil)
	return dst
}
