package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"math"
	"sync"

	"github.com/blackjack/webcam"
)

const (
	pixMJPG webcam.PixelFormat = 0x47504A4D
	pixYUYV webcam.PixelFormat = 0x56595559

	// V4L2_CID_ZOOM_ABSOLUTE
	ctrlZoomAbsolute webcam.ControlID = 0x009a090d
)

type WebcamConfig struct {
	Device      string
	Width       int
	Height      int
	JPEGQuality int
}

// Webcam reads frames from a V4L2 device. Devices delivering MJPG are
// relayed as is, YUYV frames are encoded to JPEG.
type Webcam struct {
	l   *slog.Logger
	cfg WebcamConfig

	mu  sync.Mutex
	cam *webcam.Webcam
	pix webcam.PixelFormat
	w   int
	h   int

	jpegOpts *jpeg.Options
}

func NewWebcam(l *slog.Logger, cfg WebcamConfig) *Webcam {
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = jpeg.DefaultQuality
	}
	return &Webcam{l: l, cfg: cfg, jpegOpts: &jpeg.Options{Quality: cfg.JPEGQuality}}
}

func (c *Webcam) open() error {
	cam, err := webcam.Open(c.cfg.Device)
	if err != nil {
		return err
	}

	formats := cam.GetSupportedFormats()
	pix, ok := pixMJPG, false
	if _, ok = formats[pixMJPG]; !ok {
		pix = pixYUYV
		if _, ok = formats[pixYUYV]; !ok {
			cam.Close()
			return fmt.Errorf("%s: neither MJPG nor YUYV supported", c.cfg.Device)
		}
	}

	size, err := closestSize(cam.GetSupportedFrameSizes(pix), c.cfg.Width, c.cfg.Height)
	if err != nil {
		cam.Close()
		return err
	}

	pix, w, h, err := cam.SetImageFormat(pix, size.MaxWidth, size.MaxHeight)
	if err != nil {
		cam.Close()
		return err
	}

	if err = cam.StartStreaming(); err != nil {
		cam.Close()
		return err
	}

	c.mu.Lock()
	c.cam, c.pix, c.w, c.h = cam, pix, int(w), int(h)
	c.mu.Unlock()

	c.l.Info("webcam opened",
		"device", c.cfg.Device,
		"format", formats[pix],
		"width", w,
		"height", h,
	)
	return nil
}

func (c *Webcam) close() {
	c.mu.Lock()
	cam := c.cam
	c.cam = nil
	c.mu.Unlock()
	if cam == nil {
		return
	}

	if err := cam.StopStreaming(); err != nil {
		c.l.Warn("webcam stop streaming", "error", err)
	}
	if err := cam.Close(); err != nil {
		c.l.Warn("webcam close", "error", err)
	}
}

func (c *Webcam) Run(ctx context.Context, sink FrameSink) error {
	if err := c.open(); err != nil {
		return fmt.Errorf("webcam %s: %w", c.cfg.Device, err)
	}
	defer c.close()

	c.mu.Lock()
	cam, pix, w, h := c.cam, c.pix, c.w, c.h
	c.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := cam.WaitForFrame(1)
		var timeout *webcam.Timeout
		switch {
		case err == nil:
		case errors.As(err, &timeout):
			continue
		default:
			return err
		}

		d, err := cam.ReadFrame()
		if err != nil {
			return err
		}
		if len(d) == 0 {
			continue
		}

		frame, err := c.encode(pix, d, w, h)
		if err != nil {
			c.l.Warn("webcam frame dropped", "error", err)
			continue
		}
		sink.SetFrame(frame)
	}
}

// encode never returns d itself, the driver reuses its buffers.
func (c *Webcam) encode(pix webcam.PixelFormat, d []byte, w, h int) ([]byte, error) {
	if pix == pixMJPG {
		return bytes.Clone(d), nil
	}

	if len(d) < w*h*2 {
		return nil, fmt.Errorf("short YUYV frame: %d bytes for %dx%d", len(d), w, h)
	}
	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio422)
	for y := 0; y < h; y++ {
		row := d[y*w*2 : (y+1)*w*2]
		for x := 0; x < w; x += 2 {
			i := x * 2
			img.Y[y*img.YStride+x] = row[i]
			img.Y[y*img.YStride+x+1] = row[i+2]
			ci := y*img.CStride + x/2
			img.Cb[ci] = row[i+1]
			img.Cr[ci] = row[i+3]
		}
	}

	buf := bytes.NewBuffer(make([]byte, 0, len(d)/4))
	if err := jpeg.Encode(buf, img, c.jpegOpts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Webcam) SetZoom(level float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cam == nil {
		return ErrNotReady
	}

	ctrl, ok := c.cam.GetControls()[ctrlZoomAbsolute]
	if !ok {
		return ErrZoomUnsupported
	}

	value := ctrl.Min + int32(math.Round(level*float64(ctrl.Max-ctrl.Min)))
	if err := c.cam.SetControl(ctrlZoomAbsolute, value); err != nil {
		return fmt.Errorf("set zoom: %w", err)
	}
	c.l.Debug("webcam zoom", "level", level, "value", value)
	return nil
}

// closestSize picks the supported size whose area is nearest to w*h.
func closestSize(sizes []webcam.FrameSize, w, h int) (webcam.FrameSize, error) {
	if len(sizes) == 0 {
		return webcam.FrameSize{}, errors.New("no frame sizes reported")
	}

	want := w * h
	best, bestDiff := sizes[0], math.MaxInt
	for _, s := range sizes {
		diff := int(s.MaxWidth*s.MaxHeight) - want
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			best, bestDiff = s, diff
		}
	}
	return best, nil
}
