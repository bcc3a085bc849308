//go:build !linux

package capture

import (
	"context"
	"errors"
	"log/slog"
)

type WebcamConfig struct {
	Device      string
	Width       int
	Height      int
	JPEGQuality int
}

// Webcam is only available on linux.
type Webcam struct{}

func NewWebcam(l *slog.Logger, cfg WebcamConfig) *Webcam { return &Webcam{} }

func (c *Webcam) Run(ctx context.Context, sink FrameSink) error {
	return errors.New("webcam capture requires linux")
}

func (c *Webcam) SetZoom(level float64) error { return ErrNotReady }
