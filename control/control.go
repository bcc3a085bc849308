// Package control validates and applies capture configuration changes coming
// from the HTTP endpoints, the MQTT control plane or the host process.
package control

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/frizinak/camrelay/capture"
	"github.com/frizinak/camrelay/state"
)

var (
	ErrMissing    = errors.New("missing")
	ErrInvalid    = errors.New("invalid")
	ErrOutOfRange = errors.New("out of range")
)

// ValidationError describes a rejected parameter. It wraps one of ErrMissing,
// ErrInvalid or ErrOutOfRange.
type ValidationError struct {
	Param  string
	Value  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if errors.Is(e.Err, ErrMissing) {
		return fmt.Sprintf("missing parameter %q", e.Param)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Param, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

const (
	ParamFPS  = "fps"
	ParamZoom = "zoomLevel"
)

// ParseFPS parses and range checks a frame rate.
func ParseFPS(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, &ValidationError{Param: ParamFPS, Err: ErrMissing}
	}
	fps, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ValidationError{Param: ParamFPS, Value: raw, Reason: "not an integer", Err: ErrInvalid}
	}
	return fps, checkFPS(raw, fps)
}

func checkFPS(raw string, fps int) error {
	if state.ValidateFrameRate(fps) != nil {
		return &ValidationError{
			Param:  ParamFPS,
			Value:  raw,
			Reason: fmt.Sprintf("must be between %d and %d", state.MinFrameRate, state.MaxFrameRate),
			Err:    ErrOutOfRange,
		}
	}
	return nil
}

// ParseZoom parses and range checks a linear zoom level.
func ParseZoom(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, &ValidationError{Param: ParamZoom, Err: ErrMissing}
	}
	level, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(level) || math.IsInf(level, 0) {
		return 0, &ValidationError{Param: ParamZoom, Value: raw, Reason: "not a number", Err: ErrInvalid}
	}
	return level, checkZoom(raw, level)
}

func checkZoom(raw string, level float64) error {
	if state.ValidateZoom(level) != nil {
		return &ValidationError{
			Param:  ParamZoom,
			Value:  raw,
			Reason: "must be between 0.0 and 1.0",
			Err:    ErrOutOfRange,
		}
	}
	return nil
}

// Controller applies validated changes to the settings and the camera.
type Controller struct {
	l        *slog.Logger
	settings *state.Settings
	camera   capture.Zoomer
}

func New(l *slog.Logger, settings *state.Settings, camera capture.Zoomer) *Controller {
	return &Controller{l: l, settings: settings, camera: camera}
}

func (c *Controller) SetFrameRate(fps int) error {
	if err := checkFPS(strconv.Itoa(fps), fps); err != nil {
		return err
	}
	old := c.settings.FrameRate()
	if err := c.settings.SetFrameRate(fps); err != nil {
		return err
	}
	c.l.Info("frame rate set", "from", old, "to", fps)
	return nil
}

// SetZoom forwards level to the camera and records it once the camera
// accepted it.
func (c *Controller) SetZoom(level float64) error {
	if err := checkZoom(strconv.FormatFloat(level, 'g', -1, 64), level); err != nil {
		return err
	}
	if c.camera == nil {
		return capture.ErrNotReady
	}
	if err := c.camera.SetZoom(level); err != nil {
		c.l.Warn("camera rejected zoom", "level", level, "error", err)
		return fmt.Errorf("set zoom: %w", err)
	}
	if err := c.settings.SetZoom(level); err != nil {
		return err
	}
	c.l.Info("zoom set", "level", level)
	return nil
}

func (c *Controller) Settings() *state.Settings { return c.settings }
