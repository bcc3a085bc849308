package state

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
)

const (
	MinFrameRate     = 5
	MaxFrameRate     = 30
	DefaultFrameRate = 30

	MinZoom = 0.0
	MaxZoom = 1.0
)

var (
	ErrFrameRateRange = fmt.Errorf("frame rate must be within [%d, %d]", MinFrameRate, MaxFrameRate)
	ErrZoomRange      = errors.New("zoom level must be within [0.0, 1.0]")
)

// Settings is the mutable capture configuration shared between the control
// surface, the producer loop and the camera.
type Settings struct {
	frameRate atomic.Int32
	zoom      atomic.Uint64
	zoomSet   atomic.Bool

	changed *notifier
}

func NewSettings(frameRate int) (*Settings, error) {
	s := &Settings{changed: newNotifier()}
	if err := ValidateFrameRate(frameRate); err != nil {
		return nil, err
	}
	s.frameRate.Store(int32(frameRate))
	return s, nil
}

func ValidateFrameRate(fps int) error {
	if fps < MinFrameRate || fps > MaxFrameRate {
		return ErrFrameRateRange
	}
	return nil
}

func ValidateZoom(level float64) error {
	if math.IsNaN(level) || level < MinZoom || level > MaxZoom {
		return ErrZoomRange
	}
	return nil
}

func (s *Settings) FrameRate() int { return int(s.frameRate.Load()) }

// SetFrameRate stores a new rate and wakes anyone waiting on Changed.
// Out of range values are rejected and leave the current rate untouched.
func (s *Settings) SetFrameRate(fps int) error {
	if err := ValidateFrameRate(fps); err != nil {
		return err
	}
	if s.frameRate.Swap(int32(fps)) != int32(fps) {
		s.changed.Notify()
	}
	return nil
}

// Zoom returns the last applied zoom level, ok is false while unset.
func (s *Settings) Zoom() (level float64, ok bool) {
	if !s.zoomSet.Load() {
		return MaxZoom, false
	}
	return math.Float64frombits(s.zoom.Load()), true
}

func (s *Settings) SetZoom(level float64) error {
	if err := ValidateZoom(level); err != nil {
		return err
	}
	s.zoom.Store(math.Float64bits(level))
	s.zoomSet.Store(true)
	s.changed.Notify()
	return nil
}

// Changed returns a channel that is closed on the next settings change.
func (s *Settings) Changed() <-chan struct{} { return s.changed.Wait() }
