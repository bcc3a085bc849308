package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image/jpeg"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type frameSink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *frameSink) SetFrame(b []byte) {
	s.mu.Lock()
	s.frames = append(s.frames, b)
	s.mu.Unlock()
}

func (s *frameSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func TestPatternRenderIsJPEG(t *testing.T) {
	p, err := NewPattern(discard, PatternConfig{Width: 160, Height: 120, JPEGQuality: 70})
	if err != nil {
		t.Fatal(err)
	}

	frame, err := p.Render(time.Now())
	if err != nil {
		t.Fatal(err)
	}
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		t.Fatalf("frame is not a JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 160 || b.Dy() != 120 {
		t.Errorf("frame size %v, want 160x120", b)
	}
}

func TestPatternZoom(t *testing.T) {
	p, err := NewPattern(discard, PatternConfig{Width: 160, Height: 120})
	if err != nil {
		t.Fatal(err)
	}

	for _, bad := range []float64{-0.1, 1.5} {
		if err := p.SetZoom(bad); err == nil {
			t.Errorf("SetZoom(%v) accepted", bad)
		}
	}

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	wide, _ := p.Render(now)
	p.count = 0
	if err := p.SetZoom(1); err != nil {
		t.Fatal(err)
	}
	zoomed, err := p.Render(now)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(wide, zoomed) {
		t.Error("zoom level 1 rendered the same frame as no zoom")
	}
}

func TestPatternRun(t *testing.T) {
	p, err := NewPattern(discard, PatternConfig{Width: 64, Height: 48, FPS: 50})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	sink := &frameSink{}
	if err := p.Run(ctx, sink); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() = %v", err)
	}
	if sink.len() < 3 {
		t.Errorf("got %d frames in 150ms at 50fps", sink.len())
	}
}

func TestNewPatternRejectsEmptySize(t *testing.T) {
	if _, err := NewPattern(discard, PatternConfig{}); err == nil {
		t.Fatal("NewPattern accepted a zero size")
	}
}

func TestOverlayMeasure(t *testing.T) {
	o, err := newOverlay(14, 72)
	if err != nil {
		t.Fatal(err)
	}
	short, _ := o.measure("1")
	long, _ := o.measure("12345678")
	if short.X <= 0 || short.Y <= 0 {
		t.Fatalf("measure(%q) = %v", "1", short)
	}
	if long.X <= short.X {
		t.Errorf("longer text measured %v, shorter %v", long, short)
	}
}

func TestAppendWAV(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	wav := appendWAV(nil, pcm, 44100, 2)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:16]) != "WAVEfmt " || string(wav[36:40]) != "data" {
		t.Fatalf("bad header %q", wav[:44])
	}
	if got := binary.LittleEndian.Uint32(wav[24:]); got != 44100 {
		t.Errorf("sample rate = %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:]); got != 44100*4 {
		t.Errorf("byte rate = %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:]); got != 4 {
		t.Errorf("data length = %d", got)
	}
	if !bytes.Equal(wav[44:], pcm) {
		t.Error("payload mismatch")
	}
}
