package relay

import (
	"context"
	"log/slog"
	"time"
)

// FrameSource is read once per producer cycle.
type FrameSource interface {
	Frame() ([]byte, bool)
}

// RateSource supplies the current frame rate. Changed fires whenever the
// rate may have changed so a sleeping producer can pick it up early.
type RateSource interface {
	FrameRate() int
	Changed() <-chan struct{}
}

type Publisher interface {
	Publish(frame []byte)
}

// Interval is the producer period for fps.
func Interval(fps int) time.Duration {
	if fps <= 0 {
		fps = 1
	}
	return time.Second / time.Duration(fps)
}

// Producer samples the latest frame at the configured rate and publishes it.
type Producer struct {
	l    *slog.Logger
	src  FrameSource
	rate RateSource
	out  Publisher
}

func NewProducer(l *slog.Logger, src FrameSource, rate RateSource, out Publisher) *Producer {
	return &Producer{l: l, src: src, rate: rate, out: out}
}

// Run blocks until ctx is done. The rate is re-read on every cycle.
func (p *Producer) Run(ctx context.Context) error {
	fps := p.rate.FrameRate()
	p.l.Debug("producer started", "fps", fps)
	defer p.l.Debug("producer stopped")

	for {
		changed := p.rate.Changed()
		if n := p.rate.FrameRate(); n != fps {
			p.l.Info("producer rate changed", "from", fps, "to", n)
			fps = n
		}

		if frame, ok := p.src.Frame(); ok {
			p.out.Publish(frame)
		}

		if err := p.sleep(ctx, Interval(fps), changed); err != nil {
			return err
		}
	}
}

// sleep waits for d. A rate change cuts the wait short once the new, shorter
// interval has already elapsed since the cycle started.
func (p *Producer) sleep(ctx context.Context, d time.Duration, changed <-chan struct{}) error {
	start := time.Now()
	t := time.NewTimer(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		case <-changed:
			changed = p.rate.Changed()
			remaining := Interval(p.rate.FrameRate()) - time.Since(start)
			if remaining <= 0 {
				return nil
			}
			t.Reset(remaining)
		}
	}
}
