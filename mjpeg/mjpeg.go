// Package mjpeg frames JPEG images as parts of a multipart/x-mixed-replace
// response.
package mjpeg

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/frizinak/camrelay/relay"
)

const (
	Boundary    = "frame"
	ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

	// FrameTimeout is how long Read waits for the next frame.
	FrameTimeout = 100 * time.Millisecond
)

// Source hands out frames one at a time. relay.Subscription implements it.
type Source interface {
	Next(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// AppendPart appends the multipart framing of one frame to dst.
func AppendPart(dst, frame []byte) []byte {
	dst = append(dst, "--"+Boundary+"\r\nContent-Type: image/jpeg\r\nContent-Length: "...)
	dst = strconv.AppendInt(dst, int64(len(frame)), 10)
	dst = append(dst, "\r\n\r\n"...)
	dst = append(dst, frame...)
	return append(dst, "\r\n"...)
}

// Encoder is a lazy io.Reader over a Source. A part is only built once the
// previous one was read completely. When no frame arrives within the timeout
// Read returns io.EOF; the encoder stays usable and the next Read polls again.
type Encoder struct {
	ctx     context.Context
	src     Source
	timeout time.Duration

	part []byte
	buf  *bytes.Reader

	frames uint64
}

func NewEncoder(ctx context.Context, src Source) *Encoder {
	return &Encoder{ctx: ctx, src: src, timeout: FrameTimeout, buf: bytes.NewReader(nil)}
}

// SetTimeout overrides FrameTimeout.
func (e *Encoder) SetTimeout(d time.Duration) { e.timeout = d }

// Frames is the number of parts started so far.
func (e *Encoder) Frames() uint64 { return e.frames }

func (e *Encoder) Read(p []byte) (int, error) {
	if e.buf.Len() == 0 {
		frame, err := e.src.Next(e.ctx, e.timeout)
		if errors.Is(err, relay.ErrStarved) {
			return 0, io.EOF
		}
		if err != nil {
			return 0, err
		}

		e.part = AppendPart(e.part[:0], frame)
		e.buf.Reset(e.part)
		e.frames++
	}
	return e.buf.Read(p)
}

// WriteTo writes whole parts to w until the source starves (nil error) or
// fails. Each part is handed to w in a single Write.
func (e *Encoder) WriteTo(w io.Writer) (int64, error) {
	var total int64
	if e.buf.Len() != 0 {
		n, err := e.buf.WriteTo(w)
		total += n
		if err != nil {
			return total, err
		}
	}

	for {
		frame, err := e.src.Next(e.ctx, e.timeout)
		if errors.Is(err, relay.ErrStarved) {
			return total, nil
		}
		if err != nil {
			return total, err
		}

		e.part = AppendPart(e.part[:0], frame)
		e.frames++
		n, err := w.Write(e.part)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
}
