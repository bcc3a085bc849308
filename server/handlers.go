package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/frizinak/camrelay/capture"
	"github.com/frizinak/camrelay/control"
	"github.com/frizinak/camrelay/mjpeg"
	"github.com/frizinak/camrelay/relay"
)

// connErr logs err unless it only means the client or the server went away.
func connErr(l *slog.Logger, err error) {
	switch {
	case err == nil,
		errors.Is(err, io.EOF),
		errors.Is(err, context.Canceled),
		errors.Is(err, relay.ErrClosed),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNRESET),
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		l.Debug("connection closed", "reason", err)
	default:
		l.Warn("connection error", "error", err)
	}
}

func noCache(h http.Header) {
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(index)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	http.Error(w, fmt.Sprintf("not found: %s %s", r.Method, r.URL.Path), http.StatusNotFound)
}

var errStalled = errors.New("no new frame captured")

// stallWatch fails Next once the capture side has not delivered a new frame
// for limit. The producer keeps republishing the last frame, so the relay
// alone cannot tell a stopped camera from a still scene.
type stallWatch struct {
	src   mjpeg.Source
	count func() uint64
	limit time.Duration

	seen  uint64
	since time.Time
}

func (w *stallWatch) Next(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if n := w.count(); n != w.seen {
		w.seen, w.since = n, time.Now()
	} else if time.Since(w.since) >= w.limit {
		return nil, errStalled
	}
	return w.src.Next(ctx, timeout)
}

// handleStream relays frames as multipart/x-mixed-replace parts until the
// client leaves or the server stops. A poll without a new frame is not fatal,
// the session only ends on a stalled capture when a stall timeout is set.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.streams != nil {
		if !s.streams.TryAcquire(1) {
			http.Error(w, "too many streams", http.StatusServiceUnavailable)
			return
		}
		defer s.streams.Release(1)
	}

	sub := s.relay.Subscribe()
	defer sub.Close()

	l := s.l.With("session", sub.ID(), "remote", r.RemoteAddr)
	s.stats.addConn()
	defer s.stats.removeConn()

	h := w.Header()
	h.Set("Content-Type", mjpeg.ContentType)
	noCache(h)
	w.WriteHeader(http.StatusOK)

	out := newCountWriter(w, s.cfg.WriteTimeout, s.stats)
	if err := out.Flush(); err != nil {
		connErr(l, err)
		return
	}

	var src mjpeg.Source = sub
	if s.cfg.StallTimeout > 0 {
		src = &stallWatch{
			src:   sub,
			count: s.state.FrameCount,
			limit: s.cfg.StallTimeout,
			seen:  s.state.FrameCount(),
			since: time.Now(),
		}
	}

	l.Info("stream opened")
	enc := mjpeg.NewEncoder(r.Context(), src)
	enc.SetTimeout(s.cfg.FrameTimeout)
	defer func() {
		l.Info("stream closed", "frames", enc.Frames(), "bytes", out.n)
	}()

	for {
		_, err := enc.WriteTo(out)
		switch {
		case errors.Is(err, errStalled):
			l.Info("stream stalled", "timeout", s.cfg.StallTimeout)
			return
		case err != nil:
			connErr(l, err)
			return
		}
	}
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	chunk, ok := s.state.AudioChunk()
	if !ok {
		http.Error(w, "no audio available", http.StatusNotFound)
		return
	}

	h := w.Header()
	h.Set("Content-Type", s.cfg.AudioContentType)
	h.Set("Content-Length", strconv.Itoa(len(chunk)))
	noCache(h)
	n, err := w.Write(chunk)
	s.stats.addBytes(uint64(n))
	if err != nil {
		connErr(s.l, err)
	}
}

// handleAudioWS pushes every new audio chunk as a binary message.
func (s *Server) handleAudioWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.l.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	l := s.l.With("remote", r.RemoteAddr)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Control frames are handled inside NextReader, a read error means the
	// peer is gone.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	l.Info("audio websocket opened")
	var seen uint64
	for {
		updated := s.state.AudioUpdated()
		if n := s.state.AudioCount(); n != seen {
			seen = n
			if chunk, ok := s.state.AudioChunk(); ok {
				conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
				if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
					connErr(l, err)
					return
				}
				s.stats.addBytes(uint64(len(chunk)))
			}
		}

		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			l.Info("audio websocket closed")
			return
		case <-updated:
		}
	}
}

func (s *Server) handleSetZoom(w http.ResponseWriter, r *http.Request) {
	level, err := control.ParseZoom(r.URL.Query().Get(control.ParamZoom))
	if err != nil {
		s.controlError(w, err)
		return
	}
	if err := s.ctrl.SetZoom(level); err != nil {
		s.controlError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "zoom level set to %s\n", strconv.FormatFloat(level, 'f', -1, 64))
}

func (s *Server) handleSetFPS(w http.ResponseWriter, r *http.Request) {
	fps, err := control.ParseFPS(r.URL.Query().Get(control.ParamFPS))
	if err != nil {
		s.controlError(w, err)
		return
	}
	if err := s.SetFrameRate(fps); err != nil {
		s.controlError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "frame rate set to %d fps\n", fps)
}

func (s *Server) controlError(w http.ResponseWriter, err error) {
	var verr *control.ValidationError
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Error(), http.StatusBadRequest)
	case errors.Is(err, capture.ErrNotReady):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		s.l.Error("control action failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	noCache(w.Header())
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.Status()); err != nil {
		connErr(s.l, err)
	}
}
