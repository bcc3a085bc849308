// Package server serves the relayed camera stream, the latest audio chunk and
// the control endpoints over plain HTTP.
package server

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/frizinak/camrelay/control"
	"github.com/frizinak/camrelay/mjpeg"
	"github.com/frizinak/camrelay/relay"
	"github.com/frizinak/camrelay/state"
)

//go:embed index.html
var index []byte

const shutdownTimeout = 5 * time.Second

var ErrStarted = errors.New("server already started")

type Config struct {
	Address string

	// FrameTimeout bounds a single wait for the next frame of a stream.
	FrameTimeout time.Duration
	// WriteTimeout drops stream and websocket clients that stall a write.
	WriteTimeout time.Duration
	// StallTimeout ends a stream once no new frame was captured for this
	// long. Zero keeps waiting.
	StallTimeout time.Duration
	// MaxStreams limits concurrent /stream sessions, zero is unlimited.
	MaxStreams int

	AudioContentType string
}

type Server struct {
	l   *slog.Logger
	cfg Config

	state    *state.State
	ctrl     *control.Controller
	relay    *relay.Broadcaster
	producer *relay.Producer
	streams  *semaphore.Weighted
	upgrader websocket.Upgrader

	stats *stats

	mu      sync.Mutex
	ln      net.Listener
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	started time.Time
}

func New(l *slog.Logger, cfg Config, st *state.State, ctrl *control.Controller) *Server {
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = mjpeg.FrameTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.AudioContentType == "" {
		cfg.AudioContentType = "audio/aac"
	}

	b := relay.NewBroadcaster()
	s := &Server{
		l:        l,
		cfg:      cfg,
		state:    st,
		ctrl:     ctrl,
		relay:    b,
		producer: relay.NewProducer(l.With("component", "producer"), st.Holder, st.Settings, b),
		stats:    newStats(l),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	if cfg.MaxStreams > 0 {
		s.streams = semaphore.NewWeighted(int64(cfg.MaxStreams))
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /stream", s.handleStream)
	mux.HandleFunc("GET /audio", s.handleAudio)
	mux.HandleFunc("GET /audio/ws", s.handleAudioWS)
	mux.HandleFunc("GET /setZoom", s.handleSetZoom)
	mux.HandleFunc("GET /setFPS", s.handleSetFPS)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("/", s.handleNotFound)
	return mux
}

// Start listens on the configured address and runs the producer loop and the
// HTTP server until Stop is called or ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return ErrStarted
	}

	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return err
	}

	base, cancel := context.WithCancel(ctx)
	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
		ErrorLog:          slog.NewLogLogger(s.l.Handler(), slog.LevelDebug),
	}

	s.ln = ln
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = time.Now()

	g, gctx := errgroup.WithContext(base)
	g.Go(func() error {
		err := s.producer.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		s.relay.Close()

		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if err := srv.Shutdown(sctx); err != nil {
			s.l.Warn("forcing close", "error", err)
			return srv.Close()
		}
		return nil
	})

	go func() {
		err := g.Wait()
		cancel()
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	}()

	s.l.Info("listening", "address", ln.Addr().String())
	ifaces, err := net.InterfaceAddrs()
	if err != nil {
		s.l.Debug("list interface addresses", "error", err)
	}
	for _, u := range viewerURLs(ln.Addr(), ifaces) {
		s.l.Info("open in a browser", "url", u)
	}
	return nil
}

// Stop closes the listener, terminates all streams and stops the producer.
// It returns once everything has exited.
func (s *Server) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	return s.Wait()
}

// Wait blocks until the server stopped and returns the first failure.
func (s *Server) Wait() error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Addr is the bound listen address, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// SetFrameRate changes the relay rate without going through HTTP.
func (s *Server) SetFrameRate(fps int) error {
	return s.ctrl.SetFrameRate(fps)
}

func (s *Server) Status() control.Status {
	settings := s.state.Settings
	st := control.Status{
		FrameRate:   settings.FrameRate(),
		Frames:      s.state.FrameCount(),
		AudioChunks: s.state.AudioCount(),
		Relay:       s.relay.Stats(),
	}
	if z, ok := settings.Zoom(); ok {
		st.Zoom = &z
	}
	_, st.FrameAvailable = s.state.Frame()
	_, st.AudioAvailable = s.state.AudioChunk()
	st.Streams, st.BytesSent, st.Throughput = s.stats.snapshot()

	s.mu.Lock()
	if !s.started.IsZero() {
		st.UptimeSeconds = int64(time.Since(s.started).Seconds())
	}
	s.mu.Unlock()
	return st
}
