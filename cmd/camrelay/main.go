package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"github.com/frizinak/camrelay/capture"
	"github.com/frizinak/camrelay/config"
	"github.com/frizinak/camrelay/control"
	"github.com/frizinak/camrelay/server"
	"github.com/frizinak/camrelay/state"
)

func main() {
	var file, envFile string
	var debug bool
	flag.StringVar(&file, "config", "", "config file (default ~/.config/camrelay/config.yaml)")
	flag.StringVar(&envFile, "env", ".env", "optional file with CAMRELAY_* overrides")
	flag.BoolVar(&debug, "debug", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	l := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
	}))

	fatal := func(err error) {
		l.Error(err.Error())
		os.Exit(1)
	}

	if file == "" {
		var err error
		if file, err = config.DefaultConfigFile(); err != nil {
			fatal(err)
		}
	}

	conf, err := config.LoadConfig(file)
	if err != nil {
		if !os.IsNotExist(err) {
			fatal(err)
		}

		if err := config.EnsureConfig(file); err != nil {
			fatal(err)
		}

		l.Info("created example config file", "file", file)
	}

	if err := config.LoadEnv(&conf, envFile); err != nil {
		fatal(err)
	}
	if err := config.Validate(&conf); err != nil {
		fatal(err)
	}

	st, err := state.New(conf.Stream.FPS)
	if err != nil {
		fatal(err)
	}

	var cam capture.Camera
	switch conf.Source {
	case config.SourceWebcam:
		cam = capture.NewWebcam(l.With("component", "webcam"), conf.ToWebcamConfig())
	default:
		cam, err = capture.NewPattern(l.With("component", "pattern"), conf.Capture.ToPatternConfig())
		if err != nil {
			fatal(err)
		}
	}

	var mic capture.Microphone
	switch conf.Audio.Source {
	case config.AudioMP3:
		mic = capture.NewMP3(l.With("component", "mp3"), conf.Audio.File, conf.Audio.Chunk())
	case config.AudioPortAudio:
		mic = capture.NewPortAudio(l.With("component", "portaudio"), capture.DefaultPortAudioConfig())
	}

	ctrl := control.New(l.With("component", "control"), st.Settings, cam)
	srv := server.New(
		l.With("component", "http"),
		server.Config{
			Address:          conf.Address,
			FrameTimeout:     conf.Stream.FrameTimeout(),
			WriteTimeout:     conf.Stream.WriteTimeout(),
			StallTimeout:     conf.Stream.StallTimeout(),
			MaxStreams:       conf.Stream.MaxStreams,
			AudioContentType: audioContentType(conf.Audio.ContentType, mic),
		},
		st,
		ctrl,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	if err := srv.Start(gctx); err != nil {
		fatal(err)
	}
	g.Go(srv.Wait)

	// Collaborator failures are logged, the relay keeps serving whatever
	// was captured last.
	collaborator := func(name string, run func(context.Context) error) {
		g.Go(func() error {
			err := run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				l.Error("collaborator stopped", "name", name, "error", err)
			}
			return nil
		})
	}

	collaborator("camera", func(ctx context.Context) error { return cam.Run(ctx, st) })
	if mic != nil {
		collaborator("audio", func(ctx context.Context) error { return mic.Run(ctx, st) })
	}

	if conf.MQTT.Enabled() {
		m, err := control.NewMQTT(l.With("component", "mqtt"), conf.MQTT.ToControlConfig(), ctrl, srv)
		if err != nil {
			fatal(err)
		}
		collaborator("mqtt", m.Run)
	}

	<-gctx.Done()
	l.Info("shutting down")
	if err := srv.Stop(); err != nil {
		l.Error("stop", "error", err)
	}
	if err := g.Wait(); err != nil {
		fatal(err)
	}
}

// audioContentType prefers the configured type, then the one the audio
// source produces. Empty leaves the server default.
func audioContentType(configured string, mic capture.Microphone) string {
	if configured != "" || mic == nil {
		return configured
	}
	return mic.ContentType()
}
