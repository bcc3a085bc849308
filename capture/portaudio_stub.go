//go:build !portaudio

package capture

import (
	"context"
	"errors"
	"log/slog"
)

type PortAudioConfig struct {
	SampleRate      float64
	FramesPerBuffer int
	Channels        int
}

func DefaultPortAudioConfig() PortAudioConfig {
	return PortAudioConfig{
		SampleRate:      44100,
		FramesPerBuffer: 22050,
		Channels:        1,
	}
}

// PortAudio needs the portaudio build tag and the portaudio C library.
type PortAudio struct{}

func NewPortAudio(l *slog.Logger, cfg PortAudioConfig) *PortAudio { return &PortAudio{} }

func (p *PortAudio) ContentType() string { return WAVContentType }

func (p *PortAudio) Run(ctx context.Context, sink AudioSink) error {
	return errors.New("built without portaudio support (-tags portaudio)")
}
