//go:build portaudio

package capture

import (
	"context"
	"encoding/binary"
	"log/slog"

	"github.com/gordonklaus/portaudio"
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

// PortAudio records from the default input device and emits one WAV chunk
// per buffer.
type PortAudio struct {
	l   *slog.Logger
	cfg PortAudioConfig
}

func NewPortAudio(l *slog.Logger, cfg PortAudioConfig) *PortAudio {
	return &PortAudio{l: l, cfg: cfg}
}

func (p *PortAudio) ContentType() string { return WAVContentType }

func (p *PortAudio) Run(ctx context.Context, sink AudioSink) error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	defer portaudio.Terminate()

	buf := make([]int16, p.cfg.FramesPerBuffer*p.cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(
		p.cfg.Channels,
		0,
		p.cfg.SampleRate,
		p.cfg.FramesPerBuffer,
		buf,
	)
	if err != nil {
		return err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return err
	}
	defer stream.Stop()

	p.l.Info("portaudio microphone started", "sample_rate", p.cfg.SampleRate, "channels", p.cfg.Channels)
	pcm := make([]byte, len(buf)*2)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := stream.Read(); err != nil {
			p.l.Warn("portaudio read", "error", err)
			continue
		}

		for i, s := range buf {
			binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
		}
		sink.SetAudioChunk(appendWAV(make([]byte, 0, 44+len(pcm)), pcm, int(p.cfg.SampleRate), p.cfg.Channels))
	}
}
