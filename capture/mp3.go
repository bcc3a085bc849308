package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// MP3 loops an mp3 file in real time and emits one WAV chunk per interval.
type MP3 struct {
	l     *slog.Logger
	file  string
	chunk time.Duration
}

func NewMP3(l *slog.Logger, file string, chunk time.Duration) *MP3 {
	if chunk <= 0 {
		chunk = 500 * time.Millisecond
	}
	return &MP3{l: l, file: file, chunk: chunk}
}

func (m *MP3) ContentType() string { return WAVContentType }

func (m *MP3) Run(ctx context.Context, sink AudioSink) error {
	f, err := os.Open(m.file)
	if err != nil {
		return err
	}
	defer f.Close()

	d, err := mp3.NewDecoder(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", m.file, err)
	}
	return m.stream(ctx, d, d.SampleRate(), sink)
}

// stream paces r, 16-bit little endian stereo PCM, to real time.
// r is rewound when it is an io.Seeker, otherwise stream returns on EOF.
func (m *MP3) stream(ctx context.Context, r io.Reader, sampleRate int, sink AudioSink) error {
	const channels, sampleSize = 2, 2
	n := int(m.chunk.Seconds()*float64(sampleRate)) * channels * sampleSize
	if n == 0 {
		return errors.New("audio chunk too small")
	}
	pcm := make([]byte, n)

	m.l.Info("mp3 audio started", "file", m.file, "sample_rate", sampleRate, "chunk", m.chunk)
	ticker := time.NewTicker(m.chunk)
	defer ticker.Stop()
	rewound := false
	for {
		read, err := io.ReadFull(r, pcm)
		eof := errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
		if err != nil && !eof {
			return err
		}

		if read > 0 {
			rewound = false
			sink.SetAudioChunk(appendWAV(make([]byte, 0, 44+read), pcm[:read], sampleRate, channels))
		}

		if eof {
			s, ok := r.(io.Seeker)
			if !ok {
				return nil
			}
			if read == 0 && rewound {
				return errors.New("audio source is empty")
			}
			if _, err := s.Seek(0, io.SeekStart); err != nil {
				return err
			}
			rewound = true
			if read == 0 {
				continue
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
