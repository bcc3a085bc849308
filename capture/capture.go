// Package capture holds the collaborators that feed the relay: cameras push
// encoded JPEG frames, microphones push encoded audio chunks.
package capture

import (
	"context"
	"errors"
)

var (
	ErrNotReady        = errors.New("camera not ready")
	ErrZoomUnsupported = errors.New("camera does not support zoom")
)

type FrameSink interface {
	SetFrame(jpeg []byte)
}

type AudioSink interface {
	SetAudioChunk(chunk []byte)
}

// Camera pushes frames into sink until ctx is done.
type Camera interface {
	Run(ctx context.Context, sink FrameSink) error
	Zoomer
}

// Zoomer applies a linear zoom level in [0, 1], 0 being the widest view.
type Zoomer interface {
	SetZoom(level float64) error
}

// Microphone pushes audio chunks of ContentType into sink until ctx is done.
type Microphone interface {
	Run(ctx context.Context, sink AudioSink) error
	ContentType() string
}
