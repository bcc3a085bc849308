package capture

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"
)

type audioSink struct {
	mu     sync.Mutex
	chunks [][]byte
}

func (s *audioSink) SetAudioChunk(b []byte) {
	s.mu.Lock()
	s.chunks = append(s.chunks, b)
	s.mu.Unlock()
}

// onlyReader hides io.Seeker so the stream ends at EOF.
type onlyReader struct{ r *bytes.Reader }

func (o onlyReader) Read(p []byte) (int, error) { return o.r.Read(p) }

func TestMP3StreamChunks(t *testing.T) {
	const rate = 1000
	m := NewMP3(discard, "test.mp3", 10*time.Millisecond)
	// 10ms at 1000Hz stereo 16-bit is 40 bytes, 100 bytes make 2.5 chunks.
	pcm := bytes.Repeat([]byte{7}, 100)

	sink := &audioSink{}
	if err := m.stream(context.Background(), onlyReader{bytes.NewReader(pcm)}, rate, sink); err != nil {
		t.Fatalf("stream() = %v", err)
	}

	if len(sink.chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(sink.chunks))
	}
	for i, want := range []int{40, 40, 20} {
		c := sink.chunks[i]
		if len(c) != 44+want || string(c[:4]) != "RIFF" {
			t.Errorf("chunk %d: %d bytes", i, len(c))
		}
	}
	if m.ContentType() != WAVContentType {
		t.Errorf("ContentType() = %q", m.ContentType())
	}
}

func TestMP3StreamLoopsUntilCancelled(t *testing.T) {
	m := NewMP3(discard, "test.mp3", 5*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	sink := &audioSink{}
	err := m.stream(ctx, bytes.NewReader(bytes.Repeat([]byte{1}, 25)), 1000, sink)
	if err == nil {
		t.Fatal("looping stream returned without error")
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.chunks) < 3 {
		t.Errorf("got %d chunks, want the source to loop", len(sink.chunks))
	}
}

func TestMP3MissingFile(t *testing.T) {
	m := NewMP3(discard, "does-not-exist.mp3", time.Second)
	if err := m.Run(context.Background(), &audioSink{}); err == nil {
		t.Fatal("Run() on a missing file succeeded")
	}
}
