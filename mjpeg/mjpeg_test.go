package mjpeg

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"testing"
	"time"

	"github.com/frizinak/camrelay/relay"
)

type fakeSource struct {
	frames [][]byte
	err    error
}

func (f *fakeSource) Next(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if len(f.frames) == 0 {
		if f.err != nil {
			return nil, f.err
		}
		return nil, relay.ErrStarved
	}
	frame := f.frames[0]
	f.frames = f.frames[1:]
	return frame, nil
}

func TestAppendPart(t *testing.T) {
	got := string(AppendPart(nil, []byte("hello")))
	want := "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: 5\r\n\r\nhello\r\n"
	if got != want {
		t.Fatalf("AppendPart() = %q, want %q", got, want)
	}
}

func TestEncoderReadEndsOnStarvation(t *testing.T) {
	src := &fakeSource{frames: [][]byte{[]byte("one"), []byte("three")}}
	enc := NewEncoder(context.Background(), src)

	got, err := io.ReadAll(enc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	want := "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: 3\r\n\r\none\r\n" +
		"--frame\r\nContent-Type: image/jpeg\r\nContent-Length: 5\r\n\r\nthree\r\n"
	if string(got) != want {
		t.Fatalf("stream = %q, want %q", got, want)
	}
	if enc.Frames() != 2 {
		t.Errorf("Frames() = %d, want 2", enc.Frames())
	}

	// Starved encoders keep polling on the next read.
	src.frames = [][]byte{[]byte("again")}
	got, err = io.ReadAll(enc)
	if err != nil || !bytes.Contains(got, []byte("\r\n\r\nagain\r\n")) {
		t.Fatalf("read after starvation = %q, %v", got, err)
	}
}

func TestEncoderSmallReads(t *testing.T) {
	payload := bytes.Repeat([]byte{0xff, 0xd8, 0x00}, 100)
	enc := NewEncoder(context.Background(), &fakeSource{frames: [][]byte{payload}})

	var out bytes.Buffer
	p := make([]byte, 7)
	for {
		n, err := enc.Read(p)
		out.Write(p[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
	}
	if !bytes.Equal(out.Bytes(), AppendPart(nil, payload)) {
		t.Fatal("byte-wise reads do not reassemble the part")
	}
}

func TestEncoderPropagatesClose(t *testing.T) {
	enc := NewEncoder(context.Background(), &fakeSource{err: relay.ErrClosed})
	if _, err := enc.Read(make([]byte, 16)); !errors.Is(err, relay.ErrClosed) {
		t.Fatalf("Read() error = %v, want relay.ErrClosed", err)
	}
	if _, err := enc.WriteTo(io.Discard); !errors.Is(err, relay.ErrClosed) {
		t.Fatalf("WriteTo() error = %v, want relay.ErrClosed", err)
	}
}

type countingWriter struct {
	bytes.Buffer
	writes int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.writes++
	return c.Buffer.Write(p)
}

func TestEncoderWriteToWholeParts(t *testing.T) {
	src := &fakeSource{frames: [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}}
	enc := NewEncoder(context.Background(), src)

	w := &countingWriter{}
	n, err := enc.WriteTo(w)
	if err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	if w.writes != 3 {
		t.Errorf("writes = %d, want one per part", w.writes)
	}
	if n != int64(w.Len()) {
		t.Errorf("WriteTo() = %d, buffer has %d", n, w.Len())
	}

	w.Buffer.WriteString("--" + Boundary + "--\r\n")
	mr := multipart.NewReader(bytes.NewReader(w.Bytes()), Boundary)
	for _, want := range []string{"a", "bb", "ccc"} {
		part, err := mr.NextPart()
		if err != nil {
			t.Fatalf("NextPart() error = %v", err)
		}
		if ct := part.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("Content-Type = %q", ct)
		}
		body, err := io.ReadAll(part)
		if err != nil {
			t.Fatalf("reading part: %v", err)
		}
		if string(body) != want {
			t.Errorf("part = %q, want %q", body, want)
		}
	}
}

func TestEncoderOverSubscription(t *testing.T) {
	b := relay.NewBroadcaster()
	sub := b.Subscribe()
	defer sub.Close()

	enc := NewEncoder(context.Background(), sub)
	enc.SetTimeout(20 * time.Millisecond)

	b.Publish([]byte("old"))
	b.Publish([]byte("new"))

	got, err := io.ReadAll(enc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, AppendPart(nil, []byte("new"))) {
		t.Fatalf("stream = %q", got)
	}
}
