package state

import (
	"sync/atomic"
)

// Holder keeps the most recent video frame and the most recent audio chunk.
// Writes replace the stored slice as a whole, readers either see the old or
// the new slice, never a mix of both. Callers must not modify a slice after
// handing it to SetFrame or SetAudioChunk.
type Holder struct {
	frame atomic.Pointer[[]byte]
	audio atomic.Pointer[[]byte]

	frameCount atomic.Uint64
	audioCount atomic.Uint64

	audioUpdate *notifier
}

func NewHolder() *Holder {
	return &Holder{audioUpdate: newNotifier()}
}

func (h *Holder) SetFrame(b []byte) {
	h.frame.Store(&b)
	h.frameCount.Add(1)
}

// Frame returns the latest frame and false if none was ever set.
func (h *Holder) Frame() ([]byte, bool) {
	p := h.frame.Load()
	if p == nil {
		return nil, false
	}
	return *p, true
}

// FrameCount is the number of SetFrame calls so far.
func (h *Holder) FrameCount() uint64 { return h.frameCount.Load() }

func (h *Holder) SetAudioChunk(b []byte) {
	h.audio.Store(&b)
	h.audioCount.Add(1)
	h.audioUpdate.Notify()
}

// AudioChunk returns the latest audio chunk and false if none was ever set.
func (h *Holder) AudioChunk() ([]byte, bool) {
	p := h.audio.Load()
	if p == nil {
		return nil, false
	}
	return *p, true
}

// AudioCount is the number of SetAudioChunk calls so far.
func (h *Holder) AudioCount() uint64 { return h.audioCount.Load() }

// AudioUpdated returns a channel that is closed on the next SetAudioChunk.
func (h *Holder) AudioUpdated() <-chan struct{} { return h.audioUpdate.Wait() }
