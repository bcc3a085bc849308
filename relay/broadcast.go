// Package relay moves frames from the latest-value holder to the stream
// sessions. Every subscriber owns a single slot: a newer frame replaces an
// unconsumed older one, publishing never waits on a slow subscriber.
package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrStarved is returned by Next when no frame arrived within the timeout.
	ErrStarved = errors.New("relay: no frame available")
	// ErrClosed is returned by Next once the subscription or broadcaster closed.
	ErrClosed = errors.New("relay: subscription closed")
)

type Broadcaster struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool

	published atomic.Uint64
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]*Subscription)}
}

// Subscription is one drop-oldest slot. Next must be called from a single
// goroutine.
type Subscription struct {
	id string
	b  *Broadcaster

	slot chan []byte
	done chan struct{}
	once sync.Once

	delivered atomic.Uint64
	drops     atomic.Uint64
	mu        sync.Mutex
}

// Subscribe registers a new slot. Subscribing to a closed broadcaster returns
// a subscription that is already closed.
func (b *Broadcaster) Subscribe() *Subscription {
	s := &Subscription{
		id:   uuid.NewString(),
		b:    b,
		slot: make(chan []byte, 1),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.shut()
		return s
	}
	b.subs[s.id] = s
	return s
}

// Publish hands frame to every subscriber without blocking.
func (b *Broadcaster) Publish(frame []byte) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	b.published.Add(1)
	for _, s := range subs {
		s.offer(frame)
	}
}

// Close closes all subscriptions and rejects new ones.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[string]*Subscription)
	b.mu.Unlock()

	for _, s := range subs {
		s.shut()
	}
}

func (b *Broadcaster) remove(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

func (s *Subscription) ID() string { return s.id }

func (s *Subscription) offer(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case <-s.slot:
		s.drops.Add(1)
	default:
	}
	s.slot <- frame
}

// Next waits up to timeout for the next frame. A pending frame is returned
// immediately even after the context is done.
func (s *Subscription) Next(ctx context.Context, timeout time.Duration) ([]byte, error) {
	select {
	case f := <-s.slot:
		s.delivered.Add(1)
		return f, nil
	default:
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case f := <-s.slot:
		s.delivered.Add(1)
		return f, nil
	case <-s.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
		return nil, ErrStarved
	}
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.b.remove(s.id)
	s.shut()
}

func (s *Subscription) shut() {
	s.once.Do(func() {
		s.mu.Lock()
		close(s.done)
		s.mu.Unlock()
	})
}
