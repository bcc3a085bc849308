package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSubscriptionDropOldest(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()
	defer sub.Close()

	b.Publish([]byte("A"))
	b.Publish([]byte("B"))

	f, err := sub.Next(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if string(f) != "B" {
		t.Fatalf("Next() = %q, want B", f)
	}

	if _, err := sub.Next(context.Background(), 10*time.Millisecond); !errors.Is(err, ErrStarved) {
		t.Fatalf("second Next() error = %v, want ErrStarved", err)
	}

	st := sub.Stats()
	if st.Drops != 1 || st.Delivered != 1 {
		t.Errorf("stats = %+v, want 1 drop and 1 delivery", st)
	}
}

func TestEverySubscriberGetsEachFrame(t *testing.T) {
	b := NewBroadcaster()
	subs := []*Subscription{b.Subscribe(), b.Subscribe(), b.Subscribe()}

	b.Publish([]byte("frame"))
	for i, s := range subs {
		f, err := s.Next(context.Background(), 50*time.Millisecond)
		if err != nil || string(f) != "frame" {
			t.Errorf("subscriber %d: Next() = %q, %v", i, f, err)
		}
		s.Close()
	}

	if n := len(b.Stats().Subscribers); n != 0 {
		t.Errorf("%d subscribers left after Close", n)
	}
}

func TestNextHonorsContext(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sub.Next(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("Next() error = %v, want context.Canceled", err)
	}
}

func TestCloseWakesBlockedSubscribers(t *testing.T) {
	b := NewBroadcaster()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		sub := b.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sub.Next(context.Background(), 5*time.Second)
			errs <- err
		}()
	}

	time.Sleep(10 * time.Millisecond)
	b.Close()
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Next() error = %v, want ErrClosed", err)
		}
	}

	late := b.Subscribe()
	if _, err := late.Next(context.Background(), time.Millisecond); !errors.Is(err, ErrClosed) {
		t.Errorf("subscription after Close: error = %v, want ErrClosed", err)
	}
	b.Publish([]byte("ignored"))
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()
	defer sub.Close()

	start := time.Now()
	for i := 0; i < 1000; i++ {
		b.Publish([]byte{byte(i)})
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Publish blocked: 1000 frames took %v", elapsed)
	}
	if st := sub.Stats(); st.Drops != 999 {
		t.Errorf("Drops = %d, want 999", st.Drops)
	}
}
