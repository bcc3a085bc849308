package relay

type SubscriberStats struct {
	ID        string `json:"id"`
	Delivered uint64 `json:"delivered"`
	Drops     uint64 `json:"drops"`
}

type Stats struct {
	Published   uint64            `json:"published"`
	Subscribers []SubscriberStats `json:"subscribers"`
}

// Stats returns a snapshot, not a live view.
func (b *Broadcaster) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := Stats{
		Published:   b.published.Load(),
		Subscribers: make([]SubscriberStats, 0, len(b.subs)),
	}
	for id, s := range b.subs {
		st.Subscribers = append(st.Subscribers, SubscriberStats{
			ID:        id,
			Delivered: s.delivered.Load(),
			Drops:     s.drops.Load(),
		})
	}
	return st
}

func (s *Subscription) Stats() SubscriberStats {
	return SubscriberStats{ID: s.id, Delivered: s.delivered.Load(), Drops: s.drops.Load()}
}
