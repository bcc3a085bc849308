package server

import (
	"log/slog"
	"sync"
	"time"
)

// stats tracks open stream sessions and outgoing throughput.
type stats struct {
	l *slog.Logger

	sem        sync.Mutex
	clients    int
	bytes      uint64
	total      uint64
	since      time.Time
	throughput float64
}

func newStats(l *slog.Logger) *stats {
	return &stats{l: l, since: time.Now()}
}

func (s *stats) addBytes(n uint64) {
	s.sem.Lock()
	s.bytes += n
	s.total += n
	since := time.Since(s.since).Seconds()
	if since > 1 {
		s.throughput = float64(s.bytes) / since
		s.since = time.Now()
		s.bytes = 0
		s.l.Debug(
			"throughput",
			"kBps", s.throughput/1024,
			"streams", s.clients,
		)
	}
	s.sem.Unlock()
}

func (s *stats) addConn() {
	s.sem.Lock()
	s.clients++
	s.sem.Unlock()
}

func (s *stats) removeConn() {
	s.sem.Lock()
	s.clients--
	s.sem.Unlock()
}

func (s *stats) snapshot() (clients int, total uint64, throughput float64) {
	s.sem.Lock()
	defer s.sem.Unlock()
	return s.clients, s.total, s.throughput
}
