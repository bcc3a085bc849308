package server

import (
	"errors"
	"net/http"
	"time"
)

// countWriter writes each part with a fresh write deadline, flushes it to the
// client and counts the bytes.
type countWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	timeout time.Duration
	stats   *stats

	n uint64
}

func newCountWriter(w http.ResponseWriter, timeout time.Duration, st *stats) *countWriter {
	return &countWriter{w: w, rc: http.NewResponseController(w), timeout: timeout, stats: st}
}

func (c *countWriter) Write(b []byte) (int, error) {
	if c.timeout > 0 {
		err := c.rc.SetWriteDeadline(time.Now().Add(c.timeout))
		if err != nil && !errors.Is(err, http.ErrNotSupported) {
			return 0, err
		}
	}

	n, err := c.w.Write(b)
	c.n += uint64(n)
	c.stats.addBytes(uint64(n))
	if err != nil {
		return n, err
	}
	return n, c.Flush()
}

func (c *countWriter) Flush() error {
	err := c.rc.Flush()
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}
