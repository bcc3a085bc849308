package control

import "github.com/frizinak/camrelay/relay"

// Status is the snapshot served on /status and published over MQTT.
type Status struct {
	FrameRate      int      `json:"frame_rate"`
	Zoom           *float64 `json:"zoom"`
	FrameAvailable bool     `json:"frame_available"`
	AudioAvailable bool     `json:"audio_available"`
	Frames         uint64   `json:"frames"`
	AudioChunks    uint64   `json:"audio_chunks"`
	Streams        int      `json:"streams"`
	BytesSent      uint64   `json:"bytes_sent"`
	Throughput     float64  `json:"throughput_bps"`
	UptimeSeconds  int64    `json:"uptime_seconds"`

	Relay relay.Stats `json:"relay"`
}

type StatusProvider interface {
	Status() Status
}
