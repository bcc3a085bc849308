package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/frizinak/camrelay/capture"
	"github.com/frizinak/camrelay/control"
	"github.com/frizinak/camrelay/state"
)

const (
	SourcePattern = "pattern"
	SourceWebcam  = "webcam"

	AudioNone      = "none"
	AudioMP3       = "mp3"
	AudioPortAudio = "portaudio"
)

type Config struct {
	Address string  `yaml:"address"`
	Source  string  `yaml:"source"`
	Device  string  `yaml:"device"`
	Stream  Stream  `yaml:"stream"`
	Capture Capture `yaml:"capture"`
	Audio   Audio   `yaml:"audio"`
	MQTT    MQTT    `yaml:"mqtt"`
}

type Stream struct {
	FPS            int `yaml:"fps"`
	FrameTimeoutMS int `yaml:"frame_timeout_ms"`
	WriteTimeoutMS int `yaml:"write_timeout_ms"`
	MaxStreams     int `yaml:"max_streams"`
	StallTimeoutS  int `yaml:"stall_timeout_s"`
}

type Capture struct {
	Width       int `yaml:"width"`
	Height      int `yaml:"height"`
	FPS         int `yaml:"fps"`
	JPEGQuality int `yaml:"jpeg_quality"`
}

type Audio struct {
	Source      string `yaml:"source"`
	File        string `yaml:"file"`
	ChunkMS     int    `yaml:"chunk_ms"`
	ContentType string `yaml:"content_type"`
}

type MQTT struct {
	Broker          string `yaml:"broker"`
	ClientID        string `yaml:"client_id"`
	ControlTopic    string `yaml:"control_topic"`
	StatusTopic     string `yaml:"status_topic"`
	QoS             byte   `yaml:"qos"`
	Encoding        string `yaml:"encoding"`
	StatusIntervalS int    `yaml:"status_interval_s"`
}

func (m MQTT) Enabled() bool { return m.Broker != "" }

func (m MQTT) ToControlConfig() control.MQTTConfig {
	return control.MQTTConfig{
		Broker:         m.Broker,
		ClientID:       m.ClientID,
		ControlTopic:   m.ControlTopic,
		StatusTopic:    m.StatusTopic,
		QoS:            m.QoS,
		Encoding:       m.Encoding,
		StatusInterval: time.Duration(m.StatusIntervalS) * time.Second,
	}
}

func (c Capture) ToPatternConfig() capture.PatternConfig {
	return capture.PatternConfig{
		Width:       c.Width,
		Height:      c.Height,
		FPS:         c.FPS,
		JPEGQuality: c.JPEGQuality,
	}
}

func (c Config) ToWebcamConfig() capture.WebcamConfig {
	return capture.WebcamConfig{
		Device:      c.Device,
		Width:       c.Capture.Width,
		Height:      c.Capture.Height,
		JPEGQuality: c.Capture.JPEGQuality,
	}
}

func (s Stream) FrameTimeout() time.Duration {
	return time.Duration(s.FrameTimeoutMS) * time.Millisecond
}

func (s Stream) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

func (s Stream) StallTimeout() time.Duration {
	return time.Duration(s.StallTimeoutS) * time.Second
}

func (a Audio) Chunk() time.Duration {
	return time.Duration(a.ChunkMS) * time.Millisecond
}

func Default() Config {
	return Config{
		Address: ":8080",
		Source:  SourcePattern,
		Device:  "/dev/video0",
		Stream: Stream{
			FPS:            state.DefaultFrameRate,
			FrameTimeoutMS: 100,
			WriteTimeoutMS: 5000,
		},
		Capture: Capture{
			Width:       640,
			Height:      480,
			FPS:         30,
			JPEGQuality: 80,
		},
		Audio: Audio{
			Source:  AudioNone,
			ChunkMS: 500,
		},
		MQTT: MQTT{
			ClientID:        "camrelay",
			ControlTopic:    "camrelay/control",
			StatusTopic:     "camrelay/status",
			QoS:             1,
			Encoding:        control.EncodingJSON,
			StatusIntervalS: 10,
		},
	}
}

func DefaultConfigFile() (string, error) {
	home, err := os.UserHomeDir()
	return filepath.Join(home, ".config", "camrelay", "config.yaml"), err
}

// LoadConfig reads file on top of the defaults. Plain JSON files load as well.
func LoadConfig(file string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(file)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", file, err)
	}
	return c, nil
}

// LoadEnv applies CAMRELAY_* overrides from the environment, after loading
// envFile into it when that file exists.
func LoadEnv(c *Config, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	str("CAMRELAY_ADDRESS", &c.Address)
	str("CAMRELAY_SOURCE", &c.Source)
	str("CAMRELAY_DEVICE", &c.Device)
	str("CAMRELAY_AUDIO_FILE", &c.Audio.File)
	str("CAMRELAY_MQTT_BROKER", &c.MQTT.Broker)

	if v, ok := os.LookupEnv("CAMRELAY_FPS"); ok {
		fps, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CAMRELAY_FPS: %w", err)
		}
		c.Stream.FPS = fps
	}
	if c.Audio.File != "" && c.Audio.Source == AudioNone {
		c.Audio.Source = AudioMP3
	}
	return nil
}

// Validate checks c and fills in defaults for zero values.
func Validate(c *Config) error {
	d := Default()
	if c.Address == "" {
		c.Address = d.Address
	}

	switch c.Source {
	case "":
		c.Source = d.Source
	case SourcePattern, SourceWebcam:
	default:
		return fmt.Errorf("source must be %q or %q, got %q", SourcePattern, SourceWebcam, c.Source)
	}
	if c.Source == SourceWebcam && c.Device == "" {
		return errors.New("device is required for the webcam source")
	}

	if c.Stream.FPS == 0 {
		c.Stream.FPS = d.Stream.FPS
	}
	if err := state.ValidateFrameRate(c.Stream.FPS); err != nil {
		return fmt.Errorf("stream.fps: %w", err)
	}
	if c.Stream.FrameTimeoutMS <= 0 {
		c.Stream.FrameTimeoutMS = d.Stream.FrameTimeoutMS
	}
	if c.Stream.WriteTimeoutMS <= 0 {
		c.Stream.WriteTimeoutMS = d.Stream.WriteTimeoutMS
	}
	if c.Stream.MaxStreams < 0 || c.Stream.StallTimeoutS < 0 {
		return errors.New("stream.max_streams and stream.stall_timeout_s must not be negative")
	}

	if c.Capture.Width <= 0 || c.Capture.Height <= 0 {
		c.Capture.Width, c.Capture.Height = d.Capture.Width, d.Capture.Height
	}
	if c.Capture.FPS <= 0 {
		c.Capture.FPS = d.Capture.FPS
	}
	if c.Capture.JPEGQuality <= 0 || c.Capture.JPEGQuality > 100 {
		c.Capture.JPEGQuality = d.Capture.JPEGQuality
	}

	switch c.Audio.Source {
	case "":
		c.Audio.Source = AudioNone
	case AudioNone, AudioPortAudio:
	case AudioMP3:
		if c.Audio.File == "" {
			return errors.New("audio.file is required for the mp3 source")
		}
	default:
		return fmt.Errorf("unknown audio.source %q", c.Audio.Source)
	}
	if c.Audio.ChunkMS <= 0 {
		c.Audio.ChunkMS = d.Audio.ChunkMS
	}

	if c.MQTT.Enabled() {
		if c.MQTT.ClientID == "" {
			c.MQTT.ClientID = d.MQTT.ClientID
		}
		if c.MQTT.ControlTopic == "" {
			c.MQTT.ControlTopic = d.MQTT.ControlTopic
		}
		if c.MQTT.StatusTopic == "" {
			c.MQTT.StatusTopic = d.MQTT.StatusTopic
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
		}
		switch c.MQTT.Encoding {
		case "":
			c.MQTT.Encoding = control.EncodingJSON
		case control.EncodingJSON, control.EncodingMsgpack:
		default:
			return fmt.Errorf("unknown mqtt.encoding %q", c.MQTT.Encoding)
		}
	}

	return nil
}

// EnsureConfig writes an example config to file unless it already exists.
func EnsureConfig(file string) error {
	dirs := filepath.Dir(file)
	if err := os.MkdirAll(dirs, 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(file, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if os.IsExist(err) {
		return nil
	} else if err != nil {
		return err
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(4)
	if err := enc.Encode(Default()); err != nil {
		return err
	}
	return enc.Close()
}
