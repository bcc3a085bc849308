package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureAndLoadConfig(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := EnsureConfig(file); err != nil {
		t.Fatal(err)
	}

	c, err := LoadConfig(file)
	if err != nil {
		t.Fatal(err)
	}
	if c != Default() {
		t.Errorf("loaded %+v, want defaults", c)
	}

	// An existing file is left alone.
	if err := os.WriteFile(file, []byte("address: \":9000\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := EnsureConfig(file); err != nil {
		t.Fatal(err)
	}
	c, err = LoadConfig(file)
	if err != nil {
		t.Fatal(err)
	}
	if c.Address != ":9000" || c.Stream.FPS != 30 {
		t.Errorf("loaded %+v", c)
	}
}

func TestLoadConfigJSON(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.json")
	data := `{"address": "127.0.0.1:8081", "source": "webcam", "stream": {"fps": 15, "max_streams": 4}}`
	if err := os.WriteFile(file, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	c, err := LoadConfig(file)
	if err != nil {
		t.Fatal(err)
	}
	if c.Address != "127.0.0.1:8081" || c.Source != SourceWebcam || c.Stream.FPS != 15 || c.Stream.MaxStreams != 4 {
		t.Errorf("loaded %+v", c)
	}
	if c.Stream.FrameTimeoutMS != 100 {
		t.Errorf("defaults lost: frame_timeout_ms = %d", c.Stream.FrameTimeoutMS)
	}
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("LoadConfig() error = %v, want not exist", err)
	}
}

func TestLoadEnv(t *testing.T) {
	env := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(env, []byte("CAMRELAY_FPS=12\nCAMRELAY_AUDIO_FILE=/tmp/a.mp3\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CAMRELAY_ADDRESS", ":7000")
	// godotenv.Load does not override existing variables, make sure the
	// test owns them.
	t.Setenv("CAMRELAY_FPS", "")
	os.Unsetenv("CAMRELAY_FPS")
	t.Setenv("CAMRELAY_AUDIO_FILE", "")
	os.Unsetenv("CAMRELAY_AUDIO_FILE")

	c := Default()
	if err := LoadEnv(&c, env); err != nil {
		t.Fatal(err)
	}
	if c.Address != ":7000" || c.Stream.FPS != 12 {
		t.Errorf("env not applied: %+v", c)
	}
	if c.Audio.Source != AudioMP3 || c.Audio.File != "/tmp/a.mp3" {
		t.Errorf("audio = %+v", c.Audio)
	}

	if err := LoadEnv(&c, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing env file: %v", err)
	}
}

func TestValidate(t *testing.T) {
	c := Config{}
	if err := Validate(&c); err != nil {
		t.Fatal(err)
	}
	if c.Address != ":8080" || c.Stream.FPS != 30 || c.Stream.FrameTimeoutMS != 100 {
		t.Errorf("defaults not applied: %+v", c)
	}
	if c.Audio.ContentType != "" {
		t.Errorf("content type = %q, want it left to the audio source", c.Audio.ContentType)
	}

	c = Default()
	c.Audio.Source, c.Audio.File, c.Audio.ContentType = AudioMP3, "a.mp3", "audio/mpeg"
	if err := Validate(&c); err != nil {
		t.Fatal(err)
	}
	if c.Audio.ContentType != "audio/mpeg" {
		t.Errorf("configured content type replaced by %q", c.Audio.ContentType)
	}

	bad := []func(*Config){
		func(c *Config) { c.Source = "rtsp" },
		func(c *Config) { c.Stream.FPS = 60 },
		func(c *Config) { c.Stream.FPS = 2 },
		func(c *Config) { c.Stream.MaxStreams = -1 },
		func(c *Config) { c.Audio.Source = "mic" },
		func(c *Config) { c.Audio.Source = AudioMP3 },
		func(c *Config) { c.MQTT.Broker = "localhost:1883"; c.MQTT.Encoding = "xml" },
		func(c *Config) { c.MQTT.Broker = "localhost:1883"; c.MQTT.QoS = 3 },
		func(c *Config) { c.Source = SourceWebcam; c.Device = "" },
	}
	for i, mutate := range bad {
		c := Default()
		mutate(&c)
		if err := Validate(&c); err == nil {
			t.Errorf("case %d: Validate accepted %+v", i, c)
		}
	}
}
