package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"

	CommandSetFPS    = "set_fps"
	CommandSetZoom   = "set_zoom"
	CommandGetStatus = "get_status"
)

type MQTTConfig struct {
	Broker         string
	ClientID       string
	ControlTopic   string
	StatusTopic    string
	QoS            byte
	Encoding       string
	StatusInterval time.Duration
}

// Command is a control message received on the control topic.
type Command struct {
	ID      string                 `json:"id,omitempty"`
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response is published on the status topic for every command.
type Response struct {
	ID         string  `json:"id,omitempty"`
	CommandAck string  `json:"command_ack"`
	Status     string  `json:"status"`
	Error      string  `json:"error,omitempty"`
	Data       *Status `json:"data,omitempty"`
	Timestamp  string  `json:"timestamp"`
}

// MQTT is the control plane over an MQTT broker. It accepts the same changes
// as the HTTP control endpoints and publishes periodic status snapshots.
type MQTT struct {
	l      *slog.Logger
	cfg    MQTTConfig
	ctrl   *Controller
	status StatusProvider

	client   mqtt.Client
	commands chan Command
	replies  chan Response
}

func NewMQTT(l *slog.Logger, cfg MQTTConfig, ctrl *Controller, status StatusProvider) (*MQTT, error) {
	switch cfg.Encoding {
	case "":
		cfg.Encoding = EncodingJSON
	case EncodingJSON, EncodingMsgpack:
	default:
		return nil, fmt.Errorf("unknown mqtt encoding %q", cfg.Encoding)
	}
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	if cfg.ControlTopic == "" || cfg.StatusTopic == "" {
		return nil, errors.New("mqtt control and status topics are required")
	}

	return &MQTT{
		l:        l,
		cfg:      cfg,
		ctrl:     ctrl,
		status:   status,
		commands: make(chan Command, 10),
		replies:  make(chan Response, 10),
	}, nil
}

// connect blocks until the broker accepted the connection. The client keeps
// retrying in the background until then, so giving up means disconnecting it.
func (m *MQTT) connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", m.cfg.Broker))
	opts.SetClientID(m.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(c mqtt.Client) {
		m.l.Info("mqtt connected", "broker", m.cfg.Broker, "client_id", m.cfg.ClientID)
		token := c.Subscribe(m.cfg.ControlTopic, m.cfg.QoS, m.messageHandler)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			m.l.Error("mqtt subscribe failed", "topic", m.cfg.ControlTopic, "error", token.Error())
		}
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		m.l.Warn("mqtt connection lost, reconnecting", "broker", m.cfg.Broker, "error", err)
	}

	m.client = mqtt.NewClient(opts)
	token := m.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		m.client.Disconnect(0)
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		m.client.Disconnect(0)
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

// Run connects, serves commands and publishes status until ctx is done.
func (m *MQTT) Run(ctx context.Context) error {
	m.l.Info("mqtt connecting", "broker", m.cfg.Broker)
	if err := m.connect(ctx); err != nil {
		return err
	}
	defer func() {
		if m.client.IsConnected() {
			m.client.Unsubscribe(m.cfg.ControlTopic).WaitTimeout(time.Second)
		}
		m.client.Disconnect(250)
		m.l.Info("mqtt control plane stopped")
	}()

	interval := m.cfg.StatusInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-m.commands:
			m.publish(m.handle(cmd))
		case resp := <-m.replies:
			m.publish(resp)
		case <-ticker.C:
			st := m.status.Status()
			m.publish(Response{
				CommandAck: CommandGetStatus,
				Status:     "ok",
				Data:       &st,
				Timestamp:  time.Now().UTC().Format(time.RFC3339),
			})
		}
	}
}

// messageHandler runs on the paho router and must not block: replies are
// published from Run.
func (m *MQTT) messageHandler(client mqtt.Client, msg mqtt.Message) {
	cmd, err := m.decode(msg.Payload())
	if err != nil {
		m.l.Warn("invalid control message", "topic", msg.Topic(), "error", err)
		select {
		case m.replies <- Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      err.Error(),
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		}:
		default:
			m.l.Warn("reply queue full, dropping error reply")
		}
		return
	}

	m.l.Debug("control command received", "command", cmd.Command, "id", cmd.ID)
	select {
	case m.commands <- cmd:
	default:
		m.l.Warn("command queue full, dropping command", "command", cmd.Command)
	}
}

func (m *MQTT) decode(payload []byte) (Command, error) {
	var cmd Command
	err := json.Unmarshal(payload, &cmd)
	if err != nil && m.cfg.Encoding == EncodingMsgpack {
		dec := msgpack.NewDecoder(bytes.NewReader(payload))
		dec.SetCustomStructTag("json")
		cmd = Command{}
		err = dec.Decode(&cmd)
	}
	if err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	if cmd.Command == "" {
		return Command{}, errors.New("decode command: empty command")
	}
	return cmd, nil
}

func (m *MQTT) handle(cmd Command) Response {
	resp := Response{
		ID:         cmd.ID,
		CommandAck: cmd.Command,
		Status:     "ok",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	var err error
	switch cmd.Command {
	case CommandSetFPS:
		var fps int
		if fps, err = ParseFPS(param(cmd.Params, ParamFPS)); err == nil {
			err = m.ctrl.SetFrameRate(fps)
		}
	case CommandSetZoom:
		var level float64
		if level, err = ParseZoom(param(cmd.Params, ParamZoom)); err == nil {
			err = m.ctrl.SetZoom(level)
		}
	case CommandGetStatus:
	default:
		err = fmt.Errorf("unknown command %q", cmd.Command)
	}

	if err != nil {
		resp.Status = "error"
		resp.Error = err.Error()
		return resp
	}

	st := m.status.Status()
	resp.Data = &st
	return resp
}

// param renders a JSON parameter the way it would appear in a query string.
func param(params map[string]interface{}, name string) string {
	switch v := params[name].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (m *MQTT) encode(v interface{}) ([]byte, error) {
	if m.cfg.Encoding == EncodingMsgpack {
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetCustomStructTag("json")
		err := enc.Encode(v)
		return buf.Bytes(), err
	}
	return json.Marshal(v)
}

func (m *MQTT) publish(resp Response) {
	payload, err := m.encode(resp)
	if err != nil {
		m.l.Error("encode mqtt response", "error", err)
		return
	}
	if m.client == nil {
		return
	}

	token := m.client.Publish(m.cfg.StatusTopic, m.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		m.l.Warn("mqtt publish timeout", "topic", m.cfg.StatusTopic)
		return
	}
	if err := token.Error(); err != nil {
		m.l.Warn("mqtt publish failed", "topic", m.cfg.StatusTopic, "error", err)
	}
}
