package connector

import (
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	// DefaultServerIP is the address dialed when none is configured.
	DefaultServerIP = "127.0.0.1"
	// DefaultServerPort is the port dialed when none is configured.
	DefaultServerPort = 5050
	// DefaultGracefulShutdownMaxDuration bounds how long a graceful close may wait for the peer.
	DefaultGracefulShutdownMaxDuration = 5 * time.Second
	// DefaultShutdownPollInterval is the period of the graceful close poll.
	DefaultShutdownPollInterval = 10 * time.Millisecond
	// DefaultHeartbeat is the heartbeat interval; an idle link is broken after twice this.
	DefaultHeartbeat = 30 * time.Second
	// DefaultSendBufferSize is the number of frames that can be queued for sending.
	DefaultSendBufferSize = 16
)

// Config is the file form of a connector's settings.
type Config struct {
	ServerIP   string `yaml:"server_ip"`
	ServerPort int    `yaml:"server_port"`

	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`

	GracefulShutdownMaxDuration time.Duration `yaml:"graceful_shutdown_max_duration"`
	ShutdownPollInterval        time.Duration `yaml:"shutdown_poll_interval"`

	MaxMsgLen      int `yaml:"max_msg_len"`
	SendBufferSize int `yaml:"send_buffer_size"`

	Heartbeat time.Duration `yaml:"heartbeat"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		ServerIP:                    DefaultServerIP,
		ServerPort:                  DefaultServerPort,
		ReconnectInterval:           DefaultReconnectInterval,
		GracefulShutdownMaxDuration: DefaultGracefulShutdownMaxDuration,
		ShutdownPollInterval:        DefaultShutdownPollInterval,
		MaxMsgLen:                   DefaultMaxMsgLen,
		SendBufferSize:              DefaultSendBufferSize,
		Heartbeat:                   DefaultHeartbeat,
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig and validates the result.
// Durations are written the way time.ParseDuration accepts them, e.g. "500ms".
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, errors.WithMessagef(err, "config %s", path)
	}

	return cfg, nil
}

// Validate reports the first invalid field as a *ConfigurationError.
func (c Config) Validate() error {
	if _, err := resolveServerAddr(c.ServerPort, c.ServerIP); err != nil {
		return err
	}
	if c.ReconnectInterval < 0 {
		return &ConfigurationError{Field: "reconnect_interval", Value: c.ReconnectInterval}
	}
	if c.ConnectTimeout < 0 {
		return &ConfigurationError{Field: "connect_timeout", Value: c.ConnectTimeout}
	}
	if c.GracefulShutdownMaxDuration <= 0 {
		return &ConfigurationError{Field: "graceful_shutdown_max_duration", Value: c.GracefulShutdownMaxDuration}
	}
	if c.ShutdownPollInterval <= 0 {
		return &ConfigurationError{Field: "shutdown_poll_interval", Value: c.ShutdownPollInterval}
	}
	if c.MaxMsgLen <= HeadLen || c.MaxMsgLen > MaxMsgLenLimit {
		return &ConfigurationError{Field: "max_msg_len", Value: c.MaxMsgLen}
	}
	if c.SendBufferSize <= 0 {
		return &ConfigurationError{Field: "send_buffer_size", Value: c.SendBufferSize}
	}
	if c.Heartbeat <= 0 {
		return &ConfigurationError{Field: "heartbeat", Value: c.Heartbeat}
	}
	return nil
}

// resolveServerAddr only accepts literal IPs; no name resolution happens here.
func resolveServerAddr(port int, ip string) (*net.TCPAddr, error) {
	if port <= 0 || port > 65535 {
		return nil, &ConfigurationError{Field: "server_port", Value: port}
	}
	addr := net.ParseIP(ip)
	if addr == nil {
		return nil, &ConfigurationError{Field: "server_ip", Value: ip}
	}
	return &net.TCPAddr{IP: addr, Port: port}, nil
}
