package connector

import (
	"net"
	"testing"
	"time"
)

func TestServerAddrOption(t *testing.T) {
	opt := ServerAddrOption(6000, "10.0.0.1")

	var opts options
	opt(&opts)

	if opts.serverPort != 6000 || opts.serverIP != "10.0.0.1" {
		t.Errorf("server addr = %s:%d, want 10.0.0.1:6000", opts.serverIP, opts.serverPort)
	}
}

func TestBufferSizeOption(t *testing.T) {
	opt := BufferSizeOption(100)

	var opts options
	opt(&opts)

	if opts.bufferSize != 100 {
		t.Errorf("bufferSize = %d, want 100", opts.bufferSize)
	}
}

func TestMessageMaxSize(t *testing.T) {
	opt := MessageMaxSize(4096)

	var opts options
	opt(&opts)

	if opts.maxMsgLen != 4096 {
		t.Errorf("maxMsgLen = %d, want 4096", opts.maxMsgLen)
	}
}

func TestShutdownOptions(t *testing.T) {
	var opts options
	GracefulShutdownOption(2 * time.Second)(&opts)
	ShutdownPollOption(20 * time.Millisecond)(&opts)

	if opts.gracefulMax != 2*time.Second {
		t.Errorf("gracefulMax = %v, want 2s", opts.gracefulMax)
	}
	if opts.pollInterval != 20*time.Millisecond {
		t.Errorf("pollInterval = %v, want 20ms", opts.pollInterval)
	}
}

func TestHeartbeatOption(t *testing.T) {
	var opts options
	HeartbeatOption(10 * time.Second)(&opts)

	if opts.heartbeat != 10*time.Second {
		t.Errorf("heartbeat = %v, want 10s", opts.heartbeat)
	}
}

func TestOnMessageOption(t *testing.T) {
	called := false
	onMessage := func(msg []byte) error {
		called = true
		return nil
	}
	opt := OnMessageOption(onMessage)

	var opts options
	opt(&opts)

	if opts.onMessage == nil {
		t.Fatal("onMessage is nil")
	}

	// Call to verify it's the right function
	opts.onMessage(nil)
	if !called {
		t.Error("onMessage callback not called")
	}
}

func TestLoggerOption(t *testing.T) {
	logger := &mockLogger{}
	opt := LoggerOption(logger)

	var opts options
	opt(&opts)

	if opts.logger != logger {
		t.Error("logger not set correctly")
	}
}

func TestConfigOption(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServerPort = 7070
	cfg.ReconnectInterval = time.Second
	cfg.MaxMsgLen = 512
	cfg.Heartbeat = time.Minute

	var opts options
	ConfigOption(cfg)(&opts)
	// later options win
	BufferSizeOption(3)(&opts)

	if opts.serverPort != 7070 {
		t.Errorf("serverPort = %d, want 7070", opts.serverPort)
	}
	if p, ok := opts.policy.(FixedPolicy); !ok || p.Interval != time.Second {
		t.Errorf("policy = %#v, want FixedPolicy{1s}", opts.policy)
	}
	if opts.maxMsgLen != 512 {
		t.Errorf("maxMsgLen = %d, want 512", opts.maxMsgLen)
	}
	if opts.heartbeat != time.Minute {
		t.Errorf("heartbeat = %v, want 1m", opts.heartbeat)
	}
	if opts.bufferSize != 3 {
		t.Errorf("bufferSize = %d, want 3", opts.bufferSize)
	}
}

func TestCheckOptions_DefaultValues(t *testing.T) {
	opts := &options{
		onMessage: func([]byte) error { return nil },
	}

	addr, err := checkOptions(opts)
	if err != nil {
		t.Fatalf("checkOptions failed: %v", err)
	}

	if addr.String() != "127.0.0.1:5050" {
		t.Errorf("addr = %s, want 127.0.0.1:5050", addr)
	}
	if opts.bufferSize != DefaultSendBufferSize {
		t.Errorf("bufferSize = %d, want %d", opts.bufferSize, DefaultSendBufferSize)
	}
	if opts.maxMsgLen != DefaultMaxMsgLen {
		t.Errorf("maxMsgLen = %d, want %d", opts.maxMsgLen, DefaultMaxMsgLen)
	}
	if opts.gracefulMax != DefaultGracefulShutdownMaxDuration {
		t.Errorf("gracefulMax = %v, want %v", opts.gracefulMax, DefaultGracefulShutdownMaxDuration)
	}
	if opts.pollInterval != DefaultShutdownPollInterval {
		t.Errorf("pollInterval = %v, want %v", opts.pollInterval, DefaultShutdownPollInterval)
	}
	if opts.heartbeat != DefaultHeartbeat {
		t.Errorf("heartbeat = %v, want %v", opts.heartbeat, DefaultHeartbeat)
	}
	if _, ok := opts.dialer.(*net.Dialer); !ok {
		t.Errorf("dialer = %T, want *net.Dialer", opts.dialer)
	}
	if p, ok := opts.policy.(FixedPolicy); !ok || p.Interval != DefaultReconnectInterval {
		t.Errorf("policy = %#v, want FixedPolicy{%v}", opts.policy, DefaultReconnectInterval)
	}
	if opts.packer == nil || opts.newUnpacker == nil {
		t.Error("codec should have default value")
	}
	if opts.onConnect == nil || opts.logger == nil {
		t.Error("hooks should have default values")
	}
}

func TestCheckOptions_MissingOnMessage(t *testing.T) {
	_, err := checkOptions(&options{})
	if err != ErrInvalidOnMessage {
		t.Errorf("expected ErrInvalidOnMessage, got %v", err)
	}
}

func TestCheckOptions_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		opts options
	}{
		{name: "bad ip", opts: options{serverIP: "example.com"}},
		{name: "bad port", opts: options{serverPort: -1}},
		{name: "frame too large", opts: options{maxMsgLen: MaxMsgLenLimit + 1}},
		{name: "frame too small", opts: options{maxMsgLen: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			opts.onMessage = func([]byte) error { return nil }

			_, err := checkOptions(&opts)
			if _, ok := err.(*ConfigurationError); !ok {
				t.Errorf("expected *ConfigurationError, got %v", err)
			}
		})
	}
}
