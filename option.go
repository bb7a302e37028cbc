package connector

import (
	"net"
	"time"
)

// options holds the configuration for a connector.
type options struct {
	serverIP   string
	serverPort int

	dialer         Dialer
	connectTimeout time.Duration
	policy         ReconnectPolicy

	gracefulMax  time.Duration // upper bound of a graceful close
	pollInterval time.Duration // period of the graceful close poll

	packer      Packer
	newUnpacker func() Unpacker

	onConnect func()
	onMessage func(msg []byte) error
	logger    Logger

	bufferSize int           // size of buffered send channel
	maxMsgLen  int           // maximum size of a single frame
	heartbeat  time.Duration // read/write deadlines are heartbeat * 2
}

// Option is a function that configures connector options.
type Option func(*options)

// ServerAddrOption sets the remote endpoint. ip must be a literal address.
func ServerAddrOption(port int, ip string) Option {
	return func(o *options) {
		o.serverPort = port
		o.serverIP = ip
	}
}

// DialerOption replaces the dialer used for connect attempts.
// The default is a zero net.Dialer.
func DialerOption(d Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// ConnectTimeoutOption bounds every connect attempt. Zero leaves it to the OS.
func ConnectTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.connectTimeout = timeout
	}
}

// ReconnectPolicyOption sets the policy consulted after connection errors.
// The default retries forever every DefaultReconnectInterval.
func ReconnectPolicyOption(p ReconnectPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// GracefulShutdownOption sets how long GracefulClose waits for the peer
// before degrading to a forced close.
func GracefulShutdownOption(max time.Duration) Option {
	return func(o *options) {
		o.gracefulMax = max
	}
}

// ShutdownPollOption sets the period at which an asynchronous graceful
// close checks for completion.
func ShutdownPollOption(interval time.Duration) Option {
	return func(o *options) {
		o.pollInterval = interval
	}
}

// BufferSizeOption returns an Option that sets the size of the send channel buffer.
// Frames queued while disconnected are sent once the connection is up.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// MessageMaxSize returns an Option that sets the maximum frame size, header included.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxMsgLen = size
	}
}

// PackerOption replaces the send-side framing.
func PackerOption(p Packer) Option {
	return func(o *options) {
		o.packer = p
	}
}

// UnpackerOption replaces the receive-side framing. newUnpacker is called
// once per connector.
func UnpackerOption(newUnpacker func() Unpacker) Option {
	return func(o *options) {
		o.newUnpacker = newUnpacker
	}
}

// OnConnectOption sets a hook invoked after every successful connect,
// before queued frames are flushed.
func OnConnectOption(cb func()) Option {
	return func(o *options) {
		o.onConnect = cb
	}
}

// OnMessageOption returns an Option that sets the message handler callback.
// This callback is required and is invoked for each received payload.
// Returning an error breaks the session as if the read had failed.
func OnMessageOption(cb func(msg []byte) error) Option {
	return func(o *options) {
		o.onMessage = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// HeartbeatOption sets the heartbeat interval. A link on which nothing is
// read, or a write that does not complete, within heartbeat * 2 is broken
// and handed to the reconnect policy. The peer is expected to send at least
// once per interval.
func HeartbeatOption(heartbeat time.Duration) Option {
	return func(o *options) {
		o.heartbeat = heartbeat
	}
}

// ConfigOption applies every field of cfg. Options given after it win.
func ConfigOption(cfg Config) Option {
	return func(o *options) {
		o.serverIP = cfg.ServerIP
		o.serverPort = cfg.ServerPort
		o.connectTimeout = cfg.ConnectTimeout
		o.policy = FixedPolicy{Interval: cfg.ReconnectInterval}
		o.gracefulMax = cfg.GracefulShutdownMaxDuration
		o.pollInterval = cfg.ShutdownPollInterval
		o.maxMsgLen = cfg.MaxMsgLen
		o.bufferSize = cfg.SendBufferSize
		o.heartbeat = cfg.Heartbeat
	}
}

// checkOptions validates and sets default values for connector options.
func checkOptions(opts *options) (*net.TCPAddr, error) {
	if opts.onMessage == nil {
		return nil, ErrInvalidOnMessage
	}

	if opts.serverIP == "" {
		opts.serverIP = DefaultServerIP
	}
	if opts.serverPort == 0 {
		opts.serverPort = DefaultServerPort
	}
	addr, err := resolveServerAddr(opts.serverPort, opts.serverIP)
	if err != nil {
		return nil, err
	}

	if opts.bufferSize <= 0 {
		opts.bufferSize = DefaultSendBufferSize
	}

	if opts.maxMsgLen <= 0 {
		opts.maxMsgLen = DefaultMaxMsgLen
	}
	if opts.maxMsgLen <= HeadLen || opts.maxMsgLen > MaxMsgLenLimit {
		return nil, &ConfigurationError{Field: "max_msg_len", Value: opts.maxMsgLen}
	}

	if opts.gracefulMax <= 0 {
		opts.gracefulMax = DefaultGracefulShutdownMaxDuration
	}
	if opts.pollInterval <= 0 {
		opts.pollInterval = DefaultShutdownPollInterval
	}
	if opts.heartbeat <= 0 {
		opts.heartbeat = DefaultHeartbeat
	}

	if opts.dialer == nil {
		opts.dialer = &net.Dialer{}
	}
	if opts.policy == nil {
		opts.policy = FixedPolicy{Interval: DefaultReconnectInterval}
	}

	if opts.packer == nil {
		opts.packer = NewLengthPacker(opts.maxMsgLen)
	}
	if opts.newUnpacker == nil {
		maxMsgLen := opts.maxMsgLen
		opts.newUnpacker = func() Unpacker { return NewLengthUnpacker(maxMsgLen) }
	}

	if opts.onConnect == nil {
		opts.onConnect = func() {}
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return addr, nil
}
