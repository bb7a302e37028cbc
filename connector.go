// Package connector provides reconnecting TCP client connections for Go.
// It frames messages with a 2-byte length header, keeps a table of
// addressable timers per connection, reconnects according to a pluggable
// policy, and bounds graceful shutdowns so they can never hang.
package connector

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ErrBufferFull is returned when the send buffer is full and cannot accept more frames.
// Frames stay queued while the connector is disconnected, so a long outage
// fills the buffer. Use SendBlocking or SendTimeout to wait for space.
var ErrBufferFull = errors.New("send buffer full")

// Timer ids reserved by Connector. Application timers start at ConnectorTimerEnd.
const (
	// TimerConnect drives the delayed reconnect after a failed connect.
	TimerConnect = TimerEnd
	// TimerAsyncShutdown polls an asynchronous graceful close.
	TimerAsyncShutdown = TimerEnd + 1
	// ConnectorTimerEnd is the first id free for application timers.
	ConnectorTimerEnd = TimerEnd + 10
)

// Dialer opens the transport. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ShutdownPhase tells whether a close is in progress.
type ShutdownPhase uint8

const (
	// ShutdownNone means no close is in progress.
	ShutdownNone ShutdownPhase = iota
	// ShutdownGraceful means the send side is closed and the peer's close is awaited.
	ShutdownGraceful
	// ShutdownForced means the transport is being torn down.
	ShutdownForced
)

// String returns a human-readable phase name.
func (p ShutdownPhase) String() string {
	switch p {
	case ShutdownNone:
		return "NONE"
	case ShutdownGraceful:
		return "GRACEFUL"
	case ShutdownForced:
		return "FORCED"
	default:
		return "UNKNOWN"
	}
}

// session is one established link: a read loop and a write loop sharing a socket.
type session struct {
	conn      net.Conn
	stopWrite chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

func (s *session) stopWriting() {
	s.stopOnce.Do(func() { close(s.stopWrite) })
}

// halfClose stops sending and shuts down the write side of the socket.
// It reports false when the transport cannot half-close.
func (s *session) halfClose() bool {
	s.stopWriting()

	hc, ok := s.conn.(interface{ CloseWrite() error })
	if !ok {
		return false
	}
	return hc.CloseWrite() == nil
}

// Connector is the client end of a TCP link that keeps itself connected.
//
// A Connector starts disconnected. Start dials the server; once connected,
// received frames are handed to the OnMessage callback and queued frames are
// written out. When the link breaks the ReconnectPolicy decides whether to
// reconnect: a broken session reconnects at once, a failed connect waits for
// the delay the policy returns. A negative delay leaves the connector
// disconnected until Start is called again.
type Connector struct {
	id       uuid.UUID
	logger   Logger
	opts     options
	timers   *Timers
	unpacker Unpacker

	sendMsg chan []byte

	mu           sync.Mutex
	serverAddr   *net.TCPAddr
	conn         net.Conn
	sess         *session
	dialCancel   context.CancelFunc
	connected    bool
	reconnecting bool // sticky; read when the current link ends
	shutdown     ShutdownPhase
	stopped      bool

	wg sync.WaitGroup

	// shutdownTicks counts poll ticks of the current asynchronous graceful close.
	shutdownTicks atomic.Int64
}

// NewConnector creates a disconnected connector.
// OnMessageOption is required; every other option has a default.
func NewConnector(opt ...Option) (*Connector, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	addr, err := checkOptions(&opts)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	return &Connector{
		id:           id,
		logger:       withAttrs(opts.logger, "conn_id", id.String()),
		opts:         opts,
		timers:       NewTimers(),
		unpacker:     opts.newUnpacker(),
		sendMsg:      make(chan []byte, opts.bufferSize),
		serverAddr:   addr,
		reconnecting: true,
	}, nil
}

// ID returns the connector's unique id, also attached to its log lines.
func (c *Connector) ID() uuid.UUID {
	return c.id
}

// Timers returns the connector's timer table. Ids below ConnectorTimerEnd
// are reserved.
func (c *Connector) Timers() *Timers {
	return c.timers
}

// SetServerAddr changes the endpoint used by the next connect attempt.
func (c *Connector) SetServerAddr(port int, ip string) error {
	addr, err := resolveServerAddr(port, ip)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.serverAddr = addr
	c.mu.Unlock()
	return nil
}

// ServerAddr returns the configured remote endpoint.
func (c *Connector) ServerAddr() *net.TCPAddr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverAddr
}

// LocalAddr returns the local address of the current link, or nil.
func (c *Connector) LocalAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote address of the current link, or nil.
func (c *Connector) RemoteAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.RemoteAddr()
}

// IsConnected reports whether the link is established and not closing.
func (c *Connector) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// IsReconnecting reports the reconnect intent that applies when the current link ends.
func (c *Connector) IsReconnecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnecting
}

// IsClosing reports whether a graceful or forced close is in progress.
func (c *Connector) IsClosing() bool {
	return c.ShutdownPhase() != ShutdownNone
}

// ShutdownPhase returns the current close phase.
func (c *Connector) ShutdownPhase() ShutdownPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutdown
}

// IsObsoleted reports whether the connector will not reconnect and has no
// pending connect or session, so a registry may discard or reuse it.
// A connector whose policy gave up on connecting keeps its reconnect intent
// and is not obsoleted; Start tries again, ForceClose(false) obsoletes it.
func (c *Connector) IsObsoleted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.reconnecting && c.sess == nil && c.dialCancel == nil
}

// Start connects, or resumes receiving on an established link.
// It returns immediately; progress is reported through logs, hooks and IsConnected.
func (c *Connector) Start() error {
	if !c.doStart() {
		return ErrConnectorStopped
	}
	return nil
}

// Stop permanently stops the connector: all timers are stopped, the link is
// closed without reconnect, and Stop waits for the connector's goroutines.
// It must not be called from OnMessage, OnConnect or a timer callback.
func (c *Connector) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	c.timers.StopAll()
	c.ForceClose(false)
	c.wg.Wait()
}

// Reset stops the connector and returns it to its initial state so that it
// can be started again. Queued frames are dropped.
func (c *Connector) Reset() {
	c.Stop()

	c.mu.Lock()
	c.stopped = false
	c.connected = false
	c.reconnecting = true
	c.shutdown = ShutdownNone
	c.conn = nil
	c.mu.Unlock()

drain:
	for {
		select {
		case <-c.sendMsg:
		default:
			break drain
		}
	}

	c.unpacker.Reset()
	if r, ok := c.opts.policy.(resetter); ok {
		r.Reset()
	}
}

// Disconnect is ForceClose.
func (c *Connector) Disconnect(reconnect bool) {
	c.ForceClose(reconnect)
}

// ForceClose tears the transport down at once. If reconnect is true the
// connector dials again as soon as the session has ended.
func (c *Connector) ForceClose(reconnect bool) {
	c.mu.Lock()
	if c.shutdown != ShutdownForced {
		c.logger.Info("link shut down", "server_addr", c.serverAddr, "reconnect", reconnect)
		c.reconnecting = reconnect
		c.connected = false
	}
	c.shutdown = ShutdownForced
	conn, cancel := c.conn, c.dialCancel
	if c.sess == nil {
		// no session left to observe the close
		c.shutdown = ShutdownNone
		c.conn = nil
	}
	reconnecting := c.reconnecting
	c.mu.Unlock()

	c.timers.Stop(TimerAsyncShutdown)
	if !reconnecting {
		c.timers.Stop(TimerConnect)
	}

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

// GracefulClose shuts down the send side and waits for the peer to close.
//
// With sync set the call blocks until the link is down or the configured
// maximum duration has elapsed; sync must be false when called from
// OnMessage, since the peer's close is observed by the same read loop.
// Otherwise a timer polls for completion. Either way a peer that does not
// close in time gets a forced close.
func (c *Connector) GracefulClose(reconnect, sync bool) {
	c.mu.Lock()
	if c.shutdown != ShutdownNone {
		c.mu.Unlock()
		return
	}
	if !c.connected || c.sess == nil {
		c.mu.Unlock()
		c.ForceClose(reconnect)
		return
	}

	c.logger.Info("link closing gracefully", "server_addr", c.serverAddr, "reconnect", reconnect)
	c.reconnecting = reconnect
	c.connected = false
	c.shutdown = ShutdownGraceful
	sess := c.sess
	c.mu.Unlock()

	if !sess.halfClose() {
		c.ForceClose(reconnect)
		return
	}

	if sync {
		select {
		case <-sess.done:
		case <-time.After(c.opts.gracefulMax):
			c.shutdownTimedOut()
		}
		return
	}

	remaining := int(c.opts.gracefulMax / c.opts.pollInterval)
	if remaining < 1 {
		remaining = 1
	}
	c.shutdownTicks.Store(0)
	c.timers.ConfigureAndStart(TimerAsyncShutdown, c.opts.pollInterval, func(TimerID) bool {
		return c.asyncShutdownHandler(&remaining)
	})
}

// asyncShutdownHandler runs on every poll tick; remaining is only touched
// by this slot's firings, which never overlap.
func (c *Connector) asyncShutdownHandler(remaining *int) bool {
	if c.ShutdownPhase() != ShutdownGraceful {
		return false
	}

	c.shutdownTicks.Add(1)
	*remaining--
	if *remaining > 0 {
		return true
	}

	c.shutdownTimedOut()
	return false
}

func (c *Connector) shutdownTimedOut() {
	c.logger.Warn("failed to shut down gracefully",
		"error", ErrShutdownTimeout, "max_duration", c.opts.gracefulMax)
	c.ForceClose(c.IsReconnecting())
}

// doStart dials when a reconnect is wanted and starts the session when the
// link is up. It reports false once the connector is stopped.
func (c *Connector) doStart() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return false
	}

	switch {
	case c.reconnecting && !c.connected:
		if c.dialCancel == nil && c.sess == nil {
			c.connectLocked()
		}
	case c.connected && c.sess == nil:
		c.startSessionLocked()
	}

	return true
}

func (c *Connector) connectLocked() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.opts.connectTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), c.opts.connectTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	c.dialCancel = cancel

	addr := c.serverAddr.String()
	c.logger.Debug("connecting", "server_addr", addr)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		conn, err := c.opts.dialer.DialContext(ctx, "tcp", addr)
		c.connectHandler(ctx, cancel, conn, err)
	}()
}

func (c *Connector) connectHandler(ctx context.Context, cancel context.CancelFunc, conn net.Conn, err error) {
	c.mu.Lock()
	c.dialCancel = nil
	if c.stopped || errors.Is(ctx.Err(), context.Canceled) {
		if conn != nil {
			_ = conn.Close()
		}
		err = context.Canceled
	}
	cancel()

	if err != nil {
		c.mu.Unlock()
		c.prepareNextReconnect(transportError("connect", err))
		return
	}

	c.conn = conn
	c.connected = true
	c.reconnecting = true
	c.shutdown = ShutdownNone
	c.unpacker.Reset()
	c.mu.Unlock()

	if r, ok := c.opts.policy.(resetter); ok {
		r.Reset()
	}

	c.logger.Info("connected", "local_addr", conn.LocalAddr(), "remote_addr", conn.RemoteAddr())
	c.opts.onConnect()

	// the write loop flushes whatever was queued while disconnected
	c.doStart()
}

// prepareNextReconnect arms the reconnect timer after a failed connect.
// It reports whether another attempt was scheduled.
func (c *Connector) prepareNextReconnect(err error) bool {
	c.mu.Lock()
	if (IsCanceled(err) && !c.reconnecting) || c.stopped {
		c.mu.Unlock()
		return false
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	delay := c.opts.policy.NextDelay(err)
	if delay < 0 {
		c.logger.Info("reconnecting given up", "error", err)
		return false
	}

	c.logger.Info("connect failed, retrying", "error", err, "delay", delay)
	c.timers.ConfigureAndStart(TimerConnect, delay, func(TimerID) bool {
		c.doStart()
		return false
	})
	return true
}

func (c *Connector) startSessionLocked() {
	s := &session{
		conn:      c.conn,
		stopWrite: make(chan struct{}),
		done:      make(chan struct{}),
	}
	c.sess = s

	c.wg.Add(1)
	go c.runSession(s)
}

// runSession runs the read and write loops until either fails, then hands
// the error to onRecvError.
func (c *Connector) runSession(s *session) {
	defer c.wg.Done()
	defer close(s.done)

	group, ctx := errgroup.WithContext(context.Background())

	group.Go(func() error {
		return c.readLoop(s.conn)
	})

	group.Go(func() error {
		return c.writeLoop(ctx, s)
	})

	c.onRecvError(s, group.Wait())
}

// onRecvError handles the end of a session, whether the peer closed, a read
// or write failed, or a local close tore the socket down.
func (c *Connector) onRecvError(s *session, err error) {
	c.mu.Lock()
	closing := c.shutdown != ShutdownNone
	reconnect := c.reconnecting
	c.sess = nil
	c.mu.Unlock()

	c.logger.Info("link broken", "error", err)

	if !closing {
		reconnect = c.opts.policy.NextDelay(err) >= 0
	}
	c.ForceClose(reconnect)

	c.mu.Lock()
	c.shutdown = ShutdownNone
	if c.conn == s.conn {
		c.conn = nil
	}
	reconnect = c.reconnecting
	c.mu.Unlock()

	if reconnect {
		c.doStart()
	}
}

// readLoop feeds the socket into the unpacker and delivers complete payloads.
// It returns when the socket fails or is closed, or when nothing arrives for
// twice the heartbeat interval.
func (c *Connector) readLoop(conn net.Conn) error {
	buf := make([]byte, c.opts.maxMsgLen)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.opts.heartbeat * 2))

		n, err := conn.Read(buf)
		if n > 0 {
			msgs, unpackErr := c.unpacker.Unpack(buf[:n])
			for _, msg := range msgs {
				if err := c.opts.onMessage(msg); err != nil {
					return err
				}
			}
			if unpackErr != nil {
				c.logger.Warn("unpack failed", "error", unpackErr)
				c.ForceClose(false)
				return unpackErr
			}
		}
		if err != nil {
			return transportError("read", err)
		}
	}
}

// writeLoop sends queued frames until the session ends or a graceful close
// stops it.
func (c *Connector) writeLoop(ctx context.Context, s *session) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopWrite:
			return nil
		case data := <-c.sendMsg:
			_ = s.conn.SetWriteDeadline(time.Now().Add(c.opts.heartbeat * 2))
			if _, err := s.conn.Write(data); err != nil {
				c.logger.Debug("write error", "error", err)
				// unblock the read loop
				_ = s.conn.Close()
				return transportError("write", err)
			}
		}
	}
}

func (c *Connector) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// pack frames parts. A nil frame with a nil error means there was nothing to send.
func (c *Connector) pack(parts [][]byte, native bool) ([]byte, error) {
	if c.isStopped() {
		return nil, ErrConnectorStopped
	}

	frame := c.opts.packer.Pack(parts, native)
	if len(frame) > 0 {
		return frame, nil
	}

	total := 0
	for _, part := range parts {
		total += len(part)
	}
	if total == 0 {
		return nil, nil
	}
	return nil, errors.Wrapf(ErrFrameOverflow, "%d bytes in %d parts, max frame %d",
		total, len(parts), c.opts.maxMsgLen)
}

// Send frames parts into one message and queues it without blocking.
// Frames queued while disconnected are sent after the next connect.
//
// Returns:
//   - nil: the frame was queued, or all parts were empty
//   - ErrFrameOverflow: the parts do not fit in one frame, or a part is nil
//   - ErrBufferFull: the send buffer is full, the frame was NOT queued
//   - ErrConnectorStopped: the connector is stopped
func (c *Connector) Send(parts ...[]byte) error {
	return c.enqueue(context.Background(), parts, false, 0)
}

// SendNative queues parts without a length header, for payloads that
// carry their own framing.
func (c *Connector) SendNative(parts ...[]byte) error {
	return c.enqueue(context.Background(), parts, true, 0)
}

// SendBlocking is Send, but waits for buffer space until ctx is done.
func (c *Connector) SendBlocking(ctx context.Context, parts ...[]byte) error {
	return c.enqueue(ctx, parts, false, -1)
}

// SendTimeout is Send, but waits up to timeout for buffer space before
// returning ErrBufferFull.
func (c *Connector) SendTimeout(timeout time.Duration, parts ...[]byte) error {
	return c.enqueue(context.Background(), parts, false, timeout)
}

// enqueue queues a frame. wait is 0 for no waiting, negative to wait on ctx
// alone, positive to wait at most that long.
func (c *Connector) enqueue(ctx context.Context, parts [][]byte, native bool, wait time.Duration) error {
	frame, err := c.pack(parts, native)
	if err != nil || frame == nil {
		return err
	}

	if wait == 0 {
		select {
		case c.sendMsg <- frame:
			return nil
		default:
			return ErrBufferFull
		}
	}

	var timeout <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case c.sendMsg <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return ErrBufferFull
	}
}
