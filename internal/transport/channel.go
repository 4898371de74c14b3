package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"cipherchat/internal/domain"
	"cipherchat/internal/logging"
)

// Defaults for Config.
const (
	DefaultPath              = "/chat"
	DefaultHeartbeatInterval = 20 * time.Second
	DefaultConnectTimeout    = 10 * time.Second
	DefaultBaseDelay         = time.Second
	DefaultMaxDelay          = 30 * time.Second
	DefaultMaxAttempts       = 5
)

// Config configures a Channel. Zero values select the defaults.
type Config struct {
	BaseURL           string // e.g. ws://127.0.0.1:8080
	Path              string
	HeartbeatInterval time.Duration
	ConnectTimeout    time.Duration
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	MaxAttempts       int

	Dialer Dialer
	Clock  clock.Clock
	Logger *logrus.Entry
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Dialer == nil {
		c.Dialer = NewWebsocketDialer()
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	c.Logger = logging.OrDiscard(c.Logger, "transport")
	return c
}

// Channel is the single persistent connection to the chat server.
//
// All state sits behind mu. Every connection gets a new epoch; reader,
// heartbeat and reconnect callbacks carry the epoch they were started
// for and do nothing once it has moved on. Frames are dispatched on the
// reader goroutine in the order they arrive. Listeners and handlers are
// never called with mu held.
type Channel struct {
	cfg       Config
	log       *logrus.Entry
	registry  *Registry
	listeners *listeners

	mu           sync.Mutex
	state        domain.ConnectionState
	conn         Conn
	epoch        uint64
	credential   string
	intentional  bool
	attempts     int
	awaitingPong bool
	heartbeat    *clock.Timer
	reconnect    *clock.Timer
	cancelDial   context.CancelCauseFunc
}

// New returns a disconnected channel.
func New(cfg Config) *Channel {
	cfg = cfg.withDefaults()
	return &Channel{
		cfg:       cfg,
		log:       cfg.Logger,
		registry:  NewRegistry(cfg.Logger),
		listeners: &listeners{log: cfg.Logger},
	}
}

// Connect opens the connection using credential. It returns nil at once
// when already connected. Otherwise any previous handle is closed, a
// pending attempt is abandoned, and Connect blocks until the server
// accepts the connection, ctx ends, or the connect timeout elapses
// (ErrConnectionTimeout). A failed Connect does not schedule a reconnect.
func (c *Channel) Connect(ctx context.Context, credential string) error {
	c.mu.Lock()
	if c.state == domain.Connected {
		c.mu.Unlock()
		return nil
	}
	c.credential = credential
	c.intentional = false
	stale := c.resetLocked()
	c.state = domain.Connecting
	epoch := c.epoch
	c.mu.Unlock()

	if stale != nil {
		_ = stale.Close(CloseNormal, "reconnecting")
	}
	c.listeners.notify(domain.ConnectionEvent{State: domain.Connecting})

	if err := c.dial(ctx, epoch); err != nil {
		c.mu.Lock()
		current := c.epoch == epoch
		if current {
			c.state = domain.Disconnected
		}
		c.mu.Unlock()
		if current {
			c.listeners.notify(domain.ConnectionEvent{State: domain.Disconnected, Err: err})
		}
		return err
	}
	return nil
}

// Disconnect closes the connection on purpose. Heartbeat and reconnect
// timers are cancelled, the attempt counter is reset and no reconnect
// follows.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.intentional = true
	c.attempts = 0
	prev := c.state
	conn := c.resetLocked()
	epoch := c.epoch
	if conn != nil {
		c.state = domain.Closing
	} else {
		c.state = domain.Disconnected
	}
	c.mu.Unlock()

	if conn != nil {
		c.listeners.notify(domain.ConnectionEvent{State: domain.Closing})
		_ = conn.Close(CloseNormal, "User disconnected")

		c.mu.Lock()
		current := c.epoch == epoch
		if current {
			c.state = domain.Disconnected
		}
		c.mu.Unlock()
		if !current {
			return
		}
	}
	if prev != domain.Disconnected {
		c.log.Info("disconnected by user")
		c.listeners.notify(domain.ConnectionEvent{State: domain.Disconnected})
	}
}

// resetLocked stops timers, abandons any pending dial, detaches the
// current handle and starts a new epoch. It returns the detached handle.
func (c *Channel) resetLocked() Conn {
	c.epoch++
	c.stopHeartbeatLocked()
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	if c.cancelDial != nil {
		c.cancelDial(domain.ErrConnectionClosed)
		c.cancelDial = nil
	}
	conn := c.conn
	c.conn = nil
	c.awaitingPong = false
	return conn
}

// Send writes a typed frame. It returns false when the channel is not
// connected or the write fails; the frame is dropped.
func (c *Channel) Send(t domain.FrameType, payload any) bool {
	data, err := encodeFrame(t, payload)
	if err != nil {
		c.log.WithError(err).Warn("frame not sent")
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.Connected || c.conn == nil {
		c.log.WithField("type", t).Debug("not connected; frame dropped")
		return false
	}
	if err := c.conn.WriteMessage(data); err != nil {
		c.log.WithField("type", t).WithError(err).Warn("write failed; frame dropped")
		return false
	}
	return true
}

// Subscribe registers h for frames of type t.
func (c *Channel) Subscribe(t domain.FrameType, h domain.FrameHandler) domain.Subscription {
	return c.registry.Subscribe(t, h)
}

// OnConnectionChange registers l for connection events.
func (c *Channel) OnConnectionChange(l domain.ConnectionListener) domain.Subscription {
	return c.listeners.add(l)
}

// State returns the current connection state.
func (c *Channel) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the channel is connected.
func (c *Channel) IsConnected() bool { return c.State() == domain.Connected }

// Attempts returns the number of automatic reconnect attempts made since
// the last successful connect.
func (c *Channel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// dial opens a connection for epoch and, on success, installs it.
func (c *Channel) dial(ctx context.Context, epoch uint64) error {
	dctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return domain.ErrConnectionClosed
	}
	c.cancelDial = cancel
	target := ChatURL(c.cfg.BaseURL, c.cfg.Path, c.credential)
	c.mu.Unlock()

	timeout := c.cfg.Clock.AfterFunc(c.cfg.ConnectTimeout, func() {
		cancel(domain.ErrConnectionTimeout)
	})
	c.log.WithField("url", redact(target)).Debug("dialling")
	conn, err := c.cfg.Dialer.Dial(dctx, target)
	timeout.Stop()

	if err != nil {
		c.mu.Lock()
		if c.epoch == epoch {
			c.cancelDial = nil
		}
		c.mu.Unlock()
		switch cause := context.Cause(dctx); {
		case errors.Is(cause, domain.ErrConnectionTimeout):
			err = fmt.Errorf("%w after %s", domain.ErrConnectionTimeout, c.cfg.ConnectTimeout)
		case errors.Is(cause, domain.ErrConnectionClosed):
			err = fmt.Errorf("%w: connect abandoned", domain.ErrConnectionClosed)
		}
		c.log.WithError(err).Warn("connect failed")
		return err
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		_ = conn.Close(CloseNormal, "superseded")
		return fmt.Errorf("%w: connect abandoned", domain.ErrConnectionClosed)
	}
	c.cancelDial = nil
	c.conn = conn
	c.state = domain.Connected
	c.attempts = 0
	c.awaitingPong = false
	c.armHeartbeatLocked(epoch)
	c.mu.Unlock()

	c.log.Info("connected")
	go c.readLoop(conn, epoch)
	c.listeners.notify(domain.ConnectionEvent{State: domain.Connected})
	return nil
}

func (c *Channel) readLoop(conn Conn, epoch uint64) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.lost(epoch, asCloseError(err))
			return
		}
		switch string(data) {
		case pongFrame:
			c.mu.Lock()
			if c.epoch == epoch {
				c.awaitingPong = false
			}
			c.mu.Unlock()
			continue
		case pingFrame:
			continue
		}
		if !c.current(epoch) {
			return
		}
		f, err := decodeFrame(data)
		if err != nil {
			c.log.WithError(err).Warn("malformed frame dropped")
			continue
		}
		c.registry.Dispatch(f)
	}
}

func (c *Channel) current(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == epoch
}

// lost handles the end of the connection (or connection attempt) for
// epoch. Unless the close was intentional or normal it schedules a
// reconnect while the attempt budget lasts, and reports exhaustion to
// the listeners once it is spent.
func (c *Channel) lost(epoch uint64, cerr *CloseError) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	conn := c.resetLocked()
	c.state = domain.Disconnected
	ev := domain.ConnectionEvent{State: domain.Disconnected, Err: cerr}

	fields := logrus.Fields{"code": cerr.Code, "reason": cerr.Reason}
	switch {
	case c.intentional || cerr.Normal():
	case c.attempts < c.cfg.MaxAttempts:
		c.attempts++
		delay := Backoff(c.attempts, c.cfg.BaseDelay, c.cfg.MaxDelay)
		ev.Attempt = c.attempts
		next := c.epoch
		c.reconnect = c.cfg.Clock.AfterFunc(delay, func() { c.reconnectFired(next) })
		fields["attempt"] = c.attempts
		fields["delay"] = delay
	default:
		ev.Attempt = c.attempts
		ev.Err = fmt.Errorf("%w (%d): %w", domain.ErrMaxReconnectAttemptsExceeded, c.attempts, cerr)
	}
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(cerr.Code, cerr.Reason)
	}
	switch {
	case errors.Is(ev.Err, domain.ErrMaxReconnectAttemptsExceeded):
		c.log.WithFields(fields).Error("connection lost; reconnect attempts exhausted")
	case ev.Attempt > 0:
		c.log.WithFields(fields).Warn("connection lost; reconnect scheduled")
	default:
		c.log.WithFields(fields).Info("connection closed")
	}
	c.listeners.notify(ev)
}

func (c *Channel) reconnectFired(epoch uint64) {
	c.mu.Lock()
	if c.epoch != epoch || c.intentional || c.state != domain.Disconnected {
		c.mu.Unlock()
		return
	}
	c.reconnect = nil
	c.epoch++
	next := c.epoch
	c.state = domain.Connecting
	attempt := c.attempts
	c.mu.Unlock()

	c.log.WithField("attempt", attempt).Info("reconnecting")
	c.listeners.notify(domain.ConnectionEvent{State: domain.Connecting, Attempt: attempt})
	if err := c.dial(context.Background(), next); err != nil {
		c.lost(next, asCloseError(err))
	}
}

func (c *Channel) armHeartbeatLocked(epoch uint64) {
	c.heartbeat = c.cfg.Clock.AfterFunc(c.cfg.HeartbeatInterval, func() { c.heartbeatFired(epoch) })
}

func (c *Channel) stopHeartbeatLocked() {
	if c.heartbeat != nil {
		c.heartbeat.Stop()
		c.heartbeat = nil
	}
}

// heartbeatFired sends a ping, or force-closes the connection when the
// previous ping was never acknowledged.
func (c *Channel) heartbeatFired(epoch uint64) {
	c.mu.Lock()
	if c.epoch != epoch || c.state != domain.Connected || c.conn == nil {
		c.mu.Unlock()
		return
	}
	if c.awaitingPong {
		c.mu.Unlock()
		c.log.Warn("no heartbeat response; closing connection")
		c.lost(epoch, &CloseError{Code: CloseNoHeartbeat, Reason: "No heartbeat response"})
		return
	}
	c.awaitingPong = true
	if err := c.conn.WriteMessage([]byte(pingFrame)); err != nil {
		c.log.WithError(err).Warn("heartbeat write failed")
	}
	c.armHeartbeatLocked(epoch)
	c.mu.Unlock()
}

func asCloseError(err error) *CloseError {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce
	}
	return &CloseError{Code: CloseAbnormal, Reason: err.Error()}
}

// Compile-time assertion that Channel implements domain.Transport.
var _ domain.Transport = (*Channel)(nil)
