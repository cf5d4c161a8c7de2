// Package notify implements the notification channel: one reconnecting
// websocket per user, fanning typed messages out to subscribers.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/BTreeMap/PsychIntake/internal/models"
	"github.com/BTreeMap/PsychIntake/internal/retry"
	"github.com/BTreeMap/PsychIntake/internal/timer"
)

// Lifecycle events published on the same bus as server messages.
const (
	EventConnected     = "connected"
	EventDisconnected  = "disconnected"
	EventError         = "error"
	EventAuthenticated = "authenticated"
	// EventMessage receives every dispatched server message after its
	// type-specific subscribers.
	EventMessage = "message"
	// EventMaxReconnect is published once when the reconnect budget runs out.
	EventMaxReconnect = "max_reconnect_attempts_reached"
)

// Default channel timings.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultConnectTimeout    = 10 * time.Second
	writeTimeout             = 10 * time.Second
	maxMessageSize           = 1 << 20
)

// State is the connection state of a Channel.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Snapshot is a point-in-time view of the channel.
type Snapshot struct {
	State             State
	ReconnectAttempts int
	LastMessageAt     time.Time
	ConnectionID      string
}

// Connected reports whether the snapshot was taken while connected.
func (s Snapshot) Connected() bool { return s.State == StateConnected }

// Opts configures a Channel.
type Opts struct {
	URL               string
	Policy            retry.Policy
	HeartbeatInterval time.Duration
	ConnectTimeout    time.Duration
	Timer             *timer.SimpleTimer
}

// Option defines a functional option for configuring a Channel.
type Option func(*Opts)

// WithRetryPolicy sets the reconnect policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *Opts) { o.Policy = p }
}

// WithHeartbeatInterval sets how often a keep-alive is sent while connected.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *Opts) { o.HeartbeatInterval = d }
}

// WithConnectTimeout bounds each dial.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ConnectTimeout = d }
}

// WithTimer shares a timer with other components.
func WithTimer(t *timer.SimpleTimer) Option {
	return func(o *Opts) { o.Timer = t }
}

// Channel is a reconnecting websocket client. Reconnects follow its retry
// policy after any closure other than a normal one; a successful connect
// restores the full budget.
type Channel struct {
	url       string
	policy    retry.Policy
	heartbeat time.Duration
	dialer    *websocket.Dialer
	timer     *timer.SimpleTimer
	ownsTimer bool
	bus       *Bus

	mu            sync.Mutex
	conn          *websocket.Conn
	state         State
	attempts      *retry.Counter
	maxSignalled  bool
	closing       bool
	reconnectID   string
	heartbeatID   string
	connectionID  string
	lastMessageAt time.Time

	writeMu sync.Mutex
}

// NewChannel creates a disconnected channel for the websocket URL.
func NewChannel(url string, opts ...Option) *Channel {
	cfg := Opts{
		URL:               url,
		Policy:            retry.DefaultPolicy(),
		HeartbeatInterval: DefaultHeartbeatInterval,
		ConnectTimeout:    DefaultConnectTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &Channel{
		url:       cfg.URL,
		policy:    cfg.Policy,
		heartbeat: cfg.HeartbeatInterval,
		dialer:    &websocket.Dialer{HandshakeTimeout: cfg.ConnectTimeout},
		timer:     cfg.Timer,
		bus:       NewBus(),
		state:     StateDisconnected,
		attempts:  retry.NewCounter(cfg.Policy),
	}
	if c.timer == nil {
		c.timer = timer.NewSimpleTimer()
		c.ownsTimer = true
	}
	return c
}

// Subscribe registers fn for a message type or lifecycle event and returns
// an unsubscribe function.
func (c *Channel) Subscribe(eventType string, fn Handler) func() {
	return c.bus.Subscribe(eventType, fn)
}

// Snapshot returns the current state.
func (c *Channel) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:             c.state,
		ReconnectAttempts: c.attempts.Attempts(),
		LastMessageAt:     c.lastMessageAt,
		ConnectionID:      c.connectionID,
	}
}

// Connect dials the server unless a connection exists or is being made.
// A failed dial is reported and, like a dropped connection, schedules a reconnect.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.closing = false
	c.mu.Unlock()
	return c.connect(ctx)
}

func (c *Channel) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closing || c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	slog.Debug("notify.Channel.Connect: dialing", "attempts", c.Snapshot().ReconnectAttempts)
	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		slog.Warn("notify.Channel.Connect: dial failed", "error", err)
		c.bus.Publish(EventError, lifecycleMessage(EventError, err.Error()))
		c.scheduleReconnect()
		return err
	}
	conn.SetReadLimit(maxMessageSize)

	c.mu.Lock()
	if c.closing {
		c.state = StateDisconnected
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.state = StateConnected
	c.attempts.Reset()
	c.maxSignalled = false
	if c.heartbeat > 0 {
		c.heartbeatID = c.timer.ScheduleEvery(c.heartbeat, "notify heartbeat", c.sendHeartbeat)
	}
	c.mu.Unlock()

	slog.Info("notify.Channel.Connect: connected")
	c.bus.Publish(EventConnected, lifecycleMessage(EventConnected, ""))
	go c.readLoop(conn)
	return nil
}

func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	if c.closing || c.reconnectID != "" {
		c.mu.Unlock()
		return
	}
	attempt, delay, ok := c.attempts.Next()
	if !ok {
		signal := !c.maxSignalled
		c.maxSignalled = true
		c.mu.Unlock()
		if signal {
			slog.Warn("notify.Channel: reconnect attempts exhausted", "max_attempts", c.policy.MaxAttempts)
			c.bus.Publish(EventMaxReconnect, lifecycleMessage(EventMaxReconnect, ""))
		}
		return
	}
	c.reconnectID = c.timer.ScheduleAfter(delay, "notify reconnect", func() {
		c.mu.Lock()
		c.reconnectID = ""
		c.mu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), c.dialer.HandshakeTimeout)
		defer cancel()
		_ = c.connect(ctx)
	})
	c.mu.Unlock()
	slog.Info("notify.Channel: reconnect scheduled", "attempt", attempt, "max_attempts", c.policy.MaxAttempts, "delay", delay)
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		c.handleMessage(data)
	}
}

func (c *Channel) handleClose(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	c.connectionID = ""
	if c.heartbeatID != "" {
		c.timer.Cancel(c.heartbeatID)
		c.heartbeatID = ""
	}
	closing := c.closing
	c.mu.Unlock()
	conn.Close()

	code := websocket.CloseAbnormalClosure
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code = ce.Code
	}
	slog.Info("notify.Channel: disconnected", "code", code, "client_initiated", closing)
	data, _ := json.Marshal(map[string]int{"code": code})
	c.bus.Publish(EventDisconnected, models.NotificationMessage{Type: EventDisconnected, Data: data})

	if closing || code == websocket.CloseNormalClosure {
		return
	}
	c.scheduleReconnect()
}

func (c *Channel) handleMessage(data []byte) {
	var msg models.NotificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("notify.Channel: dropping unreadable message", "error", err)
		return
	}
	c.mu.Lock()
	c.lastMessageAt = time.Now()
	c.mu.Unlock()

	switch msg.Type {
	case models.MsgPing:
		if err := c.Send(models.NotificationMessage{Type: models.MsgPong}); err != nil {
			slog.Warn("notify.Channel: failed to answer ping", "error", err)
		}
	case models.MsgConnectionEstablished:
		id := gjson.GetBytes(msg.Data, "user_id").String()
		c.mu.Lock()
		c.connectionID = id
		c.mu.Unlock()
		slog.Debug("notify.Channel: authenticated", "connection_id", id)
		c.bus.Publish(EventAuthenticated, msg)
	default:
		c.bus.Publish(msg.Type, msg)
		c.bus.Publish(EventMessage, msg)
	}
}

func (c *Channel) sendHeartbeat() {
	if err := c.Send(models.NotificationMessage{Type: models.MsgPong}); err != nil {
		slog.Debug("notify.Channel: heartbeat skipped", "error", err)
	}
}

// Send writes msg to the server. It fails with models.ErrNotConnected when
// there is no open connection.
func (c *Channel) Send(msg models.NotificationMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return models.ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}

// MarkNotificationRead tells the server notification id has been read.
func (c *Channel) MarkNotificationRead(id string) error {
	return c.Send(models.NewMarkReadMessage(id))
}

// Visible is called when the user returns to the client; it reconnects if
// the channel is down.
func (c *Channel) Visible(ctx context.Context) error {
	if c.Snapshot().Connected() {
		return nil
	}
	c.mu.Lock()
	if c.reconnectID != "" {
		c.timer.Cancel(c.reconnectID)
		c.reconnectID = ""
	}
	c.mu.Unlock()
	return c.Connect(ctx)
}

// Close disconnects cleanly with a normal closure and cancels any pending
// reconnect. The channel can be connected again later with a fresh
// reconnect budget.
func (c *Channel) Close() error {
	c.mu.Lock()
	c.closing = true
	c.attempts.Reset()
	c.maxSignalled = false
	if c.reconnectID != "" {
		c.timer.Cancel(c.reconnectID)
		c.reconnectID = ""
	}
	if c.heartbeatID != "" {
		c.timer.Cancel(c.heartbeatID)
		c.heartbeatID = ""
	}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing"),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	// The read loop sees the close and finishes teardown; closing the socket
	// here bounds that wait if the server never answers.
	time.AfterFunc(time.Second, func() { conn.Close() })
	return err
}

// Shutdown closes the channel and stops its timer if the channel created it.
func (c *Channel) Shutdown() error {
	err := c.Close()
	if c.ownsTimer {
		c.timer.Stop()
	}
	return err
}

func lifecycleMessage(eventType, text string) models.NotificationMessage {
	return models.NotificationMessage{Type: eventType, Message: text}
}
