package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zapdeskhq/zapdesk/internal/gateway"
)

const (
	handshakeTimeout     = 10 * time.Second
	maxReconnectAttempts = 5
	defaultReconnectBase = 2 * time.Second
	maxInstanceNameLen   = 20
)

// NormalizeInstanceName derives the socket path segment from an instance
// name: lowercase, alphanumerics only, truncated to 20 characters. It must
// match the derivation used when the instance was created on the gateway or
// the socket silently delivers nothing.
func NormalizeInstanceName(name string) string {
	var builder strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			builder.WriteRune(r)
		}
		if builder.Len() >= maxInstanceNameLen {
			break
		}
	}
	return builder.String()
}

// SocketURL builds the realtime endpoint for an instance.
func SocketURL(wsBaseURL, instanceName, apiKey string) string {
	return strings.TrimRight(wsBaseURL, "/") +
		"/websocket/" + NormalizeInstanceName(instanceName) +
		"?apikey=" + url.QueryEscape(apiKey)
}

type connState string

const (
	stateConnecting   connState = "connecting"
	stateConnected    connState = "connected"
	stateReconnecting connState = "reconnecting"
	stateDisconnected connState = "disconnected"
)

// connection is one channel's socket lifecycle: dial, read, reconnect with
// linear backoff, and give up after the attempt cap.
type connection struct {
	channelID     string
	inst          gateway.Instance
	endpoint      string
	logger        *slog.Logger
	emit          func(event Event)
	reconnectBase time.Duration
	dialer        *websocket.Dialer

	mu     sync.Mutex
	state  connState
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

func newConnection(log *slog.Logger, channelID string, inst gateway.Instance, wsBaseURL string, reconnectBase time.Duration, emit func(event Event)) *connection {
	if reconnectBase <= 0 {
		reconnectBase = defaultReconnectBase
	}
	return &connection{
		channelID:     channelID,
		inst:          inst,
		endpoint:      SocketURL(wsBaseURL, inst.Name, inst.APIKey),
		logger:        log.With(slog.String("channel_id", channelID), slog.String("instance", inst.Name)),
		emit:          emit,
		reconnectBase: reconnectBase,
		dialer:        &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		state:         stateConnecting,
		done:          make(chan struct{}),
	}
}

// start dials the socket and launches the read loop. The first dial failure
// is returned to the caller; reconnects after that are handled internally.
func (c *connection) start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		cancel()
		c.setState(stateDisconnected)
		close(c.done)
		return err
	}
	c.setConn(conn)
	c.setState(stateConnected)
	c.logger.Info("realtime socket connected", slog.String("url", gateway.RedactURL(c.endpoint)))

	go c.run(runCtx, conn)
	return nil
}

func (c *connection) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// run reads frames until the socket drops, then reconnects with a delay of
// reconnectBase * attemptNumber. Exhausting the attempt cap emits a fatal
// connection-lost event.
func (c *connection) run(ctx context.Context, conn *websocket.Conn) {
	defer close(c.done)
	attempts := 0
	for {
		c.readLoop(ctx, conn)
		if ctx.Err() != nil {
			c.setState(stateDisconnected)
			return
		}

		c.setState(stateReconnecting)
		reconnected := false
		for attempts < maxReconnectAttempts {
			attempts++
			delay := c.reconnectBase * time.Duration(attempts)
			c.logger.Warn("realtime socket dropped, reconnecting",
				slog.Int("attempt", attempts),
				slog.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				c.setState(stateDisconnected)
				return
			case <-time.After(delay):
			}
			next, err := c.dial(ctx)
			if err != nil {
				c.logger.Warn("reconnect failed",
					slog.Int("attempt", attempts),
					slog.String("error", gateway.Redact(err.Error())),
				)
				continue
			}
			conn = next
			c.setConn(conn)
			c.setState(stateConnected)
			attempts = 0
			reconnected = true
			c.logger.Info("realtime socket reconnected")
			break
		}
		if !reconnected {
			c.setState(stateDisconnected)
			c.logger.Error("reconnect attempts exhausted, connection lost")
			c.emit(Event{
				Kind:      EventConnectionLost,
				ChannelID: c.channelID,
				Instance:  c.inst.Name,
			})
			return
		}
	}
}

// readLoop consumes frames until a read error. Unrecognized events are
// logged and dropped.
func (c *connection) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Debug("socket read ended", slog.String("error", err.Error()))
			}
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("malformed realtime frame", slog.String("error", err.Error()))
			continue
		}
		c.dispatch(f)
	}
}

func (c *connection) dispatch(f frame) {
	event := Event{
		ChannelID: c.channelID,
		Instance:  c.inst.Name,
		Raw:       f.Data,
	}
	switch f.Event {
	case FrameMessagesUpsert:
		msg, err := DecodeInboundMessage(f.Data)
		if err != nil {
			c.logger.Warn("dropping undecodable message", slog.String("error", err.Error()))
			return
		}
		event.Kind = EventMessage
		event.Message = &msg
	case FrameConnectionState:
		event.Kind = EventConnectionUpdate
		event.State = decodeConnectionState(f.Data)
	case FrameMessagesUpdate:
		event.Kind = EventMessageUpdate
	case FrameMessagesDelete:
		event.Kind = EventMessageDelete
	default:
		c.logger.Debug("ignoring unrecognized event", slog.String("event", f.Event))
		return
	}
	c.emit(event)
}

// close tears the connection down and waits for the read loop to exit.
func (c *connection) close() {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
	<-c.done
	c.setState(stateDisconnected)
}

func (c *connection) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *connection) setState(state connState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *connection) currentState() connState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *connection) isActive() bool {
	state := c.currentState()
	return state == stateConnected || state == stateConnecting || state == stateReconnecting
}
