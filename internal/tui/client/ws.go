package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Yahir019cx/pool-and-chill-app/internal/log"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

// WSClient manages the method-channel connection to the bridge daemon.
type WSClient struct {
	url    string
	token  string
	logger zerolog.Logger

	mu      sync.Mutex
	writeMu sync.Mutex // serialises all conn writes (ping, invoke)
	conn    *websocket.Conn
	nextID  uint64
	pingCtx context.CancelFunc // cancels the active ping goroutine
}

// NewWSClient creates a client that connects to the given WebSocket URL.
func NewWSClient(url, token string) *WSClient {
	return &WSClient{url: url, token: token, logger: log.WithComponent("tui.ws")}
}

// --- Bubble Tea messages ---

// WSConnectedMsg is sent when the WebSocket connects.
type WSConnectedMsg struct{}

// WSDisconnectedMsg is sent when the connection drops.
type WSDisconnectedMsg struct{ Err error }

// WSSnapshotMsg delivers the SDK state and recent attempts sent on connect.
type WSSnapshotMsg struct{ Payload SnapshotPayload }

// WSStateMsg reports an SDK lifecycle transition.
type WSStateMsg struct{ State LifecycleState }

// WSAttemptMsg reports a change to one verification attempt.
type WSAttemptMsg struct{ Attempt Attempt }

// WSResultMsg is the reply to an invocation.
type WSResultMsg struct{ Result Result }

// WSErrorMsg is a channel-level error not tied to a pending invocation.
type WSErrorMsg struct {
	ID  string
	Err *ErrorPayload
}

// Listen returns a Bubble Tea command that connects and dispatches messages.
// It reconnects automatically on disconnect.
func (c *WSClient) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		delay := reconnectBaseDelay
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, c.header())
			if err != nil {
				c.logger.Debug().Err(err).Dur("retry_in", delay).Msg("ws dial error")
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(delay):
				}
				delay = min(delay*2, reconnectMaxDelay)
				continue
			}

			// Cancel any previous ping goroutine.
			c.mu.Lock()
			if c.pingCtx != nil {
				c.pingCtx()
			}
			pingCtx, pingCancel := context.WithCancel(ctx)
			c.conn = conn
			c.pingCtx = pingCancel
			c.mu.Unlock()

			go c.pingLoop(pingCtx, conn)

			return WSConnectedMsg{}
		}
	}
}

func (c *WSClient) header() http.Header {
	if c.token == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.token)
	return h
}

// ReadLoop returns a Bubble Tea command that reads messages from the connection.
// It returns after the first message that maps to a Bubble Tea message and
// should be re-issued by the caller after handling it.
func (c *WSClient) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return WSDisconnectedMsg{Err: fmt.Errorf("no connection")}
		}

		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongTimeout))
			return nil
		})
		conn.SetReadDeadline(time.Now().Add(pongTimeout))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.mu.Lock()
				if c.conn == conn {
					c.conn = nil
				}
				c.mu.Unlock()
				conn.Close()
				return WSDisconnectedMsg{Err: err}
			}

			var msg WSMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				c.logger.Debug().Err(err).Msg("ws decode error")
				continue
			}

			if teaMsg := dispatch(msg); teaMsg != nil {
				return teaMsg
			}
		}
	}
}

// pingLoop sends periodic pings on the given connection. It exits when the
// context is cancelled or the connection changes.
func (c *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			cc := c.conn
			c.mu.Unlock()
			if cc != conn {
				return
			}
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// NextInvocationID returns a fresh ID for correlating an invocation with
// its result frame.
func (c *WSClient) NextInvocationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	return fmt.Sprintf("tui-%d", c.nextID)
}

// StartVerification sends a startDiditVerification invocation under id.
func (c *WSClient) StartVerification(id, token string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(WSMessage{
		Type:   MsgInvoke,
		ID:     id,
		Method: MethodStartVerification,
		Args:   StartArgs{SessionToken: token},
	})
}

// Close cancels the ping goroutine and closes the active connection.
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pingCtx != nil {
		c.pingCtx()
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func dispatch(msg WSMessage) tea.Msg {
	switch msg.Type {
	case MsgSnapshot:
		var p SnapshotPayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			return WSSnapshotMsg{Payload: p}
		}
	case MsgSDKState:
		var p LifecycleState
		if json.Unmarshal(msg.Payload, &p) == nil {
			return WSStateMsg{State: p}
		}
	case MsgAttempt:
		var p Attempt
		if json.Unmarshal(msg.Payload, &p) == nil {
			return WSAttemptMsg{Attempt: p}
		}
	case MsgResult:
		return WSResultMsg{Result: decodeResult(msg)}
	case MsgError:
		if msg.Error == nil {
			msg.Error = &ErrorPayload{Code: "UNKNOWN", Message: "malformed error frame"}
		}
		return WSErrorMsg{ID: msg.ID, Err: msg.Error}
	}
	return nil
}

// decodeResult maps a result frame onto Result. A null payload means the
// verification UI was launched without a final status.
func decodeResult(msg WSMessage) Result {
	r := Result{ID: msg.ID, Err: msg.Error}
	if r.Err != nil || len(msg.Payload) == 0 || string(msg.Payload) == "null" {
		return r
	}
	var s string
	if json.Unmarshal(msg.Payload, &s) == nil {
		r.Value = &s
	}
	return r
}
