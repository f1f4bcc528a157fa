package channel

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Yahir019cx/pool-and-chill-app/internal/log"
	"github.com/Yahir019cx/pool-and-chill-app/internal/metrics"
	"github.com/Yahir019cx/pool-and-chill-app/internal/sdk"
	"github.com/Yahir019cx/pool-and-chill-app/internal/session"
)

// ErrTooManyConnections is returned by AddClient once MaxConnections is reached.
var ErrTooManyConnections = errors.New("too many connections")

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

// Broadcaster fans SDK state transitions and attempt updates out to every
// connected websocket client. Each client has its own buffered write pump;
// a client that falls behind is disconnected rather than slowing others.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	maxConns int

	state   sdk.StateSignal
	store   *session.Store
	privacy *session.PrivacyFilter
	logger  zerolog.Logger

	unsubscribe    func()
	detachStore    func()
	snapshotTicker *time.Ticker
	stopCh         chan struct{}
	stopOnce       sync.Once
	wg             sync.WaitGroup
}

// NewBroadcaster subscribes to state and store. A snapshotInterval of zero
// disables periodic snapshots; maxConns of zero means unlimited.
func NewBroadcaster(state sdk.StateSignal, store *session.Store, privacy *session.PrivacyFilter, snapshotInterval time.Duration, maxConns int) *Broadcaster {
	if privacy == nil {
		privacy = &session.PrivacyFilter{}
	}
	b := &Broadcaster{
		clients:  make(map[*client]bool),
		maxConns: maxConns,
		state:    state,
		store:    store,
		privacy:  privacy,
		logger:   log.WithComponent("channel.broadcast"),
		stopCh:   make(chan struct{}),
	}

	b.unsubscribe = state.Subscribe(func(st sdk.LifecycleState) {
		b.broadcast(Message{Type: MsgSDKState, Payload: st})
	})
	b.detachStore = store.OnChange(func(ev session.Event) {
		if ev.Attempt == nil {
			return
		}
		b.broadcast(Message{Type: MsgAttempt, Payload: b.privacy.Apply(ev.Attempt)})
	})

	if snapshotInterval > 0 {
		b.snapshotTicker = time.NewTicker(snapshotInterval)
		b.wg.Add(1)
		go b.snapshotLoop()
	}
	return b
}

// AddClient registers conn, starts its write pump and queues the initial
// snapshot.
func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	c := &client{
		conn: conn,
		b:    b,
		send: make(chan []byte, sendBuffer),
	}

	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	b.clients[c] = true
	count := len(b.clients)
	b.mu.Unlock()

	metrics.ChannelClients.Set(float64(count))
	go c.writePump()
	b.Send(c, b.snapshot())
	return c, nil
}

// RemoveClient unregisters c and stops its write pump. Safe to call twice.
func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	count := len(b.clients)
	b.mu.Unlock()
	metrics.ChannelClients.Set(float64(count))
}

// Send queues msg for c alone. Messages for a removed client are dropped.
func (b *Broadcaster) Send(c *client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Str("event", "channel.marshal_failed").Str("type", string(msg.Type)).Msg("marshal message")
		return
	}

	b.mu.RLock()
	_, ok := b.clients[c]
	slow := false
	if ok {
		select {
		case c.send <- data:
		default:
			slow = true
		}
	}
	b.mu.RUnlock()

	if slow {
		b.drop(c)
	}
}

func (b *Broadcaster) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Str("event", "channel.marshal_failed").Str("type", string(msg.Type)).Msg("marshal message")
		return
	}

	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		b.drop(c)
	}
}

func (b *Broadcaster) drop(c *client) {
	metrics.ChannelDroppedClientsTotal.Inc()
	b.logger.Warn().Str("event", "channel.client_dropped").Msg("ws client too slow, disconnecting")
	b.RemoveClient(c)
}

func (b *Broadcaster) snapshot() Message {
	return Message{
		Type: MsgSnapshot,
		Payload: SnapshotPayload{
			Channel:  ChannelName,
			State:    b.state.Current(),
			Attempts: b.FilterAttempts(b.store.GetAll()),
		},
	}
}

func (b *Broadcaster) snapshotLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopCh:
			return
		case <-b.snapshotTicker.C:
			b.broadcast(b.snapshot())
		}
	}
}

// FilterAttempts applies the privacy filter to attempts leaving the process.
func (b *Broadcaster) FilterAttempts(attempts []*session.Attempt) []*session.Attempt {
	if b.privacy.IsNoop() {
		return attempts
	}
	return b.privacy.FilterSlice(attempts)
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Stop detaches from the signal and store and disconnects every client.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		b.unsubscribe()
		b.detachStore()
		close(b.stopCh)
		if b.snapshotTicker != nil {
			b.snapshotTicker.Stop()
		}
		b.wg.Wait()

		b.mu.Lock()
		for c := range b.clients {
			delete(b.clients, c)
			close(c.send)
		}
		b.mu.Unlock()
		metrics.ChannelClients.Set(0)
	})
}
