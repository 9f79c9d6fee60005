// Package channel maintains the process-wide realtime connection to the chat
// backend: one websocket, created at startup, shared by every view, with
// automatic reconnection and named-event dispatch.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/litechat/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 64
	maxFrameSize   = 1 << 20
)

// ErrNotConnected is returned by Emit while the channel is down. Delivery is
// fire-and-forget in every other respect.
var ErrNotConnected = errors.New("not connected to chat server")

// Handler receives the raw payload of a subscribed event.
type Handler func(data json.RawMessage)

// Config tunes the reconnect policy. Zero values take the defaults matching
// the service contract: 1s initial delay, 5s cap, 999 attempts.
type Config struct {
	URL          string
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

func (c *Config) defaults() {
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 999
	}
}

type subscription struct {
	id int
	fn Handler
}

// Channel is the shared realtime connection. Construct with New, inject into
// views, Start once, Close on shutdown.
type Channel struct {
	cfg Config

	mu      sync.Mutex
	conn    *websocket.Conn
	subs    map[string][]subscription
	nextSub int

	send      chan protocol.Envelope
	connected atomic.Bool
	closed    atomic.Bool
	done      chan struct{}
	wg        sync.WaitGroup
}

func New(cfg Config) *Channel {
	cfg.defaults()
	return &Channel{
		cfg:  cfg,
		subs: map[string][]subscription{},
		send: make(chan protocol.Envelope, sendBufferSize),
		done: make(chan struct{}),
	}
}

// Start launches the connect/reconnect loop. It returns immediately; the
// first dial happens in the background.
func (c *Channel) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
}

// Connected reports whether a live websocket is up right now.
func (c *Channel) Connected() bool { return c.connected.Load() }

// Emit queues an event for delivery. No acknowledgement, no delivery
// guarantee; the only failure surfaced is not being connected at all.
func (c *Channel) Emit(event string, payload any) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	select {
	case c.send <- env:
	default:
		// drop oldest to avoid blocking the caller
		select {
		case <-c.send:
		default:
		}
		c.send <- env
	}
	return nil
}

// Subscribe registers fn for event and returns a token for Unsubscribe.
// Handlers run on the reader goroutine; keep them short.
func (c *Channel) Subscribe(event string, fn Handler) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	c.subs[event] = append(c.subs[event], subscription{id: c.nextSub, fn: fn})
	return c.nextSub
}

// Unsubscribe removes a handler registered by Subscribe. Views call this on
// unmount so handlers are never registered twice.
func (c *Channel) Unsubscribe(event string, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := c.subs[event]
	for i, s := range subs {
		if s.id == id {
			c.subs[event] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Close tears the channel down and waits for its goroutines.
func (c *Channel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = c.conn.Close()
	}
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}

func (c *Channel) run(ctx context.Context) {
	defer c.wg.Done()

	pol := backoff.NewExponentialBackOff()
	pol.InitialInterval = c.cfg.InitialDelay
	pol.MaxInterval = c.cfg.MaxDelay
	pol.MaxElapsedTime = 0

	attempts := 0
	for {
		if c.stopped(ctx) {
			return
		}
		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			attempts++
			log.Debug().Err(err).Int("attempt", attempts).Msg("[channel] connect_error")
			if attempts >= c.cfg.MaxAttempts {
				log.Error().Msg("[channel] retry ceiling reached, giving up")
				return
			}
			if !c.sleep(ctx, pol.NextBackOff()) {
				return
			}
			continue
		}

		log.Info().Str("url", c.cfg.URL).Msg("[channel] connect")
		pol.Reset()
		attempts = 0

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.connected.Store(true)

		c.serve(ctx, conn)

		c.connected.Store(false)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
		log.Info().Msg("[channel] disconnect")
	}
}

// serve pumps one live connection until it drops: a reader dispatching
// inbound envelopes and a writer draining the send queue with pings.
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn) {
	readDone := make(chan struct{})

	go func() {
		defer close(readDone)
		conn.SetReadLimit(maxFrameSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			var env protocol.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				log.Debug().Err(err).Msg("[channel] read")
				return
			}
			c.dispatch(env)
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case env := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				log.Debug().Err(err).Str("event", env.Event).Msg("[channel] write")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			return
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}

func (c *Channel) dispatch(env protocol.Envelope) {
	c.mu.Lock()
	subs := append([]subscription(nil), c.subs[env.Event]...)
	c.mu.Unlock()
	for _, s := range subs {
		s.fn(env.Data)
	}
}

func (c *Channel) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-c.done:
		return true
	default:
		return c.closed.Load()
	}
}

func (c *Channel) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-c.done:
		return false
	}
}
