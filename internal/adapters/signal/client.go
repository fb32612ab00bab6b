// Package signal implements the signaling channel over a websocket: it
// correlates request/ack round trips by request id and delivers the
// backend's notification stream in receipt order.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/okabe/liveroom/internal/core"
)

var errConnClosed = errors.New("connection closed")

type Options struct {
	PingPeriod   time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
}

func (o *Options) withDefaults() {
	if o.PingPeriod == 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.ReadLimit == 0 {
		o.ReadLimit = 32768
	}
}

// Client is one persistent signaling connection. Safe for concurrent
// Request callers; the notification channel has a single consumer.
type Client struct {
	conn *websocket.Conn
	opts Options

	send   chan []byte
	notifs chan core.Notification
	done   chan struct{}

	mu      sync.Mutex
	pending map[string]chan core.Ack
	closed  bool

	closeOnce sync.Once
}

// Dial connects and starts the pumps.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	opts.withDefaults()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, &core.TransportError{Op: "dial", Err: err}
	}
	c := &Client{
		conn:    conn,
		opts:    opts,
		send:    make(chan []byte, 32),
		notifs:  make(chan core.Notification, 256),
		done:    make(chan struct{}),
		pending: make(map[string]chan core.Ack),
	}
	go c.readPump()
	go c.writePump()
	return c, nil
}

// Request sends one request frame and suspends until the matching ack,
// ctx cancellation or connection loss.
func (c *Client) Request(ctx context.Context, event string, payload any) (core.Ack, error) {
	id := uuid.NewString()
	env := core.Envelope{Kind: core.KindRequest, ID: id, Event: event}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return core.Ack{}, &core.TransportError{Op: event, Err: err}
		}
		env.Payload = raw
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return core.Ack{}, &core.TransportError{Op: event, Err: err}
	}

	ch := make(chan core.Ack, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return core.Ack{}, &core.TransportError{Op: event, Err: errConnClosed}
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	select {
	case c.send <- frame:
	case <-c.done:
		return core.Ack{}, &core.TransportError{Op: event, Err: errConnClosed}
	case <-ctx.Done():
		return core.Ack{}, &core.TransportError{Op: event, Err: ctx.Err()}
	}

	select {
	case ack, ok := <-ch:
		if !ok {
			return core.Ack{}, &core.TransportError{Op: event, Err: errConnClosed}
		}
		return ack, nil
	case <-c.done:
		return core.Ack{}, &core.TransportError{Op: event, Err: errConnClosed}
	case <-ctx.Done():
		return core.Ack{}, &core.TransportError{Op: event, Err: ctx.Err()}
	}
}

func (c *Client) Notifications() <-chan core.Notification { return c.notifs }

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
		c.mu.Lock()
		c.closed = true
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.mu.Unlock()
	})
	return nil
}

func (c *Client) readPump() {
	defer func() {
		log.Info().Str("module", "signal.client").Msg("readPump closing")
		_ = c.Close()
		// Only this goroutine sends on notifs, so closing here is safe.
		close(c.notifs)
	}()

	c.conn.SetReadLimit(c.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PingPeriod + c.opts.WriteTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PingPeriod + c.opts.WriteTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Error().Err(err).Str("module", "signal.client").Msg("readPump read error")
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal.client").Msg("bad frame")
		return
	}

	switch env.Kind {
	case core.KindAck:
		c.mu.Lock()
		ch, ok := c.pending[env.ID]
		delete(c.pending, env.ID)
		c.mu.Unlock()
		if !ok {
			log.Warn().Str("module", "signal.client").Str("id", env.ID).Msg("ack without pending request")
			return
		}
		ch <- core.Ack{ID: env.ID, Request: env.Event, Code: env.Code, Reason: env.Reason, Payload: env.Payload}
	case core.KindNotify:
		n := core.Notification{
			Event:   env.Event,
			Room:    env.Room,
			Subject: env.Subject,
			Seq:     env.Seq,
			Origin:  env.Origin,
			Payload: env.Payload,
		}
		select {
		case c.notifs <- n:
		case <-c.done:
		}
	default:
		log.Warn().Str("module", "signal.client").Str("kind", env.Kind).Msg("unknown frame")
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			log.Info().Str("module", "signal.client").Msg("writePump done")
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal.client").Msg("writePump set deadline")
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal.client").Msg("writePump write error")
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal.client").Msg("writePump ping error")
				_ = c.Close()
				return
			}
		}
	}
}
