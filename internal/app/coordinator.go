// Package app holds the room session coordinator: the single owner of
// local room, seat and PK state. It reconciles inbound signaling
// notifications and local intents into consistent transitions, drives the
// media engine, and feeds the presentation sink.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/okabe/liveroom/internal/core"
	"github.com/okabe/liveroom/internal/domain"
)

// Phase is the coarse session state. PK sub-state lives on the pairing.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCreating
	PhaseJoining
	PhaseActive
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseCreating:
		return "creating"
	case PhaseJoining:
		return "joining"
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	default:
		return "idle"
	}
}

var ErrClosed = errors.New("coordinator closed")

// contextWithTimeout bounds fire-and-forget requests issued off the loop,
// like the busy rejection of a PK invite.
func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

const (
	DefaultPKInviteTimeout = 10 * time.Second

	mailboxSize = 64

	// pendingLimit caps notifications held back while a join is in flight.
	pendingLimit = 128

	// issuedTTL bounds how long self-issued request ids are remembered for
	// echo suppression.
	issuedTTL = 5 * time.Minute
)

// Coordinator is a single-writer actor. All state below the mailbox is
// touched only by the Run goroutine; public methods post closures onto the
// mailbox and suspend only at the signaling and engine boundaries.
type Coordinator struct {
	sig  core.Signaling
	eng  core.Engine
	sink core.Sink

	pkTimeout time.Duration

	mailbox chan func()
	done    chan struct{}

	// loop-goroutine state
	phase       Phase
	self        *domain.User
	room        *domain.Room
	host        *domain.User
	seats       domain.SeatList
	audience    map[domain.UserID]*domain.User
	applies     map[domain.UserID]int // pending seat applications seen by the host
	invitedSeat int                   // seat the host offered us, 0 when none
	pk          *domain.PKPairing
	pkTimer     *time.Timer
	pkAnchors   []core.PKAnchor
	quality     map[domain.UserID]core.NetworkQuality
	journal     *journal
	issued      map[string]time.Time
	pending     []core.Notification
}

type Option func(*Coordinator)

func WithPKInviteTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.pkTimeout = d }
}

func New(sig core.Signaling, eng core.Engine, sink core.Sink, opts ...Option) *Coordinator {
	c := &Coordinator{
		sig:       sig,
		eng:       eng,
		sink:      sink,
		pkTimeout: DefaultPKInviteTimeout,
		mailbox:   make(chan func(), mailboxSize),
		done:      make(chan struct{}),
		phase:     PhaseIdle,
		audience:  make(map[domain.UserID]*domain.User),
		applies:   make(map[domain.UserID]int),
		quality:   make(map[domain.UserID]core.NetworkQuality),
		journal:   newJournal(),
		issued:    make(map[string]time.Time),
	}
	for _, o := range opts {
		o(c)
	}
	eng.SetObserver(c)
	return c
}

// Run drains the mailbox and the notification stream until ctx ends.
// Notifications are applied in receipt order; nothing here blocks.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)
	notifs := c.sig.Notifications()
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-c.mailbox:
			fn()
		case n, ok := <-notifs:
			if !ok {
				notifs = nil
				continue
			}
			c.handleNotification(n)
		}
	}
}

// do runs fn on the loop goroutine and waits for it. Cancellation abandons
// the wait, never the closure: once posted, fn runs.
func (c *Coordinator) do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	wrapped := func() {
		fn()
		close(ran)
	}
	select {
	case c.mailbox <- wrapped:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ran:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post schedules fn without waiting; used by timers and engine callbacks.
// Transient readings may be dropped when the mailbox is full rather than
// blocking an engine thread.
func (c *Coordinator) post(fn func(), droppable bool) {
	if droppable {
		select {
		case c.mailbox <- fn:
		case <-c.done:
		default:
			log.Debug().Str("module", "app.coordinator").Msg("mailbox full, reading dropped")
		}
		return
	}
	select {
	case c.mailbox <- fn:
	case <-c.done:
	}
}

// request performs one signaling round trip and decodes a successful ack
// payload into out. Non-zero ack codes become BackendError.
func (c *Coordinator) request(ctx context.Context, name string, payload, out any) (core.Ack, error) {
	ack, err := c.sig.Request(ctx, name, payload)
	if err != nil {
		return ack, err
	}
	if ack.Code != 0 {
		return ack, &core.BackendError{Request: name, Code: ack.Code, Reason: ack.Reason}
	}
	if out != nil && len(ack.Payload) > 0 {
		if err := json.Unmarshal(ack.Payload, out); err != nil {
			return ack, &core.TransportError{Op: name, Err: err}
		}
	}
	return ack, nil
}

// markIssued remembers a request id so the notification it causes is
// recognized as our own echo. Runs on the loop goroutine.
func (c *Coordinator) markIssued(id string) {
	if id == "" {
		return
	}
	now := time.Now()
	for k, t := range c.issued {
		if now.Sub(t) > issuedTTL {
			delete(c.issued, k)
		}
	}
	c.issued[id] = now
}

func (c *Coordinator) userByID(id domain.UserID) *domain.User {
	if c.self != nil && c.self.ID == id {
		return c.self
	}
	if c.host != nil && c.host.ID == id {
		return c.host
	}
	if seat, ok := c.seats.SeatOf(id); ok {
		return seat.User
	}
	if u, ok := c.audience[id]; ok {
		return u
	}
	return nil
}

func (c *Coordinator) publish(e core.SessionEvent) {
	if c.sink != nil {
		c.sink.Consume(e)
	}
}

func (c *Coordinator) publishSeats() {
	c.publish(core.SessionEvent{Type: core.EventSeatsUpdated, Seats: c.seats.Clone()})
}

func (c *Coordinator) publishPK() {
	state := domain.PKNone
	var pk *domain.PKPairing
	if c.pk != nil {
		state = c.pk.State
		cp := *c.pk
		pk = &cp
	}
	c.publish(core.SessionEvent{Type: core.EventPKStateChanged, PKState: state, PK: pk})
}

// resetSession clears all per-room state. Engine resources must already be
// released by the caller.
func (c *Coordinator) resetSession(phase Phase) {
	c.phase = phase
	c.self = nil
	c.room = nil
	c.host = nil
	c.seats = nil
	c.audience = make(map[domain.UserID]*domain.User)
	c.applies = make(map[domain.UserID]int)
	c.invitedSeat = 0
	c.stopPKTimer()
	c.pk = nil
	c.pkAnchors = nil
	c.quality = make(map[domain.UserID]core.NetworkQuality)
	c.journal.reset()
	c.pending = nil
}

func (c *Coordinator) stopPKTimer() {
	if c.pkTimer != nil {
		c.pkTimer.Stop()
		c.pkTimer = nil
	}
}

// --- engine observer (called on engine goroutines) ---

func (c *Coordinator) OnVolumesReported(levels map[domain.UserID]int) {
	cp := make(map[domain.UserID]int, len(levels))
	for k, v := range levels {
		cp[k] = v
	}
	c.post(func() {
		if c.phase != PhaseActive {
			return
		}
		for id, v := range cp {
			if u := c.userByID(id); u != nil {
				u.SetVolume(v)
			}
		}
		c.publish(core.SessionEvent{Type: core.EventVolumesUpdated, Volumes: cp})
	}, true)
}

func (c *Coordinator) OnNetworkQuality(uid domain.UserID, q core.NetworkQuality) {
	c.post(func() {
		if c.phase != PhaseActive {
			return
		}
		c.quality[uid] = q
		out := make(map[domain.UserID]core.NetworkQuality, len(c.quality))
		for k, v := range c.quality {
			out[k] = v
		}
		c.publish(core.SessionEvent{Type: core.EventNetworkUpdated, Quality: out})
	}, true)
}

func (c *Coordinator) OnFirstRemoteVideoFrame(uid domain.UserID) {
	log.Debug().Str("module", "app.coordinator").Str("uid", string(uid)).Msg("first remote video frame")
}
