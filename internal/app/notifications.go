package app

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/okabe/liveroom/internal/core"
	"github.com/okabe/liveroom/internal/domain"
)

// handleNotification reconciles one inbound event against local state.
// Runs on the loop goroutine. Duplicates and self-echoes are dropped
// before any handler sees them; stale events are dropped inside the
// handlers once local state says they are superseded.
func (c *Coordinator) handleNotification(n core.Notification) {
	logger := log.With().
		Str("module", "app.coordinator").
		Str("event", n.Event).
		Str("subject", n.Subject).
		Logger()

	if c.phase != PhaseActive {
		// The backend considers us a member from the join ack onwards, so
		// deltas fanned out while the engine join is still in flight are
		// already ours. Hold them and replay once the session commits.
		if c.phase == PhaseCreating || c.phase == PhaseJoining {
			if len(c.pending) >= pendingLimit {
				logger.Warn().Msg("join window buffer full, notification dropped")
				return
			}
			c.pending = append(c.pending, n)
			return
		}
		logger.Debug().Str("phase", c.phase.String()).Msg("notification outside active session dropped")
		return
	}
	if c.room != nil && n.Room != "" && n.Room != c.room.ID {
		logger.Debug().Str("room", string(n.Room)).Msg("notification for another room dropped")
		return
	}
	if n.Origin != "" {
		if _, ours := c.issued[n.Origin]; ours {
			logger.Debug().Str("origin", n.Origin).Msg("self echo dropped")
			return
		}
	}
	if !c.journal.observe(n.Event, n.Subject, n.Seq) {
		logger.Debug().Str("seq", n.Seq).Msg("duplicate notification dropped")
		return
	}

	switch n.Event {
	case core.EvtAudienceJoin:
		c.onAudienceJoin(n)
	case core.EvtAudienceLeave:
		c.onAudienceLeave(n)
	case core.EvtSeatStatusChange:
		c.onSeatStatusChange(n)
	case core.EvtMediaStatusChange:
		c.onMediaStatusChange(n)
	case core.EvtApplyReceived:
		c.onApplyReceived(n)
	case core.EvtApplyCancelled:
		c.onApplyCancelled(n)
	case core.EvtSeatInvite:
		c.onSeatInvite(n)
	case core.EvtAnchorInvite:
		c.onAnchorInvite(n)
	case core.EvtAnchorReply:
		c.onAnchorReply(n)
	case core.EvtAnchorPKEnd:
		c.onAnchorPKEnd(n)
	case core.EvtClearUser:
		c.onClearUser(n)
	case core.EvtRoomDestroy:
		c.onRoomDestroy()
	case core.EvtRoomModeChange:
		c.onRoomModeChange(n)
	case core.EvtRecvRoomText:
		c.onRecvRoomText(n)
	default:
		logger.Warn().Msg("unknown notification")
	}
}

// replayPending applies notifications held during the join window, in
// receipt order. Runs on the loop goroutine right after the session
// commits; every guard in handleNotification still applies, so echoes,
// duplicates and foreign-room events are filtered the normal way.
func (c *Coordinator) replayPending() {
	held := c.pending
	c.pending = nil
	for _, n := range held {
		c.handleNotification(n)
	}
}

func decode[T any](n core.Notification) (T, bool) {
	var p T
	if err := json.Unmarshal(n.Payload, &p); err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("event", n.Event).Msg("bad notification payload")
		return p, false
	}
	return p, true
}

func (c *Coordinator) onAudienceJoin(n core.Notification) {
	p, ok := decode[core.AudiencePayload](n)
	if !ok {
		return
	}
	if p.User.ID == c.self.ID {
		return
	}
	u := p.User
	c.audience[u.ID] = &u
	c.room.AudienceCount = p.Count
	c.publish(core.SessionEvent{Type: core.EventAudienceUpdated, Room: c.roomCopy(), User: &u})
}

func (c *Coordinator) onAudienceLeave(n core.Notification) {
	p, ok := decode[core.AudiencePayload](n)
	if !ok {
		return
	}
	delete(c.audience, p.User.ID)
	delete(c.applies, p.User.ID)
	c.room.AudienceCount = p.Count
	// A leaver may still hold a seat if the backend collapses the two
	// events; the seat change arrives separately.
	u := p.User
	c.publish(core.SessionEvent{Type: core.EventAudienceUpdated, Room: c.roomCopy(), User: &u})
}

func (c *Coordinator) onSeatStatusChange(n core.Notification) {
	p, ok := decode[core.SeatChangePayload](n)
	if !ok {
		return
	}
	c.applySeatChange(p)
}

// applySeatChange installs one authoritative seat record. Shared by ack
// handling and notifications, so applying the same change twice is
// naturally idempotent.
func (c *Coordinator) applySeatChange(p core.SeatChangePayload) {
	seat, err := c.seats.At(p.SeatIndex)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Int("seat", p.SeatIndex).Msg("seat change out of range")
		return
	}
	prev := seat.User
	seat.Locked = p.Locked
	seat.Muted = p.Muted

	switch {
	case p.User != nil:
		u := *p.User
		seat.User = &u
		seat.Status = domain.SeatOpen
		delete(c.audience, u.ID)
		delete(c.applies, u.ID)
		if u.ID == c.self.ID {
			c.self.Status = domain.StatusActive
			c.self.Mic = u.Mic
			c.self.Camera = u.Camera
			c.invitedSeat = 0
			c.enablePublish(true)
		}
	default:
		seat.User = nil
		seat.Status = domain.SeatClosed
		if prev != nil {
			if prev.ID == c.self.ID {
				c.self.Status = domain.StatusDefault
				c.enablePublish(false)
			} else {
				cp := *prev
				cp.Status = domain.StatusDefault
				c.audience[cp.ID] = &cp
			}
		}
	}
	c.publishSeats()
}

func (c *Coordinator) onMediaStatusChange(n core.Notification) {
	p, ok := decode[core.MediaStatusPayload](n)
	if !ok {
		return
	}
	u := c.userByID(p.UserID)
	if u == nil {
		log.Debug().Str("module", "app.coordinator").Str("uid", string(p.UserID)).Msg("media status for unknown user dropped")
		return
	}
	u.Mic = p.Mic
	u.Camera = p.Camera
	if seat, ok := c.seats.SeatOf(p.UserID); ok && seat.User != u {
		seat.User.Mic = p.Mic
		seat.User.Camera = p.Camera
	}
	cp := *u
	c.publish(core.SessionEvent{Type: core.EventSeatsUpdated, Seats: c.seats.Clone(), User: &cp})
}

func (c *Coordinator) onApplyReceived(n core.Notification) {
	if !c.room.IsHost(c.self.ID) {
		return
	}
	p, ok := decode[core.ApplyPayload](n)
	if !ok {
		return
	}
	u := p.User
	u.Status = domain.StatusApplied
	c.audience[u.ID] = &u
	c.applies[u.ID] = p.SeatIndex
	c.publish(core.SessionEvent{Type: core.EventApplyReceived, User: &u, SeatIndex: p.SeatIndex})
}

func (c *Coordinator) onApplyCancelled(n core.Notification) {
	p, ok := decode[core.ApplyPayload](n)
	if !ok {
		return
	}
	delete(c.applies, p.User.ID)
	if u, ok := c.audience[p.User.ID]; ok && u.Status != domain.StatusActive {
		u.Status = domain.StatusDefault
	}
	u := p.User
	c.publish(core.SessionEvent{Type: core.EventApplyCancelled, User: &u, SeatIndex: p.SeatIndex})
}

func (c *Coordinator) onSeatInvite(n core.Notification) {
	p, ok := decode[core.SeatInvitePayload](n)
	if !ok {
		return
	}
	if c.self.Status == domain.StatusActive {
		log.Debug().Str("module", "app.coordinator").Msg("seat invite while already seated dropped")
		return
	}
	c.self.Status = domain.StatusInvited
	c.invitedSeat = p.SeatIndex
	c.publish(core.SessionEvent{Type: core.EventSeatInviteReceived, SeatIndex: p.SeatIndex})
}

func (c *Coordinator) onAnchorInvite(n core.Notification) {
	p, ok := decode[core.AnchorInvitePayload](n)
	if !ok {
		return
	}
	if !c.room.IsHost(c.self.ID) {
		return
	}
	if c.pk != nil && c.pk.State != domain.PKNone {
		// Busy: turn the invite down without involving presentation.
		go c.rejectBusyInvite(p.InviteID)
		return
	}
	c.pk = &domain.PKPairing{
		InviteID:   p.InviteID,
		State:      domain.PKInvited,
		RemoteRoom: p.FromRoom,
		RemoteUser: p.FromUser,
		SeatIndex:  p.SeatIndex,
		Deadline:   time.Now().Add(c.pkTimeout),
	}
	c.armPKTimer(p.InviteID)
	c.publishPK()
}

func (c *Coordinator) rejectBusyInvite(inviteID string) {
	ctx, cancel := contextWithTimeout()
	defer cancel()
	if _, err := c.sig.Request(ctx, core.ReqPKReply, core.PKReplyReq{InviteID: inviteID, Accept: false}); err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Str("invite", inviteID).Msg("busy reject failed")
	}
}

func (c *Coordinator) onAnchorReply(n core.Notification) {
	p, ok := decode[core.AnchorReplyPayload](n)
	if !ok {
		return
	}
	if c.pk == nil || c.pk.State != domain.PKInviting || c.pk.InviteID != p.InviteID {
		// Covers the late accept after a local timeout.
		log.Info().Str("module", "app.coordinator").Str("invite", p.InviteID).Msg("stale pk reply dropped")
		return
	}
	c.stopPKTimer()

	if p.Code != domain.PKAccept {
		c.pk = nil
		c.publishPK()
		return
	}

	c.pk.State = domain.PKPaired
	c.pk.Token = p.Token
	c.pk.RemoteUser = p.User
	if err := c.eng.StartForwardStream(p.TargetRoom, p.Token); err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("start forward stream")
	}
	c.publishPK()
}

func (c *Coordinator) onAnchorPKEnd(n core.Notification) {
	p, ok := decode[core.PKEndPayload](n)
	if !ok {
		return
	}
	if c.pk == nil {
		log.Debug().Str("module", "app.coordinator").Msg("pk end without pairing dropped")
		return
	}
	if c.pk.State == domain.PKEnding {
		// We initiated the stop and already released the stream; the
		// event only confirms it.
		c.stopPKTimer()
		c.pk = nil
		c.publishPK()
		return
	}
	if err := c.eng.StopForwardStream(); err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Msg("stop forward stream")
	}
	c.stopPKTimer()
	c.pk = nil
	log.Info().Str("module", "app.coordinator").
		Str("from", string(p.UserID)).
		Bool("active_end", p.ActiveEnd).
		Msg("pk ended by remote")
	c.publishPK()
}

func (c *Coordinator) onClearUser(n core.Notification) {
	p, ok := decode[core.ClearUserPayload](n)
	if !ok {
		return
	}
	if p.UserID == c.self.ID {
		forwarding := c.pk != nil && c.pk.State == domain.PKPaired
		c.releaseEngine(forwarding)
		c.resetSession(PhaseEnded)
		c.publish(core.SessionEvent{Type: core.EventKicked})
		c.publish(core.SessionEvent{Type: core.EventRoomEnded})
		return
	}
	if seat, ok := c.seats.SeatOf(p.UserID); ok {
		if _, err := c.seats.Release(seat.Index); err == nil {
			c.publishSeats()
		}
	}
	delete(c.audience, p.UserID)
	delete(c.applies, p.UserID)
}

func (c *Coordinator) onRoomDestroy() {
	forwarding := c.pk != nil && c.pk.State == domain.PKPaired
	c.releaseEngine(forwarding)
	c.resetSession(PhaseEnded)
	c.publish(core.SessionEvent{Type: core.EventRoomEnded})
}

func (c *Coordinator) onRoomModeChange(n core.Notification) {
	p, ok := decode[core.RoomModePayload](n)
	if !ok {
		return
	}
	c.room.Mode = p.Mode
	c.publish(core.SessionEvent{Type: core.EventModeChanged, Room: c.roomCopy()})
}

func (c *Coordinator) onRecvRoomText(n core.Notification) {
	p, ok := decode[core.RoomTextPayload](n)
	if !ok {
		return
	}
	from := p.From
	c.publish(core.SessionEvent{Type: core.EventMessageReceived, User: &from, Text: p.Text})
}
