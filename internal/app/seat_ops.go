package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/okabe/liveroom/internal/core"
	"github.com/okabe/liveroom/internal/domain"
)

var (
	errNotApplied    = errors.New("no pending application")
	errNotInvited    = errors.New("no pending seat invite")
	errNotOnSeat     = errors.New("not on a seat")
	errNotInAudience = errors.New("user not in audience")
	errHostOnStage   = errors.New("host does not take a numbered seat")
)

// ApplyForSeat asks the host for a seat. When the room has audience
// applications disabled it returns needsApply=false without a round trip;
// the host must invite instead.
func (c *Coordinator) ApplyForSeat(ctx context.Context, seatIndex int) (bool, error) {
	var stateErr error
	var allowed bool
	if err := c.do(ctx, func() {
		if c.phase != PhaseActive {
			stateErr = core.ErrNotInRoom
			return
		}
		if c.room.IsHost(c.self.ID) {
			stateErr = &core.PreconditionError{Op: "applySeat", Reason: errHostOnStage}
			return
		}
		if !c.room.AllowApply {
			return
		}
		seat, err := c.seats.At(seatIndex)
		if err != nil {
			stateErr = &core.PreconditionError{Op: "applySeat", Reason: err}
			return
		}
		if seat.Locked {
			stateErr = &core.PreconditionError{Op: "applySeat", Reason: domain.ErrSeatLocked}
			return
		}
		if seat.User != nil {
			stateErr = &core.PreconditionError{Op: "applySeat", Reason: domain.ErrSeatOccupied}
			return
		}
		allowed = true
	}); err != nil {
		return false, err
	}
	if stateErr != nil {
		return false, stateErr
	}
	if !allowed {
		return false, nil
	}

	ack, err := c.request(ctx, core.ReqApplySeat, core.SeatReq{SeatIndex: seatIndex}, nil)
	if err != nil {
		return true, err
	}
	c.post(func() {
		c.markIssued(ack.ID)
		c.self.Status = domain.StatusApplied
	}, false)
	return true, nil
}

// CancelApply withdraws a pending application.
func (c *Coordinator) CancelApply(ctx context.Context) error {
	if err := c.checkStatus(ctx, "cancelApply", domain.StatusApplied, errNotApplied); err != nil {
		return err
	}
	ack, err := c.request(ctx, core.ReqCancelApply, nil, nil)
	if err != nil {
		return err
	}
	c.post(func() {
		c.markIssued(ack.ID)
		c.self.Status = domain.StatusDefault
	}, false)
	return nil
}

// AcceptSeatInvite takes the seat the host offered. The backend seats us
// directly; the ack carries the resulting seat state.
func (c *Coordinator) AcceptSeatInvite(ctx context.Context) error {
	var stateErr error
	var seatIndex int
	if err := c.do(ctx, func() {
		if c.phase != PhaseActive {
			stateErr = core.ErrNotInRoom
			return
		}
		if c.self.Status != domain.StatusInvited {
			stateErr = &core.PreconditionError{Op: "acceptSeatInvite", Reason: errNotInvited}
			return
		}
		seatIndex = c.invitedSeat
	}); err != nil {
		return err
	}
	if stateErr != nil {
		return stateErr
	}

	var change core.SeatChangePayload
	ack, err := c.request(ctx, core.ReqApplySeat, core.SeatReq{SeatIndex: seatIndex}, &change)
	if err != nil {
		var be *core.BackendError
		if errors.As(err, &be) {
			// The offered seat went away before we took it. Clear the
			// invite so the user is not stuck declining a dead offer.
			c.post(func() {
				if c.self != nil && c.self.Status == domain.StatusInvited {
					c.self.Status = domain.StatusDefault
					c.invitedSeat = 0
				}
			}, false)
		}
		return err
	}
	c.post(func() {
		c.markIssued(ack.ID)
		c.invitedSeat = 0
		c.applySeatChange(change)
	}, false)
	return nil
}

// DeclineSeatInvite turns the host's offer down.
func (c *Coordinator) DeclineSeatInvite(ctx context.Context) error {
	if err := c.checkStatus(ctx, "declineSeatInvite", domain.StatusInvited, errNotInvited); err != nil {
		return err
	}
	ack, err := c.request(ctx, core.ReqCancelApply, nil, nil)
	if err != nil {
		return err
	}
	c.post(func() {
		c.markIssued(ack.ID)
		c.invitedSeat = 0
		c.self.Status = domain.StatusDefault
	}, false)
	return nil
}

// InviteToSeat offers a seat to an audience member. Host only.
func (c *Coordinator) InviteToSeat(ctx context.Context, userID domain.UserID, seatIndex int) error {
	if err := c.checkHost(ctx, "inviteSeat", func() error {
		seat, err := c.seats.At(seatIndex)
		if err != nil {
			return err
		}
		if seat.Locked {
			return domain.ErrSeatLocked
		}
		if seat.User != nil {
			return domain.ErrSeatOccupied
		}
		if _, ok := c.audience[userID]; !ok {
			return errNotInAudience
		}
		return nil
	}); err != nil {
		return err
	}

	ack, err := c.request(ctx, core.ReqInviteSeat, core.SeatReq{SeatIndex: seatIndex, UserID: userID}, nil)
	if err != nil {
		return err
	}
	c.post(func() {
		c.markIssued(ack.ID)
		if u, ok := c.audience[userID]; ok {
			u.Status = domain.StatusInvited
		}
	}, false)
	return nil
}

// AgreeApply approves a pending application. Host only. The ack payload
// is the authoritative seat change and is applied exactly like the
// corresponding notification; the notification echo is then a no-op.
func (c *Coordinator) AgreeApply(ctx context.Context, userID domain.UserID) error {
	if err := c.checkHost(ctx, "agreeApply", func() error {
		if idx, ok := c.applies[userID]; ok {
			seat, err := c.seats.At(idx)
			if err != nil {
				return err
			}
			if seat.User != nil {
				return domain.ErrSeatOccupied
			}
		}
		return nil
	}); err != nil {
		return err
	}

	var change core.SeatChangePayload
	ack, err := c.request(ctx, core.ReqAgreeApply, core.SeatReq{UserID: userID}, &change)
	if err != nil {
		return err
	}
	c.post(func() {
		c.markIssued(ack.ID)
		delete(c.applies, userID)
		c.applySeatChange(change)
	}, false)
	return nil
}

// RejectApply turns a pending application down. Host only.
func (c *Coordinator) RejectApply(ctx context.Context, userID domain.UserID) error {
	if err := c.checkHost(ctx, "rejectApply", nil); err != nil {
		return err
	}
	ack, err := c.request(ctx, core.ReqRejectApply, core.SeatReq{UserID: userID}, nil)
	if err != nil {
		return err
	}
	c.post(func() {
		c.markIssued(ack.ID)
		delete(c.applies, userID)
		if u, ok := c.audience[userID]; ok && u.Status == domain.StatusApplied {
			u.Status = domain.StatusDefault
		}
	}, false)
	return nil
}

// KickUser evicts a user from the room entirely. Host only. The evicted
// side learns about it through its own clear-user notification.
func (c *Coordinator) KickUser(ctx context.Context, userID domain.UserID) error {
	if err := c.checkHost(ctx, "clearUser", func() error {
		if userID == c.self.ID {
			return errors.New("cannot kick self")
		}
		return nil
	}); err != nil {
		return err
	}
	ack, err := c.request(ctx, core.ReqClearUser, core.ClearUserReq{UserID: userID}, nil)
	if err != nil {
		return err
	}
	c.post(func() {
		c.markIssued(ack.ID)
		if seat, ok := c.seats.SeatOf(userID); ok {
			_, _ = c.seats.Release(seat.Index)
			c.publishSeats()
		}
		delete(c.applies, userID)
		if _, ok := c.audience[userID]; ok {
			delete(c.audience, userID)
			if c.room.AudienceCount > 0 {
				c.room.AudienceCount--
			}
			c.publish(core.SessionEvent{Type: core.EventAudienceUpdated})
		}
	}, false)
	return nil
}

// ManageSeat runs one host action against a seat: kick, lock, unlock,
// mute or unmute. The ack payload carries the resulting seat state.
func (c *Coordinator) ManageSeat(ctx context.Context, seatIndex int, action core.SeatAction) error {
	if err := c.checkHost(ctx, "manageSeat", func() error {
		seat, err := c.seats.At(seatIndex)
		if err != nil {
			return err
		}
		switch action {
		case core.SeatKick, core.SeatMute, core.SeatUnmute:
			if seat.User == nil {
				return domain.ErrSeatEmpty
			}
		case core.SeatLock:
			if seat.User != nil {
				return domain.ErrSeatOccupied
			}
		}
		return nil
	}); err != nil {
		return err
	}

	var change core.SeatChangePayload
	ack, err := c.request(ctx, core.ReqManageSeat, core.ManageSeatReq{SeatIndex: seatIndex, Action: action}, &change)
	if err != nil {
		return err
	}
	c.post(func() {
		c.markIssued(ack.ID)
		c.applySeatChange(change)
	}, false)
	return nil
}

// LeaveSeat steps down from our own seat. Publishing stops and the seat
// is released locally even when the backend call fails.
func (c *Coordinator) LeaveSeat(ctx context.Context) error {
	var stateErr error
	var seatIndex int
	if err := c.do(ctx, func() {
		if c.phase != PhaseActive {
			stateErr = core.ErrNotInRoom
			return
		}
		seat, ok := c.seats.SeatOf(c.self.ID)
		if !ok {
			stateErr = &core.PreconditionError{Op: "leaveSeat", Reason: errNotOnSeat}
			return
		}
		seatIndex = seat.Index
	}); err != nil {
		return err
	}
	if stateErr != nil {
		return stateErr
	}

	c.enablePublish(false)

	ack, err := c.sig.Request(ctx, core.ReqLeaveSeat, core.SeatReq{SeatIndex: seatIndex})
	if err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Msg("leave seat request failed, releasing locally")
	}

	c.post(func() {
		c.markIssued(ack.ID)
		c.applySeatChange(core.SeatChangePayload{SeatIndex: seatIndex, Status: domain.SeatClosed})
	}, false)
	return nil
}

// UpdateMediaStatus flips our mic/camera, engine first, then state after
// the ack. The self-echoed notification is dropped by origin.
func (c *Coordinator) UpdateMediaStatus(ctx context.Context, mic, camera bool) error {
	var stateErr error
	if err := c.do(ctx, func() {
		if c.phase != PhaseActive {
			stateErr = core.ErrNotInRoom
			return
		}
		_, seated := c.seats.SeatOf(c.self.ID)
		if !seated && !c.room.IsHost(c.self.ID) {
			stateErr = &core.PreconditionError{Op: "mediaStatus", Reason: errNotOnSeat}
		}
	}); err != nil {
		return err
	}
	if stateErr != nil {
		return stateErr
	}

	ack, err := c.request(ctx, core.ReqMediaStatus, core.MediaStatusReq{Mic: mic, Camera: camera}, nil)
	if err != nil {
		return err
	}

	if err := c.eng.MuteLocalAudio(!mic); err != nil {
		return &core.EngineError{Op: "muteLocalAudio", Err: err}
	}
	if err := c.eng.MuteLocalVideo(!camera); err != nil {
		return &core.EngineError{Op: "muteLocalVideo", Err: err}
	}

	c.post(func() {
		c.markIssued(ack.ID)
		c.self.Mic = mic
		c.self.Camera = camera
		if seat, ok := c.seats.SeatOf(c.self.ID); ok {
			seat.User.Mic = mic
			seat.User.Camera = camera
		}
		c.publishSeats()
	}, false)
	return nil
}

// SwitchCamera is a pure engine passthrough.
func (c *Coordinator) SwitchCamera() error {
	if err := c.eng.SwitchCamera(); err != nil {
		return &core.EngineError{Op: "switchCamera", Err: err}
	}
	return nil
}

// SetChatMode toggles co-host vs chat-room display mode without leaving
// the live session. Host only.
func (c *Coordinator) SetChatMode(ctx context.Context, mode domain.ChatMode) error {
	if err := c.checkHost(ctx, "roomMode", nil); err != nil {
		return err
	}
	ack, err := c.request(ctx, core.ReqRoomMode, core.RoomModeReq{Mode: mode}, nil)
	if err != nil {
		return err
	}
	c.post(func() {
		c.markIssued(ack.ID)
		c.room.Mode = mode
		c.publish(core.SessionEvent{Type: core.EventModeChanged, Room: c.roomCopy()})
	}, false)
	return nil
}

// SendMessage broadcasts a chat line. The backend fans it back to the
// whole room, sender included, so there is no local mutation here.
func (c *Coordinator) SendMessage(ctx context.Context, text string) error {
	var stateErr error
	if err := c.do(ctx, func() {
		if c.phase != PhaseActive {
			stateErr = core.ErrNotInRoom
		}
	}); err != nil {
		return err
	}
	if stateErr != nil {
		return stateErr
	}
	_, err := c.request(ctx, core.ReqSendText, core.SendTextReq{Text: text}, nil)
	return err
}

// checkStatus validates phase and our own user status on the loop.
func (c *Coordinator) checkStatus(ctx context.Context, op string, want domain.UserStatus, reason error) error {
	var stateErr error
	if err := c.do(ctx, func() {
		if c.phase != PhaseActive {
			stateErr = core.ErrNotInRoom
			return
		}
		if c.self.Status != want {
			stateErr = &core.PreconditionError{Op: op, Reason: reason}
		}
	}); err != nil {
		return err
	}
	return stateErr
}

// checkHost validates phase, host role and an optional extra precondition
// evaluated on the loop goroutine.
func (c *Coordinator) checkHost(ctx context.Context, op string, extra func() error) error {
	var stateErr error
	if err := c.do(ctx, func() {
		if c.phase != PhaseActive {
			stateErr = core.ErrNotInRoom
			return
		}
		if !c.room.IsHost(c.self.ID) {
			stateErr = core.ErrNotHost
			return
		}
		if extra != nil {
			if err := extra(); err != nil {
				stateErr = &core.PreconditionError{Op: op, Reason: err}
			}
		}
	}); err != nil {
		return err
	}
	return stateErr
}

func (c *Coordinator) roomCopy() *domain.Room {
	if c.room == nil {
		return nil
	}
	cp := *c.room
	return &cp
}

// enablePublish toggles local capture when we gain or lose a seat.
func (c *Coordinator) enablePublish(on bool) {
	if err := c.eng.EnableLocalAudio(on); err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Msg("enable local audio")
	}
	if err := c.eng.EnableLocalVideo(on); err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Msg("enable local video")
	}
}
