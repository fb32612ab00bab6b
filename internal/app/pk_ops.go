package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/okabe/liveroom/internal/core"
	"github.com/okabe/liveroom/internal/domain"
)

var (
	errPKBusy     = errors.New("pk already in progress")
	errNoPKInvite = errors.New("no pending pk invite")
	errNotPaired  = errors.New("no active pk pairing")
)

// InviteAnchor starts a PK battle with the host of another room. The
// pairing enters Inviting and auto-resolves to a timeout rejection if the
// remote side never answers.
func (c *Coordinator) InviteAnchor(ctx context.Context, targetRoom domain.RoomID, targetUser domain.UserID, seatIndex int) error {
	if err := c.checkHost(ctx, "pkInvite", func() error {
		if c.pk != nil && c.pk.State != domain.PKNone {
			return errPKBusy
		}
		return nil
	}); err != nil {
		return err
	}

	var resp core.PKInviteResp
	ack, err := c.request(ctx, core.ReqPKInvite, core.PKInviteReq{TargetRoom: targetRoom, TargetUser: targetUser, SeatIndex: seatIndex}, &resp)
	if err != nil {
		return err
	}

	c.post(func() {
		c.markIssued(ack.ID)
		c.pk = &domain.PKPairing{
			InviteID:   resp.InviteID,
			State:      domain.PKInviting,
			RemoteRoom: targetRoom,
			SeatIndex:  seatIndex,
			Deadline:   time.Now().Add(c.pkTimeout),
		}
		c.armPKTimer(resp.InviteID)
		c.publishPK()
	}, false)
	return nil
}

// ReplyAnchorInvite answers a received PK invite. Accepting starts the
// forwarded stream with the token from the ack; rejecting clears the
// pairing on both sides.
func (c *Coordinator) ReplyAnchorInvite(ctx context.Context, inviteID string, accept bool) error {
	var stateErr error
	if err := c.do(ctx, func() {
		if c.phase != PhaseActive {
			stateErr = core.ErrNotInRoom
			return
		}
		if c.pk == nil || c.pk.State != domain.PKInvited || c.pk.InviteID != inviteID {
			stateErr = &core.PreconditionError{Op: "pkReply", Reason: errNoPKInvite}
		}
	}); err != nil {
		return err
	}
	if stateErr != nil {
		return stateErr
	}

	var resp core.PKReplyResp
	ack, err := c.request(ctx, core.ReqPKReply, core.PKReplyReq{InviteID: inviteID, Accept: accept}, &resp)
	if err != nil {
		return err
	}

	if !accept {
		c.post(func() {
			c.markIssued(ack.ID)
			c.stopPKTimer()
			c.pk = nil
			c.publishPK()
		}, false)
		return nil
	}

	if err := c.eng.StartForwardStream(resp.TargetRoom, resp.Token); err != nil {
		c.post(func() {
			c.stopPKTimer()
			c.pk = nil
			c.publishPK()
		}, false)
		return &core.EngineError{Op: "startForwardStream", Err: err}
	}

	c.post(func() {
		c.markIssued(ack.ID)
		c.stopPKTimer()
		if c.pk != nil {
			c.pk.State = domain.PKPaired
			c.pk.Token = resp.Token
		}
		c.publishPK()
	}, false)
	return nil
}

// StopPK ends an active battle from either side. The engine forward stops
// and local state clears even if the backend call fails; the remote side
// learns through its own onAnchorPKEnd.
func (c *Coordinator) StopPK(ctx context.Context) error {
	var stateErr error
	if err := c.do(ctx, func() {
		if c.phase != PhaseActive {
			stateErr = core.ErrNotInRoom
			return
		}
		if c.pk == nil || c.pk.State != domain.PKPaired {
			stateErr = &core.PreconditionError{Op: "pkStop", Reason: errNotPaired}
			return
		}
		c.pk.State = domain.PKEnding
		c.pk.ActiveEnd = true
	}); err != nil {
		return err
	}
	if stateErr != nil {
		return stateErr
	}

	if err := c.eng.StopForwardStream(); err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Msg("stop forward stream")
	}

	ack, err := c.sig.Request(ctx, core.ReqPKStop, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Msg("pk stop request failed, clearing locally")
	}

	c.post(func() {
		c.markIssued(ack.ID)
		c.stopPKTimer()
		c.pk = nil
		c.publishPK()
	}, false)
	return nil
}

// MutePKAnchor silences the partner's forwarded audio locally and tracks
// the flag on their user record.
func (c *Coordinator) MutePKAnchor(ctx context.Context, muted bool) error {
	var stateErr error
	var partner domain.UserID
	if err := c.do(ctx, func() {
		if c.phase != PhaseActive || c.pk == nil || c.pk.State != domain.PKPaired {
			stateErr = &core.PreconditionError{Op: "mutePKAnchor", Reason: errNotPaired}
			return
		}
		partner = c.pk.RemoteUser.ID
	}); err != nil {
		return err
	}
	if stateErr != nil {
		return stateErr
	}

	if err := c.eng.MuteRemoteAnchor(partner, muted); err != nil {
		return &core.EngineError{Op: "muteRemoteAnchor", Err: err}
	}
	c.post(func() {
		if c.pk != nil {
			c.pk.RemoteUser.PartnerMuted = muted
		}
	}, false)
	return nil
}

// armPKTimer schedules the invite expiry on the loop. Expiry resolves the
// invite to a timeout rejection exactly once; any later reply for the
// same invite id is stale.
func (c *Coordinator) armPKTimer(inviteID string) {
	c.stopPKTimer()
	c.pkTimer = time.AfterFunc(c.pkTimeout, func() {
		c.post(func() { c.expirePKInvite(inviteID) }, false)
	})
}

func (c *Coordinator) expirePKInvite(inviteID string) {
	if c.pk == nil || c.pk.InviteID != inviteID {
		return
	}
	if c.pk.State != domain.PKInviting && c.pk.State != domain.PKInvited {
		return
	}
	log.Info().Str("module", "app.coordinator").Str("invite", inviteID).Msg("pk invite timed out")
	c.stopPKTimer()
	c.pk = nil
	c.publishPK()
}
