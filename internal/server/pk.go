package server

import (
	"github.com/rs/zerolog/log"

	"github.com/okabe/liveroom/internal/core"
	"github.com/okabe/liveroom/internal/domain"
	"github.com/okabe/liveroom/internal/token"
)

// Cross-room battle routing. Room locks are never held pairwise: each
// side's state is touched in its own critical section, so invite and
// stop traffic cannot deadlock two rooms against each other.

func (srv *Server) handlePKInvite(s *session, env core.Envelope) {
	p, ok := decode[core.PKInviteReq](env)
	if !ok {
		srv.fail(s, env, codeBadPayload, "bad payload")
		return
	}
	lr, uid, ok := srv.room(s, env)
	if !ok {
		return
	}
	if !lr.room.IsHost(uid) {
		srv.fail(s, env, codeNotHost, "host only")
		return
	}
	if lr.room.ID == p.TargetRoom {
		srv.fail(s, env, codeConflict, "cannot battle own room")
		return
	}
	target, ok := srv.reg.Get(p.TargetRoom)
	if !ok {
		srv.fail(s, env, codeNotFound, "target room not found")
		return
	}
	if !target.room.IsHost(p.TargetUser) {
		srv.fail(s, env, codeConflict, "target is not a host")
		return
	}

	lr.mu.Lock()
	from := *lr.host
	lr.mu.Unlock()

	inviteID := srv.reg.addInvite(pkInvite{
		fromRoom:  lr.room.ID,
		fromUser:  uid,
		toRoom:    p.TargetRoom,
		toUser:    p.TargetUser,
		seatIndex: p.SeatIndex,
	})

	target.mu.Lock()
	srv.reg.fanout(target.room.ID, core.EvtAnchorInvite, string(p.TargetUser), "",
		core.AnchorInvitePayload{
			InviteID:  inviteID,
			FromRoom:  lr.room.ID,
			FromUser:  from,
			SeatIndex: p.SeatIndex,
		}, target.hostSession())
	target.mu.Unlock()

	log.Info().Str("module", "server.pk").Str("invite", inviteID).
		Str("from", string(lr.room.ID)).Str("to", string(p.TargetRoom)).Msg("pk invite routed")
	srv.ack(s, env, core.PKInviteResp{InviteID: inviteID})
}

func (srv *Server) handlePKReply(s *session, env core.Envelope) {
	p, ok := decode[core.PKReplyReq](env)
	if !ok {
		srv.fail(s, env, codeBadPayload, "bad payload")
		return
	}
	lr, uid, ok := srv.room(s, env)
	if !ok {
		return
	}

	inv, found := srv.reg.takeInvite(p.InviteID)
	if !found {
		srv.fail(s, env, codeNotFound, "invite expired")
		return
	}
	if inv.toUser != uid {
		srv.fail(s, env, codeNotHost, "invite addressed to another host")
		return
	}
	origin, ok := srv.reg.Get(inv.fromRoom)
	if !ok {
		srv.fail(s, env, codeNotFound, "inviting room gone")
		return
	}

	lr.mu.Lock()
	replier := *lr.host
	lr.mu.Unlock()

	if !p.Accept {
		origin.mu.Lock()
		srv.reg.fanout(origin.room.ID, core.EvtAnchorReply, p.InviteID, "",
			core.AnchorReplyPayload{InviteID: p.InviteID, Code: domain.PKReject, User: replier},
			origin.hostSession())
		origin.mu.Unlock()
		srv.ack(s, env, nil)
		return
	}

	// Each host gets a forward token for the other room.
	replierTok, err := srv.mintToken(token.Claims{Room: inv.fromRoom, UID: uid, Forward: true})
	if err != nil {
		srv.fail(s, env, codeInternal, "token")
		return
	}
	inviterTok, err := srv.mintToken(token.Claims{Room: lr.room.ID, UID: inv.fromUser, Forward: true})
	if err != nil {
		srv.fail(s, env, codeInternal, "token")
		return
	}

	origin.mu.Lock()
	inviter := *origin.host
	origin.pk = &pkLink{partnerRoom: lr.room.ID, partnerHost: replier}
	srv.reg.fanout(origin.room.ID, core.EvtAnchorReply, p.InviteID, "",
		core.AnchorReplyPayload{
			InviteID:   p.InviteID,
			Code:       domain.PKAccept,
			Token:      inviterTok,
			TargetRoom: lr.room.ID,
			User:       replier,
		}, origin.hostSession())
	origin.mu.Unlock()

	lr.mu.Lock()
	lr.pk = &pkLink{partnerRoom: inv.fromRoom, partnerHost: inviter}
	lr.mu.Unlock()

	log.Info().Str("module", "server.pk").Str("invite", p.InviteID).
		Str("rooms", string(inv.fromRoom)+"<->"+string(lr.room.ID)).Msg("pk paired")
	srv.ack(s, env, core.PKReplyResp{Token: replierTok, TargetRoom: inv.fromRoom})
}

func (srv *Server) handlePKStop(s *session, env core.Envelope) {
	lr, uid, ok := srv.room(s, env)
	if !ok {
		return
	}
	if !lr.room.IsHost(uid) {
		srv.fail(s, env, codeNotHost, "host only")
		return
	}

	lr.mu.Lock()
	link := lr.pk
	lr.pk = nil
	if link != nil {
		srv.reg.fanout(lr.room.ID, core.EvtAnchorPKEnd, string(uid), env.ID,
			core.PKEndPayload{Room: lr.room.ID, UserID: uid, ActiveEnd: true}, lr.everyone()...)
	}
	lr.mu.Unlock()

	if link == nil {
		srv.fail(s, env, codeConflict, "no active battle")
		return
	}

	if partner, ok := srv.reg.Get(link.partnerRoom); ok {
		partner.mu.Lock()
		partner.pk = nil
		srv.reg.fanout(partner.room.ID, core.EvtAnchorPKEnd, string(uid), "",
			core.PKEndPayload{Room: lr.room.ID, UserID: uid, ActiveEnd: false}, partner.everyone()...)
		partner.mu.Unlock()
	}
	srv.ack(s, env, nil)
}
