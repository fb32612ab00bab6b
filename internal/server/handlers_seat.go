package server

import (
	"github.com/okabe/liveroom/internal/core"
	"github.com/okabe/liveroom/internal/domain"
)

// handleApplySeat serves two flows with one request name: an invited
// user accepting the host's offer takes the seat right away, a plain
// application is queued for the host.
func (srv *Server) handleApplySeat(s *session, env core.Envelope) {
	p, ok := decode[core.SeatReq](env)
	if !ok {
		srv.fail(s, env, codeBadPayload, "bad payload")
		return
	}
	lr, uid, ok := srv.room(s, env)
	if !ok {
		return
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	user, present := lr.audience[uid]
	if !present {
		srv.fail(s, env, codeConflict, "not an audience member")
		return
	}

	if idx, invited := lr.invites[uid]; invited && idx == p.SeatIndex {
		if err := lr.seats.Take(p.SeatIndex, user); err != nil {
			srv.fail(s, env, codeConflict, err.Error())
			return
		}
		delete(lr.invites, uid)
		user.Status = domain.StatusActive
		change := lr.seatPayload(p.SeatIndex)
		srv.reg.fanout(lr.room.ID, core.EvtSeatStatusChange, string(uid), env.ID,
			change, lr.everyone()...)
		srv.ack(s, env, change)
		return
	}

	if !lr.room.AllowApply {
		srv.fail(s, env, codeConflict, "applications disabled")
		return
	}
	seat, err := lr.seats.At(p.SeatIndex)
	if err != nil {
		srv.fail(s, env, codeBadPayload, err.Error())
		return
	}
	if seat.User != nil || seat.Locked {
		srv.fail(s, env, codeConflict, "seat unavailable")
		return
	}

	lr.applies[uid] = p.SeatIndex
	user.Status = domain.StatusApplied
	srv.reg.fanout(lr.room.ID, core.EvtApplyReceived, string(uid), env.ID,
		core.ApplyPayload{User: *user, SeatIndex: p.SeatIndex}, lr.hostSession())
	srv.ack(s, env, nil)
}

func (srv *Server) handleCancelApply(s *session, env core.Envelope) {
	lr, uid, ok := srv.room(s, env)
	if !ok {
		return
	}
	lr.mu.Lock()
	defer lr.mu.Unlock()

	idx, pending := lr.applies[uid]
	if !pending {
		srv.fail(s, env, codeConflict, "no pending application")
		return
	}
	delete(lr.applies, uid)
	if u, present := lr.audience[uid]; present {
		u.Status = domain.StatusDefault
		srv.reg.fanout(lr.room.ID, core.EvtApplyCancelled, string(uid), env.ID,
			core.ApplyPayload{User: *u, SeatIndex: idx}, lr.hostSession())
	}
	srv.ack(s, env, nil)
}

func (srv *Server) handleAgreeApply(s *session, env core.Envelope) {
	p, ok := decode[core.SeatReq](env)
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

	lr.mu.Lock()
	defer lr.mu.Unlock()

	idx, pending := lr.applies[p.UserID]
	if !pending {
		srv.fail(s, env, codeConflict, "no pending application")
		return
	}
	user, present := lr.audience[p.UserID]
	if !present {
		srv.fail(s, env, codeConflict, "applicant left")
		return
	}
	if err := lr.seats.Take(idx, user); err != nil {
		srv.fail(s, env, codeConflict, err.Error())
		return
	}
	delete(lr.applies, p.UserID)
	user.Status = domain.StatusActive

	change := lr.seatPayload(idx)
	srv.reg.fanout(lr.room.ID, core.EvtSeatStatusChange, string(p.UserID), env.ID,
		change, lr.everyone()...)
	srv.ack(s, env, change)
}

func (srv *Server) handleRejectApply(s *session, env core.Envelope) {
	p, ok := decode[core.SeatReq](env)
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

	lr.mu.Lock()
	defer lr.mu.Unlock()

	delete(lr.applies, p.UserID)
	if u, present := lr.audience[p.UserID]; present && u.Status == domain.StatusApplied {
		u.Status = domain.StatusDefault
	}
	srv.ack(s, env, nil)
}

func (srv *Server) handleInviteSeat(s *session, env core.Envelope) {
	p, ok := decode[core.SeatReq](env)
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

	lr.mu.Lock()
	defer lr.mu.Unlock()

	seat, err := lr.seats.At(p.SeatIndex)
	if err != nil {
		srv.fail(s, env, codeBadPayload, err.Error())
		return
	}
	if seat.User != nil || seat.Locked {
		srv.fail(s, env, codeConflict, "seat unavailable")
		return
	}
	user, present := lr.audience[p.UserID]
	if !present {
		srv.fail(s, env, codeConflict, "user not in audience")
		return
	}

	lr.invites[p.UserID] = p.SeatIndex
	user.Status = domain.StatusInvited
	srv.reg.fanout(lr.room.ID, core.EvtSeatInvite, string(p.UserID), env.ID,
		core.SeatInvitePayload{SeatIndex: p.SeatIndex}, lr.members[p.UserID])
	srv.ack(s, env, nil)
}

func (srv *Server) handleManageSeat(s *session, env core.Envelope) {
	p, ok := decode[core.ManageSeatReq](env)
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

	lr.mu.Lock()
	defer lr.mu.Unlock()

	seat, err := lr.seats.At(p.SeatIndex)
	if err != nil {
		srv.fail(s, env, codeBadPayload, err.Error())
		return
	}

	var subject domain.UserID
	if seat.User != nil {
		subject = seat.User.ID
	}

	switch p.Action {
	case core.SeatKick:
		released, err := lr.seats.Release(p.SeatIndex)
		if err != nil {
			srv.fail(s, env, codeConflict, err.Error())
			return
		}
		released.Status = domain.StatusDefault
	case core.SeatLock:
		err = lr.seats.Lock(p.SeatIndex)
	case core.SeatUnlock:
		err = lr.seats.Unlock(p.SeatIndex)
	case core.SeatMute:
		err = lr.seats.SetMuted(p.SeatIndex, true)
	case core.SeatUnmute:
		err = lr.seats.SetMuted(p.SeatIndex, false)
	default:
		srv.fail(s, env, codeBadPayload, "unknown action")
		return
	}
	if err != nil {
		srv.fail(s, env, codeConflict, err.Error())
		return
	}

	change := lr.seatPayload(p.SeatIndex)
	srv.reg.fanout(lr.room.ID, core.EvtSeatStatusChange, string(subject), env.ID,
		change, lr.everyone()...)
	srv.ack(s, env, change)
}

func (srv *Server) handleLeaveSeat(s *session, env core.Envelope) {
	lr, uid, ok := srv.room(s, env)
	if !ok {
		return
	}
	lr.mu.Lock()
	defer lr.mu.Unlock()

	seat, seated := lr.seats.SeatOf(uid)
	if !seated {
		srv.fail(s, env, codeConflict, "not on a seat")
		return
	}
	released, err := lr.seats.Release(seat.Index)
	if err != nil {
		srv.fail(s, env, codeConflict, err.Error())
		return
	}
	released.Status = domain.StatusDefault

	srv.reg.fanout(lr.room.ID, core.EvtSeatStatusChange, string(uid), env.ID,
		lr.seatPayload(seat.Index), lr.everyone()...)
	srv.ack(s, env, nil)
}
