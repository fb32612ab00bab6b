package server

import (
	"github.com/okabe/liveroom/internal/core"
)

func (srv *Server) handleClearUser(s *session, env core.Envelope) {
	p, ok := decode[core.ClearUserReq](env)
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
	if p.UserID == uid {
		srv.fail(s, env, codeConflict, "cannot kick self")
		return
	}

	lr.mu.Lock()
	target, present := lr.members[p.UserID]
	if !present {
		lr.mu.Unlock()
		srv.fail(s, env, codeNotFound, "user not in room")
		return
	}
	// The whole room learns about the eviction, the evicted side included.
	srv.reg.fanout(lr.room.ID, core.EvtClearUser, string(p.UserID), env.ID,
		core.ClearUserPayload{UserID: p.UserID}, lr.everyone()...)
	lr.mu.Unlock()

	srv.removeMember(lr, p.UserID, env.ID)
	target.unbind()
	srv.ack(s, env, nil)
}

func (srv *Server) handleMediaStatus(s *session, env core.Envelope) {
	p, ok := decode[core.MediaStatusReq](env)
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

	user := lr.host
	if !lr.room.IsHost(uid) {
		u, present := lr.audience[uid]
		if !present {
			srv.fail(s, env, codeConflict, "not a member")
			return
		}
		user = u
	}
	user.Mic = p.Mic
	user.Camera = p.Camera
	if seat, seated := lr.seats.SeatOf(uid); seated {
		seat.User.Mic = p.Mic
		seat.User.Camera = p.Camera
	}

	srv.reg.fanout(lr.room.ID, core.EvtMediaStatusChange, string(uid), env.ID,
		core.MediaStatusPayload{UserID: uid, Mic: p.Mic, Camera: p.Camera}, lr.everyone()...)
	srv.ack(s, env, nil)
}

func (srv *Server) handleRoomMode(s *session, env core.Envelope) {
	p, ok := decode[core.RoomModeReq](env)
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

	lr.room.Mode = p.Mode
	srv.reg.fanout(lr.room.ID, core.EvtRoomModeChange, string(lr.room.ID), env.ID,
		core.RoomModePayload{Mode: p.Mode}, lr.everyone()...)
	srv.ack(s, env, nil)
}

// handleSendText fans the message to everyone without an origin stamp:
// the sender renders its own message from the notification too.
func (srv *Server) handleSendText(s *session, env core.Envelope) {
	p, ok := decode[core.SendTextReq](env)
	if !ok {
		srv.fail(s, env, codeBadPayload, "bad payload")
		return
	}
	if p.Text == "" {
		srv.fail(s, env, codeBadPayload, "empty text")
		return
	}
	lr, uid, ok := srv.room(s, env)
	if !ok {
		return
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	from := lr.host
	if !lr.room.IsHost(uid) {
		u, present := lr.audience[uid]
		if !present {
			srv.fail(s, env, codeConflict, "not a member")
			return
		}
		from = u
	}

	srv.reg.fanout(lr.room.ID, core.EvtRecvRoomText, string(uid), "",
		core.RoomTextPayload{From: *from, Text: p.Text}, lr.everyone()...)
	srv.ack(s, env, nil)
}
