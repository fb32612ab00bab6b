package server

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/okabe/liveroom/internal/core"
	"github.com/okabe/liveroom/internal/domain"
	"github.com/okabe/liveroom/internal/token"
)

func decode[T any](env core.Envelope) (T, bool) {
	var p T
	if len(env.Payload) == 0 {
		return p, true
	}
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		log.Error().Err(err).Str("module", "server").Str("event", env.Event).Msg("bad payload")
		return p, false
	}
	return p, true
}

// room resolves the caller's bound room, acking a failure when the
// session never joined one.
func (srv *Server) room(s *session, env core.Envelope) (*liveRoom, domain.UserID, bool) {
	uid, roomID := s.identity()
	if uid == "" || roomID == "" {
		srv.fail(s, env, codeNotInRoom, "not in a room")
		return nil, "", false
	}
	lr, ok := srv.reg.Get(roomID)
	if !ok {
		srv.fail(s, env, codeNotFound, "room not found")
		return nil, "", false
	}
	return lr, uid, true
}

func (srv *Server) handleCreateRoom(s *session, env core.Envelope) {
	p, ok := decode[core.CreateRoomReq](env)
	if !ok {
		srv.fail(s, env, codeBadPayload, "bad payload")
		return
	}
	if uid, _ := s.identity(); uid != "" {
		srv.fail(s, env, codeConflict, "already in a room")
		return
	}

	host, err := domain.NewUser(p.HostName)
	if err != nil {
		srv.fail(s, env, codeBadPayload, err.Error())
		return
	}

	lr, err := srv.reg.CreateRoom(p.Name, host, srv.seats)
	if err != nil {
		srv.fail(s, env, codeBadPayload, err.Error())
		return
	}

	tok, err := srv.mintToken(token.Claims{Room: lr.room.ID, UID: host.ID, Host: true})
	if err != nil {
		srv.reg.Remove(lr.room.ID)
		srv.fail(s, env, codeInternal, "token")
		return
	}

	lr.mu.Lock()
	lr.members[host.ID] = s
	resp := core.CreateRoomResp{Room: *lr.room, Host: *host, Seats: lr.seats.Clone(), Token: tok}
	lr.mu.Unlock()

	s.bind(host.ID, lr.room.ID)
	srv.ack(s, env, resp)
}

func (srv *Server) handleJoinRoom(s *session, env core.Envelope) {
	p, ok := decode[core.JoinRoomReq](env)
	if !ok {
		srv.fail(s, env, codeBadPayload, "bad payload")
		return
	}
	if uid, _ := s.identity(); uid != "" {
		srv.fail(s, env, codeConflict, "already in a room")
		return
	}
	lr, ok := srv.reg.Get(p.RoomID)
	if !ok {
		srv.fail(s, env, codeNotFound, "room not found")
		return
	}

	user, err := domain.NewUser(p.DisplayName)
	if err != nil {
		srv.fail(s, env, codeBadPayload, err.Error())
		return
	}
	user.Role = domain.RoleAudience

	tok, err := srv.mintToken(token.Claims{Room: lr.room.ID, UID: user.ID})
	if err != nil {
		srv.fail(s, env, codeInternal, "token")
		return
	}

	lr.mu.Lock()
	lr.audience[user.ID] = user
	lr.members[user.ID] = s
	lr.room.AudienceCount = len(lr.audience)

	audience := make([]domain.User, 0, len(lr.audience))
	for _, u := range lr.audience {
		audience = append(audience, *u)
	}
	resp := core.JoinRoomResp{
		Room:     *lr.room,
		Host:     *lr.host,
		Self:     *user,
		Seats:    lr.seats.Clone(),
		Audience: audience,
		Token:    tok,
	}
	if lr.pk != nil {
		resp.PKAnchors = []core.PKAnchor{{Room: lr.pk.partnerRoom, User: lr.pk.partnerHost}}
	}
	srv.reg.fanout(lr.room.ID, core.EvtAudienceJoin, string(user.ID), env.ID,
		core.AudiencePayload{User: *user, Count: lr.room.AudienceCount}, lr.everyone()...)
	lr.mu.Unlock()

	s.bind(user.ID, lr.room.ID)
	srv.ack(s, env, resp)
}

func (srv *Server) handleLeaveRoom(s *session, env core.Envelope) {
	lr, uid, ok := srv.room(s, env)
	if !ok {
		return
	}
	if lr.room.IsHost(uid) {
		srv.fail(s, env, codeConflict, "host must destroy the room")
		return
	}
	srv.removeMember(lr, uid, env.ID)
	s.unbind()
	srv.ack(s, env, nil)
}

func (srv *Server) handleDestroyRoom(s *session, env core.Envelope) {
	lr, uid, ok := srv.room(s, env)
	if !ok {
		return
	}
	if !lr.room.IsHost(uid) {
		srv.fail(s, env, codeNotHost, "host only")
		return
	}
	srv.destroyRoom(lr, env.ID)
	s.unbind()
	srv.ack(s, env, nil)
}

func (srv *Server) handleListRooms(s *session, env core.Envelope) {
	srv.ack(s, env, core.ListRoomsResp{Rooms: srv.reg.Summaries()})
}

func (srv *Server) handleListAudience(s *session, env core.Envelope) {
	lr, _, ok := srv.room(s, env)
	if !ok {
		return
	}
	lr.mu.Lock()
	users := make([]domain.User, 0, len(lr.audience))
	for _, u := range lr.audience {
		users = append(users, *u)
	}
	lr.mu.Unlock()
	srv.ack(s, env, core.ListAudienceResp{Users: users})
}

// removeMember takes a non-host user out of the room: seat first, then
// the audience roster.
func (srv *Server) removeMember(lr *liveRoom, uid domain.UserID, origin string) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if seat, ok := lr.seats.SeatOf(uid); ok {
		_, _ = lr.seats.Release(seat.Index)
		srv.reg.fanout(lr.room.ID, core.EvtSeatStatusChange, string(uid), origin,
			lr.seatPayload(seat.Index), lr.everyone()...)
	}
	delete(lr.applies, uid)
	delete(lr.invites, uid)

	u, present := lr.audience[uid]
	delete(lr.audience, uid)
	delete(lr.members, uid)
	lr.room.AudienceCount = len(lr.audience)
	if present {
		srv.reg.fanout(lr.room.ID, core.EvtAudienceLeave, string(uid), origin,
			core.AudiencePayload{User: *u, Count: lr.room.AudienceCount}, lr.everyone()...)
	}
}

func (srv *Server) destroyRoom(lr *liveRoom, origin string) {
	lr.mu.Lock()
	lr.room.Status = domain.RoomEnded
	link := lr.pk
	lr.pk = nil
	srv.reg.fanout(lr.room.ID, core.EvtRoomDestroy, string(lr.room.ID), origin,
		struct{}{}, lr.everyone()...)
	for uid, m := range lr.members {
		if uid != lr.room.HostID {
			m.unbind()
		}
	}
	hostID := lr.room.HostID
	lr.mu.Unlock()

	// A destroyed room also ends any battle it was in.
	if link != nil {
		if partner, ok := srv.reg.Get(link.partnerRoom); ok {
			partner.mu.Lock()
			partner.pk = nil
			srv.reg.fanout(partner.room.ID, core.EvtAnchorPKEnd, string(hostID), "",
				core.PKEndPayload{Room: lr.room.ID, UserID: hostID, ActiveEnd: false}, partner.everyone()...)
			partner.mu.Unlock()
		}
	}
	srv.reg.Remove(lr.room.ID)
}
