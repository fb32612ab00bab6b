// Package server is the signaling backend: a room registry behind one
// websocket endpoint. It owns the authoritative room, seat and PK state;
// clients only ever learn about changes through acks and stamped
// notifications.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/okabe/liveroom/internal/core"
	"github.com/okabe/liveroom/internal/token"
)

const (
	codeBadPayload = 400
	codeNotHost    = 403
	codeNotFound   = 404
	codeConflict   = 409
	codeNotInRoom  = 412
	codeInternal   = 500
)

const tokenTTL = 12 * time.Hour

type Options struct {
	Secret    string
	SeatCount int

	// DuplicateEvery re-delivers every Nth notification when positive.
	DuplicateEvery int
}

type Server struct {
	reg    *Registry
	secret string
	seats  int
}

func New(opts Options) *Server {
	if opts.SeatCount <= 0 {
		opts.SeatCount = 8
	}
	return &Server{
		reg:    NewRegistry(opts.DuplicateEvery),
		secret: opts.Secret,
		seats:  opts.SeatCount,
	}
}

// Router mounts the signaling endpoint plus a health probe.
func (srv *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ws", srv.handleWS)
	return r
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (srv *Server) handleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "server").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "server").Str("remote", ws.RemoteAddr().String()).Msg("new WS connection")

	s := newSession(ws)
	ctx, cancel := context.WithCancel(c.Request.Context())
	go func() {
		srv.writePump(ctx, s)
		cancel()
	}()
	srv.readPump(ctx, s)
	cancel()
}

func (srv *Server) handleFrame(s *session, data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "server").Msg("bad json")
		return
	}
	if env.Kind != core.KindRequest {
		log.Warn().Str("module", "server").Str("kind", env.Kind).Msg("unexpected frame kind")
		return
	}

	switch env.Event {
	case core.ReqCreateRoom:
		srv.handleCreateRoom(s, env)
	case core.ReqJoinRoom:
		srv.handleJoinRoom(s, env)
	case core.ReqLeaveRoom:
		srv.handleLeaveRoom(s, env)
	case core.ReqDestroyRoom:
		srv.handleDestroyRoom(s, env)
	case core.ReqListRooms:
		srv.handleListRooms(s, env)
	case core.ReqListAudience:
		srv.handleListAudience(s, env)
	case core.ReqApplySeat:
		srv.handleApplySeat(s, env)
	case core.ReqCancelApply:
		srv.handleCancelApply(s, env)
	case core.ReqAgreeApply:
		srv.handleAgreeApply(s, env)
	case core.ReqRejectApply:
		srv.handleRejectApply(s, env)
	case core.ReqInviteSeat:
		srv.handleInviteSeat(s, env)
	case core.ReqManageSeat:
		srv.handleManageSeat(s, env)
	case core.ReqLeaveSeat:
		srv.handleLeaveSeat(s, env)
	case core.ReqClearUser:
		srv.handleClearUser(s, env)
	case core.ReqMediaStatus:
		srv.handleMediaStatus(s, env)
	case core.ReqRoomMode:
		srv.handleRoomMode(s, env)
	case core.ReqSendText:
		srv.handleSendText(s, env)
	case core.ReqPKInvite:
		srv.handlePKInvite(s, env)
	case core.ReqPKReply:
		srv.handlePKReply(s, env)
	case core.ReqPKStop:
		srv.handlePKStop(s, env)
	default:
		log.Warn().Str("module", "server").Str("event", env.Event).Msg("unknown request")
		srv.fail(s, env, codeBadPayload, "unknown request")
	}
}

func (srv *Server) ack(s *session, env core.Envelope, payload any) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("module", "server").Str("event", env.Event).Msg("ack marshal")
			srv.fail(s, env, codeInternal, "internal")
			return
		}
		raw = b
	}
	srv.send(s, core.Envelope{Kind: core.KindAck, ID: env.ID, Event: env.Event, Payload: raw})
}

func (srv *Server) fail(s *session, env core.Envelope, code int, reason string) {
	srv.send(s, core.Envelope{Kind: core.KindAck, ID: env.ID, Event: env.Event, Code: code, Reason: reason})
}

func (srv *Server) send(s *session, env core.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("module", "server").Msg("send marshal")
		return
	}
	if err := s.TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "server").Msg("send drop")
	}
}

func (srv *Server) mintToken(c token.Claims) (string, error) {
	return token.Sign(srv.secret, c, tokenTTL)
}

// dropSession handles an abrupt disconnect the same way as an explicit
// leave request.
func (srv *Server) dropSession(s *session) {
	uid, roomID := s.identity()
	if uid == "" || roomID == "" {
		return
	}
	lr, ok := srv.reg.Get(roomID)
	if !ok {
		return
	}
	if lr.room.IsHost(uid) {
		srv.destroyRoom(lr, "")
		return
	}
	srv.removeMember(lr, uid, "")
	s.unbind()
}
