package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/okabe/liveroom/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
	pongWait     = 70 * time.Second
)

// session is one signaling connection. A connection speaks for at most
// one user in at most one room; creating or joining a room binds it.
type session struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool

	uid    domain.UserID
	roomID domain.RoomID
}

func newSession(conn *websocket.Conn) *session {
	return &session{conn: conn, send: make(chan []byte, sendBuffer)}
}

func (s *session) TrySend(data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("connection closed")
	}
	select {
	case s.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (s *session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.send)
	_ = s.conn.Close()
	s.mu.Unlock()
}

func (s *session) bind(uid domain.UserID, roomID domain.RoomID) {
	s.mu.Lock()
	s.uid = uid
	s.roomID = roomID
	s.mu.Unlock()
}

func (s *session) unbind() {
	s.mu.Lock()
	s.uid = ""
	s.roomID = ""
	s.mu.Unlock()
}

func (s *session) identity() (domain.UserID, domain.RoomID) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uid, s.roomID
}

func (srv *Server) writePump(ctx context.Context, s *session) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "server").Msg("writePump ctx done")
			return
		case data, ok := <-s.send:
			if !ok {
				log.Warn().Str("module", "server").Msg("writePump channel closed")
				return
			}
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "server").Msg("writePump set deadline")
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "server").Msg("writePump write error")
				return
			}
		}
	}
}

func (srv *Server) readPump(ctx context.Context, s *session) {
	defer func() {
		uid, _ := s.identity()
		log.Info().Str("module", "server").Str("uid", string(uid)).Msg("readPump closing")
		srv.dropSession(s)
		s.Close()
	}()

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "server").Msg("readPump ctx done")
			return
		default:
			_, data, err := s.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "server").Msg("readPump read error")
				return
			}
			srv.handleFrame(s, data)
		}
	}
}
