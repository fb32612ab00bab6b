package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/okabe/liveroom/internal/core"
	"github.com/okabe/liveroom/internal/domain"
)

var (
	errAlreadyInRoom = errors.New("already in a room")
)

// CreateRoom opens a new room with the caller as host. The local state
// commits only after the backend ack and a successful engine join; an
// engine failure aborts back to idle.
func (c *Coordinator) CreateRoom(ctx context.Context, name domain.RoomName, hostName string) (RoomSnapshot, error) {
	if err := c.begin(ctx, "createRoom", PhaseCreating); err != nil {
		return RoomSnapshot{}, err
	}

	var resp core.CreateRoomResp
	if _, err := c.request(ctx, core.ReqCreateRoom, core.CreateRoomReq{Name: name, HostName: hostName}, &resp); err != nil {
		c.post(func() { c.resetSession(PhaseIdle) }, false)
		return RoomSnapshot{}, err
	}

	if err := c.joinEngine(ctx, resp.Token, resp.Room.ID, resp.Host.ID, true); err != nil {
		c.post(func() { c.resetSession(PhaseIdle) }, false)
		return RoomSnapshot{}, err
	}

	return c.commit(ctx, func() {
		room := resp.Room
		self := resp.Host
		c.room = &room
		c.self = &self
		c.host = c.self
		c.seats = resp.Seats
		c.phase = PhaseActive
		c.publish(core.SessionEvent{Type: core.EventRoomEntered, Room: &room, Seats: c.seats.Clone()})
		log.Info().Str("module", "app.coordinator").Str("room", string(room.ID)).Msg("room created")
	})
}

// JoinRoom enters an existing room as audience. The backend seeds a full
// snapshot at ack time; deltas that land while the engine join is still
// in flight are held back and replayed on commit.
func (c *Coordinator) JoinRoom(ctx context.Context, roomID domain.RoomID, displayName string) (RoomSnapshot, error) {
	if err := c.begin(ctx, "joinRoom", PhaseJoining); err != nil {
		return RoomSnapshot{}, err
	}

	var resp core.JoinRoomResp
	if _, err := c.request(ctx, core.ReqJoinRoom, core.JoinRoomReq{RoomID: roomID, DisplayName: displayName}, &resp); err != nil {
		c.post(func() { c.resetSession(PhaseIdle) }, false)
		return RoomSnapshot{}, err
	}

	if err := c.joinEngine(ctx, resp.Token, resp.Room.ID, resp.Self.ID, false); err != nil {
		c.post(func() { c.resetSession(PhaseIdle) }, false)
		return RoomSnapshot{}, err
	}

	return c.commit(ctx, func() {
		room := resp.Room
		self := resp.Self
		host := resp.Host
		c.room = &room
		c.self = &self
		c.host = &host
		c.seats = resp.Seats
		for _, u := range resp.Audience {
			if u.ID == self.ID {
				continue
			}
			cp := u
			c.audience[u.ID] = &cp
		}
		c.pkAnchors = resp.PKAnchors
		c.phase = PhaseActive
		c.publish(core.SessionEvent{Type: core.EventRoomEntered, Room: &room, Seats: c.seats.Clone()})
		log.Info().Str("module", "app.coordinator").Str("room", string(room.ID)).Msg("room joined")
	})
}

// LeaveRoom releases engine resources and clears local state. A failed
// backend call is logged only; local cleanup never blocks on the network.
func (c *Coordinator) LeaveRoom(ctx context.Context) error {
	return c.teardown(ctx, core.ReqLeaveRoom, false)
}

// FinishLive ends the room for everyone. Host only; same fail-open
// teardown as LeaveRoom.
func (c *Coordinator) FinishLive(ctx context.Context) error {
	return c.teardown(ctx, core.ReqDestroyRoom, true)
}

// ListRooms is a read-only directory query. Transport failures surface
// as-is; retrying is up to the caller.
func (c *Coordinator) ListRooms(ctx context.Context) ([]core.RoomSummary, error) {
	var resp core.ListRoomsResp
	if _, err := c.request(ctx, core.ReqListRooms, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

// ListAudience lists the non-seated roster of the current room.
func (c *Coordinator) ListAudience(ctx context.Context) ([]domain.User, error) {
	var resp core.ListAudienceResp
	if _, err := c.request(ctx, core.ReqListAudience, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// begin moves Idle/Ended into a transitional phase, refusing reentry.
func (c *Coordinator) begin(ctx context.Context, op string, phase Phase) error {
	var stateErr error
	if err := c.do(ctx, func() {
		if c.phase != PhaseIdle && c.phase != PhaseEnded {
			stateErr = &core.PreconditionError{Op: op, Reason: errAlreadyInRoom}
			return
		}
		c.resetSession(phase)
	}); err != nil {
		return err
	}
	return stateErr
}

// joinEngine runs the engine join sequence. Any failure rolls the engine
// back and reports EngineError.
func (c *Coordinator) joinEngine(ctx context.Context, token string, roomID domain.RoomID, uid domain.UserID, asHost bool) error {
	if err := c.eng.JoinRoom(ctx, token, roomID, uid, asHost); err != nil {
		return &core.EngineError{Op: "joinRoom", Err: err}
	}
	if err := c.eng.UpdateVideoConfig(asHost); err != nil {
		_ = c.eng.LeaveRoom()
		return &core.EngineError{Op: "updateVideoConfig", Err: err}
	}
	if asHost {
		if err := c.eng.EnableLocalAudio(true); err != nil {
			_ = c.eng.LeaveRoom()
			return &core.EngineError{Op: "enableLocalAudio", Err: err}
		}
		if err := c.eng.EnableLocalVideo(true); err != nil {
			_ = c.eng.LeaveRoom()
			return &core.EngineError{Op: "enableLocalVideo", Err: err}
		}
	}
	return nil
}

// commit runs fn on the loop unconditionally and returns the resulting
// snapshot. The state change is not abandoned on ctx cancellation.
func (c *Coordinator) commit(ctx context.Context, fn func()) (RoomSnapshot, error) {
	snapCh := make(chan RoomSnapshot, 1)
	c.post(func() {
		fn()
		c.replayPending()
		snapCh <- c.snapshotLocked()
	}, false)
	select {
	case snap := <-snapCh:
		return snap, nil
	case <-c.done:
		return RoomSnapshot{}, ErrClosed
	case <-ctx.Done():
		return RoomSnapshot{}, ctx.Err()
	}
}

func (c *Coordinator) teardown(ctx context.Context, req string, hostOnly bool) error {
	var stateErr error
	var forwarding bool
	if err := c.do(ctx, func() {
		if c.phase != PhaseActive {
			stateErr = core.ErrNotInRoom
			return
		}
		if hostOnly && !c.room.IsHost(c.self.ID) {
			stateErr = core.ErrNotHost
			return
		}
		forwarding = c.pk != nil && c.pk.State == domain.PKPaired
	}); err != nil {
		return err
	}
	if stateErr != nil {
		return stateErr
	}

	c.releaseEngine(forwarding)

	if _, err := c.sig.Request(ctx, req, nil); err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Str("request", req).Msg("teardown request failed, leaving anyway")
	}

	c.post(func() {
		c.resetSession(PhaseIdle)
		c.publish(core.SessionEvent{Type: core.EventRoomEnded})
	}, false)
	return nil
}

func (c *Coordinator) releaseEngine(forwarding bool) {
	if forwarding {
		if err := c.eng.StopForwardStream(); err != nil {
			log.Warn().Err(err).Str("module", "app.coordinator").Msg("stop forward stream")
		}
	}
	if err := c.eng.LeaveRoom(); err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Msg("engine leave")
	}
}
