package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/okabe/liveroom/internal/app"
	"github.com/okabe/liveroom/internal/core"
	"github.com/okabe/liveroom/internal/domain"
)

func TestCreateRoom_Transitions_To_Active_Host(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.allowEngineJoin()

	snap := h.hostRoom()

	req.Equal(app.PhaseActive, snap.Phase)
	req.Equal(testRoomID, snap.Room.ID)
	req.Equal(domain.RoleHost, snap.Self.Role)
	req.Len(snap.Seats, 8)
	for _, seat := range snap.Seats {
		req.Equal(domain.SeatClosed, seat.Status)
		req.Nil(seat.User)
	}
	req.Equal(1, h.sink.count(core.EventRoomEntered))
}

func TestCreateRoom_Backend_Rejection_Rolls_Back(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.sig.respond(core.ReqCreateRoom, func(json.RawMessage) (any, int) {
		return nil, 503
	})

	_, err := h.coord.CreateRoom(context.Background(), "arena", "alice")

	var be *core.BackendError
	req.ErrorAs(err, &be)
	req.Equal(503, be.Code)
	req.Equal(app.PhaseIdle, h.snapshot().Phase)
}

func TestCreateRoom_Engine_Failure_Aborts_To_Idle(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.eng.EXPECT().JoinRoom(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("no media"))

	_, err := h.coord.CreateRoom(context.Background(), "arena", "alice")

	var ee *core.EngineError
	req.ErrorAs(err, &ee)
	req.Equal(app.PhaseIdle, h.snapshot().Phase)
	req.Equal(0, h.sink.count(core.EventRoomEntered))
}

func TestJoinRoom_Seeds_Full_Snapshot(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.allowEngineJoin()

	snap := h.joinRoom("bob")

	req.Equal(app.PhaseActive, snap.Phase)
	req.Equal(domain.RoleAudience, snap.Self.Role)
	req.Equal(hostID, snap.Host.ID)
	req.Len(snap.Seats, 8)
}

// The backend snapshot is taken at ack time, but the engine join can run
// for hundreds of milliseconds. A seat change fanned out in that window
// must survive into the committed session.
func TestJoinRoom_Deltas_During_Engine_Join_Are_Replayed(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.eng.EXPECT().JoinRoom(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), false).
		DoAndReturn(func(context.Context, string, domain.RoomID, domain.UserID, bool) error {
			close(entered)
			<-release
			return nil
		})
	h.eng.EXPECT().UpdateVideoConfig(false).Return(nil)

	done := make(chan error, 1)
	go func() {
		_, err := h.coord.JoinRoom(context.Background(), testRoomID, "bob")
		done <- err
	}()
	<-entered

	guest := domain.User{ID: "u7", Name: "carol", Role: domain.RoleAudience, Status: domain.StatusActive}
	h.sig.notify(core.EvtSeatStatusChange, testRoomID, "3", core.SeatChangePayload{SeatIndex: 3, Status: domain.SeatOpen, User: &guest})
	require.Eventually(t, func() bool { return len(h.sig.notifs) == 0 }, time.Second, time.Millisecond,
		"the loop must consume the seat change while the join is still in flight")
	close(release)

	req.NoError(<-done)
	h.eventually(func(s app.RoomSnapshot) bool {
		return s.Seats[2].User != nil && s.Seats[2].User.ID == guest.ID
	}, "seat 3 change delivered during the join window must not be lost")
}

func TestLeaveRoom_Is_Fail_Open(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.allowEngineJoin()
	h.eng.EXPECT().LeaveRoom().Return(nil)
	h.hostRoom()

	h.sig.failWith(core.ReqLeaveRoom, errors.New("socket gone"))

	// The backend call fails but local cleanup still happens
	req.NoError(h.coord.LeaveRoom(context.Background()))
	h.eventually(func(s app.RoomSnapshot) bool { return s.Phase == app.PhaseIdle }, "state must not stay in the room")
	req.Equal(1, h.sink.count(core.EventRoomEnded))
}

func TestApplyForSeat_Disabled_Room_Needs_Invite(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.allowEngineJoin()
	h.sig.respond(core.ReqJoinRoom, func(raw json.RawMessage) (any, int) {
		room := testRoom()
		room.AllowApply = false
		self := domain.User{ID: selfID, Name: "bob", Role: domain.RoleAudience}
		return core.JoinRoomResp{Room: room, Host: hostUser(), Self: self, Seats: domain.NewSeatList(8), Token: "t"}, 0
	})
	h.joinRoom("bob")

	needsApply, err := h.coord.ApplyForSeat(context.Background(), 3)

	req.NoError(err)
	req.False(needsApply)
	req.Equal(0, h.sig.requested(core.ReqApplySeat), "no request may go out when applying is disabled")
}

func TestApplyForSeat_Occupied_Seat_Is_A_Precondition_Failure(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.allowEngineJoin()
	h.joinRoom("bob")

	other := domain.User{ID: "u9", Name: "eve", Role: domain.RoleAudience, Status: domain.StatusActive}
	h.sig.notify(core.EvtSeatStatusChange, testRoomID, "3", core.SeatChangePayload{SeatIndex: 3, Status: domain.SeatOpen, User: &other})
	h.eventually(func(s app.RoomSnapshot) bool { return s.Seats[2].User != nil }, "seat 3 occupied")

	_, err := h.coord.ApplyForSeat(context.Background(), 3)

	var pe *core.PreconditionError
	req.ErrorAs(err, &pe)
	req.ErrorIs(err, domain.ErrSeatOccupied)
}

// Scenario from the host's side: audience applies for seat 3, the host
// approves, both observe seat 3 occupied by the applicant.
func TestHost_Agrees_Apply_And_Seats_The_Applicant(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.allowEngineJoin()
	h.hostRoom()

	applicant := domain.User{ID: selfID, Name: "bob", Role: domain.RoleAudience}
	h.sig.notify(core.EvtAudienceJoin, testRoomID, string(selfID), core.AudiencePayload{User: applicant, Count: 1})
	h.sig.notify(core.EvtApplyReceived, testRoomID, string(selfID), core.ApplyPayload{User: applicant, SeatIndex: 3})
	h.eventually(func(s app.RoomSnapshot) bool { return len(s.Audience) == 1 }, "applicant in roster")
	req.Equal(1, h.sink.count(core.EventApplyReceived))

	seated := applicant
	seated.Status = domain.StatusActive
	h.sig.respond(core.ReqAgreeApply, func(json.RawMessage) (any, int) {
		return core.SeatChangePayload{SeatIndex: 3, Status: domain.SeatOpen, User: &seated}, 0
	})

	req.NoError(h.coord.AgreeApply(context.Background(), selfID))

	h.eventually(func(s app.RoomSnapshot) bool {
		seat := s.Seats[2]
		return seat.Status == domain.SeatOpen && seat.User != nil && seat.User.ID == selfID
	}, "seat 3 must be open and occupied by the applicant")
}

// The notification echoing our own approved seat change must be a no-op.
func TestAcceptSeatInvite_Cancelled_Context_Sends_Nothing(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.allowEngineJoin()
	h.joinRoom("bob")

	h.sig.notify(core.EvtSeatInvite, testRoomID, string(selfID), core.SeatInvitePayload{SeatIndex: 2})
	h.eventually(func(s app.RoomSnapshot) bool { return s.Self.Status == domain.StatusInvited }, "invite received")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req.ErrorIs(h.coord.AcceptSeatInvite(ctx), context.Canceled)
	req.Equal(0, h.sig.requested(core.ReqApplySeat), "no request may go out on a dead context")
}

// The host's offer can be raced by someone else taking the seat. The
// backend refuses the accept; the invite must clear locally so the user
// is not wedged in the invited state.
func TestAcceptSeatInvite_Backend_Rejection_Clears_The_Invite(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.allowEngineJoin()
	h.joinRoom("bob")

	h.sig.notify(core.EvtSeatInvite, testRoomID, string(selfID), core.SeatInvitePayload{SeatIndex: 2})
	h.eventually(func(s app.RoomSnapshot) bool { return s.Self.Status == domain.StatusInvited }, "invite received")

	h.sig.respond(core.ReqApplySeat, func(json.RawMessage) (any, int) { return nil, 409 })

	var be *core.BackendError
	req.ErrorAs(h.coord.AcceptSeatInvite(context.Background()), &be)
	h.eventually(func(s app.RoomSnapshot) bool { return s.Self.Status == domain.StatusDefault }, "invite cleared")

	err := h.coord.AcceptSeatInvite(context.Background())
	var pe *core.PreconditionError
	req.ErrorAs(err, &pe, "a cleared invite cannot be accepted again")
}

func TestSelf_Echoed_Seat_Change_Is_Dropped(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.allowEngineJoin()
	h.hostRoom()

	applicant := domain.User{ID: selfID, Name: "bob", Role: domain.RoleAudience, Status: domain.StatusActive}
	h.sig.respond(core.ReqAgreeApply, func(json.RawMessage) (any, int) {
		return core.SeatChangePayload{SeatIndex: 3, Status: domain.SeatOpen, User: &applicant}, 0
	})
	req.NoError(h.coord.AgreeApply(context.Background(), selfID))
	origin := h.sig.lastRequestID()
	h.eventually(func(s app.RoomSnapshot) bool { return s.Seats[2].User != nil }, "seat applied from ack")
	before := h.sink.count(core.EventSeatsUpdated)

	// The backend echo carries the origin request id; if it were applied
	// the payload below would wrongly clear the seat.
	echo := core.Notification{
		Event: core.EvtSeatStatusChange, Room: testRoomID, Subject: "3",
		Seq: "99999990", Origin: origin,
	}
	echo.Payload, _ = json.Marshal(core.SeatChangePayload{SeatIndex: 3, Status: domain.SeatClosed})
	h.sig.replay(echo)

	// Sentinel event proves the echo was already processed
	h.sig.notify(core.EvtAudienceJoin, testRoomID, "u7", core.AudiencePayload{User: domain.User{ID: "u7", Name: "zed"}, Count: 2})
	h.eventually(func(s app.RoomSnapshot) bool { return len(s.Audience) >= 1 }, "sentinel applied")

	snap := h.snapshot()
	req.NotNil(snap.Seats[2].User, "echo must not clear the seat")
	req.Equal(before, h.sink.count(core.EventSeatsUpdated))
}

func TestDuplicate_Notification_Does_Not_Reapply(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.allowEngineJoin()
	h.joinRoom("bob")

	u := domain.User{ID: "u5", Name: "carol", Role: domain.RoleAudience}
	first := h.sig.notify(core.EvtAudienceJoin, testRoomID, "u5", core.AudiencePayload{User: u, Count: 7})
	h.eventually(func(s app.RoomSnapshot) bool { return s.Room.AudienceCount == 7 }, "join applied")
	before := h.sink.count(core.EventAudienceUpdated)

	// Same (event, subject, seq) triple delivered again
	h.sig.replay(first)

	h.sig.notify(core.EvtRecvRoomText, testRoomID, "u5", core.RoomTextPayload{From: u, Text: "hi"})
	h.eventually(func(s app.RoomSnapshot) bool { return h.sink.count(core.EventMessageReceived) == 1 }, "sentinel applied")

	req.Equal(before, h.sink.count(core.EventAudienceUpdated), "duplicate must not publish")
}

// Applying the same seat change twice yields the state of applying it once.
func TestSeat_Change_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.allowEngineJoin()
	h.joinRoom("bob")

	u := domain.User{ID: "u5", Name: "carol", Role: domain.RoleAudience, Status: domain.StatusActive}
	payload := core.SeatChangePayload{SeatIndex: 2, Status: domain.SeatOpen, User: &u}
	h.sig.notify(core.EvtSeatStatusChange, testRoomID, "2", payload)
	// A re-send with a fresh stamp passes the journal and must replace,
	// not duplicate, the occupant.
	h.sig.notify(core.EvtSeatStatusChange, testRoomID, "2", payload)

	h.eventually(func(s app.RoomSnapshot) bool { return s.Seats[1].User != nil }, "seat applied")
	snap := h.snapshot()
	occupied := 0
	for _, seat := range snap.Seats {
		if seat.User != nil && seat.User.ID == u.ID {
			occupied++
		}
	}
	req.Equal(1, occupied, "a user may occupy exactly one seat")
}

func TestMutating_Request_Failure_Leaves_State_Untouched(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.allowEngineJoin()
	h.hostRoom()

	guest := domain.User{ID: "u5", Name: "carol", Role: domain.RoleAudience}
	h.sig.notify(core.EvtAudienceJoin, testRoomID, "u5", core.AudiencePayload{User: guest, Count: 1})
	h.eventually(func(s app.RoomSnapshot) bool { return len(s.Audience) == 1 }, "guest present")

	h.sig.failWith(core.ReqInviteSeat, errors.New("timeout"))
	err := h.coord.InviteToSeat(context.Background(), "u5", 4)

	var te *core.TransportError
	req.ErrorAs(err, &te)
	snap := h.snapshot()
	req.Equal(domain.StatusDefault, snap.Audience[0].Status, "no optimistic mutation before ack")
}

func TestUpdateMediaStatus_Echo_Is_Deduplicated(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.allowEngineJoin()
	h.eng.EXPECT().MuteLocalAudio(true).Return(nil)
	h.eng.EXPECT().MuteLocalVideo(false).Return(nil)
	h.hostRoom()

	req.NoError(h.coord.UpdateMediaStatus(context.Background(), false, true))
	origin := h.sig.lastRequestID()
	h.eventually(func(s app.RoomSnapshot) bool { return !s.Self.Mic && s.Self.Camera }, "media state committed")

	// The echo claims the opposite; dropping it keeps the committed state.
	echo := core.Notification{
		Event: core.EvtMediaStatusChange, Room: testRoomID, Subject: string(hostID),
		Seq: "99999991", Origin: origin,
	}
	echo.Payload, _ = json.Marshal(core.MediaStatusPayload{UserID: hostID, Mic: true, Camera: false})
	h.sig.replay(echo)

	h.sig.notify(core.EvtRecvRoomText, testRoomID, "x", core.RoomTextPayload{From: hostUser(), Text: "ping"})
	h.eventually(func(s app.RoomSnapshot) bool { return h.sink.count(core.EventMessageReceived) == 1 }, "sentinel applied")

	snap := h.snapshot()
	req.False(snap.Self.Mic)
	req.True(snap.Self.Camera)
}

func TestClearUser_For_Self_Ends_The_Session(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.allowEngineJoin()
	h.eng.EXPECT().LeaveRoom().Return(nil)
	h.joinRoom("bob")

	h.sig.notify(core.EvtClearUser, testRoomID, string(selfID), core.ClearUserPayload{UserID: selfID})

	h.eventually(func(s app.RoomSnapshot) bool { return s.Phase == app.PhaseEnded }, "kicked user must end up out of the room")
	req.Equal(1, h.sink.count(core.EventKicked))
	req.Equal(1, h.sink.count(core.EventRoomEnded))
}

func TestRoomDestroy_Tears_Down(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.allowEngineJoin()
	h.eng.EXPECT().LeaveRoom().Return(nil)
	h.joinRoom("bob")

	h.sig.notify(core.EvtRoomDestroy, testRoomID, string(testRoomID), nil)

	h.eventually(func(s app.RoomSnapshot) bool { return s.Phase == app.PhaseEnded }, "room destroy ends the session")
	req.Equal(1, h.sink.count(core.EventRoomEnded))
}

func TestHost_Only_Operations_Are_Refused_For_Audience(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.allowEngineJoin()
	h.joinRoom("bob")

	req.ErrorIs(h.coord.InviteToSeat(context.Background(), "u5", 1), core.ErrNotHost)
	req.ErrorIs(h.coord.ManageSeat(context.Background(), 1, core.SeatLock), core.ErrNotHost)
	req.ErrorIs(h.coord.FinishLive(context.Background()), core.ErrNotHost)
}

func TestVolumes_Update_Last_Value_Wins(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.allowEngineJoin()
	h.hostRoom()

	obs := core.EngineObserver(h.coord)
	obs.OnVolumesReported(map[domain.UserID]int{hostID: 200})
	obs.OnVolumesReported(map[domain.UserID]int{hostID: 10})

	h.eventually(func(s app.RoomSnapshot) bool {
		return s.Self.Volume == 10 && !s.Self.Speaking
	}, "latest engine reading wins")
	req.GreaterOrEqual(h.sink.count(core.EventVolumesUpdated), 1)
}
