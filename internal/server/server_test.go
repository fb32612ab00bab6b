package server

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/okabe/liveroom/internal/core"
	"github.com/okabe/liveroom/internal/domain"
)

// testClient drives the frame handler directly; acks and notifications
// are read back off the session's send buffer.
type testClient struct {
	t    *testing.T
	srv  *Server
	sess *session
	reqN int
}

func newTestClient(t *testing.T, srv *Server) *testClient {
	return &testClient{t: t, srv: srv, sess: newSession(nil)}
}

func (c *testClient) request(event string, payload any) core.Envelope {
	c.reqN++
	id := fmt.Sprintf("req-%04d", c.reqN)
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(c.t, err)
		raw = b
	}
	c.srv.handleFrame(c.sess, mustMarshal(c.t, core.Envelope{
		Kind: core.KindRequest, ID: id, Event: event, Payload: raw,
	}))
	return c.ack(id)
}

// ack pops frames until the ack with the given id shows up, discarding
// notifications that arrived first.
func (c *testClient) ack(id string) core.Envelope {
	for {
		env := c.pop()
		if env.Kind == core.KindAck && env.ID == id {
			return env
		}
	}
}

func (c *testClient) pop() core.Envelope {
	select {
	case data := <-c.sess.send:
		var env core.Envelope
		require.NoError(c.t, json.Unmarshal(data, &env))
		return env
	default:
		c.t.Fatal("no frame buffered")
		return core.Envelope{}
	}
}

// notifications drains everything buffered, keeping only notify frames.
func (c *testClient) notifications() []core.Envelope {
	var out []core.Envelope
	for {
		select {
		case data := <-c.sess.send:
			var env core.Envelope
			require.NoError(c.t, json.Unmarshal(data, &env))
			if env.Kind == core.KindNotify {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

func mustMarshal(t *testing.T, v any) []byte {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func decodeAck[T any](t *testing.T, env core.Envelope) T {
	var v T
	require.Zero(t, env.Code, "ack failed: %s", env.Reason)
	require.NoError(t, json.Unmarshal(env.Payload, &v))
	return v
}

func createTestRoom(t *testing.T, srv *Server) (*testClient, core.CreateRoomResp) {
	host := newTestClient(t, srv)
	ack := host.request(core.ReqCreateRoom, core.CreateRoomReq{Name: "test room", HostName: "alice"})
	resp := decodeAck[core.CreateRoomResp](t, ack)
	return host, resp
}

func joinTestRoom(t *testing.T, srv *Server, roomID domain.RoomID, name string) (*testClient, core.JoinRoomResp) {
	c := newTestClient(t, srv)
	ack := c.request(core.ReqJoinRoom, core.JoinRoomReq{RoomID: roomID, DisplayName: name})
	resp := decodeAck[core.JoinRoomResp](t, ack)
	return c, resp
}

func TestCreateRoomSeedsSeats(t *testing.T) {
	req := require.New(t)
	srv := New(Options{Secret: "s", SeatCount: 6})

	_, resp := createTestRoom(t, srv)

	req.Len(resp.Seats, 6)
	req.Equal(domain.RoomLiving, resp.Room.Status)
	req.Equal(resp.Host.ID, resp.Room.HostID)
	req.NotEmpty(resp.Token)
	for _, seat := range resp.Seats {
		req.Equal(domain.SeatClosed, seat.Status)
		req.Nil(seat.User)
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	srv := New(Options{Secret: "s"})
	c := newTestClient(t, srv)
	ack := c.request(core.ReqJoinRoom, core.JoinRoomReq{RoomID: "nope", DisplayName: "bob"})
	require.Equal(t, codeNotFound, ack.Code)
}

func TestJoinFansOutAudienceJoin(t *testing.T) {
	req := require.New(t)
	srv := New(Options{Secret: "s"})
	host, created := createTestRoom(t, srv)

	_, joined := joinTestRoom(t, srv, created.Room.ID, "bob")
	req.Equal(1, joined.Room.AudienceCount)
	req.Len(joined.Audience, 1)

	notifs := host.notifications()
	req.Len(notifs, 1)
	req.Equal(core.EvtAudienceJoin, notifs[0].Event)
	req.Equal(string(joined.Self.ID), notifs[0].Subject)
	req.NotEmpty(notifs[0].Seq)
	req.NotEmpty(notifs[0].Origin)
}

func TestApplyAgreeSeats(t *testing.T) {
	req := require.New(t)
	srv := New(Options{Secret: "s"})
	host, created := createTestRoom(t, srv)
	guest, joined := joinTestRoom(t, srv, created.Room.ID, "bob")

	ack := guest.request(core.ReqApplySeat, core.SeatReq{SeatIndex: 3})
	req.Zero(ack.Code)

	notifs := host.notifications()
	var apply *core.Envelope
	for i := range notifs {
		if notifs[i].Event == core.EvtApplyReceived {
			apply = &notifs[i]
		}
	}
	req.NotNil(apply)

	ack = host.request(core.ReqAgreeApply, core.SeatReq{UserID: joined.Self.ID})
	change := decodeAck[core.SeatChangePayload](t, ack)
	req.Equal(3, change.SeatIndex)
	req.Equal(domain.SeatOpen, change.Status)
	req.NotNil(change.User)
	req.Equal(joined.Self.ID, change.User.ID)

	// The seated guest learns through the fanout.
	var seatChange *core.Envelope
	for _, n := range guest.notifications() {
		if n.Event == core.EvtSeatStatusChange {
			n := n
			seatChange = &n
		}
	}
	req.NotNil(seatChange)
	req.Equal(string(joined.Self.ID), seatChange.Subject)
}

func TestSeatAuthorityRejections(t *testing.T) {
	req := require.New(t)
	srv := New(Options{Secret: "s"})
	host, created := createTestRoom(t, srv)
	guest, joined := joinTestRoom(t, srv, created.Room.ID, "bob")
	other, otherJoined := joinTestRoom(t, srv, created.Room.ID, "carol")

	// Guests cannot run host-only operations.
	ack := guest.request(core.ReqAgreeApply, core.SeatReq{UserID: otherJoined.Self.ID})
	req.Equal(codeNotHost, ack.Code)
	ack = guest.request(core.ReqManageSeat, core.ManageSeatReq{SeatIndex: 1, Action: core.SeatLock})
	req.Equal(codeNotHost, ack.Code)

	// Locked seats refuse applications.
	ack = host.request(core.ReqManageSeat, core.ManageSeatReq{SeatIndex: 2, Action: core.SeatLock})
	req.Zero(ack.Code)
	ack = guest.request(core.ReqApplySeat, core.SeatReq{SeatIndex: 2})
	req.Equal(codeConflict, ack.Code)

	// Occupied seats refuse a second occupant.
	ack = guest.request(core.ReqApplySeat, core.SeatReq{SeatIndex: 1})
	req.Zero(ack.Code)
	ack = host.request(core.ReqAgreeApply, core.SeatReq{UserID: joined.Self.ID})
	req.Zero(ack.Code)
	ack = other.request(core.ReqApplySeat, core.SeatReq{SeatIndex: 1})
	req.Equal(codeConflict, ack.Code)

	// A locked occupied seat cannot happen: lock refuses occupied seats.
	ack = host.request(core.ReqManageSeat, core.ManageSeatReq{SeatIndex: 1, Action: core.SeatLock})
	req.Equal(codeConflict, ack.Code)
}

func TestSeatInviteFlow(t *testing.T) {
	req := require.New(t)
	srv := New(Options{Secret: "s"})
	host, created := createTestRoom(t, srv)
	guest, joined := joinTestRoom(t, srv, created.Room.ID, "bob")

	ack := host.request(core.ReqInviteSeat, core.SeatReq{UserID: joined.Self.ID, SeatIndex: 4})
	req.Zero(ack.Code)

	notifs := guest.notifications()
	req.Len(notifs, 1)
	req.Equal(core.EvtSeatInvite, notifs[0].Event)

	// Accepting reuses the apply request and seats immediately.
	ack = guest.request(core.ReqApplySeat, core.SeatReq{SeatIndex: 4})
	change := decodeAck[core.SeatChangePayload](t, ack)
	req.Equal(4, change.SeatIndex)
	req.Equal(domain.SeatOpen, change.Status)
}

func TestFanoutOrderingIsMonotonic(t *testing.T) {
	req := require.New(t)
	srv := New(Options{Secret: "s"})
	host, created := createTestRoom(t, srv)
	guest, _ := joinTestRoom(t, srv, created.Room.ID, "bob")

	for i := 0; i < 5; i++ {
		ack := guest.request(core.ReqSendText, core.SendTextReq{Text: fmt.Sprintf("m%d", i)})
		req.Zero(ack.Code)
	}

	notifs := host.notifications()
	var prev string
	for _, n := range notifs {
		req.NotEmpty(n.Seq)
		req.Greater(n.Seq, prev, "sequence stamps must increase in fanout order")
		prev = n.Seq
	}
}

func TestDuplicateInjection(t *testing.T) {
	req := require.New(t)
	srv := New(Options{Secret: "s", DuplicateEvery: 1})
	host, created := createTestRoom(t, srv)
	guest, _ := joinTestRoom(t, srv, created.Room.ID, "bob")

	ack := guest.request(core.ReqSendText, core.SendTextReq{Text: "hello"})
	req.Zero(ack.Code)

	var texts []core.Envelope
	for _, n := range host.notifications() {
		if n.Event == core.EvtRecvRoomText {
			texts = append(texts, n)
		}
	}
	req.Len(texts, 2)
	req.Equal(texts[0].Seq, texts[1].Seq, "duplicates must be byte-identical")
}

func TestClearUserEvictsEverywhere(t *testing.T) {
	req := require.New(t)
	srv := New(Options{Secret: "s"})
	host, created := createTestRoom(t, srv)
	guest, joined := joinTestRoom(t, srv, created.Room.ID, "bob")

	// Seat the guest first so eviction crosses both seat and roster.
	ack := guest.request(core.ReqApplySeat, core.SeatReq{SeatIndex: 1})
	req.Zero(ack.Code)
	ack = host.request(core.ReqAgreeApply, core.SeatReq{UserID: joined.Self.ID})
	req.Zero(ack.Code)

	ack = host.request(core.ReqClearUser, core.ClearUserReq{UserID: joined.Self.ID})
	req.Zero(ack.Code)

	var events []string
	for _, n := range guest.notifications() {
		events = append(events, n.Event)
	}
	req.Contains(events, core.EvtClearUser)

	lr, ok := srv.reg.Get(created.Room.ID)
	req.True(ok)
	lr.mu.Lock()
	defer lr.mu.Unlock()
	req.Empty(lr.audience)
	req.Zero(lr.seats.Occupied())
}

func TestDestroyRoomNotifiesAndRemoves(t *testing.T) {
	req := require.New(t)
	srv := New(Options{Secret: "s"})
	host, created := createTestRoom(t, srv)
	guest, _ := joinTestRoom(t, srv, created.Room.ID, "bob")

	ack := host.request(core.ReqDestroyRoom, nil)
	req.Zero(ack.Code)

	var events []string
	for _, n := range guest.notifications() {
		events = append(events, n.Event)
	}
	req.Contains(events, core.EvtRoomDestroy)

	_, ok := srv.reg.Get(created.Room.ID)
	req.False(ok)
}

func TestPKInviteRouting(t *testing.T) {
	req := require.New(t)
	srv := New(Options{Secret: "s"})
	hostA, roomA := createTestRoom(t, srv)
	hostB, roomB := createTestRoom(t, srv)

	ack := hostA.request(core.ReqPKInvite, core.PKInviteReq{
		TargetRoom: roomB.Room.ID, TargetUser: roomB.Host.ID, SeatIndex: 1,
	})
	invite := decodeAck[core.PKInviteResp](t, ack)
	req.NotEmpty(invite.InviteID)

	notifs := hostB.notifications()
	req.Len(notifs, 1)
	req.Equal(core.EvtAnchorInvite, notifs[0].Event)
	req.Equal(roomB.Room.ID, notifs[0].Room)

	var p core.AnchorInvitePayload
	req.NoError(json.Unmarshal(notifs[0].Payload, &p))
	req.Equal(invite.InviteID, p.InviteID)
	req.Equal(roomA.Room.ID, p.FromRoom)
	req.Equal(roomA.Host.ID, p.FromUser.ID)
}

func TestPKAcceptPairsBothRooms(t *testing.T) {
	req := require.New(t)
	srv := New(Options{Secret: "s"})
	hostA, roomA := createTestRoom(t, srv)
	hostB, roomB := createTestRoom(t, srv)

	ack := hostA.request(core.ReqPKInvite, core.PKInviteReq{
		TargetRoom: roomB.Room.ID, TargetUser: roomB.Host.ID, SeatIndex: 1,
	})
	invite := decodeAck[core.PKInviteResp](t, ack)
	hostB.notifications() // drain the invite

	ack = hostB.request(core.ReqPKReply, core.PKReplyReq{InviteID: invite.InviteID, Accept: true})
	reply := decodeAck[core.PKReplyResp](t, ack)
	req.NotEmpty(reply.Token)
	req.Equal(roomA.Room.ID, reply.TargetRoom)

	notifs := hostA.notifications()
	req.Len(notifs, 1)
	var p core.AnchorReplyPayload
	req.NoError(json.Unmarshal(notifs[0].Payload, &p))
	req.Equal(domain.PKAccept, p.Code)
	req.NotEmpty(p.Token)
	req.Equal(roomB.Room.ID, p.TargetRoom)

	// A late joiner of either room sees the pairing in the seed.
	_, seeded := joinTestRoom(t, srv, roomA.Room.ID, "late")
	req.Len(seeded.PKAnchors, 1)
	req.Equal(roomB.Room.ID, seeded.PKAnchors[0].Room)

	// A second reply with the same invite id is gone.
	ack = hostB.request(core.ReqPKReply, core.PKReplyReq{InviteID: invite.InviteID, Accept: true})
	req.Equal(codeNotFound, ack.Code)
}

func TestPKInviteExpiresUnanswered(t *testing.T) {
	req := require.New(t)
	srv := New(Options{Secret: "s"})
	hostA, _ := createTestRoom(t, srv)
	hostB, roomB := createTestRoom(t, srv)

	ack := hostA.request(core.ReqPKInvite, core.PKInviteReq{
		TargetRoom: roomB.Room.ID, TargetUser: roomB.Host.ID, SeatIndex: 1,
	})
	invite := decodeAck[core.PKInviteResp](t, ack)
	hostB.notifications() // drain the invite

	srv.reg.mu.Lock()
	inv := srv.reg.invites[invite.InviteID]
	inv.expires = time.Now().Add(-time.Second)
	srv.reg.invites[invite.InviteID] = inv
	srv.reg.mu.Unlock()

	ack = hostB.request(core.ReqPKReply, core.PKReplyReq{InviteID: invite.InviteID, Accept: true})
	req.Equal(codeNotFound, ack.Code, "a reply after the deadline must be refused")
	req.Empty(hostA.notifications(), "the inviter must not hear about a dead invite")

	srv.reg.mu.Lock()
	remaining := len(srv.reg.invites)
	srv.reg.mu.Unlock()
	req.Zero(remaining, "an expired invite must not linger in the registry")
}

func TestPKStopClearsBothSides(t *testing.T) {
	req := require.New(t)
	srv := New(Options{Secret: "s"})
	hostA, roomA := createTestRoom(t, srv)
	hostB, roomB := createTestRoom(t, srv)

	ack := hostA.request(core.ReqPKInvite, core.PKInviteReq{
		TargetRoom: roomB.Room.ID, TargetUser: roomB.Host.ID, SeatIndex: 1,
	})
	invite := decodeAck[core.PKInviteResp](t, ack)
	hostB.notifications()
	ack = hostB.request(core.ReqPKReply, core.PKReplyReq{InviteID: invite.InviteID, Accept: true})
	req.Zero(ack.Code)
	hostA.notifications()

	ack = hostA.request(core.ReqPKStop, nil)
	req.Zero(ack.Code)

	notifs := hostB.notifications()
	req.Len(notifs, 1)
	req.Equal(core.EvtAnchorPKEnd, notifs[0].Event)
	req.Empty(notifs[0].Origin)

	lrA, _ := srv.reg.Get(roomA.Room.ID)
	lrB, _ := srv.reg.Get(roomB.Room.ID)
	req.Nil(lrA.pk)
	req.Nil(lrB.pk)

	ack = hostA.request(core.ReqPKStop, nil)
	req.Equal(codeConflict, ack.Code)
}
