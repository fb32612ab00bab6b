package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/okabe/liveroom/internal/app"
	"github.com/okabe/liveroom/internal/core"
	"github.com/okabe/liveroom/internal/core/mocks"
	"github.com/okabe/liveroom/internal/domain"
)

// fakeSignaling scripts acks per request name and lets tests inject
// notifications, including deliberate duplicates.
type fakeSignaling struct {
	mu         sync.Mutex
	responders map[string]func(payload json.RawMessage) (any, int)
	fail       map[string]error
	events     []string
	nextID     int
	lastID     string
	nextSeq    int
	notifs     chan core.Notification
}

func newFakeSignaling() *fakeSignaling {
	return &fakeSignaling{
		responders: make(map[string]func(json.RawMessage) (any, int)),
		fail:       make(map[string]error),
		notifs:     make(chan core.Notification, 64),
	}
}

func (f *fakeSignaling) respond(event string, fn func(json.RawMessage) (any, int)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responders[event] = fn
}

func (f *fakeSignaling) failWith(event string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[event] = err
}

func (f *fakeSignaling) Request(ctx context.Context, event string, payload any) (core.Ack, error) {
	raw, _ := json.Marshal(payload)
	f.mu.Lock()
	f.nextID++
	id := fmt.Sprintf("req-%04d", f.nextID)
	f.lastID = id
	f.events = append(f.events, event)
	responder := f.responders[event]
	failure := f.fail[event]
	f.mu.Unlock()

	if failure != nil {
		return core.Ack{}, &core.TransportError{Op: event, Err: failure}
	}
	ack := core.Ack{ID: id, Request: event}
	if responder != nil {
		body, code := responder(raw)
		ack.Code = code
		if body != nil {
			ack.Payload, _ = json.Marshal(body)
		}
	}
	return ack, nil
}

func (f *fakeSignaling) Notifications() <-chan core.Notification { return f.notifs }

func (f *fakeSignaling) Close() error { return nil }

func (f *fakeSignaling) requested(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e == event {
			n++
		}
	}
	return n
}

func (f *fakeSignaling) lastRequestID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastID
}

// notify injects a notification with a fresh ordered stamp.
func (f *fakeSignaling) notify(event string, room domain.RoomID, subject string, payload any) core.Notification {
	f.mu.Lock()
	f.nextSeq++
	seq := fmt.Sprintf("%08d", f.nextSeq)
	f.mu.Unlock()
	n := core.Notification{Event: event, Room: room, Subject: subject, Seq: seq}
	if payload != nil {
		n.Payload, _ = json.Marshal(payload)
	}
	f.notifs <- n
	return n
}

// replay re-delivers a notification byte for byte, same stamp included.
func (f *fakeSignaling) replay(n core.Notification) { f.notifs <- n }

// recordingSink collects session events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []core.SessionEvent
}

func (s *recordingSink) Consume(e core.SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) count(t core.SessionEventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (s *recordingSink) last(t core.SessionEventType) (core.SessionEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Type == t {
			return s.events[i], true
		}
	}
	return core.SessionEvent{}, false
}

type harness struct {
	t     *testing.T
	sig   *fakeSignaling
	eng   *mocks.MockEngine
	sink  *recordingSink
	coord *app.Coordinator
	stop  context.CancelFunc
}

const (
	testRoomID = domain.RoomID("r1")
	hostID     = domain.UserID("h1")
	selfID     = domain.UserID("u1")
)

func hostUser() domain.User {
	return domain.User{ID: hostID, Name: "alice", Role: domain.RoleHost, Status: domain.StatusActive, Mic: true, Camera: true}
}

func testRoom() domain.Room {
	return domain.Room{ID: testRoomID, Name: "arena", HostID: hostID, Status: domain.RoomLiving, AllowApply: true}
}

// newHarness wires a coordinator over a scripted signaling fake and a
// permissive engine mock. Tests that care about engine interactions add
// strict expectations before joining.
func newHarness(t *testing.T, opts ...app.Option) *harness {
	ctrl := gomock.NewController(t)
	eng := mocks.NewMockEngine(ctrl)
	eng.EXPECT().SetObserver(gomock.Any())

	sig := newFakeSignaling()
	sink := &recordingSink{}
	coord := app.New(sig, eng, sink, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	go coord.Run(ctx)
	t.Cleanup(cancel)

	h := &harness{t: t, sig: sig, eng: eng, sink: sink, coord: coord, stop: cancel}
	h.scriptRoomRequests()
	return h
}

func (h *harness) scriptRoomRequests() {
	h.sig.respond(core.ReqCreateRoom, func(json.RawMessage) (any, int) {
		return core.CreateRoomResp{Room: testRoom(), Host: hostUser(), Seats: domain.NewSeatList(8), Token: "rtc-token"}, 0
	})
	h.sig.respond(core.ReqJoinRoom, func(raw json.RawMessage) (any, int) {
		var r core.JoinRoomReq
		_ = json.Unmarshal(raw, &r)
		self := domain.User{ID: selfID, Name: r.DisplayName, Role: domain.RoleAudience}
		return core.JoinRoomResp{
			Room:     testRoom(),
			Host:     hostUser(),
			Self:     self,
			Seats:    domain.NewSeatList(8),
			Audience: []domain.User{self},
			Token:    "rtc-token",
		}, 0
	})
}

func (h *harness) allowEngineJoin() {
	h.eng.EXPECT().JoinRoom(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	h.eng.EXPECT().UpdateVideoConfig(gomock.Any()).Return(nil).AnyTimes()
	h.eng.EXPECT().EnableLocalAudio(gomock.Any()).Return(nil).AnyTimes()
	h.eng.EXPECT().EnableLocalVideo(gomock.Any()).Return(nil).AnyTimes()
}

func (h *harness) allowEngineLeave() {
	h.eng.EXPECT().LeaveRoom().Return(nil).AnyTimes()
}

func (h *harness) hostRoom() app.RoomSnapshot {
	h.t.Helper()
	snap, err := h.coord.CreateRoom(context.Background(), "arena", "alice")
	require.NoError(h.t, err)
	return snap
}

func (h *harness) joinRoom(name string) app.RoomSnapshot {
	h.t.Helper()
	snap, err := h.coord.JoinRoom(context.Background(), testRoomID, name)
	require.NoError(h.t, err)
	return snap
}

func (h *harness) snapshot() app.RoomSnapshot {
	h.t.Helper()
	snap, err := h.coord.Snapshot(context.Background())
	require.NoError(h.t, err)
	return snap
}

// eventually polls the coordinator state until cond holds.
func (h *harness) eventually(cond func(app.RoomSnapshot) bool, msg string) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		snap, err := h.coord.Snapshot(context.Background())
		if err != nil {
			return false
		}
		return cond(snap)
	}, 2*time.Second, 5*time.Millisecond, msg)
}
