package server

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/okabe/liveroom/internal/core"
	"github.com/okabe/liveroom/internal/domain"
)

// liveRoom is the authoritative state of one room. All seat and roster
// mutations happen under mu, and fanout stamps sequence ulids under the
// same lock so per-room notification order matches mutation order.
type liveRoom struct {
	mu sync.Mutex

	room  *domain.Room
	host  *domain.User
	seats domain.SeatList

	audience map[domain.UserID]*domain.User
	applies  map[domain.UserID]int
	invites  map[domain.UserID]int

	members map[domain.UserID]*session

	// pk is set while this room's host is battle-paired with another
	// room's host.
	pk *pkLink
}

type pkLink struct {
	partnerRoom domain.RoomID
	partnerHost domain.User
}

// pkInviteTTL is deliberately longer than any client-side reply timeout;
// it only has to outlive a reply that is genuinely still in flight.
const pkInviteTTL = 30 * time.Second

type pkInvite struct {
	fromRoom  domain.RoomID
	fromUser  domain.UserID
	toRoom    domain.RoomID
	toUser    domain.UserID
	seatIndex int
	expires   time.Time
}

type Registry struct {
	mu      sync.RWMutex
	rooms   map[domain.RoomID]*liveRoom
	invites map[string]pkInvite

	// dupEvery > 0 re-delivers every Nth notification byte-identical,
	// exercising client-side de-duplication.
	dupEvery int
	sent     atomic.Int64
}

func NewRegistry(dupEvery int) *Registry {
	return &Registry{
		rooms:    make(map[domain.RoomID]*liveRoom),
		invites:  make(map[string]pkInvite),
		dupEvery: dupEvery,
	}
}

func (r *Registry) CreateRoom(name domain.RoomName, host *domain.User, seatCount int) (*liveRoom, error) {
	room, err := domain.NewRoom(domain.RoomID(uuid.NewString()), name)
	if err != nil {
		return nil, err
	}
	if err := room.SetHost(host); err != nil {
		return nil, err
	}
	room.Status = domain.RoomLiving

	lr := &liveRoom{
		room:     room,
		host:     host,
		seats:    domain.NewSeatList(seatCount),
		audience: make(map[domain.UserID]*domain.User),
		applies:  make(map[domain.UserID]int),
		invites:  make(map[domain.UserID]int),
		members:  make(map[domain.UserID]*session),
	}

	r.mu.Lock()
	r.rooms[room.ID] = lr
	r.mu.Unlock()
	log.Info().Str("module", "server.registry").Str("room", string(room.ID)).Str("host", string(host.ID)).Msg("room created")
	return lr, nil
}

func (r *Registry) Get(id domain.RoomID) (*liveRoom, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lr, ok := r.rooms[id]
	return lr, ok
}

func (r *Registry) Remove(id domain.RoomID) {
	r.mu.Lock()
	delete(r.rooms, id)
	r.mu.Unlock()
	log.Info().Str("module", "server.registry").Str("room", string(id)).Msg("room removed")
}

func (r *Registry) Summaries() []core.RoomSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.RoomSummary, 0, len(r.rooms))
	for _, lr := range r.rooms {
		lr.mu.Lock()
		out = append(out, core.RoomSummary{
			Room:     *lr.room,
			HostName: lr.host.Name,
			Seated:   lr.seats.Occupied(),
		})
		lr.mu.Unlock()
	}
	return out
}

// addInvite registers a pending battle invite. Unanswered invites never
// see a reply, so expired ones are swept here to keep the map bounded.
func (r *Registry) addInvite(inv pkInvite) string {
	id := uuid.NewString()
	now := time.Now()
	inv.expires = now.Add(pkInviteTTL)
	r.mu.Lock()
	for k, v := range r.invites {
		if now.After(v.expires) {
			delete(r.invites, k)
		}
	}
	r.invites[id] = inv
	r.mu.Unlock()
	return id
}

// takeInvite consumes an invite. At most one reply wins; a reply after
// the deadline finds nothing, same as a reply after a competing one.
func (r *Registry) takeInvite(id string) (pkInvite, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invites[id]
	if !ok {
		return pkInvite{}, false
	}
	delete(r.invites, id)
	if time.Now().After(inv.expires) {
		return pkInvite{}, false
	}
	return inv, true
}

// fanout stamps and delivers one notification to the given sessions.
// Callers hold lr.mu so stamping order equals mutation order.
func (r *Registry) fanout(roomID domain.RoomID, event, subject, origin string, payload any, to ...*session) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("module", "server.registry").Str("event", event).Msg("fanout marshal")
		return
	}
	env := core.Envelope{
		Kind:    core.KindNotify,
		Event:   event,
		Room:    roomID,
		Subject: subject,
		Seq:     ulid.Make().String(),
		Origin:  origin,
		Payload: raw,
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("module", "server.registry").Str("event", event).Msg("fanout marshal envelope")
		return
	}

	dup := r.dupEvery > 0 && r.sent.Add(1)%int64(r.dupEvery) == 0

	for _, s := range to {
		if s == nil {
			continue
		}
		if err := s.TrySend(data); err != nil {
			log.Warn().Err(err).Str("module", "server.registry").Str("event", event).Msg("fanout drop")
			continue
		}
		if dup {
			_ = s.TrySend(data)
		}
	}
}

// everyone returns all member sessions including the host's.
func (lr *liveRoom) everyone() []*session {
	out := make([]*session, 0, len(lr.members))
	for _, s := range lr.members {
		out = append(out, s)
	}
	return out
}

func (lr *liveRoom) hostSession() *session {
	return lr.members[lr.room.HostID]
}

func (lr *liveRoom) seatPayload(index int) core.SeatChangePayload {
	seat, err := lr.seats.At(index)
	if err != nil {
		return core.SeatChangePayload{SeatIndex: index}
	}
	p := core.SeatChangePayload{
		SeatIndex: seat.Index,
		Status:    seat.Status,
		Locked:    seat.Locked,
		Muted:     seat.Muted,
	}
	if seat.User != nil {
		u := *seat.User
		p.User = &u
	}
	return p
}
