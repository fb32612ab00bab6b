package app

import (
	"context"
	"sort"

	"github.com/samber/lo"

	"github.com/okabe/liveroom/internal/core"
	"github.com/okabe/liveroom/internal/domain"
)

// RoomSnapshot is the read-only projection handed to presentation. Every
// field is a copy; mutating a snapshot never touches coordinator state.
type RoomSnapshot struct {
	Phase     Phase
	Room      *domain.Room
	Self      *domain.User
	Host      *domain.User
	Seats     domain.SeatList
	Audience  []domain.User
	PK        *domain.PKPairing
	PKAnchors []core.PKAnchor
}

func (c *Coordinator) snapshotLocked() RoomSnapshot {
	snap := RoomSnapshot{Phase: c.phase}
	if c.room != nil {
		room := *c.room
		snap.Room = &room
	}
	if c.self != nil {
		self := *c.self
		snap.Self = &self
	}
	if c.host != nil {
		host := *c.host
		snap.Host = &host
	}
	if c.seats != nil {
		snap.Seats = c.seats.Clone()
	}
	snap.Audience = lo.Map(lo.Values(c.audience), func(u *domain.User, _ int) domain.User {
		return *u
	})
	sort.Slice(snap.Audience, func(i, j int) bool {
		return snap.Audience[i].Name < snap.Audience[j].Name
	})
	if c.pk != nil {
		pk := *c.pk
		snap.PK = &pk
	}
	snap.PKAnchors = append([]core.PKAnchor(nil), c.pkAnchors...)
	return snap
}

// Snapshot returns the current projection. Safe from any goroutine.
func (c *Coordinator) Snapshot(ctx context.Context) (RoomSnapshot, error) {
	var snap RoomSnapshot
	err := c.do(ctx, func() {
		snap = c.snapshotLocked()
	})
	return snap, err
}
