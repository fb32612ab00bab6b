package domain

import "time"

// PKState is the battle sub-state of a live session. It never outlives
// the session: every path out of Paired releases the forwarded stream.
type PKState int

const (
	PKNone PKState = iota
	PKInviting
	PKInvited
	PKPaired
	PKEnding
)

func (s PKState) String() string {
	switch s {
	case PKInviting:
		return "inviting"
	case PKInvited:
		return "invited"
	case PKPaired:
		return "paired"
	case PKEnding:
		return "ending"
	default:
		return "none"
	}
}

type PKReplyCode int

const (
	PKAccept PKReplyCode = iota
	PKReject
	PKTimeout
)

// PKPairing tracks one cross-room battle from first invite to teardown.
// It exists in exactly two coordinators at once, one per anchor.
type PKPairing struct {
	InviteID   string
	State      PKState
	RemoteRoom RoomID
	RemoteUser User
	SeatIndex  int

	// Token unlocks the partner's forwarded stream once both sides accepted.
	Token string

	// ActiveEnd distinguishes our own stop request from a remote-initiated end.
	ActiveEnd bool

	Deadline time.Time
}

// Expired reports whether an unanswered invite has passed its window.
func (p *PKPairing) Expired(now time.Time) bool {
	if p.State != PKInviting && p.State != PKInvited {
		return false
	}
	return !p.Deadline.IsZero() && now.After(p.Deadline)
}
