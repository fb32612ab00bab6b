// Package domain contains entities without logic beyond their own invariants.
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const (
	MaxDisplayNameLen = 36

	// SpeakingThreshold is the reported volume above which a user counts as speaking.
	SpeakingThreshold = 25
)

var (
	ErrNameEmpty   = errors.New("display name empty")
	ErrNameTooLong = errors.New("display name too long")
)

type UserID string

type Role int

const (
	RoleNone Role = iota
	RoleHost
	RoleAudience
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleAudience:
		return "audience"
	default:
		return "none"
	}
}

type UserStatus int

const (
	StatusDefault UserStatus = iota
	StatusActive             // on a seat, publishing
	StatusApplied            // asked the host for a seat
	StatusInvited            // host offered a seat, no reply yet
)

// User is the per-room view of a participant. Volume and Speaking are
// transient engine readings, everything else moves through signaling.
type User struct {
	ID     UserID `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`

	Role   Role       `json:"role"`
	Status UserStatus `json:"status"`

	Mic    bool `json:"mic"`
	Camera bool `json:"camera"`

	Volume   int  `json:"-"`
	Speaking bool `json:"-"`

	// PartnerMuted mirrors whether we muted the PK partner's forwarded audio.
	PartnerMuted bool `json:"-"`

	// PKToken grants access to a PK partner's forwarded stream.
	PKToken string `json:"pk_token,omitempty"`
}

// NewUser avoids raw literals in adapters and keeps construction obvious.
func NewUser(name string) (*User, error) {
	if len(name) == 0 {
		return nil, ErrNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return nil, ErrNameTooLong
	}
	return &User{ID: UserID(uuid.NewString()), Name: name}, nil
}

// SetVolume updates the transient level and derives Speaking.
func (u *User) SetVolume(v int) {
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	u.Volume = v
	u.Speaking = v > SpeakingThreshold
}
