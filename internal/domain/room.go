package domain

import "errors"

var (
	ErrHostAlreadySet = errors.New("room already has a host")
	ErrRoomNameEmpty  = errors.New("room name empty")
)

type (
	RoomID   string
	RoomName string
)

const MaxRoomNameLen = 36

type RoomStatus int

const (
	RoomCreated RoomStatus = iota
	RoomLiving
	RoomEnded
)

// ChatMode selects which seats and streams are on display. Toggling it
// never leaves the live session.
type ChatMode int

const (
	ModeMakeCoHost ChatMode = iota
	ModeChatRoom
)

// Room is the authoritative record of one live room. Exactly one user
// holds RoleHost for the room's whole lifetime.
type Room struct {
	ID     RoomID   `json:"id"`
	Name   RoomName `json:"name"`
	HostID UserID   `json:"host_id"`

	Status RoomStatus `json:"status"`
	Mode   ChatMode   `json:"mode"`

	// AllowApply gates audience-initiated seat applications; when off the
	// host must invite instead.
	AllowApply bool `json:"allow_apply"`

	AudienceCount int               `json:"audience_count"`
	Ext           map[string]string `json:"ext,omitempty"`
}

func NewRoom(id RoomID, name RoomName) (*Room, error) {
	if len(name) == 0 {
		return nil, ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLen {
		name = name[:MaxRoomNameLen]
	}
	return &Room{ID: id, Name: name, Status: RoomCreated, AllowApply: true}, nil
}

// SetHost records the single host. A second assignment is refused.
func (r *Room) SetHost(u *User) error {
	if r.HostID != "" && r.HostID != u.ID {
		return ErrHostAlreadySet
	}
	r.HostID = u.ID
	u.Role = RoleHost
	return nil
}

func (r *Room) IsHost(id UserID) bool {
	return r.HostID != "" && r.HostID == id
}
