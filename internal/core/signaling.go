package core

import (
	"context"
	"encoding/json"

	"github.com/okabe/liveroom/internal/domain"
)

// Request names. Every mutating request carries a generated request id;
// the backend stamps that id into the notifications it causes so the
// issuer can drop its own echo.
const (
	ReqCreateRoom   = "createRoom"
	ReqJoinRoom     = "joinRoom"
	ReqLeaveRoom    = "leaveRoom"
	ReqDestroyRoom  = "destroyRoom"
	ReqListRooms    = "listRooms"
	ReqListAudience = "listAudience"

	ReqApplySeat   = "applySeat"
	ReqCancelApply = "cancelApply"
	ReqAgreeApply  = "agreeApply"
	ReqRejectApply = "rejectApply"
	ReqInviteSeat  = "inviteSeat"
	ReqManageSeat  = "manageSeat"
	ReqLeaveSeat   = "leaveSeat"

	ReqClearUser   = "clearUser"
	ReqMediaStatus = "mediaStatus"
	ReqRoomMode    = "roomMode"
	ReqSendText    = "sendText"

	ReqPKInvite = "pkInvite"
	ReqPKReply  = "pkReply"
	ReqPKStop   = "pkStop"
)

// Notification event names.
const (
	EvtAudienceJoin      = "onAudienceJoin"
	EvtAudienceLeave     = "onAudienceLeave"
	EvtSeatStatusChange  = "onSeatStatusChange"
	EvtMediaStatusChange = "onMediaStatusChange"
	EvtApplyReceived     = "onApplyReceived"
	EvtApplyCancelled    = "onApplyCancelled"
	EvtSeatInvite        = "onSeatInvite"
	EvtAnchorInvite      = "onAnchorInvite"
	EvtAnchorReply       = "onAnchorReply"
	EvtAnchorPKEnd       = "onAnchorPKEnd"
	EvtClearUser         = "onClearUser"
	EvtRoomDestroy       = "onRoomDestroy"
	EvtRoomModeChange    = "onRoomModeChange"
	EvtRecvRoomText      = "onRecvRoomText"
)

// Ack is the backend's answer to one request. Code zero is success. ID
// echoes the request id the client generated for the round trip.
type Ack struct {
	ID      string          `json:"id"`
	Request string          `json:"request"`
	Code    int             `json:"code"`
	Reason  string          `json:"reason,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Notification is one out-of-band event. Seq is a ULID stamped by the
// backend in per-room fanout order; (Event, Subject, Seq) is the
// de-duplication key. Origin is the request id that caused the event,
// empty when spontaneous.
type Notification struct {
	Event   string          `json:"event"`
	Room    domain.RoomID   `json:"room"`
	Subject string          `json:"subject"`
	Seq     string          `json:"seq"`
	Origin  string          `json:"origin,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Envelope is the single frame type on the signaling socket.
type Envelope struct {
	Kind  string `json:"kind"` // "request" | "ack" | "notify"
	ID    string `json:"id,omitempty"`
	Event string `json:"event,omitempty"`

	Code    int             `json:"code,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Room    domain.RoomID   `json:"room,omitempty"`
	Subject string          `json:"subject,omitempty"`
	Seq     string          `json:"seq,omitempty"`
	Origin  string          `json:"origin,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	KindRequest = "request"
	KindAck     = "ack"
	KindNotify  = "notify"
)

// Signaling is the persistent backend channel. Request suspends until the
// matching ack or ctx cancellation; Notifications delivers events for the
// joined room in receipt order. At-most-once delivery is not guaranteed,
// consumers must tolerate duplicates.
type Signaling interface {
	Request(ctx context.Context, event string, payload any) (Ack, error)
	Notifications() <-chan Notification
	Close() error
}

// --- request payloads ---

type CreateRoomReq struct {
	Name     domain.RoomName `json:"name"`
	HostName string          `json:"host_name"`
}

type CreateRoomResp struct {
	Room  domain.Room     `json:"room"`
	Host  domain.User     `json:"host"`
	Seats domain.SeatList `json:"seats"`
	Token string          `json:"token"`
}

type JoinRoomReq struct {
	RoomID      domain.RoomID `json:"room_id"`
	DisplayName string        `json:"display_name"`
}

// JoinRoomResp seeds the full room snapshot. Deltas missed during the
// join race window are covered by the snapshot, not replayed.
type JoinRoomResp struct {
	Room      domain.Room     `json:"room"`
	Host      domain.User     `json:"host"`
	Self      domain.User     `json:"self"`
	Seats     domain.SeatList `json:"seats"`
	Audience  []domain.User   `json:"audience"`
	PKAnchors []PKAnchor      `json:"pk_anchors,omitempty"`
	Token     string          `json:"token"`
}

// PKAnchor describes a battle partner already paired when we joined.
type PKAnchor struct {
	Room domain.RoomID `json:"room"`
	User domain.User   `json:"user"`
}

type RoomSummary struct {
	Room     domain.Room `json:"room"`
	HostName string      `json:"host_name"`
	Seated   int         `json:"seated"`
}

type ListRoomsResp struct {
	Rooms []RoomSummary `json:"rooms"`
}

type ListAudienceResp struct {
	Users []domain.User `json:"users"`
}

type SeatReq struct {
	SeatIndex int           `json:"seat_index"`
	UserID    domain.UserID `json:"user_id,omitempty"`
}

type SeatAction string

const (
	SeatKick   SeatAction = "kick"
	SeatLock   SeatAction = "lock"
	SeatUnlock SeatAction = "unlock"
	SeatMute   SeatAction = "mute"
	SeatUnmute SeatAction = "unmute"
)

type ManageSeatReq struct {
	SeatIndex int        `json:"seat_index"`
	Action    SeatAction `json:"action"`
}

type ClearUserReq struct {
	UserID domain.UserID `json:"user_id"`
}

type MediaStatusReq struct {
	Mic    bool `json:"mic"`
	Camera bool `json:"camera"`
}

type RoomModeReq struct {
	Mode domain.ChatMode `json:"mode"`
}

type SendTextReq struct {
	Text string `json:"text"`
}

type PKInviteReq struct {
	TargetRoom domain.RoomID `json:"target_room"`
	TargetUser domain.UserID `json:"target_user"`
	SeatIndex  int           `json:"seat_index"`
}

type PKInviteResp struct {
	InviteID string `json:"invite_id"`
}

type PKReplyReq struct {
	InviteID string `json:"invite_id"`
	Accept   bool   `json:"accept"`
}

// PKReplyResp carries the forward tokens when the reply is an accept.
type PKReplyResp struct {
	Token      string        `json:"token,omitempty"`
	TargetRoom domain.RoomID `json:"target_room,omitempty"`
}

// --- notification payloads ---

type AudiencePayload struct {
	User  domain.User `json:"user"`
	Count int         `json:"count"`
}

type SeatChangePayload struct {
	SeatIndex int          `json:"seat_index"`
	Status    domain.SeatStatus `json:"status"`
	Locked    bool         `json:"locked"`
	Muted     bool         `json:"muted"`
	User      *domain.User `json:"user,omitempty"`
}

type MediaStatusPayload struct {
	UserID domain.UserID `json:"user_id"`
	Mic    bool          `json:"mic"`
	Camera bool          `json:"camera"`
}

type ApplyPayload struct {
	User      domain.User `json:"user"`
	SeatIndex int         `json:"seat_index"`
}

type SeatInvitePayload struct {
	SeatIndex int `json:"seat_index"`
}

type AnchorInvitePayload struct {
	InviteID  string        `json:"invite_id"`
	FromRoom  domain.RoomID `json:"from_room"`
	FromUser  domain.User   `json:"from_user"`
	SeatIndex int           `json:"seat_index"`
}

type AnchorReplyPayload struct {
	InviteID   string             `json:"invite_id"`
	Code       domain.PKReplyCode `json:"code"`
	Token      string             `json:"token,omitempty"`
	TargetRoom domain.RoomID      `json:"target_room,omitempty"`
	User       domain.User        `json:"user"`
}

type PKEndPayload struct {
	Room      domain.RoomID `json:"room"`
	UserID    domain.UserID `json:"user_id"`
	ActiveEnd bool          `json:"active_end"`
}

type ClearUserPayload struct {
	UserID domain.UserID `json:"user_id"`
}

type RoomModePayload struct {
	Mode domain.ChatMode `json:"mode"`
}

type RoomTextPayload struct {
	From domain.User `json:"from"`
	Text string      `json:"text"`
}
