package core

import "github.com/okabe/liveroom/internal/domain"

// SessionEventType enumerates everything the coordinator tells the
// presentation layer. Presentation holds no business state; it re-renders
// from the snapshots carried here.
type SessionEventType int

const (
	EventRoomEntered SessionEventType = iota
	EventRoomEnded
	EventSeatsUpdated
	EventAudienceUpdated
	EventApplyReceived
	EventApplyCancelled
	EventSeatInviteReceived
	EventPKStateChanged
	EventVolumesUpdated
	EventNetworkUpdated
	EventMessageReceived
	EventKicked
	EventModeChanged
)

func (t SessionEventType) String() string {
	switch t {
	case EventRoomEntered:
		return "room_entered"
	case EventRoomEnded:
		return "room_ended"
	case EventSeatsUpdated:
		return "seats_updated"
	case EventAudienceUpdated:
		return "audience_updated"
	case EventApplyReceived:
		return "apply_received"
	case EventApplyCancelled:
		return "apply_cancelled"
	case EventSeatInviteReceived:
		return "seat_invite_received"
	case EventPKStateChanged:
		return "pk_state_changed"
	case EventVolumesUpdated:
		return "volumes_updated"
	case EventNetworkUpdated:
		return "network_updated"
	case EventMessageReceived:
		return "message_received"
	case EventKicked:
		return "kicked"
	case EventModeChanged:
		return "mode_changed"
	default:
		return "unknown"
	}
}

type SessionEvent struct {
	Type SessionEventType

	Room  *domain.Room
	Seats domain.SeatList

	User      *domain.User
	SeatIndex int

	PKState domain.PKState
	PK      *domain.PKPairing

	Volumes map[domain.UserID]int
	Quality map[domain.UserID]NetworkQuality

	Text string
}

// Sink consumes session events on the coordinator's loop goroutine.
// Implementations must not call back into the coordinator synchronously.
type Sink interface {
	Consume(e SessionEvent)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(e SessionEvent)

func (f SinkFunc) Consume(e SessionEvent) { f(e) }
