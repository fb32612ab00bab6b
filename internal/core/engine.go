package core

import (
	"context"

	"github.com/okabe/liveroom/internal/domain"
)

//go:generate mockgen -source=engine.go -destination=mocks/engine_mock.go -package=mocks

type NetworkQuality int

const (
	QualityUnknown NetworkQuality = iota
	QualityExcellent
	QualityGood
	QualityPoor
	QualityBad
	QualityDown
)

// EngineObserver receives transient engine readings. Callbacks fire on
// engine goroutines; the coordinator marshals them onto its own loop.
type EngineObserver interface {
	OnNetworkQuality(uid domain.UserID, q NetworkQuality)
	OnVolumesReported(levels map[domain.UserID]int)
	OnFirstRemoteVideoFrame(uid domain.UserID)
}

// Engine is the media transport facade. One instance per process; the
// coordinator is its only room-state mutator.
type Engine interface {
	JoinRoom(ctx context.Context, token string, roomID domain.RoomID, uid domain.UserID, asHost bool) error
	LeaveRoom() error

	EnableLocalAudio(enabled bool) error
	EnableLocalVideo(enabled bool) error
	MuteLocalAudio(muted bool) error
	MuteLocalVideo(muted bool) error
	SwitchCamera() error
	UpdateVideoConfig(asHost bool) error

	// StartForwardStream cross-publishes to a PK partner's room. The token
	// comes from the partner's accept reply.
	StartForwardStream(roomID domain.RoomID, token string) error
	StopForwardStream() error

	// MuteRemoteAnchor silences a PK partner's forwarded audio locally.
	MuteRemoteAnchor(uid domain.UserID, muted bool) error

	SetObserver(obs EngineObserver)
}
