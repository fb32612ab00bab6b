// Package rtc adapts pion/webrtc to the media engine facade. The demo
// backend signals room state only, so local capture is a paced blank
// stream: track setup, mute toggles, forwarding and the reporting loops
// mirror a production engine without camera or microphone devices.
package rtc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/okabe/liveroom/internal/core"
	"github.com/okabe/liveroom/internal/domain"
	"github.com/okabe/liveroom/internal/token"
)

var (
	ErrNotJoined      = errors.New("engine not in a room")
	ErrAlreadyJoined  = errors.New("engine already in a room")
	ErrAlreadyForward = errors.New("forward stream already running")
)

const (
	audioFrameInterval = 20 * time.Millisecond
	videoFrameInterval = 100 * time.Millisecond
	volumeInterval     = 300 * time.Millisecond
)

func DefaultConfiguration() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}

type videoProfile struct {
	width, height, fps int
}

// Engine is the process-wide media engine. The session coordinator is
// its only room-state mutator; observer callbacks fire on engine
// goroutines.
type Engine struct {
	cfg    webrtc.Configuration
	secret string

	mu       sync.Mutex
	observer core.EngineObserver

	pc      *webrtc.PeerConnection
	forward *webrtc.PeerConnection

	audioTrack *webrtc.TrackLocalStaticRTP
	videoTrack *webrtc.TrackLocalStaticRTP

	roomID domain.RoomID
	uid    domain.UserID

	audioEnabled bool
	videoEnabled bool
	audioMuted   bool
	videoMuted   bool
	frontCamera  bool
	profile      videoProfile

	remoteMuted map[domain.UserID]bool
	seenVideo   map[domain.UserID]bool
	remoteLevel map[domain.UserID]int

	cancel context.CancelFunc
}

// New builds an engine verifying room tokens against secret. An empty
// secret skips verification, which the tests rely on.
func New(cfg webrtc.Configuration, secret string) *Engine {
	return &Engine{
		cfg:         cfg,
		secret:      secret,
		frontCamera: true,
		remoteMuted: make(map[domain.UserID]bool),
		seenVideo:   make(map[domain.UserID]bool),
		remoteLevel: make(map[domain.UserID]int),
	}
}

func (e *Engine) SetObserver(obs core.EngineObserver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer = obs
}

func (e *Engine) JoinRoom(ctx context.Context, raw string, roomID domain.RoomID, uid domain.UserID, asHost bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pc != nil {
		return ErrAlreadyJoined
	}
	if e.secret != "" {
		if _, err := token.Verify(e.secret, raw, roomID, uid); err != nil {
			return err
		}
	}

	pc, err := webrtc.NewPeerConnection(e.cfg)
	if err != nil {
		return err
	}

	audio, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", string(uid))
	if err != nil {
		_ = pc.Close()
		return err
	}
	video, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", string(uid))
	if err != nil {
		_ = pc.Close()
		return err
	}
	if _, err := pc.AddTrack(audio); err != nil {
		_ = pc.Close()
		return err
	}
	if _, err := pc.AddTrack(video); err != nil {
		_ = pc.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc.engine").Str("uid", string(uid)).Str("ice_state", s.String()).Msg("ICE state")
		e.reportQuality(uid, qualityFromICE(s))
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		go e.readRemote(runCtx, track)
	})

	e.pc = pc
	e.audioTrack = audio
	e.videoTrack = video
	e.roomID = roomID
	e.uid = uid
	e.audioEnabled = asHost
	e.videoEnabled = asHost
	e.audioMuted = false
	e.videoMuted = false
	e.cancel = cancel

	go e.audioLoop(runCtx, audio)
	go e.videoLoop(runCtx, video)
	go e.volumeLoop(runCtx)

	log.Info().Str("module", "rtc.engine").Str("room", string(roomID)).Str("uid", string(uid)).Bool("host", asHost).Msg("engine joined")
	return nil
}

func (e *Engine) LeaveRoom() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pc == nil {
		return nil
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if e.forward != nil {
		_ = e.forward.Close()
		e.forward = nil
	}
	err := e.pc.Close()
	e.pc = nil
	e.audioTrack = nil
	e.videoTrack = nil
	e.roomID = ""
	e.uid = ""
	e.remoteMuted = make(map[domain.UserID]bool)
	e.seenVideo = make(map[domain.UserID]bool)
	e.remoteLevel = make(map[domain.UserID]int)
	log.Info().Str("module", "rtc.engine").Msg("engine left")
	return err
}

func (e *Engine) EnableLocalAudio(enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pc == nil {
		return ErrNotJoined
	}
	e.audioEnabled = enabled
	return nil
}

func (e *Engine) EnableLocalVideo(enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pc == nil {
		return ErrNotJoined
	}
	e.videoEnabled = enabled
	return nil
}

func (e *Engine) MuteLocalAudio(muted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pc == nil {
		return ErrNotJoined
	}
	e.audioMuted = muted
	return nil
}

func (e *Engine) MuteLocalVideo(muted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pc == nil {
		return ErrNotJoined
	}
	e.videoMuted = muted
	return nil
}

func (e *Engine) SwitchCamera() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pc == nil {
		return ErrNotJoined
	}
	e.frontCamera = !e.frontCamera
	return nil
}

func (e *Engine) UpdateVideoConfig(asHost bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if asHost {
		e.profile = videoProfile{width: 1280, height: 720, fps: 30}
	} else {
		e.profile = videoProfile{width: 640, height: 360, fps: 15}
	}
	return nil
}

// StartForwardStream cross-publishes our tracks toward a PK partner's
// room over a second peer connection.
func (e *Engine) StartForwardStream(roomID domain.RoomID, raw string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pc == nil {
		return ErrNotJoined
	}
	if e.forward != nil {
		return ErrAlreadyForward
	}
	if e.secret != "" {
		claims, err := token.Verify(e.secret, raw, roomID, e.uid)
		if err != nil {
			return err
		}
		if !claims.Forward {
			return token.ErrTokenMismatch
		}
	}

	fwd, err := webrtc.NewPeerConnection(e.cfg)
	if err != nil {
		return err
	}
	if _, err := fwd.AddTrack(e.audioTrack); err != nil {
		_ = fwd.Close()
		return err
	}
	if _, err := fwd.AddTrack(e.videoTrack); err != nil {
		_ = fwd.Close()
		return err
	}
	e.forward = fwd
	log.Info().Str("module", "rtc.engine").Str("target_room", string(roomID)).Msg("forward stream started")
	return nil
}

func (e *Engine) StopForwardStream() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.forward == nil {
		return nil
	}
	err := e.forward.Close()
	e.forward = nil
	log.Info().Str("module", "rtc.engine").Msg("forward stream stopped")
	return err
}

func (e *Engine) MuteRemoteAnchor(uid domain.UserID, muted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pc == nil {
		return ErrNotJoined
	}
	e.remoteMuted[uid] = muted
	if muted {
		e.remoteLevel[uid] = 0
	}
	return nil
}

// --- loops ---

// audioLoop paces blank opus frames while audio is enabled and unmuted,
// which keeps RTP timestamps and sequence numbers live.
func (e *Engine) audioLoop(ctx context.Context, track *webrtc.TrackLocalStaticRTP) {
	ticker := time.NewTicker(audioFrameInterval)
	defer ticker.Stop()
	var seq uint16
	var ts uint32
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ts += 960 // 48kHz * 20ms
			e.mu.Lock()
			send := e.audioEnabled && !e.audioMuted
			e.mu.Unlock()
			if !send {
				continue
			}
			seq++
			pkt := &rtp.Packet{Header: rtp.Header{Version: 2, SequenceNumber: seq, Timestamp: ts}, Payload: []byte{0xf8, 0xff, 0xfe}}
			if err := track.WriteRTP(pkt); err != nil {
				return
			}
		}
	}
}

func (e *Engine) videoLoop(ctx context.Context, track *webrtc.TrackLocalStaticRTP) {
	ticker := time.NewTicker(videoFrameInterval)
	defer ticker.Stop()
	var seq uint16
	var ts uint32
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ts += 9000 // 90kHz clock
			e.mu.Lock()
			send := e.videoEnabled && !e.videoMuted
			e.mu.Unlock()
			if !send {
				continue
			}
			seq++
			pkt := &rtp.Packet{Header: rtp.Header{Version: 2, SequenceNumber: seq, Timestamp: ts, Marker: true}, Payload: []byte{0x10, 0x00}}
			if err := track.WriteRTP(pkt); err != nil {
				return
			}
		}
	}
}

// volumeLoop reports levels for everyone we know about. The local level
// is derived from mute state; remote levels come from packet activity.
func (e *Engine) volumeLoop(ctx context.Context) {
	ticker := time.NewTicker(volumeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			obs := e.observer
			levels := make(map[domain.UserID]int, len(e.remoteLevel)+1)
			if e.uid != "" {
				if e.audioEnabled && !e.audioMuted {
					levels[e.uid] = 180
				} else {
					levels[e.uid] = 0
				}
			}
			for uid, lvl := range e.remoteLevel {
				if e.remoteMuted[uid] {
					lvl = 0
				}
				levels[uid] = lvl
				e.remoteLevel[uid] = lvl / 2 // decay between reads
			}
			e.mu.Unlock()
			if obs != nil {
				obs.OnVolumesReported(levels)
			}
		}
	}
}

func (e *Engine) readRemote(ctx context.Context, track *webrtc.TrackRemote) {
	uid := domain.UserID(track.StreamID())
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		e.mu.Lock()
		if track.Kind() == webrtc.RTPCodecTypeVideo && !e.seenVideo[uid] {
			e.seenVideo[uid] = true
			if obs := e.observer; obs != nil {
				e.mu.Unlock()
				obs.OnFirstRemoteVideoFrame(uid)
				e.mu.Lock()
			}
		}
		if track.Kind() == webrtc.RTPCodecTypeAudio && !e.remoteMuted[uid] {
			e.remoteLevel[uid] = 200
		}
		e.mu.Unlock()
	}
}

func (e *Engine) reportQuality(uid domain.UserID, q core.NetworkQuality) {
	e.mu.Lock()
	obs := e.observer
	e.mu.Unlock()
	if obs != nil {
		obs.OnNetworkQuality(uid, q)
	}
}

func qualityFromICE(s webrtc.ICEConnectionState) core.NetworkQuality {
	switch s {
	case webrtc.ICEConnectionStateCompleted:
		return core.QualityExcellent
	case webrtc.ICEConnectionStateConnected:
		return core.QualityGood
	case webrtc.ICEConnectionStateChecking, webrtc.ICEConnectionStateNew:
		return core.QualityPoor
	case webrtc.ICEConnectionStateDisconnected:
		return core.QualityBad
	case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed:
		return core.QualityDown
	default:
		return core.QualityUnknown
	}
}
