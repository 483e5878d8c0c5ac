// Package rtc implements the media engine on pion/webrtc.
package rtc

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/voicestream/internal/core"
	"github.com/dkeye/voicestream/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// DefaultICEServers are used when none are configured.
var DefaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
	{URLs: []string{"stun:stun1.l.google.com:19302"}},
}

// TrackSink receives inbound tracks. ctx is cancelled when the peer connection goes away.
type TrackSink interface {
	TrackArrived(ctx context.Context, cid domain.ConnectionID, track *webrtc.TrackRemote)
}

type EngineConfig struct {
	ICEServers    []webrtc.ICEServer
	GatherTimeout time.Duration
}

type Engine struct {
	api           *webrtc.API
	config        webrtc.Configuration
	gatherTimeout time.Duration

	// Tracks must be set before the first connection is created.
	Tracks TrackSink
}

var _ core.MediaEngine = (*Engine)(nil)

func NewEngine(cfg EngineConfig) (*Engine, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	se := webrtc.SettingEngine{LoggerFactory: NewLoggerFactory()}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	)
	return &Engine{
		api:           api,
		config:        Configuration(cfg.ICEServers),
		gatherTimeout: cfg.GatherTimeout,
	}, nil
}

// Configuration builds the peer connection config, falling back to DefaultICEServers.
func Configuration(servers []webrtc.ICEServer) webrtc.Configuration {
	if len(servers) == 0 {
		servers = DefaultICEServers
	}
	return webrtc.Configuration{ICEServers: servers}
}

func (e *Engine) NewConnection(ctx context.Context, cid domain.ConnectionID) (core.MediaConnection, error) {
	pc, err := e.api.NewPeerConnection(e.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	c := &Connection{
		pc:            pc,
		cid:           cid,
		cancel:        cancel,
		gatherTimeout: e.gatherTimeout,
	}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("cid", string(cid)).Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateFailed || s == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("cid", string(cid)).Str("peer_connection_state", s.String()).Msg("Peer state")
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("cid", string(cid)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("codec", track.Codec().MimeType).
			Msg("OnTrack received")
		if e.Tracks != nil {
			e.Tracks.TrackArrived(ctx, cid, track)
		}
	})
	return c, nil
}
