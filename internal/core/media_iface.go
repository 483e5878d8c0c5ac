package core

import (
	"context"

	"github.com/dkeye/voicestream/internal/domain"
	"github.com/pion/webrtc/v4"
)

// MediaConnection is one connection's handle on the external media engine.
type MediaConnection interface {
	// SetRemoteDescription applies an offer or answer received from the client.
	SetRemoteDescription(webrtc.SessionDescription) error
	// HasRemoteDescription reports whether a remote SDP has been applied.
	HasRemoteDescription() bool
	// CreateAnswer creates and sets the local answer and returns it once ICE gathering settles.
	CreateAnswer(ctx context.Context) (*webrtc.SessionDescription, error)
	// CreateOffer creates and sets a local offer and returns it once ICE gathering settles.
	CreateOffer(ctx context.Context) (*webrtc.SessionDescription, error)
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// AddLocalTrack attaches a local static RTP track to the underlying PeerConnection.
	AddLocalTrack(track *webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error)
	// Close should stop all underlying media resources.
	Close()
}

// MediaEngine creates media connections.
type MediaEngine interface {
	NewConnection(ctx context.Context, cid domain.ConnectionID) (MediaConnection, error)
}

// MediaHandle is the opaque inbound track of a stream.
type MediaHandle interface {
	// Subscribe adds the inbound track to dst's outbound media on mc.
	Subscribe(dst domain.ConnectionID, mc MediaConnection) error
	// Unsubscribe stops forwarding to dst. No-op if dst is not subscribed.
	Unsubscribe(dst domain.ConnectionID)
	// Stop ends forwarding to everyone.
	Stop()
}
