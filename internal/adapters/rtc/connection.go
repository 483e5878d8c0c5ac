package rtc

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/voicestream/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Connection wraps one PeerConnection. Local descriptions are returned after ICE gathering,
// so no candidates are trickled to the client.
type Connection struct {
	pc            *webrtc.PeerConnection
	cid           domain.ConnectionID
	cancel        context.CancelFunc
	gatherTimeout time.Duration

	closeOnce sync.Once
}

func (c *Connection) SetRemoteDescription(sd webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(sd)
}

func (c *Connection) HasRemoteDescription() bool {
	return c.pc.RemoteDescription() != nil
}

func (c *Connection) CreateAnswer(ctx context.Context) (*webrtc.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	return c.setLocal(ctx, answer)
}

func (c *Connection) CreateOffer(ctx context.Context) (*webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	return c.setLocal(ctx, offer)
}

func (c *Connection) setLocal(ctx context.Context, sd webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(sd); err != nil {
		return nil, err
	}
	if err := c.waitGather(ctx, gatherComplete); err != nil {
		return nil, err
	}
	return c.pc.LocalDescription(), nil
}

// waitGather blocks until gathering completes. On timeout the candidates gathered so far are used.
func (c *Connection) waitGather(ctx context.Context, done <-chan struct{}) error {
	var timeout <-chan time.Time
	if c.gatherTimeout > 0 {
		t := time.NewTimer(c.gatherTimeout)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		log.Warn().Str("module", "webrtc").Str("cid", string(c.cid)).Dur("timeout", c.gatherTimeout).Msg("ICE gathering timed out")
		return nil
	}
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

// AddLocalTrack attaches a local static RTP track to the PeerConnection.
func (c *Connection) AddLocalTrack(track *webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error) {
	return c.pc.AddTrack(track)
}

func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if err := c.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "webrtc").Str("cid", string(c.cid)).Msg("close error")
			return
		}
		log.Info().Str("module", "webrtc").Str("cid", string(c.cid)).Msg("closed")
	})
}
