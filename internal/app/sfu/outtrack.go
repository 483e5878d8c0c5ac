package sfu

import (
	"sync/atomic"

	"github.com/dkeye/voicestream/internal/domain"
	"github.com/pion/rtp"
)

// rtpWriter is the local side of a receiver's track. *webrtc.TrackLocalStaticRTP in production.
type rtpWriter interface {
	WriteRTP(*rtp.Packet) error
}

// receiverTrack is one receiver's copy of the stream. Once detached it never forwards again.
type receiverTrack struct {
	dst      domain.ConnectionID
	out      rtpWriter
	detached atomic.Bool
	packets  atomic.Uint64
}

func newReceiverTrack(dst domain.ConnectionID, out rtpWriter) *receiverTrack {
	return &receiverTrack{dst: dst, out: out}
}

func (t *receiverTrack) write(pkt *rtp.Packet) error {
	if err := t.out.WriteRTP(pkt); err != nil {
		return err
	}
	t.packets.Add(1)
	return nil
}

func (t *receiverTrack) detach()          { t.detached.Store(true) }
func (t *receiverTrack) isDetached() bool { return t.detached.Load() }
