package sfu

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/dkeye/voicestream/internal/core"
	"github.com/dkeye/voicestream/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

var ErrRelayStopped = errors.New("sfu: relay stopped")

// Relay forwards one sender's inbound track to every subscribed receiver.
// It is the media handle of a stream.
type Relay struct {
	Src    *webrtc.TrackRemote
	stream domain.StreamID

	mu        sync.RWMutex
	receivers map[domain.ConnectionID]*receiverTrack
	stopped   bool

	cancel  context.CancelFunc
	onEnded func()
	release func()
	logger  zerolog.Logger
}

var _ core.MediaHandle = (*Relay)(nil)

func NewRelay(stream domain.StreamID, src *webrtc.TrackRemote, cancel context.CancelFunc, logger zerolog.Logger) *Relay {
	return &Relay{
		Src:       src,
		stream:    stream,
		receivers: make(map[domain.ConnectionID]*receiverTrack),
		cancel:    cancel,
		logger:    logger,
	}
}

// loop reads RTP packets from the source track until it ends or ctx is done.
func (r *Relay) loop(ctx context.Context) {
	defer r.finish()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("relay ctx done")
			return
		default:
		}
		pkt, _, err := r.Src.ReadRTP()
		if err != nil {
			r.logger.Info().Err(err).Msg("relay source ended")
			return
		}
		r.forward(pkt)
	}
}

// finish detaches every receiver. Unless Stop was called the source ended on its own, so onEnded fires.
func (r *Relay) finish() {
	r.mu.Lock()
	stopped := r.stopped
	for _, rt := range r.receivers {
		rt.detach()
	}
	r.mu.Unlock()
	if !stopped && r.onEnded != nil {
		r.onEnded()
	}
}

func (r *Relay) forward(pkt *rtp.Packet) {
	r.mu.RLock()
	targets := slices.Collect(maps.Values(r.receivers))
	r.mu.RUnlock()

	var failed []*receiverTrack
	for _, rt := range targets {
		if rt.isDetached() {
			failed = append(failed, rt)
			continue
		}
		if err := rt.write(pkt); err != nil {
			r.logger.Error().
				Err(err).
				Str("dst_cid", string(rt.dst)).
				Msg("relay write RTP error, detaching receiver")
			rt.detach()
			failed = append(failed, rt)
		}
	}
	if len(failed) > 0 {
		r.prune(failed)
	}
}

// prune removes detached receivers unless they were replaced meanwhile.
func (r *Relay) prune(detached []*receiverTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rt := range detached {
		if cur, ok := r.receivers[rt.dst]; ok && cur == rt {
			delete(r.receivers, rt.dst)
		}
	}
}

func (r *Relay) attach(dst domain.ConnectionID, out rtpWriter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrRelayStopped
	}
	if old, ok := r.receivers[dst]; ok {
		old.detach()
	}
	r.receivers[dst] = newReceiverTrack(dst, out)
	return nil
}

// Subscribe adds a local copy of the source track to mc and starts forwarding to dst.
func (r *Relay) Subscribe(dst domain.ConnectionID, mc core.MediaConnection) error {
	codec := r.Src.Codec().RTPCodecCapability
	local, err := webrtc.NewTrackLocalStaticRTP(codec, "audio", string(r.stream))
	if err != nil {
		return fmt.Errorf("local track: %w", err)
	}
	sender, err := mc.AddLocalTrack(local)
	if err != nil {
		return fmt.Errorf("add track: %w", err)
	}
	// Drain RTCP so interceptors keep working.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	if err := r.attach(dst, local); err != nil {
		return err
	}
	r.logger.Info().Str("dst_cid", string(dst)).Str("codec", codec.MimeType).Msg("receiver subscribed")
	return nil
}

func (r *Relay) Unsubscribe(dst domain.ConnectionID) {
	r.mu.Lock()
	rt, ok := r.receivers[dst]
	if ok {
		rt.detach()
		delete(r.receivers, dst)
	}
	r.mu.Unlock()
	if ok {
		r.logger.Info().Str("dst_cid", string(dst)).Uint64("packets", rt.packets.Load()).Msg("receiver unsubscribed")
	}
}

// Stop ends forwarding and releases the relay from its manager. It does not fire onEnded.
func (r *Relay) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	for _, rt := range r.receivers {
		rt.detach()
	}
	r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
	if r.release != nil {
		r.release()
	}
	r.logger.Info().Msg("relay stopped")
}

// Subscribers returns how many receivers are still being fed.
func (r *Relay) Subscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rt := range r.receivers {
		if !rt.isDetached() {
			n++
		}
	}
	return n
}
