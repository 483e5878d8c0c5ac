package sfu

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/voicestream/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrRelayExists = errors.New("sfu: relay already running")

// RelayManager owns every running relay, keyed by the stream it feeds.
type RelayManager struct {
	mu     sync.RWMutex
	relays map[domain.StreamID]*Relay
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays: make(map[domain.StreamID]*Relay),
	}
}

// StartRelay creates a Relay for the stream and starts its loop.
// onEnded runs when the source track ends without Stop being called.
func (m *RelayManager) StartRelay(ctx context.Context, stream domain.StreamID, track *webrtc.TrackRemote, onEnded func()) (*Relay, error) {
	logger := log.With().
		Str("module", "sfu").
		Str("stream_id", string(stream)).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(stream, track, cancel, logger)
	relay.onEnded = onEnded
	relay.release = func() { m.remove(stream, relay) }

	m.mu.Lock()
	if _, ok := m.relays[stream]; ok {
		m.mu.Unlock()
		cancel()
		logger.Warn().Msg("relay already running for stream")
		return nil, ErrRelayExists
	}
	m.relays[stream] = relay
	m.mu.Unlock()

	logger.Info().Str("track_id", track.ID()).Msg("starting relay loop")

	go relay.loop(relayCtx)
	return relay, nil
}

func (m *RelayManager) remove(stream domain.StreamID, relay *Relay) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.relays[stream]; ok && cur == relay {
		delete(m.relays, stream)
	}
}

// StopRelay stops a relay and removes it from the manager.
func (m *RelayManager) StopRelay(stream domain.StreamID) {
	m.mu.RLock()
	relay, ok := m.relays[stream]
	m.mu.RUnlock()
	if !ok {
		return
	}
	relay.Stop()
}

// StopAll stops every relay, used on shutdown.
func (m *RelayManager) StopAll() {
	m.mu.RLock()
	relays := make([]*Relay, 0, len(m.relays))
	for _, r := range m.relays {
		relays = append(relays, r)
	}
	m.mu.RUnlock()
	for _, r := range relays {
		r.Stop()
	}
}

// HasRelay reports whether a relay exists for stream.
func (m *RelayManager) HasRelay(stream domain.StreamID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.relays[stream]
	return ok
}

func (m *RelayManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.relays)
}
