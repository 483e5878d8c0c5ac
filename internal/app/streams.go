package app

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dkeye/voicestream/internal/core"
	"github.com/dkeye/voicestream/internal/domain"
	"github.com/rs/zerolog/log"
)

type stream struct {
	id        domain.StreamID
	sender    domain.ConnectionID
	receivers map[domain.ConnectionID]struct{}
	media     core.MediaHandle
	seq       uint64
}

// StreamRegistry owns the active streams. Receiver sets never leave it.
type StreamRegistry struct {
	mu      sync.RWMutex
	streams map[domain.StreamID]*stream
	nextSeq uint64
}

func NewStreamRegistry() *StreamRegistry {
	return &StreamRegistry{streams: make(map[domain.StreamID]*stream)}
}

// CreateStream registers the stream owned by sender.
func (r *StreamRegistry) CreateStream(sender domain.ConnectionID, media core.MediaHandle) (domain.StreamID, error) {
	id := domain.StreamIDFor(sender)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.streams[id]; ok {
		return id, fmt.Errorf("%w: %s", domain.ErrAlreadyStreaming, id)
	}
	r.nextSeq++
	r.streams[id] = &stream{
		id:        id,
		sender:    sender,
		receivers: make(map[domain.ConnectionID]struct{}),
		media:     media,
		seq:       r.nextSeq,
	}
	log.Info().Str("module", "app.streams").Str("stream_id", string(id)).Int("active", len(r.streams)).Msg("stream created")
	return id, nil
}

// JoinStream subscribes receiver and returns the stream's media handle.
// The existence check and the insert happen under one lock.
func (r *StreamRegistry) JoinStream(id domain.StreamID, receiver domain.ConnectionID) (core.MediaHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	if !ok {
		return nil, fmt.Errorf("%w: stream %s", domain.ErrNotFound, id)
	}
	s.receivers[receiver] = struct{}{}
	log.Info().Str("module", "app.streams").Str("stream_id", string(id)).Str("cid", string(receiver)).Int("receivers", len(s.receivers)).Msg("receiver joined")
	return s.media, nil
}

// LeaveStream unsubscribes receiver. It returns the media handle when the receiver was removed.
func (r *StreamRegistry) LeaveStream(id domain.StreamID, receiver domain.ConnectionID) (core.MediaHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	if !ok {
		return nil, false
	}
	if _, ok := s.receivers[receiver]; !ok {
		return nil, false
	}
	delete(s.receivers, receiver)
	log.Info().Str("module", "app.streams").Str("stream_id", string(id)).Str("cid", string(receiver)).Msg("receiver left")
	return s.media, true
}

// EndStream removes the stream and hands back the receivers it held, so each is notified once.
func (r *StreamRegistry) EndStream(id domain.StreamID) ([]domain.ConnectionID, core.MediaHandle, bool) {
	r.mu.Lock()
	s, ok := r.streams[id]
	if ok {
		delete(r.streams, id)
	}
	r.mu.Unlock()
	if !ok {
		return nil, nil, false
	}
	receivers := make([]domain.ConnectionID, 0, len(s.receivers))
	for rid := range s.receivers {
		receivers = append(receivers, rid)
	}
	log.Info().Str("module", "app.streams").Str("stream_id", string(id)).Int("receivers", len(receivers)).Msg("stream ended")
	return receivers, s.media, true
}

// ListStreamIDs returns the active stream ids, oldest first.
func (r *StreamRegistry) ListStreamIDs() []domain.StreamID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ordered := r.ordered()
	out := make([]domain.StreamID, 0, len(ordered))
	for _, s := range ordered {
		out = append(out, s.id)
	}
	return out
}

// PickAny returns the oldest active stream.
func (r *StreamRegistry) PickAny() (domain.StreamID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var oldest *stream
	for _, s := range r.streams {
		if oldest == nil || s.seq < oldest.seq {
			oldest = s
		}
	}
	if oldest == nil {
		return "", false
	}
	return oldest.id, true
}

// Snapshot returns a read-only view of every stream, oldest first.
func (r *StreamRegistry) Snapshot() []domain.StreamInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ordered := r.ordered()
	out := make([]domain.StreamInfo, 0, len(ordered))
	for _, s := range ordered {
		out = append(out, domain.StreamInfo{ID: s.id, SenderID: s.sender, Receivers: len(s.receivers)})
	}
	return out
}

// Receivers returns a copy of the receiver set, or false if the stream does not exist.
func (r *StreamRegistry) Receivers(id domain.StreamID) ([]domain.ConnectionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[id]
	if !ok {
		return nil, false
	}
	out := make([]domain.ConnectionID, 0, len(s.receivers))
	for rid := range s.receivers {
		out = append(out, rid)
	}
	return out, true
}

func (r *StreamRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// ordered must be called with mu held.
func (r *StreamRegistry) ordered() []*stream {
	out := make([]*stream, 0, len(r.streams))
	for _, s := range r.streams {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}
