package app

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/dkeye/voicestream/internal/core"
	"github.com/dkeye/voicestream/internal/domain"
)

var errSendFailed = errors.New("send failed")

// fakeSignal records outbound frames.
type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	fail   bool
	closed bool
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errSendFailed
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// types returns the "type" field of every recorded frame.
func (f *fakeSignal) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.frames))
	for _, fr := range f.frames {
		var env struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(fr, &env)
		out = append(out, env.Type)
	}
	return out
}

func (f *fakeSignal) count(typ string) int {
	n := 0
	for _, t := range f.types() {
		if t == typ {
			n++
		}
	}
	return n
}

// fakeHandle is a MediaHandle that does nothing.
type fakeHandle struct{}

func (fakeHandle) Subscribe(domain.ConnectionID, core.MediaConnection) error { return nil }
func (fakeHandle) Unsubscribe(domain.ConnectionID)                           {}
func (fakeHandle) Stop()                                                     {}

// fakeSink records mirrored lifecycle events.
type fakeSink struct {
	mu        sync.Mutex
	available []domain.StreamID
	ended     []domain.StreamID
}

func (s *fakeSink) StreamAvailable(id domain.StreamID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = append(s.available, id)
}

func (s *fakeSink) StreamEnded(id domain.StreamID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = append(s.ended, id)
}
