package orch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/voicestream/internal/app"
	"github.com/dkeye/voicestream/internal/app/sfu"
	"github.com/dkeye/voicestream/internal/core"
	"github.com/dkeye/voicestream/internal/domain"
	"github.com/pion/webrtc/v4"
)

type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {}

// messages decodes every frame sent so far.
func (f *fakeSignal) messages(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.frames))
	for _, fr := range f.frames {
		var m map[string]any
		if err := json.Unmarshal(fr, &m); err != nil {
			t.Fatalf("bad frame %q: %v", fr, err)
		}
		out = append(out, m)
	}
	return out
}

func (f *fakeSignal) ofType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range f.messages(t) {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSignal) last(t *testing.T) map[string]any {
	t.Helper()
	msgs := f.messages(t)
	if len(msgs) == 0 {
		t.Fatal("no messages sent")
	}
	return msgs[len(msgs)-1]
}

type fakeMedia struct {
	mu         sync.Mutex
	remote     *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	closed     bool
	offerErr   error
}

func (m *fakeMedia) SetRemoteDescription(sd webrtc.SessionDescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sd.SDP == "" {
		return errors.New("empty sdp")
	}
	m.remote = &sd
	return nil
}

func (m *fakeMedia) HasRemoteDescription() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remote != nil
}

func (m *fakeMedia) CreateAnswer(context.Context) (*webrtc.SessionDescription, error) {
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (m *fakeMedia) CreateOffer(context.Context) (*webrtc.SessionDescription, error) {
	if m.offerErr != nil {
		return nil, m.offerErr
	}
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (m *fakeMedia) AddICECandidate(ci webrtc.ICECandidateInit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates = append(m.candidates, ci)
	return nil
}

func (m *fakeMedia) AddLocalTrack(*webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error) {
	return nil, errors.New("not supported")
}

func (m *fakeMedia) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *fakeMedia) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type fakeEngine struct {
	mu       sync.Mutex
	byConn   map[domain.ConnectionID][]*fakeMedia
	offerErr error
	err      error
}

func (e *fakeEngine) NewConnection(_ context.Context, cid domain.ConnectionID) (core.MediaConnection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	m := &fakeMedia{offerErr: e.offerErr}
	if e.byConn == nil {
		e.byConn = make(map[domain.ConnectionID][]*fakeMedia)
	}
	e.byConn[cid] = append(e.byConn[cid], m)
	return m, nil
}

func (e *fakeEngine) media(cid domain.ConnectionID) []*fakeMedia {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.byConn[cid]
}

type fakeHandle struct {
	mu           sync.Mutex
	subscribed   map[domain.ConnectionID]bool
	unsubscribed []domain.ConnectionID
	stopped      int
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{subscribed: make(map[domain.ConnectionID]bool)}
}

func (h *fakeHandle) Subscribe(dst domain.ConnectionID, _ core.MediaConnection) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribed[dst] = true
	return nil
}

func (h *fakeHandle) Unsubscribe(dst domain.ConnectionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribed, dst)
	h.unsubscribed = append(h.unsubscribed, dst)
}

func (h *fakeHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped++
}

func (h *fakeHandle) isSubscribed(dst domain.ConnectionID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscribed[dst]
}

func newTestOrch() (*Orchestrator, *fakeEngine) {
	conns := app.NewRegistry()
	eng := &fakeEngine{}
	return &Orchestrator{
		Conns:    conns,
		Streams:  app.NewStreamRegistry(),
		Notifier: app.NewNotifier(conns, nil),
		Engine:   eng,
		Relays:   sfu.NewRelayManager(),
	}, eng
}

func attach(o *Orchestrator) (domain.ConnectionID, *fakeSignal) {
	sig := &fakeSignal{}
	return o.Attach(sig), sig
}

func send(o *Orchestrator, cid domain.ConnectionID, raw string) {
	o.Dispatch(context.Background(), cid, []byte(raw))
}

func stateOf(t *testing.T, o *Orchestrator, cid domain.ConnectionID) core.State {
	t.Helper()
	conn, ok := o.Conns.Get(cid)
	if !ok {
		t.Fatalf("connection %s not attached", cid)
	}
	return conn.Session().State()
}

// startSender drives cid to SenderActive with h as its stream's media.
func startSender(t *testing.T, o *Orchestrator, cid domain.ConnectionID, h core.MediaHandle) domain.StreamID {
	t.Helper()
	send(o, cid, `{"type":"start_sending"}`)
	send(o, cid, `{"type":"webrtc_offer","offer":{"type":"offer","sdp":"client-offer"}}`)
	if err := o.OnTrackReady(cid, h); err != nil {
		t.Fatalf("OnTrackReady: %v", err)
	}
	return domain.StreamIDFor(cid)
}
