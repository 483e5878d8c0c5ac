package app

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/voicestream/internal/core"
	"github.com/dkeye/voicestream/internal/domain"
	"github.com/rs/zerolog/log"
)

// Notifier fans outbound messages out to connections.
// A failed send is logged and skipped; the recipient's own disconnect cleans it up.
type Notifier struct {
	Conns *Registry
	// Sink is optional.
	Sink core.EventSink
}

func NewNotifier(conns *Registry, sink core.EventSink) *Notifier {
	return &Notifier{Conns: conns, Sink: sink}
}

// Send delivers v to one connection.
func (n *Notifier) Send(cid domain.ConnectionID, v any) error {
	frame, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return n.sendFrame(cid, frame)
}

// Announce delivers v to every target and returns how many sends succeeded.
func (n *Notifier) Announce(v any, targets []domain.ConnectionID) int {
	frame, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.notifier").Msg("marshal broadcast")
		return 0
	}
	sent := 0
	for _, cid := range targets {
		if err := n.sendFrame(cid, frame); err != nil {
			log.Warn().Err(err).Str("module", "app.notifier").Str("cid", string(cid)).Msg("broadcast send failed")
			continue
		}
		sent++
	}
	log.Debug().Str("module", "app.notifier").Int("targets", len(targets)).Int("sent", sent).Msg("broadcast result")
	return sent
}

// Broadcast delivers v to a snapshot of all attached connections except the excluded ones.
func (n *Notifier) Broadcast(v any, exclude ...domain.ConnectionID) int {
	skip := make(map[domain.ConnectionID]struct{}, len(exclude))
	for _, cid := range exclude {
		skip[cid] = struct{}{}
	}
	all := n.Conns.AllIDs()
	targets := all[:0]
	for _, cid := range all {
		if _, ok := skip[cid]; !ok {
			targets = append(targets, cid)
		}
	}
	return n.Announce(v, targets)
}

// AvailableStreams tells a freshly attached connection what it can subscribe to.
func (n *Notifier) AvailableStreams(cid domain.ConnectionID, ids []domain.StreamID) {
	if err := n.Send(cid, core.AvailableStreams(ids)); err != nil {
		log.Warn().Err(err).Str("module", "app.notifier").Str("cid", string(cid)).Msg("send available streams")
	}
}

func (n *Notifier) StreamAvailable(id domain.StreamID) {
	log.Info().Str("module", "app.notifier").Str("stream_id", string(id)).Msg("broadcasting stream available")
	n.Broadcast(core.StreamAvailable(id))
	if n.Sink != nil {
		n.Sink.StreamAvailable(id)
	}
}

// StreamEnded notifies the stream's receivers first, then everyone else, each exactly once.
func (n *Notifier) StreamEnded(id domain.StreamID, receivers []domain.ConnectionID) {
	msg := core.StreamEnded(id)
	n.Announce(msg, receivers)
	n.Broadcast(msg, receivers...)
	if n.Sink != nil {
		n.Sink.StreamEnded(id)
	}
}

func (n *Notifier) sendFrame(cid domain.ConnectionID, frame core.Frame) error {
	c, ok := n.Conns.Get(cid)
	if !ok {
		return fmt.Errorf("%w: connection %s", domain.ErrNotFound, cid)
	}
	return c.Signal().TrySend(frame)
}
