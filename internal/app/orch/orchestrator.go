// Package orch routes signaling messages and media events to the registries.
// It is the only place that mutates connections and streams together.
package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/voicestream/internal/app"
	"github.com/dkeye/voicestream/internal/app/sfu"
	"github.com/dkeye/voicestream/internal/core"
	"github.com/dkeye/voicestream/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Orchestrator struct {
	Conns    *app.Registry
	Streams  *app.StreamRegistry
	Notifier *app.Notifier
	// Engine is nil when WebRTC could not be initialised.
	Engine core.MediaEngine
	Relays *sfu.RelayManager
}

type handlerFunc func(o *Orchestrator, ctx context.Context, conn *app.Connection, msg core.Inbound)

var handlers = map[core.MessageType]handlerFunc{
	core.TypeStartSending:   (*Orchestrator).handleStartSending,
	core.TypeStartReceiving: (*Orchestrator).handleStartReceiving,
	core.TypeWebRTCOffer:    (*Orchestrator).handleOffer,
	core.TypeWebRTCAnswer:   (*Orchestrator).handleAnswer,
	core.TypeICECandidate:   (*Orchestrator).handleICECandidate,
}

// Attach registers a new client and tells it which streams exist.
func (o *Orchestrator) Attach(sig core.SignalConnection) domain.ConnectionID {
	cid := o.Conns.Attach(sig)
	o.Notifier.AvailableStreams(cid, o.Streams.ListStreamIDs())
	return cid
}

// Dispatch handles one inbound frame. The transport calls it in arrival order per connection.
func (o *Orchestrator) Dispatch(ctx context.Context, cid domain.ConnectionID, data []byte) {
	msg, err := core.DecodeInbound(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("cid", string(cid)).Msg("bad message")
		return
	}
	h, ok := handlers[msg.Type]
	if !ok {
		log.Warn().Str("module", "orch").Str("cid", string(cid)).Str("type", string(msg.Type)).Msg("unknown message type")
		return
	}
	conn, ok := o.Conns.Get(cid)
	if !ok {
		log.Debug().Str("module", "orch").Str("cid", string(cid)).Msg("message for detached connection")
		return
	}
	conn.Do(func() { h(o, ctx, conn, msg) })
}

func (o *Orchestrator) newMedia(ctx context.Context, cid domain.ConnectionID) (core.MediaConnection, error) {
	if o.Engine == nil {
		return nil, fmt.Errorf("%w: webrtc unavailable", domain.ErrMediaEngine)
	}
	mc, err := o.Engine.NewConnection(ctx, cid)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMediaEngine, err)
	}
	return mc, nil
}

func (o *Orchestrator) reply(conn *app.Connection, v any) {
	if err := o.Notifier.Send(conn.ID(), v); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("cid", string(conn.ID())).Msg("reply failed")
	}
}

func (o *Orchestrator) replyError(conn *app.Connection, message string) {
	o.reply(conn, core.Error(message))
}

func connLogger(conn *app.Connection) zerolog.Logger {
	return log.With().Str("module", "orch").Str("cid", string(conn.ID())).Logger()
}
