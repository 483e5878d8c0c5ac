package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/voicestream/internal/app"
	"github.com/dkeye/voicestream/internal/core"
	"github.com/dkeye/voicestream/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) handleOffer(ctx context.Context, conn *app.Connection, msg core.Inbound) {
	logger := connLogger(conn)
	mc := conn.Media()
	if st := conn.Session().State(); mc == nil || !st.Negotiating() {
		logger.Warn().Str("state", st.String()).Msg("webrtc_offer without media connection dropped")
		return
	}
	if msg.Offer == nil {
		logger.Warn().Msg("webrtc_offer without offer dropped")
		return
	}
	if err := mc.SetRemoteDescription(*msg.Offer); err != nil {
		logger.Error().Err(err).Msg("webrtc apply offer")
		o.replyError(conn, fmt.Sprintf("Error handling offer: %v", err))
		return
	}
	answer, err := mc.CreateAnswer(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("webrtc create answer")
		o.replyError(conn, fmt.Sprintf("Error creating answer: %v", err))
		return
	}
	o.reply(conn, core.Answer(*answer))
}

func (o *Orchestrator) handleAnswer(_ context.Context, conn *app.Connection, msg core.Inbound) {
	logger := connLogger(conn)
	mc := conn.Media()
	if st := conn.Session().State(); mc == nil || !st.Negotiating() {
		logger.Warn().Str("state", st.String()).Msg("webrtc_answer without media connection dropped")
		return
	}
	if msg.Answer == nil {
		logger.Warn().Msg("webrtc_answer without answer dropped")
		return
	}
	if err := mc.SetRemoteDescription(*msg.Answer); err != nil {
		logger.Error().Err(err).Msg("webrtc apply answer")
		o.replyError(conn, fmt.Sprintf("Error handling answer: %v", err))
	}
}

// handleICECandidate drops candidates that arrive before a remote description. They are not queued.
func (o *Orchestrator) handleICECandidate(_ context.Context, conn *app.Connection, msg core.Inbound) {
	logger := connLogger(conn)
	mc := conn.Media()
	if st := conn.Session().State(); mc == nil || !st.Negotiating() {
		logger.Warn().Str("state", st.String()).Msg("ice_candidate without media connection dropped")
		return
	}
	if !mc.HasRemoteDescription() {
		logger.Debug().Msg("ice_candidate before remote description dropped")
		return
	}
	ci, err := msg.ICECandidate()
	if err != nil {
		logger.Warn().Err(err).Msg("bad candidate payload")
		return
	}
	if err := mc.AddICECandidate(ci); err != nil {
		logger.Error().Err(err).Msg("add ice candidate")
	}
}

// TrackArrived receives inbound tracks from the media engine. Only audio becomes a stream.
func (o *Orchestrator) TrackArrived(ctx context.Context, cid domain.ConnectionID, track *webrtc.TrackRemote) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		log.Info().Str("module", "orch").Str("cid", string(cid)).Str("kind", track.Kind().String()).Msg("non-audio track ignored")
		return
	}
	if o.Relays == nil {
		return
	}
	id := domain.StreamIDFor(cid)
	relay, err := o.Relays.StartRelay(ctx, id, track, func() { o.OnTrackEnded(id) })
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("cid", string(cid)).Msg("relay not started")
		return
	}
	if err := o.OnTrackReady(cid, relay); err != nil {
		relay.Stop()
	}
}

// OnTrackEnded ends a stream whose inbound track stopped while its sender stayed connected.
func (o *Orchestrator) OnTrackEnded(id domain.StreamID) {
	log.Info().Str("module", "orch").Str("stream_id", string(id)).Msg("track ended")
	o.endStream(id)
}
