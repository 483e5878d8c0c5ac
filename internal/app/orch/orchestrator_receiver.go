package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/voicestream/internal/app"
	"github.com/dkeye/voicestream/internal/core"
	"github.com/dkeye/voicestream/internal/domain"
	"github.com/pion/webrtc/v4"
)

func (o *Orchestrator) handleStartReceiving(ctx context.Context, conn *app.Connection, msg core.Inbound) {
	logger := connLogger(conn)
	st := conn.Session().State()
	retry := st == core.StateReceiverNegotiating && conn.Media() == nil
	if st != core.StateIdle && !retry {
		logger.Debug().Str("state", st.String()).Msg("start_receiving ignored")
		return
	}
	if !conn.AssignRole(domain.RoleReceiver) {
		logger.Warn().Err(domain.ErrRoleConflict).Str("role", conn.Role().String()).Msg("start_receiving dropped")
		return
	}

	id, media, err := o.resolveStream(conn.ID(), msg.StreamID)
	if err != nil {
		logger.Info().Err(err).Str("requested", string(msg.StreamID)).Msg("no stream for receiver")
		o.replyError(conn, "No audio stream available")
		return
	}
	conn.BindStream(id)
	if _, err := conn.Session().Fire(core.EventStartReceiving); err != nil {
		logger.Warn().Err(err).Msg("start_receiving rejected")
		o.Streams.LeaveStream(id, conn.ID())
		return
	}

	offer, err := o.offerStream(ctx, conn, media)
	if err != nil {
		logger.Error().Err(err).Str("stream_id", string(id)).Msg("offer for receiver")
		o.Streams.LeaveStream(id, conn.ID())
		o.replyError(conn, fmt.Sprintf("Error creating offer: %v", err))
		return
	}
	o.reply(conn, core.Offer(*offer))
	if _, err := conn.Session().Fire(core.EventOfferSent); err != nil {
		logger.Warn().Err(err).Msg("offer_sent rejected")
		return
	}
	logger.Info().Str("stream_id", string(id)).Msg("receiver offered")
}

// resolveStream joins the requested stream, or the oldest one when none is named.
func (o *Orchestrator) resolveStream(receiver domain.ConnectionID, requested domain.StreamID) (domain.StreamID, core.MediaHandle, error) {
	if requested == "" {
		id, ok := o.Streams.PickAny()
		if !ok {
			return "", nil, domain.ErrNoStreamAvailable
		}
		requested = id
	}
	media, err := o.Streams.JoinStream(requested, receiver)
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil, fmt.Errorf("%w: %s", domain.ErrNoStreamAvailable, requested)
	}
	if err != nil {
		return "", nil, err
	}
	return requested, media, nil
}

// offerStream builds the receiver's peer connection with the stream's track and creates the offer.
// The media engine is the offerer on this path.
func (o *Orchestrator) offerStream(ctx context.Context, conn *app.Connection, media core.MediaHandle) (*webrtc.SessionDescription, error) {
	mc, err := o.newMedia(ctx, conn.ID())
	if err != nil {
		return nil, err
	}
	if media == nil {
		mc.Close()
		return nil, fmt.Errorf("%w: stream has no media", domain.ErrMediaEngine)
	}
	if err := media.Subscribe(conn.ID(), mc); err != nil {
		mc.Close()
		return nil, fmt.Errorf("%w: %w", domain.ErrMediaEngine, err)
	}
	offer, err := mc.CreateOffer(ctx)
	if err != nil {
		media.Unsubscribe(conn.ID())
		mc.Close()
		return nil, fmt.Errorf("%w: %w", domain.ErrMediaEngine, err)
	}
	conn.SetMedia(mc)
	return offer, nil
}
