package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/voicestream/internal/app"
	"github.com/dkeye/voicestream/internal/core"
	"github.com/dkeye/voicestream/internal/domain"
)

func (o *Orchestrator) handleStartSending(ctx context.Context, conn *app.Connection, _ core.Inbound) {
	logger := connLogger(conn)
	if st := conn.Session().State(); st != core.StateIdle {
		logger.Debug().Str("state", st.String()).Msg("duplicate start_sending ignored")
		return
	}
	if conn.Role() == domain.RoleReceiver {
		logger.Warn().Err(domain.ErrRoleConflict).Str("role", conn.Role().String()).Msg("start_sending dropped")
		return
	}

	// The client offers after adding its tracks; the peer connection waits for that offer.
	mc, err := o.newMedia(ctx, conn.ID())
	if err != nil {
		logger.Error().Err(err).Msg("sender peer connection")
		o.replyError(conn, "Error creating peer connection")
		return
	}
	conn.AssignRole(domain.RoleSender)
	conn.SetMedia(mc)
	if _, err := conn.Session().Fire(core.EventStartSending); err != nil {
		logger.Warn().Err(err).Msg("start_sending rejected")
		conn.SetMedia(nil)
		mc.Close()
		return
	}
	logger.Info().Msg("sender ready")
	o.reply(conn, core.SenderReady(conn.ID()))
}

// OnTrackReady is called when the media engine has an inbound track for a sender.
// It creates the sender's stream and announces it.
func (o *Orchestrator) OnTrackReady(cid domain.ConnectionID, media core.MediaHandle) error {
	conn, ok := o.Conns.Get(cid)
	if !ok {
		return fmt.Errorf("%w: connection %s", domain.ErrNotFound, cid)
	}
	var err error
	conn.Do(func() { err = o.trackReady(conn, media) })
	if err != nil {
		logger := connLogger(conn)
		logger.Warn().Err(err).Msg("track ignored")
	}
	return err
}

func (o *Orchestrator) trackReady(conn *app.Connection, media core.MediaHandle) error {
	switch st := conn.Session().State(); st {
	case core.StateSenderNegotiating:
	case core.StateSenderActive:
		return fmt.Errorf("%w: %s", domain.ErrAlreadyStreaming, domain.StreamIDFor(conn.ID()))
	default:
		return fmt.Errorf("%w: track in %s", domain.ErrInvalidState, st)
	}

	id, err := o.Streams.CreateStream(conn.ID(), media)
	if err != nil {
		return err
	}
	conn.BindStream(id)
	if _, err := conn.Session().Fire(core.EventTrackReady); err != nil {
		o.Streams.EndStream(id)
		return err
	}
	o.Notifier.StreamAvailable(id)
	return nil
}
