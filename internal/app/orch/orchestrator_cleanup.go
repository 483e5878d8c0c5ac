package orch

import (
	"github.com/dkeye/voicestream/internal/domain"
	"github.com/rs/zerolog/log"
)

// OnDisconnect unwinds everything the connection did. The transport calls it once it has closed,
// before releasing the connection's resources.
func (o *Orchestrator) OnDisconnect(cid domain.ConnectionID) {
	conn, ok := o.Conns.Get(cid)
	if !ok {
		return
	}
	conn.Do(func() {
		prev := conn.Session().Close()
		snap, ok := o.Conns.Detach(cid)
		if !ok {
			return
		}
		switch snap.Role {
		case domain.RoleSender:
			o.endStream(domain.StreamIDFor(cid))
		case domain.RoleReceiver:
			if snap.StreamID != "" {
				if media, ok := o.Streams.LeaveStream(snap.StreamID, cid); ok && media != nil {
					media.Unsubscribe(cid)
				}
			}
		}
		if snap.Media != nil {
			snap.Media.Close()
		}
		log.Info().
			Str("module", "orch").
			Str("cid", string(cid)).
			Str("role", snap.Role.String()).
			Str("last_state", prev.String()).
			Msg("connection cleaned up")
	})
}

// endStream removes the stream, stops its relay and tells everyone once.
func (o *Orchestrator) endStream(id domain.StreamID) {
	receivers, media, ok := o.Streams.EndStream(id)
	if !ok {
		return
	}
	if media != nil {
		media.Stop()
	}
	o.Notifier.StreamEnded(id, receivers)
}
