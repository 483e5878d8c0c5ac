// Package redis mirrors the live stream set into Redis for external monitors.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/voicestream/internal/core"
	"github.com/dkeye/voicestream/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

type event struct {
	msg core.StreamEventMsg
}

// Mirror is an EventSink. Events are queued and written by Run; a full queue drops the event.
type Mirror struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	events chan event
}

var _ core.EventSink = (*Mirror)(nil)

func NewMirror(cfg Config) *Mirror {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "voicestream"
	}
	return &Mirror{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix: prefix,
		ttl:    cfg.TTL,
		events: make(chan event, 256),
	}
}

func (m *Mirror) StreamsKey() string { return m.prefix + ":streams" }
func (m *Mirror) EventsKey() string  { return m.prefix + ":events" }

func (m *Mirror) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

func (m *Mirror) StreamAvailable(id domain.StreamID) { m.enqueue(core.StreamAvailable(id)) }
func (m *Mirror) StreamEnded(id domain.StreamID)     { m.enqueue(core.StreamEnded(id)) }

func (m *Mirror) enqueue(msg core.StreamEventMsg) {
	select {
	case m.events <- event{msg: msg}:
	default:
		log.Warn().Str("module", "redis").Str("stream_id", string(msg.StreamID)).Msg("mirror queue full, event dropped")
	}
}

// Run writes queued events until ctx is done, then removes the stream set and closes the client.
func (m *Mirror) Run(ctx context.Context) error {
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := m.client.Del(cleanupCtx, m.StreamsKey()).Err(); err != nil {
			log.Warn().Err(err).Str("module", "redis").Msg("clear stream set")
		}
		if err := m.client.Close(); err != nil {
			log.Warn().Err(err).Str("module", "redis").Msg("close")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-m.events:
			if err := m.apply(ctx, ev); err != nil {
				log.Warn().Err(err).Str("module", "redis").Str("stream_id", string(ev.msg.StreamID)).Msg("mirror write failed")
			}
		}
	}
}

func (m *Mirror) apply(ctx context.Context, ev event) error {
	payload, err := json.Marshal(ev.msg)
	if err != nil {
		return err
	}
	pipe := m.client.TxPipeline()
	switch ev.msg.Type {
	case core.TypeStreamAvailable:
		pipe.SAdd(ctx, m.StreamsKey(), string(ev.msg.StreamID))
		if m.ttl > 0 {
			pipe.Expire(ctx, m.StreamsKey(), m.ttl)
		}
	case core.TypeStreamEnded:
		pipe.SRem(ctx, m.StreamsKey(), string(ev.msg.StreamID))
	}
	pipe.Publish(ctx, m.EventsKey(), payload)
	_, err = pipe.Exec(ctx)
	return err
}
