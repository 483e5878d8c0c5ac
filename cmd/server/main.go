package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/voicestream/internal/adapters/http"
	"github.com/dkeye/voicestream/internal/adapters/mdns"
	vsredis "github.com/dkeye/voicestream/internal/adapters/redis"
	"github.com/dkeye/voicestream/internal/adapters/rtc"
	"github.com/dkeye/voicestream/internal/app"
	"github.com/dkeye/voicestream/internal/app/orch"
	"github.com/dkeye/voicestream/internal/app/sfu"
	"github.com/dkeye/voicestream/internal/config"
	"github.com/dkeye/voicestream/internal/core"
)

var rootCmd = &cobra.Command{
	Use:          "voicestream",
	Short:        "WebRTC audio streaming signaling server",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), cmd.Flags())
	},
}

func init() {
	rootCmd.Flags().String("config-env", "", "config environment, loads config/config.<env>.yaml (default $CONFIG_ENV or dev)")
	rootCmd.Flags().Int("port", 8080, "HTTP listen port")
	rootCmd.Flags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Console logger until the config says otherwise.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
}

func run(ctx context.Context, flags *pflag.FlagSet) error {
	cfg, err := config.Load(flags)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	configureLogger(cfg.Log)

	var (
		sink   core.EventSink
		mirror *vsredis.Mirror
	)
	if cfg.Redis.Enabled {
		mirror = vsredis.NewMirror(vsredis.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := mirror.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis mirror disabled")
			mirror = nil
		} else {
			sink = mirror
		}
	}

	conns := app.NewRegistry()
	relays := sfu.NewRelayManager()
	o := &orch.Orchestrator{
		Conns:    conns,
		Streams:  app.NewStreamRegistry(),
		Notifier: app.NewNotifier(conns, sink),
		Relays:   relays,
	}

	engine, err := rtc.NewEngine(rtc.EngineConfig{
		ICEServers:    iceServers(cfg.WebRTC.ICEServers),
		GatherTimeout: cfg.WebRTC.GatherTimeout,
	})
	if err != nil {
		log.Error().Err(err).Msg("webrtc unavailable, running degraded")
	} else {
		engine.Tracks = o
		o.Engine = engine
	}

	g, ctx := errgroup.WithContext(ctx)

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("addr", addr).Bool("webrtc", o.Engine != nil).Msg("Voice streaming server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		relays.StopAll()
		return err
	})

	if mirror != nil {
		g.Go(func() error { return mirror.Run(ctx) })
	}

	if cfg.MDNS.Enabled {
		adv := mdns.NewAdvertiser(mdns.Config{
			Instance: cfg.MDNS.Instance,
			Service:  cfg.MDNS.Service,
			Domain:   cfg.MDNS.Domain,
			Port:     cfg.Port,
		})
		g.Go(func() error {
			if err := adv.Run(ctx); err != nil {
				log.Warn().Err(err).Msg("mdns advertisement failed")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}

func configureLogger(lc config.LogConfig) {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil || lc.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if lc.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func iceServers(in []config.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(in))
	for _, s := range in {
		out = append(out, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return out
}
