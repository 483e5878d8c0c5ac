// Package mdns advertises the signaling endpoint on the local network.
package mdns

import (
	"context"
	"fmt"
	"net"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Instance string
	Service  string
	Domain   string
	Port     int
	// Path is the websocket path published in TXT.
	Path string
}

// Server is a running registration.
type Server interface {
	Shutdown()
}

type RegisterFunc func(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (Server, error)

func zeroconfRegister(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (Server, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

type Advertiser struct {
	cfg      Config
	register RegisterFunc
}

func NewAdvertiser(cfg Config) *Advertiser {
	if cfg.Domain == "" {
		cfg.Domain = "local."
	}
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	return &Advertiser{cfg: cfg, register: zeroconfRegister}
}

func (a *Advertiser) TXT() []string {
	return []string{"path=" + a.cfg.Path, "protocol=voice-streaming"}
}

// Run registers the service and keeps it published until ctx is done.
func (a *Advertiser) Run(ctx context.Context) error {
	srv, err := a.register(a.cfg.Instance, a.cfg.Service, a.cfg.Domain, a.cfg.Port, a.TXT(), nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}
	log.Info().
		Str("module", "mdns").
		Str("instance", a.cfg.Instance).
		Str("service", a.cfg.Service).
		Int("port", a.cfg.Port).
		Msg("service advertised")

	<-ctx.Done()
	srv.Shutdown()
	log.Info().Str("module", "mdns").Msg("advertisement withdrawn")
	return nil
}
