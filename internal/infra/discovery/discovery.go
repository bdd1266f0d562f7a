// Package discovery advertises the host control server on the LAN over mDNS.
package discovery

import (
	"net"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/grandcat/zeroconf"
	zlog "github.com/rs/zerolog/log"
)

// Service identifiers.
const (
	ServiceType = "_rockola._tcp"
	Domain      = "local."
)

// Config holds advertiser configuration.
type Config struct {
	Instance  string
	Addr      string // Control server listen address, host:port or :port
	PublicURL string
	Version   string
}

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (shutdowner, error)

type shutdowner interface {
	Shutdown()
}

// Advertiser publishes one mDNS service record.
type Advertiser struct {
	server   shutdowner
	register registerFunc
}

// NewAdvertiser creates a new advertiser.
func NewAdvertiser() *Advertiser {
	return &Advertiser{
		register: func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (shutdowner, error) {
			server, err := zeroconf.Register(instance, service, domain, port, text, ifaces)
			if err != nil {
				return nil, err
			}
			return server, nil
		},
	}
}

// Start publishes the service. Calling Start twice replaces the record.
func (a *Advertiser) Start(cfg Config) error {
	port, err := Port(cfg.Addr)
	if err != nil {
		return err
	}
	instance := cfg.Instance
	if instance == "" {
		instance = "rockola-host"
	}

	a.Stop()
	server, err := a.register(instance, ServiceType, Domain, port, TXT(cfg), nil)
	if err != nil {
		return errors.Wrap(err, "failed to register mDNS service")
	}
	a.server = server

	zlog.Info().Msgf("discovery: advertising: instance=%s service=%s port=%d", instance, ServiceType, port)
	return nil
}

// Stop withdraws the record.
func (a *Advertiser) Stop() {
	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	zlog.Info().Msg("discovery: advertising stopped")
}

// Port extracts the port from a listen address.
func Port(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid listen address %q", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return 0, errors.Newf("invalid port in listen address %q", addr)
	}
	return port, nil
}

// TXT builds the service TXT records.
func TXT(cfg Config) []string {
	txt := []string{"path=/api/host/status"}
	if cfg.PublicURL != "" {
		txt = append(txt, "public_url="+cfg.PublicURL)
	}
	if cfg.Version != "" {
		txt = append(txt, "version="+cfg.Version)
	}
	return txt
}
