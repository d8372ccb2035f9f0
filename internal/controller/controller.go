// Package controller drives targets: it listens for their announcements,
// connects with a PIN and then sends commands and files while collecting
// the telemetry they push.
package controller

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/06eren/Pc-Mobil-Bond/internal/discovery"
	"github.com/06eren/Pc-Mobil-Bond/internal/handshake"
	"github.com/06eren/Pc-Mobil-Bond/internal/pairing"
	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
	"github.com/06eren/Pc-Mobil-Bond/internal/telemetry"
	"github.com/06eren/Pc-Mobil-Bond/internal/transfer"
)

// ErrUnknownDevice is returned when a name or address matches no
// discovered target.
var ErrUnknownDevice = errors.New("controller: unknown device")

// Events are optional notifications for the hosting UI.
type Events struct {
	Discovered func(dev discovery.Device)
	Left       func(address string)
	Perf       func(peer string, s telemetry.Sample)
	Closed     func(peer string, err error)
	Transfer   transfer.Events
}

// Config configures a Controller.
type Config struct {
	Identity      handshake.Identity
	DiscoveryPort int
	SessionPort   int
	// DownloadDir receives files and screenshots; empty declines them
	DownloadDir string
	// Paired, if set, records every target a connection succeeded with
	Paired pairing.Store
	Events Events
}

// Controller is the controlling side.
type Controller struct {
	cfg      Config
	listener *discovery.Listener
	history  *telemetry.History
	client   handshake.Client
	logger   zerolog.Logger
}

// New returns a controller.
func New(cfg Config) *Controller {
	if cfg.DiscoveryPort == 0 {
		cfg.DiscoveryPort = protocol.DiscoveryPort
	}
	if cfg.SessionPort == 0 {
		cfg.SessionPort = protocol.SessionPort
	}
	c := &Controller{
		cfg:     cfg,
		history: telemetry.NewHistory(telemetry.MaxSamples),
		client:  handshake.Client{DialTimeout: handshake.DialTimeout, ReadTimeout: handshake.ReadTimeout},
		logger:  log.With().Str("component", "controller").Logger(),
	}
	c.listener = discovery.NewListener(cfg.DiscoveryPort, cfg.Identity.ID, discovery.CallbackFuncs{
		Discovered: cfg.Events.Discovered,
		Left:       cfg.Events.Left,
	})
	return c
}

// Discover listens for announcements until ctx is cancelled.
func (c *Controller) Discover(ctx context.Context) error {
	go c.history.Run(ctx)
	return c.listener.Run(ctx)
}

// Devices lists the targets discovered so far.
func (c *Controller) Devices() []discovery.Device {
	return c.listener.Devices().List()
}

// Find looks a discovered target up by address, name or identity.
func (c *Controller) Find(key string) (discovery.Device, bool) {
	return c.listener.Devices().Find(key)
}

// History returns the telemetry received from all targets.
func (c *Controller) History() *telemetry.History {
	return c.history
}

// RequestConnect asks the target with identity targetID to present its
// PIN. extra adds unicast destinations to the broadcast.
func (c *Controller) RequestConnect(targetID string, extra ...string) error {
	req := protocol.ConnectRequest{OriginID: c.cfg.Identity.ID, TargetID: targetID}
	if err := discovery.SendConnectRequest(c.cfg.DiscoveryPort, req, extra...); err != nil {
		return err
	}
	c.logger.Info().Str("target", targetID).Msg("connect request sent")
	return nil
}

// Connect authenticates with the target at addr ("host" or "host:port")
// and starts its session. The link lives until ctx is cancelled, Close is
// called or the target goes away.
func (c *Controller) Connect(ctx context.Context, addr, pin string) (*Link, error) {
	addr = c.sessionAddr(addr)
	conn, err := c.client.Dial(ctx, addr, pin, c.cfg.Identity)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(addr)
	peer := Peer{Address: addr, Name: host, ID: host}
	if dev, ok := c.Find(host); ok {
		peer.Name = dev.DisplayName
		if dev.OriginID != "" {
			peer.ID = dev.OriginID
		}
	}
	c.remember(peer)

	l, err := newLink(c, peer, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	go l.run(ctx)
	return l, nil
}

// ConnectDevice connects to a discovered target by name, address or
// identity. An empty pin uses the PIN the target announced.
func (c *Controller) ConnectDevice(ctx context.Context, key, pin string) (*Link, error) {
	dev, ok := c.Find(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, key)
	}
	if pin == "" {
		pin = dev.PIN
	}
	return c.Connect(ctx, dev.Address, pin)
}

func (c *Controller) remember(p Peer) {
	if c.cfg.Paired == nil {
		return
	}
	if _, created, err := c.cfg.Paired.Pair(p.ID, p.Name); err != nil {
		c.logger.Warn().Err(err).Str("peer", p.Name).Msg("failed to record paired target")
	} else if created {
		c.logger.Info().Str("peer", p.Name).Msg("target paired")
	}
}

func (c *Controller) sessionAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(c.cfg.SessionPort))
}
