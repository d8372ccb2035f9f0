// Package target runs the controlled side: it announces itself with a
// fresh PIN, authenticates incoming controllers and serves one session per
// connection, executing commands, pushing telemetry and answering
// screenshot requests with transfers.
package target

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/06eren/Pc-Mobil-Bond/internal/capture"
	"github.com/06eren/Pc-Mobil-Bond/internal/commands"
	"github.com/06eren/Pc-Mobil-Bond/internal/discovery"
	"github.com/06eren/Pc-Mobil-Bond/internal/exec"
	"github.com/06eren/Pc-Mobil-Bond/internal/handshake"
	"github.com/06eren/Pc-Mobil-Bond/internal/pairing"
	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
	"github.com/06eren/Pc-Mobil-Bond/internal/sysinfo"
	"github.com/06eren/Pc-Mobil-Bond/internal/telemetry"
	"github.com/06eren/Pc-Mobil-Bond/internal/transfer"
)

// Capturer produces an encoded screenshot.
type Capturer interface {
	Capture() ([]byte, error)
}

// Events are optional notifications for the hosting UI. They are called
// from connection goroutines.
type Events struct {
	PINChanged       func(pin string)
	ConnectRequested func(req protocol.ConnectRequest)
	Connected        func(dev pairing.Device, remote net.Addr)
	Disconnected     func(dev pairing.Device, err error)
	Transfer         transfer.Events
}

// Config configures a Target. Zero values pick the defaults.
type Config struct {
	Name     string
	Identity string

	DiscoveryPort     int
	AnnounceInterval  time.Duration
	TelemetryInterval time.Duration
	// SeedPeers receive announcements by unicast in addition to the broadcast
	SeedPeers []string
	// DisableDiscovery skips the broadcaster and the request listener
	DisableDiscovery bool
	// DownloadDir receives files sent by controllers; empty declines them
	DownloadDir string

	Store     pairing.Store
	Executor  *commands.Executor
	Telemetry telemetry.Source
	Screen    Capturer
	Events    Events
}

// Target is one listening device.
type Target struct {
	cfg        Config
	pin        *handshake.PIN
	negotiator *handshake.Negotiator
	logger     zerolog.Logger

	broadcaster *discovery.Broadcaster
	listener    *discovery.Listener

	mu    sync.Mutex
	conns map[*peerConn]struct{}
	wg    sync.WaitGroup
}

// New builds a target. cfg.Store is required.
func New(cfg Config) (*Target, error) {
	if cfg.Store == nil {
		return nil, errors.New("target: pairing store required")
	}
	if cfg.Name == "" {
		cfg.Name = "pcbond"
	}
	if cfg.DiscoveryPort == 0 {
		cfg.DiscoveryPort = protocol.DiscoveryPort
	}
	if cfg.TelemetryInterval <= 0 {
		cfg.TelemetryInterval = telemetry.Interval
	}
	if cfg.Executor == nil {
		cfg.Executor = commands.NewExecutor(exec.NewRunner())
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = sysinfo.NewSampler()
	}
	if cfg.Screen == nil {
		cfg.Screen = capture.Screen{}
	}

	pin := handshake.NewPIN()
	t := &Target{
		cfg:        cfg,
		pin:        pin,
		negotiator: handshake.NewNegotiator(pin, cfg.Store),
		logger:     log.With().Str("component", "target").Logger(),
		conns:      make(map[*peerConn]struct{}),
	}
	cfg.Executor.Handle(commands.Screenshot, t.screenshot)

	t.broadcaster = discovery.NewBroadcaster(cfg.DiscoveryPort, t.announcement)
	t.broadcaster.SetInterval(cfg.AnnounceInterval)
	for _, peer := range cfg.SeedPeers {
		if err := t.broadcaster.AddSeedPeer(peer); err != nil {
			return nil, fmt.Errorf("target: %w", err)
		}
	}
	t.listener = discovery.NewListener(cfg.DiscoveryPort, cfg.Identity, discovery.CallbackFuncs{
		Request: t.onConnectRequest,
	})
	return t, nil
}

// PIN returns the PIN currently accepted, or "" while not serving.
func (t *Target) PIN() string {
	return t.pin.Current()
}

// Executor returns the command executor shared by all connections.
func (t *Target) Executor() *commands.Executor {
	return t.cfg.Executor
}

// Sessions returns the number of live authenticated connections.
func (t *Target) Sessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// ListenAndServe listens on addr and calls Serve.
func (t *Target) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return fmt.Errorf("target: listen %s: %w", addr, err)
	}
	return t.Serve(ctx, ln)
}

// Serve generates a new PIN, starts discovery and accepts controllers on
// ln until ctx is cancelled. Live sessions are closed before it returns and
// the PIN is invalidated.
func (t *Target) Serve(ctx context.Context, ln net.Listener) error {
	pin, err := t.pin.Rotate()
	if err != nil {
		ln.Close()
		return fmt.Errorf("target: %w", err)
	}
	defer t.pin.Clear()

	t.logger.Info().Str("addr", ln.Addr().String()).Str("name", t.cfg.Name).Msg("target listening")
	if t.cfg.Events.PINChanged != nil {
		t.cfg.Events.PINChanged(pin)
	}

	g, gctx := errgroup.WithContext(ctx)
	if !t.cfg.DisableDiscovery {
		g.Go(func() error { return t.broadcaster.Run(gctx) })
		g.Go(func() error { return t.listener.Run(gctx) })
	}
	g.Go(func() error { return t.acceptLoop(gctx, ln) })

	err = g.Wait()
	t.closeAll()
	t.wg.Wait()
	t.logger.Info().Msg("target stopped")
	return err
}

func (t *Target) acceptLoop(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("target: accept: %w", err)
		}
		t.logger.Debug().Stringer("remote", conn.RemoteAddr()).Msg("connection accepted")

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.handle(ctx, conn)
		}()
	}
}

func (t *Target) handle(ctx context.Context, conn net.Conn) {
	dev, err := t.negotiator.Accept(ctx, conn)
	if err != nil {
		return
	}
	if t.cfg.Events.Connected != nil {
		t.cfg.Events.Connected(dev, conn.RemoteAddr())
	}

	pc, err := newPeerConn(t, dev, conn)
	if err != nil {
		t.logger.Error().Err(err).Msg("failed to set up session")
		conn.Close()
		return
	}

	t.mu.Lock()
	t.conns[pc] = struct{}{}
	t.mu.Unlock()

	err = pc.run(ctx)

	t.mu.Lock()
	delete(t.conns, pc)
	t.mu.Unlock()

	if t.cfg.Events.Disconnected != nil {
		t.cfg.Events.Disconnected(dev, err)
	}
}

func (t *Target) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for pc := range t.conns {
		pc.sess.Close()
	}
}

// announcement feeds the broadcaster; nothing is sent without a PIN or a
// LAN address.
func (t *Target) announcement() (protocol.Announcement, bool) {
	pin := t.pin.Current()
	addr := discovery.LocalIPv4()
	if pin == "" || addr == "" {
		return protocol.Announcement{}, false
	}
	return protocol.Announcement{
		DisplayName: t.cfg.Name,
		Address:     addr,
		PIN:         pin,
		OriginID:    t.cfg.Identity,
	}, true
}

func (t *Target) onConnectRequest(req protocol.ConnectRequest, from *net.UDPAddr) {
	if req.TargetID != t.cfg.Identity {
		return
	}
	t.logger.Info().Str("origin", req.OriginID).Stringer("from", from).Msg("controller asked to connect")
	t.broadcaster.Poke()
	if t.cfg.Events.ConnectRequested != nil {
		t.cfg.Events.ConnectRequested(req)
	}
}

// screenshot answers SCREENSHOT on the connection that asked for it.
func (t *Target) screenshot(ctx context.Context, _ protocol.Command) error {
	pc, ok := ctx.Value(peerConnKey{}).(*peerConn)
	if !ok {
		return errors.New("target: screenshot requested outside a session")
	}
	data, err := t.cfg.Screen.Capture()
	if err != nil {
		return fmt.Errorf("target: %w", err)
	}
	name := capture.Name(time.Now())
	if _, err := pc.coord.OfferBytes(ctx, name, data); err != nil {
		return fmt.Errorf("target: send %s: %w", name, err)
	}
	return nil
}
