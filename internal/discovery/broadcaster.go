package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/ipv4"

	"github.com/06eren/Pc-Mobil-Bond/internal/observability"
	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
)

const (
	// BroadcastInterval is how often a target announces itself
	BroadcastInterval = 3 * time.Second
)

// AnnounceFunc builds the current announcement. Returning false skips the
// tick, e.g. while no PIN is active or no LAN address is known.
type AnnounceFunc func() (protocol.Announcement, bool)

// Broadcaster periodically sends DEVICE_ANNOUNCE datagrams until cancelled.
type Broadcaster struct {
	port      int
	interval  time.Duration
	source    AnnounceFunc
	broadcast bool
	seedPeers []*net.UDPAddr

	poke chan struct{}
	mu   sync.Mutex
}

// NewBroadcaster creates a broadcaster sending to port on every LAN subnet.
func NewBroadcaster(port int, source AnnounceFunc) *Broadcaster {
	return &Broadcaster{
		port:      port,
		interval:  BroadcastInterval,
		source:    source,
		broadcast: true,
		poke:      make(chan struct{}, 1),
	}
}

// SetInterval overrides the announce period.
func (b *Broadcaster) SetInterval(d time.Duration) {
	if d > 0 {
		b.interval = d
	}
}

// SetBroadcast toggles the subnet broadcast; seed peers are still used.
func (b *Broadcaster) SetBroadcast(enabled bool) {
	b.broadcast = enabled
}

// AddSeedPeer adds a unicast destination, for peers on another subnet.
func (b *Broadcaster) AddSeedPeer(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return fmt.Errorf("invalid seed peer address %s: %w", addr, err)
	}
	b.mu.Lock()
	b.seedPeers = append(b.seedPeers, udpAddr)
	b.mu.Unlock()
	return nil
}

// Poke requests an announcement ahead of the next tick.
func (b *Broadcaster) Poke() {
	select {
	case b.poke <- struct{}{}:
	default:
	}
}

// Run announces immediately and then every interval. It returns nil when
// ctx is cancelled; per-tick send failures are logged and skipped.
func (b *Broadcaster) Run(ctx context.Context) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return fmt.Errorf("discovery: open broadcast socket: %w", err)
	}
	defer conn.Close()

	pc := ipv4.NewPacketConn(conn)
	logger := log.With().Str("component", "discovery").Logger()
	logger.Info().Int("port", b.port).Dur("interval", b.interval).Msg("presence broadcaster started")

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.announce(ctx, pc)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("presence broadcaster stopped")
			return nil
		case <-ticker.C:
			b.announce(ctx, pc)
		case <-b.poke:
			b.announce(ctx, pc)
		}
	}
}

func (b *Broadcaster) announce(ctx context.Context, pc *ipv4.PacketConn) {
	anno, ok := b.source()
	if !ok {
		return
	}
	data := anno.Encode()

	for _, dst := range b.destinations() {
		var cm *ipv4.ControlMessage
		if dst.ifIndex > 0 {
			cm = &ipv4.ControlMessage{IfIndex: dst.ifIndex}
		}
		if _, err := pc.WriteTo(data, cm, dst.addr); err != nil {
			// Some platforms refuse per-interface control messages; retry plain.
			if cm != nil {
				_, err = pc.WriteTo(data, nil, dst.addr)
			}
			if err != nil && ctx.Err() == nil {
				log.Debug().Str("component", "discovery").Err(err).Str("dst", dst.addr.String()).Msg("announce failed")
				continue
			}
		}
		observability.RecordAnnounceSent()
	}
}

func (b *Broadcaster) destinations() []destination {
	var out []destination
	if b.broadcast {
		out = broadcastDestinations(b.port)
	}
	b.mu.Lock()
	for _, peer := range b.seedPeers {
		out = append(out, destination{addr: peer})
	}
	b.mu.Unlock()
	return out
}

// SendConnectRequest broadcasts a single CONNECT_REQUEST datagram.
func SendConnectRequest(port int, req protocol.ConnectRequest, extra ...string) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return fmt.Errorf("discovery: open socket: %w", err)
	}
	defer conn.Close()

	targets := []*net.UDPAddr{{IP: net.IPv4bcast, Port: port}}
	for _, addr := range extra {
		udpAddr, err := net.ResolveUDPAddr("udp4", addr)
		if err != nil {
			return fmt.Errorf("invalid peer address %s: %w", addr, err)
		}
		targets = append(targets, udpAddr)
	}

	data := req.Encode()
	var firstErr error
	sent := 0
	for _, dst := range targets {
		if _, err := conn.WriteToUDP(data, dst); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sent++
	}
	if sent == 0 && firstErr != nil {
		return fmt.Errorf("discovery: send connect request: %w", firstErr)
	}
	return nil
}
