// Package discovery implements LAN presence: targets broadcast
// DEVICE_ANNOUNCE datagrams, controllers listen for them and for
// CONNECT_REQUEST datagrams on the same port.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/ipv4"

	"github.com/06eren/Pc-Mobil-Bond/internal/observability"
	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
)

const (
	// DefaultPort is the UDP port for discovery datagrams
	DefaultPort = protocol.DiscoveryPort
	// RequestInterval is the minimum spacing of connection requests per origin
	RequestInterval = 2 * time.Second
)

// Callback is notified about discovery events. Calls happen on the
// listener goroutine (OnDeviceLeft on the expiry goroutine).
type Callback interface {
	OnDeviceDiscovered(dev Device)
	OnDeviceLeft(address string)
	OnConnectRequest(req protocol.ConnectRequest, from *net.UDPAddr)
}

// CallbackFuncs adapts optional functions to Callback.
type CallbackFuncs struct {
	Discovered func(dev Device)
	Left       func(address string)
	Request    func(req protocol.ConnectRequest, from *net.UDPAddr)
}

func (f CallbackFuncs) OnDeviceDiscovered(dev Device) {
	if f.Discovered != nil {
		f.Discovered(dev)
	}
}

func (f CallbackFuncs) OnDeviceLeft(address string) {
	if f.Left != nil {
		f.Left(address)
	}
}

func (f CallbackFuncs) OnConnectRequest(req protocol.ConnectRequest, from *net.UDPAddr) {
	if f.Request != nil {
		f.Request(req, from)
	}
}

// Listener receives discovery datagrams and maintains the discovered set.
type Listener struct {
	port     int
	selfID   string
	callback Callback
	devices  *DeviceSet
	throttle *requestThrottle
	logger   zerolog.Logger
}

// NewListener creates a listener for port. selfID filters our own
// announcements; callback may be nil.
func NewListener(port int, selfID string, callback Callback) *Listener {
	if callback == nil {
		callback = CallbackFuncs{}
	}
	return &Listener{
		port:     port,
		selfID:   selfID,
		callback: callback,
		devices:  NewDeviceSet(MaxDevices, StaleTimeout, callback.OnDeviceLeft),
		throttle: newRequestThrottle(RequestInterval, 1),
		logger:   log.With().Str("component", "discovery").Logger(),
	}
}

// Devices returns the discovered set.
func (l *Listener) Devices() *DeviceSet {
	return l.devices
}

// Run binds the discovery port and serves until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: l.port})
	if err != nil {
		return fmt.Errorf("discovery: bind UDP port %d: %w", l.port, err)
	}
	if err := conn.SetReadBuffer(protocol.MaxDatagramSize * 16); err != nil {
		l.logger.Debug().Err(err).Msg("failed to set read buffer")
	}
	return l.Serve(ctx, conn)
}

// Serve runs the receive loop on conn, closing it when ctx is cancelled.
// A receive error ends the loop and is reported as a normal shutdown.
func (l *Listener) Serve(ctx context.Context, conn *net.UDPConn) error {
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetControlMessage(ipv4.FlagInterface, true); err != nil {
		l.logger.Debug().Err(err).Msg("interface control messages unavailable")
	}

	l.logger.Info().Str("addr", conn.LocalAddr().String()).Msg("presence listener started")

	buf := make([]byte, protocol.MaxDatagramSize)
	for {
		n, cm, src, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				l.logger.Warn().Err(err).Msg("receive failed, stopping listener")
			}
			l.logger.Info().Msg("presence listener stopped")
			return nil
		}
		from, _ := src.(*net.UDPAddr)
		ifIndex := 0
		if cm != nil {
			ifIndex = cm.IfIndex
		}
		l.handleDatagram(buf[:n], from, ifIndex)
	}
}

func (l *Listener) handleDatagram(data []byte, from *net.UDPAddr, ifIndex int) {
	dg, err := protocol.ParseDatagram(data)
	if err != nil {
		l.logger.Trace().Err(err).Stringer("from", from).Msg("dropped datagram")
		return
	}

	switch dg.Kind {
	case protocol.DatagramAnnounce:
		anno := dg.Announcement
		if l.selfID != "" && anno.OriginID == l.selfID {
			return
		}
		observability.RecordAnnounceReceived()
		dev := Device{Announcement: anno, SeenAt: time.Now()}
		if from != nil {
			dev.Source = from.IP.String()
		}
		if !l.devices.Add(dev) {
			return
		}
		l.logger.Info().
			Str("name", anno.DisplayName).
			Str("address", anno.Address).
			Int("if_index", ifIndex).
			Msg("found new device")
		l.callback.OnDeviceDiscovered(dev)

	case protocol.DatagramConnectRequest:
		req := dg.Request
		if l.selfID != "" && req.OriginID == l.selfID {
			return
		}
		if !l.throttle.Allow(req.OriginID) {
			l.logger.Debug().Str("origin", req.OriginID).Msg("connect request throttled")
			return
		}
		l.logger.Info().Str("origin", req.OriginID).Str("target", req.TargetID).Msg("connect request received")
		l.callback.OnConnectRequest(req, from)
	}
}

// GetPort returns the discovery port
func (l *Listener) GetPort() int {
	return l.port
}
