// Package handshake authenticates a fresh TCP connection with the shared
// PIN before any session traffic flows.
//
// The controller writes one record "pin;identity;displayName" and waits for
// PIN_OK or PIN_FAIL. The target compares the PIN with the active one,
// records the identity in the pairing store on success, and closes the
// connection right after PIN_FAIL.
package handshake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/06eren/Pc-Mobil-Bond/internal/observability"
	"github.com/06eren/Pc-Mobil-Bond/internal/pairing"
	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
)

const (
	// DialTimeout bounds the TCP connect
	DialTimeout = 5 * time.Second
	// ReadTimeout bounds waiting for the hello or its answer
	ReadTimeout = 5 * time.Second

	maxRecordSize = 4096
)

// Identity is how a controller introduces itself.
type Identity struct {
	ID          string
	DisplayName string
}

// Client performs the controller side of the handshake.
type Client struct {
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

// Dial connects to addr and authenticates with pin using the default timeouts.
func Dial(ctx context.Context, addr, pin string, self Identity) (net.Conn, error) {
	return (&Client{}).Dial(ctx, addr, pin, self)
}

// Dial connects to addr and authenticates. On success the returned conn is
// positioned right after PIN_OK. Timeouts wrap protocol.ErrTimeout, a refusal
// wraps protocol.ErrRejected.
func (c *Client) Dial(ctx context.Context, addr, pin string, self Identity) (net.Conn, error) {
	dialTimeout := orDefault(c.DialTimeout, DialTimeout)
	readTimeout := orDefault(c.ReadTimeout, ReadTimeout)

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		observability.RecordHandshake("client", resultFor(err))
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: connect %s: %v", protocol.ErrTimeout, addr, err)
		}
		return nil, fmt.Errorf("handshake: connect %s: %w", addr, err)
	}

	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	hello := protocol.Hello{PIN: pin, Identity: self.ID, DisplayName: self.DisplayName}
	conn.SetWriteDeadline(time.Now().Add(readTimeout))
	if _, err := conn.Write(hello.Encode()); err != nil {
		conn.Close()
		observability.RecordHandshake("client", resultFor(err))
		return nil, wrapIO("send hello", err)
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		conn.Close()
		observability.RecordHandshake("client", resultFor(err))
		return nil, wrapIO("read answer", err)
	}
	answer := string(buf[:n])
	if answer != protocol.PinOK {
		conn.Close()
		observability.RecordHandshake("client", "rejected")
		return nil, fmt.Errorf("%w: peer answered %q", protocol.ErrRejected, answer)
	}

	conn.SetDeadline(time.Time{})
	observability.RecordHandshake("client", "accepted")
	log.Info().Str("component", "handshake").Str("addr", addr).Msg("pin accepted")
	return conn, nil
}

// Negotiator performs the target side of the handshake.
type Negotiator struct {
	pin         *PIN
	store       pairing.Store
	ReadTimeout time.Duration
}

// NewNegotiator checks hellos against pin and records peers in store.
func NewNegotiator(pin *PIN, store pairing.Store) *Negotiator {
	return &Negotiator{pin: pin, store: store, ReadTimeout: ReadTimeout}
}

// Accept runs the handshake on a freshly accepted conn. On success conn is
// left open for the session and the peer is returned. On any failure conn
// is closed before returning.
func (n *Negotiator) Accept(ctx context.Context, conn net.Conn) (pairing.Device, error) {
	logger := log.With().Str("component", "handshake").Stringer("remote", conn.RemoteAddr()).Logger()

	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	conn.SetReadDeadline(time.Now().Add(orDefault(n.ReadTimeout, ReadTimeout)))
	buf := make([]byte, maxRecordSize)
	read, err := conn.Read(buf)
	if err != nil {
		conn.Close()
		observability.RecordHandshake("server", resultFor(err))
		logger.Warn().Err(err).Msg("no hello received")
		return pairing.Device{}, wrapIO("read hello", err)
	}

	hello, err := protocol.ParseHello(string(buf[:read]))
	if err != nil {
		conn.Close()
		observability.RecordHandshake("server", "malformed")
		logger.Warn().Err(err).Msg("invalid hello")
		return pairing.Device{}, err
	}

	conn.SetWriteDeadline(time.Now().Add(orDefault(n.ReadTimeout, ReadTimeout)))
	if reason := n.refusal(hello); reason != "" {
		logger.Warn().Str("identity", hello.Identity).Msg(reason + ", rejecting")
		if _, err := conn.Write([]byte(protocol.PinFail)); err != nil {
			logger.Debug().Err(err).Msg("failed to send reject")
		}
		conn.Close()
		observability.RecordHandshake("server", "rejected")
		return pairing.Device{}, fmt.Errorf("%w: %s (identity %q)", protocol.ErrRejected, reason, hello.Identity)
	}

	peer, created, err := n.store.Pair(hello.Identity, hello.DisplayName)
	if err != nil {
		conn.Close()
		observability.RecordHandshake("server", "error")
		logger.Error().Err(err).Str("identity", hello.Identity).Msg("failed to record pairing")
		return pairing.Device{}, fmt.Errorf("handshake: pair %s: %w", hello.Identity, err)
	}

	if _, err := conn.Write([]byte(protocol.PinOK)); err != nil {
		conn.Close()
		observability.RecordHandshake("server", resultFor(err))
		return pairing.Device{}, wrapIO("send accept", err)
	}
	conn.SetDeadline(time.Time{})

	observability.RecordHandshake("server", "accepted")
	logger.Info().
		Str("identity", peer.Identity).
		Str("name", hello.DisplayName).
		Bool("new_pairing", created).
		Msg("client authenticated")
	return pairing.Device{Identity: peer.Identity, DisplayName: hello.DisplayName, PairedAt: peer.PairedAt}, nil
}

// refusal returns why hello cannot be accepted, or "" when it can. An
// identity is required because it is the pairing key.
func (n *Negotiator) refusal(hello protocol.Hello) string {
	switch {
	case !n.pin.Matches(hello.PIN):
		return "wrong pin"
	case strings.TrimSpace(hello.Identity) == "":
		return "empty identity"
	}
	return ""
}

func wrapIO(op string, err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%w: %s: %v", protocol.ErrTimeout, op, err)
	}
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("handshake: %s: connection closed by peer: %w", op, err)
	}
	return fmt.Errorf("handshake: %s: %w", op, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func resultFor(err error) string {
	if isTimeout(err) {
		return "timeout"
	}
	return "error"
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
