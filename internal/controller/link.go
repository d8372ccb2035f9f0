package controller

import (
	"context"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/06eren/Pc-Mobil-Bond/internal/commands"
	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
	"github.com/06eren/Pc-Mobil-Bond/internal/session"
	"github.com/06eren/Pc-Mobil-Bond/internal/telemetry"
	"github.com/06eren/Pc-Mobil-Bond/internal/transfer"
)

// Peer identifies a connected target.
type Peer struct {
	Address string
	Name    string
	ID      string
}

// Link is one authenticated connection to a target.
type Link struct {
	c      *Controller
	peer   Peer
	sess   *session.Session
	coord  *transfer.Coordinator
	logger zerolog.Logger

	done chan struct{}
	mu   sync.Mutex
	err  error
}

func newLink(c *Controller, peer Peer, conn net.Conn) (*Link, error) {
	var sinks *transfer.DirSinks
	if c.cfg.DownloadDir != "" {
		var err error
		if sinks, err = transfer.NewDirSinks(c.cfg.DownloadDir); err != nil {
			return nil, err
		}
	}

	l := &Link{
		c:      c,
		peer:   peer,
		coord:  transfer.NewCoordinator(sinks, c.cfg.Events.Transfer),
		logger: c.logger.With().Str("peer", peer.Name).Logger(),
		done:   make(chan struct{}),
	}
	l.sess = session.New(conn, l)
	l.sess.SetPeer(peer.Name)
	l.coord.Bind(l.sess)
	return l, nil
}

func (l *Link) run(ctx context.Context) {
	err := l.sess.Run(ctx)
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
	close(l.done)
	if l.c.cfg.Events.Closed != nil {
		l.c.cfg.Events.Closed(l.peer.Name, err)
	}
}

// Peer describes the target.
func (l *Link) Peer() Peer {
	return l.peer
}

// Command sends CMD;name[:args]. There is no reply on the wire.
func (l *Link) Command(ctx context.Context, name string, args ...string) error {
	return l.Send(ctx, protocol.Command{Name: name, Args: args})
}

// Send writes a parsed command.
func (l *Link) Send(ctx context.Context, cmd protocol.Command) error {
	if err := l.sess.Send(ctx, cmd.Encode()); err != nil {
		return err
	}
	l.logger.Debug().Str("command", cmd.String()).Msg("command sent")
	return nil
}

// Screenshot asks the target for a screenshot. It arrives later as an
// inbound transfer reported through Events.Transfer.
func (l *Link) Screenshot(ctx context.Context) error {
	return l.Command(ctx, commands.Screenshot)
}

// SendFile offers the file at path and blocks until it has been streamed
// or refused.
func (l *Link) SendFile(ctx context.Context, path string) (transfer.Record, error) {
	return l.coord.OfferFile(ctx, path)
}

// Transfers lists recent transfers in both directions.
func (l *Link) Transfers() []transfer.Record {
	return l.coord.Ledger().List()
}

// Latest returns the newest telemetry sample from this target.
func (l *Link) Latest() (telemetry.Sample, bool) {
	return l.c.history.Latest(l.peer.ID)
}

// Mode reports the session mode.
func (l *Link) Mode() session.Mode {
	return l.sess.Mode()
}

// Done is closed once the connection has ended and Err is final.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// Err returns why the link ended; nil while it is up or after a clean close.
func (l *Link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close disconnects.
func (l *Link) Close() error {
	return l.sess.Close()
}

func (l *Link) OnCommand(cmd protocol.Command) {
	l.logger.Debug().Str("command", cmd.String()).Msg("ignoring command from target")
}

func (l *Link) OnPerfUpdate(p protocol.PerfUpdate) {
	s := l.c.history.Add(l.peer.ID, l.peer.Name, p)
	if l.c.cfg.Events.Perf != nil {
		l.c.cfg.Events.Perf(l.peer.Name, s)
	}
}

func (l *Link) OpenSink(fs protocol.FileStart) (session.Sink, error) {
	return l.coord.OpenSink(fs)
}

func (l *Link) OnTransferDone(res session.TransferResult) {
	ev := l.logger.Info()
	if res.Err != nil {
		ev = l.logger.Warn().Err(res.Err)
	}
	ev.Str("direction", string(res.Direction)).
		Str("file", res.Name).
		Int64("bytes", res.Transferred).
		Msg("transfer finished")
}

func (l *Link) OnDisconnect(err error) {
	l.logger.Info().AnErr("cause", err).Msg("target disconnected")
}
