package target

import (
	"context"
	"net"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/06eren/Pc-Mobil-Bond/internal/pairing"
	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
	"github.com/06eren/Pc-Mobil-Bond/internal/session"
	"github.com/06eren/Pc-Mobil-Bond/internal/telemetry"
	"github.com/06eren/Pc-Mobil-Bond/internal/transfer"
)

type peerConnKey struct{}

// peerConn is one authenticated controller.
type peerConn struct {
	t      *Target
	dev    pairing.Device
	sess   *session.Session
	coord  *transfer.Coordinator
	logger zerolog.Logger

	// ctx lives as long as the session; commands run under it
	ctx context.Context
}

func newPeerConn(t *Target, dev pairing.Device, conn net.Conn) (*peerConn, error) {
	var sinks *transfer.DirSinks
	if t.cfg.DownloadDir != "" {
		var err error
		if sinks, err = transfer.NewDirSinks(t.cfg.DownloadDir); err != nil {
			return nil, err
		}
	}

	pc := &peerConn{
		t:      t,
		dev:    dev,
		coord:  transfer.NewCoordinator(sinks, t.cfg.Events.Transfer),
		logger: log.With().Str("component", "target").Str("peer", dev.DisplayName).Logger(),
	}
	pc.sess = session.New(conn, pc)
	pc.sess.SetPeer(dev.DisplayName)
	pc.coord.Bind(pc.sess)
	return pc, nil
}

func (pc *peerConn) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	pc.ctx = context.WithValue(ctx, peerConnKey{}, pc)

	pusher := telemetry.NewPusher(pc.sess, pc.t.cfg.Telemetry)
	pusher.SetInterval(pc.t.cfg.TelemetryInterval)
	pushed := make(chan struct{})
	go func() {
		defer close(pushed)
		if err := pusher.Run(ctx); err != nil {
			pc.logger.Warn().Err(err).Msg("telemetry stopped")
		}
	}()

	err := pc.sess.Run(ctx)
	cancel()
	<-pushed
	return err
}

func (pc *peerConn) OnCommand(cmd protocol.Command) {
	go func() {
		if err := pc.t.cfg.Executor.Execute(pc.ctx, cmd); err != nil {
			pc.logger.Warn().Err(err).Str("command", cmd.String()).Msg("command failed")
		}
	}()
}

// OnPerfUpdate ignores telemetry; only targets produce it.
func (pc *peerConn) OnPerfUpdate(protocol.PerfUpdate) {}

func (pc *peerConn) OpenSink(fs protocol.FileStart) (session.Sink, error) {
	return pc.coord.OpenSink(fs)
}

func (pc *peerConn) OnTransferDone(res session.TransferResult) {
	ev := pc.logger.Info()
	if res.Err != nil {
		ev = pc.logger.Warn().Err(res.Err)
	}
	ev.Str("direction", string(res.Direction)).
		Str("file", res.Name).
		Int64("bytes", res.Transferred).
		Msg("transfer finished")
}

func (pc *peerConn) OnDisconnect(err error) {
	pc.logger.Info().AnErr("cause", err).Msg("controller disconnected")
}
