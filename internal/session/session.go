// Package session runs the duplex stream that follows a successful
// handshake. Short text control records and raw binary payloads share one
// TCP connection, so every chunk read from the socket is routed by the
// current Mode: as text while idle, as payload while receiving.
//
// A reader goroutine only reads. One owning goroutine (Run) interprets the
// chunks, holds all transfer state and is the only code that changes the
// mode. Outbound offers are handed to it over a channel and payloads are
// streamed under the write lock so control records never land inside them.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/06eren/Pc-Mobil-Bond/internal/observability"
	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
)

const (
	// AckTimeout is how long an outbound offer waits for FILE_OK_TO_SEND.
	AckTimeout = 15 * time.Second
	// ReadBufferSize is the default size of a single socket read.
	ReadBufferSize = 64 * 1024

	payloadChunk = 64 * 1024
)

// OutboundTransfer describes a payload to offer to the peer.
type OutboundTransfer struct {
	Name   string
	Size   int64
	Source io.Reader
	// Progress, if set, is called from the streaming goroutine after each write.
	Progress func(sent, total int64)
}

type offer struct {
	ctx    context.Context
	out    OutboundTransfer
	result chan error
}

type inboundTransfer struct {
	file        protocol.FileStart
	sink        Sink
	transferred int64
	err         error
}

type streamResult struct {
	sent int64
	err  error
}

// Session is one authenticated connection.
type Session struct {
	conn    net.Conn
	handler Handler
	logger  zerolog.Logger

	ackTimeout time.Duration
	bufSize    int

	wsem          chan struct{}
	offers        chan *offer
	streamDone    chan streamResult
	done          chan struct{}
	closeOnce     sync.Once
	closedLocally atomic.Bool
	mode          atomic.Int32

	// owned by Run
	in       *inboundTransfer
	out      *offer
	deferred *offer
	ackTimer *time.Timer
	ackC     <-chan time.Time
	fatal    error
}

// New wraps an authenticated conn. Call Run to start processing.
func New(conn net.Conn, handler Handler) *Session {
	s := &Session{
		conn:       conn,
		handler:    handler,
		ackTimeout: AckTimeout,
		bufSize:    ReadBufferSize,
		wsem:       make(chan struct{}, 1),
		offers:     make(chan *offer),
		streamDone: make(chan streamResult, 1),
		done:       make(chan struct{}),
	}
	s.SetPeer(conn.RemoteAddr().String())
	return s
}

// SetPeer sets the label used in log lines. Call before Run.
func (s *Session) SetPeer(name string) {
	s.logger = log.With().Str("component", "session").Str("peer", name).Logger()
}

// SetAckTimeout overrides AckTimeout. Call before Run.
func (s *Session) SetAckTimeout(d time.Duration) {
	if d > 0 {
		s.ackTimeout = d
	}
}

// Mode returns a snapshot of the current mode.
func (s *Session) Mode() Mode {
	return Mode(s.mode.Load())
}

// Done is closed once Run has finished cleaning up.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close shuts the connection down; Run returns nil afterwards.
func (s *Session) Close() error {
	s.closedLocally.Store(true)
	return s.closeConn()
}

func (s *Session) closeConn() error {
	var err error
	s.closeOnce.Do(func() { err = s.conn.Close() })
	return err
}

// Send writes one control record. It is safe from any goroutine and waits
// while a payload is being streamed.
func (s *Session) Send(ctx context.Context, record []byte) error {
	if err := s.lockWrite(ctx); err != nil {
		return err
	}
	defer s.unlockWrite()
	return s.write(record)
}

// Offer announces a file to the peer and blocks until the transfer has
// finished, was cancelled by the peer (ErrTransferCancelled), was never
// acknowledged (ErrAckTimeout) or the session ended (ErrClosed). Another
// outbound transfer in flight yields ErrTransferBusy. An offer made while a
// payload is being received starts once that payload is complete.
//
// Cancelling ctx before the acknowledgment withdraws the offer. Cancelling
// it mid-stream closes the session, since the peer can no longer tell
// where the payload ends.
func (s *Session) Offer(ctx context.Context, out OutboundTransfer) error {
	if out.Size < 0 {
		return fmt.Errorf("session: negative transfer size %d", out.Size)
	}
	if out.Source == nil && out.Size > 0 {
		return errors.New("session: transfer without source")
	}

	off := &offer{ctx: ctx, out: out, result: make(chan error, 1)}
	select {
	case s.offers <- off:
	case <-s.done:
		return protocol.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-off.result
}

// Run processes the connection until the peer disconnects, a socket error
// occurs, ctx is cancelled or Close is called. A peer hang-up or local
// close returns nil.
func (s *Session) Run(ctx context.Context) error {
	observability.SessionOpened()
	defer observability.SessionClosed()

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	go s.readLoop(chunks, readErr)

	s.logger.Debug().Msg("session started")
	for {
		select {
		case chunk := <-chunks:
			s.handleChunk(chunk)
		case off := <-s.offers:
			s.startOffer(off)
		case <-s.ackC:
			s.ackExpired()
		case res := <-s.streamDone:
			s.finishStream(res)
		case <-s.awaitingCtxDone():
			s.withdraw()
		case <-s.deferredCtxDone():
			s.deferred.result <- s.deferred.ctx.Err()
			s.deferred = nil
		case err := <-readErr:
			return s.shutdown(err)
		}
	}
}

func (s *Session) readLoop(chunks chan<- []byte, errc chan<- error) {
	buf := make([]byte, s.bufSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			chunks <- chunk
		}
		if err != nil {
			errc <- err
			return
		}
		if n == 0 {
			errc <- io.EOF
			return
		}
	}
}

func (s *Session) handleChunk(chunk []byte) {
	for len(chunk) > 0 {
		if s.Mode() == ModeReceiving {
			chunk = s.consume(chunk)
			continue
		}
		chunk = s.dispatchRecords(chunk)
	}
}

// dispatchRecords handles the text records in chunk until one of them
// starts an inbound payload, and returns the bytes that follow it.
func (s *Session) dispatchRecords(chunk []byte) []byte {
	offset := 0
	for _, record := range protocol.SplitRecords(string(chunk)) {
		offset += len(record)
		s.dispatch(record)
		if s.Mode() == ModeReceiving {
			return chunk[offset:]
		}
	}
	return nil
}

func (s *Session) dispatch(text string) {
	ctl, err := protocol.ParseControl(text)
	if err != nil {
		s.logger.Warn().Err(err).Str("record", clip(text)).Msg("dropping malformed record")
		return
	}

	switch ctl.Kind {
	case protocol.KindCommand:
		s.handler.OnCommand(ctl.Command)
	case protocol.KindPerfUpdate:
		s.handler.OnPerfUpdate(ctl.Perf)
	case protocol.KindFileStart:
		s.beginInbound(ctl.File)
	case protocol.KindFileOK:
		s.ackReceived()
	case protocol.KindFileCancel:
		s.cancelReceived()
	default:
		s.logger.Debug().Str("record", clip(text)).Msg("ignoring unrecognised record")
	}
}

func (s *Session) beginInbound(fs protocol.FileStart) {
	if mode := s.Mode(); mode != ModeIdle {
		s.logger.Warn().Str("file", fs.Name).Stringer("mode", mode).Msg("file offered while busy, declining")
		s.writeControl([]byte(protocol.FileCancel))
		observability.RecordTransfer(string(Inbound), "busy", 0)
		return
	}

	sink, err := s.handler.OpenSink(fs)
	if err != nil || sink == nil {
		s.logger.Info().Err(err).Str("file", fs.Name).Int64("size", fs.Size).Msg("declining file")
		s.writeControl([]byte(protocol.FileCancel))
		observability.RecordTransfer(string(Inbound), "declined", 0)
		return
	}

	if err := s.writeControl([]byte(protocol.FileOK)); err != nil {
		sink.Abort()
		return
	}
	s.in = &inboundTransfer{file: fs, sink: sink}
	s.setMode(ModeReceiving)
	s.logger.Info().Str("file", fs.Name).Int64("size", fs.Size).Msg("receiving file")

	if fs.Size == 0 {
		s.finishInbound()
	}
}

// consume writes at most the outstanding payload bytes of chunk to the sink
// and returns whatever follows the payload.
func (s *Session) consume(chunk []byte) []byte {
	in := s.in
	n := int64(len(chunk))
	if remaining := in.file.Size - in.transferred; n > remaining {
		n = remaining
	}

	if in.err == nil {
		if _, err := in.sink.Write(chunk[:n]); err != nil {
			// keep counting so the stream stays aligned with the peer
			in.err = fmt.Errorf("session: write %s: %w", in.file.Name, err)
			in.sink.Abort()
			s.logger.Error().Err(err).Str("file", in.file.Name).Msg("sink failed, discarding rest of payload")
		}
	}
	in.transferred += n

	if in.transferred == in.file.Size {
		s.finishInbound()
	}
	return chunk[n:]
}

func (s *Session) finishInbound() {
	in := s.in
	s.in = nil
	s.setMode(ModeIdle)

	err := in.err
	if err == nil {
		if cerr := in.sink.Close(); cerr != nil {
			err = fmt.Errorf("session: finish %s: %w", in.file.Name, cerr)
			in.sink.Abort()
		}
	}
	s.report(TransferResult{
		Direction:   Inbound,
		Name:        in.file.Name,
		Size:        in.file.Size,
		Transferred: in.transferred,
		Err:         err,
	})

	if s.deferred != nil {
		off := s.deferred
		s.deferred = nil
		s.startOffer(off)
	}
}

func (s *Session) startOffer(off *offer) {
	if err := off.ctx.Err(); err != nil {
		off.result <- err
		return
	}
	if s.out != nil || s.deferred != nil {
		off.result <- protocol.ErrTransferBusy
		return
	}
	if s.Mode() == ModeReceiving {
		s.deferred = off
		return
	}

	start := protocol.FileStart{Name: off.out.Name, Size: off.out.Size}
	if err := s.writeControl(start.Encode()); err != nil {
		off.result <- err
		return
	}
	s.out = off
	s.setMode(ModeAwaitingAck)
	s.ackTimer = time.NewTimer(s.ackTimeout)
	s.ackC = s.ackTimer.C
	s.logger.Info().Str("file", off.out.Name).Int64("size", off.out.Size).Msg("offered file")
}

func (s *Session) ackReceived() {
	if s.Mode() != ModeAwaitingAck {
		s.logger.Debug().Msg("acknowledgment without a pending offer")
		return
	}
	s.stopAckTimer()
	s.setMode(ModeSendPending)
	go func(off *offer) {
		sent, err := s.writePayload(off)
		s.streamDone <- streamResult{sent: sent, err: err}
	}(s.out)
}

func (s *Session) cancelReceived() {
	if s.Mode() != ModeAwaitingAck {
		s.logger.Debug().Msg("cancel without a pending offer")
		return
	}
	s.stopAckTimer()
	s.logger.Info().Str("file", s.out.out.Name).Msg("peer declined file")
	s.finishOutbound(0, protocol.ErrTransferCancelled)
}

func (s *Session) ackExpired() {
	s.ackTimer = nil
	s.ackC = nil
	if s.Mode() != ModeAwaitingAck {
		return
	}
	s.logger.Warn().Str("file", s.out.out.Name).Dur("after", s.ackTimeout).Msg("offer not acknowledged")
	s.finishOutbound(0, protocol.ErrAckTimeout)
}

func (s *Session) withdraw() {
	s.stopAckTimer()
	s.finishOutbound(0, s.out.ctx.Err())
}

func (s *Session) finishStream(res streamResult) {
	size := s.out.out.Size
	s.finishOutbound(res.sent, res.err)
	if res.err != nil {
		s.logger.Error().Err(res.err).Int64("sent", res.sent).Int64("size", size).Msg("payload interrupted, closing session")
		s.fatal = res.err
		s.closeConn()
	}
}

func (s *Session) finishOutbound(sent int64, err error) {
	off := s.out
	s.out = nil
	s.setMode(ModeIdle)
	s.report(TransferResult{
		Direction:   Outbound,
		Name:        off.out.Name,
		Size:        off.out.Size,
		Transferred: sent,
		Err:         err,
	})
	off.result <- err
}

func (s *Session) writePayload(off *offer) (int64, error) {
	total := off.out.Size
	if total == 0 {
		return 0, nil
	}
	if err := s.lockWrite(off.ctx); err != nil {
		return 0, err
	}
	defer s.unlockWrite()

	buf := make([]byte, min(total, payloadChunk))
	var sent int64
	for sent < total {
		if err := off.ctx.Err(); err != nil {
			return sent, err
		}
		want := min(total-sent, int64(len(buf)))
		n, err := io.ReadFull(off.out.Source, buf[:want])
		if n > 0 {
			if _, werr := s.conn.Write(buf[:n]); werr != nil {
				return sent, fmt.Errorf("session: write payload: %w", werr)
			}
			sent += int64(n)
			if off.out.Progress != nil {
				off.out.Progress(sent, total)
			}
		}
		if err != nil {
			return sent, fmt.Errorf("session: source ended after %d of %d bytes: %w", sent, total, err)
		}
	}
	return sent, nil
}

func (s *Session) shutdown(cause error) error {
	local := s.closedLocally.Load()
	if s.fatal != nil {
		cause = s.fatal
	}
	s.closeConn()
	s.stopAckTimer()

	closed := fmt.Errorf("%w: %v", protocol.ErrClosed, cause)
	if in := s.in; in != nil {
		s.in = nil
		if in.err == nil {
			in.sink.Abort()
		}
		s.report(TransferResult{
			Direction:   Inbound,
			Name:        in.file.Name,
			Size:        in.file.Size,
			Transferred: in.transferred,
			Err:         closed,
		})
	}
	if s.out != nil {
		var sent int64
		if s.Mode() == ModeSendPending {
			sent = (<-s.streamDone).sent
		}
		s.finishOutbound(sent, closed)
	}
	if s.deferred != nil {
		s.deferred.result <- closed
		s.deferred = nil
	}
	s.setMode(ModeIdle)
	close(s.done)

	s.handler.OnDisconnect(cause)
	if local || errors.Is(cause, io.EOF) {
		s.logger.Info().Msg("session closed")
		return nil
	}
	s.logger.Warn().Err(cause).Msg("session ended")
	return cause
}

func (s *Session) report(res TransferResult) {
	observability.RecordTransfer(string(res.Direction), resultLabel(res.Err), res.Transferred)
	ev := s.logger.Info()
	if res.Err != nil {
		ev = s.logger.Warn().Err(res.Err)
	}
	ev.Str("direction", string(res.Direction)).
		Str("file", res.Name).
		Int64("bytes", res.Transferred).
		Int64("size", res.Size).
		Msg("transfer finished")
	s.handler.OnTransferDone(res)
}

func (s *Session) writeControl(record []byte) error {
	if err := s.lockWrite(context.Background()); err != nil {
		return err
	}
	defer s.unlockWrite()
	if err := s.write(record); err != nil {
		s.logger.Warn().Err(err).Msg("control write failed, closing")
		s.closeConn()
		return err
	}
	return nil
}

func (s *Session) write(b []byte) error {
	if _, err := s.conn.Write(b); err != nil {
		if s.closedLocally.Load() || errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("%w: %v", protocol.ErrClosed, err)
		}
		return fmt.Errorf("session: write: %w", err)
	}
	return nil
}

func (s *Session) lockWrite(ctx context.Context) error {
	select {
	case <-s.done:
		return protocol.ErrClosed
	default:
	}
	select {
	case s.wsem <- struct{}{}:
		return nil
	case <-s.done:
		return protocol.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) unlockWrite() {
	<-s.wsem
}

func (s *Session) setMode(m Mode) {
	s.mode.Store(int32(m))
}

func (s *Session) stopAckTimer() {
	if s.ackTimer != nil {
		s.ackTimer.Stop()
	}
	s.ackTimer = nil
	s.ackC = nil
}

func (s *Session) awaitingCtxDone() <-chan struct{} {
	if s.out == nil || s.Mode() != ModeAwaitingAck {
		return nil
	}
	return s.out.ctx.Done()
}

func (s *Session) deferredCtxDone() <-chan struct{} {
	if s.deferred == nil {
		return nil
	}
	return s.deferred.ctx.Done()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, protocol.ErrTransferCancelled):
		return "cancelled"
	case errors.Is(err, protocol.ErrTimeout):
		return "timeout"
	case errors.Is(err, protocol.ErrClosed):
		return "closed"
	default:
		return "error"
	}
}

func clip(s string) string {
	const limit = 64
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
