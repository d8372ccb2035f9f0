package session

import (
	"errors"
	"io"

	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
)

// Sink receives one inbound payload. Close is called once the declared
// size has been written; Abort discards a partial payload.
type Sink interface {
	io.Writer
	Close() error
	Abort() error
}

// TransferResult reports how a transfer ended.
type TransferResult struct {
	Direction   Direction
	Name        string
	Size        int64
	Transferred int64
	// Err is nil on success.
	Err error
}

// Handler receives everything the peer sends. Methods run on the session's
// owning goroutine, so they must not block on Session.Offer; start a
// goroutine for that.
type Handler interface {
	OnCommand(cmd protocol.Command)
	OnPerfUpdate(p protocol.PerfUpdate)
	// OpenSink is asked for a destination when the peer offers a file.
	// Returning an error declines the transfer with FILE_CANCEL.
	OpenSink(fs protocol.FileStart) (Sink, error)
	OnTransferDone(res TransferResult)
	OnDisconnect(err error)
}

// ErrNoSink declines inbound transfers when no sink factory is configured.
var ErrNoSink = errors.New("session: inbound transfers not accepted")

// HandlerFuncs adapts plain functions to Handler. Nil fields are no-ops,
// and a nil Open declines every inbound transfer.
type HandlerFuncs struct {
	Command    func(protocol.Command)
	Perf       func(protocol.PerfUpdate)
	Open       func(protocol.FileStart) (Sink, error)
	Done       func(TransferResult)
	Disconnect func(error)
}

func (f HandlerFuncs) OnCommand(cmd protocol.Command) {
	if f.Command != nil {
		f.Command(cmd)
	}
}

func (f HandlerFuncs) OnPerfUpdate(p protocol.PerfUpdate) {
	if f.Perf != nil {
		f.Perf(p)
	}
}

func (f HandlerFuncs) OpenSink(fs protocol.FileStart) (Sink, error) {
	if f.Open == nil {
		return nil, ErrNoSink
	}
	return f.Open(fs)
}

func (f HandlerFuncs) OnTransferDone(res TransferResult) {
	if f.Done != nil {
		f.Done(res)
	}
}

func (f HandlerFuncs) OnDisconnect(err error) {
	if f.Disconnect != nil {
		f.Disconnect(err)
	}
}
