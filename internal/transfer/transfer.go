// Package transfer drives file transfers over a session: outbound offers
// from paths, byte slices or readers, and inbound files written into a
// download directory.
package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
	"github.com/06eren/Pc-Mobil-Bond/internal/session"
)

const defaultRetention = 10 * time.Minute

// Offerer is the part of a session the coordinator needs.
type Offerer interface {
	Offer(ctx context.Context, out session.OutboundTransfer) error
}

// Events are optional notifications. They may be called from session
// goroutines and must not block for long.
type Events struct {
	Progress  func(Record)
	Completed func(Record)
	Failed    func(Record, error)
}

func (e Events) progress(r Record) {
	if e.Progress != nil {
		e.Progress(r)
	}
}

func (e Events) completed(r Record) {
	if e.Completed != nil {
		e.Completed(r)
	}
}

func (e Events) failed(r Record, err error) {
	if e.Failed != nil {
		e.Failed(r, err)
	}
}

// Coordinator couples one session with a sink directory and a ledger of
// the transfers in both directions.
type Coordinator struct {
	offerer Offerer
	sinks   *DirSinks
	ledger  *Ledger
	events  Events
}

// NewCoordinator returns a coordinator. sinks may be nil to decline every
// inbound file. Bind must be called before offering.
func NewCoordinator(sinks *DirSinks, events Events) *Coordinator {
	c := &Coordinator{
		sinks:  sinks,
		ledger: NewLedger(defaultRetention),
		events: events,
	}
	if sinks != nil {
		sinks.ledger = c.ledger
		sinks.events = events
	}
	return c
}

// Bind attaches the session used for outbound offers.
func (c *Coordinator) Bind(o Offerer) {
	c.offerer = o
}

// OpenSink satisfies the session handler contract for inbound files.
func (c *Coordinator) OpenSink(fs protocol.FileStart) (session.Sink, error) {
	if c.sinks == nil {
		return nil, session.ErrNoSink
	}
	return c.sinks.Open(fs)
}

// Ledger exposes the transfer records.
func (c *Coordinator) Ledger() *Ledger {
	return c.ledger
}

// OfferFile sends the file at path under its base name.
func (c *Coordinator) OfferFile(ctx context.Context, path string) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Record{}, fmt.Errorf("transfer: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Record{}, fmt.Errorf("transfer: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Record{}, fmt.Errorf("transfer: %s is a directory", path)
	}
	return c.offer(ctx, filepath.Base(path), path, f, info.Size())
}

// OfferBytes sends data as a file called name.
func (c *Coordinator) OfferBytes(ctx context.Context, name string, data []byte) (Record, error) {
	return c.offer(ctx, name, "", bytes.NewReader(data), int64(len(data)))
}

// Offer sends exactly size bytes read from r as a file called name.
func (c *Coordinator) Offer(ctx context.Context, name string, r io.Reader, size int64) (Record, error) {
	return c.offer(ctx, name, "", r, size)
}

func (c *Coordinator) offer(ctx context.Context, name, path string, r io.Reader, size int64) (Record, error) {
	if c.offerer == nil {
		return Record{}, errors.New("transfer: no session bound")
	}
	name = SafeName(name)

	rec := c.ledger.Begin(session.Outbound, name, size)
	if path != "" {
		c.ledger.SetPath(rec.ID, path)
	}

	err := c.offerer.Offer(ctx, session.OutboundTransfer{
		Name:   name,
		Size:   size,
		Source: r,
		Progress: func(sent, _ int64) {
			c.events.progress(c.ledger.Update(rec.ID, sent))
		},
	})

	rec = c.ledger.Finish(rec.ID, err)
	if err != nil {
		c.events.failed(rec, err)
		return rec, err
	}
	if rec.Transferred == 0 && size > 0 {
		rec = c.ledger.Update(rec.ID, size)
	}
	c.events.completed(rec)
	return rec, nil
}
