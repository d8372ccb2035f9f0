// Package telemetry produces the periodic PERF_UPDATE records a target
// pushes and keeps the history a controller receives.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
	"github.com/06eren/Pc-Mobil-Bond/internal/sysinfo"
)

// Interval is the default push period.
const Interval = 2 * time.Second

// Sender writes one record to the peer.
type Sender interface {
	Send(ctx context.Context, record []byte) error
}

// Source yields host readings.
type Source interface {
	Read(ctx context.Context) sysinfo.Reading
}

// Pusher sends a PERF_UPDATE every interval while its context lives.
type Pusher struct {
	sender   Sender
	source   Source
	interval time.Duration
}

// NewPusher returns a pusher with the default interval.
func NewPusher(sender Sender, source Source) *Pusher {
	return &Pusher{sender: sender, source: source, interval: Interval}
}

// SetInterval overrides Interval. Call before Run.
func (p *Pusher) SetInterval(d time.Duration) {
	if d > 0 {
		p.interval = d
	}
}

// Run pushes until ctx is done or the session closes, both of which return
// nil. Any other send failure is returned.
func (p *Pusher) Run(ctx context.Context) error {
	logger := log.With().Str("component", "telemetry").Logger()

	// Rate-based figures need a previous sample.
	p.source.Read(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		update := FromReading(p.source.Read(ctx))
		if err := p.sender.Send(ctx, update.Encode()); err != nil {
			if errors.Is(err, protocol.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("telemetry: push: %w", err)
		}
		logger.Trace().Float64("cpu", update.CPUPercent).Msg("perf update sent")
	}
}

// FromReading converts a reading to the wire form. Unavailable figures
// are sent as 0.
func FromReading(r sysinfo.Reading) protocol.PerfUpdate {
	return protocol.PerfUpdate{
		CPUPercent:  known(r.CPUPercent),
		RAMUsedGB:   known(r.RAMUsedGB),
		NetDownMbps: known(r.NetDownMbps),
		NetUpMbps:   known(r.NetUpMbps),
		CPUTempC:    known(r.CPUTempC),
		GPUTempC:    known(r.GPUTempC),
		CPUPowerW:   known(r.CPUPowerW),
		GPUPowerW:   known(r.GPUPowerW),
	}
}

func known(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
