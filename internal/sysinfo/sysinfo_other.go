//go:build !darwin && !windows && !linux

package sysinfo

import (
	"context"
	"runtime"
	"time"
)

func (s *Sampler) cpuPercent(context.Context) float64 { return -1 }

// memory falls back to the Go runtime's own footprint.
func (s *Sampler) memory(context.Context) (uint64, uint64) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Alloc, ms.Sys
}

func (s *Sampler) netCounters(context.Context) (uint64, uint64, bool) { return 0, 0, false }

func (s *Sampler) cpuTemp() float64 { return -1 }

func (s *Sampler) cpuPower(time.Time) float64 { return -1 }
