//go:build darwin

package sysinfo

import (
	"context"
	"strconv"
	"strings"
	"time"
)

func (s *Sampler) cpuPercent(ctx context.Context) float64 {
	return parseTopIdle(s.output(ctx, "top", "-l", "1", "-n", "0", "-stats", "cpu"))
}

func (s *Sampler) memory(ctx context.Context) (uint64, uint64) {
	total, err := strconv.ParseUint(strings.TrimSpace(s.output(ctx, "sysctl", "-n", "hw.memsize")), 10, 64)
	if err != nil {
		return 0, 0
	}
	used := parseVMStat(s.output(ctx, "vm_stat"))
	return min(used, total), total
}

func (s *Sampler) netCounters(ctx context.Context) (uint64, uint64, bool) {
	return parseNetstatIBN(s.output(ctx, "netstat", "-ibn"))
}

// Temperature and power need powermetrics, which requires root.
func (s *Sampler) cpuTemp() float64 { return -1 }

func (s *Sampler) cpuPower(time.Time) float64 { return -1 }
