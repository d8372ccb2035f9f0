// Package sysinfo samples the host figures carried in PERF_UPDATE records:
// CPU and memory use, network throughput, and CPU/GPU temperature and power.
// Values that cannot be read on the running platform are -1.
package sysinfo

import (
	"context"
	"sync"
	"time"

	"github.com/06eren/Pc-Mobil-Bond/internal/exec"
)

const (
	bytesPerGB = 1 << 30
	probeLimit = 2 * time.Second
)

// Reading is one sample of host metrics.
type Reading struct {
	CPUPercent  float64
	RAMUsedGB   float64
	RAMTotalGB  float64
	NetDownMbps float64
	NetUpMbps   float64
	CPUTempC    float64
	GPUTempC    float64
	CPUPowerW   float64
	GPUPowerW   float64
	At          time.Time
}

type counterSample struct {
	rx, tx uint64
	at     time.Time
}

type energySample struct {
	microjoules float64
	at          time.Time
}

// Sampler keeps the previous cumulative counters so rates can be derived.
// It is safe for concurrent use.
type Sampler struct {
	mu      sync.Mutex
	runner  *exec.Runner
	prevCPU cpuTimes
	prevNet *counterSample
	prevRAP *energySample
	// noGPU stops probing once nvidia-smi is known to be missing
	noGPU bool
}

// NewSampler returns a sampler. The first Read reports -1 for values that
// need two samples.
func NewSampler() *Sampler {
	r := exec.NewRunner()
	r.Timeout = probeLimit
	return &Sampler{runner: r}
}

// Read takes one sample.
func (s *Sampler) Read(ctx context.Context) Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	r := Reading{
		CPUPercent:  s.cpuPercent(ctx),
		NetDownMbps: -1,
		NetUpMbps:   -1,
		CPUTempC:    s.cpuTemp(),
		CPUPowerW:   s.cpuPower(now),
		GPUTempC:    -1,
		GPUPowerW:   -1,
		At:          now,
	}

	used, total := s.memory(ctx)
	r.RAMUsedGB = float64(used) / bytesPerGB
	r.RAMTotalGB = float64(total) / bytesPerGB

	if rx, tx, ok := s.netCounters(ctx); ok {
		cur := &counterSample{rx: rx, tx: tx, at: now}
		r.NetDownMbps, r.NetUpMbps = rates(s.prevNet, cur)
		s.prevNet = cur
	}

	r.GPUTempC, r.GPUPowerW = s.gpu(ctx)
	return r
}

// rates converts two byte counters into megabits per second.
func rates(prev, cur *counterSample) (down, up float64) {
	if prev == nil {
		return -1, -1
	}
	secs := cur.at.Sub(prev.at).Seconds()
	if secs <= 0 || cur.rx < prev.rx || cur.tx < prev.tx {
		return -1, -1
	}
	const bitsPerMegabit = 1024 * 1024
	down = float64(cur.rx-prev.rx) * 8 / bitsPerMegabit / secs
	up = float64(cur.tx-prev.tx) * 8 / bitsPerMegabit / secs
	return down, up
}

// gpu queries NVIDIA GPUs; other vendors report -1.
func (s *Sampler) gpu(ctx context.Context) (float64, float64) {
	if s.noGPU {
		return -1, -1
	}
	if !exec.Available("nvidia-smi") {
		s.noGPU = true
		return -1, -1
	}
	res := s.runner.Run(ctx, exec.Invocation{
		Program: "nvidia-smi",
		Args:    []string{"--query-gpu=temperature.gpu,power.draw", "--format=csv,noheader,nounits"},
	})
	if !res.OK() {
		return -1, -1
	}
	temp, power, _ := parseNvidiaSMI(res.Output)
	return temp, power
}

// output runs a probe command and returns its output, or "" on failure.
func (s *Sampler) output(ctx context.Context, program string, args ...string) string {
	res := s.runner.Run(ctx, exec.Invocation{Program: program, Args: args})
	if !res.OK() {
		return ""
	}
	return res.Output
}
