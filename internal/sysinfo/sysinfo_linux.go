//go:build linux

package sysinfo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func (s *Sampler) cpuPercent(context.Context) float64 {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return -1
	}
	cur, ok := parseProcStat(string(data))
	if !ok {
		return -1
	}
	pct := cpuPercent(s.prevCPU, cur)
	s.prevCPU = cur
	return pct
}

func (s *Sampler) memory(context.Context) (uint64, uint64) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, 0
	}
	return parseMeminfo(string(data))
}

func (s *Sampler) netCounters(context.Context) (uint64, uint64, bool) {
	data, err := os.ReadFile("/proc/net/dev")
	if err != nil {
		return 0, 0, false
	}
	return parseNetDev(string(data))
}

var cpuSensors = map[string]bool{
	"coretemp":    true,
	"k10temp":     true,
	"zenpower":    true,
	"cpu_thermal": true,
}

// cpuTemp prefers a CPU hwmon driver and falls back to the package thermal zone.
func (s *Sampler) cpuTemp() float64 {
	dirs, _ := filepath.Glob("/sys/class/hwmon/hwmon*")
	for _, dir := range dirs {
		name, err := os.ReadFile(filepath.Join(dir, "name"))
		if err != nil || !cpuSensors[strings.TrimSpace(string(name))] {
			continue
		}
		if data, err := os.ReadFile(filepath.Join(dir, "temp1_input")); err == nil {
			return parseMilli(string(data), 1000)
		}
	}

	zones, _ := filepath.Glob("/sys/class/thermal/thermal_zone*")
	for _, zone := range zones {
		kind, err := os.ReadFile(filepath.Join(zone, "type"))
		if err != nil {
			continue
		}
		switch strings.TrimSpace(string(kind)) {
		case "x86_pkg_temp", "cpu-thermal", "cpu_thermal":
			if data, err := os.ReadFile(filepath.Join(zone, "temp")); err == nil {
				return parseMilli(string(data), 1000)
			}
		}
	}
	return -1
}

const raplEnergy = "/sys/class/powercap/intel-rapl:0/energy_uj"

// cpuPower derives package watts from the RAPL energy counter.
func (s *Sampler) cpuPower(now time.Time) float64 {
	data, err := os.ReadFile(raplEnergy)
	if err != nil {
		return -1
	}
	uj := parseMilli(string(data), 1)
	if uj < 0 {
		return -1
	}
	prev := s.prevRAP
	s.prevRAP = &energySample{microjoules: uj, at: now}
	if prev == nil || uj < prev.microjoules {
		return -1
	}
	secs := now.Sub(prev.at).Seconds()
	if secs <= 0 {
		return -1
	}
	return (uj - prev.microjoules) / 1e6 / secs
}
