package sysinfo

import (
	"strconv"
	"strings"
)

type cpuTimes struct {
	idle  uint64
	total uint64
}

// cpuPercent turns two cumulative samples into a 0-100 usage figure, or -1
// when there is no usable previous sample.
func cpuPercent(prev, cur cpuTimes) float64 {
	if prev.total == 0 || cur.total <= prev.total || cur.idle < prev.idle {
		return -1
	}
	idle := float64(cur.idle - prev.idle)
	total := float64(cur.total - prev.total)
	return clamp((1-idle/total)*100, 0, 100)
}

// parseProcStat reads the aggregate "cpu" line of /proc/stat. Idle time
// includes iowait.
func parseProcStat(data string) (cpuTimes, bool) {
	for _, line := range strings.Split(data, "\n") {
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)[1:]
		if len(fields) < 4 {
			return cpuTimes{}, false
		}
		var t cpuTimes
		// user nice system idle iowait irq softirq steal; guest is already in user
		for i, f := range fields {
			if i >= 8 {
				break
			}
			v, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				return cpuTimes{}, false
			}
			t.total += v
			if i == 3 || i == 4 {
				t.idle += v
			}
		}
		return t, true
	}
	return cpuTimes{}, false
}

// parseMeminfo returns used and total bytes from /proc/meminfo.
func parseMeminfo(data string) (used, total uint64) {
	var memFree, available, buffers, cached uint64
	for _, line := range strings.Split(data, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		v *= 1024
		switch strings.TrimSuffix(fields[0], ":") {
		case "MemTotal":
			total = v
		case "MemFree":
			memFree = v
		case "MemAvailable":
			available = v
		case "Buffers":
			buffers = v
		case "Cached":
			cached = v
		}
	}
	switch {
	case total == 0:
		return 0, 0
	case available > 0:
		return total - available, total
	default:
		return total - min(total, memFree+buffers+cached), total
	}
}

// parseNetDev sums received and transmitted bytes over all non-loopback
// interfaces in /proc/net/dev.
func parseNetDev(data string) (rx, tx uint64, ok bool) {
	for _, line := range strings.Split(data, "\n") {
		name, rest, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "lo" {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 9 {
			continue
		}
		r, errR := strconv.ParseUint(fields[0], 10, 64)
		t, errT := strconv.ParseUint(fields[8], 10, 64)
		if errR != nil || errT != nil {
			continue
		}
		rx += r
		tx += t
		ok = true
	}
	return rx, tx, ok
}

// parseNetstatIBN sums link-level byte counters from macOS `netstat -ibn`.
// Columns are taken from the right since the address column may be empty.
func parseNetstatIBN(data string) (rx, tx uint64, ok bool) {
	for _, line := range strings.Split(data, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 7 || !strings.HasPrefix(fields[2], "<Link#") || strings.HasPrefix(fields[0], "lo") {
			continue
		}
		n := len(fields)
		r, errR := strconv.ParseUint(fields[n-5], 10, 64)
		t, errT := strconv.ParseUint(fields[n-2], 10, 64)
		if errR != nil || errT != nil {
			continue
		}
		rx += r
		tx += t
		ok = true
	}
	return rx, tx, ok
}

// parseNetstatE reads the "Bytes" row of Windows `netstat -e`.
func parseNetstatE(data string) (rx, tx uint64, ok bool) {
	for _, line := range strings.Split(data, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 3 || fields[0] != "Bytes" {
			continue
		}
		r, errR := strconv.ParseUint(fields[1], 10, 64)
		t, errT := strconv.ParseUint(fields[2], 10, 64)
		if errR != nil || errT != nil {
			return 0, 0, false
		}
		return r, t, true
	}
	return 0, 0, false
}

// parseTopIdle extracts usage from macOS `top -l 1` ("CPU usage: 5.26% user,
// 10.52% sys, 84.21% idle").
func parseTopIdle(data string) float64 {
	for _, line := range strings.Split(data, "\n") {
		if !strings.Contains(line, "CPU usage:") {
			continue
		}
		for _, part := range strings.Split(line, ",") {
			part = strings.TrimSpace(part)
			if !strings.HasSuffix(part, "% idle") {
				continue
			}
			idle, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(part, "% idle")), 64)
			if err == nil {
				return clamp(100-idle, 0, 100)
			}
		}
	}
	return -1
}

// parseVMStat returns used bytes from macOS vm_stat output.
func parseVMStat(data string) uint64 {
	pageSize := uint64(4096)
	var active, wired, compressed uint64
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if _, after, found := strings.Cut(line, "page size of "); found {
			if size, err := strconv.ParseUint(strings.Fields(after)[0], 10, 64); err == nil {
				pageSize = size
			}
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimSpace(value), "."), 10, 64)
		if err != nil {
			continue
		}
		switch key {
		case "Pages active":
			active = v
		case "Pages wired down":
			wired = v
		case "Pages occupied by compressor":
			compressed = v
		}
	}
	return (active + wired + compressed) * pageSize
}

// parseNvidiaSMI reads "temperature, power" from
// nvidia-smi --query-gpu=temperature.gpu,power.draw --format=csv,noheader,nounits.
func parseNvidiaSMI(data string) (tempC, powerW float64, ok bool) {
	line, _, _ := strings.Cut(strings.TrimSpace(data), "\n")
	parts := strings.Split(line, ",")
	if len(parts) < 2 {
		return -1, -1, false
	}
	tempC = parseNumber(parts[0])
	powerW = parseNumber(parts[1])
	return tempC, powerW, tempC >= 0 || powerW >= 0
}

// parseMilli converts sysfs millidegree or microunit text by div.
func parseMilli(data string, div float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(data), 64)
	if err != nil {
		return -1
	}
	return v / div
}

func parseNumber(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return -1
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
