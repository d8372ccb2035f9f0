//go:build windows

package sysinfo

import (
	"context"
	"syscall"
	"time"
	"unsafe"
)

var (
	kernel32                 = syscall.NewLazyDLL("kernel32.dll")
	procGetSystemTimes       = kernel32.NewProc("GetSystemTimes")
	procGlobalMemoryStatusEx = kernel32.NewProc("GlobalMemoryStatusEx")
)

type memoryStatusEx struct {
	Length               uint32
	MemoryLoad           uint32
	TotalPhys            uint64
	AvailPhys            uint64
	TotalPageFile        uint64
	AvailPageFile        uint64
	TotalVirtual         uint64
	AvailVirtual         uint64
	AvailExtendedVirtual uint64
}

// cpuPercent uses GetSystemTimes; kernel time already includes idle time.
func (s *Sampler) cpuPercent(context.Context) float64 {
	var idle, kernel, user syscall.Filetime
	ret, _, _ := procGetSystemTimes.Call(
		uintptr(unsafe.Pointer(&idle)),
		uintptr(unsafe.Pointer(&kernel)),
		uintptr(unsafe.Pointer(&user)),
	)
	if ret == 0 {
		return -1
	}
	cur := cpuTimes{
		idle:  filetime(idle),
		total: filetime(kernel) + filetime(user),
	}
	pct := cpuPercent(s.prevCPU, cur)
	s.prevCPU = cur
	return pct
}

func filetime(ft syscall.Filetime) uint64 {
	return uint64(ft.HighDateTime)<<32 | uint64(ft.LowDateTime)
}

func (s *Sampler) memory(context.Context) (uint64, uint64) {
	var st memoryStatusEx
	st.Length = uint32(unsafe.Sizeof(st))
	ret, _, _ := procGlobalMemoryStatusEx.Call(uintptr(unsafe.Pointer(&st)))
	if ret == 0 {
		return 0, 0
	}
	return st.TotalPhys - st.AvailPhys, st.TotalPhys
}

func (s *Sampler) netCounters(ctx context.Context) (uint64, uint64, bool) {
	return parseNetstatE(s.output(ctx, "netstat", "-e"))
}

// Sensor readings need WMI access with elevation; not attempted.
func (s *Sampler) cpuTemp() float64 { return -1 }

func (s *Sampler) cpuPower(time.Time) float64 { return -1 }
