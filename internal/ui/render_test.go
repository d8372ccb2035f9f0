package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func init() {
	SetNoColor(true)
}

func TestRenderPINCard(t *testing.T) {
	out := RenderPINCard("Desk", "192.168.1.20", "482913")
	if !strings.Contains(out, "4 8 2 9 1 3") {
		t.Fatalf("PIN not rendered:\n%s", out)
	}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if n := visibleLength(line); n != boxWidth {
			t.Fatalf("line %q is %d wide, want %d", line, n, boxWidth)
		}
	}
}

func TestRenderDevices(t *testing.T) {
	if got := RenderDevices(nil); !strings.Contains(got, "No devices") {
		t.Fatalf("empty listing = %q", got)
	}
	out := RenderDevices([]DeviceRow{
		{Name: "Desk", Address: "192.168.1.20", Seen: time.Now()},
		{Name: "Laptop", Address: "192.168.1.7", Seen: time.Now()},
	})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	if strings.Index(lines[1], "192.168.1.20") != strings.Index(lines[2], "192.168.1.7") {
		t.Fatalf("address column not aligned:\n%s", out)
	}
}

func TestRenderProgress(t *testing.T) {
	tests := []struct {
		done, total int64
		want        string
	}{
		{done: 0, total: 0, want: "(100%)"},
		{done: 500, total: 1000, want: "(50%)"},
		{done: 1000, total: 1000, want: "1.0 kB / 1.0 kB (100%)"},
	}
	for _, tt := range tests {
		if got := RenderProgress("a.bin", tt.done, tt.total); !strings.Contains(got, tt.want) {
			t.Errorf("RenderProgress(%d, %d) = %q, want it to contain %q", tt.done, tt.total, got, tt.want)
		}
	}
}

func TestRenderPerfHidesUnknown(t *testing.T) {
	got := RenderPerf(PerfView{CPUPercent: 12.5, RAMUsedGB: 7.9, GPUTempC: 61})
	if !strings.Contains(got, "12.5%") || !strings.Contains(got, "-/61°C") {
		t.Fatalf("RenderPerf() = %q", got)
	}
}

func TestSpinnerSilentOnNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinnerTo(&buf, "waiting")
	s.Start()
	if s.IsRunning() {
		t.Fatal("spinner started on a buffer")
	}
	s.Stop()
	if buf.Len() != 0 {
		t.Fatalf("spinner wrote %q", buf.String())
	}
}

func TestRenderBannerWidth(t *testing.T) {
	out := RenderBanner("1.2.0", "Desk", "0f8e2c1a-7d55-4c1e-9a51-3b8f0c2d6e71")
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if n := visibleLength(line); n != boxWidth {
			t.Fatalf("line %q is %d wide, want %d", line, n, boxWidth)
		}
	}
}

func TestColorWanted(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "no color set", env: map[string]string{"NO_COLOR": "1"}},
		{name: "dumb terminal", env: map[string]string{"TERM": "dumb"}},
		{name: "plain buffer", env: map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getenv := func(k string) string { return tt.env[k] }
			if colorWanted(getenv, &bytes.Buffer{}) {
				t.Fatal("color enabled for a non-terminal writer")
			}
		})
	}
}

func TestPaintWithoutColor(t *testing.T) {
	if got := Paint(Secret, "482913"); got != "482913" {
		t.Fatalf("Paint() = %q with color off", got)
	}
	if n := visibleLength("\x1b[1;32m4 8 2\x1b[0m"); n != 5 {
		t.Fatalf("visibleLength() = %d, want 5", n)
	}
}

func TestSpinnerFrame(t *testing.T) {
	s := NewSpinnerTo(&bytes.Buffer{}, "Connecting...")
	tests := []struct {
		n       int
		elapsed time.Duration
		want    string
	}{
		{n: 0, elapsed: 300 * time.Millisecond, want: "◜ Connecting..."},
		{n: 7, elapsed: time.Second, want: "◠ Connecting..."},
		{n: 2, elapsed: 3500 * time.Millisecond, want: "◝ Connecting... 3s"},
	}
	for _, tt := range tests {
		if got := s.frame(tt.n, tt.elapsed); got != tt.want {
			t.Errorf("frame(%d, %v) = %q, want %q", tt.n, tt.elapsed, got, tt.want)
		}
	}
}
