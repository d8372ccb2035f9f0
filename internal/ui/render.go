package ui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

// RenderBanner displays the startup panel
func RenderBanner(version, name, identity string) string {
	var sb strings.Builder
	sb.WriteString(rounded.top(Frame, Paint(Title, fmt.Sprintf(" pcbond v%s ", version)), 3))
	sb.WriteString(rounded.field(Frame, "Device:", name))
	sb.WriteString(rounded.field(Frame, "Identity:", identity))
	sb.WriteString(rounded.bottom(Frame))
	return sb.String()
}

// RenderPINCard shows the PIN a controller must type to connect
func RenderPINCard(name, address, pin string) string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(rounded.top(Card, Paint(Card, " Waiting for a controller "), 2))
	sb.WriteString(rounded.field(Card, "Name:", name))
	sb.WriteString(rounded.field(Card, "Address:", address))
	sb.WriteString(rounded.rule(Card))
	sb.WriteString(rounded.field(Card, "PIN:", Paint(Secret, spaced(pin))))
	sb.WriteString(rounded.bottom(Card))
	return sb.String()
}

// spaced renders "482913" as "4 8 2 9 1 3"
func spaced(pin string) string {
	return strings.Join(strings.Split(pin, ""), " ")
}

// DeviceRow is one line of a discovered-device listing
type DeviceRow struct {
	Name    string
	Address string
	ID      string
	Seen    time.Time
}

// RenderDevices renders discovered targets as an aligned table
func RenderDevices(rows []DeviceRow) string {
	if len(rows) == 0 {
		return Paint(Label, "No devices found.") + "\n"
	}
	nameW, addrW := len("NAME"), len("ADDRESS")
	for _, r := range rows {
		nameW = max(nameW, utf8.RuneCountInString(r.Name))
		addrW = max(addrW, len(r.Address))
	}

	var sb strings.Builder
	sb.WriteString(Paint(Heading, fmt.Sprintf("%-*s  %-*s  %s", nameW, "NAME", addrW, "ADDRESS", "SEEN")))
	sb.WriteString("\n")
	for _, r := range rows {
		fmt.Fprintf(&sb, "%-*s  %-*s  %s\n", nameW, r.Name, addrW, r.Address, Paint(Label, humanize.Time(r.Seen)))
	}
	return sb.String()
}

// PerfView is the subset of a telemetry sample the CLI prints
type PerfView struct {
	CPUPercent  float64
	RAMUsedGB   float64
	NetDownMbps float64
	NetUpMbps   float64
	CPUTempC    float64
	GPUTempC    float64
	CPUPowerW   float64
	GPUPowerW   float64
}

// RenderPerf formats one telemetry sample on a single line
func RenderPerf(p PerfView) string {
	return fmt.Sprintf("%s %5.1f%%  %s %4.1f GB  %s %.2f/%.2f Mbps  %s %s/%s  %s %s/%s",
		Paint(Label, "cpu"), p.CPUPercent,
		Paint(Label, "ram"), p.RAMUsedGB,
		Paint(Label, "net"), p.NetDownMbps, p.NetUpMbps,
		Paint(Label, "temp"), orDash(p.CPUTempC, "°C"), orDash(p.GPUTempC, "°C"),
		Paint(Label, "power"), orDash(p.CPUPowerW, "W"), orDash(p.GPUPowerW, "W"),
	)
}

func orDash(v float64, unit string) string {
	if v <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f%s", v, unit)
}

// RenderProgress formats transfer progress, e.g. "photo.jpg  1.2 MB / 4.0 MB (30%)"
func RenderProgress(name string, done, total int64) string {
	pct := 100
	if total > 0 {
		pct = int(done * 100 / total)
	}
	return fmt.Sprintf("%s  %s / %s (%d%%)", name,
		humanize.Bytes(uint64(max(done, 0))), humanize.Bytes(uint64(max(total, 0))), pct)
}

// RenderBytes formats a byte count for humans
func RenderBytes(n int64) string {
	return humanize.Bytes(uint64(max(n, 0)))
}

// RenderHelpLines lists the interactive controller commands
func RenderHelpLines(commands []string) string {
	var sb strings.Builder

	sb.WriteString(Paint(Label, "  Commands: "))
	sb.WriteString("send <path>")
	sb.WriteString(Paint(Label, " | "))
	sb.WriteString("screenshot")
	sb.WriteString(Paint(Label, " | "))
	sb.WriteString("perf")
	sb.WriteString(Paint(Label, " | "))
	sb.WriteString("transfers")
	sb.WriteString(Paint(Label, " | "))
	sb.WriteString("exit")
	sb.WriteString("\n")
	if len(commands) > 0 {
		sb.WriteString(Paint(Label, "  Remote: "))
		sb.WriteString(strings.Join(commands, " "))
		sb.WriteString("\n")
	}
	sb.WriteString(Paint(Label, "  Press Ctrl+C to disconnect"))
	sb.WriteString("\n\n")

	return sb.String()
}

// RenderPrompt returns the styled prompt for peer
func RenderPrompt(peer string) string {
	return Paint(Prompt, peer+"> ")
}

// RenderError formats an error message
func RenderError(err error) string {
	return Paint(Bad, fmt.Sprintf("Error: %v", err))
}

// RenderSuccess formats a success message
func RenderSuccess(msg string) string {
	return Paint(Good, msg)
}

// RenderDim formats text in dim style
func RenderDim(msg string) string {
	return Paint(Label, msg)
}
