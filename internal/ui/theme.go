// Package ui styles pcbond's terminal output: the startup banner, the PIN
// card, device listings and the controller prompt.
package ui

import (
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Role names what a piece of text is rather than how it looks.
type Role int

const (
	Plain   Role = iota
	Frame        // banner border
	Title        // banner title
	Card         // PIN card border and title
	Label        // field names, hints, timestamps
	Heading      // table headers, device names
	Secret       // the PIN digits
	Prompt       // controller prompt
	Good         // success lines
	Bad          // errors
	Busy         // spinner pulse
)

// sgr holds the Select Graphic Rendition parameters of each role.
var sgr = [...]string{
	Plain:   "",
	Frame:   "36",
	Title:   "1;36",
	Card:    "33",
	Label:   "2",
	Heading: "1",
	Secret:  "1;32",
	Prompt:  "1;32",
	Good:    "32",
	Bad:     "31",
	Busy:    "36",
}

var colors = colorWanted(os.Getenv, os.Stdout)

// colorWanted honours https://no-color.org/ and dumb terminals, and never
// colors output that is not a terminal.
func colorWanted(getenv func(string) string, out io.Writer) bool {
	if getenv("NO_COLOR") != "" || getenv("TERM") == "dumb" {
		return false
	}
	return IsTerminal(out)
}

// IsTerminal reports whether w is a terminal file descriptor.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// SetNoColor turns styling off for the rest of the process. --no-color can
// only remove color, never force it onto a pipe.
func SetNoColor(disable bool) {
	if disable {
		colors = false
	}
}

// Paint styles text for role, or returns it unchanged when color is off.
func Paint(role Role, text string) string {
	code := sgr[role]
	if !colors || code == "" || text == "" {
		return text
	}
	return "\x1b[" + code + "m" + text + "\x1b[0m"
}

const boxWidth = 60

// border draws the rounded panels of the banner and the PIN card. Every
// line it returns is boxWidth columns wide.
type border struct {
	topLeft, topRight       string
	bottomLeft, bottomRight string
	across, down            string
	teeLeft, teeRight       string
}

var rounded = border{
	topLeft: "╭", topRight: "╮",
	bottomLeft: "╰", bottomRight: "╯",
	across: "─", down: "│",
	teeLeft: "├", teeRight: "┤",
}

// top draws the upper edge with title inset after lead dashes.
func (b border) top(role Role, title string, lead int) string {
	rest := max(boxWidth-2-lead-visibleLength(title), 0)
	return Paint(role, b.topLeft+strings.Repeat(b.across, lead)) + title +
		Paint(role, strings.Repeat(b.across, rest)+b.topRight) + "\n"
}

func (b border) rule(role Role) string {
	return Paint(role, b.teeLeft+strings.Repeat(b.across, boxWidth-2)+b.teeRight) + "\n"
}

func (b border) bottom(role Role) string {
	return Paint(role, b.bottomLeft+strings.Repeat(b.across, boxWidth-2)+b.bottomRight) + "\n"
}

// field draws one "label value" row padded to the inside width.
func (b border) field(role Role, label, value string) string {
	content := " " + Paint(Label, label) + " " + value
	pad := max(boxWidth-2-visibleLength(content), 0)
	return Paint(role, b.down) + content + strings.Repeat(" ", pad) + Paint(role, b.down) + "\n"
}

// visibleLength counts the runes of s that reach the screen, skipping SGR
// escapes.
func visibleLength(s string) int {
	n, inEscape := 0, false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			inEscape = r != 'm'
		default:
			n++
		}
	}
	return n
}
