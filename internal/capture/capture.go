// Package capture grabs the screen for SCREENSHOT commands.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"time"

	"github.com/kbinani/screenshot"
	"golang.org/x/image/draw"
)

// NameLayout formats the timestamp part of a screenshot file name.
const NameLayout = "20060102_150405"

// ErrNoDisplay is returned when no active display can be captured.
var ErrNoDisplay = errors.New("capture: no active display")

// Screen captures one display as PNG.
type Screen struct {
	// Display is the index passed to the screenshot library; 0 is primary.
	Display int
	// MaxWidth downscales wider captures when positive.
	MaxWidth int
}

// Capture grabs the display and returns the encoded PNG.
func (s Screen) Capture() ([]byte, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, ErrNoDisplay
	}
	if s.Display < 0 || s.Display >= n {
		return nil, fmt.Errorf("capture: invalid display %d, have %d", s.Display, n)
	}

	img, err := screenshot.CaptureRect(screenshot.GetDisplayBounds(s.Display))
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return Encode(img, s.MaxWidth)
}

// Available reports whether a capture would likely succeed.
func Available() bool {
	return screenshot.NumActiveDisplays() > 0
}

// Encode renders img as PNG, first scaling it down to maxWidth when it is
// wider and maxWidth is positive.
func Encode(img image.Image, maxWidth int) ([]byte, error) {
	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = scale(img, maxWidth)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("capture: png encode: %w", err)
	}
	return buf.Bytes(), nil
}

func scale(src image.Image, width int) image.Image {
	b := src.Bounds()
	height := b.Dy() * width / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// Name returns the transfer name for a screenshot taken at t.
func Name(t time.Time) string {
	return "Screenshot_" + t.Format(NameLayout) + ".png"
}
