package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Spinner marks a wait on the network (discovery, dialing a target) and
// shows the elapsed time once the wait becomes noticeable. On a writer that
// is not a terminal it prints nothing, so piped output stays clean.
type Spinner struct {
	out   io.Writer
	label string

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var pulse = []string{"◜", "◠", "◝", "◞", "◡", "◟"}

const (
	pulseEvery       = 100 * time.Millisecond
	showElapsedAfter = 2 * time.Second
)

// NewSpinner returns a stopped spinner for stdout.
func NewSpinner(label string) *Spinner {
	return NewSpinnerTo(os.Stdout, label)
}

// NewSpinnerTo returns a stopped spinner for out.
func NewSpinnerTo(out io.Writer, label string) *Spinner {
	return &Spinner{out: out, label: label}
}

// Start animates until Stop. It does nothing when already running or when
// out is not a terminal.
func (s *Spinner) Start() {
	if !IsTerminal(s.out) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(time.Now(), s.stop, s.done)
}

func (s *Spinner) run(began time.Time, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	tick := time.NewTicker(pulseEvery)
	defer tick.Stop()

	width := 0
	for n := 0; ; n++ {
		select {
		case <-stop:
			fmt.Fprintf(s.out, "\r%s\r", strings.Repeat(" ", width))
			return
		case now := <-tick.C:
			line := s.frame(n, now.Sub(began))
			width = max(width, visibleLength(line))
			fmt.Fprint(s.out, "\r"+line)
		}
	}
}

// frame renders animation step n after elapsed, e.g. "◝ Connecting... 3s".
func (s *Spinner) frame(n int, elapsed time.Duration) string {
	line := Paint(Busy, pulse[n%len(pulse)]) + " " + s.label
	if elapsed >= showElapsedAfter {
		line += " " + Paint(Label, elapsed.Truncate(time.Second).String())
	}
	return line
}

// Stop ends the animation and clears its line. Calling it on a spinner that
// is not running is a no-op.
func (s *Spinner) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// IsRunning reports whether the animation is on screen.
func (s *Spinner) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}
