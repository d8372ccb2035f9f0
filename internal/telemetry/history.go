package telemetry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
)

const (
	// MaxSamples is the per-peer cap; at the default push interval it covers
	// four minutes.
	MaxSamples = 120
	// Retention is how long a silent peer's history is kept.
	Retention = 10 * time.Minute
	// CleanupInterval is how often expired peers are dropped.
	CleanupInterval = time.Minute
)

// Sample is one received PERF_UPDATE with its arrival time.
type Sample struct {
	protocol.PerfUpdate
	At time.Time
}

type peerHistory struct {
	name     string
	samples  []Sample
	lastSeen time.Time
}

// History keeps a bounded window of samples per peer. It is safe for
// concurrent use.
type History struct {
	mu        sync.RWMutex
	peers     map[string]*peerHistory
	max       int
	retention time.Duration
}

// NewHistory returns a history holding at most max samples per peer.
// A non-positive max uses MaxSamples.
func NewHistory(max int) *History {
	if max <= 0 {
		max = MaxSamples
	}
	return &History{
		peers:     make(map[string]*peerHistory),
		max:       max,
		retention: Retention,
	}
}

// Add appends a sample for peer, dropping the oldest once the window is full.
func (h *History) Add(peer, name string, p protocol.PerfUpdate) Sample {
	return h.addAt(peer, name, p, time.Now())
}

func (h *History) addAt(peer, name string, p protocol.PerfUpdate, at time.Time) Sample {
	h.mu.Lock()
	defer h.mu.Unlock()

	ph, ok := h.peers[peer]
	if !ok {
		ph = &peerHistory{samples: make([]Sample, 0, h.max)}
		h.peers[peer] = ph
	}
	if name != "" {
		ph.name = name
	}
	s := Sample{PerfUpdate: p, At: at}
	if len(ph.samples) >= h.max {
		copy(ph.samples, ph.samples[1:])
		ph.samples[len(ph.samples)-1] = s
	} else {
		ph.samples = append(ph.samples, s)
	}
	ph.lastSeen = at
	return s
}

// Latest returns the newest sample for peer.
func (h *History) Latest(peer string) (Sample, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ph, ok := h.peers[peer]
	if !ok || len(ph.samples) == 0 {
		return Sample{}, false
	}
	return ph.samples[len(ph.samples)-1], true
}

// Since returns the samples for peer received after t, oldest first.
// A zero t returns the whole window.
func (h *History) Since(peer string, t time.Time) []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ph, ok := h.peers[peer]
	if !ok {
		return nil
	}
	i := sort.Search(len(ph.samples), func(i int) bool {
		return ph.samples[i].At.After(t)
	})
	out := make([]Sample, len(ph.samples)-i)
	copy(out, ph.samples[i:])
	return out
}

// Peers returns the identities with recorded samples, sorted.
func (h *History) Peers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.peers))
	for id := range h.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Summary describes the window held for one peer.
type Summary struct {
	Peer        string
	Name        string
	Count       int
	Latest      Sample
	AvgCPU      float64
	PeakCPU     float64
	Oldest      time.Time
	LastUpdated time.Time
}

// Summarize reports the window held for peer.
func (h *History) Summarize(peer string) (Summary, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ph, ok := h.peers[peer]
	if !ok || len(ph.samples) == 0 {
		return Summary{}, false
	}
	sum := Summary{
		Peer:        peer,
		Name:        ph.name,
		Count:       len(ph.samples),
		Latest:      ph.samples[len(ph.samples)-1],
		Oldest:      ph.samples[0].At,
		LastUpdated: ph.lastSeen,
	}
	var total float64
	for _, s := range ph.samples {
		total += s.CPUPercent
		if s.CPUPercent > sum.PeakCPU {
			sum.PeakCPU = s.CPUPercent
		}
	}
	sum.AvgCPU = total / float64(len(ph.samples))
	return sum, true
}

// Forget drops everything recorded for peer.
func (h *History) Forget(peer string) {
	h.mu.Lock()
	delete(h.peers, peer)
	h.mu.Unlock()
}

// Run drops peers silent for longer than Retention until ctx is done.
func (h *History) Run(ctx context.Context) {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.expire(now)
		}
	}
}

func (h *History) expire(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := now.Add(-h.retention)
	for id, ph := range h.peers {
		if ph.lastSeen.Before(cutoff) {
			delete(h.peers, id)
		}
	}
}
