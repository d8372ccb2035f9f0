package transfer

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/06eren/Pc-Mobil-Bond/internal/session"
)

// Record describes one transfer, in flight or recently finished.
type Record struct {
	ID          string
	Direction   session.Direction
	Name        string
	Size        int64
	Transferred int64
	// Path is the local file: the source of an outbound transfer or the
	// final location of a completed inbound one.
	Path       string
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// Done reports whether the transfer has finished.
func (r Record) Done() bool {
	return !r.FinishedAt.IsZero()
}

// Ledger is a thread-safe registry of transfers. Finished records are kept
// for the retention period so they can still be listed.
type Ledger struct {
	mu        sync.Mutex
	records   map[string]*Record
	retention time.Duration
}

// NewLedger creates a ledger that forgets finished records after retention.
func NewLedger(retention time.Duration) *Ledger {
	return &Ledger{
		records:   make(map[string]*Record),
		retention: retention,
	}
}

// Begin registers a new transfer.
func (l *Ledger) Begin(dir session.Direction, name string, size int64) Record {
	rec := &Record{
		ID:        uuid.NewString(),
		Direction: dir,
		Name:      name,
		Size:      size,
		StartedAt: time.Now(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.purgeExpiredLocked()
	l.records[rec.ID] = rec
	return *rec
}

// Update records progress and returns the updated copy.
func (l *Ledger) Update(id string, transferred int64) Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[id]
	if !ok {
		return Record{ID: id, Transferred: transferred}
	}
	rec.Transferred = transferred
	return *rec
}

// SetPath attaches the local file path to a record.
func (l *Ledger) SetPath(id, path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[id]; ok {
		rec.Path = path
	}
}

// Finish marks a transfer done with err (nil on success).
func (l *Ledger) Finish(id string, err error) Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[id]
	if !ok {
		return Record{ID: id, Err: err}
	}
	rec.FinishedAt = time.Now()
	rec.Err = err
	return *rec
}

// List returns all known records, oldest first.
func (l *Ledger) List() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.purgeExpiredLocked()
	out := make([]Record, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Active returns the transfers still in flight.
func (l *Ledger) Active() []Record {
	var out []Record
	for _, rec := range l.List() {
		if !rec.Done() {
			out = append(out, rec)
		}
	}
	return out
}

// purgeExpiredLocked drops finished records older than the retention.
// Caller must hold l.mu.
func (l *Ledger) purgeExpiredLocked() {
	cutoff := time.Now().Add(-l.retention)
	for id, rec := range l.records {
		if rec.Done() && rec.FinishedAt.Before(cutoff) {
			delete(l.records, id)
		}
	}
}
