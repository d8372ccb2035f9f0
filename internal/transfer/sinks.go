package transfer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
	"github.com/06eren/Pc-Mobil-Bond/internal/session"
)

// ErrDeclined is returned when the accept policy refuses a file.
var ErrDeclined = errors.New("transfer: file declined")

const fallbackName = "received.bin"

// DirSinks stores inbound files in a download directory. Data goes to a
// hidden .part file that is renamed into place once the declared size has
// arrived and removed if the transfer is aborted.
type DirSinks struct {
	dir string
	// Accept, if set, decides whether an offered file is taken.
	Accept func(protocol.FileStart) bool
	// MaxSize rejects larger offers; zero means unlimited.
	MaxSize int64

	ledger *Ledger
	events Events
}

// NewDirSinks creates dir if needed.
func NewDirSinks(dir string) (*DirSinks, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("transfer: create download dir: %w", err)
	}
	return &DirSinks{dir: dir, ledger: NewLedger(defaultRetention)}, nil
}

// Dir returns the download directory.
func (d *DirSinks) Dir() string {
	return d.dir
}

// Open starts receiving fs.
func (d *DirSinks) Open(fs protocol.FileStart) (session.Sink, error) {
	if d.Accept != nil && !d.Accept(fs) {
		return nil, ErrDeclined
	}
	if d.MaxSize > 0 && fs.Size > d.MaxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrDeclined, fs.Size, d.MaxSize)
	}

	name := SafeName(fs.Name)
	f, err := os.CreateTemp(d.dir, "."+name+".*.part")
	if err != nil {
		return nil, fmt.Errorf("transfer: create part file: %w", err)
	}

	rec := d.ledger.Begin(session.Inbound, name, fs.Size)
	d.ledger.SetPath(rec.ID, f.Name())
	return &fileSink{owner: d, id: rec.ID, name: name, f: f}, nil
}

type fileSink struct {
	owner   *DirSinks
	id      string
	name    string
	f       *os.File
	written int64
	done    bool
}

func (s *fileSink) Write(p []byte) (int, error) {
	n, err := s.f.Write(p)
	s.written += int64(n)
	rec := s.owner.ledger.Update(s.id, s.written)
	s.owner.events.progress(rec)
	return n, err
}

// Close moves the finished file into place under a name that does not
// overwrite an existing file.
func (s *fileSink) Close() error {
	if s.done {
		return nil
	}
	s.done = true

	part := s.f.Name()
	if err := s.f.Close(); err != nil {
		os.Remove(part)
		return s.fail(fmt.Errorf("transfer: close part file: %w", err))
	}
	final, err := claimPath(s.owner.dir, s.name)
	if err != nil {
		os.Remove(part)
		return s.fail(err)
	}
	if err := os.Rename(part, final); err != nil {
		os.Remove(part)
		os.Remove(final)
		return s.fail(fmt.Errorf("transfer: move into place: %w", err))
	}

	s.owner.ledger.SetPath(s.id, final)
	rec := s.owner.ledger.Finish(s.id, nil)
	log.Info().Str("component", "transfer").Str("path", final).Int64("bytes", s.written).Msg("file received")
	s.owner.events.completed(rec)
	return nil
}

func (s *fileSink) Abort() error {
	if s.done {
		return nil
	}
	s.done = true
	s.f.Close()
	err := os.Remove(s.f.Name())
	s.fail(errors.New("transfer: aborted"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileSink) fail(err error) error {
	rec := s.owner.ledger.Finish(s.id, err)
	s.owner.events.failed(rec, err)
	return err
}

// SafeName reduces a peer-supplied file name to a plain base name.
func SafeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "/" {
		return fallbackName
	}
	return name
}

// claimPath reserves dir/name, or "name (n).ext" when taken, by creating
// an empty placeholder that the rename then replaces.
func claimPath(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i < 1000; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("transfer: reserve %s: %w", candidate, err)
		}
		f.Close()
		return path, nil
	}
	return "", fmt.Errorf("transfer: no free name for %s", name)
}
