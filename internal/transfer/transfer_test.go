package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/06eren/Pc-Mobil-Bond/internal/logging"
	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
	"github.com/06eren/Pc-Mobil-Bond/internal/session"
)

type fakeOfferer struct {
	mu    sync.Mutex
	got   []session.OutboundTransfer
	data  []byte
	err   error
	chunk int
}

func (f *fakeOfferer) Offer(ctx context.Context, out session.OutboundTransfer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, out)
	if f.err != nil {
		return f.err
	}
	var buf bytes.Buffer
	chunk := f.chunk
	if chunk <= 0 {
		chunk = 4
	}
	var sent int64
	for sent < out.Size {
		n, err := io.CopyN(&buf, out.Source, min(int64(chunk), out.Size-sent))
		sent += n
		if out.Progress != nil {
			out.Progress(sent, out.Size)
		}
		if err != nil {
			return err
		}
	}
	f.data = buf.Bytes()
	return nil
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "photo.jpg", want: "photo.jpg"},
		{in: "../../etc/passwd", want: "passwd"},
		{in: `C:\Users\eren\Desktop\notes.txt`, want: "notes.txt"},
		{in: ".hidden", want: "hidden"},
		{in: "..", want: fallbackName},
		{in: "", want: fallbackName},
		{in: "dir/", want: "dir"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SafeName(tt.in); got != tt.want {
				t.Fatalf("SafeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDirSinksCompleteAndAbort(t *testing.T) {
	logging.ConfigureTests()
	dir := t.TempDir()
	sinks, err := NewDirSinks(dir)
	if err != nil {
		t.Fatalf("NewDirSinks: %v", err)
	}

	var completed []Record
	var failed []Record
	NewCoordinator(sinks, Events{
		Completed: func(r Record) { completed = append(completed, r) },
		Failed:    func(r Record, _ error) { failed = append(failed, r) },
	})

	sink, err := sinks.Open(protocol.FileStart{Name: "../photo.jpg", Size: 5})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sink.Write([]byte("hel"))
	sink.Write([]byte("lo"))
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "photo.jpg"))
	if err != nil || string(got) != "hello" {
		t.Fatalf("final file = %q, %v", got, err)
	}
	if len(completed) != 1 || completed[0].Path != filepath.Join(dir, "photo.jpg") || completed[0].Transferred != 5 {
		t.Fatalf("unexpected completion %+v", completed)
	}

	// same name again lands next to the first file
	sink, _ = sinks.Open(protocol.FileStart{Name: "photo.jpg", Size: 1})
	sink.Write([]byte("x"))
	sink.Close()
	if _, err := os.Stat(filepath.Join(dir, "photo (1).jpg")); err != nil {
		t.Fatalf("second copy missing: %v", err)
	}

	sink, _ = sinks.Open(protocol.FileStart{Name: "partial.bin", Size: 100})
	sink.Write([]byte("abc"))
	if err := sink.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("expected one failure, got %d", len(failed))
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".part" || e.Name() == "partial.bin" {
			t.Fatalf("leftover file %s", e.Name())
		}
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 files, got %d", len(entries))
	}
}

func TestDirSinksAcceptPolicy(t *testing.T) {
	sinks, err := NewDirSinks(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirSinks: %v", err)
	}
	sinks.Accept = func(fs protocol.FileStart) bool { return filepath.Ext(fs.Name) == ".png" }
	sinks.MaxSize = 1024

	tests := []struct {
		name    string
		fs      protocol.FileStart
		wantErr bool
	}{
		{name: "accepted", fs: protocol.FileStart{Name: "a.png", Size: 10}},
		{name: "wrong type", fs: protocol.FileStart{Name: "a.exe", Size: 10}, wantErr: true},
		{name: "too large", fs: protocol.FileStart{Name: "b.png", Size: 4096}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := sinks.Open(tt.fs)
			if tt.wantErr {
				if !errors.Is(err, ErrDeclined) {
					t.Fatalf("expected ErrDeclined, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			sink.Abort()
		})
	}
}

func TestCoordinatorOffers(t *testing.T) {
	logging.ConfigureTests()
	off := &fakeOfferer{chunk: 3}
	var progress []int64
	var completed int
	c := NewCoordinator(nil, Events{
		Progress:  func(r Record) { progress = append(progress, r.Transferred) },
		Completed: func(Record) { completed++ },
	})
	c.Bind(off)

	rec, err := c.OfferBytes(context.Background(), "shot.png", []byte("0123456789"))
	if err != nil {
		t.Fatalf("OfferBytes: %v", err)
	}
	if string(off.data) != "0123456789" || off.got[0].Name != "shot.png" || off.got[0].Size != 10 {
		t.Fatalf("unexpected offer %+v data=%q", off.got[0], off.data)
	}
	if rec.Transferred != 10 || !rec.Done() || rec.Direction != session.Outbound {
		t.Fatalf("unexpected record %+v", rec)
	}
	if len(progress) != 4 || progress[len(progress)-1] != 10 {
		t.Fatalf("progress = %v", progress)
	}
	if completed != 1 {
		t.Fatalf("completed = %d", completed)
	}

	path := filepath.Join(t.TempDir(), "notes.txt")
	os.WriteFile(path, []byte("remember the milk"), 0o644)
	rec, err = c.OfferFile(context.Background(), path)
	if err != nil {
		t.Fatalf("OfferFile: %v", err)
	}
	if rec.Name != "notes.txt" || rec.Path != path || string(off.data) != "remember the milk" {
		t.Fatalf("unexpected file offer %+v data=%q", rec, off.data)
	}

	if _, err := c.OfferFile(context.Background(), filepath.Dir(path)); err == nil {
		t.Fatal("offering a directory should fail")
	}
	if len(c.Ledger().Active()) != 0 {
		t.Fatal("finished transfers still active")
	}
}

func TestCoordinatorReportsFailures(t *testing.T) {
	logging.ConfigureTests()
	var failures []error
	c := NewCoordinator(nil, Events{Failed: func(_ Record, err error) { failures = append(failures, err) }})

	if _, err := c.OfferBytes(context.Background(), "x", []byte("x")); err == nil {
		t.Fatal("offer without a session should fail")
	}

	c.Bind(&fakeOfferer{err: protocol.ErrTransferCancelled})
	rec, err := c.OfferBytes(context.Background(), "x.txt", []byte("x"))
	if !errors.Is(err, protocol.ErrTransferCancelled) {
		t.Fatalf("expected ErrTransferCancelled, got %v", err)
	}
	if !errors.Is(rec.Err, protocol.ErrTransferCancelled) || len(failures) != 1 {
		t.Fatalf("failure not recorded: %+v %v", rec, failures)
	}

	if _, err := c.OpenSink(protocol.FileStart{Name: "a", Size: 1}); !errors.Is(err, session.ErrNoSink) {
		t.Fatalf("expected ErrNoSink, got %v", err)
	}
}

func TestLedgerRetention(t *testing.T) {
	l := NewLedger(time.Millisecond)
	a := l.Begin(session.Inbound, "a", 1)
	b := l.Begin(session.Outbound, "b", 1)
	l.Finish(a.ID, nil)
	time.Sleep(5 * time.Millisecond)

	active := l.Active()
	if len(active) != 1 || active[0].ID != b.ID {
		t.Fatalf("active = %+v", active)
	}
	if len(l.List()) != 1 {
		t.Fatal("finished record outlived its retention")
	}
}
