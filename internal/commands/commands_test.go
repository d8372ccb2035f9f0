package commands

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"sync"
	"testing"

	"github.com/06eren/Pc-Mobil-Bond/internal/allowlist"
	"github.com/06eren/Pc-Mobil-Bond/internal/exec"
	"github.com/06eren/Pc-Mobil-Bond/internal/logging"
	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
)

type fakeRunner struct {
	mu   sync.Mutex
	ran  []exec.Invocation
	fail map[string]bool
}

func (f *fakeRunner) Run(_ context.Context, inv exec.Invocation) *exec.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, inv)
	if f.fail[inv.Program] {
		return &exec.Result{Invocation: inv, ExitCode: 1, Err: errors.New("exit status 1"), Output: "no such sink"}
	}
	return &exec.Result{Invocation: inv}
}

func testTable() Table {
	return Table{
		Mute: fixed(run("mixer", "mute")),
		Lock: fixed(append(run("lock", "now"), run("dim")...)),
		SetVolume: func(cmd protocol.Command) ([]exec.Invocation, error) {
			v, err := volumeArg(cmd)
			if err != nil {
				return nil, err
			}
			return run("mixer", "set", strconv.Itoa(v)), nil
		},
		Calculator: fixed(detach("calc")),
	}
}

func TestExecutorDispatch(t *testing.T) {
	logging.ConfigureTests()

	tests := []struct {
		name    string
		record  string
		want    []exec.Invocation
		wantErr error
	}{
		{name: "simple", record: "CMD;MUTE", want: run("mixer", "mute")},
		{name: "lowercase name", record: "CMD;mute", want: run("mixer", "mute")},
		{name: "multi step", record: "CMD;LOCK", want: append(run("lock", "now"), run("dim")...)},
		{name: "argument", record: "CMD;SET_VOLUME:50", want: run("mixer", "set", "50")},
		{name: "argument clamped", record: "CMD;SET_VOLUME:250", want: run("mixer", "set", "100")},
		{name: "bad argument", record: "CMD;SET_VOLUME:loud", wantErr: ErrBadArgument},
		{name: "detached", record: "CMD;CALCULATOR", want: detach("calc")},
		{name: "unknown", record: "CMD;SELF_DESTRUCT", wantErr: ErrUnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			e := NewExecutorWithTable(runner, testTable())
			ctl, err := protocol.ParseControl(tt.record)
			if err != nil {
				t.Fatalf("ParseControl: %v", err)
			}

			err = e.Execute(context.Background(), ctl.Command)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if len(runner.ran) != 0 {
					t.Fatalf("nothing should run, ran %v", runner.ran)
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if !reflect.DeepEqual(runner.ran, tt.want) {
				t.Fatalf("ran %v, want %v", runner.ran, tt.want)
			}
		})
	}
}

func TestExecutorStopsOnFailedStep(t *testing.T) {
	logging.ConfigureTests()
	runner := &fakeRunner{fail: map[string]bool{"lock": true}}
	e := NewExecutorWithTable(runner, testTable())

	err := e.Execute(context.Background(), protocol.Command{Name: Lock})
	if err == nil {
		t.Fatal("expected failure")
	}
	if len(runner.ran) != 1 {
		t.Fatalf("later steps ran after a failure: %v", runner.ran)
	}
}

func TestExecutorHooksTakePrecedence(t *testing.T) {
	logging.ConfigureTests()
	runner := &fakeRunner{}
	e := NewExecutorWithTable(runner, testTable())

	var got protocol.Command
	e.Handle(Screenshot, func(_ context.Context, cmd protocol.Command) error {
		got = cmd
		return nil
	})
	e.Handle(Mute, func(context.Context, protocol.Command) error { return errors.New("muted elsewhere") })

	if err := e.Execute(context.Background(), protocol.Command{Name: Screenshot}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Name != Screenshot {
		t.Fatalf("hook got %+v", got)
	}
	if err := e.Execute(context.Background(), protocol.Command{Name: Mute}); err == nil {
		t.Fatal("hook error not returned")
	}
	if len(runner.ran) != 0 {
		t.Fatalf("table used despite hooks: %v", runner.ran)
	}

	want := []string{Calculator, Lock, Mute, Screenshot, SetVolume}
	if got := e.Supported(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Supported() = %v, want %v", got, want)
	}
}

func TestExecutorPolicy(t *testing.T) {
	logging.ConfigureTests()
	runner := &fakeRunner{}
	e := NewExecutorWithTable(runner, testTable())
	e.SetPolicy(allowlist.New(nil, []string{"lock", Calculator}))

	err := e.Execute(context.Background(), protocol.Command{Name: "LOCK"})
	if !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("denied command: err = %v, want ErrNotAllowed", err)
	}
	if len(runner.ran) != 0 {
		t.Fatalf("denied command ran: %v", runner.ran)
	}
	if err := e.Execute(context.Background(), protocol.Command{Name: Mute}); err != nil {
		t.Fatalf("allowed command: %v", err)
	}

	want := []string{Mute, SetVolume}
	if got := e.Supported(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Supported() = %v, want %v", got, want)
	}
}

func TestArgumentParsers(t *testing.T) {
	if dx, dy, err := deltaArgs(protocol.ParseCommand("MOUSE_MOVE:10:-4")); err != nil || dx != 10 || dy != -4 {
		t.Fatalf("deltaArgs = %d,%d,%v", dx, dy, err)
	}
	if _, _, err := deltaArgs(protocol.ParseCommand("MOUSE_MOVE:10")); !errors.Is(err, ErrBadArgument) {
		t.Fatalf("missing dy accepted: %v", err)
	}
	if b, err := buttonArg(protocol.ParseCommand("MOUSE_CLICK:right")); err != nil || b != "RIGHT" {
		t.Fatalf("buttonArg = %q, %v", b, err)
	}
	if _, err := buttonArg(protocol.ParseCommand("MOUSE_CLICK:MIDDLE")); !errors.Is(err, ErrBadArgument) {
		t.Fatalf("middle button accepted: %v", err)
	}
	if v, err := volumeArg(protocol.ParseCommand("SET_VOLUME:-5")); err != nil || v != 0 {
		t.Fatalf("volumeArg = %d, %v", v, err)
	}
}
