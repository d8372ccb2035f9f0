// Package commands maps the CMD names a controller sends to actions on
// the target host. Actions are per-platform tables of external programs
// run through exec.Runner; a few names (SCREENSHOT) are answered by hooks
// registered by the caller instead.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/06eren/Pc-Mobil-Bond/internal/allowlist"
	"github.com/06eren/Pc-Mobil-Bond/internal/exec"
	"github.com/06eren/Pc-Mobil-Bond/internal/observability"
	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
)

// Command names understood by the default tables.
const (
	Mute           = "MUTE"
	VolumeUp       = "VOLUME_UP"
	VolumeDown     = "VOLUME_DOWN"
	SetVolume      = "SET_VOLUME"
	MediaPlayPause = "MEDIA_PLAYPAUSE"
	MediaNext      = "MEDIA_NEXT"
	MediaPrevious  = "MEDIA_PREVIOUS"
	Lock           = "LOCK"
	TaskManager    = "TASK_MANAGER"
	Notepad        = "NOTEPAD"
	Calculator     = "CALCULATOR"
	Sleep          = "SLEEP"
	Hibernate      = "HIBERNATE"
	SignOut        = "SIGNOUT"
	ScreenOff      = "SCREEN_OFF"
	Shutdown       = "SHUTDOWN"
	Restart        = "RESTART"
	Screenshot     = "SCREENSHOT"
	MouseMove      = "MOUSE_MOVE"
	MouseClick     = "MOUSE_CLICK"
)

var (
	ErrUnknownCommand = errors.New("commands: unknown command")
	ErrBadArgument    = errors.New("commands: bad argument")
	ErrNotAllowed     = errors.New("commands: not allowed")
)

// Builder turns a command into the programs that carry it out.
type Builder func(cmd protocol.Command) ([]exec.Invocation, error)

// Table maps command names to builders.
type Table map[string]Builder

// Hook handles a command in-process.
type Hook func(ctx context.Context, cmd protocol.Command) error

// Runner is the part of exec.Runner the executor needs.
type Runner interface {
	Run(ctx context.Context, inv exec.Invocation) *exec.Result
}

// Executor dispatches commands to hooks or the platform table.
type Executor struct {
	runner Runner
	table  Table

	mu     sync.RWMutex
	hooks  map[string]Hook
	policy *allowlist.Policy
}

// NewExecutor uses the table for the running platform.
func NewExecutor(runner Runner) *Executor {
	return NewExecutorWithTable(runner, platformTable())
}

// NewExecutorWithTable uses a caller-supplied table.
func NewExecutorWithTable(runner Runner, table Table) *Executor {
	return &Executor{
		runner: runner,
		table:  table,
		hooks:  make(map[string]Hook),
	}
}

// Handle registers a hook that takes precedence over the table for name.
func (e *Executor) Handle(name string, hook Hook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks[strings.ToUpper(name)] = hook
}

// SetPolicy restricts which names Execute accepts. nil allows everything.
func (e *Executor) SetPolicy(p *allowlist.Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy = p
}

// Supported lists every name with a hook or table entry that the policy
// allows.
func (e *Executor) Supported() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	seen := make(map[string]bool)
	for name := range e.table {
		seen[name] = true
	}
	for name := range e.hooks {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	return e.policy.Filter(names)
}

// Execute runs cmd. Errors are for the caller to log; nothing is reported
// back to the peer.
func (e *Executor) Execute(ctx context.Context, cmd protocol.Command) error {
	logger := log.With().Str("component", "commands").Str("command", cmd.String()).Logger()
	name := strings.ToUpper(cmd.Name)

	e.mu.RLock()
	hook, hooked := e.hooks[name]
	policy := e.policy
	e.mu.RUnlock()

	if err := policy.Check(name); err != nil {
		observability.RecordCommand("denied", false)
		return fmt.Errorf("%w: %v", ErrNotAllowed, err)
	}

	if hooked {
		err := hook(ctx, cmd)
		observability.RecordCommand(name, err == nil)
		return err
	}

	build, ok := e.table[name]
	if !ok {
		observability.RecordCommand("unknown", false)
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Name)
	}

	invocations, err := build(cmd)
	if err != nil {
		observability.RecordCommand(name, false)
		return fmt.Errorf("%s: %w", name, err)
	}

	for _, inv := range invocations {
		res := e.runner.Run(ctx, inv)
		logger.Debug().Str("run", res.String()).Msg("command step finished")
		if !res.OK() {
			observability.RecordCommand(name, false)
			if res.Output != "" {
				return fmt.Errorf("%s: %s: %w: %s", name, inv.Program, res.Err, res.Output)
			}
			return fmt.Errorf("%s: %s: %w", name, inv.Program, res.Err)
		}
	}
	observability.RecordCommand(name, true)
	logger.Info().Msg("command executed")
	return nil
}

func run(program string, args ...string) []exec.Invocation {
	return []exec.Invocation{{Program: program, Args: args}}
}

func detach(program string, args ...string) []exec.Invocation {
	return []exec.Invocation{{Program: program, Args: args, Detach: true}}
}

func fixed(invs []exec.Invocation) Builder {
	return func(protocol.Command) ([]exec.Invocation, error) { return invs, nil }
}

// volumeArg parses SET_VOLUME's level, clamped to 0-100.
func volumeArg(cmd protocol.Command) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(cmd.Arg(0)))
	if err != nil {
		return 0, fmt.Errorf("%w: volume %q", ErrBadArgument, cmd.Arg(0))
	}
	return min(max(v, 0), 100), nil
}

// deltaArgs parses MOUSE_MOVE's dx and dy.
func deltaArgs(cmd protocol.Command) (int, int, error) {
	dx, errX := strconv.Atoi(strings.TrimSpace(cmd.Arg(0)))
	dy, errY := strconv.Atoi(strings.TrimSpace(cmd.Arg(1)))
	if errX != nil || errY != nil {
		return 0, 0, fmt.Errorf("%w: mouse delta %q,%q", ErrBadArgument, cmd.Arg(0), cmd.Arg(1))
	}
	return dx, dy, nil
}

// buttonArg parses MOUSE_CLICK's LEFT or RIGHT.
func buttonArg(cmd protocol.Command) (string, error) {
	switch b := strings.ToUpper(strings.TrimSpace(cmd.Arg(0))); b {
	case "LEFT", "RIGHT":
		return b, nil
	default:
		return "", fmt.Errorf("%w: mouse button %q", ErrBadArgument, cmd.Arg(0))
	}
}
