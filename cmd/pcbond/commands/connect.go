package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	remote "github.com/06eren/Pc-Mobil-Bond/internal/commands"
	"github.com/06eren/Pc-Mobil-Bond/internal/controller"
	"github.com/06eren/Pc-Mobil-Bond/internal/discovery"
	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
	"github.com/06eren/Pc-Mobil-Bond/internal/telemetry"
	"github.com/06eren/Pc-Mobil-Bond/internal/transfer"
	"github.com/06eren/Pc-Mobil-Bond/internal/ui"
)

var connectCmd = &cobra.Command{
	Use:   "connect <name or address>",
	Short: "Connect to a target and control it interactively",
	Long: `Connect to a target by its announced name or by address. Names are
resolved by listening for announcements first; an address (host or
host:port) is dialed directly.

Once connected, type a remote command such as MUTE or SET_VOLUME:40, or
one of the local commands listed by "help".`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().String("pin", "", "PIN shown by the target (prompted if omitted)")
	connectCmd.Flags().Duration("wait", 5*time.Second, "How long to listen for a named target")
	connectCmd.Flags().Bool("perf", false, "Print every telemetry sample as it arrives")
}

// remoteCommands are the names offered in help.
var remoteCommands = []string{
	remote.Mute, remote.VolumeUp, remote.VolumeDown, remote.SetVolume + ":<0-100>",
	remote.MediaPlayPause, remote.MediaNext, remote.MediaPrevious,
	remote.Lock, remote.TaskManager, remote.Notepad, remote.Calculator,
	remote.Sleep, remote.Hibernate, remote.SignOut, remote.ScreenOff,
	remote.Shutdown, remote.Restart,
	remote.MouseMove + ":<dx>:<dy>", remote.MouseClick + ":<left|right>",
}

func runConnect(cmd *cobra.Command, args []string) error {
	pin, _ := cmd.Flags().GetString("pin")
	wait, _ := cmd.Flags().GetDuration("wait")
	livePerf, _ := cmd.Flags().GetBool("perf")

	self, err := identity()
	if err != nil {
		return err
	}
	store, err := openPairing()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := signalContext()
	defer cancel()

	ctl := newController(self, func(c *controller.Config) {
		c.Paired = store
		c.Events = controller.Events{
			Perf: func(peer string, s telemetry.Sample) {
				if livePerf {
					fmt.Println(ui.RenderPerf(perfView(s.PerfUpdate)))
				}
			},
			Transfer: transfer.Events{
				Completed: func(r transfer.Record) {
					msg := fmt.Sprintf("%s %s (%s)", r.Direction, r.Name, ui.RenderBytes(r.Transferred))
					if r.Path != "" {
						msg += " -> " + r.Path
					}
					fmt.Println(ui.RenderSuccess(msg))
				},
				Failed: func(r transfer.Record, err error) {
					fmt.Println(ui.RenderError(fmt.Errorf("%s %s: %w", r.Direction, r.Name, err)))
				},
			},
		}
	})

	dev, named, err := resolveTarget(ctx, ctl, args[0], wait)
	if err != nil {
		return err
	}
	if pin == "" {
		hint := ""
		if named {
			hint = " (Enter to use the announced PIN)"
		}
		if pin, err = promptPIN(fmt.Sprintf("PIN for %s%s: ", dev.DisplayName, hint)); err != nil {
			return err
		}
	}

	spinner := ui.NewSpinner("Connecting...")
	spinner.Start()
	var link *controller.Link
	if named {
		link, err = ctl.ConnectDevice(ctx, dev.Address, pin)
	} else {
		link, err = ctl.Connect(ctx, dev.Address, pin)
	}
	spinner.Stop()
	if err != nil {
		if errors.Is(err, protocol.ErrRejected) {
			return fmt.Errorf("wrong PIN for %s", dev.DisplayName)
		}
		return err
	}
	defer link.Close()

	peer := link.Peer()
	fmt.Println(ui.RenderSuccess(fmt.Sprintf("Connected to %s (%s)", peer.Name, peer.Address)))
	fmt.Print(ui.RenderHelpLines(remoteCommands))
	return repl(ctx, link, os.Stdin)
}

// resolveTarget maps arg to a device. A discovered name or address wins;
// anything else is treated as an address to dial directly.
func resolveTarget(ctx context.Context, ctl *controller.Controller, arg string, wait time.Duration) (discovery.Device, bool, error) {
	listenCtx, stop := context.WithTimeout(ctx, wait)
	defer stop()

	found := make(chan struct{})
	go func() {
		defer close(found)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			if _, ok := ctl.Find(arg); ok {
				stop()
				return
			}
			select {
			case <-listenCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	spinner := ui.NewSpinner("Looking for " + arg + "...")
	spinner.Start()
	err := ctl.Discover(listenCtx)
	spinner.Stop()
	stop()
	<-found
	if err != nil && ctx.Err() == nil {
		// Discovery port busy (a local serve, say): dial directly.
		fmt.Println(ui.RenderDim("discovery unavailable: " + err.Error()))
	}
	if ctx.Err() != nil {
		return discovery.Device{}, false, ctx.Err()
	}

	if dev, ok := ctl.Find(arg); ok {
		return dev, true, nil
	}
	if strings.ContainsAny(arg, ".:") {
		return discovery.Device{Announcement: protocol.Announcement{DisplayName: arg, Address: arg}}, false, nil
	}
	return discovery.Device{}, false, fmt.Errorf("%w: %s", controller.ErrUnknownDevice, arg)
}

func promptPIN(prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// repl reads lines from in until exit, EOF, ctx cancellation or the link
// going away.
func repl(ctx context.Context, link *controller.Link, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-link.Done():
				return
			}
		}
	}()

	prompt := ui.RenderPrompt(link.Peer().Name)
	for {
		fmt.Print(prompt)
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case <-link.Done():
			fmt.Println()
			if err := link.Err(); err != nil {
				return fmt.Errorf("connection lost: %w", err)
			}
			fmt.Println(ui.RenderDim("Target closed the connection."))
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := dispatch(ctx, link, strings.TrimSpace(line))
			if err != nil {
				fmt.Println(ui.RenderError(err))
			}
			if quit {
				return nil
			}
		}
	}
}

func dispatch(ctx context.Context, link *controller.Link, line string) (bool, error) {
	verb, rest, _ := strings.Cut(line, " ")
	switch strings.ToLower(verb) {
	case "":
		return false, nil
	case "exit", "quit":
		return true, nil
	case "help":
		fmt.Print(ui.RenderHelpLines(remoteCommands))
	case "send":
		path := strings.TrimSpace(rest)
		if path == "" {
			return false, errors.New("usage: send <path>")
		}
		rec, err := link.SendFile(ctx, path)
		if err != nil {
			return false, err
		}
		fmt.Println(ui.RenderDim("offered " + ui.RenderProgress(rec.Name, 0, rec.Size)))
	case "screenshot":
		return false, link.Screenshot(ctx)
	case "perf":
		s, ok := link.Latest()
		if !ok {
			fmt.Println(ui.RenderDim("No telemetry yet."))
			return false, nil
		}
		fmt.Println(ui.RenderPerf(perfView(s.PerfUpdate)))
	case "transfers":
		recs := link.Transfers()
		if len(recs) == 0 {
			fmt.Println(ui.RenderDim("No transfers."))
		}
		for _, r := range recs {
			status := "in progress"
			switch {
			case r.Err != nil:
				status = r.Err.Error()
			case r.Done():
				status = "done"
			}
			fmt.Printf("  %-8s %s  %s\n", r.Direction, ui.RenderProgress(r.Name, r.Transferred, r.Size), ui.RenderDim(status))
		}
	default:
		cmd := protocol.ParseCommand(verb + suffix(rest))
		cmd.Name = strings.ToUpper(cmd.Name)
		return false, link.Send(ctx, cmd)
	}
	return false, nil
}

// suffix keeps "SET_VOLUME 40" working alongside "SET_VOLUME:40".
func suffix(rest string) string {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return ""
	}
	return protocol.ArgSep + strings.Join(fields, protocol.ArgSep)
}

func perfView(p protocol.PerfUpdate) ui.PerfView {
	return ui.PerfView(p)
}
