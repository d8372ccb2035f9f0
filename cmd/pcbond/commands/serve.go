package commands

import (
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/06eren/Pc-Mobil-Bond/internal/capture"
	remote "github.com/06eren/Pc-Mobil-Bond/internal/commands"
	"github.com/06eren/Pc-Mobil-Bond/internal/discovery"
	"github.com/06eren/Pc-Mobil-Bond/internal/exec"
	"github.com/06eren/Pc-Mobil-Bond/internal/observability"
	"github.com/06eren/Pc-Mobil-Bond/internal/pairing"
	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
	"github.com/06eren/Pc-Mobil-Bond/internal/target"
	"github.com/06eren/Pc-Mobil-Bond/internal/transfer"
	"github.com/06eren/Pc-Mobil-Bond/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Make this machine controllable and show its PIN",
	Long: `Listen for controllers on the session port, announce this machine on the
local network together with a freshly generated PIN, and execute the
commands of every controller that presents it.

A new PIN is generated every time serve starts.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("name", "", "Display name (default from config)")
	serveCmd.Flags().Int("port", 0, "Session port (default from config)")
	serveCmd.Flags().String("download-dir", "", "Where files from controllers are saved")
	serveCmd.Flags().String("metrics-addr", "", "Expose Prometheus metrics on this address")
	serveCmd.Flags().Bool("no-discovery", false, "Do not announce or answer connect requests")
	serveCmd.Flags().Bool("no-downloads", false, "Decline files sent by controllers")
	serveCmd.Flags().StringSlice("deny", nil, "Command names to refuse (adds to denied_commands)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if v, _ := cmd.Flags().GetString("name"); v != "" {
		cfg.DisplayName = v
	}
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		cfg.SessionPort = v
	}
	if v, _ := cmd.Flags().GetString("download-dir"); v != "" {
		cfg.DownloadDir = v
	}
	if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
		cfg.MetricsAddr = v
	}
	noDiscovery, _ := cmd.Flags().GetBool("no-discovery")
	if v, _ := cmd.Flags().GetBool("no-downloads"); v {
		cfg.DownloadDir = ""
	}

	if v, _ := cmd.Flags().GetStringSlice("deny"); len(v) > 0 {
		cfg.DeniedCommands = append(cfg.DeniedCommands, v...)
	}

	self, err := identity()
	if err != nil {
		return err
	}
	executor := remote.NewExecutor(exec.NewRunner())
	executor.SetPolicy(cfg.CommandPolicy())

	store, err := openPairing()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := observability.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
	}

	address := discovery.LocalIPv4()
	if address == "" {
		address = "no LAN address"
	}

	tg, err := target.New(target.Config{
		Name:              cfg.DisplayName,
		Identity:          self.ID,
		DiscoveryPort:     cfg.DiscoveryPort,
		AnnounceInterval:  cfg.AnnounceInterval.Duration,
		TelemetryInterval: cfg.TelemetryInterval.Duration,
		SeedPeers:         cfg.SeedPeers,
		DisableDiscovery:  noDiscovery,
		DownloadDir:       cfg.DownloadDir,
		Store:             store,
		Executor:          executor,
		Screen:            capture.Screen{MaxWidth: cfg.ScreenshotMaxWidth},
		Events: target.Events{
			PINChanged: func(pin string) {
				fmt.Print(ui.RenderPINCard(cfg.DisplayName, net.JoinHostPort(address, fmt.Sprint(cfg.SessionPort)), pin))
			},
			ConnectRequested: func(req protocol.ConnectRequest) {
				fmt.Println(ui.RenderDim(fmt.Sprintf("Connect request from %s", describePaired(store, req.OriginID))))
			},
			Connected: func(dev pairing.Device, from net.Addr) {
				fmt.Println(ui.RenderSuccess(fmt.Sprintf("%s connected from %s", dev.DisplayName, from)))
			},
			Disconnected: func(dev pairing.Device, err error) {
				msg := fmt.Sprintf("%s disconnected", dev.DisplayName)
				if err != nil {
					msg += ": " + err.Error()
				}
				fmt.Println(ui.RenderDim(msg))
			},
			Transfer: transfer.Events{
				Completed: func(r transfer.Record) {
					fmt.Println(ui.RenderSuccess(fmt.Sprintf("%s %s (%s)", r.Direction, r.Name, ui.RenderBytes(r.Transferred))))
				},
				Failed: func(r transfer.Record, err error) {
					fmt.Println(ui.RenderError(fmt.Errorf("%s %s: %w", r.Direction, r.Name, err)))
				},
			},
		},
	})
	if err != nil {
		return err
	}

	fmt.Print(ui.RenderBanner(Version, cfg.DisplayName, self.ID))
	if denied := cfg.CommandPolicy().ListDenied(); len(denied) > 0 {
		fmt.Println(ui.RenderDim("Refusing: " + strings.Join(denied, ", ")))
	}
	if !capture.Available() {
		fmt.Println(ui.RenderDim("No display found; SCREENSHOT requests will fail."))
	}
	return tg.ListenAndServe(ctx, cfg.SessionAddr())
}

func describePaired(store pairing.Store, identity string) string {
	if dev, ok, err := store.Lookup(identity); err == nil && ok {
		return dev.DisplayName
	}
	return identity
}
