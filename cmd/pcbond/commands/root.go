package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/06eren/Pc-Mobil-Bond/internal/config"
	"github.com/06eren/Pc-Mobil-Bond/internal/deviceid"
	"github.com/06eren/Pc-Mobil-Bond/internal/handshake"
	"github.com/06eren/Pc-Mobil-Bond/internal/logging"
	"github.com/06eren/Pc-Mobil-Bond/internal/pairing"
	"github.com/06eren/Pc-Mobil-Bond/internal/ui"
)

var (
	// Version is set at build time
	Version = "dev"
	// Commit is set at build time
	Commit = "none"
)

// state shared by subcommands, filled in by loadState
var (
	cfg   *config.Config
	paths *config.Paths
)

var rootCmd = &cobra.Command{
	Use:   "pcbond",
	Short: "pcbond - pair, control and exchange files with devices on your LAN",
	Long: `pcbond lets one device (the controller) discover another device on the
local network (the target), authenticate with the PIN the target shows, and
then send it media, power and input commands, exchange files and
screenshots, and watch its live performance figures.

Run "pcbond serve" on the machine to control and "pcbond connect" on the
controlling one.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadState,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: ~/.pcbond/config.toml)")
	rootCmd.PersistentFlags().String("env-file", ".env", "Optional KEY=value file loaded before the config")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(requestCmd)
	rootCmd.AddCommand(pairedCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pcbond\n")
		fmt.Printf("  Version:  %s\n", Version)
		fmt.Printf("  Commit:   %s\n", Commit)
		fmt.Printf("  Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func loadState(cmd *cobra.Command, args []string) error {
	logging.ConfigureRuntime()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logging.SetLevel(zerolog.DebugLevel)
	}
	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		ui.SetNoColor(true)
	}

	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	var err error
	if paths, err = config.GetPaths(); err != nil {
		return err
	}
	configFile, _ := cmd.Flags().GetString("config")
	if configFile == "" {
		configFile = paths.ConfigFile
	}
	if cfg, err = config.Load(configFile); err != nil {
		return err
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = paths.DownloadsDir
	}
	return paths.EnsureDirectories()
}

// identity returns this installation's handshake identity.
func identity() (handshake.Identity, error) {
	id, err := deviceid.GetOrCreate(paths.DeviceIDFile)
	if err != nil {
		return handshake.Identity{}, err
	}
	return handshake.Identity{ID: id, DisplayName: cfg.DisplayName}, nil
}

func openPairing() (pairing.Store, error) {
	return pairing.Open(cfg.PairingBackend, paths.PairingFile(cfg.PairingBackend))
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
