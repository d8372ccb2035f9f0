package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/06eren/Pc-Mobil-Bond/internal/controller"
	"github.com/06eren/Pc-Mobil-Bond/internal/discovery"
	"github.com/06eren/Pc-Mobil-Bond/internal/handshake"
	"github.com/06eren/Pc-Mobil-Bond/internal/ui"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List targets announcing themselves on the local network",
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().Duration("timeout", 7*time.Second, "How long to listen for announcements")
	scanCmd.Flags().Bool("show-pin", false, "Also print the PIN each target announces")
}

func runScan(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	showPIN, _ := cmd.Flags().GetBool("show-pin")

	self, err := identity()
	if err != nil {
		return err
	}
	ctl := newController(self)

	ctx, cancel := signalContext()
	defer cancel()
	ctx, stop := context.WithTimeout(ctx, timeout)
	defer stop()

	spinner := ui.NewSpinner("Listening for devices...")
	spinner.Start()
	err = ctl.Discover(ctx)
	spinner.Stop()
	if err != nil {
		return err
	}

	devs := ctl.Devices()
	fmt.Print(ui.RenderDevices(deviceRows(devs)))
	if showPIN {
		for _, d := range devs {
			fmt.Printf("  %s: %s\n", d.DisplayName, d.PIN)
		}
	}
	return nil
}

func deviceRows(devs []discovery.Device) []ui.DeviceRow {
	rows := make([]ui.DeviceRow, 0, len(devs))
	for _, d := range devs {
		rows = append(rows, ui.DeviceRow{Name: d.DisplayName, Address: d.Address, ID: d.OriginID, Seen: d.SeenAt})
	}
	return rows
}

// newController builds a controller from the loaded config.
func newController(self handshake.Identity, opts ...func(*controller.Config)) *controller.Controller {
	c := controller.Config{
		Identity:      self,
		DiscoveryPort: cfg.DiscoveryPort,
		SessionPort:   cfg.SessionPort,
		DownloadDir:   cfg.DownloadDir,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return controller.New(c)
}
