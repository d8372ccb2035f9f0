package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/06eren/Pc-Mobil-Bond/internal/ui"
)

var pairedCmd = &cobra.Command{
	Use:   "paired",
	Short: "List devices this machine has paired with",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openPairing()
		if err != nil {
			return err
		}
		defer store.Close()

		devs, err := store.List()
		if err != nil {
			return err
		}
		if len(devs) == 0 {
			fmt.Println(ui.RenderDim("No paired devices."))
			return nil
		}
		fmt.Printf("Paired devices (%d):\n\n", len(devs))
		for _, d := range devs {
			fmt.Printf("  %s\n", ui.Paint(ui.Heading, d.DisplayName))
			fmt.Printf("    %s  %s\n", d.Identity, ui.RenderDim("paired "+humanize.Time(d.PairedAt)))
		}
		return nil
	},
}

var pairedRemoveCmd = &cobra.Command{
	Use:   "remove <identity>",
	Short: "Forget a paired device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openPairing()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Remove(args[0]); err != nil {
			return err
		}
		fmt.Println(ui.RenderSuccess("Removed " + args[0]))
		return nil
	},
}

func init() {
	pairedCmd.AddCommand(pairedRemoveCmd)
}
