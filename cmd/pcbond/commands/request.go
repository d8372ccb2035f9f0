package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/06eren/Pc-Mobil-Bond/internal/ui"
)

var requestCmd = &cobra.Command{
	Use:   "request <paired name or identity>",
	Short: "Ask a paired target to show its PIN",
	Long: `Broadcast a connect request to a previously paired target. A target
running "pcbond serve" answers by announcing itself right away and showing
its PIN.`,
	Args: cobra.ExactArgs(1),
	RunE: runRequest,
}

func init() {
	requestCmd.Flags().StringSlice("peer", nil, "Also send the request to this host:port")
}

func runRequest(cmd *cobra.Command, args []string) error {
	extra, _ := cmd.Flags().GetStringSlice("peer")
	extra = append(extra, cfg.SeedPeers...)

	self, err := identity()
	if err != nil {
		return err
	}
	store, err := openPairing()
	if err != nil {
		return err
	}
	defer store.Close()

	targetID, name := args[0], args[0]
	devs, err := store.List()
	if err != nil {
		return err
	}
	for _, d := range devs {
		if d.Identity == args[0] || d.DisplayName == args[0] {
			targetID, name = d.Identity, d.DisplayName
			break
		}
	}

	if err := newController(self).RequestConnect(targetID, extra...); err != nil {
		return err
	}
	fmt.Println(ui.RenderSuccess(fmt.Sprintf("Connect request sent to %s.", name)))
	return nil
}
