package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "List the hypervisors in the inventory",
	RunE: func(cmd *cobra.Command, args []string) error {
		hosts := current.inv.Sorted()
		if len(hosts) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No hosts in %s\n", current.cfg.InventoryFile)
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tADDRESS")
		for _, h := range hosts {
			fmt.Fprintf(w, "%s\t%s\n", h.Name, h.IPAddress)
		}
		return w.Flush()
	},
}
