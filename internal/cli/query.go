package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var vmCountCmd = &cobra.Command{
	Use:   "vm-count <host>",
	Short: "Print the number of running VMs on a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, err := current.host(args[0])
		if err != nil {
			return err
		}
		d, err := current.driver()
		if err != nil {
			return err
		}
		n, err := d.VMCount(cmd.Context(), host)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

var bondStatusCmd = &cobra.Command{
	Use:   "bond-status <host>",
	Short: "Print the bond status reported by the uploaded check script",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, err := current.host(args[0])
		if err != nil {
			return err
		}
		d, err := current.driver()
		if err != nil {
			return err
		}
		// Dry runs expect the check script from an earlier upload.
		if err := d.PushHostScripts(cmd.Context(), host); err != nil {
			return err
		}
		status, err := d.BondStatus(cmd.Context(), host)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), status)
		return nil
	},
}

var patchLevelCmd = &cobra.Command{
	Use:   "patch-level <host>...",
	Short: "Print the number of pending updates per host",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hosts, err := current.inv.Resolve(args)
		if err != nil {
			return err
		}
		d, err := current.driver()
		if err != nil {
			return err
		}
		report, err := d.PatchLevel(cmd.Context(), hosts)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), report)
		return nil
	},
}
