package cli

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/javanstorm/kvmigrate/pkg/hypervisor"
)

var rebootCmd = &cobra.Command{
	Use:   "reboot <host>",
	Short: "Reboot an empty hypervisor and wait for it to return",
	Long: `Reboot a hypervisor that runs no VMs. The hook scripts and bond check script
are uploaded to /tmp and the post-empty hook runs. Then the host is rebooted
(or halted, or force-reset) and kvmigrate waits until SSH and libvirt answer
again before running the post-reboot hook.`,
	Args: cobra.ExactArgs(1),
	RunE: runReboot,
}

var (
	halt       bool
	forceReset bool
)

func init() {
	rebootCmd.Flags().BoolVar(&halt, "halt", false, "Halt instead of reboot")
	rebootCmd.Flags().BoolVar(&forceReset, "force-reset", false, "Reset immediately through sysrq")
	rebootCmd.MarkFlagsMutuallyExclusive("halt", "force-reset")
}

func rebootMode() hypervisor.RebootMode {
	switch {
	case halt:
		return hypervisor.ModeHalt
	case forceReset:
		return hypervisor.ModeForceReset
	default:
		return hypervisor.ModeReboot
	}
}

func runReboot(cmd *cobra.Command, args []string) error {
	a := current
	host, err := a.host(args[0])
	if err != nil {
		return err
	}
	d, err := a.driver()
	if err != nil {
		return err
	}
	mode := rebootMode()

	if a.cfg.DryRun {
		n, err := d.VMCount(cmd.Context(), host)
		if err != nil {
			return err
		}
		if n != 0 {
			return errors.Wrapf(hypervisor.ErrHostNotEmpty, "%s has %d running VMs", host.Name, n)
		}
		a.log.Infof("Would have done a %s of %s", mode, host)
		return nil
	}

	if err := d.PushHostScripts(cmd.Context(), host); err != nil {
		return err
	}
	if err := d.Reboot(cmd.Context(), host, mode); err != nil {
		if errors.Is(err, hypervisor.ErrLivenessTimeout) {
			a.log.Errorf("%s did not come back within %s", host, a.cfg.RebootTimeout)
		}
		return err
	}
	a.timer.Mark(mode.String())
	fmt.Fprintf(cmd.OutOrStdout(), "Host %s is back\n", host.Name)
	return nil
}

var preEmptyCmd = &cobra.Command{
	Use:   "pre-empty <host>",
	Short: "Run the pre-empty hook on a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := current
		host, err := a.host(args[0])
		if err != nil {
			return err
		}
		if a.cfg.DryRun {
			a.log.Infof("Would have run %q on %s", a.cfg.PreEmptyScript, host)
			return nil
		}
		d, err := a.driver()
		if err != nil {
			return err
		}
		if err := d.PushHostScripts(cmd.Context(), host); err != nil {
			return err
		}
		return d.RunPreEmptyHook(cmd.Context(), host)
	},
}
