package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javanstorm/kvmigrate/internal/kvm"
	"github.com/javanstorm/kvmigrate/pkg/hypervisor"
)

var migrateVolumeCmd = &cobra.Command{
	Use:   "migrate-volume <host> <volume-id>",
	Short: "Download and convert one volume onto a KVM host",
	Long: `Stage a migration folder on the host's shared storage, download the
source disk (<volume-id>.vhd) and convert it into a qcow2 volume in the
storage pool.

Root disks get virtio drivers injected and OS specific fixups applied;
pass --data-disk to skip all of that.`,
	Args: cobra.ExactArgs(2),
	RunE: runMigrateVolume,
}

var (
	sourceURL    string
	dataDisk     bool
	fixPartition bool
)

func init() {
	migrateVolumeCmd.Flags().StringVar(&sourceURL, "url", "", "URL of the source disk (skip download when empty)")
	migrateVolumeCmd.Flags().BoolVar(&dataDisk, "data-disk", false, "Volume is a data disk (no driver injection)")
	migrateVolumeCmd.Flags().BoolVar(&fixPartition, "fix-partition", true, "Pad the image to fix virtual versus physical size")
}

func runMigrateVolume(cmd *cobra.Command, args []string) error {
	a := current
	host, err := a.host(args[0])
	if err != nil {
		return err
	}
	volumeID := args[1]

	d, err := a.driver()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if err := stage(cmd, d, host); err != nil {
		return err
	}
	a.timer.Mark("staging")

	if a.cfg.DryRun {
		a.log.Infof("Would have downloaded and converted volume %s on %s", volumeID, host)
		return nil
	}

	if sourceURL != "" {
		if err := d.DownloadVolume(ctx, host, sourceURL, volumeID); err != nil {
			return err
		}
	}

	opts := hypervisor.ConvertOptions{InjectDrivers: !dataDisk, FixPartition: fixPartition}
	if err := d.ConvertVolume(ctx, host, volumeID, opts); err != nil {
		return err
	}

	if o, ok := d.(*kvm.Orchestrator); ok {
		if family, detected := o.OSFamily(); detected {
			fmt.Fprintf(cmd.OutOrStdout(), "Guest OS family: %s\n", family.Title())
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Volume %s is in place on %s\n", volumeID, host.Name)
	return nil
}

var prepareCmd = &cobra.Command{
	Use:   "prepare <host>",
	Short: "Create the migration folder and upload scripts",
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
		return stage(cmd, d, host)
	},
}

// stage prepares the migration folder and pushes the scripts.
func stage(cmd *cobra.Command, d hypervisor.Driver, host hypervisor.Host) error {
	ctx := cmd.Context()
	if err := d.PrepareStaging(ctx, host); err != nil {
		return err
	}
	if err := d.PushHelperScripts(ctx, host); err != nil {
		return err
	}
	if path, err := d.MigrationPath(); err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Migration folder: %s\n", path)
	}
	return nil
}
