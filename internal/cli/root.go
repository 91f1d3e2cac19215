// Package cli provides the command-line interface for kvmigrate.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps config keys to the persistent flags overriding them.
var flagKeys = map[string]string{
	"log_level":       "log-level",
	"ssh_user":        "ssh-user",
	"ssh_key_path":    "ssh-key",
	"inventory_file":  "inventory",
	"metrics_file":    "metrics-file",
	"hypervisor_kind": "hypervisor-kind",
}

var (
	configFile string
	execute    bool
	showTiming bool
)

var rootCmd = &cobra.Command{
	Use:   "kvmigrate",
	Short: "kvmigrate - move VM volumes onto KVM hypervisors",
	Long: `kvmigrate stages a working directory on a KVM host's shared storage,
downloads and converts source disks into qcow2 volumes, and cycles emptied
hypervisors through a reboot while waiting for them to come back.

Nothing is changed on the hosts unless --exec is given.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it
		switch cmd.Name() {
		case "version", "completion", "help":
			return nil
		}
		return setup(cmd)
	},
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if current != nil {
		if ferr := current.finish(os.Stderr); ferr != nil && err == nil {
			err = ferr
		}
	}
	if err != nil {
		return errors.Wrap(err, "command failed")
	}
	return nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default: ~/.kvmigrate/config.yaml)")
	flags.BoolVar(&execute, "exec", false, "Execute changes on the hosts (default is a dry run)")
	flags.BoolVar(&showTiming, "timing", false, "Print a timing report when done")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("ssh-user", "", "SSH user on the hypervisors")
	flags.String("ssh-key", "", "SSH private key (default: key from 'kvmigrate keygen')")
	flags.String("inventory", "", "Hypervisor inventory file")
	flags.String("metrics-file", "", "Write Prometheus metrics to this textfile on exit")
	flags.String("hypervisor-kind", "", "Hypervisor backend")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(migrateVolumeCmd)
	rootCmd.AddCommand(prepareCmd)
	rootCmd.AddCommand(preEmptyCmd)
	rootCmd.AddCommand(rebootCmd)
	rootCmd.AddCommand(bondStatusCmd)
	rootCmd.AddCommand(vmCountCmd)
	rootCmd.AddCommand(patchLevelCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(hostsCmd)
	rootCmd.AddCommand(configCmd)
}

// newSettings returns a viper instance with the persistent flags bound.
func newSettings(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	for key, name := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, errors.Wrapf(err, "bind flag %s", name)
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	return v, nil
}
