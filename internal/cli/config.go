package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/javanstorm/kvmigrate/internal/config"
	"github.com/javanstorm/kvmigrate/internal/guestos"
	"github.com/javanstorm/kvmigrate/pkg/hypervisor"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Print the configuration after merging defaults, the config file,
KVMIGRATE_* environment variables and flags, followed by any validation
issues.

Exits non-zero when a setting would stop migrations from running.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := current.cfg
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "kvmigrate Configuration")
	fmt.Fprintln(out, "=======================")
	if err := printSettings(out, cfg); err != nil {
		return err
	}

	issues := config.ValidateConfig(cfg)
	if !hypervisor.IsRegistered(hypervisor.Kind(cfg.HypervisorKind)) {
		issues = append(issues, config.ValidationError{
			Field:   "hypervisor_kind",
			Message: fmt.Sprintf("unknown backend %q, available: %v", cfg.HypervisorKind, hypervisor.Kinds()),
			Fatal:   true,
		})
	}
	if len(issues) == 0 {
		fmt.Fprintln(out, "\nConfiguration OK")
		return nil
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, config.FormatValidationErrors(issues))
	if config.HasFatal(issues) {
		return errors.Errorf("configuration has %d issue(s)", len(issues))
	}
	return nil
}

func printSettings(w io.Writer, cfg *config.Config) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := []struct {
		key   string
		value interface{}
	}{
		{"hypervisor_kind", cfg.HypervisorKind},
		{"ssh_user", cfg.SSHUser},
		{"ssh_port", cfg.SSHPort},
		{"ssh_key_path", orNone(cfg.SSHKeyPath)},
		{"ssh_password", mask(cfg.SSHPassword)},
		{"use_agent", cfg.UseAgent},
		{"known_hosts_file", orNone(cfg.KnownHostsFile)},
		{"connect_timeout", cfg.ConnectTimeout},
		{"pre_empty_script", orNone(cfg.PreEmptyScript)},
		{"post_empty_script", orNone(cfg.PostEmptyScript)},
		{"post_reboot_script", orNone(cfg.PostRebootScript)},
		{"helper_scripts_path", orNone(cfg.HelperScriptsPath)},
		{"bond_check_script", cfg.BondCheckScript},
		{"threads", cfg.Threads},
		{"dry_run", cfg.DryRun},
		{"poll_interval", cfg.PollInterval},
		{"settle_delay", cfg.SettleDelay},
		{"reboot_timeout", cfg.RebootTimeout},
		{"inventory_file", cfg.InventoryFile},
		{"log_level", cfg.LogLevel},
		{"metrics_file", orNone(cfg.MetricsFile)},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%v\n", r.key, r.value)
	}
	fmt.Fprintf(tw, "guest_families\t%s\n", strings.Join(guestFamilies(), ", "))
	return tw.Flush()
}

// guestFamilies names the OS families the conversion pipeline can fix up.
func guestFamilies() []string {
	var names []string
	for _, id := range guestos.List() {
		if p, err := guestos.Get(id); err == nil {
			names = append(names, p.Name())
		}
	}
	return names
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func mask(s string) string {
	if s == "" {
		return "(none)"
	}
	return "********"
}
