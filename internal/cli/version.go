package cli

import (
	"fmt"

	"github.com/javanstorm/kvmigrate/internal/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print the version, commit hash, and build date of kvmigrate.",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "kvmigrate %s\n", version.Version)
		fmt.Fprintf(out, "  Commit:     %s\n", version.Commit)
		fmt.Fprintf(out, "  Build Date: %s\n", version.BuildDate)
	},
}
