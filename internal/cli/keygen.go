package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/javanstorm/kvmigrate/internal/config"
	"github.com/javanstorm/kvmigrate/internal/remote"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the SSH key used to reach the hypervisors",
	Long: `Generate an ed25519 key pair in ~/.kvmigrate/ssh and print the public
key to add to the hypervisors' authorized_keys. The key is used whenever
ssh_key_path is not configured.`,
	RunE: runKeygen,
}

var forceKey bool

func init() {
	keygenCmd.Flags().BoolVarP(&forceKey, "force", "f", false, "Overwrite existing key")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	paths, err := config.GetPaths()
	if err != nil {
		return errors.Wrap(err, "determine paths")
	}
	km := remote.NewKeyManager(paths.DataDir)
	out := cmd.OutOrStdout()

	if km.KeyPairExists() && !forceKey {
		path, _ := km.PrivateKeyPath()
		fmt.Fprintf(out, "Key already exists: %s\n", path)
		fmt.Fprintln(out, "Use --force to overwrite.")
		return nil
	}
	if forceKey {
		if path, err := km.PrivateKeyPath(); err == nil {
			for _, p := range []string{path, path + ".pub"} {
				if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
					return errors.Wrap(err, "remove old key")
				}
			}
		}
	}

	privPath, pubPath, err := km.EnsureKeyPair()
	if err != nil {
		return err
	}
	pubKey, err := km.AuthorizedKey()
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "SSH key generated successfully!")
	fmt.Fprintf(out, "  Private key: %s\n", privPath)
	fmt.Fprintf(out, "  Public key:  %s\n", pubPath)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Add the public key to every hypervisor:")
	fmt.Fprintf(out, "  echo '%s' >> ~/.ssh/authorized_keys\n", strings.TrimSpace(pubKey))
	return nil
}
