package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/javanstorm/kvmigrate/pkg/hypervisor"
)

// isolateHome points HOME and XDG_CONFIG_HOME at fresh temp dirs.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "xdg"))
	return home
}

func TestDefaultConfig(t *testing.T) {
	isolateHome(t)
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig should not return nil")
	}
	if cfg.SSHUser != "root" {
		t.Errorf("SSHUser should be 'root', got %q", cfg.SSHUser)
	}
	if cfg.SSHPort != 22 {
		t.Errorf("SSHPort should be 22, got %d", cfg.SSHPort)
	}
	if !cfg.DryRun {
		t.Error("DryRun should be true by default")
	}
	if cfg.HypervisorKind != "kvm" {
		t.Errorf("HypervisorKind should be 'kvm', got %q", cfg.HypervisorKind)
	}
	if filepath.Base(cfg.BondCheckScript) != hypervisor.DefaultBondScript {
		t.Errorf("BondCheckScript = %q, want basename %q", cfg.BondCheckScript, hypervisor.DefaultBondScript)
	}
}

func TestGetPaths(t *testing.T) {
	home := isolateHome(t)

	paths, err := GetPaths()
	if err != nil {
		t.Fatalf("GetPaths() error = %v", err)
	}
	if paths.DataDir != filepath.Join(home, ".kvmigrate") {
		t.Errorf("DataDir = %q", paths.DataDir)
	}
	if paths.ConfigDir != filepath.Join(home, "xdg", "kvmigrate") {
		t.Errorf("ConfigDir = %q", paths.ConfigDir)
	}
	if paths.ConfigFile != filepath.Join(paths.DataDir, "config.yaml") {
		t.Errorf("ConfigFile = %q", paths.ConfigFile)
	}

	if err := paths.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories() error = %v", err)
	}
	for _, dir := range []string{paths.DataDir, paths.ConfigDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s should be a directory", dir)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	isolateHome(t)

	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PollInterval != hypervisor.DefaultPollInterval {
		t.Errorf("PollInterval = %v, want %v", cfg.PollInterval, hypervisor.DefaultPollInterval)
	}
	if !cfg.DryRun {
		t.Error("DryRun should default to true")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	home := isolateHome(t)
	dataDir := filepath.Join(home, ".kvmigrate")
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		t.Fatal(err)
	}
	yaml := strings.Join([]string{
		"ssh_user: migrator",
		"post_reboot_script: /opt/hooks/post-reboot.sh",
		"poll_interval: 2s",
		"dry_run: false",
		"threads: 4",
	}, "\n")
	if err := os.WriteFile(filepath.Join(dataDir, "config.yaml"), []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KVMIGRATE_SSH_USER", "from-env")

	v := viper.New()
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.SSHUser != "from-env" {
		t.Errorf("SSHUser = %q, want env override", cfg.SSHUser)
	}
	if cfg.PostRebootScript != "/opt/hooks/post-reboot.sh" {
		t.Errorf("PostRebootScript = %q", cfg.PostRebootScript)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", cfg.PollInterval)
	}
	if cfg.DryRun {
		t.Error("DryRun should be false from file")
	}
	if v.ConfigFileUsed() == "" {
		t.Error("config file should have been used")
	}

	job := cfg.JobConfig()
	if job.SSHUser != "from-env" || job.Threads != 4 || job.PostRebootScript != cfg.PostRebootScript {
		t.Errorf("JobConfig() = %+v", job)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	home := isolateHome(t)
	dataDir := filepath.Join(home, ".kvmigrate")
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "config.yaml"), []byte("ssh_user: [unterminated"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(viper.New()); err == nil {
		t.Error("Load() should fail on malformed YAML")
	}
}

func TestSSHOptions(t *testing.T) {
	tests := []struct {
		name     string
		keyPath  string
		identity string
		want     string
	}{
		{"configured key wins", "/keys/id_rsa", "/generated/id_ed25519", "/keys/id_rsa"},
		{"falls back to generated key", "", "/generated/id_ed25519", "/generated/id_ed25519"},
		{"no key", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{SSHKeyPath: tt.keyPath, ConnectTimeout: time.Second}
			opts := cfg.SSHOptions(tt.identity)
			if opts.IdentityFile != tt.want {
				t.Errorf("IdentityFile = %q, want %q", opts.IdentityFile, tt.want)
			}
			if opts.ConnectTimeout != time.Second {
				t.Errorf("ConnectTimeout = %v, want 1s", opts.ConnectTimeout)
			}
		})
	}
}
