package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/javanstorm/kvmigrate/internal/remote"
	"github.com/javanstorm/kvmigrate/pkg/hypervisor"
)

// Config holds all kvmigrate configuration.
type Config struct {
	// HypervisorKind selects the backend (only "kvm" today).
	HypervisorKind string `mapstructure:"hypervisor_kind"`

	// SSHUser is the principal used on the hypervisors.
	SSHUser string `mapstructure:"ssh_user"`

	// SSHPort is the SSH port of the hypervisors.
	SSHPort int `mapstructure:"ssh_port"`

	// SSHKeyPath is the private key for authentication. Empty falls back to
	// the key created by 'kvmigrate keygen', if any.
	SSHKeyPath string `mapstructure:"ssh_key_path"`

	// SSHPassword enables password authentication.
	SSHPassword string `mapstructure:"ssh_password"`

	// UseAgent adds the keys held by the running ssh-agent.
	UseAgent bool `mapstructure:"use_agent"`

	// KnownHostsFile enables host key checking when set.
	KnownHostsFile string `mapstructure:"known_hosts_file"`

	// ConnectTimeout bounds dialing a hypervisor.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	// PreEmptyScript, PostEmptyScript and PostRebootScript are local hook
	// scripts uploaded to /tmp on the hypervisor.
	PreEmptyScript   string `mapstructure:"pre_empty_script"`
	PostEmptyScript  string `mapstructure:"post_empty_script"`
	PostRebootScript string `mapstructure:"post_reboot_script"`

	// HelperScriptsPath is copied into the migration folder.
	HelperScriptsPath string `mapstructure:"helper_scripts_path"`

	// BondCheckScript is the local bond status check script.
	BondCheckScript string `mapstructure:"bond_check_script"`

	// Threads is accepted but migrations always run serially.
	Threads int `mapstructure:"threads"`

	// DryRun reports what would happen without touching the hosts.
	DryRun bool `mapstructure:"dry_run"`

	PollInterval  time.Duration `mapstructure:"poll_interval"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
	RebootTimeout time.Duration `mapstructure:"reboot_timeout"`

	// InventoryFile lists the known hypervisors.
	InventoryFile string `mapstructure:"inventory_file"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	// MetricsFile, when set, receives a Prometheus textfile dump on exit.
	MetricsFile string `mapstructure:"metrics_file"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	paths, err := GetPaths()
	if err != nil {
		// Fallback if we can't determine home directory
		paths = &Paths{
			DataDir: "/tmp/kvmigrate",
		}
	}

	job := hypervisor.DefaultJobConfig()
	return &Config{
		HypervisorKind:  string(hypervisor.KindKVM),
		SSHUser:         job.SSHUser,
		SSHPort:         job.SSHPort,
		ConnectTimeout:  15 * time.Second,
		BondCheckScript: filepath.Join(paths.DataDir, "scripts", hypervisor.DefaultBondScript),
		Threads:         job.Threads,
		DryRun:          job.DryRun,
		PollInterval:    job.PollInterval,
		SettleDelay:     job.SettleDelay,
		RebootTimeout:   job.RebootTimeout,
		InventoryFile:   filepath.Join(paths.DataDir, "hosts.yaml"),
		LogLevel:        "info",
	}
}

// Load reads configuration from file, environment, and defaults into v.
// Flags bound to v beforehand take precedence over all three.
func Load(v *viper.Viper) (*Config, error) {
	paths, err := GetPaths()
	if err != nil {
		return nil, errors.Wrap(err, "failed to determine paths")
	}

	// Set defaults
	defaults := DefaultConfig()
	v.SetDefault("hypervisor_kind", defaults.HypervisorKind)
	v.SetDefault("ssh_user", defaults.SSHUser)
	v.SetDefault("ssh_port", defaults.SSHPort)
	v.SetDefault("ssh_key_path", defaults.SSHKeyPath)
	v.SetDefault("ssh_password", defaults.SSHPassword)
	v.SetDefault("use_agent", defaults.UseAgent)
	v.SetDefault("known_hosts_file", defaults.KnownHostsFile)
	v.SetDefault("connect_timeout", defaults.ConnectTimeout)
	v.SetDefault("pre_empty_script", defaults.PreEmptyScript)
	v.SetDefault("post_empty_script", defaults.PostEmptyScript)
	v.SetDefault("post_reboot_script", defaults.PostRebootScript)
	v.SetDefault("helper_scripts_path", defaults.HelperScriptsPath)
	v.SetDefault("bond_check_script", defaults.BondCheckScript)
	v.SetDefault("threads", defaults.Threads)
	v.SetDefault("dry_run", defaults.DryRun)
	v.SetDefault("poll_interval", defaults.PollInterval)
	v.SetDefault("settle_delay", defaults.SettleDelay)
	v.SetDefault("reboot_timeout", defaults.RebootTimeout)
	v.SetDefault("inventory_file", defaults.InventoryFile)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("metrics_file", defaults.MetricsFile)

	// Config file settings
	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(paths.DataDir)
		v.AddConfigPath(paths.ConfigDir)
	}

	// Environment variable support: KVMIGRATE_SSH_USER, KVMIGRATE_DRY_RUN, etc.
	v.SetEnvPrefix("KVMIGRATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Read config file (optional - not an error if missing)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "failed to read config")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	return cfg, nil
}

// JobConfig converts the settings into a migration job configuration.
func (c *Config) JobConfig() hypervisor.JobConfig {
	return hypervisor.JobConfig{
		SSHUser:           c.SSHUser,
		SSHPort:           c.SSHPort,
		Threads:           c.Threads,
		PreEmptyScript:    c.PreEmptyScript,
		PostEmptyScript:   c.PostEmptyScript,
		PostRebootScript:  c.PostRebootScript,
		HelperScriptsPath: c.HelperScriptsPath,
		BondCheckScript:   c.BondCheckScript,
		DryRun:            c.DryRun,
		PollInterval:      c.PollInterval,
		SettleDelay:       c.SettleDelay,
		RebootTimeout:     c.RebootTimeout,
	}
}

// SSHOptions returns the transport settings. identity is used when no
// key path is configured.
func (c *Config) SSHOptions(identity string) remote.SSHOptions {
	key := c.SSHKeyPath
	if key == "" {
		key = identity
	}
	return remote.SSHOptions{
		IdentityFile:   key,
		Password:       c.SSHPassword,
		UseAgent:       c.UseAgent,
		KnownHostsFile: c.KnownHostsFile,
		ConnectTimeout: c.ConnectTimeout,
	}
}
