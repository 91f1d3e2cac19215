package hypervisor

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/javanstorm/kvmigrate/internal/remote"
)

// Default liveness timings.
const (
	DefaultPollInterval  = 5 * time.Second
	DefaultSettleDelay   = 10 * time.Second
	DefaultRebootTimeout = 30 * time.Minute
	DefaultSSHPort       = 22
	DefaultBondScript    = "kvm_check_bonds.sh"
)

// JobConfig holds the caller-supplied settings for one migration job.
type JobConfig struct {
	// SSHUser is the principal used for every remote command.
	SSHUser string

	// SSHPort is the port polled while waiting for a host to return.
	SSHPort int

	// Threads is accepted for compatibility; execution is always serial.
	Threads int

	// PreEmptyScript runs before a host is emptied (uploaded only).
	PreEmptyScript string

	// PostEmptyScript runs once the host is empty, right before the reboot.
	PostEmptyScript string

	// PostRebootScript runs once the host is back.
	PostRebootScript string

	// HelperScriptsPath is a local directory whose files are copied into
	// the migration working directory (virt-customize scripts, utc.reg).
	HelperScriptsPath string

	// BondCheckScript is the local path of the bond status check script.
	BondCheckScript string

	// DryRun skips every staging side effect.
	DryRun bool

	// PollInterval is the delay between liveness checks.
	PollInterval time.Duration

	// SettleDelay is the pause after SSH answers again.
	SettleDelay time.Duration

	// RebootTimeout bounds the whole wait for a rebooting host (0 = none).
	RebootTimeout time.Duration
}

// DefaultJobConfig returns a JobConfig with the stock settings.
// Dry-run is on until the caller explicitly asks for execution.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		SSHUser:         "root",
		SSHPort:         DefaultSSHPort,
		Threads:         1,
		BondCheckScript: DefaultBondScript,
		DryRun:          true,
		PollInterval:    DefaultPollInterval,
		SettleDelay:     DefaultSettleDelay,
		RebootTimeout:   DefaultRebootTimeout,
	}
}

// Validate performs basic validation and fills zero timings with defaults.
func (c *JobConfig) Validate() error {
	if c.SSHUser == "" {
		return ErrMissingPrincipal
	}
	if c.PollInterval < 0 || c.SettleDelay < 0 || c.RebootTimeout < 0 {
		return ErrInvalidPollTimings
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.SSHPort == 0 {
		c.SSHPort = DefaultSSHPort
	}
	if c.BondCheckScript == "" {
		c.BondCheckScript = DefaultBondScript
	}
	return nil
}

// Deps carries the collaborators a backend is built with.
type Deps struct {
	Executor remote.Executor
	Ports    remote.PortChecker
	Logger   *zap.SugaredLogger

	// Progress receives liveness progress indicators (nil = discard).
	Progress io.Writer

	// Sleep overrides the polling delay; nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}
