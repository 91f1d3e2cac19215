package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	eventemitter "github.com/vansante/go-event-emitter"
	"go.uber.org/zap"

	"github.com/javanstorm/kvmigrate/internal/config"
	"github.com/javanstorm/kvmigrate/internal/inventory"
	"github.com/javanstorm/kvmigrate/internal/kvm"
	"github.com/javanstorm/kvmigrate/internal/logging"
	"github.com/javanstorm/kvmigrate/internal/metrics"
	"github.com/javanstorm/kvmigrate/internal/remote"
	"github.com/javanstorm/kvmigrate/internal/timing"
	"github.com/javanstorm/kvmigrate/pkg/hypervisor"
)

// newExecutor builds the remote transport; tests replace it.
var newExecutor = func(opts remote.SSHOptions) remote.Executor {
	return remote.NewSSHExecutor(opts)
}

// app is the state shared by the commands of one invocation.
type app struct {
	cfg      *config.Config
	log      *zap.SugaredLogger
	inv      *inventory.Inventory
	metrics  *metrics.Recorder
	timer    *timing.Timer
	identity string
	progress io.Writer
}

var current *app

// setup loads configuration and builds the logger, inventory and metrics
// for the command about to run.
func setup(cmd *cobra.Command) error {
	v, err := newSettings(cmd.Root().PersistentFlags())
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if execute {
		cfg.DryRun = false
	}

	zl, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	log := zl.Sugar()

	if needsHosts(cmd) {
		if issues := config.ValidateConfig(cfg); len(issues) > 0 {
			fmt.Fprint(cmd.ErrOrStderr(), config.FormatValidationErrors(issues))
			if config.HasFatal(issues) {
				return errors.New("invalid configuration")
			}
		}
	}

	inv, err := inventory.Load(cfg.InventoryFile)
	if err != nil {
		return err
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		inv:      inv,
		metrics:  metrics.NewRecorder(),
		timer:    timing.New("Migration Timing"),
		progress: cmd.ErrOrStderr(),
	}
	if paths, err := config.GetPaths(); err == nil {
		km := remote.NewKeyManager(paths.DataDir)
		if km.KeyPairExists() {
			a.identity, _ = km.PrivateKeyPath()
		}
	}

	if cfg.DryRun {
		log.Info("Dry run: no changes will be made, use --exec to execute")
	}
	current = a
	return nil
}

// needsHosts reports whether cmd talks to hypervisors.
func needsHosts(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "keygen", "hosts", "config":
		return false
	}
	return true
}

// driver creates the backend for one job with metrics and timing wired
// to its events.
func (a *app) driver() (hypervisor.Driver, error) {
	exec := a.metrics.InstrumentExecutor(newExecutor(a.cfg.SSHOptions(a.identity)))
	d, err := hypervisor.New(hypervisor.Kind(a.cfg.HypervisorKind), a.cfg.JobConfig(), hypervisor.Deps{
		Executor: exec,
		Logger:   a.log,
		Progress: a.progress,
	})
	if err != nil {
		return nil, err
	}
	if o, ok := d.(*kvm.Orchestrator); ok {
		o.AddCapturer(a.capture)
	}
	return d, nil
}

// capture feeds orchestrator events to metrics and the timing report.
func (a *app) capture(event eventemitter.EventType, arguments ...interface{}) {
	a.metrics.Capture(event, arguments...)

	switch event {
	case kvm.StepCompletedEvent, kvm.StepFailedEvent:
		if len(arguments) < 4 {
			return
		}
		step, _ := arguments[2].(kvm.Step)
		elapsed, _ := arguments[3].(time.Duration)
		a.timer.Record(string(step), elapsed, event == kvm.StepFailedEvent)
	}
}

// host resolves a single host argument against the inventory.
func (a *app) host(arg string) (hypervisor.Host, error) {
	hosts, err := a.inv.Resolve([]string{arg})
	if err != nil {
		return hypervisor.Host{}, err
	}
	return hosts[0], nil
}

// finish writes the metrics file and timing report.
func (a *app) finish(w io.Writer) error {
	if showTiming {
		a.timer.Report(w)
	}
	if a.cfg.MetricsFile != "" {
		return a.metrics.WriteTextfile(a.cfg.MetricsFile)
	}
	return nil
}
