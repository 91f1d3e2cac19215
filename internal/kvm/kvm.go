// Package kvm implements the migration orchestrator for KVM hosts: it stages
// a working directory on shared storage, converts source disks into qcow2
// volumes and cycles emptied hosts through a reboot.
package kvm

import (
	"context"
	"time"

	"github.com/pkg/errors"
	eventemitter "github.com/vansante/go-event-emitter"
	"go.uber.org/zap"

	"github.com/javanstorm/kvmigrate/internal/guestos"
	"github.com/javanstorm/kvmigrate/internal/remote"
	"github.com/javanstorm/kvmigrate/internal/terminal"
	"github.com/javanstorm/kvmigrate/internal/version"
	"github.com/javanstorm/kvmigrate/pkg/hypervisor"
)

var _ hypervisor.Driver = (*Orchestrator)(nil)

func init() {
	hypervisor.Register(hypervisor.KindKVM, func(cfg hypervisor.JobConfig, deps hypervisor.Deps) (hypervisor.Driver, error) {
		return New(cfg, deps)
	})
}

// Orchestrator is bound to one migration job. It is not meant to be reused
// across volumes: the migration path and detected OS family are cached for
// the lifetime of the job.
type Orchestrator struct {
	eventemitter.Emitter

	cfg      hypervisor.JobConfig
	exec     remote.Executor
	ports    remote.PortChecker
	log      *zap.SugaredLogger
	progress *terminal.Progress
	sleep    func(ctx context.Context, d time.Duration) error

	// state is guarded by state.mu; see state.go.
	state jobState
}

// New creates an orchestrator for one job.
func New(cfg hypervisor.JobConfig, deps hypervisor.Deps) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Executor == nil {
		return nil, errors.New("kvm: remote executor is required")
	}

	o := &Orchestrator{
		Emitter:  *eventemitter.NewEmitter(false),
		cfg:      cfg,
		exec:     deps.Executor,
		ports:    deps.Ports,
		log:      deps.Logger,
		progress: terminal.NewProgress(deps.Progress),
		sleep:    deps.Sleep,
	}
	if o.ports == nil {
		o.ports = remote.NewTCPChecker()
	}
	if o.log == nil {
		o.log = zap.NewNop().Sugar()
	}
	if o.sleep == nil {
		o.sleep = sleepContext
	}

	if cfg.Threads > 1 {
		o.log.Warnf("%d threads requested, but migrations always run serially", cfg.Threads)
	}
	return o, nil
}

// Info returns backend metadata.
func (o *Orchestrator) Info() hypervisor.Info {
	return hypervisor.Info{
		Kind:    hypervisor.KindKVM,
		Name:    "KVM (libvirt)",
		Version: version.Version,
	}
}

// OSFamily returns the detected guest OS family, if detection already ran.
func (o *Orchestrator) OSFamily() (guestos.ID, bool) {
	o.state.mu.Lock()
	defer o.state.mu.Unlock()
	return o.state.osFamily.get()
}

func (o *Orchestrator) target(host hypervisor.Host) remote.Target {
	return remote.Target{
		Address: host.IPAddress,
		User:    o.cfg.SSHUser,
		Port:    o.cfg.SSHPort,
	}
}

// run funnels every remote command through the executor.
func (o *Orchestrator) run(ctx context.Context, host hypervisor.Host, req remote.Request) (string, error) {
	o.log.Debugw("running remote command", "host", host.Name, "command", req.Command, "sudo", req.Sudo)
	out, err := o.exec.Run(ctx, o.target(host), req)
	if err != nil {
		o.log.Debugw("remote command failed", "host", host.Name, "command", req.Command, "error", err)
	}
	return out, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
