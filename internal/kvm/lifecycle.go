package kvm

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/javanstorm/kvmigrate/internal/remote"
	"github.com/javanstorm/kvmigrate/pkg/hypervisor"
)

// HostState is a step of the reboot cycle.
type HostState int

const (
	StateRunning HostState = iota
	StateDrainChecked
	StateRebooting
	StateHalting
	StateForceResetting
	StateOffline
	StateWaitingForSSH
	StateWaitingForVirt
	StateReady
)

func (s HostState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDrainChecked:
		return "drain-checked"
	case StateRebooting:
		return "rebooting"
	case StateHalting:
		return "halting"
	case StateForceResetting:
		return "force-resetting"
	case StateOffline:
		return "offline"
	case StateWaitingForSSH:
		return "waiting-for-ssh"
	case StateWaitingForVirt:
		return "waiting-for-virt"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// transitionTimeout bounds the shutdown command; the host usually drops
// the connection before it returns.
const transitionTimeout = 10 * time.Second

type transition struct {
	state HostState
	req   remote.Request
	note  string
}

func transitionFor(mode hypervisor.RebootMode) transition {
	switch mode {
	case hypervisor.ModeHalt:
		return transition{
			state: StateHalting,
			req:   remote.Request{Command: "shutdown -h 1", Sudo: true, Timeout: transitionTimeout},
			note:  "Halting host %s in 60s. Undo with 'sudo shutdown -c'",
		}
	case hypervisor.ModeForceReset:
		return transition{
			state: StateForceResetting,
			req:   remote.Request{Command: "sync; echo b > /proc/sysrq-trigger", Sudo: true, Timeout: transitionTimeout},
			note:  "Immediately force-resetting host %s",
		}
	default:
		return transition{
			state: StateRebooting,
			req:   remote.Request{Command: "shutdown -r 1", Sudo: true, Timeout: transitionTimeout},
			note:  "Rebooting host %s in 60s. Undo with 'sudo shutdown -c'",
		}
	}
}

// Reboot cycles an empty host and waits until libvirt answers again.
// A host with running VMs is never touched.
func (o *Orchestrator) Reboot(ctx context.Context, host hypervisor.Host, mode hypervisor.RebootMode) error {
	n, err := o.VMCount(ctx, host)
	if err != nil {
		o.log.Errorf("Could not count VMs on host %s", host.Name)
		return err
	}
	o.setState(host, StateRunning)
	if n != 0 {
		o.log.Errorf("Host %s not empty (%d VMs running), cannot reboot!", host.Name, n)
		return errors.Wrapf(hypervisor.ErrHostNotEmpty, "%s has %d running VMs", host.Name, n)
	}
	o.log.Infof("Host %s has no VMs running, continuing", host.Name)
	o.setState(host, StateDrainChecked)

	if err := o.execHook(ctx, host, o.cfg.PostEmptyScript); err != nil {
		o.log.Errorf("Executing script %q on host %s failed", o.cfg.PostEmptyScript, host.Name)
		return err
	}

	t := transitionFor(mode)
	o.log.Infof(t.note, host.Name)
	o.setState(host, t.state)
	if _, err := o.run(ctx, host, t.req); err != nil {
		o.log.Warnf("Got an error on %s, most likely the host shutting itself down, ignoring it: %v", mode, err)
	}

	if o.cfg.RebootTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RebootTimeout)
		defer cancel()
	}

	if err := o.waitOffline(ctx, host); err != nil {
		return err
	}
	if err := o.waitForSSH(ctx, host); err != nil {
		return err
	}
	if err := o.waitForVirt(ctx, host); err != nil {
		return err
	}

	if err := o.execHook(ctx, host, o.cfg.PostRebootScript); err != nil {
		o.log.Errorf("Executing script %q on host %s failed", o.cfg.PostRebootScript, host.Name)
		return err
	}
	o.setState(host, StateReady)
	return nil
}

// RunPreEmptyHook runs the pre-empty script on host, before the caller
// starts moving VMs away.
func (o *Orchestrator) RunPreEmptyHook(ctx context.Context, host hypervisor.Host) error {
	if err := o.execHook(ctx, host, o.cfg.PreEmptyScript); err != nil {
		o.log.Errorf("Executing script %q on host %s failed", o.cfg.PreEmptyScript, host.Name)
		return err
	}
	return nil
}

func (o *Orchestrator) waitOffline(ctx context.Context, host hypervisor.Host) error {
	o.log.Infof("Waiting for %s to go offline", host)
	err := o.poll(ctx, func() bool {
		return !o.ports.PortOpen(ctx, host.IPAddress, o.cfg.SSHPort)
	})
	if err != nil {
		return errors.Wrapf(err, "%s did not go offline", host.Name)
	}
	o.setState(host, StateOffline)
	return nil
}

func (o *Orchestrator) waitForSSH(ctx context.Context, host hypervisor.Host) error {
	o.setState(host, StateWaitingForSSH)
	o.log.Infof("Waiting for %s to return", host)
	err := o.poll(ctx, func() bool {
		return o.ports.PortOpen(ctx, host.IPAddress, o.cfg.SSHPort)
	})
	if err != nil {
		return errors.Wrapf(err, "%s did not return", host.Name)
	}
	o.log.Infof("Host %s responds to SSH again!", host.Name)
	if err := o.sleep(ctx, o.cfg.SettleDelay); err != nil {
		return livenessErr(err)
	}
	return nil
}

func (o *Orchestrator) waitForVirt(ctx context.Context, host hypervisor.Host) error {
	o.setState(host, StateWaitingForVirt)
	o.log.Info("Waiting until we can successfully run a command against libvirt")
	err := o.poll(ctx, func() bool {
		_, err := o.run(ctx, host, remote.Request{Command: "virsh list", Sudo: true})
		return err == nil
	})
	if err != nil {
		return errors.Wrapf(err, "libvirt on %s did not come up", host.Name)
	}
	o.log.Infof("Host %s is ready", host.Name)
	return nil
}

// poll calls ok until it returns true, printing a progress dot and
// sleeping PollInterval after each miss.
func (o *Orchestrator) poll(ctx context.Context, ok func() bool) error {
	defer o.progress.Done()
	for {
		if err := ctx.Err(); err != nil {
			return livenessErr(err)
		}
		if ok() {
			return nil
		}
		o.progress.Tick()
		if err := o.sleep(ctx, o.cfg.PollInterval); err != nil {
			return livenessErr(err)
		}
	}
}

func livenessErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return hypervisor.ErrLivenessTimeout
	}
	return err
}

// execHook runs an uploaded hook script. An unset hook is a no-op.
func (o *Orchestrator) execHook(ctx context.Context, host hypervisor.Host, script string) error {
	if script == "" {
		return nil
	}
	path := hookRemotePath(script)
	o.log.Infof("Executing script %s on host %s", path, host.Name)
	if _, err := o.run(ctx, host, remote.Request{Command: remote.Quote(path), Sudo: true}); err != nil {
		return errors.Wrapf(hypervisor.ErrHookScriptFailed, "%s on %s: %v", path, host.Name, err)
	}
	return nil
}

func (o *Orchestrator) setState(host hypervisor.Host, s HostState) {
	o.log.Debugw("host state", "host", host.Name, "state", s.String())
	o.EmitEvent(HostStateEvent, host.Name, s)
}
