package kvm

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/javanstorm/kvmigrate/internal/remote"
	"github.com/javanstorm/kvmigrate/pkg/hypervisor"
)

const (
	vmCountCommand    = "virsh list --state-running --name"
	bondStatusCommand = "bash " + bondScriptRemote + ` | awk '{print $1}' | tr -d ":"`
	patchLevelCommand = "yum check-update -q | wc -l"
)

// VMCount returns the number of running domains on host. The domains are
// counted here rather than in a remote pipeline, so a failing virsh is an
// error and never a count of zero.
func (o *Orchestrator) VMCount(ctx context.Context, host hypervisor.Host) (int, error) {
	out, err := o.run(ctx, host, remote.Request{Command: vmCountCommand, Sudo: true})
	if err != nil {
		return 0, errors.Wrapf(err, "count VMs on %s", host.Name)
	}
	n := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n, nil
}

// BondStatus runs the uploaded bond check script and returns its first token.
func (o *Orchestrator) BondStatus(ctx context.Context, host hypervisor.Host) (string, error) {
	out, err := o.run(ctx, host, remote.Request{Command: bondStatusCommand, Sudo: true})
	if err != nil {
		return "", errors.Wrapf(err, "bond status of %s", host.Name)
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], nil
}

// PatchLevel reports pending updates for each host, one line per host.
// Hosts are queried in order and any failure discards the whole report.
func (o *Orchestrator) PatchLevel(ctx context.Context, hosts []hypervisor.Host) (string, error) {
	var b strings.Builder
	for i, host := range hosts {
		out, err := o.run(ctx, host, remote.Request{Command: patchLevelCommand, Sudo: true})
		if err != nil {
			return "", errors.Wrapf(err, "patch level of %s", host.Name)
		}
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(host.Name + ": " + firstLine(out) + " updates to install ")
	}
	return b.String(), nil
}
