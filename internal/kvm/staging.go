package kvm

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/javanstorm/kvmigrate/internal/remote"
	"github.com/javanstorm/kvmigrate/pkg/hypervisor"
)

const (
	mountPointCommand = "sudo mount | grep storage | awk '{print $3}'"
	scriptMode        = 0755
	remoteScriptDir   = "/tmp/"
	bondScriptRemote  = remoteScriptDir + "kvm_check_bonds.sh"
)

// ResolveMountPoint finds the shared storage mount on host. A non-empty
// result is cached for the rest of the job.
func (o *Orchestrator) ResolveMountPoint(ctx context.Context, host hypervisor.Host) (string, error) {
	o.state.mu.Lock()
	defer o.state.mu.Unlock()
	return o.resolveMountPointLocked(ctx, host)
}

func (o *Orchestrator) resolveMountPointLocked(ctx context.Context, host hypervisor.Host) (string, error) {
	if mp, ok := o.state.mountPoint.get(); ok {
		o.log.Infof("Found storage mount %s on host %s", mp, host.Name)
		return mp, nil
	}

	o.log.Infof("Looking for storage mount on KVM host %s", host.Name)
	mp, err := resolveOnce(&o.state.mountPoint, func() (string, error) {
		out, err := o.run(ctx, host, remote.Request{Command: mountPointCommand})
		if err != nil {
			return "", errors.Wrapf(err, "find storage mount on %s", host.Name)
		}
		return firstLine(out), nil
	}, func(mp string) bool { return mp != "" })
	if err != nil {
		return "", err
	}
	o.log.Infof("Found storage mount %q on host %s", mp, host.Name)
	return mp, nil
}

// MigrationPath returns <mount>/migration/<uuid>/. The identifier is
// generated on the first call; every later call returns the same path.
// The mount point must have been resolved first.
func (o *Orchestrator) MigrationPath() (string, error) {
	o.state.mu.Lock()
	defer o.state.mu.Unlock()
	return o.migrationPathLocked()
}

func (o *Orchestrator) migrationPathLocked() (string, error) {
	mp, ok := o.state.mountPoint.get()
	if !ok || mp == "" {
		return "", hypervisor.ErrEmptyMountPoint
	}
	return resolveOnce(&o.state.migrationPath, func() (string, error) {
		return mp + "/migration/" + uuid.NewString() + "/", nil
	}, nil)
}

func (o *Orchestrator) mountPoint() string {
	o.state.mu.Lock()
	defer o.state.mu.Unlock()
	mp, _ := o.state.mountPoint.get()
	return mp
}

// PrepareStaging creates the migration working directory on host.
func (o *Orchestrator) PrepareStaging(ctx context.Context, host hypervisor.Host) error {
	if o.cfg.DryRun {
		o.log.Infof("Would have created migration folder on %s", host.Name)
		return nil
	}

	o.state.mu.Lock()
	path, err := o.stagingPathLocked(ctx, host)
	o.state.mu.Unlock()
	if err != nil {
		o.log.Errorf("Could not prepare the migration folder on host %s: %v", host.Name, err)
		return err
	}

	o.log.Infof("Creating migration folder %s", path)
	if _, err := o.run(ctx, host, remote.Request{Command: "sudo mkdir -p " + remote.Quote(path)}); err != nil {
		o.log.Errorf("Could not prepare the migration folder on host %s", host.Name)
		return errors.Wrapf(err, "create migration folder %s on %s", path, host.Name)
	}
	return nil
}

func (o *Orchestrator) stagingPathLocked(ctx context.Context, host hypervisor.Host) (string, error) {
	mp, err := o.resolveMountPointLocked(ctx, host)
	if err != nil {
		return "", err
	}
	if mp == "" {
		return "", errors.Wrapf(hypervisor.ErrEmptyMountPoint, "host %s", host.Name)
	}
	return o.migrationPathLocked()
}

// PushHelperScripts uploads the helper scripts into the migration folder
// and the hook scripts plus the bond check script into /tmp. The first failed
// upload aborts the step.
func (o *Orchestrator) PushHelperScripts(ctx context.Context, host hypervisor.Host) error {
	if o.cfg.DryRun {
		o.log.Infof("Would have uploaded scripts to %s", host.Name)
		return nil
	}

	uploads, err := o.helperUploads()
	if err != nil {
		o.log.Errorf("Could not upload check scripts to host %s", host.Name)
		return err
	}
	return o.upload(ctx, host, append(uploads, o.hostUploads()...))
}

// PushHostScripts uploads only the hook scripts and the bond check script. It
// needs no migration folder, so reboots and queries can use it on hosts
// that were never staged.
func (o *Orchestrator) PushHostScripts(ctx context.Context, host hypervisor.Host) error {
	if o.cfg.DryRun {
		o.log.Infof("Would have uploaded hook scripts to %s", host.Name)
		return nil
	}
	return o.upload(ctx, host, o.hostUploads())
}

func (o *Orchestrator) upload(ctx context.Context, host hypervisor.Host, uploads []remote.Upload) error {
	target := o.target(host)
	for _, u := range uploads {
		o.log.Debugw("uploading script", "host", host.Name, "local", u.LocalPath, "remote", u.RemotePath)
		if err := o.exec.Upload(ctx, target, u); err != nil {
			o.log.Errorf("Could not upload check scripts to host %s", host.Name)
			return errors.Wrapf(err, "upload %s to %s", u.LocalPath, host.Name)
		}
	}
	return nil
}

// helperUploads lists the helper-scripts directory. It is empty when no
// directory is configured.
func (o *Orchestrator) helperUploads() ([]remote.Upload, error) {
	if o.cfg.HelperScriptsPath == "" {
		return nil, nil
	}
	path, err := o.MigrationPath()
	if err != nil {
		return nil, errors.Wrap(err, "helper scripts need a migration folder")
	}
	files, err := filepath.Glob(filepath.Join(o.cfg.HelperScriptsPath, "*"))
	if err != nil {
		return nil, errors.Wrapf(err, "list helper scripts in %s", o.cfg.HelperScriptsPath)
	}
	var uploads []remote.Upload
	for _, f := range files {
		if info, err := os.Stat(f); err != nil || info.IsDir() {
			continue
		}
		uploads = append(uploads, scriptUpload(f, path+filepath.Base(f)))
	}
	return uploads, nil
}

func (o *Orchestrator) hostUploads() []remote.Upload {
	var uploads []remote.Upload
	for _, script := range []string{o.cfg.PreEmptyScript, o.cfg.PostEmptyScript, o.cfg.PostRebootScript} {
		if script != "" {
			uploads = append(uploads, scriptUpload(script, hookRemotePath(script)))
		}
	}
	return append(uploads, scriptUpload(o.cfg.BondCheckScript, bondScriptRemote))
}

func scriptUpload(local, remotePath string) remote.Upload {
	return remote.Upload{LocalPath: local, RemotePath: remotePath, Mode: scriptMode, Sudo: true}
}

// hookRemotePath returns where a hook script lives once uploaded.
func hookRemotePath(script string) string {
	return remoteScriptDir + filepath.Base(script)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
