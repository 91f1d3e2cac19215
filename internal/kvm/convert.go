package kvm

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/javanstorm/kvmigrate/internal/guestos"
	"github.com/javanstorm/kvmigrate/internal/remote"
	"github.com/javanstorm/kvmigrate/pkg/hypervisor"
)

// Step names one stage of the conversion pipeline.
type Step string

const (
	StepDownload        Step = "download"
	StepConvert         Step = "convert"
	StepFixPartition    Step = "fix-partition"
	StepMoveDataDisk    Step = "move-data-disk"
	StepInjectDrivers   Step = "inject-drivers"
	StepDetectOS        Step = "detect-os"
	StepWindowsRegistry Step = "windows-registry"
	StepCustomize       Step = "customize"
	StepMoveRootDisk    Step = "move-root-disk"
)

// sourceExt is the extension of downloaded source disks.
const sourceExt = ".vhd"

// StepError reports which pipeline step failed.
type StepError struct {
	Host   string
	Volume string
	Step   Step
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s of volume %s on host %s failed: %v", e.Step, e.Volume, e.Host, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// DownloadVolume fetches the source disk into the migration folder as
// <volumeID>.vhd, resuming partial downloads.
func (o *Orchestrator) DownloadVolume(ctx context.Context, host hypervisor.Host, url, volumeID string) error {
	path, err := o.MigrationPath()
	if err != nil {
		return err
	}
	o.log.Infof("Downloading disk from %s to host %s", url, host.Name)
	return o.step(ctx, host, volumeID, StepDownload, func() error {
		return o.shell(ctx, host, fmt.Sprintf("nice -n 19 sudo aria2c --file-allocation=none -c -m 5 -d %s -o %s %s",
			remote.Quote(path), remote.Quote(volumeID+sourceExt), remote.Quote(url)))
	})
}

// ConvertVolume turns a downloaded source disk into a qcow2 volume in the
// storage pool. Steps run strictly in order and the first failure aborts
// the pipeline with a *StepError; nothing is retried.
//
// Data disks (InjectDrivers false) are only converted, optionally resized
// and moved. Root disks additionally get drivers injected and OS-specific
// fixups applied before they are moved.
func (o *Orchestrator) ConvertVolume(ctx context.Context, host hypervisor.Host, volumeID string, opts hypervisor.ConvertOptions) error {
	path, err := o.MigrationPath()
	if err != nil {
		return err
	}
	mount := o.mountPoint()
	in := func(cmd string, args ...interface{}) string {
		return "cd " + remote.Quote(path) + "; " + fmt.Sprintf(cmd, args...)
	}
	id := remote.Quote(volumeID)
	sda := remote.Quote(volumeID + "-sda")
	dest := remote.Quote(mount + "/" + volumeID)

	o.log.Infof("Converting disk %s to QCOW2 on host %s", volumeID, host.Name)
	if err := o.step(ctx, host, volumeID, StepConvert, func() error {
		return o.shell(ctx, host, in("nice -n 19 sudo qemu-img convert %s -O qcow2 %s", remote.Quote(volumeID+sourceExt), id))
	}); err != nil {
		o.log.Errorf("Could not convert volume %s on host %s", volumeID, host.Name)
		return err
	}

	if opts.FixPartition {
		o.log.Infof("Fixing virtual versus physical disksize %s on host %s", volumeID, host.Name)
		if err := o.step(ctx, host, volumeID, StepFixPartition, func() error {
			return o.shell(ctx, host, in("sudo qemu-img resize %s +2MB", id))
		}); err != nil {
			o.log.Errorf("Could not fix partition of volume %s on host %s", volumeID, host.Name)
			return err
		}
	}

	if !opts.InjectDrivers {
		o.log.Infof("Moving disk %s into place on host %s", volumeID, host.Name)
		if err := o.step(ctx, host, volumeID, StepMoveDataDisk, func() error {
			return o.shell(ctx, host, in("sudo mv %s %s", id, dest))
		}); err != nil {
			o.log.Errorf("Could not move datavolume %s to the storage pool on host %s", volumeID, host.Name)
			return err
		}
		o.log.Infof("Skipping driver injection for data disk %s", volumeID)
		return nil
	}

	o.log.Infof("Injecting drivers into disk %s on host %s", volumeID, host.Name)
	if err := o.step(ctx, host, volumeID, StepInjectDrivers, func() error {
		return o.shell(ctx, host, in("sudo virt-v2v -i disk %s -o local -os ./", id))
	}); err != nil {
		o.log.Errorf("Could not inject drivers on volume %s on host %s", volumeID, host.Name)
		return err
	}

	var family guestos.ID
	if err := o.step(ctx, host, volumeID, StepDetectOS, func() error {
		family, err = o.detectOSFamily(ctx, host, path, volumeID)
		return err
	}); err != nil {
		o.log.Errorf("Could not figure out the OS family of disk %s on host %s", volumeID, host.Name)
		return err
	}

	provider, err := guestos.Get(family)
	if err != nil {
		o.log.Warnf("OS family %q is neither Linux nor Windows, trying to continue", family)
	} else {
		if reg := provider.RegistryMerge(); reg != "" {
			o.log.Infof("Setting UTC registry setting on disk %s on host %s", volumeID, host.Name)
			if err := o.step(ctx, host, volumeID, StepWindowsRegistry, func() error {
				return o.shell(ctx, host, in("sudo virt-win-reg %s --merge %s", sda, remote.Quote(reg)))
			}); err != nil {
				o.log.Errorf("Altering the registry of disk %s failed", volumeID)
				return err
			}
		}

		o.log.Infof("Getting rid of source platform leftovers on disk %s on host %s", volumeID, host.Name)
		if err := o.step(ctx, host, volumeID, StepCustomize, func() error {
			return o.shell(ctx, host, in("sudo ./%s %s", provider.CustomizeScript(), remote.Quote(path+volumeID+"-sda")))
		}); err != nil {
			o.log.Errorf("Could not modify disk %s on host %s", volumeID, host.Name)
			return err
		}
	}

	o.log.Infof("Moving disk %s into place on host %s", volumeID, host.Name)
	if err := o.step(ctx, host, volumeID, StepMoveRootDisk, func() error {
		return o.shell(ctx, host, in("sudo mv %s %s", sda, dest))
	}); err != nil {
		o.log.Errorf("Could not move rootvolume %s to the storage pool on host %s", volumeID, host.Name)
		return err
	}
	return nil
}

// detectOSFamily inspects the disk once per job; later calls return the
// cached family.
func (o *Orchestrator) detectOSFamily(ctx context.Context, host hypervisor.Host, path, volumeID string) (guestos.ID, error) {
	o.state.mu.Lock()
	defer o.state.mu.Unlock()

	if family, ok := o.state.osFamily.get(); ok {
		return family, nil
	}

	o.log.Infof("Figuring out what OS family the disk %s has", volumeID)
	return resolveOnce(&o.state.osFamily, func() (guestos.ID, error) {
		out, err := o.run(ctx, host, remote.Request{
			Command: fmt.Sprintf("cd %s; sudo virt-inspector -a %s 2>/dev/null", remote.Quote(path), remote.Quote(volumeID)),
		})
		if err != nil {
			return "", err
		}
		insp, err := guestos.ParseInspection(out)
		if err != nil {
			return "", err
		}
		family := insp.Family()
		o.log.Infow(fmt.Sprintf("This is a VM of the %s family", family.Title()), "volume", volumeID, "os", insp.Describe())
		return family, nil
	}, nil)
}

// shell runs a pipeline command and discards its output.
func (o *Orchestrator) shell(ctx context.Context, host hypervisor.Host, cmd string) error {
	_, err := o.run(ctx, host, remote.Request{Command: cmd})
	return err
}

// step runs fn as one named pipeline step, emitting step events and
// wrapping a failure into a *StepError.
func (o *Orchestrator) step(ctx context.Context, host hypervisor.Host, volumeID string, step Step, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return &StepError{Host: host.Name, Volume: volumeID, Step: step, Err: err}
	}

	start := time.Now()
	o.EmitEvent(StepStartedEvent, host.Name, volumeID, step, time.Duration(0))

	if err := fn(); err != nil {
		elapsed := time.Since(start)
		o.EmitEvent(StepFailedEvent, host.Name, volumeID, step, elapsed, err)
		return &StepError{Host: host.Name, Volume: volumeID, Step: step, Err: errors.WithStack(err)}
	}

	o.EmitEvent(StepCompletedEvent, host.Name, volumeID, step, time.Since(start))
	return nil
}
