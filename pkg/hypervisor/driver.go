// Package hypervisor defines the capabilities a migration target backend
// exposes (staging, volume conversion, host reboot, host queries) and a
// registry for selecting a backend by kind at configuration time.
package hypervisor

import (
	"context"
)

// Host identifies a hypervisor host. Supplied by the inventory and treated
// as immutable for the duration of an operation.
type Host struct {
	Name      string `yaml:"name"`
	IPAddress string `yaml:"ipaddress"`
}

// String returns "name (address)".
func (h Host) String() string {
	return h.Name + " (" + h.IPAddress + ")"
}

// StagingCapable backends can prepare a per-migration working directory on
// shared storage and push helper scripts into it.
type StagingCapable interface {
	// PrepareStaging resolves the storage mount and creates the migration
	// working directory.
	PrepareStaging(ctx context.Context, host Host) error

	// PushHelperScripts uploads helper, hook and bond check scripts.
	PushHelperScripts(ctx context.Context, host Host) error
	// PushHostScripts uploads only the hook and bond check scripts, which
	// need no migration folder.
	PushHostScripts(ctx context.Context, host Host) error

	// MigrationPath returns the job's working directory.
	MigrationPath() (string, error)
}

// VolumeConvertible backends can fetch a source disk and turn it into a
// native volume in their storage pool.
type VolumeConvertible interface {
	// DownloadVolume fetches the source disk image into the working directory.
	DownloadVolume(ctx context.Context, host Host, url, volumeID string) error

	// ConvertVolume runs the conversion pipeline for one volume.
	ConvertVolume(ctx context.Context, host Host, volumeID string, opts ConvertOptions) error
}

// RebootCapable backends can cycle an empty host and wait for it to return.
type RebootCapable interface {
	// RunPreEmptyHook runs the pre-empty hook before VMs are moved away.
	RunPreEmptyHook(ctx context.Context, host Host) error

	// Reboot refuses hosts with running VMs, cycles the host and waits
	// until it accepts commands again.
	Reboot(ctx context.Context, host Host, mode RebootMode) error
}

// HostInspector backends answer read-only questions about hosts.
type HostInspector interface {
	VMCount(ctx context.Context, host Host) (int, error)
	BondStatus(ctx context.Context, host Host) (string, error)
	PatchLevel(ctx context.Context, hosts []Host) (string, error)
}

// Driver is the full set of capabilities a migration target provides.
type Driver interface {
	StagingCapable
	VolumeConvertible
	RebootCapable
	HostInspector
	Info() Info
}

// ConvertOptions selects the optional conversion steps.
type ConvertOptions struct {
	// InjectDrivers marks the volume as a root disk: drivers are injected
	// and OS-specific fixups applied. Data disks skip all of that.
	InjectDrivers bool

	// FixPartition pads the image to correct virtual versus physical size.
	FixPartition bool
}

// RebootMode selects how a host is cycled.
type RebootMode int

const (
	ModeReboot RebootMode = iota
	ModeHalt
	ModeForceReset
)

func (m RebootMode) String() string {
	switch m {
	case ModeReboot:
		return "reboot"
	case ModeHalt:
		return "halt"
	case ModeForceReset:
		return "force-reset"
	default:
		return "unknown"
	}
}

// Info contains backend metadata.
type Info struct {
	Kind    Kind   // "kvm"
	Name    string // Human-readable backend name
	Version string // Backend version
}
