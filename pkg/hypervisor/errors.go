package hypervisor

import "errors"

// Configuration errors
var (
	ErrMissingPrincipal   = errors.New("hypervisor: ssh principal is required")
	ErrInvalidPollTimings = errors.New("hypervisor: liveness timings must not be negative")
	ErrUnknownKind        = errors.New("hypervisor: unknown backend kind")
)

// Staging errors
var (
	ErrEmptyMountPoint = errors.New("hypervisor: storage mount point is empty")
)

// Host lifecycle errors
var (
	ErrHostNotEmpty     = errors.New("hypervisor: host still runs virtual machines")
	ErrLivenessTimeout  = errors.New("hypervisor: host did not become ready in time")
	ErrHookScriptFailed = errors.New("hypervisor: hook script failed")
)
