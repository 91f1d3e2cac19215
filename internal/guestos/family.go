// Package guestos describes the guest operating system families the
// conversion pipeline knows how to fix up.
package guestos

import (
	"fmt"
	"strings"
)

// ID identifies a guest OS family as reported by virt-inspector.
type ID string

const (
	Linux   ID = "linux"
	Windows ID = "windows"
)

// ParseName normalizes an inspector OS name into an ID. The result may be
// an unregistered family.
func ParseName(name string) ID {
	return ID(strings.ToLower(strings.TrimSpace(name)))
}

// Title returns the ID in title case, e.g. "Windows".
func (id ID) Title() string {
	if id == "" {
		return "Unknown"
	}
	return strings.ToUpper(string(id[:1])) + string(id[1:])
}

// Provider describes the fixups a family needs after driver injection.
type Provider interface {
	// ID returns the family identifier.
	ID() ID

	// Name returns a human-readable name.
	Name() string

	// CustomizeScript returns the helper script, relative to the migration
	// working directory, that removes source-platform leftovers.
	CustomizeScript() string

	// RegistryMerge returns the registry file to merge into the disk, or ""
	// when the family has no registry.
	RegistryMerge() string
}

// BaseProvider implements common Provider functionality.
type BaseProvider struct {
	id   ID
	name string
}

// ID returns the family identifier.
func (p *BaseProvider) ID() ID {
	return p.id
}

// Name returns the human-readable name.
func (p *BaseProvider) Name() string {
	return p.name
}

// CustomizeScript returns "virt-customize-<family>.sh".
func (p *BaseProvider) CustomizeScript() string {
	return fmt.Sprintf("virt-customize-%s.sh", p.id)
}

// RegistryMerge returns "" by default.
func (p *BaseProvider) RegistryMerge() string {
	return ""
}
