// Package inventory loads the list of known hypervisors from YAML.
//
//	hosts:
//	  - name: kvm01
//	    ipaddress: 10.0.0.11
package inventory

import (
	"net"
	"os"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/javanstorm/kvmigrate/pkg/hypervisor"
)

// Inventory is the set of hypervisors kvmigrate may address by name.
type Inventory struct {
	Hosts []hypervisor.Host `yaml:"hosts"`
}

// Load reads an inventory file. A missing file yields an empty inventory.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Inventory{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates inventory YAML.
func Parse(data []byte) (*Inventory, error) {
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, errors.Wrap(err, "parsing inventory")
	}

	seen := make(map[string]bool, len(inv.Hosts))
	for i, h := range inv.Hosts {
		if h.Name == "" {
			return nil, errors.Errorf("inventory host #%d has no name", i+1)
		}
		if h.IPAddress == "" {
			return nil, errors.Errorf("inventory host %s has no ipaddress", h.Name)
		}
		if seen[h.Name] {
			return nil, errors.Errorf("inventory host %s listed twice", h.Name)
		}
		seen[h.Name] = true
	}
	return &inv, nil
}

// Lookup finds a host by name or address.
func (inv *Inventory) Lookup(nameOrAddr string) (hypervisor.Host, bool) {
	for _, h := range inv.Hosts {
		if h.Name == nameOrAddr || h.IPAddress == nameOrAddr {
			return h, true
		}
	}
	return hypervisor.Host{}, false
}

// Resolve maps command line arguments to hosts. Arguments not in the
// inventory are accepted when they are IP addresses.
func (inv *Inventory) Resolve(args []string) ([]hypervisor.Host, error) {
	hosts := make([]hypervisor.Host, 0, len(args))
	for _, arg := range args {
		if h, ok := inv.Lookup(arg); ok {
			hosts = append(hosts, h)
			continue
		}
		if net.ParseIP(arg) == nil {
			return nil, errors.Errorf("unknown host %q (not in inventory and not an IP address)", arg)
		}
		hosts = append(hosts, hypervisor.Host{Name: arg, IPAddress: arg})
	}
	return hosts, nil
}

// Sorted returns the hosts ordered by name.
func (inv *Inventory) Sorted() []hypervisor.Host {
	hosts := append([]hypervisor.Host(nil), inv.Hosts...)
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Name < hosts[j].Name })
	return hosts
}
