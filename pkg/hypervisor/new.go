package hypervisor

import (
	"fmt"
	"sort"
	"sync"
)

// Kind names a hypervisor backend.
type Kind string

const (
	KindKVM Kind = "kvm"
)

// Factory builds a backend for one migration job.
type Factory func(cfg JobConfig, deps Deps) (Driver, error)

var (
	factories   = make(map[Kind]Factory)
	factoryLock sync.RWMutex
	defaultKind = KindKVM
)

// Register adds a backend factory. Backends call it from init().
func Register(kind Kind, f Factory) {
	factoryLock.Lock()
	defer factoryLock.Unlock()
	factories[kind] = f
}

// New validates cfg and builds the backend registered under kind.
func New(kind Kind, cfg JobConfig, deps Deps) (Driver, error) {
	if kind == "" {
		kind = defaultKind
	}

	factoryLock.RLock()
	f, ok := factories[kind]
	factoryLock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q, available: %v", ErrUnknownKind, kind, Kinds())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return f(cfg, deps)
}

// Kinds returns all registered backend kinds, sorted.
func Kinds() []Kind {
	factoryLock.RLock()
	defer factoryLock.RUnlock()

	kinds := make([]Kind, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// IsRegistered reports whether a backend kind is available.
func IsRegistered(kind Kind) bool {
	factoryLock.RLock()
	defer factoryLock.RUnlock()
	_, ok := factories[kind]
	return ok
}
