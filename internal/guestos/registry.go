package guestos

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry     = make(map[ID]Provider)
	registryLock sync.RWMutex
)

// Register adds a provider to the registry.
// This should be called from init() functions in provider implementations.
func Register(p Provider) {
	registryLock.Lock()
	defer registryLock.Unlock()
	registry[p.ID()] = p
}

// Get returns a provider by ID.
func Get(id ID) (Provider, error) {
	registryLock.RLock()
	defer registryLock.RUnlock()

	p, ok := registry[id]
	if !ok {
		return nil, &ErrUnknownFamily{ID: id}
	}
	return p, nil
}

// List returns all registered family IDs, sorted.
func List() []ID {
	registryLock.RLock()
	defer registryLock.RUnlock()

	ids := make([]ID, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ErrUnknownFamily is returned when a family ID is not found.
type ErrUnknownFamily struct {
	ID ID
}

func (e *ErrUnknownFamily) Error() string {
	return fmt.Sprintf("unknown guest OS family %q, available: %v", e.ID, List())
}
