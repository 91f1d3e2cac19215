package kvm

import (
	"sync"

	"github.com/javanstorm/kvmigrate/internal/guestos"
)

// cached is a write-once value.
type cached[T any] struct {
	value T
	set   bool
}

func (c *cached[T]) get() (T, bool) {
	return c.value, c.set
}

// resolveOnce returns the cached value, or computes, stores and returns it.
// Failed resolutions are not cached. When keep is non-nil, values it
// rejects are returned but not stored.
func resolveOnce[T any](c *cached[T], resolve func() (T, error), keep func(T) bool) (T, error) {
	if c.set {
		return c.value, nil
	}
	v, err := resolve()
	if err != nil {
		return v, err
	}
	if keep == nil || keep(v) {
		c.value, c.set = v, true
	}
	return v, nil
}

// jobState holds the lazily resolved facts of one job. The mutex also
// serializes mount point resolution so two callers sharing a job cannot
// race on the remote lookup.
type jobState struct {
	mu            sync.Mutex
	mountPoint    cached[string]
	migrationPath cached[string]
	osFamily      cached[guestos.ID]
}
