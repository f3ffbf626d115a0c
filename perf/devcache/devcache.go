// SPDX-License-Identifier: GPL-3.0-or-later

package devcache

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/vmware/govmomi/vim25/types"
	"golang.org/x/sync/singleflight"
)

type MetricSource interface {
	AvailableMetrics(ctx context.Context, entity types.ManagedObjectReference) ([]types.PerfMetricId, error)
}

// Key identifies one virtual disk of one VM.
// The VM is keyed by its stable UUID, display names may collide across datacenters.
type Key struct {
	VMUUID string
	Device string
}

func (k Key) String() string { return k.VMUUID + "/" + k.Device }

type entry struct {
	counters   []int32
	tombstoned bool
}

// Cache holds the counter IDs available for each device.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]*entry
	group   singleflight.Group
}

func New() *Cache {
	return &Cache{entries: make(map[Key]*entry)}
}

// Get is a pure lookup, tombstoned entries miss.
func (c *Cache) Get(key Key) ([]int32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || e.tombstoned {
		return nil, false
	}
	return slices.Clone(e.counters), true
}

// Resolve asks the service for the metrics available for the VM and keeps the counters
// whose instance is the device. Errors are returned as is.
// An empty result is not stored, the device may not report metrics yet.
//
// Concurrent calls for the same key on the same session generation share one request.
// The shared request is not cancelled with the caller that started it, each caller
// stops waiting when its own ctx is done.
func (c *Cache) Resolve(ctx context.Context, src MetricSource, gen uint64, vm types.ManagedObjectReference, key Key) ([]int32, error) {
	flight := fmt.Sprintf("%d/%s", gen, key)
	shared := context.WithoutCancel(ctx)

	ch := c.group.DoChan(flight, func() (any, error) {
		return c.resolve(shared, src, vm, key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]int32)), nil
	}
}

func (c *Cache) resolve(ctx context.Context, src MetricSource, vm types.ManagedObjectReference, key Key) ([]int32, error) {
	metrics, err := src.AvailableMetrics(ctx, vm)
	if err != nil {
		return nil, err
	}

	var counters []int32
	for _, m := range metrics {
		if m.Instance == key.Device {
			counters = append(counters, m.CounterId)
		}
	}

	if len(counters) > 0 {
		c.mu.Lock()
		c.entries[key] = &entry{counters: counters}
		c.mu.Unlock()
	}
	return counters, nil
}

// Invalidate tombstones the entry so the next access is forced to re-resolve.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.tombstoned = true
		e.counters = nil
	}
}

// Len returns the number of live (not tombstoned) entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var n int
	for _, e := range c.entries {
		if !e.tombstoned {
			n++
		}
	}
	return n
}

func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[Key]*entry)
	c.mu.Unlock()
}
