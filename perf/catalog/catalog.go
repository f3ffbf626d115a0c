// SPDX-License-Identifier: GPL-3.0-or-later

package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/vmware/govmomi/vim25/types"
)

type CounterSource interface {
	CounterInfo(context.Context) ([]types.PerfCounterInfo, error)
}

// Counter describes one performance counter the service can report.
type Counter struct {
	ID      int32
	Name    string // group.counter.rollup, e.g. virtualDisk.totalReadLatency.average
	Label   string
	Summary string
	Unit    string
}

// Catalog maps counter IDs to their descriptions.
// It is replaced as a whole on every Load, entries of a previous session are never merged.
type Catalog struct {
	mu       sync.RWMutex
	counters map[int32]Counter
}

func New() *Catalog {
	return &Catalog{}
}

func (c *Catalog) Load(ctx context.Context, src CounterSource) error {
	infos, err := src.CounterInfo(ctx)
	if err != nil {
		return fmt.Errorf("load counter catalog: %w", err)
	}

	counters := make(map[int32]Counter, len(infos))
	for _, info := range infos {
		counters[info.Key] = newCounter(info)
	}

	c.mu.Lock()
	c.counters = counters
	c.mu.Unlock()

	return nil
}

func (c *Catalog) Lookup(id int32) (Counter, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.counters[id]
	return v, ok
}

// Loaded reports whether Load has completed at least once since creation or the last Reset.
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.counters != nil
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.counters)
}

func (c *Catalog) Reset() {
	c.mu.Lock()
	c.counters = nil
	c.mu.Unlock()
}

func newCounter(info types.PerfCounterInfo) Counter {
	group, name, unit := description(info.GroupInfo), description(info.NameInfo), description(info.UnitInfo)

	return Counter{
		ID:      info.Key,
		Name:    fmt.Sprintf("%s.%s.%s", group.Key, name.Key, info.RollupType),
		Label:   name.Label,
		Summary: name.Summary,
		Unit:    unit.Key,
	}
}

func description(d types.BaseElementDescription) types.ElementDescription {
	if d == nil {
		return types.ElementDescription{}
	}
	if v := d.GetElementDescription(); v != nil {
		return *v
	}
	return types.ElementDescription{}
}
