// SPDX-License-Identifier: GPL-3.0-or-later

package perf

import (
	"fmt"

	"github.com/google/uuid"
)

// VM identifies a virtual machine.
// UUID is the stable identifier, Name is only used in logs and errors.
type VM struct {
	Name string
	UUID string
}

func (v VM) String() string { return fmt.Sprintf("'%s' (%s)", v.Name, v.UUID) }

func (v VM) validate() error {
	if _, err := uuid.Parse(v.UUID); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidVM, v, err)
	}
	return nil
}

// DeviceAddress returns the address of the virtual disk at the given SCSI bus and unit.
func DeviceAddress(bus, unit int) (string, error) {
	if bus < 0 || unit < 0 {
		return "", fmt.Errorf("%w: bus %d, unit %d", ErrInvalidDevice, bus, unit)
	}
	return fmt.Sprintf("scsi%d:%d", bus, unit), nil
}

// Sample is the latest raw value of one counter.
type Sample struct {
	CounterID int32
	Instance  string
	Value     int64
}

type Stat struct {
	Value   int64  `json:"value"`
	Summary string `json:"summary"`
}

// Stats maps a formatted counter label, e.g. "avgReadLat(usec)", to its value.
type Stats map[string]Stat

func (s Stats) Values() map[string]int64 {
	m := make(map[string]int64, len(s))
	for k, v := range s {
		m[k] = v.Value
	}
	return m
}
