// SPDX-License-Identifier: GPL-3.0-or-later

package perf

import (
	"errors"
	"fmt"
)

var (
	ErrNotInitialized   = errors.New("performance service is not initialized")
	ErrClosed           = errors.New("performance service is closed")
	ErrCatalogNotLoaded = errors.New("counter catalog is not loaded")
	ErrUnknownCounter   = errors.New("counter is not in the catalog")
	ErrNoData           = errors.New("no performance data")
	ErrInvalidVM        = errors.New("invalid vm")
	ErrInvalidDevice    = errors.New("invalid device")
)

// RetrievalError is returned when a call still fails after the session was recovered.
type RetrievalError struct {
	VM     VM
	Device string
	Err    error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve stats of vm %s device '%s' after reconnect: %v", e.VM, e.Device, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }
