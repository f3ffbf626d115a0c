// SPDX-License-Identifier: GPL-3.0-or-later

package perf

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/vmdkops/vmdkperf/logger"
	"github.com/vmdkops/vmdkperf/perf/catalog"
	"github.com/vmdkops/vmdkperf/perf/devcache"
	"github.com/vmdkops/vmdkperf/perf/labels"
	"github.com/vmdkops/vmdkperf/vsphere/client"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vmware/govmomi/vim25/types"
)

type Config struct {
	Dial DialFunc
	// Translator defaults to labels.Default().
	Translator *labels.Translator
	// Registerer receives the service's own metrics, nil disables registration.
	Registerer prometheus.Registerer
	Logger     *logger.Logger
}

// Service retrieves virtual disk performance stats.
// It owns the session, the counter catalog and the device counter cache.
type Service struct {
	*logger.Logger

	dialFunc   DialFunc
	translator *labels.Translator
	catalog    *catalog.Catalog
	cache      *devcache.Cache
	metrics    *metrics

	mu        sync.Mutex
	conn      *conn
	gen       uint64
	closed    bool
	closeOnce sync.Once
}

func New(cfg Config) *Service {
	tr := cfg.Translator
	if tr == nil {
		tr = labels.Default()
	}
	return &Service{
		Logger:     cfg.Logger,
		dialFunc:   cfg.Dial,
		translator: tr,
		catalog:    catalog.New(),
		cache:      devcache.New(),
		metrics:    newMetrics(cfg.Registerer),
	}
}

// InitPerf establishes the session and loads the counter catalog.
// It must succeed before any other operation; calling it again is a no-op.
func (s *Service) InitPerf(ctx context.Context) error {
	if s.dialFunc == nil {
		return errors.New("performance service: dial function is not set")
	}

	s.mu.Lock()
	closed, initialized := s.closed, s.conn != nil
	s.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if initialized {
		return nil
	}

	sess, err := s.dial(ctx)
	if err != nil {
		return err
	}
	if _, ok := s.install(sess, nil); !ok {
		_ = sess.Logout(ctx)
		_, err := s.current()
		return err
	}
	return nil
}

// InitPerfForVolume resolves and caches the counters of the device.
// Calling it again refreshes the entry with the same result for an unchanged service.
func (s *Service) InitPerfForVolume(ctx context.Context, vm VM, bus, unit int) error {
	key, err := newKey(vm, bus, unit)
	if err != nil {
		return err
	}

	cl := newCall(s.Logger, vm, key.Device)
	err = s.withRecovery(ctx, cl, func(cl *call, c *conn, ref types.ManagedObjectReference) error {
		cl.to(stateResolving)
		_, err := s.resolve(ctx, c, ref, key)
		return err
	})
	cl.finish(err)

	return err
}

// DeletePerfForVolume forgets the counters of the device. Unknown devices are ignored.
func (s *Service) DeletePerfForVolume(vm VM, bus, unit int) error {
	key, err := newKey(vm, bus, unit)
	if err != nil {
		return err
	}
	if _, err := s.current(); err != nil {
		return err
	}

	s.cache.Invalidate(key)
	s.Debugf("vm %s device '%s': counters invalidated", vm, key.Device)

	return nil
}

// GetVolumeStats returns the latest stats of the device.
// ErrNoData is returned when the service has no samples for it yet.
func (s *Service) GetVolumeStats(ctx context.Context, vm VM, bus, unit int) (Stats, error) {
	stats, err := s.getVolumeStats(ctx, vm, bus, unit)
	s.metrics.observe(err)
	return stats, err
}

func (s *Service) getVolumeStats(ctx context.Context, vm VM, bus, unit int) (_ Stats, err error) {
	key, err := newKey(vm, bus, unit)
	if err != nil {
		return nil, err
	}

	cl := newCall(s.Logger, vm, key.Device)
	defer func() { cl.finish(err) }()

	var samples []Sample
	err = s.withRecovery(ctx, cl, func(cl *call, c *conn, ref types.ManagedObjectReference) error {
		cl.to(stateResolving)
		counters, ok := s.cache.Get(key)
		if ok {
			s.metrics.cacheHits.Inc()
		} else {
			var err error
			if counters, err = s.resolve(ctx, c, ref, key); err != nil {
				return err
			}
		}
		if len(counters) == 0 {
			return fmt.Errorf("device '%s' reports no counters: %w", key.Device, ErrNoData)
		}

		cl.to(stateQuerying)
		res, err := c.sess.Query(ctx, []types.PerfQuerySpec{newQuerySpec(ref, key.Device, counters)})
		if err != nil {
			return err
		}
		samples, err = decodeSamples(res)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("vm %s device '%s': %w", vm, key.Device, ErrNoData)
	}

	cl.to(stateTranslating)
	return s.translate(samples, vm, key.Device)
}

// Reset logs out and drops the catalog and every cached device, InitPerf has to be called again.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.catalog.Reset()
	s.cache.Reset()

	if c == nil {
		return nil
	}
	return c.sess.Logout(ctx)
}

// Close logs the active session out. Only the first call has an effect.
func (s *Service) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		c := s.conn
		s.conn = nil
		s.closed = true
		s.mu.Unlock()

		if c != nil {
			err = c.sess.Logout(ctx)
			s.Infof("session generation %d released", c.gen)
		}
	})
	return err
}

type op func(cl *call, c *conn, ref types.ManagedObjectReference) error

// withRecovery runs fn on the active session. If the service rejects the session
// the session is re-established, the VM handle is looked up again and fn is retried once.
func (s *Service) withRecovery(ctx context.Context, cl *call, fn op) error {
	c, err := s.current()
	if err != nil {
		return err
	}

	err = s.attempt(ctx, cl, c, fn)
	if err == nil || !client.IsNotAuthenticated(err) {
		return err
	}

	cl.to(stateRecovering)
	s.Warningf("vm %s device '%s': session generation %d is no longer authenticated, reconnecting", cl.vm, cl.device, c.gen)

	if c, err = s.reconnect(ctx, c); err != nil {
		return &RetrievalError{VM: cl.vm, Device: cl.device, Err: err}
	}
	if err := s.attempt(ctx, cl, c, fn); err != nil {
		if isNoData(err) {
			return err
		}
		return &RetrievalError{VM: cl.vm, Device: cl.device, Err: err}
	}
	return nil
}

func (s *Service) attempt(ctx context.Context, cl *call, c *conn, fn op) error {
	ref, err := c.vmRef(ctx, cl.vm.UUID)
	if err != nil {
		return fmt.Errorf("find vm %s: %w", cl.vm, err)
	}
	return fn(cl, c, ref)
}

func (s *Service) resolve(ctx context.Context, c *conn, ref types.ManagedObjectReference, key devcache.Key) ([]int32, error) {
	if !s.catalog.Loaded() {
		return nil, ErrCatalogNotLoaded
	}

	s.metrics.resolutions.Inc()
	counters, err := s.cache.Resolve(ctx, c.sess, c.gen, ref, key)
	if err != nil {
		return nil, fmt.Errorf("resolve counters of device '%s' on %s: %w", key.Device, ref, err)
	}
	s.Debugf("resolved %d counters for device '%s' on %s", len(counters), key.Device, ref)

	return counters, nil
}

func newKey(vm VM, bus, unit int) (devcache.Key, error) {
	if err := vm.validate(); err != nil {
		return devcache.Key{}, err
	}
	dev, err := DeviceAddress(bus, unit)
	if err != nil {
		return devcache.Key{}, err
	}
	return devcache.Key{VMUUID: strings.ToLower(vm.UUID), Device: dev}, nil
}

func isNoData(err error) bool {
	return errors.Is(err, ErrNoData)
}
