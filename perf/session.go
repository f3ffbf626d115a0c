// SPDX-License-Identifier: GPL-3.0-or-later

package perf

import (
	"context"
	"fmt"
	"sync"

	"github.com/vmdkops/vmdkperf/perf/catalog"
	"github.com/vmdkops/vmdkperf/perf/devcache"
	"github.com/vmdkops/vmdkperf/vsphere/client"

	"github.com/vmware/govmomi/vim25/types"
)

// Session is one authenticated connection to the performance service.
// Entity handles it returns are only valid while the session is.
type Session interface {
	catalog.CounterSource
	devcache.MetricSource
	Query(context.Context, []types.PerfQuerySpec) ([]types.BasePerfEntityMetricBase, error)
	FindVM(ctx context.Context, uuid string) (types.ManagedObjectReference, error)
	Identity() client.Identity
	Version() string
	Logout(context.Context) error
}

type DialFunc func(context.Context) (Session, error)

// conn is one session generation together with the VM handles resolved on it.
type conn struct {
	sess Session
	gen  uint64

	mu  sync.Mutex
	vms map[string]types.ManagedObjectReference
}

func (c *conn) vmRef(ctx context.Context, uuid string) (types.ManagedObjectReference, error) {
	c.mu.Lock()
	ref, ok := c.vms[uuid]
	c.mu.Unlock()
	if ok {
		return ref, nil
	}

	ref, err := c.sess.FindVM(ctx, uuid)
	if err != nil {
		return types.ManagedObjectReference{}, err
	}

	c.mu.Lock()
	c.vms[uuid] = ref
	c.mu.Unlock()

	return ref, nil
}

func (s *Service) current() (*conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.conn == nil {
		return nil, ErrNotInitialized
	}
	return s.conn, nil
}

// dial establishes a session and loads the counter catalog from it.
func (s *Service) dial(ctx context.Context) (Session, error) {
	sess, err := s.dialFunc(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to performance service: %w", err)
	}
	if err := s.catalog.Load(ctx, sess); err != nil {
		_ = sess.Logout(ctx)
		return nil, err
	}
	return sess, nil
}

// install makes sess the active session unless the active one is no longer stale.
// It returns the session to use and whether sess was installed.
func (s *Service) install(sess Session, stale *conn) (*conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.conn != stale {
		return s.conn, false
	}

	s.gen++
	s.conn = &conn{sess: sess, gen: s.gen, vms: make(map[string]types.ManagedObjectReference)}

	id := sess.Identity()
	s.Infof("connected to performance service %s as '%s' (generation %d, %d counters)", sess.Version(), id.UserName, s.gen, s.catalog.Len())

	return s.conn, true
}

// reconnect replaces the invalidated session. The old one is abandoned, not logged out:
// the service already rejects it. If another call has reconnected in the meantime its
// session is reused.
func (s *Service) reconnect(ctx context.Context, stale *conn) (*conn, error) {
	s.mu.Lock()
	closed, active := s.closed, s.conn
	s.mu.Unlock()

	if closed {
		return nil, ErrClosed
	}
	if active != stale && active != nil {
		return active, nil
	}

	sess, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.reconnects.Inc()

	c, ok := s.install(sess, stale)
	if !ok {
		_ = sess.Logout(ctx)
		if c == nil {
			_, err := s.current()
			return nil, err
		}
	}
	return c, nil
}
