// SPDX-License-Identifier: GPL-3.0-or-later

package perf

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/vmdkops/vmdkperf/vsphere/client"

	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"
)

// backend plays the performance service. Every dial creates a new session on it.
type backend struct {
	mu sync.Mutex

	counters []types.PerfCounterInfo
	metrics  []types.PerfMetricId
	values   map[int32]int64
	normal   bool
	history  bool
	dialErr  error

	// number of upcoming calls that fail with NotAuthenticated
	findFaults  int
	availFaults int
	queryFaults int

	n     calls
	specs []types.PerfQuerySpec
}

type calls struct {
	dials, counterInfos, finds, avails, queries, logouts int
}

func newBackend() *backend {
	return &backend{
		counters: []types.PerfCounterInfo{
			counterInfo(17, "totalReadLatency", "Read latency", "usec"),
			counterInfo(18, "totalWriteLatency", "Write latency", "millisecond"),
			counterInfo(19, "writeLoadMetric", "Write workload metric", "number"),
			counterInfo(20, "readOIO", "Average number of outstanding read requests", "number"),
			counterInfo(21, "read", "Read rate", "kiloBytesPerSecond"),
		},
		metrics: []types.PerfMetricId{
			{CounterId: 21, Instance: ""},
			{CounterId: 17, Instance: "scsi0:3"},
			{CounterId: 18, Instance: "scsi0:3"},
			{CounterId: 19, Instance: "scsi0:3"},
			{CounterId: 20, Instance: "scsi0:3"},
			{CounterId: 17, Instance: "scsi0:1"},
		},
		values: map[int32]int64{17: 42, 18: 7, 19: 1000, 20: 2, 21: 512},
	}
}

func (b *backend) dial(context.Context) (Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.n.dials++
	if b.dialErr != nil {
		return nil, b.dialErr
	}
	return &fakeSession{b: b, gen: b.n.dials}, nil
}

func (b *backend) lastSpec() types.PerfQuerySpec {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.specs[len(b.specs)-1]
}

func (b *backend) set(f func(b *backend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f(b)
}

func (b *backend) calls() calls {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

type fakeSession struct {
	b   *backend
	gen int
}

func (s *fakeSession) Identity() client.Identity {
	return client.Identity{Key: "session-" + strconv.Itoa(s.gen), UserName: "vpxuser"}
}

func (s *fakeSession) Version() string { return "8.0.3.0" }

func (s *fakeSession) CounterInfo(context.Context) ([]types.PerfCounterInfo, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	s.b.n.counterInfos++
	return slices.Clone(s.b.counters), nil
}

func (s *fakeSession) FindVM(_ context.Context, uuid string) (types.ManagedObjectReference, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	s.b.n.finds++
	if s.b.findFaults > 0 {
		s.b.findFaults--
		return types.ManagedObjectReference{}, notAuthenticated()
	}
	if uuid == missingVM.UUID {
		return types.ManagedObjectReference{}, fmt.Errorf("%w: uuid '%s'", client.ErrVMNotFound, uuid)
	}
	return s.vmRef(), nil
}

func (s *fakeSession) AvailableMetrics(_ context.Context, entity types.ManagedObjectReference) ([]types.PerfMetricId, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	s.b.n.avails++
	if s.b.availFaults > 0 {
		s.b.availFaults--
		return nil, notAuthenticated()
	}
	if entity != s.vmRef() {
		return nil, fmt.Errorf("handle %s is not valid in session %d", entity, s.gen)
	}
	return slices.Clone(s.b.metrics), nil
}

func (s *fakeSession) Query(_ context.Context, specs []types.PerfQuerySpec) ([]types.BasePerfEntityMetricBase, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	s.b.n.queries++
	s.b.specs = append(s.b.specs, specs...)
	if s.b.queryFaults > 0 {
		s.b.queryFaults--
		return nil, fmt.Errorf("query perf: %w", notAuthenticated())
	}

	var res []types.BasePerfEntityMetricBase
	for _, spec := range specs {
		if spec.Entity != s.vmRef() {
			return nil, fmt.Errorf("handle %s is not valid in session %d", spec.Entity, s.gen)
		}

		ids := slices.Clone(spec.MetricId)
		// the service does not promise to keep the requested order
		slices.Reverse(ids)

		if s.b.normal {
			m := &types.PerfEntityMetric{PerfEntityMetricBase: types.PerfEntityMetricBase{Entity: spec.Entity}}
			for _, id := range ids {
				if v, ok := s.b.values[id.CounterId]; ok {
					m.Value = append(m.Value, &types.PerfMetricIntSeries{
						PerfMetricSeries: types.PerfMetricSeries{Id: id},
						Value:            []int64{v - 1, v},
					})
				}
			}
			res = append(res, m)
			continue
		}

		m := &types.PerfEntityMetricCSV{PerfEntityMetricBase: types.PerfEntityMetricBase{Entity: spec.Entity}}
		for _, id := range ids {
			if v, ok := s.b.values[id.CounterId]; ok {
				value := strconv.FormatInt(v, 10)
				if s.b.history {
					value = "1,2," + value
				}
				m.Value = append(m.Value, types.PerfMetricSeriesCSV{
					PerfMetricSeries: types.PerfMetricSeries{Id: id},
					Value:            value,
				})
			}
		}
		res = append(res, m)
	}
	return res, nil
}

func (s *fakeSession) Logout(context.Context) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	s.b.n.logouts++
	return nil
}

// handles are bound to the session that returned them
func (s *fakeSession) vmRef() types.ManagedObjectReference {
	return types.ManagedObjectReference{Type: "VirtualMachine", Value: fmt.Sprintf("vm-42-s%d", s.gen)}
}

func notAuthenticated() error {
	f := &soap.Fault{Code: "ServerFaultCode", String: "The session is not authenticated."}
	f.Detail.Fault = types.NotAuthenticated{}
	return soap.WrapSoapFault(f)
}

func counterInfo(key int32, name, label, unit string) types.PerfCounterInfo {
	return types.PerfCounterInfo{
		Key: key,
		NameInfo: &types.ElementDescription{
			Description: types.Description{Label: label, Summary: label + " of the virtual disk"},
			Key:         name,
		},
		GroupInfo:  &types.ElementDescription{Key: "virtualDisk"},
		UnitInfo:   &types.ElementDescription{Key: unit},
		RollupType: types.PerfSummaryTypeAverage,
	}
}

var errDial = errors.New("connection refused")
