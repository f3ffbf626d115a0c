// SPDX-License-Identifier: GPL-3.0-or-later

package perf

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vmdkops/vmdkperf/perf/labels"

	"github.com/vmware/govmomi/vim25/types"
)

const (
	// Real-time collection interval of the performance manager, in seconds.
	pqsIntervalID = 20
	// Only the latest snapshot.
	pqsMaxSample = 1
	pqsFormat    = types.PerfFormatCsv
)

func newQuerySpec(entity types.ManagedObjectReference, device string, counters []int32) types.PerfQuerySpec {
	ids := make([]types.PerfMetricId, 0, len(counters))
	for _, id := range counters {
		ids = append(ids, types.PerfMetricId{CounterId: id, Instance: device})
	}
	return types.PerfQuerySpec{
		Entity:     entity,
		MetricId:   ids,
		IntervalId: pqsIntervalID,
		MaxSample:  pqsMaxSample,
		Format:     string(pqsFormat),
	}
}

// decodeSamples flattens the query result into the latest sample of every series.
// Both the csv and the normal result formats are accepted.
func decodeSamples(res []types.BasePerfEntityMetricBase) ([]Sample, error) {
	var samples []Sample

	for _, r := range res {
		switch m := r.(type) {
		case *types.PerfEntityMetricCSV:
			for _, series := range m.Value {
				v, ok, err := latestCSV(series.Value)
				if err != nil {
					return nil, fmt.Errorf("counter %d instance '%s': %w", series.Id.CounterId, series.Id.Instance, err)
				}
				if ok {
					samples = append(samples, Sample{CounterID: series.Id.CounterId, Instance: series.Id.Instance, Value: v})
				}
			}
		case *types.PerfEntityMetric:
			for _, base := range m.Value {
				series, ok := base.(*types.PerfMetricIntSeries)
				if !ok || len(series.Value) == 0 {
					continue
				}
				samples = append(samples, Sample{
					CounterID: series.Id.CounterId,
					Instance:  series.Id.Instance,
					Value:     series.Value[len(series.Value)-1],
				})
			}
		}
	}

	return samples, nil
}

func latestCSV(s string) (int64, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	if i := strings.LastIndexByte(s, ','); i >= 0 {
		s = s[i+1:]
	}
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// translate associates samples with counters by counter ID, never by position.
func (s *Service) translate(samples []Sample, vm VM, device string) (Stats, error) {
	if !s.catalog.Loaded() {
		return nil, ErrCatalogNotLoaded
	}

	stats := make(Stats, len(samples))
	for _, smp := range samples {
		ctr, ok := s.catalog.Lookup(smp.CounterID)
		if !ok {
			return nil, fmt.Errorf("vm %s device '%s' counter %d: %w", vm, device, smp.CounterID, ErrUnknownCounter)
		}
		short, err := s.translator.ShortLabel(ctr.Label)
		if err != nil {
			return nil, fmt.Errorf("vm %s device '%s' counter %d (%s): %w", vm, device, smp.CounterID, ctr.Name, err)
		}
		if labels.IsIgnored(short) {
			continue
		}
		stats[labels.Format(short, ctr.Unit)] = Stat{Value: smp.Value, Summary: ctr.Summary}
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("vm %s device '%s': only ignored counters reported: %w", vm, device, ErrNoData)
	}

	return stats, nil
}
