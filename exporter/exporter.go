// SPDX-License-Identifier: GPL-3.0-or-later

package exporter

import (
	"context"
	"errors"
	"time"

	"github.com/vmdkops/vmdkperf/logger"
	"github.com/vmdkops/vmdkperf/perf"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/conc/pool"
)

type StatsGetter interface {
	GetVolumeStats(ctx context.Context, vm perf.VM, bus, unit int) (perf.Stats, error)
}

type Volume struct {
	VM   perf.VM
	Bus  int
	Unit int
}

// Exporter is a prometheus.Collector that queries every configured volume on each scrape.
type Exporter struct {
	*logger.Logger

	stats         StatsGetter
	volumes       []Volume
	maxConcurrent int
	timeout       time.Duration

	statDesc    *prometheus.Desc
	successDesc *prometheus.Desc
}

func New(stats StatsGetter, volumes []Volume, maxConcurrent int, timeout time.Duration) *Exporter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Exporter{
		stats:         stats,
		volumes:       volumes,
		maxConcurrent: maxConcurrent,
		timeout:       timeout,
		statDesc: prometheus.NewDesc(
			"vmdkperf_volume_stat",
			"Latest value of a virtual disk performance counter.",
			[]string{"vm", "vm_uuid", "device", "stat"}, nil,
		),
		successDesc: prometheus.NewDesc(
			"vmdkperf_volume_scrape_success",
			"Whether the stats of the virtual disk were retrieved.",
			[]string{"vm", "vm_uuid", "device"}, nil,
		),
	}
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.statDesc
	ch <- e.successDesc
}

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	ctx := context.Background()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	p := pool.New().WithMaxGoroutines(e.maxConcurrent)
	for _, v := range e.volumes {
		v := v
		p.Go(func() { e.collectVolume(ctx, ch, v) })
	}
	p.Wait()
}

func (e *Exporter) collectVolume(ctx context.Context, ch chan<- prometheus.Metric, v Volume) {
	device, err := perf.DeviceAddress(v.Bus, v.Unit)
	if err != nil {
		e.Warning(err)
		return
	}

	stats, err := e.stats.GetVolumeStats(ctx, v.VM, v.Bus, v.Unit)
	switch {
	case err == nil:
	case errors.Is(err, perf.ErrNoData):
		e.Debugf("vm %s device '%s': no data yet", v.VM, device)
	default:
		e.Errorf("vm %s device '%s': %v", v.VM, device, err)
		ch <- prometheus.MustNewConstMetric(e.successDesc, prometheus.GaugeValue, 0, v.VM.Name, v.VM.UUID, device)
		return
	}

	ch <- prometheus.MustNewConstMetric(e.successDesc, prometheus.GaugeValue, 1, v.VM.Name, v.VM.UUID, device)
	for name, stat := range stats {
		ch <- prometheus.MustNewConstMetric(e.statDesc, prometheus.GaugeValue, float64(stat.Value), v.VM.Name, v.VM.UUID, device, name)
	}
}
