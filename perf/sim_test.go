// SPDX-License-Identifier: GPL-3.0-or-later

package perf

import (
	"context"
	"crypto/tls"
	"slices"
	"testing"
	"time"

	"github.com/vmdkops/vmdkperf/perf/labels"
	"github.com/vmdkops/vmdkperf/pkg/tlscfg"
	"github.com/vmdkops/vmdkperf/vsphere/client"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmware/govmomi/simulator"
	"github.com/vmware/govmomi/vim25/types"
)

// The simulator reports no virtual disk instances for VMs, simDiskSession exposes
// the metrics of the first vCPU under the device address instead.
const (
	simInstance = "0"
	simDevice   = "scsi0:0"
)

type simDiskSession struct {
	*client.Client
}

func (s simDiskSession) AvailableMetrics(ctx context.Context, entity types.ManagedObjectReference) ([]types.PerfMetricId, error) {
	metrics, err := s.Client.AvailableMetrics(ctx, entity)
	if err != nil {
		return nil, err
	}
	var res []types.PerfMetricId
	for _, m := range metrics {
		if m.Instance == simInstance {
			m.Instance = simDevice
			res = append(res, m)
		}
	}
	return res, nil
}

func (s simDiskSession) Query(ctx context.Context, specs []types.PerfQuerySpec) ([]types.BasePerfEntityMetricBase, error) {
	specs = slices.Clone(specs)
	for i := range specs {
		ids := slices.Clone(specs[i].MetricId)
		for j := range ids {
			if ids[j].Instance == simDevice {
				ids[j].Instance = simInstance
			}
		}
		specs[i].MetricId = ids
	}
	return s.Client.Query(ctx, specs)
}

func TestService_GetVolumeStats_RecoversExpiredSimulatorSession(t *testing.T) {
	cfg, teardown := createSim(t)
	defer teardown()
	ctx := context.Background()

	vm, tr := inspectSim(t, cfg)

	svc := New(Config{
		Dial: func(ctx context.Context) (Session, error) {
			c, err := client.New(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return simDiskSession{Client: c}, nil
		},
		Translator: tr,
	})
	require.NoError(t, svc.InitPerf(ctx))
	defer func() { _ = svc.Close(ctx) }()

	stats, err := svc.GetVolumeStats(ctx, vm, 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, stats)

	first, err := svc.current()
	require.NoError(t, err)
	require.NoError(t, first.sess.Logout(ctx))

	stats, err = svc.GetVolumeStats(ctx, vm, 0, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, stats)

	second, err := svc.current()
	require.NoError(t, err)
	assert.Equal(t, first.gen+1, second.gen)
	assert.NotEqual(t, first.sess.Identity().Key, second.sess.Identity().Key)
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.reconnects))
}

// inspectSim returns a VM of the inventory and a translator covering every counter label.
func inspectSim(t *testing.T, cfg client.Config) (VM, *labels.Translator) {
	ctx := context.Background()

	c, err := client.New(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = c.Logout(ctx) }()

	infos, err := c.CounterInfo(ctx)
	require.NoError(t, err)
	table := make(map[string]string)
	for _, info := range infos {
		if d := info.NameInfo.GetElementDescription(); d != nil {
			table[d.Label] = d.Key
		}
	}

	vms, err := c.VirtualMachines(ctx, "name", "config.uuid")
	require.NoError(t, err)
	require.NotEmpty(t, vms)

	return VM{Name: vms[0].Name, UUID: vms[0].Config.Uuid}, labels.New(table)
}

func createSim(t *testing.T) (client.Config, func()) {
	model := simulator.VPX()
	require.NoError(t, model.Create())
	model.Service.TLS = new(tls.Config)
	srv := model.Service.NewServer()

	cfg := client.Config{
		URL:       srv.URL.String(),
		User:      "admin",
		Password:  "password",
		Timeout:   time.Second * 3,
		CallerID:  "vmdkperf-test",
		TLSConfig: tlscfg.TLSConfig{InsecureSkipVerify: true},
	}
	return cfg, func() { model.Remove(); srv.Close() }
}
