// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/vmdkops/vmdkperf/cli"
	"github.com/vmdkops/vmdkperf/config"
	"github.com/vmdkops/vmdkperf/exporter"
	"github.com/vmdkops/vmdkperf/logger"
	"github.com/vmdkops/vmdkperf/perf"
	"github.com/vmdkops/vmdkperf/pkg/buildinfo"
	"github.com/vmdkops/vmdkperf/vsphere/client"
)

const (
	exitOK = iota
	exitError
	exitNoData
)

func main() {
	_, _ = maxprocs.Set(maxprocs.Logger(func(s string, args ...interface{}) {}))

	opts := parseCLI()

	if opts.Version {
		fmt.Printf("%s, version: %s\n", buildinfo.Name, buildinfo.Version)
		return
	}

	if lvl := os.Getenv("VMDKPERF_LOG_LEVEL"); lvl != "" {
		logger.Level.SetByName(lvl)
	}
	if opts.Debug {
		logger.Level.Set(slog.LevelDebug)
	}

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		logger.Errorf("config: %v", err)
		os.Exit(exitError)
	}
	if err := cfg.Validate(); err != nil {
		logger.Errorf("config '%s': %v", opts.ConfigFile, err)
		os.Exit(exitError)
	}

	os.Exit(run(opts, cfg))
}

func run(opts *cli.Option, cfg config.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.New()
	clientCfg := cfg.ClientConfig(log.With("component", "client"))

	if opts.ListVMs {
		return listVMs(ctx, clientCfg, os.Stdout)
	}
	if opts.IsQuery() && opts.VMUUID == "" {
		log.Error("--vm-uuid is required to query a volume")
		return exitError
	}

	reg := prometheus.NewRegistry()
	svc := perf.New(perf.Config{
		Dial: func(ctx context.Context) (perf.Session, error) {
			c, err := client.New(ctx, clientCfg)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Registerer: reg,
		Logger:     log.With("component", "perf"),
	})

	log.Infof("%s %s: connecting to '%s' as '%s'", buildinfo.Name, buildinfo.Version, cfg.URL, cfg.Username)
	if err := svc.InitPerf(ctx); err != nil {
		log.Errorf("init performance service: %v", err)
		return exitError
	}
	defer func() {
		if err := svc.Close(context.Background()); err != nil {
			log.Warningf("release session: %v", err)
		}
	}()

	if opts.Serve {
		return serve(ctx, log, svc, reg, cfg)
	}
	return query(ctx, log, svc, opts, os.Stdout)
}

func query(ctx context.Context, log *logger.Logger, svc *perf.Service, opts *cli.Option, w io.Writer) int {
	vm := perf.VM{Name: opts.VMName, UUID: opts.VMUUID}

	stats, err := svc.GetVolumeStats(ctx, vm, opts.Bus, opts.Unit)
	if errors.Is(err, perf.ErrNoData) {
		log.Warningf("vm %s: no data yet", vm)
		return exitNoData
	}
	if err != nil {
		log.Error(err)
		return exitError
	}

	if opts.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(stats); err != nil {
			log.Error(err)
			return exitError
		}
		return exitOK
	}

	printStats(w, stats)
	return exitOK
}

func printStats(w io.Writer, stats perf.Stats) {
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range names {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\n", name, stats[name].Value, stats[name].Summary)
	}
	_ = tw.Flush()
}

func serve(ctx context.Context, log *logger.Logger, svc *perf.Service, reg *prometheus.Registry, cfg config.Config) int {
	volumes := make([]exporter.Volume, 0, len(cfg.Volumes))
	for _, v := range cfg.Volumes {
		vol := exporter.Volume{VM: perf.VM{Name: v.VMName, UUID: v.VMUUID}, Bus: v.Bus, Unit: v.Unit}
		if err := svc.InitPerfForVolume(ctx, vol.VM, vol.Bus, vol.Unit); err != nil {
			log.Warningf("pre-resolve vm %s bus %d unit %d: %v", vol.VM, vol.Bus, vol.Unit, err)
		}
		volumes = append(volumes, vol)
	}

	exp := exporter.New(svc, volumes, cfg.MaxConcurrent, cfg.Timeout.Duration())
	exp.Logger = log.With("component", "exporter")
	reg.MustRegister(exp, collectors.NewGoCollector())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: cfg.Listen, Handler: mux, ReadHeaderTimeout: time.Second * 10}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Infof("serving %d volumes on '%s'", len(volumes), cfg.Listen)

	select {
	case err := <-errCh:
		log.Errorf("http server: %v", err)
		return exitError
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warningf("http server shutdown: %v", err)
	}
	return exitOK
}

func listVMs(ctx context.Context, cfg client.Config, w io.Writer) int {
	c, err := client.New(ctx, cfg)
	if err != nil {
		logger.Errorf("connect: %v", err)
		return exitError
	}
	defer func() { _ = c.Logout(context.Background()) }()

	vms, err := c.VirtualMachines(ctx, "name", "config.uuid")
	if err != nil {
		logger.Errorf("list vms: %v", err)
		return exitError
	}

	sort.Slice(vms, func(i, j int) bool { return vms[i].Name < vms[j].Name })

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, vm := range vms {
		var id string
		if vm.Config != nil {
			id = vm.Config.Uuid
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", vm.Name, id, vm.Reference().Value)
	}
	_ = tw.Flush()
	return exitOK
}

func parseCLI() *cli.Option {
	opt, err := cli.Parse(os.Args[1:])
	if err != nil {
		if cli.IsHelp(err) {
			os.Exit(exitOK)
		}
		os.Exit(exitError)
	}
	return opt
}
