// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command peachminer is a GPU-accelerated Peach proof-of-work mining
// worker: it enumerates accelerators, drives each through the Peach
// device state machine, and feeds a Stratum pool connection.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/btcsuite/btclog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adequatesystems/peach-miner/coordinator"
	"github.com/adequatesystems/peach-miner/device"
	"github.com/adequatesystems/peach-miner/device/peach"
	"github.com/adequatesystems/peach-miner/stratum"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "peachminer: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	backend, err := initLogRotator(cfg.LogDir)
	if err != nil {
		return err
	}
	defer logRotator.Close()
	wireLoggers(backend, parseLevel(cfg.LogLevel))
	log := backend.Logger("MAIN")

	slots, err := attachDevices(cfg)
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		return fmt.Errorf("no usable devices remaining after enumeration")
	}
	log.Infof("attached %d device(s)", len(slots))

	clientOpts := []stratum.Option{}
	if cfg.ProxyAddr != "" {
		clientOpts = append(clientOpts, stratum.WithProxy(stratum.ProxyConfig{
			Addr:     cfg.ProxyAddr,
			Username: cfg.ProxyUser,
			Password: cfg.ProxyPass,
		}))
	}
	client := stratum.NewClient(cfg.PoolHost, cfg.PoolPort, cfg.Wallet, cfg.Worker, clientOpts...)
	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect to pool: %w", err)
	}

	co := coordinator.New(client, slots)

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, co, log)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("mining loop starting")
	if err := co.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("coordinator: %w", err)
	}
	log.Infof("mining loop stopped")
	return nil
}

// attachDevices enumerates candidate accelerators and attaches a Peach
// driver to each, up to cfg.MaxDevices if set. A device that fails to
// attach is logged and skipped rather than aborting the whole process.
func attachDevices(cfg *config) ([]*coordinator.Slot, error) {
	limit := cfg.MaxDevices
	contexts, err := device.Enumerate(limit)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	var slots []*coordinator.Slot
	for _, ctx := range contexts {
		backend := newDeviceBackend(cfg)
		driver := peach.NewDriver(backend)
		if err := driver.Attach(ctx); err != nil {
			continue
		}
		slots = append(slots, &coordinator.Slot{Context: ctx, Driver: driver})
	}
	return slots, nil
}

// newDeviceBackend selects the compute backend. SimDevices swaps in the
// simulated backend for every enumerated device; it does not change which
// devices Enumerate reports.
func newDeviceBackend(cfg *config) peach.Backend {
	if cfg.SimDevices {
		return peach.NewSimBackend(0, 0)
	}
	return newHardwareBackend()
}

func serveMetrics(addr string, co *coordinator.Coordinator, log btclog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(co.Metrics.Registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Errorf("metrics server: %v", err)
	}
}
