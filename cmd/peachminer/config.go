// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

// config is the flat flag struct this binary accepts. Deliberately thin:
// a full configuration story (file-based loading, hot reload) is an
// external collaborator, not this program's job.
type config struct {
	PoolHost string `long:"pool" description:"Stratum pool hostname" required:"true"`
	PoolPort int    `long:"port" description:"Stratum pool port" default:"3333"`
	Wallet   string `long:"wallet" description:"Mining reward wallet address" required:"true"`
	Worker   string `long:"worker" description:"Worker name reported to the pool" default:"peachminer"`

	ProxyAddr string `long:"proxy" description:"Optional SOCKS5 proxy address (host:port)"`
	ProxyUser string `long:"proxyuser" description:"SOCKS5 proxy username"`
	ProxyPass string `long:"proxypass" description:"SOCKS5 proxy password"`

	MetricsAddr string `long:"metricsaddr" description:"Optional Prometheus /metrics listen address, e.g. :9090"`

	LogDir   string `long:"logdir" description:"Directory for rotated log files" default:"logs"`
	LogLevel string `long:"loglevel" description:"Log level (trace, debug, info, warn, error, critical)" default:"info"`

	MaxDevices int  `long:"maxdevices" description:"Maximum number of devices to attach (0 = unlimited)" default:"0"`
	SimDevices bool `long:"simdevices" description:"Drive enumerated devices with the simulated compute backend instead of the hardware backend (for testing); device enumeration is unchanged"`
}

func loadConfig() (*config, error) {
	cfg := &config{}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	return cfg, nil
}
