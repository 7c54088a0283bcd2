// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build linux

package device

import (
	"fmt"
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

var (
	nvmlOnce sync.Once
	nvmlErr  error
)

func initNVMLOnce() error {
	nvmlOnce.Do(func() {
		if ret := nvml.Init(); ret != nvml.SUCCESS {
			nvmlErr = fmt.Errorf("nvml init: %s", nvml.ErrorString(ret))
		}
	})
	return nvmlErr
}

// queryTelemetry is grounded in
// _examples/aleksandr-podmoskovniy-gpu-control-plane's
// pkg/detect/nvml_linux.go: initialise once, look up a handle by index,
// and best-effort-populate the fields that are actually exposed by the
// installed NVML version.
func queryTelemetry(index int) (Telemetry, error) {
	if err := initNVMLOnce(); err != nil {
		return Telemetry{}, err
	}
	dev, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return Telemetry{}, fmt.Errorf("get handle %d: %s", index, nvml.ErrorString(ret))
	}

	var t Telemetry
	t.Available = true
	if pwr, ret := dev.GetPowerUsage(); ret == nvml.SUCCESS {
		t.PowerUsageMW = uint32(pwr)
	}
	if temp, ret := dev.GetTemperature(nvml.TEMPERATURE_GPU); ret == nvml.SUCCESS {
		t.TemperatureC = temp
	}
	if util, ret := dev.GetUtilizationRates(); ret == nvml.SUCCESS {
		t.UtilizationGPU = util.Gpu
		t.UtilizationMem = util.Memory
	}
	return t, nil
}
