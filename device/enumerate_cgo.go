// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build cgo

package device

/*
#cgo LDFLAGS: -lOpenCL
#ifdef __APPLE__
#include <OpenCL/cl.h>
#else
#include <CL/cl.h>
#endif
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// enumerateImpl queries real OpenCL platforms and GPU devices, grounded
// directly in original_source/src/device_opencl.c's init_opencl_devices:
// the same < 1.2 GB rejection, the same block/grid derivation, and the
// same "[OpenCL] <name> (<CU> CU, <MB> MB)" info string shape.
func enumerateImpl(limit int) ([]*Context, error) {
	var numPlatforms C.cl_uint
	if C.clGetPlatformIDs(0, nil, &numPlatforms) != C.CL_SUCCESS || numPlatforms == 0 {
		return nil, nil
	}
	platforms := make([]C.cl_platform_id, numPlatforms)
	if C.clGetPlatformIDs(numPlatforms, &platforms[0], nil) != C.CL_SUCCESS {
		return nil, fmt.Errorf("device: clGetPlatformIDs failed")
	}

	var out []*Context
	id := 0
	for p, platform := range platforms {
		var numDevices C.cl_uint
		if C.clGetDeviceIDs(platform, C.CL_DEVICE_TYPE_GPU, 0, nil, &numDevices) != C.CL_SUCCESS || numDevices == 0 {
			continue
		}
		devices := make([]C.cl_device_id, numDevices)
		if C.clGetDeviceIDs(platform, C.CL_DEVICE_TYPE_GPU, numDevices, &devices[0], nil) != C.CL_SUCCESS {
			continue
		}
		for d, dev := range devices {
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
			ctx, err := probeDevice(id, dev)
			if err != nil {
				log.Warnf("device: skipping platform %d device %d: %v", p, d, err)
				continue
			}
			out = append(out, ctx)
			id++
		}
	}
	return out, nil
}

func probeDevice(id int, dev C.cl_device_id) (*Context, error) {
	var memSize C.cl_ulong
	if C.clGetDeviceInfo(dev, C.CL_DEVICE_GLOBAL_MEM_SIZE, C.size_t(unsafe.Sizeof(memSize)), unsafe.Pointer(&memSize), nil) != C.CL_SUCCESS {
		return nil, fmt.Errorf("query global mem size")
	}
	if uint64(memSize) < minGlobalMemBytes {
		return nil, fmt.Errorf("insufficient memory: %d bytes", uint64(memSize))
	}

	var computeUnits C.cl_uint
	C.clGetDeviceInfo(dev, C.CL_DEVICE_MAX_COMPUTE_UNITS, C.size_t(unsafe.Sizeof(computeUnits)), unsafe.Pointer(&computeUnits), nil)

	var maxWorkGroup C.size_t
	C.clGetDeviceInfo(dev, C.CL_DEVICE_MAX_WORK_GROUP_SIZE, C.size_t(unsafe.Sizeof(maxWorkGroup)), unsafe.Pointer(&maxWorkGroup), nil)

	var nameBuf [256]C.char
	C.clGetDeviceInfo(dev, C.CL_DEVICE_NAME, 256, unsafe.Pointer(&nameBuf[0]), nil)
	name := C.GoString(&nameBuf[0])

	var vendorBuf [256]C.char
	C.clGetDeviceInfo(dev, C.CL_DEVICE_VENDOR, 256, unsafe.Pointer(&vendorBuf[0]), nil)
	vendor := C.GoString(&vendorBuf[0])

	local, global := deriveWorkDimensions(int(computeUnits), int(maxWorkGroup))

	kind := KindOpenCL
	if isNVIDIAVendor(vendor) {
		kind = KindCUDA
	}

	ctx := &Context{
		ID:           id,
		Kind:         kind,
		Info:         fmt.Sprintf("[OpenCL] %.200s (%d CU, %d MB)", name, uint32(computeUnits), uint64(memSize)/(1024*1024)),
		ComputeUnits: int(computeUnits),
		MaxWorkGroup: int(maxWorkGroup),
		Local:        local,
		Global:       global,
		Status:       StatusNull,
		Handle:       dev,
	}
	return ctx, nil
}

func isNVIDIAVendor(vendor string) bool {
	for _, want := range []string{"NVIDIA"} {
		if len(vendor) >= len(want) && vendor[:len(want)] == want {
			return true
		}
	}
	return false
}
