// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

//go:build cgo && xrt

package accel

/*
#cgo CFLAGS: -I/opt/xilinx/xrt/include
#cgo LDFLAGS: -L/opt/xilinx/xrt/lib -lxrt_coreutil
#include <stdlib.h>
#include <xrt/xrt_bo.h>
#include <xrt/xrt_device.h>
#include <xrt/xrt_kernel.h>

// xrtRunSetArg is variadic; cgo cannot call it directly.
static int lux_run_set_bo(xrtRunHandle run, int index, xrtBufferHandle bo) {
	return xrtRunSetArg(run, index, bo);
}

static int lux_run_set_u32(xrtRunHandle run, int index, unsigned int v) {
	return xrtRunSetArg(run, index, v);
}
*/
import "C"

import (
	"fmt"
	"log"
	"unsafe"
)

const kernelName = "accel"

type xrtDevice struct {
	layout Layout
	dev    C.xrtDeviceHandle
	kernel C.xrtKernelHandle
	run    C.xrtRunHandle
	bos    [3]C.xrtBufferHandle
	closed bool
}

// OpenXRT programs device cfg.Index with cfg.Image and binds the three
// buffers and the run flag to the kernel arguments.
func OpenXRT(cfg Config, layout Layout) (Device, error) {
	d := &xrtDevice{layout: layout}
	d.dev = C.xrtDeviceOpen(C.uint(cfg.Index))
	if d.dev == nil {
		return nil, fmt.Errorf("accel: open device %d", cfg.Index)
	}

	path := C.CString(cfg.Image)
	defer C.free(unsafe.Pointer(path))
	if rc := C.xrtDeviceLoadXclbinFile(d.dev, path); rc != 0 {
		C.xrtDeviceClose(d.dev)
		return nil, fmt.Errorf("accel: load image %s: code %d", cfg.Image, int(rc))
	}

	var uuid C.xuid_t
	if rc := C.xrtDeviceGetXclbinUUID(d.dev, &uuid[0]); rc != 0 {
		C.xrtDeviceClose(d.dev)
		return nil, fmt.Errorf("accel: image uuid: code %d", int(rc))
	}
	name := C.CString(kernelName)
	defer C.free(unsafe.Pointer(name))
	d.kernel = C.xrtPLKernelOpenExclusive(d.dev, &uuid[0], name)
	if d.kernel == nil {
		C.xrtDeviceClose(d.dev)
		return nil, fmt.Errorf("accel: open kernel %q", kernelName)
	}

	grpIn := C.xrtKernelArgGroupId(d.kernel, 0)
	grpOut := C.xrtKernelArgGroupId(d.kernel, 1)
	groups := [3]C.int{grpIn, grpOut, grpOut}
	for _, r := range []Region{RegionInput, RegionOutput, RegionKey} {
		d.bos[r] = C.xrtBOAlloc(d.dev, C.size_t(layout.RegionSize(r)), 0, C.xrtMemoryGroup(groups[r]))
		if d.bos[r] == nil {
			d.release()
			return nil, fmt.Errorf("accel: allocate %s buffer of %d bytes", r, layout.RegionSize(r))
		}
	}

	d.run = C.xrtRunOpen(d.kernel)
	if d.run == nil {
		d.release()
		return nil, fmt.Errorf("accel: open kernel run")
	}
	for i, r := range []Region{RegionInput, RegionOutput, RegionKey} {
		if rc := C.lux_run_set_bo(d.run, C.int(i), d.bos[r]); rc != 0 {
			d.release()
			return nil, fmt.Errorf("accel: bind %s buffer: code %d", r, int(rc))
		}
	}
	log.Printf("accel: opened device %d with image %s", cfg.Index, cfg.Image)
	return d, nil
}

func (d *xrtDevice) release() {
	if d.run != nil {
		C.xrtRunClose(d.run)
	}
	for _, bo := range d.bos {
		if bo != nil {
			C.xrtBOFree(bo)
		}
	}
	if d.kernel != nil {
		C.xrtKernelClose(d.kernel)
	}
	C.xrtDeviceClose(d.dev)
}

func (d *xrtDevice) Write(r Region, data []byte) error {
	if d.closed {
		return ErrClosed
	}
	size := C.size_t(len(data))
	if rc := C.xrtBOWrite(d.bos[r], unsafe.Pointer(&data[0]), size, 0); rc != 0 {
		return fmt.Errorf("write %s: code %d", r, int(rc))
	}
	if rc := C.xrtBOSync(d.bos[r], C.XCL_BO_SYNC_BO_TO_DEVICE, size, 0); rc != 0 {
		return fmt.Errorf("sync %s to device: code %d", r, int(rc))
	}
	return nil
}

func (d *xrtDevice) Read(r Region, data []byte) error {
	if d.closed {
		return ErrClosed
	}
	size := C.size_t(len(data))
	if rc := C.xrtBOSync(d.bos[r], C.XCL_BO_SYNC_BO_FROM_DEVICE, size, 0); rc != 0 {
		return fmt.Errorf("sync %s from device: code %d", r, int(rc))
	}
	if rc := C.xrtBORead(d.bos[r], unsafe.Pointer(&data[0]), size, 0); rc != 0 {
		return fmt.Errorf("read %s: code %d", r, int(rc))
	}
	return nil
}

func (d *xrtDevice) SetRunFlag(v uint32) error {
	if d.closed {
		return ErrClosed
	}
	if rc := C.lux_run_set_u32(d.run, 3, C.uint(v)); rc != 0 {
		return fmt.Errorf("set run flag: code %d", int(rc))
	}
	return nil
}

func (d *xrtDevice) Run() error {
	if d.closed {
		return ErrClosed
	}
	if rc := C.xrtRunStart(d.run); rc != 0 {
		return fmt.Errorf("start kernel: code %d", int(rc))
	}
	if state := C.xrtRunWait(d.run); state != C.ERT_CMD_STATE_COMPLETED {
		return fmt.Errorf("kernel finished in state %d", int(state))
	}
	return nil
}

func (d *xrtDevice) Close() error {
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	d.release()
	return nil
}
