// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package accel

import "fmt"

// Region names one of the fixed device buffers bound to the kernel.
type Region uint8

const (
	// RegionInput holds PackingFactor modulus-switched LWE masks.
	RegionInput Region = iota
	// RegionOutput holds PackingFactor GLWE accumulators.
	RegionOutput
	// RegionKey holds the key image.
	RegionKey
)

func (r Region) String() string {
	switch r {
	case RegionInput:
		return "input"
	case RegionOutput:
		return "output"
	case RegionKey:
		return "key"
	}
	return fmt.Sprintf("region(%d)", uint8(r))
}

// Device is a handle on a programmed accelerator. The kernel takes the
// arguments (input, output, key, run flag); Run executes it synchronously.
// Buffers passed to Write and Read must have exactly the region size.
type Device interface {
	Write(r Region, data []byte) error
	Read(r Region, data []byte) error
	SetRunFlag(v uint32) error
	Run() error
	Close() error
}

// Opener programs the device described by cfg with an image of the given
// layout and returns its handle.
type Opener func(cfg Config, layout Layout) (Device, error)

// checkedDevice validates every buffer against the layout before it
// reaches the driver.
type checkedDevice struct {
	Device
	layout Layout
}

func guard(dev Device, layout Layout) Device {
	return &checkedDevice{Device: dev, layout: layout}
}

func (d *checkedDevice) check(r Region, data []byte) error {
	want := d.layout.RegionSize(r)
	if want == 0 {
		return fmt.Errorf("accel: unknown %s", r)
	}
	if len(data) != want {
		return &LayoutError{Reason: r.String() + " region", Want: want, Got: len(data)}
	}
	return nil
}

func (d *checkedDevice) Write(r Region, data []byte) error {
	if err := d.check(r, data); err != nil {
		return err
	}
	return d.Device.Write(r, data)
}

func (d *checkedDevice) Read(r Region, data []byte) error {
	if err := d.check(r, data); err != nil {
		return err
	}
	return d.Device.Read(r, data)
}
