// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package accel

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDriver is returned by OpenXRT in builds without the xrt tag.
	ErrNoDriver = errors.New("accel: no device driver in this build (rebuild with -tags xrt)")
	// ErrKernelIdle is returned when the kernel is run with a zero run flag.
	ErrKernelIdle = errors.New("accel: kernel run flag is not set")
	// ErrKeyNotLoaded is returned when the kernel runs before a key upload.
	ErrKeyNotLoaded = errors.New("accel: bootstrapping key not loaded")
	// ErrBatchTooLarge is returned when a batch exceeds the packing factor.
	ErrBatchTooLarge = errors.New("accel: batch exceeds packing factor")
	// ErrClosed is returned by any call on a closed device or session.
	ErrClosed = errors.New("accel: device closed")
)

// LayoutError reports a key or buffer that does not match the layout the
// device image was compiled for.
type LayoutError struct {
	Reason string
	Want   int
	Got    int
}

func (e *LayoutError) Error() string {
	if e.Want != 0 || e.Got != 0 {
		return fmt.Sprintf("accel: layout mismatch: %s (want %d bytes, got %d)", e.Reason, e.Want, e.Got)
	}
	return "accel: layout mismatch: " + e.Reason
}

// ConfigurationError reports a missing or malformed environment variable.
type ConfigurationError struct {
	Var   string
	Value string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("accel: the %s environment variable is not set", e.Var)
	}
	return fmt.Sprintf("accel: invalid %s=%q: %v", e.Var, e.Value, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// DeviceFault wraps a failure of the device during an operation.
type DeviceFault struct {
	Op  string
	Err error
}

func (e *DeviceFault) Error() string {
	return fmt.Sprintf("accel: device fault during %s: %v", e.Op, e.Err)
}

func (e *DeviceFault) Unwrap() error { return e.Err }
