// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

//go:build !cgo || !xrt

package accel

// OpenXRT is unavailable without the xrt build tag.
func OpenXRT(Config, Layout) (Device, error) {
	return nil, ErrNoDriver
}
