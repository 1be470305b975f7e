// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package accel

import (
	"os"
	"strconv"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvImage = "FPGA_IMAGE"
	EnvIndex = "FPGA_INDEX"
)

// Config locates the device and the image to program it with.
type Config struct {
	// Image is the path of the compiled kernel image.
	Image string
	// Index selects the device when several are installed.
	Index uint32
}

// ConfigFromEnv reads FPGA_IMAGE and FPGA_INDEX. Both are required.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	image, ok := os.LookupEnv(EnvImage)
	if !ok || image == "" {
		return cfg, &ConfigurationError{Var: EnvImage}
	}
	raw, ok := os.LookupEnv(EnvIndex)
	if !ok || raw == "" {
		return cfg, &ConfigurationError{Var: EnvIndex}
	}
	index, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return cfg, &ConfigurationError{Var: EnvIndex, Value: raw, Err: err}
	}
	cfg.Image = image
	cfg.Index = uint32(index)
	return cfg, nil
}
