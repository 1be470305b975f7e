// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

// NoiseReport summarizes phase errors, in fractions of the torus.
type NoiseReport struct {
	Count  int
	Mean   float64
	StdDev float64
	MaxAbs float64
}

// PhaseError returns the signed distance, in fractions of the torus,
// between a decrypted phase and the encoding of want.
func PhaseError(phase uint32, want bool) float64 {
	return TorusToFloat(phase - Encode(want))
}

// NewNoiseReport computes the report of a set of phase errors.
func NewNoiseReport(errs []float64) (r NoiseReport, err error) {
	if len(errs) == 0 {
		return r, errors.New("noise report: no samples")
	}
	r.Count = len(errs)
	if r.Mean, err = stats.Mean(errs); err != nil {
		return r, fmt.Errorf("noise report: %w", err)
	}
	if r.StdDev, err = stats.StandardDeviation(errs); err != nil {
		return r, fmt.Errorf("noise report: %w", err)
	}
	abs := make([]float64, len(errs))
	for i, e := range errs {
		abs[i] = math.Abs(e)
	}
	if r.MaxAbs, err = stats.Max(abs); err != nil {
		return r, fmt.Errorf("noise report: %w", err)
	}
	return r, nil
}

// Log2StdDev returns log2 of the standard deviation, or -Inf for zero noise.
func (r NoiseReport) Log2StdDev() float64 {
	return math.Log2(r.StdDev)
}

// String implements fmt.Stringer.
func (r NoiseReport) String() string {
	return fmt.Sprintf("samples=%d mean=%.3e stddev=2^%.2f max=%.3e (margin 1/8=%.3e)",
		r.Count, r.Mean, r.Log2StdDev(), r.MaxAbs, 0.125)
}
