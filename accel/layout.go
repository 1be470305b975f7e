// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package accel drives a bootstrapping accelerator: it lays the Fourier
// bootstrapping key out in device memory order, owns the device handle and
// dispatches batches of ciphertexts to the bootstrap kernel.
package accel

import (
	"fmt"

	"github.com/luxfi/tfhe/core"
)

// Layout holds the constants an accelerator image was compiled with.
// Buffer sizes are stored, not derived, so that a key of another geometry
// is detected instead of silently reinterpreted.
type Layout struct {
	LWEDimension   int
	GLWEDimension  int
	PolynomialSize int
	PBSBaseLog     int
	PBSLevel       int

	// PackingFactor is the number of ciphertexts bootstrapped per kernel run.
	PackingFactor int
	// KeyWidth and KeyIntWidth describe the fixed-point key words:
	// KeyWidth bits in total, KeyIntWidth of them integer bits.
	KeyWidth    int
	KeyIntWidth int
	// AXIWidth is the memory bus width in bits; each beat carries
	// AXIWidth/128 complex coefficients.
	AXIWidth int

	// InputBufferSize, OutputBufferSize and KeyBufferSize are in bytes.
	InputBufferSize  int
	OutputBufferSize int
	KeyBufferSize    int
}

// DefaultLayout is the layout of the image compiled for core.DefaultParameters.
var DefaultLayout = Layout{
	LWEDimension:     722,
	GLWEDimension:    2,
	PolynomialSize:   512,
	PBSBaseLog:       6,
	PBSLevel:         3,
	PackingFactor:    16,
	KeyWidth:         58,
	KeyIntWidth:      42,
	AXIWidth:         512,
	InputBufferSize:  46208,
	OutputBufferSize: 98304,
	KeyBufferSize:    79847424,
}

// NewLayout derives the layout of an image built for params, using the
// fixed-point format and bus width of DefaultLayout.
func NewLayout(params core.Parameters, packingFactor int) Layout {
	dec := params.PBSDecomposer()
	l := Layout{
		LWEDimension:   params.LWEDimension(),
		GLWEDimension:  params.GLWEDimension(),
		PolynomialSize: params.N(),
		PBSBaseLog:     dec.BaseLog,
		PBSLevel:       dec.Level,
		PackingFactor:  packingFactor,
		KeyWidth:       DefaultLayout.KeyWidth,
		KeyIntWidth:    DefaultLayout.KeyIntWidth,
		AXIWidth:       DefaultLayout.AXIWidth,
	}
	l.InputBufferSize = packingFactor * l.LWEDimension * 4
	l.OutputBufferSize = packingFactor * (l.GLWEDimension + 1) * l.PolynomialSize * 4
	l.KeyBufferSize = l.keyWords() * 8
	return l
}

// Depth is the number of GGSW rows streamed per coefficient block:
// n*(k+1)*l.
func (l Layout) Depth() int {
	return l.LWEDimension * (l.GLWEDimension + 1) * l.PBSLevel
}

// PairsPerBeat is the number of complex coefficients per bus beat.
func (l Layout) PairsPerBeat() int {
	return l.AXIWidth / 128
}

// keyWords is the number of uint64 words of the key image.
func (l Layout) keyWords() int {
	return (l.GLWEDimension + 1) * (l.PolynomialSize / 2) * l.Depth() * 2
}

// RegionSize returns the fixed byte size of a device region.
func (l Layout) RegionSize(r Region) int {
	switch r {
	case RegionInput:
		return l.InputBufferSize
	case RegionOutput:
		return l.OutputBufferSize
	case RegionKey:
		return l.KeyBufferSize
	}
	return 0
}

// Validate checks that the layout is internally consistent.
func (l Layout) Validate() error {
	switch {
	case l.PackingFactor <= 0:
		return &LayoutError{Reason: fmt.Sprintf("packing factor %d", l.PackingFactor)}
	case l.KeyWidth <= l.KeyIntWidth || l.KeyWidth > 64:
		return &LayoutError{Reason: fmt.Sprintf("key word format %d.%d", l.KeyWidth, l.KeyIntWidth)}
	case l.PairsPerBeat() <= 0 || (l.PolynomialSize/2)%l.PairsPerBeat() != 0:
		return &LayoutError{Reason: fmt.Sprintf("bus width %d does not tile %d coefficients", l.AXIWidth, l.PolynomialSize/2)}
	case l.InputBufferSize != l.PackingFactor*l.LWEDimension*4:
		return &LayoutError{Reason: "input buffer", Want: l.PackingFactor * l.LWEDimension * 4, Got: l.InputBufferSize}
	case l.OutputBufferSize != l.PackingFactor*(l.GLWEDimension+1)*l.PolynomialSize*4:
		return &LayoutError{Reason: "output buffer", Want: l.PackingFactor * (l.GLWEDimension + 1) * l.PolynomialSize * 4, Got: l.OutputBufferSize}
	}
	return nil
}

// Parameters returns the blind rotation geometry of the layout. Noise
// fields are zero: the device never encrypts.
func (l Layout) Parameters() (core.Parameters, error) {
	logN := 0
	for 1<<logN < l.PolynomialSize {
		logN++
	}
	return core.NewParametersFromLiteral(core.ParametersLiteral{
		LWEDimension:  l.LWEDimension,
		GLWEDimension: l.GLWEDimension,
		LogN:          logN,
		PBSBaseLog:    l.PBSBaseLog,
		PBSLevel:      l.PBSLevel,
		KSBaseLog:     1,
		KSLevel:       1,
	})
}

// checkKey reports whether bsk has the geometry the layout was compiled for.
func (l Layout) checkKey(bsk *core.FourierBootstrapKey) error {
	if bsk.LWEDimension != l.LWEDimension || bsk.GLWEDimension != l.GLWEDimension ||
		bsk.PolynomialSize != l.PolynomialSize || bsk.Level != l.PBSLevel || bsk.BaseLog != l.PBSBaseLog {
		return &LayoutError{
			Reason: fmt.Sprintf("key geometry n=%d k=%d N=%d l=%d base=2^%d, image compiled for n=%d k=%d N=%d l=%d base=2^%d",
				bsk.LWEDimension, bsk.GLWEDimension, bsk.PolynomialSize, bsk.Level, bsk.BaseLog,
				l.LWEDimension, l.GLWEDimension, l.PolynomialSize, l.PBSLevel, l.PBSBaseLog),
			Want: l.KeyBufferSize,
			Got:  len(bsk.Data) * 16,
		}
	}
	return nil
}
