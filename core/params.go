// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package core implements the torus (2^32) TFHE primitives behind the boolean
// gate engine: LWE and GLWE ciphertexts, the negacyclic FFT, gadget
// decomposition, blind rotation, sample extraction, key switching and
// modulus switching.
package core

import "fmt"

// NativeModulus is the working ciphertext modulus (the uint32 torus).
const NativeModulus uint64 = 1 << 32

// Boolean encodings on the torus.
const (
	// PlaintextTrue encodes true as +1/8.
	PlaintextTrue uint32 = 1 << 29
	// PlaintextFalse encodes false as -1/8.
	PlaintextFalse uint32 = 0xE0000000
	// Quarter is 1/4 on the torus.
	Quarter uint32 = 1 << 30
)

// ParametersLiteral is a user-friendly parameter specification
type ParametersLiteral struct {
	// LWEDimension is the dimension n of gate inputs and outputs
	LWEDimension int
	// GLWEDimension is the number k of mask polynomials of the accumulator
	GLWEDimension int
	// LogN is log2 of the accumulator polynomial size
	LogN int
	// LWEStdDev is the torus noise of LWE samples (and key switching keys)
	LWEStdDev float64
	// GLWEStdDev is the torus noise of the bootstrapping key
	GLWEStdDev float64
	// PBSBaseLog and PBSLevel define the bootstrapping gadget
	PBSBaseLog int
	PBSLevel   int
	// KSBaseLog and KSLevel define the key switching gadget
	KSBaseLog int
	KSLevel   int
}

// Standard parameter sets
var (
	// DefaultParameters is the classic boolean parameter set
	// (n=722, k=2, N=512). The accelerator image is compiled for it.
	DefaultParameters = ParametersLiteral{
		LWEDimension:  722,
		GLWEDimension: 2,
		LogN:          9,
		LWEStdDev:     0.000013071021089943935,
		GLWEStdDev:    0.00000004990272175010415,
		PBSBaseLog:    6,
		PBSLevel:      3,
		KSBaseLog:     3,
		KSLevel:       4,
	}

	// ToyParameters is INSECURE. It keeps every bootstrap in the millisecond
	// range for tests and the emulated accelerator.
	ToyParameters = ParametersLiteral{
		LWEDimension:  32,
		GLWEDimension: 1,
		LogN:          8,
		LWEStdDev:     0.0000000298023223876953125,    // 2^-25
		GLWEStdDev:    0.000000000931322574615478515625, // 2^-30
		PBSBaseLog:    8,
		PBSLevel:      2,
		KSBaseLog:     4,
		KSLevel:       4,
	}
)

// Parameters is a validated boolean TFHE parameter set. It is comparable
// with ==, which is how keys and accelerator layouts are matched.
type Parameters struct {
	lit ParametersLiteral
}

// NewParametersFromLiteral creates Parameters from a literal specification
func NewParametersFromLiteral(lit ParametersLiteral) (params Parameters, err error) {
	switch {
	case lit.LWEDimension <= 0:
		return params, fmt.Errorf("invalid LWE dimension %d", lit.LWEDimension)
	case lit.GLWEDimension <= 0:
		return params, fmt.Errorf("invalid GLWE dimension %d", lit.GLWEDimension)
	case lit.LogN < 2 || lit.LogN > 16:
		return params, fmt.Errorf("invalid LogN %d: must be in [2, 16]", lit.LogN)
	case lit.LWEStdDev < 0 || lit.GLWEStdDev < 0:
		return params, fmt.Errorf("negative noise standard deviation")
	}
	if err = checkGadget("PBS", lit.PBSBaseLog, lit.PBSLevel); err != nil {
		return
	}
	if err = checkGadget("KS", lit.KSBaseLog, lit.KSLevel); err != nil {
		return
	}
	return Parameters{lit: lit}, nil
}

func checkGadget(name string, baseLog, level int) error {
	if baseLog <= 0 || level <= 0 || baseLog*level > 32 {
		return fmt.Errorf("invalid %s gadget: base 2^%d with %d levels", name, baseLog, level)
	}
	return nil
}

// MustParameters is NewParametersFromLiteral for literals known to be valid.
func MustParameters(lit ParametersLiteral) Parameters {
	p, err := NewParametersFromLiteral(lit)
	if err != nil {
		panic(err)
	}
	return p
}

// Literal returns the literal the parameters were built from.
func (p Parameters) Literal() ParametersLiteral { return p.lit }

// LWEDimension returns n.
func (p Parameters) LWEDimension() int { return p.lit.LWEDimension }

// GLWEDimension returns k.
func (p Parameters) GLWEDimension() int { return p.lit.GLWEDimension }

// N returns the polynomial size.
func (p Parameters) N() int { return 1 << p.lit.LogN }

// LogN returns log2 of the polynomial size.
func (p Parameters) LogN() int { return p.lit.LogN }

// ExtractedDimension returns k*N, the dimension of sample-extracted ciphertexts.
func (p Parameters) ExtractedDimension() int { return p.lit.GLWEDimension << p.lit.LogN }

// LWEStdDev returns the LWE noise standard deviation.
func (p Parameters) LWEStdDev() float64 { return p.lit.LWEStdDev }

// GLWEStdDev returns the GLWE noise standard deviation.
func (p Parameters) GLWEStdDev() float64 { return p.lit.GLWEStdDev }

// PBSDecomposer returns the bootstrapping gadget.
func (p Parameters) PBSDecomposer() Decomposer {
	return Decomposer{BaseLog: p.lit.PBSBaseLog, Level: p.lit.PBSLevel}
}

// KSDecomposer returns the key switching gadget.
func (p Parameters) KSDecomposer() Decomposer {
	return Decomposer{BaseLog: p.lit.KSBaseLog, Level: p.lit.KSLevel}
}

// String implements fmt.Stringer.
func (p Parameters) String() string {
	return fmt.Sprintf("n=%d k=%d N=%d pbs=2^%dx%d ks=2^%dx%d",
		p.lit.LWEDimension, p.lit.GLWEDimension, p.N(),
		p.lit.PBSBaseLog, p.lit.PBSLevel, p.lit.KSBaseLog, p.lit.KSLevel)
}
