// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package tfhe evaluates boolean gates over LWE ciphertexts on the 2^32
// torus, refreshing noise with a programmable bootstrap after every gate.
//
// Bootstrapping runs either in software or, batched by the packing factor,
// on an accelerator (see package accel). The Engine selects the backend at
// runtime; both produce ciphertexts that decrypt identically.
package tfhe

import (
	"fmt"

	"github.com/luxfi/tfhe/core"
)

// Parameters is a validated boolean parameter set.
type Parameters = core.Parameters

// ParametersLiteral is a user-friendly parameter specification
type ParametersLiteral = core.ParametersLiteral

// Standard parameter sets
var (
	// DefaultParameters matches the accelerator image (accel.DefaultLayout).
	DefaultParameters = core.DefaultParameters
	// ToyParameters is INSECURE and meant for tests and the emulator.
	ToyParameters = core.ToyParameters
)

// NewParametersFromLiteral creates Parameters from a literal specification
func NewParametersFromLiteral(lit ParametersLiteral) (Parameters, error) {
	return core.NewParametersFromLiteral(lit)
}

// MustParameters is NewParametersFromLiteral that panics on invalid input.
func MustParameters(lit ParametersLiteral) Parameters {
	return core.MustParameters(lit)
}

// ParametersByName resolves the parameter set names accepted by the
// commands: "default" and "toy".
func ParametersByName(name string) (Parameters, error) {
	switch name {
	case "default":
		return NewParametersFromLiteral(DefaultParameters)
	case "toy":
		return NewParametersFromLiteral(ToyParameters)
	}
	return Parameters{}, fmt.Errorf("unknown parameter set %q (want default or toy)", name)
}
