// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import "github.com/luxfi/tfhe/core"

// Ciphertext is an encrypted bit or a trivial (public) one. Trivial
// ciphertexts carry their value in the clear and are combined without
// bootstrapping.
type Ciphertext struct {
	lwe     *core.LWECiphertext
	trivial bool
	value   bool
}

// NewTrivialCiphertext returns a public ciphertext of v.
func NewTrivialCiphertext(v bool) *Ciphertext {
	return &Ciphertext{trivial: true, value: v}
}

// NewCiphertext wraps an LWE ciphertext.
func NewCiphertext(lwe *core.LWECiphertext) *Ciphertext {
	return &Ciphertext{lwe: lwe}
}

// IsTrivial reports whether ct is a public value.
func (ct *Ciphertext) IsTrivial() bool { return ct.trivial }

// TrivialValue returns the value of a trivial ciphertext; ok is false for
// encrypted ones.
func (ct *Ciphertext) TrivialValue() (value, ok bool) {
	return ct.value, ct.trivial
}

// LWE returns the underlying LWE ciphertext, nil when trivial.
func (ct *Ciphertext) LWE() *core.LWECiphertext { return ct.lwe }

// CopyNew returns a deep copy of ct.
func (ct *Ciphertext) CopyNew() *Ciphertext {
	if ct.trivial {
		return NewTrivialCiphertext(ct.value)
	}
	return NewCiphertext(ct.lwe.CopyNew())
}

// not returns the negation of ct. Encrypted values are negated on the
// torus, which maps +1/8 to -1/8 without adding noise.
func not(ct *Ciphertext) *Ciphertext {
	if ct.trivial {
		return NewTrivialCiphertext(!ct.value)
	}
	out := ct.lwe.CopyNew()
	out.NegAssign()
	return NewCiphertext(out)
}
