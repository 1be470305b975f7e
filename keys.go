// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import (
	"fmt"

	"github.com/luxfi/tfhe/core"
)

// ClientKey holds the secret keys. It encrypts and decrypts bits and
// derives the ServerKey. A ClientKey is not safe for concurrent use.
type ClientKey struct {
	params    Parameters
	lweKey    *core.LWESecretKey
	glweKey   *core.GLWESecretKey
	extracted *core.LWESecretKey
	sampler   *core.Sampler
}

// NewClientKey samples fresh secret keys.
func NewClientKey(params Parameters) (*ClientKey, error) {
	s, err := core.NewRandomSampler()
	if err != nil {
		return nil, fmt.Errorf("client key: %w", err)
	}
	return newClientKey(params, s), nil
}

// NewClientKeyFromSeed derives the secret keys, and every later
// encryption, from seed. Equal seeds give equal keys.
func NewClientKeyFromSeed(params Parameters, seed []byte) (*ClientKey, error) {
	s, err := core.NewSampler(seed)
	if err != nil {
		return nil, fmt.Errorf("client key: %w", err)
	}
	return newClientKey(params, s), nil
}

func newClientKey(params Parameters, s *core.Sampler) *ClientKey {
	fft := core.NewFFT(params.N())
	ck := &ClientKey{
		params:  params,
		lweKey:  core.GenLWESecretKey(s, params.LWEDimension()),
		glweKey: core.GenGLWESecretKey(s, params.GLWEDimension(), fft),
		sampler: s,
	}
	ck.extracted = ck.glweKey.LWEKey()
	return ck
}

// Parameters returns the key's parameters.
func (ck *ClientKey) Parameters() Parameters { return ck.params }

// Encrypt returns a fresh encryption of v.
func (ck *ClientKey) Encrypt(v bool) *Ciphertext {
	return NewCiphertext(ck.lweKey.Encrypt(ck.sampler, core.Encode(v), ck.params.LWEStdDev()))
}

// EncryptSlice encrypts every value of vs.
func (ck *ClientKey) EncryptSlice(vs []bool) []*Ciphertext {
	cts := make([]*Ciphertext, len(vs))
	for i, v := range vs {
		cts[i] = ck.Encrypt(v)
	}
	return cts
}

// Decrypt returns the bit of ct. Ciphertexts that were not key switched
// decrypt under the extracted GLWE key. Decrypt panics on any other
// dimension.
func (ck *ClientKey) Decrypt(ct *Ciphertext) bool {
	if ct.trivial {
		return ct.value
	}
	return core.Decode(ck.phase(ct.lwe))
}

// DecryptSlice decrypts every ciphertext of cts.
func (ck *ClientKey) DecryptSlice(cts []*Ciphertext) []bool {
	vs := make([]bool, len(cts))
	for i, ct := range cts {
		vs[i] = ck.Decrypt(ct)
	}
	return vs
}

// NoiseOf returns the signed phase error of ct relative to the encoding of
// want, as a fraction of the torus.
func (ck *ClientKey) NoiseOf(ct *Ciphertext, want bool) float64 {
	if ct.trivial {
		return 0
	}
	return core.PhaseError(ck.phase(ct.lwe), want)
}

func (ck *ClientKey) phase(ct *core.LWECiphertext) uint32 {
	switch ct.Dimension() {
	case ck.lweKey.Dimension():
		return ck.lweKey.Phase(ct)
	case ck.extracted.Dimension():
		return ck.extracted.Phase(ct)
	}
	panic(fmt.Sprintf("tfhe: cannot decrypt a ciphertext of dimension %d", ct.Dimension()))
}

// NewServerKey generates the bootstrapping key (LWE key bits under the GLWE
// key) and the key switching key (extracted key back to the LWE key).
func (ck *ClientKey) NewServerKey() *ServerKey {
	fft := core.NewFFT(ck.params.N())
	return &ServerKey{
		params:       ck.params,
		BootstrapKey: core.GenBootstrapKey(ck.sampler, ck.params, ck.lweKey, ck.glweKey, fft),
		KeySwitchKey: core.GenKeySwitchKey(ck.sampler, ck.params, ck.extracted, ck.lweKey),
	}
}

// ServerKey is the public evaluation material. It is never mutated after
// generation and may be shared by several engines.
type ServerKey struct {
	params       Parameters
	BootstrapKey *core.FourierBootstrapKey
	KeySwitchKey *core.KeySwitchKey
}

// Parameters returns the key's parameters.
func (sk *ServerKey) Parameters() Parameters { return sk.params }

// TrivialEncrypt returns a public ciphertext of v.
func (sk *ServerKey) TrivialEncrypt(v bool) *Ciphertext {
	return NewTrivialCiphertext(v)
}
