// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package core

import "errors"

// ErrModulusMismatch is returned when a ciphertext does not live on the
// native 2^32 torus.
var ErrModulusMismatch = errors.New("ciphertext modulus is not the native torus")

// LWECiphertext is an LWE sample (a, b) with b = <a, s> + m + e.
type LWECiphertext struct {
	Mask    []uint32
	Body    uint32
	Modulus uint64
}

// NewLWECiphertext allocates a zero ciphertext of dimension n.
func NewLWECiphertext(n int) *LWECiphertext {
	return &LWECiphertext{Mask: make([]uint32, n), Modulus: NativeModulus}
}

// NewTrivialLWECiphertext returns the noiseless sample (0, mu).
func NewTrivialLWECiphertext(n int, mu uint32) *LWECiphertext {
	ct := NewLWECiphertext(n)
	ct.Body = mu
	return ct
}

// Dimension returns the mask length.
func (ct *LWECiphertext) Dimension() int { return len(ct.Mask) }

// CheckModulus returns ErrModulusMismatch unless ct is on the native torus.
func (ct *LWECiphertext) CheckModulus() error {
	if ct.Modulus != NativeModulus {
		return ErrModulusMismatch
	}
	return nil
}

// CopyNew returns a deep copy of ct.
func (ct *LWECiphertext) CopyNew() *LWECiphertext {
	return &LWECiphertext{
		Mask:    append([]uint32(nil), ct.Mask...),
		Body:    ct.Body,
		Modulus: ct.Modulus,
	}
}

// AddAssign sets ct += other.
func (ct *LWECiphertext) AddAssign(other *LWECiphertext) {
	addTo(ct.Mask, other.Mask)
	ct.Body += other.Body
}

// SubAssign sets ct -= other.
func (ct *LWECiphertext) SubAssign(other *LWECiphertext) {
	subTo(ct.Mask, other.Mask)
	ct.Body -= other.Body
}

// NegAssign sets ct = -ct.
func (ct *LWECiphertext) NegAssign() {
	for i := range ct.Mask {
		ct.Mask[i] = -ct.Mask[i]
	}
	ct.Body = -ct.Body
}

// ScalarMulAssign sets ct *= c.
func (ct *LWECiphertext) ScalarMulAssign(c int32) {
	w := uint32(c)
	for i := range ct.Mask {
		ct.Mask[i] *= w
	}
	ct.Body *= w
}

// AddPlaintextAssign adds a torus constant to the body.
func (ct *LWECiphertext) AddPlaintextAssign(mu uint32) {
	ct.Body += mu
}

// LWESecretKey is a binary LWE secret.
type LWESecretKey struct {
	Value []uint32
}

// GenLWESecretKey samples a uniform binary key of dimension n.
func GenLWESecretKey(s *Sampler, n int) *LWESecretKey {
	sk := &LWESecretKey{Value: make([]uint32, n)}
	s.Binary(sk.Value)
	return sk
}

// Dimension returns the key length.
func (sk *LWESecretKey) Dimension() int { return len(sk.Value) }

// EncryptInto encrypts mu into ct with Gaussian noise of the given deviation.
func (sk *LWESecretKey) EncryptInto(s *Sampler, mu uint32, stddev float64, ct *LWECiphertext) {
	s.Uniform(ct.Mask)
	ct.Body = mu + s.Gaussian(stddev)
	for i, a := range ct.Mask {
		ct.Body += a * sk.Value[i]
	}
	ct.Modulus = NativeModulus
}

// Encrypt returns a fresh encryption of mu.
func (sk *LWESecretKey) Encrypt(s *Sampler, mu uint32, stddev float64) *LWECiphertext {
	ct := NewLWECiphertext(sk.Dimension())
	sk.EncryptInto(s, mu, stddev, ct)
	return ct
}

// Phase returns b - <a, s>.
func (sk *LWESecretKey) Phase(ct *LWECiphertext) uint32 {
	phase := ct.Body
	for i, a := range ct.Mask {
		phase -= a * sk.Value[i]
	}
	return phase
}
