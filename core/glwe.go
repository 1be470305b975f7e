// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package core

// GLWECiphertext holds k mask polynomials followed by the body polynomial.
type GLWECiphertext struct {
	Value [][]uint32
}

// NewGLWECiphertext allocates a zero GLWE ciphertext.
func NewGLWECiphertext(k, n int) *GLWECiphertext {
	ct := &GLWECiphertext{Value: make([][]uint32, k+1)}
	for i := range ct.Value {
		ct.Value[i] = make([]uint32, n)
	}
	return ct
}

// NewTrivialGLWECiphertext returns the noiseless sample (0, ..., 0, poly).
func NewTrivialGLWECiphertext(k int, poly []uint32) *GLWECiphertext {
	ct := NewGLWECiphertext(k, len(poly))
	copy(ct.Value[k], poly)
	return ct
}

// GLWEDimension returns k.
func (ct *GLWECiphertext) GLWEDimension() int { return len(ct.Value) - 1 }

// N returns the polynomial size.
func (ct *GLWECiphertext) N() int { return len(ct.Value[0]) }

// Body returns the body polynomial.
func (ct *GLWECiphertext) Body() []uint32 { return ct.Value[len(ct.Value)-1] }

// GLWESecretKey is a binary GLWE secret with its FFT form cached.
type GLWESecretKey struct {
	Value   [][]uint32
	fourier [][]complex128
}

// GenGLWESecretKey samples k binary polynomials of size fft.N().
func GenGLWESecretKey(s *Sampler, k int, fft *FFT) *GLWESecretKey {
	sk := &GLWESecretKey{
		Value:   make([][]uint32, k),
		fourier: make([][]complex128, k),
	}
	for r := range sk.Value {
		sk.Value[r] = make([]uint32, fft.N())
		s.Binary(sk.Value[r])
		sk.fourier[r] = make([]complex128, fft.M())
		fft.ForwardTorus(sk.fourier[r], sk.Value[r])
	}
	return sk
}

// NewGLWESecretKey wraps existing binary polynomials.
func NewGLWESecretKey(value [][]uint32, fft *FFT) *GLWESecretKey {
	sk := &GLWESecretKey{Value: value, fourier: make([][]complex128, len(value))}
	for r := range value {
		sk.fourier[r] = make([]complex128, fft.M())
		fft.ForwardTorus(sk.fourier[r], value[r])
	}
	return sk
}

// GLWEDimension returns k.
func (sk *GLWESecretKey) GLWEDimension() int { return len(sk.Value) }

// LWEKey returns the flattened key of dimension k*N under which sample
// extracted ciphertexts decrypt.
func (sk *GLWESecretKey) LWEKey() *LWESecretKey {
	n := len(sk.Value[0])
	out := &LWESecretKey{Value: make([]uint32, 0, len(sk.Value)*n)}
	for _, p := range sk.Value {
		out.Value = append(out.Value, p...)
	}
	return out
}

// EncryptZeroInto writes a fresh encryption of zero into ct:
// uniform masks A_r and body Sum_r A_r*S_r + E.
func (sk *GLWESecretKey) EncryptZeroInto(s *Sampler, stddev float64, fft *FFT, ct *GLWECiphertext) {
	k := sk.GLWEDimension()
	body := ct.Value[k]
	clear(body)
	acc := make([]complex128, fft.M())
	buf := make([]complex128, fft.M())
	for r := 0; r < k; r++ {
		s.Uniform(ct.Value[r])
		fft.ForwardTorus(buf, ct.Value[r])
		MulAdd(acc, buf, sk.fourier[r])
	}
	fft.InverseAddTorus(body, acc)
	s.AddGaussian(body, stddev)
}

// Phase returns B - Sum_r A_r*S_r.
func (sk *GLWESecretKey) Phase(ct *GLWECiphertext, fft *FFT) []uint32 {
	k := sk.GLWEDimension()
	acc := make([]complex128, fft.M())
	buf := make([]complex128, fft.M())
	for r := 0; r < k; r++ {
		fft.ForwardTorus(buf, ct.Value[r])
		MulAdd(acc, buf, sk.fourier[r])
	}
	prod := make([]uint32, fft.N())
	fft.InverseTorus(prod, acc)
	phase := append([]uint32(nil), ct.Value[k]...)
	subTo(phase, prod)
	return phase
}
