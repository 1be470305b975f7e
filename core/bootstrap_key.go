// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package core

// FourierBootstrapKey holds one GGSW encryption per LWE key bit, in the FFT
// domain. Data is indexed by (lwe index i, level, row, column, coefficient)
// with coefficients in [0, N/2). Level 0 is the least significant gadget
// level. The key is immutable once generated.
type FourierBootstrapKey struct {
	LWEDimension   int
	GLWEDimension  int
	PolynomialSize int
	BaseLog        int
	Level          int
	Data           []complex128
}

// NewFourierBootstrapKey allocates a zero key of the given geometry.
func NewFourierBootstrapKey(lweDim, glweDim, polySize, baseLog, level int) *FourierBootstrapKey {
	k1 := glweDim + 1
	return &FourierBootstrapKey{
		LWEDimension:   lweDim,
		GLWEDimension:  glweDim,
		PolynomialSize: polySize,
		BaseLog:        baseLog,
		Level:          level,
		Data:           make([]complex128, lweDim*level*k1*k1*polySize/2),
	}
}

// Index returns the offset of the first coefficient of the given polynomial.
func (bsk *FourierBootstrapKey) Index(i, level, row, col int) int {
	k1 := bsk.GLWEDimension + 1
	return (((i*bsk.Level+level)*k1+row)*k1 + col) * (bsk.PolynomialSize / 2)
}

// Poly returns the FFT polynomial (i, level, row, col).
func (bsk *FourierBootstrapKey) Poly(i, level, row, col int) []complex128 {
	off := bsk.Index(i, level, row, col)
	return bsk.Data[off : off+bsk.PolynomialSize/2]
}

// Decomposer returns the gadget the key was generated with.
func (bsk *FourierBootstrapKey) Decomposer() Decomposer {
	return Decomposer{BaseLog: bsk.BaseLog, Level: bsk.Level}
}

// GenBootstrapKey encrypts every bit of lweKey as a GGSW ciphertext under
// glweKey and stores it in the FFT domain.
//
// Row r < k of level j adds s_i*g_j to mask polynomial r; row k adds it to
// the body.
func GenBootstrapKey(s *Sampler, params Parameters, lweKey *LWESecretKey, glweKey *GLWESecretKey, fft *FFT) *FourierBootstrapKey {
	k, n := params.GLWEDimension(), params.N()
	dec := params.PBSDecomposer()
	bsk := NewFourierBootstrapKey(params.LWEDimension(), k, n, dec.BaseLog, dec.Level)
	ct := NewGLWECiphertext(k, n)
	for i, bit := range lweKey.Value {
		for j := 0; j < dec.Level; j++ {
			factor := dec.Factor(j)
			for row := 0; row <= k; row++ {
				glweKey.EncryptZeroInto(s, params.GLWEStdDev(), fft, ct)
				ct.Value[row][0] += bit * factor
				for col := 0; col <= k; col++ {
					fft.ForwardTorus(bsk.Poly(i, j, row, col), ct.Value[col])
				}
			}
		}
	}
	return bsk
}
