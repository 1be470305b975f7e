// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package core

// KeySwitchKey switches ciphertexts from an input key of dimension
// InputDimension to an LWE key of dimension OutputDimension. Row (i, j)
// encrypts s_in[i]*g_j under the output key.
type KeySwitchKey struct {
	InputDimension  int
	OutputDimension int
	BaseLog         int
	Level           int
	// Data stores rows of OutputDimension mask words followed by the body.
	Data []uint32
}

// NewKeySwitchKey allocates a zero key.
func NewKeySwitchKey(in, out, baseLog, level int) *KeySwitchKey {
	return &KeySwitchKey{
		InputDimension:  in,
		OutputDimension: out,
		BaseLog:         baseLog,
		Level:           level,
		Data:            make([]uint32, in*level*(out+1)),
	}
}

// Row returns row (i, level) as mask words followed by the body.
func (ksk *KeySwitchKey) Row(i, level int) []uint32 {
	w := ksk.OutputDimension + 1
	off := (i*ksk.Level + level) * w
	return ksk.Data[off : off+w]
}

// Decomposer returns the gadget the key was generated with.
func (ksk *KeySwitchKey) Decomposer() Decomposer {
	return Decomposer{BaseLog: ksk.BaseLog, Level: ksk.Level}
}

// GenKeySwitchKey generates the key switching key from inKey to outKey.
func GenKeySwitchKey(s *Sampler, params Parameters, inKey, outKey *LWESecretKey) *KeySwitchKey {
	dec := params.KSDecomposer()
	n := outKey.Dimension()
	ksk := NewKeySwitchKey(inKey.Dimension(), n, dec.BaseLog, dec.Level)
	ct := NewLWECiphertext(n)
	for i, bit := range inKey.Value {
		for j := 0; j < dec.Level; j++ {
			outKey.EncryptInto(s, bit*dec.Factor(j), params.LWEStdDev(), ct)
			row := ksk.Row(i, j)
			copy(row, ct.Mask)
			row[n] = ct.Body
		}
	}
	return ksk
}

// KeySwitch sets out = (0, b) - Sum_{i,j} dec_j(a_i) * ksk[i][j].
func KeySwitch(ksk *KeySwitchKey, in, out *LWECiphertext) {
	dec := ksk.Decomposer()
	digits := make([]int32, dec.Level)
	n := ksk.OutputDimension
	clear(out.Mask)
	out.Body = in.Body
	for i, a := range in.Mask {
		dec.Decompose(a, digits)
		for j, d := range digits {
			if d == 0 {
				continue
			}
			w := uint32(d)
			row := ksk.Row(i, j)
			for t := 0; t < n; t++ {
				out.Mask[t] -= w * row[t]
			}
			out.Body -= w * row[n]
		}
	}
	out.Modulus = NativeModulus
}
