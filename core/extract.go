// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package core

import "math"

// SampleExtract writes into out (dimension k*N) the LWE encryption of
// coefficient nth (< N) of the plaintext of ct.
func SampleExtract(ct *GLWECiphertext, nth int, out *LWECiphertext) {
	k, n := ct.GLWEDimension(), ct.N()
	for r := 0; r < k; r++ {
		a := ct.Value[r]
		mask := out.Mask[r*n : (r+1)*n]
		for i := 0; i <= nth; i++ {
			mask[i] = a[nth-i]
		}
		for i := nth + 1; i < n; i++ {
			mask[i] = -a[n+nth-i]
		}
	}
	out.Body = ct.Value[k][nth]
	out.Modulus = NativeModulus
}

// SampleExtractRotated extracts from an accumulator that was blind rotated
// without the body term, at the switched body nth in [0, 2N).
//
// The body is the coefficient nth mod N, taken as value when nth < N and as
// MaxUint32 - value otherwise. Each mask polynomial is reversed and then
// multiplied by X^(nth+N+1). The result decrypts as the standard extraction
// of X^-nth * ct, up to one torus unit in the upper half.
func SampleExtractRotated(ct *GLWECiphertext, nth int, out *LWECiphertext) {
	k, n := ct.GLWEDimension(), ct.N()
	nth %= 2 * n
	body := ct.Value[k][nth%n]
	if nth < n {
		out.Body = body
	} else {
		out.Body = math.MaxUint32 - body
	}
	rev := make([]uint32, n)
	for r := 0; r < k; r++ {
		a := ct.Value[r]
		for i := range rev {
			rev[i] = a[n-1-i]
		}
		MonomialMul(out.Mask[r*n:(r+1)*n], rev, nth+n+1)
	}
	out.Modulus = NativeModulus
}
