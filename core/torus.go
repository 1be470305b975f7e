// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package core

import "math"

// Encode returns the torus encoding of a boolean.
func Encode(b bool) uint32 {
	if b {
		return PlaintextTrue
	}
	return PlaintextFalse
}

// Decode returns true iff the phase lies in [0, 1/2).
func Decode(phase uint32) bool {
	return phase < 1<<31
}

// TorusFromFloat maps a real number to the torus, reducing modulo 1.
func TorusFromFloat(x float64) uint32 {
	x -= math.Floor(x)
	return uint32(int64(math.Round(x * float64(NativeModulus))))
}

// TorusToFloat maps a torus element to its signed representative in [-1/2, 1/2).
func TorusToFloat(x uint32) float64 {
	return float64(int32(x)) / float64(NativeModulus)
}

// roundToTorus converts the result of a floating-point polynomial product
// back to the torus. Values wrap modulo 2^32.
func roundToTorus(x float64) uint32 {
	return uint32(int64(math.Round(x)))
}

// MonomialMul sets dst = X^d * src in Z[X]/(X^N+1) for d in [0, 2N).
// dst and src must not alias.
func MonomialMul(dst, src []uint32, d int) {
	n := len(src)
	d %= 2 * n
	if d < 0 {
		d += 2 * n
	}
	neg := d >= n
	if neg {
		d -= n
	}
	for j := 0; j < d; j++ {
		v := -src[j-d+n]
		if neg {
			v = -v
		}
		dst[j] = v
	}
	for j := d; j < n; j++ {
		v := src[j-d]
		if neg {
			v = -v
		}
		dst[j] = v
	}
}

// MonomialDiv sets dst = X^-d * src for d in [0, 2N).
func MonomialDiv(dst, src []uint32, d int) {
	MonomialMul(dst, src, 2*len(src)-d%(2*len(src)))
}

func addTo(dst, src []uint32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

func subTo(dst, src []uint32) {
	for i := range dst {
		dst[i] -= src[i]
	}
}
