// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package core

// ModSwitch maps a torus element onto Z_2N, N = 2^logN, as
// round(x * 2N / 2^32) mod 2N. One extra bit is kept and added back before
// the final shift, so exact halves round up.
func ModSwitch(x uint32, logN int) uint32 {
	log2N := logN + 1
	out := x >> (32 - log2N - 1)
	out += out & 1
	out >>= 1
	return out & (1<<log2N - 1)
}

// ModSwitchSlice applies ModSwitch to every element of src.
func ModSwitchSlice(dst, src []uint32, logN int) {
	for i, x := range src {
		dst[i] = ModSwitch(x, logN)
	}
}
