// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package core

// Decomposer is a signed gadget decomposition with Level digits in base
// 2^BaseLog. Level index 0 is the least significant digit; its gadget factor
// is 2^(32 - BaseLog*Level).
type Decomposer struct {
	BaseLog int
	Level   int
}

// Factor returns the gadget factor of the given level.
func (d Decomposer) Factor(level int) uint32 {
	return 1 << (32 - d.BaseLog*(d.Level-level))
}

// round keeps the BaseLog*Level most significant bits of x, rounded to nearest.
func (d Decomposer) round(x uint32) uint32 {
	shift := 32 - d.BaseLog*d.Level
	if shift == 0 {
		return x
	}
	return x>>shift + (x>>(shift-1))&1
}

// Decompose writes the signed digits of x into out[:Level], each in
// [-2^(BaseLog-1), 2^(BaseLog-1)]. Sum_j out[j]*Factor(j) equals x rounded
// to the gadget precision, modulo 2^32.
func (d Decomposer) Decompose(x uint32, out []int32) {
	state := d.round(x)
	mask := uint32(1)<<d.BaseLog - 1
	for j := 0; j < d.Level; j++ {
		digit := state & mask
		state >>= d.BaseLog
		carry := ((digit - 1) | state) & digit
		carry >>= d.BaseLog - 1
		state += carry
		out[j] = int32(digit) - int32(carry<<d.BaseLog)
	}
}

// DecomposePoly decomposes every coefficient of p; out[j] receives the
// level-j digit polynomial.
func (d Decomposer) DecomposePoly(p []uint32, out [][]int32, digits []int32) {
	for i, x := range p {
		d.Decompose(x, digits)
		for j := 0; j < d.Level; j++ {
			out[j][i] = digits[j]
		}
	}
}

// Recompose returns Sum_j digits[j]*Factor(j) modulo 2^32.
func (d Decomposer) Recompose(digits []int32) (x uint32) {
	for j := 0; j < d.Level; j++ {
		x += uint32(digits[j]) * d.Factor(j)
	}
	return
}
