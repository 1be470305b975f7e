// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package core

import (
	"math"
	"math/cmplx"

	"github.com/luxfi/lattice/v7/utils"
)

// FFT is the negacyclic transform of Z[X]/(X^N+1) onto N/2 complex values.
//
// A real polynomial p is folded into z_j = (p_j + i*p_{j+N/2}) * psi^j with
// psi = exp(i*pi/N) and transformed by a radix-2 FFT of size N/2. Pointwise
// products in this domain are negacyclic products of the polynomials.
//
// An FFT holds only read-only tables and may be shared between goroutines.
type FFT struct {
	n       int
	m       int
	twist   []complex128
	untwist []complex128
	roots   []complex128
	iroots  []complex128
}

// NewFFT precomputes the tables for polynomials of size n (a power of two, n >= 4).
func NewFFT(n int) *FFT {
	m := n >> 1
	f := &FFT{
		n:       n,
		m:       m,
		twist:   make([]complex128, m),
		untwist: make([]complex128, m),
		roots:   make([]complex128, m>>1),
		iroots:  make([]complex128, m>>1),
	}
	for j := 0; j < m; j++ {
		angle := math.Pi * float64(j) / float64(n)
		f.twist[j] = cmplx.Rect(1, angle)
		f.untwist[j] = cmplx.Rect(1/float64(m), -angle)
	}
	for t := 0; t < m>>1; t++ {
		angle := 2 * math.Pi * float64(t) / float64(m)
		f.roots[t] = cmplx.Rect(1, -angle)
		f.iroots[t] = cmplx.Rect(1, angle)
	}
	return f
}

// N returns the polynomial size.
func (f *FFT) N() int { return f.n }

// M returns the number of complex values of a transformed polynomial.
func (f *FFT) M() int { return f.m }

func (f *FFT) transform(a []complex128, roots []complex128) {
	utils.BitReverseInPlaceSlice(a, f.m)
	for size := 2; size <= f.m; size <<= 1 {
		half := size >> 1
		step := f.m / size
		for start := 0; start < f.m; start += size {
			for k := 0; k < half; k++ {
				w := roots[k*step]
				u := a[start+k]
				v := a[start+k+half] * w
				a[start+k] = u + v
				a[start+k+half] = u - v
			}
		}
	}
}

// ForwardTorus transforms a torus polynomial, read as signed int32 coefficients.
func (f *FFT) ForwardTorus(dst []complex128, p []uint32) {
	for j := 0; j < f.m; j++ {
		dst[j] = complex(float64(int32(p[j])), float64(int32(p[j+f.m]))) * f.twist[j]
	}
	f.transform(dst, f.roots)
}

// ForwardInt transforms a polynomial of small signed integers (gadget digits).
func (f *FFT) ForwardInt(dst []complex128, p []int32) {
	for j := 0; j < f.m; j++ {
		dst[j] = complex(float64(p[j]), float64(p[j+f.m])) * f.twist[j]
	}
	f.transform(dst, f.roots)
}

// InverseAddTorus adds the inverse transform of src, rounded to the torus,
// to dst. src is overwritten.
func (f *FFT) InverseAddTorus(dst []uint32, src []complex128) {
	f.transform(src, f.iroots)
	for j := 0; j < f.m; j++ {
		v := src[j] * f.untwist[j]
		dst[j] += roundToTorus(real(v))
		dst[j+f.m] += roundToTorus(imag(v))
	}
}

// InverseTorus sets dst to the inverse transform of src. src is overwritten.
func (f *FFT) InverseTorus(dst []uint32, src []complex128) {
	clear(dst)
	f.InverseAddTorus(dst, src)
}

// MulAdd sets acc += a * b pointwise.
func MulAdd(acc, a, b []complex128) {
	for i := range acc {
		acc[i] += a[i] * b[i]
	}
}
