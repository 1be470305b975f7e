// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package core

// Evaluator performs blind rotations, bootstraps and key switches.
// It owns scratch buffers and is not safe for concurrent use; use
// ShallowCopy to obtain an evaluator for another goroutine.
type Evaluator struct {
	params Parameters
	fft    *FFT
	buffer evaluatorBuffer
}

type evaluatorBuffer struct {
	acc      *GLWECiphertext
	rotated  *GLWECiphertext
	digits   []int32
	decomp   [][]int32
	fDigit   []complex128
	fAcc     [][]complex128
	switched []uint32
}

func newEvaluatorBuffer(params Parameters, fft *FFT) evaluatorBuffer {
	k, n, level := params.GLWEDimension(), params.N(), params.PBSDecomposer().Level
	buf := evaluatorBuffer{
		acc:      NewGLWECiphertext(k, n),
		rotated:  NewGLWECiphertext(k, n),
		digits:   make([]int32, level),
		decomp:   make([][]int32, level),
		fDigit:   make([]complex128, fft.M()),
		fAcc:     make([][]complex128, k+1),
		switched: make([]uint32, params.LWEDimension()),
	}
	for j := range buf.decomp {
		buf.decomp[j] = make([]int32, n)
	}
	for c := range buf.fAcc {
		buf.fAcc[c] = make([]complex128, fft.M())
	}
	return buf
}

// NewEvaluator creates an evaluator for params.
func NewEvaluator(params Parameters) *Evaluator {
	fft := NewFFT(params.N())
	return &Evaluator{
		params: params,
		fft:    fft,
		buffer: newEvaluatorBuffer(params, fft),
	}
}

// ShallowCopy returns an evaluator sharing the read-only FFT tables with
// fresh scratch buffers.
func (e *Evaluator) ShallowCopy() *Evaluator {
	return &Evaluator{
		params: e.params,
		fft:    e.fft,
		buffer: newEvaluatorBuffer(e.params, e.fft),
	}
}

// Parameters returns the evaluator's parameters.
func (e *Evaluator) Parameters() Parameters { return e.params }

// FFT returns the shared transform.
func (e *Evaluator) FFT() *FFT { return e.fft }

// ExternalProductAddAssign sets acc += GGSW_i (x) in, where GGSW_i is the
// i-th entry of bsk.
func (e *Evaluator) ExternalProductAddAssign(bsk *FourierBootstrapKey, i int, in, acc *GLWECiphertext) {
	dec := bsk.Decomposer()
	buf := &e.buffer
	for c := range buf.fAcc {
		clear(buf.fAcc[c])
	}
	for row, poly := range in.Value {
		dec.DecomposePoly(poly, buf.decomp, buf.digits)
		for j := 0; j < dec.Level; j++ {
			e.fft.ForwardInt(buf.fDigit, buf.decomp[j])
			for c := range buf.fAcc {
				MulAdd(buf.fAcc[c], buf.fDigit, bsk.Poly(i, j, row, c))
			}
		}
	}
	for c := range buf.fAcc {
		e.fft.InverseAddTorus(acc.Value[c], buf.fAcc[c])
	}
}

// BlindRotateAssign multiplies the plaintext of acc by X^(Sum_i mask_i*s_i)
// using one CMux per non-zero switched mask element:
// acc += GGSW(s_i) (x) (X^mask_i * acc - acc).
func (e *Evaluator) BlindRotateAssign(acc *GLWECiphertext, mask []uint32, bsk *FourierBootstrapKey) {
	tmp := e.buffer.rotated
	for i, a := range mask {
		if a == 0 {
			continue
		}
		for c := range acc.Value {
			MonomialMul(tmp.Value[c], acc.Value[c], int(a))
			subTo(tmp.Value[c], acc.Value[c])
		}
		e.ExternalProductAddAssign(bsk, i, tmp, acc)
	}
}

// BootstrapAssign evaluates lut on the phase of ct and writes the result,
// under the extracted GLWE key of dimension k*N, into out.
//
// The accumulator starts at X^-b * lut, is blind rotated by the switched
// mask and coefficient 0 is extracted.
func (e *Evaluator) BootstrapAssign(ct *LWECiphertext, lut []uint32, bsk *FourierBootstrapKey, out *LWECiphertext) {
	logN := e.params.LogN()
	acc := e.buffer.acc
	k := acc.GLWEDimension()
	for r := 0; r < k; r++ {
		clear(acc.Value[r])
	}
	MonomialDiv(acc.Value[k], lut, int(ModSwitch(ct.Body, logN)))
	switched := e.buffer.switched[:len(ct.Mask)]
	ModSwitchSlice(switched, ct.Mask, logN)
	e.BlindRotateAssign(acc, switched, bsk)
	SampleExtract(acc, 0, out)
}

// Bootstrap is BootstrapAssign into a newly allocated ciphertext.
func (e *Evaluator) Bootstrap(ct *LWECiphertext, lut []uint32, bsk *FourierBootstrapKey) *LWECiphertext {
	out := NewLWECiphertext(e.params.ExtractedDimension())
	e.BootstrapAssign(ct, lut, bsk, out)
	return out
}

// SignLUT returns the boolean test polynomial: every coefficient is 1/8, so
// bootstrapping yields +1/8 for phases in [0, 1/2) and -1/8 otherwise.
func SignLUT(n int) []uint32 {
	lut := make([]uint32, n)
	for i := range lut {
		lut[i] = PlaintextTrue
	}
	return lut
}
