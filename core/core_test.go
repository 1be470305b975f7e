// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package core

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newTestSampler(t testing.TB) *Sampler {
	t.Helper()
	s, err := NewSampler([]byte("core test seed"))
	require.NoError(t, err)
	return s
}

// negacyclic schoolbook product of integer-valued polynomials modulo 2^32.
func schoolbook(a []int32, b []uint32) []uint32 {
	n := len(a)
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			p := uint32(a[i]) * b[j]
			if i+j < n {
				out[i+j] += p
			} else {
				out[i+j-n] -= p
			}
		}
	}
	return out
}

func neg(x uint32) uint32 { return -x }

func requireTorusClose(t *testing.T, want, got []uint32, tol int32) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		d := int32(got[i] - want[i])
		if d < -tol || d > tol {
			t.Fatalf("coefficient %d: want %d got %d (diff %d)", i, want[i], got[i], d)
		}
	}
}

func TestParameters(t *testing.T) {
	p := MustParameters(DefaultParameters)
	require.Equal(t, 512, p.N())
	require.Equal(t, 1024, p.ExtractedDimension())
	require.Equal(t, MustParameters(DefaultParameters), p)
	require.NotEqual(t, MustParameters(ToyParameters), p)

	for name, mutate := range map[string]func(*ParametersLiteral){
		"zero n":       func(l *ParametersLiteral) { l.LWEDimension = 0 },
		"small N":      func(l *ParametersLiteral) { l.LogN = 1 },
		"wide gadget":  func(l *ParametersLiteral) { l.PBSBaseLog, l.PBSLevel = 10, 4 },
		"no ks levels": func(l *ParametersLiteral) { l.KSLevel = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			lit := ToyParameters
			mutate(&lit)
			_, err := NewParametersFromLiteral(lit)
			require.Error(t, err)
		})
	}
}

func TestFFTNegacyclicProduct(t *testing.T) {
	s := newTestSampler(t)
	for _, n := range []int{4, 16, 256, 512} {
		fft := NewFFT(n)
		b := make([]uint32, n)
		s.Uniform(b)

		t.Run("binary", func(t *testing.T) {
			a := make([]int32, n)
			for i := range a {
				a[i] = int32(s.Bit())
			}
			fa, fb := make([]complex128, fft.M()), make([]complex128, fft.M())
			fft.ForwardInt(fa, a)
			fft.ForwardTorus(fb, b)
			acc := make([]complex128, fft.M())
			MulAdd(acc, fa, fb)
			got := make([]uint32, n)
			fft.InverseTorus(got, acc)
			requireTorusClose(t, schoolbook(a, b), got, 1)
		})

		t.Run("digits", func(t *testing.T) {
			a := make([]int32, n)
			for i := range a {
				a[i] = int32(s.Uint32()%256) - 128
			}
			fa, fb := make([]complex128, fft.M()), make([]complex128, fft.M())
			fft.ForwardInt(fa, a)
			fft.ForwardTorus(fb, b)
			acc := make([]complex128, fft.M())
			MulAdd(acc, fa, fb)
			got := make([]uint32, n)
			fft.InverseTorus(got, acc)
			requireTorusClose(t, schoolbook(a, b), got, 1<<10)
		})
	}
}

func TestFFTRoundTrip(t *testing.T) {
	s := newTestSampler(t)
	fft := NewFFT(64)
	p := make([]uint32, 64)
	s.Uniform(p)
	f := make([]complex128, fft.M())
	fft.ForwardTorus(f, p)
	got := make([]uint32, 64)
	fft.InverseTorus(got, f)
	if diff := cmp.Diff(p, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecompose(t *testing.T) {
	s := newTestSampler(t)
	for _, dec := range []Decomposer{{6, 3}, {8, 2}, {3, 4}, {4, 4}, {1, 32}, {8, 4}} {
		digits := make([]int32, dec.Level)
		half := int32(1) << (dec.BaseLog - 1)
		for trial := 0; trial < 2000; trial++ {
			x := s.Uint32()
			dec.Decompose(x, digits)
			for _, d := range digits {
				require.LessOrEqual(t, d, half)
				require.GreaterOrEqual(t, d, -half)
			}
			// Recomposition equals x rounded to the gadget precision.
			shift := 32 - dec.BaseLog*dec.Level
			want := x
			if shift > 0 {
				want = (x>>shift + (x>>(shift-1))&1) << shift
			}
			require.Equal(t, want, dec.Recompose(digits), "x=%#x dec=%+v", x, dec)
		}
	}
}

func TestDecomposeFactors(t *testing.T) {
	dec := Decomposer{BaseLog: 6, Level: 3}
	require.Equal(t, uint32(1<<14), dec.Factor(0))
	require.Equal(t, uint32(1<<20), dec.Factor(1))
	require.Equal(t, uint32(1<<26), dec.Factor(2))
}

func TestModSwitch(t *testing.T) {
	const logN = 8 // 2N = 512, one step is 2^23
	const half = 1 << 22
	tests := []struct {
		name string
		x    uint32
		want uint32
	}{
		{"zero", 0, 0},
		{"below half", half - 1, 0},
		{"exact half rounds up", half, 1},
		{"one step", 2 * half, 1},
		{"one and a half rounds up", 3 * half, 2},
		{"two and a half rounds up", 5 * half, 3},
		{"top half wraps", math.MaxUint32 - half + 1, 0},
		{"max", math.MaxUint32, 0},
		{"just below wrap", math.MaxUint32 - 3*half + 1, 511},
		{"quarter", 1 << 30, 128},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ModSwitch(tc.x, logN))
			require.Equal(t, ModSwitch(tc.x, logN), ModSwitch(tc.x, logN))
		})
	}
}

func TestMonomialMul(t *testing.T) {
	src := []uint32{1, 2, 3, 4}
	got := make([]uint32, 4)
	MonomialMul(got, src, 1)
	require.Equal(t, []uint32{neg(4), 1, 2, 3}, got)
	MonomialMul(got, src, 4)
	require.Equal(t, []uint32{neg(1), neg(2), neg(3), neg(4)}, got)
	MonomialMul(got, src, 8)
	require.Equal(t, src, got)

	back := make([]uint32, 4)
	for d := 0; d < 8; d++ {
		MonomialMul(got, src, d)
		MonomialDiv(back, got, d)
		require.Equal(t, src, back, "d=%d", d)
	}
}

func TestLWEEncryptDecrypt(t *testing.T) {
	s := newTestSampler(t)
	params := MustParameters(ToyParameters)
	sk := GenLWESecretKey(s, params.LWEDimension())
	for _, b := range []bool{true, false} {
		for i := 0; i < 50; i++ {
			ct := sk.Encrypt(s, Encode(b), params.LWEStdDev())
			require.NoError(t, ct.CheckModulus())
			require.Equal(t, b, Decode(sk.Phase(ct)))
			require.Less(t, math.Abs(PhaseError(sk.Phase(ct), b)), 1.0/64)
		}
	}

	ct := sk.Encrypt(s, Encode(true), 0)
	ct.Modulus = 1 << 31
	require.ErrorIs(t, ct.CheckModulus(), ErrModulusMismatch)
}

func TestSampleExtractRotated(t *testing.T) {
	s := newTestSampler(t)
	const k, n = 2, 16
	ct := NewGLWECiphertext(k, n)
	for _, p := range ct.Value {
		s.Uniform(p)
	}
	divided := NewGLWECiphertext(k, n)
	want := NewLWECiphertext(k * n)
	got := NewLWECiphertext(k * n)
	for nth := 0; nth < 2*n; nth++ {
		for c := range ct.Value {
			MonomialDiv(divided.Value[c], ct.Value[c], nth)
		}
		SampleExtract(divided, 0, want)
		SampleExtractRotated(ct, nth, got)
		require.Equal(t, want.Mask, got.Mask, "nth=%d", nth)
		if nth < n {
			require.Equal(t, want.Body, got.Body, "nth=%d", nth)
		} else {
			require.Equal(t, want.Body-1, got.Body, "nth=%d", nth)
		}
	}
}

func TestSampleExtractDecrypts(t *testing.T) {
	s := newTestSampler(t)
	params := MustParameters(ToyParameters)
	fft := NewFFT(params.N())
	glweKey := GenGLWESecretKey(s, params.GLWEDimension(), fft)
	ct := NewGLWECiphertext(params.GLWEDimension(), params.N())
	glweKey.EncryptZeroInto(s, params.GLWEStdDev(), fft, ct)
	msg := make([]uint32, params.N())
	s.Uniform(msg)
	addTo(ct.Body(), msg)

	phase := glweKey.Phase(ct, fft)
	requireTorusClose(t, msg, phase, 1<<8)

	lweKey := glweKey.LWEKey()
	out := NewLWECiphertext(params.ExtractedDimension())
	for _, nth := range []int{0, 1, params.N() / 2, params.N() - 1} {
		SampleExtract(ct, nth, out)
		d := int32(lweKey.Phase(out) - msg[nth])
		require.Less(t, math.Abs(float64(d)), float64(1<<8), "nth=%d", nth)
	}
}

type testKeys struct {
	params  Parameters
	lweKey  *LWESecretKey
	glweKey *GLWESecretKey
	bsk     *FourierBootstrapKey
	ksk     *KeySwitchKey
}

func genTestKeys(t testing.TB, s *Sampler) testKeys {
	t.Helper()
	params := MustParameters(ToyParameters)
	fft := NewFFT(params.N())
	keys := testKeys{params: params}
	keys.lweKey = GenLWESecretKey(s, params.LWEDimension())
	keys.glweKey = GenGLWESecretKey(s, params.GLWEDimension(), fft)
	keys.bsk = GenBootstrapKey(s, params, keys.lweKey, keys.glweKey, fft)
	keys.ksk = GenKeySwitchKey(s, params, keys.glweKey.LWEKey(), keys.lweKey)
	return keys
}

func TestBootstrapAndKeySwitch(t *testing.T) {
	s := newTestSampler(t)
	keys := genTestKeys(t, s)
	eval := NewEvaluator(keys.params)
	lut := SignLUT(keys.params.N())
	extracted := keys.glweKey.LWEKey()

	phases := []struct {
		mu   uint32
		want bool
	}{
		{PlaintextTrue, true},
		{PlaintextFalse, false},
		{3 * PlaintextTrue, true},
		{neg(3 * PlaintextTrue), false},
		{Quarter, true},
		{neg(Quarter), false},
	}

	var errs []float64
	for trial := 0; trial < 8; trial++ {
		for _, ph := range phases {
			in := keys.lweKey.Encrypt(s, ph.mu, keys.params.LWEStdDev())
			out := eval.Bootstrap(in, lut, keys.bsk)
			require.Equal(t, keys.params.ExtractedDimension(), out.Dimension())
			require.Equal(t, ph.want, Decode(extracted.Phase(out)))

			ks := NewLWECiphertext(keys.params.LWEDimension())
			KeySwitch(keys.ksk, out, ks)
			phase := keys.lweKey.Phase(ks)
			require.Equal(t, ph.want, Decode(phase))
			errs = append(errs, PhaseError(phase, ph.want))
		}
	}

	report, err := NewNoiseReport(errs)
	require.NoError(t, err)
	require.Less(t, report.MaxAbs, 1.0/16, report.String())
}

func TestBlindRotateMatchesSoftwareBootstrap(t *testing.T) {
	s := newTestSampler(t)
	keys := genTestKeys(t, s)
	eval := NewEvaluator(keys.params)
	lut := SignLUT(keys.params.N())
	extracted := keys.glweKey.LWEKey()
	logN := keys.params.LogN()

	for _, b := range []bool{true, false, true, false} {
		in := keys.lweKey.Encrypt(s, Encode(b), keys.params.LWEStdDev())

		acc := NewTrivialGLWECiphertext(keys.params.GLWEDimension(), lut)
		mask := make([]uint32, len(in.Mask))
		ModSwitchSlice(mask, in.Mask, logN)
		eval.ShallowCopy().BlindRotateAssign(acc, mask, keys.bsk)

		rotated := NewLWECiphertext(keys.params.ExtractedDimension())
		SampleExtractRotated(acc, int(ModSwitch(in.Body, logN)), rotated)
		require.Equal(t, b, Decode(extracted.Phase(rotated)))
		require.Equal(t, b, Decode(extracted.Phase(eval.Bootstrap(in, lut, keys.bsk))))
	}
}

func TestNoiseReport(t *testing.T) {
	r, err := NewNoiseReport([]float64{-0.25, 0.25, 0.5, -0.5})
	require.NoError(t, err)
	require.Equal(t, 4, r.Count)
	require.InDelta(t, 0, r.Mean, 1e-12)
	require.InDelta(t, 0.5, r.MaxAbs, 1e-12)
	require.Greater(t, r.StdDev, 0.0)

	_, err = NewNoiseReport(nil)
	require.Error(t, err)

	require.InDelta(t, 0, PhaseError(PlaintextTrue, true), 1e-12)
	require.InDelta(t, -0.25, PhaseError(PlaintextFalse, true), 1e-12)
}

func TestSamplerDeterministic(t *testing.T) {
	a, err := NewSampler([]byte("seed"))
	require.NoError(t, err)
	b, err := NewSampler([]byte("seed"))
	require.NoError(t, err)
	for i := 0; i < 10000; i++ {
		require.Equal(t, a.Uint32(), b.Uint32())
	}
	require.Zero(t, a.Gaussian(0))
}

func BenchmarkBootstrapToy(b *testing.B) {
	s := newTestSampler(b)
	keys := genTestKeys(b, s)
	eval := NewEvaluator(keys.params)
	lut := SignLUT(keys.params.N())
	in := keys.lweKey.Encrypt(s, PlaintextTrue, keys.params.LWEStdDev())
	out := NewLWECiphertext(keys.params.ExtractedDimension())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		eval.BootstrapAssign(in, lut, keys.bsk, out)
	}
}
