// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package accel

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/tfhe/core"
)

type fixture struct {
	params    core.Parameters
	sampler   *core.Sampler
	lweKey    *core.LWESecretKey
	extracted *core.LWESecretKey
	bsk       *core.FourierBootstrapKey
	layout    Layout
}

func newFixture(t testing.TB) fixture {
	t.Helper()
	s, err := core.NewSampler([]byte("accel test seed"))
	require.NoError(t, err)
	params := core.MustParameters(core.ToyParameters)
	fft := core.NewFFT(params.N())
	lweKey := core.GenLWESecretKey(s, params.LWEDimension())
	glweKey := core.GenGLWESecretKey(s, params.GLWEDimension(), fft)
	return fixture{
		params:    params,
		sampler:   s,
		lweKey:    lweKey,
		extracted: glweKey.LWEKey(),
		bsk:       core.GenBootstrapKey(s, params, lweKey, glweKey, fft),
		layout:    NewLayout(params, 4),
	}
}

func syntheticKey(l Layout) *core.FourierBootstrapKey {
	bsk := core.NewFourierBootstrapKey(l.LWEDimension, l.GLWEDimension, l.PolynomialSize, l.PBSBaseLog, l.PBSLevel)
	for i := range bsk.Data {
		bsk.Data[i] = complex(float64(i), -float64(i)-0.25)
	}
	return bsk
}

// stagedStream builds the device stream step by step: rotate coefficient
// blocks, split into GGSW matrices, reverse levels, transpose level and row,
// flatten to addresses and stream by column and coefficient block.
func stagedStream(bsk *core.FourierBootstrapKey, l Layout) []complex128 {
	n, k1, levels, m := bsk.LWEDimension, bsk.GLWEDimension+1, bsk.Level, bsk.PolynomialSize/2

	rot := make([]complex128, len(bsk.Data))
	for b := 0; b < len(bsk.Data)/m; b++ {
		for j := 0; j < m; j++ {
			rot[b*m+j] = bsk.Data[b*m+(j+1)%m]
		}
	}

	// ggsw[i][level][row][col] is one polynomial.
	ggsw := make([][][][][]complex128, n)
	off := 0
	for i := range ggsw {
		ggsw[i] = make([][][][]complex128, levels)
		for lv := range ggsw[i] {
			ggsw[i][lv] = make([][][]complex128, k1)
			for row := range ggsw[i][lv] {
				ggsw[i][lv][row] = make([][]complex128, k1)
				for col := range ggsw[i][lv][row] {
					ggsw[i][lv][row][col] = rot[off : off+m]
					off += m
				}
			}
		}
	}

	for i := range ggsw {
		slices.Reverse(ggsw[i])
	}

	// transposed[i][row][level][col]
	transposed := make([][][][][]complex128, n)
	for i := range transposed {
		transposed[i] = make([][][][]complex128, k1)
		for row := range transposed[i] {
			transposed[i][row] = make([][][]complex128, levels)
			for lv := range transposed[i][row] {
				transposed[i][row][lv] = ggsw[i][lv][row]
			}
		}
	}

	var addrs [][][]complex128
	for i := range transposed {
		for row := range transposed[i] {
			addrs = append(addrs, transposed[i][row]...)
		}
	}

	pairs := l.PairsPerBeat()
	var out []complex128
	for col := 0; col < k1; col++ {
		for blk := 0; blk < m; blk += pairs {
			for _, a := range addrs {
				out = append(out, a[col][blk:blk+pairs]...)
			}
		}
	}
	return out
}

func TestDefaultLayout(t *testing.T) {
	require.NoError(t, DefaultLayout.Validate())
	require.Equal(t, DefaultLayout, NewLayout(core.MustParameters(core.DefaultParameters), 16))
	require.Equal(t, 4, DefaultLayout.PairsPerBeat())
	require.Equal(t, 722*3*3, DefaultLayout.Depth())
}

func TestSourceIndexMatchesStagedPipeline(t *testing.T) {
	tests := []struct {
		name string
		lit  core.ParametersLiteral
		axi  int
	}{
		{"k1 l2 two pairs", core.ParametersLiteral{LWEDimension: 3, GLWEDimension: 1, LogN: 4, PBSBaseLog: 4, PBSLevel: 2, KSBaseLog: 1, KSLevel: 1}, 256},
		{"k2 l3 four pairs", core.ParametersLiteral{LWEDimension: 2, GLWEDimension: 2, LogN: 5, PBSBaseLog: 6, PBSLevel: 3, KSBaseLog: 1, KSLevel: 1}, 512},
		{"one pair", core.ParametersLiteral{LWEDimension: 4, GLWEDimension: 1, LogN: 3, PBSBaseLog: 8, PBSLevel: 2, KSBaseLog: 1, KSLevel: 1}, 128},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			layout := NewLayout(core.MustParameters(tc.lit), 2)
			layout.AXIWidth = tc.axi
			require.NoError(t, layout.Validate())
			bsk := syntheticKey(layout)

			want := stagedStream(bsk, layout)
			require.Len(t, want, len(bsk.Data))
			for p := range want {
				require.Equal(t, want[p], bsk.Data[layout.SourceIndex(p)], "stream position %d", p)
			}

			img, err := NewKeyImage(bsk, layout)
			require.NoError(t, err)
			require.Equal(t, layout.KeyBufferSize, len(img.Words)*8)
			scale := math.Ldexp(1, layout.KeyWidth-layout.KeyIntWidth)
			for p, v := range want {
				require.Equal(t, quantize(imag(v), scale), img.Words[2*p])
				require.Equal(t, quantize(real(v), scale), img.Words[2*p+1])
			}
		})
	}
}

func TestKeyImageRoundTrip(t *testing.T) {
	f := newFixture(t)
	img, err := NewKeyImage(f.bsk, f.layout)
	require.NoError(t, err)
	require.Len(t, img.Words, 2*len(f.bsk.Data))

	decoded, err := DecodeKeyImage(img.Bytes(), f.layout)
	require.NoError(t, err)
	tol := 1 / math.Ldexp(1, f.layout.KeyWidth-f.layout.KeyIntWidth)
	for i, v := range f.bsk.Data {
		require.InDelta(t, real(v), real(decoded.Data[i]), tol, "coefficient %d", i)
		require.InDelta(t, imag(v), imag(decoded.Data[i]), tol, "coefficient %d", i)
	}

	again, err := NewKeyImage(f.bsk, f.layout)
	require.NoError(t, err)
	require.Equal(t, img.Digest, again.Digest)
}

func TestKeyImageLayoutMismatch(t *testing.T) {
	f := newFixture(t)

	var layoutErr *LayoutError
	_, err := NewKeyImage(f.bsk, DefaultLayout)
	require.ErrorAs(t, err, &layoutErr)
	require.Equal(t, DefaultLayout.KeyBufferSize, layoutErr.Want)

	bad := f.layout
	bad.KeyBufferSize += 8
	_, err = NewKeyImage(f.bsk, bad)
	require.ErrorAs(t, err, &layoutErr)
	require.Equal(t, f.layout.KeyBufferSize, layoutErr.Got)

	_, err = DecodeKeyImage(make([]byte, 8), f.layout)
	require.ErrorAs(t, err, &layoutErr)
}

func TestQuantize(t *testing.T) {
	tests := []struct {
		v     float64
		scale float64
		want  int64
	}{
		{0.5, 1, 1},
		{-0.5, 1, -1},
		{2.5, 1, 3},
		{-2.5, 1, -3},
		{0.49, 1, 0},
		{1.25, 4, 5},
		{1e300, 1, math.MaxInt64},
		{-1e300, 1, math.MinInt64},
		{math.NaN(), 1, 0},
	}
	for _, tc := range tests {
		require.Equal(t, uint64(tc.want), quantize(tc.v, tc.scale), "v=%v", tc.v)
	}
	require.Equal(t, -3.0, dequantize(quantize(-3, 16), 16))
}

func TestConfigFromEnv(t *testing.T) {
	var cfgErr *ConfigurationError

	t.Setenv(EnvImage, "")
	t.Setenv(EnvIndex, "0")
	_, err := ConfigFromEnv()
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, EnvImage, cfgErr.Var)

	t.Setenv(EnvImage, "/opt/images/accel.xclbin")
	t.Setenv(EnvIndex, "")
	_, err = ConfigFromEnv()
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, EnvIndex, cfgErr.Var)

	for _, raw := range []string{"one", "-1", "4294967296"} {
		t.Setenv(EnvIndex, raw)
		_, err = ConfigFromEnv()
		require.ErrorAs(t, err, &cfgErr)
		require.Equal(t, raw, cfgErr.Value)
		require.Error(t, errors.Unwrap(err))
	}

	t.Setenv(EnvIndex, "2")
	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, Config{Image: "/opt/images/accel.xclbin", Index: 2}, cfg)
}
