// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package accel

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/zeebo/blake3"

	"github.com/luxfi/tfhe/core"
)

// KeyImage is a bootstrapping key in device memory order: fixed-point
// words, imaginary part first, streamed by column, coefficient block,
// GGSW row address and coefficient.
type KeyImage struct {
	Words  []uint64
	Digest [32]byte
}

// NewKeyImage lays bsk out for the device.
//
// Within the device, coefficient blocks of N/2 are rotated by one (the
// first coefficient moves last), gadget levels run from most to least
// significant and rows are addressed as (i, row, level). The resulting
// image must fill the key region exactly; any other size is a LayoutError.
func NewKeyImage(bsk *core.FourierBootstrapKey, layout Layout) (*KeyImage, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if err := layout.checkKey(bsk); err != nil {
		return nil, err
	}
	scale := math.Ldexp(1, layout.KeyWidth-layout.KeyIntWidth)
	words := make([]uint64, 2*len(bsk.Data))
	for p := 0; p < len(bsk.Data); p++ {
		v := bsk.Data[layout.SourceIndex(p)]
		words[2*p] = quantize(imag(v), scale)
		words[2*p+1] = quantize(real(v), scale)
	}
	if len(words)*8 != layout.KeyBufferSize {
		return nil, &LayoutError{Reason: "key image", Want: layout.KeyBufferSize, Got: len(words) * 8}
	}
	img := &KeyImage{Words: words}
	img.Digest = blake3.Sum256(img.Bytes())
	return img, nil
}

// SourceIndex maps the p-th complex coefficient of the device stream to its
// index in core.FourierBootstrapKey.Data.
func (l Layout) SourceIndex(p int) int {
	k1 := l.GLWEDimension + 1
	m := l.PolynomialSize / 2
	pairs := l.PairsPerBeat()
	depth := l.Depth()

	t := p % pairs
	p /= pairs
	addr := p % depth
	p /= depth
	block := p % (m / pairs)
	col := p / (m / pairs)

	i := addr / (k1 * l.PBSLevel)
	row := (addr / l.PBSLevel) % k1
	level := l.PBSLevel - 1 - addr%l.PBSLevel
	coeff := (block*pairs + t + 1) % m

	return ((((i*l.PBSLevel+level)*k1+row)*k1+col)*m + coeff)
}

// quantize returns round(v*scale), ties away from zero, saturated to int64.
func quantize(v, scale float64) uint64 {
	x := math.Round(v * scale)
	switch {
	case math.IsNaN(x):
		return 0
	case x >= math.MaxInt64:
		return math.MaxInt64
	case x <= math.MinInt64:
		return 1 << 63
	}
	return uint64(int64(x))
}

func dequantize(w uint64, scale float64) float64 {
	return float64(int64(w)) / scale
}

// Bytes returns the little-endian encoding of the image words.
func (img *KeyImage) Bytes() []byte {
	b := make([]byte, 8*len(img.Words))
	for i, w := range img.Words {
		binary.LittleEndian.PutUint64(b[8*i:], w)
	}
	return b
}

// DecodeKeyImage inverts NewKeyImage up to quantization error.
func DecodeKeyImage(b []byte, layout Layout) (*core.FourierBootstrapKey, error) {
	if len(b) != layout.KeyBufferSize {
		return nil, &LayoutError{Reason: "key region", Want: layout.KeyBufferSize, Got: len(b)}
	}
	bsk := core.NewFourierBootstrapKey(layout.LWEDimension, layout.GLWEDimension,
		layout.PolynomialSize, layout.PBSBaseLog, layout.PBSLevel)
	if 16*len(bsk.Data) != len(b) {
		return nil, fmt.Errorf("accel: key region holds %d bytes for %d coefficients", len(b), len(bsk.Data))
	}
	scale := math.Ldexp(1, layout.KeyWidth-layout.KeyIntWidth)
	for p := range bsk.Data {
		im := dequantize(binary.LittleEndian.Uint64(b[16*p:]), scale)
		re := dequantize(binary.LittleEndian.Uint64(b[16*p+8:]), scale)
		bsk.Data[layout.SourceIndex(p)] = complex(re, im)
	}
	return bsk, nil
}
