// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/luxfi/lattice/v7/utils/buffer"

	"github.com/luxfi/tfhe/core"
)

const (
	kindTrivial   uint8 = 0
	kindEncrypted uint8 = 1
)

var errCorrupt = errors.New("tfhe: corrupt encoding")

// binWriter accumulates the byte count and first error of a sequence of
// buffer writes.
type binWriter struct {
	w   buffer.Writer
	n   int64
	err error
}

func (bw *binWriter) u8(v uint8) {
	if bw.err == nil {
		inc, err := buffer.WriteUint8(bw.w, v)
		bw.n += int64(inc)
		bw.err = err
	}
}

func (bw *binWriter) u32(v uint32) {
	if bw.err == nil {
		inc, err := buffer.WriteUint32(bw.w, v)
		bw.n += int64(inc)
		bw.err = err
	}
}

func (bw *binWriter) u64(v uint64) {
	if bw.err == nil {
		inc, err := buffer.WriteUint64(bw.w, v)
		bw.n += int64(inc)
		bw.err = err
	}
}

func (bw *binWriter) u32s(v []uint32) {
	if bw.err == nil {
		inc, err := buffer.WriteUint32Slice(bw.w, v)
		bw.n += int64(inc)
		bw.err = err
	}
}

func (bw *binWriter) u64s(v []uint64) {
	if bw.err == nil {
		inc, err := buffer.WriteUint64Slice(bw.w, v)
		bw.n += int64(inc)
		bw.err = err
	}
}

func (bw *binWriter) params(p Parameters) {
	lit := p.Literal()
	for _, v := range []int{lit.LWEDimension, lit.GLWEDimension, lit.LogN, lit.PBSBaseLog, lit.PBSLevel, lit.KSBaseLog, lit.KSLevel} {
		bw.u64(uint64(v))
	}
	bw.u64(math.Float64bits(lit.LWEStdDev))
	bw.u64(math.Float64bits(lit.GLWEStdDev))
}

func (bw *binWriter) flush() (int64, error) {
	if bw.err != nil {
		return bw.n, bw.err
	}
	return bw.n, bw.w.Flush()
}

type binReader struct {
	r   buffer.Reader
	n   int64
	err error
}

func (br *binReader) u8() (v uint8) {
	if br.err == nil {
		inc, err := buffer.ReadUint8(br.r, &v)
		br.n += int64(inc)
		br.err = err
	}
	return
}

func (br *binReader) u32() (v uint32) {
	if br.err == nil {
		inc, err := buffer.ReadUint32(br.r, &v)
		br.n += int64(inc)
		br.err = err
	}
	return
}

func (br *binReader) u64() (v uint64) {
	if br.err == nil {
		inc, err := buffer.ReadUint64(br.r, &v)
		br.n += int64(inc)
		br.err = err
	}
	return
}

func (br *binReader) u32s(v []uint32) {
	if br.err == nil {
		inc, err := buffer.ReadUint32Slice(br.r, v)
		br.n += int64(inc)
		br.err = err
	}
}

func (br *binReader) u64s(v []uint64) {
	if br.err == nil {
		inc, err := buffer.ReadUint64Slice(br.r, v)
		br.n += int64(inc)
		br.err = err
	}
}

func (br *binReader) params() Parameters {
	var ints [7]int
	for i := range ints {
		ints[i] = int(br.u64())
	}
	lit := ParametersLiteral{
		LWEDimension:  ints[0],
		GLWEDimension: ints[1],
		LogN:          ints[2],
		PBSBaseLog:    ints[3],
		PBSLevel:      ints[4],
		KSBaseLog:     ints[5],
		KSLevel:       ints[6],
		LWEStdDev:     math.Float64frombits(br.u64()),
		GLWEStdDev:    math.Float64frombits(br.u64()),
	}
	if br.err != nil {
		return Parameters{}
	}
	p, err := NewParametersFromLiteral(lit)
	if err != nil {
		br.err = fmt.Errorf("%w: %w", errCorrupt, err)
	}
	return p
}

// ========== Ciphertext Serialization ==========

// WriteTo writes ct to w.
func (ct *Ciphertext) WriteTo(w io.Writer) (n int64, err error) {
	switch w := w.(type) {
	case buffer.Writer:
		bw := &binWriter{w: w}
		if ct.trivial {
			bw.u8(kindTrivial)
			if ct.value {
				bw.u8(1)
			} else {
				bw.u8(0)
			}
			return bw.flush()
		}
		bw.u8(kindEncrypted)
		bw.u64(ct.lwe.Modulus)
		bw.u32(uint32(len(ct.lwe.Mask)))
		bw.u32s(ct.lwe.Mask)
		bw.u32(ct.lwe.Body)
		return bw.flush()
	default:
		return ct.WriteTo(bufio.NewWriter(w))
	}
}

// maxDimension bounds decoded mask lengths.
const maxDimension = 1 << 20

// ReadFrom reads ct from r.
func (ct *Ciphertext) ReadFrom(r io.Reader) (n int64, err error) {
	switch r := r.(type) {
	case buffer.Reader:
		br := &binReader{r: r}
		switch kind := br.u8(); {
		case br.err != nil:
		case kind == kindTrivial:
			*ct = Ciphertext{trivial: true, value: br.u8() == 1}
		case kind == kindEncrypted:
			modulus := br.u64()
			dim := br.u32()
			if br.err == nil && dim > maxDimension {
				return br.n, fmt.Errorf("%w: dimension %d", errCorrupt, dim)
			}
			lwe := &core.LWECiphertext{Mask: make([]uint32, dim), Modulus: modulus}
			br.u32s(lwe.Mask)
			lwe.Body = br.u32()
			*ct = Ciphertext{lwe: lwe}
		default:
			return br.n, fmt.Errorf("%w: ciphertext kind %d", errCorrupt, kind)
		}
		return br.n, br.err
	default:
		return ct.ReadFrom(bufio.NewReader(r))
	}
}

// MarshalBinary encodes ct.
func (ct *Ciphertext) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := ct.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("marshal ciphertext: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes ct.
func (ct *Ciphertext) UnmarshalBinary(data []byte) error {
	n, err := ct.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("unmarshal ciphertext: %w", err)
	}
	if n != int64(len(data)) {
		return fmt.Errorf("unmarshal ciphertext: %w: %d trailing bytes", errCorrupt, int64(len(data))-n)
	}
	return nil
}

// ========== Client Key Serialization ==========

// WriteTo writes the secret keys to w. The sampler state is not saved; a
// loaded key encrypts with fresh randomness.
func (ck *ClientKey) WriteTo(w io.Writer) (n int64, err error) {
	switch w := w.(type) {
	case buffer.Writer:
		bw := &binWriter{w: w}
		bw.params(ck.params)
		bw.u32s(ck.lweKey.Value)
		for _, p := range ck.glweKey.Value {
			bw.u32s(p)
		}
		return bw.flush()
	default:
		return ck.WriteTo(bufio.NewWriter(w))
	}
}

// ReadFrom reads secret keys written by WriteTo.
func (ck *ClientKey) ReadFrom(r io.Reader) (n int64, err error) {
	switch r := r.(type) {
	case buffer.Reader:
		br := &binReader{r: r}
		params := br.params()
		if br.err != nil {
			return br.n, br.err
		}
		lweKey := &core.LWESecretKey{Value: make([]uint32, params.LWEDimension())}
		br.u32s(lweKey.Value)
		glwe := make([][]uint32, params.GLWEDimension())
		for i := range glwe {
			glwe[i] = make([]uint32, params.N())
			br.u32s(glwe[i])
		}
		if br.err != nil {
			return br.n, br.err
		}
		s, err := core.NewRandomSampler()
		if err != nil {
			return br.n, err
		}
		glweKey := core.NewGLWESecretKey(glwe, core.NewFFT(params.N()))
		*ck = ClientKey{
			params:    params,
			lweKey:    lweKey,
			glweKey:   glweKey,
			extracted: glweKey.LWEKey(),
			sampler:   s,
		}
		return br.n, nil
	default:
		return ck.ReadFrom(bufio.NewReader(r))
	}
}

// MarshalBinary encodes the secret keys.
func (ck *ClientKey) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := ck.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("marshal client key: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes the secret keys.
func (ck *ClientKey) UnmarshalBinary(data []byte) error {
	n, err := ck.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("unmarshal client key: %w", err)
	}
	if n != int64(len(data)) {
		return fmt.Errorf("unmarshal client key: %w: %d trailing bytes", errCorrupt, int64(len(data))-n)
	}
	return nil
}

// ========== Server Key Serialization ==========

// WriteTo writes the bootstrapping and key switching keys to w.
func (sk *ServerKey) WriteTo(w io.Writer) (n int64, err error) {
	switch w := w.(type) {
	case buffer.Writer:
		bw := &binWriter{w: w}
		bw.params(sk.params)
		words := make([]uint64, 2*len(sk.BootstrapKey.Data))
		for i, v := range sk.BootstrapKey.Data {
			words[2*i] = math.Float64bits(real(v))
			words[2*i+1] = math.Float64bits(imag(v))
		}
		bw.u64s(words)
		bw.u32s(sk.KeySwitchKey.Data)
		return bw.flush()
	default:
		return sk.WriteTo(bufio.NewWriter(w))
	}
}

// ReadFrom reads keys written by WriteTo.
func (sk *ServerKey) ReadFrom(r io.Reader) (n int64, err error) {
	switch r := r.(type) {
	case buffer.Reader:
		br := &binReader{r: r}
		params := br.params()
		if br.err != nil {
			return br.n, br.err
		}
		pbs, ks := params.PBSDecomposer(), params.KSDecomposer()
		bsk := core.NewFourierBootstrapKey(params.LWEDimension(), params.GLWEDimension(), params.N(), pbs.BaseLog, pbs.Level)
		words := make([]uint64, 2*len(bsk.Data))
		br.u64s(words)
		for i := range bsk.Data {
			bsk.Data[i] = complex(math.Float64frombits(words[2*i]), math.Float64frombits(words[2*i+1]))
		}
		ksk := core.NewKeySwitchKey(params.ExtractedDimension(), params.LWEDimension(), ks.BaseLog, ks.Level)
		br.u32s(ksk.Data)
		if br.err != nil {
			return br.n, br.err
		}
		*sk = ServerKey{params: params, BootstrapKey: bsk, KeySwitchKey: ksk}
		return br.n, nil
	default:
		return sk.ReadFrom(bufio.NewReader(r))
	}
}

// MarshalBinary encodes the server key.
func (sk *ServerKey) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := sk.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("marshal server key: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes the server key.
func (sk *ServerKey) UnmarshalBinary(data []byte) error {
	n, err := sk.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("unmarshal server key: %w", err)
	}
	if n != int64(len(data)) {
		return fmt.Errorf("unmarshal server key: %w: %d trailing bytes", errCorrupt, int64(len(data))-n)
	}
	return nil
}
