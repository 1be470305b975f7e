// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCiphertextSerialization(t *testing.T) {
	ck, _ := testKeys(t)
	e := newSoftwareEngine(t)

	for _, v := range []bool{false, true} {
		ct := ck.Encrypt(v)
		data, err := ct.MarshalBinary()
		require.NoError(t, err)
		require.Len(t, data, 1+8+4+4*ck.Parameters().LWEDimension()+4)

		var got Ciphertext
		require.NoError(t, got.UnmarshalBinary(data))
		require.False(t, got.IsTrivial())
		require.Equal(t, ct.LWE(), got.LWE())

		out, err := e.Nand(&got, ck.Encrypt(true))
		require.NoError(t, err)
		require.Equal(t, !v, ck.Decrypt(out))

		triv := NewTrivialCiphertext(v)
		data, err = triv.MarshalBinary()
		require.NoError(t, err)
		require.Len(t, data, 2)
		require.NoError(t, got.UnmarshalBinary(data))
		value, ok := got.TrivialValue()
		require.True(t, ok)
		require.Equal(t, v, value)
	}
}

func TestCiphertextSerializationStream(t *testing.T) {
	ck, _ := testKeys(t)
	cts := []*Ciphertext{ck.Encrypt(true), NewTrivialCiphertext(false), ck.Encrypt(false)}

	var buf bytes.Buffer
	var written int64
	for _, ct := range cts {
		n, err := ct.WriteTo(&buf)
		require.NoError(t, err)
		written += n
	}
	require.Equal(t, int64(buf.Len()), written)

	data := buf.Bytes()
	for _, want := range cts {
		var got Ciphertext
		wire, err := want.MarshalBinary()
		require.NoError(t, err)
		require.NoError(t, got.UnmarshalBinary(data[:len(wire)]))
		data = data[len(wire):]
		require.Equal(t, ck.Decrypt(want), ck.Decrypt(&got))
	}
	require.Empty(t, data)
}

func TestCiphertextSerializationCorrupt(t *testing.T) {
	ck, _ := testKeys(t)
	data, err := ck.Encrypt(true).MarshalBinary()
	require.NoError(t, err)

	var ct Ciphertext
	require.Error(t, ct.UnmarshalBinary(nil))
	require.Error(t, ct.UnmarshalBinary(data[:len(data)-3]))
	require.ErrorIs(t, ct.UnmarshalBinary([]byte{7}), errCorrupt)
	require.ErrorIs(t, ct.UnmarshalBinary(append(data, 0)), errCorrupt)

	huge := append([]byte(nil), data...)
	huge[9], huge[10], huge[11], huge[12] = 0xff, 0xff, 0xff, 0xff
	require.ErrorIs(t, ct.UnmarshalBinary(huge), errCorrupt)
}

func TestKeySerialization(t *testing.T) {
	ck, sk := testKeys(t)
	before := ck.EncryptSlice([]bool{true, false, true, true})

	data, err := ck.MarshalBinary()
	require.NoError(t, err)
	ck2 := new(ClientKey)
	require.NoError(t, ck2.UnmarshalBinary(data))
	require.Equal(t, ck.Parameters(), ck2.Parameters())
	require.Equal(t, ck.DecryptSlice(before), ck2.DecryptSlice(before))

	data, err = sk.MarshalBinary()
	require.NoError(t, err)
	sk2 := new(ServerKey)
	require.NoError(t, sk2.UnmarshalBinary(data))
	require.Equal(t, sk.Parameters(), sk2.Parameters())
	require.Equal(t, sk.BootstrapKey.Data, sk2.BootstrapKey.Data)
	require.Equal(t, sk.KeySwitchKey.Data, sk2.KeySwitchKey.Data)

	e := NewEngine(sk2, WithLayout(toyLayout(sk2)))
	after := ck2.EncryptSlice([]bool{true, true, false, false})
	out, err := e.XorPacked(before, after)
	require.NoError(t, err)
	require.Equal(t, []bool{false, true, true, true}, ck.DecryptSlice(out))

	require.Error(t, new(ServerKey).UnmarshalBinary(data[:len(data)/2]))
	bad := append([]byte(nil), data...)
	bad[8*2] = 0xff // LogN
	require.ErrorIs(t, new(ServerKey).UnmarshalBinary(bad), errCorrupt)
}
