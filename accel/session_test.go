// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package accel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/tfhe/core"
)

var testConfig = Config{Image: "emulated.xclbin", Index: 0}

// recordingOpener counts opens and keeps the last emulator.
type recordingOpener struct {
	opens int
	emu   *Emulator
}

func (o *recordingOpener) open(cfg Config, layout Layout) (Device, error) {
	o.opens++
	emu, err := NewEmulator(layout)
	o.emu = emu
	return emu, err
}

// faultyDevice fails the named operation.
type faultyDevice struct {
	Device
	failOn string
}

var errInjected = errors.New("injected failure")

func (d *faultyDevice) Run() error {
	if d.failOn == "run" {
		return errInjected
	}
	return d.Device.Run()
}

func (d *faultyDevice) Read(r Region, data []byte) error {
	if d.failOn == "read" {
		return errInjected
	}
	return d.Device.Read(r, data)
}

func encryptBatch(f fixture, bits []bool) []*core.LWECiphertext {
	cts := make([]*core.LWECiphertext, len(bits))
	for i, b := range bits {
		cts[i] = f.lweKey.Encrypt(f.sampler, core.Encode(b), f.params.LWEStdDev())
	}
	return cts
}

func TestSessionDispatch(t *testing.T) {
	f := newFixture(t)
	opener := &recordingOpener{}
	sess, err := Open(testConfig, f.layout, f.bsk, opener.open)
	require.NoError(t, err)
	require.Equal(t, 1, opener.opens)
	require.Equal(t, uint32(0), opener.emu.RunFlag())

	eval := core.NewEvaluator(f.params)
	lut := core.SignLUT(f.params.N())

	for _, size := range []int{1, 3, f.layout.PackingFactor} {
		bits := make([]bool, size)
		for i := range bits {
			bits[i] = f.sampler.Bool()
		}
		cts := encryptBatch(f, bits)

		out, err := sess.Dispatch(cts)
		require.NoError(t, err)
		require.Len(t, out, size)
		require.Equal(t, uint32(0), opener.emu.RunFlag())
		for i, ct := range out {
			require.Equal(t, f.params.ExtractedDimension(), ct.Dimension())
			require.NoError(t, ct.CheckModulus())
			require.Equal(t, bits[i], core.Decode(f.extracted.Phase(ct)), "slot %d of %d", i, size)

			sw := eval.Bootstrap(cts[i], lut, f.bsk)
			require.Equal(t, core.Decode(f.extracted.Phase(sw)), core.Decode(f.extracted.Phase(ct)))
		}
	}
	require.Equal(t, 3, opener.emu.Runs())

	_, err = sess.Dispatch(encryptBatch(f, make([]bool, f.layout.PackingFactor+1)))
	require.ErrorIs(t, err, ErrBatchTooLarge)

	_, err = sess.Dispatch([]*core.LWECiphertext{core.NewLWECiphertext(f.params.LWEDimension() + 1)})
	require.Error(t, err)

	require.NoError(t, sess.Close())
	require.ErrorIs(t, sess.Close(), ErrClosed)
	_, err = sess.Dispatch(nil)
	require.ErrorIs(t, err, ErrClosed)
}

func TestSessionDeviceFaults(t *testing.T) {
	f := newFixture(t)
	for _, op := range []string{"run", "read"} {
		t.Run(op, func(t *testing.T) {
			sess, err := Open(testConfig, f.layout, f.bsk, func(cfg Config, layout Layout) (Device, error) {
				emu, err := NewEmulator(layout)
				if err != nil {
					return nil, err
				}
				return &faultyDevice{Device: emu, failOn: op}, nil
			})
			require.NoError(t, err)
			_, err = sess.Dispatch(encryptBatch(f, []bool{true}))
			var fault *DeviceFault
			require.ErrorAs(t, err, &fault)
			require.ErrorIs(t, err, errInjected)
		})
	}
}

func TestOpenFailures(t *testing.T) {
	f := newFixture(t)

	var fault *DeviceFault
	_, err := Open(testConfig, f.layout, f.bsk, func(Config, Layout) (Device, error) {
		return nil, errInjected
	})
	require.ErrorAs(t, err, &fault)
	require.Equal(t, "open", fault.Op)

	opener := &recordingOpener{}
	var layoutErr *LayoutError
	_, err = Open(testConfig, DefaultLayout, f.bsk, opener.open)
	require.ErrorAs(t, err, &layoutErr)
	require.Zero(t, opener.opens)
}

func TestEmulatorProtocol(t *testing.T) {
	f := newFixture(t)
	emu, err := NewEmulator(f.layout)
	require.NoError(t, err)

	require.NoError(t, emu.SetRunFlag(1))
	require.ErrorIs(t, emu.Run(), ErrKeyNotLoaded)

	img, err := NewKeyImage(f.bsk, f.layout)
	require.NoError(t, err)
	require.NoError(t, emu.Write(RegionKey, img.Bytes()))

	require.NoError(t, emu.SetRunFlag(0))
	require.ErrorIs(t, emu.Run(), ErrKernelIdle)

	var layoutErr *LayoutError
	require.ErrorAs(t, emu.Write(RegionInput, make([]byte, 3)), &layoutErr)
	require.ErrorAs(t, emu.Read(RegionOutput, make([]byte, 3)), &layoutErr)

	checked := guard(emu, f.layout)
	require.ErrorAs(t, checked.Write(RegionInput, make([]byte, f.layout.InputBufferSize+4)), &layoutErr)
	require.Error(t, checked.Write(Region(7), nil))

	require.NoError(t, emu.Close())
	require.ErrorIs(t, emu.SetRunFlag(1), ErrClosed)
}
