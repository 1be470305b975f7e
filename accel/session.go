// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package accel

import (
	"encoding/binary"
	"fmt"
	"log"

	"github.com/luxfi/tfhe/core"
)

// Session is an open device loaded with one bootstrapping key. It
// dispatches one batch at a time and is not safe for concurrent use.
type Session struct {
	dev    Device
	cfg    Config
	layout Layout
	logN   int
	in     []byte
	out    []byte
	bodies []uint32
	closed bool
}

// Open lays bsk out for layout, opens the device with open and uploads the
// key image. Configuration and layout failures are returned before the
// device is touched.
func Open(cfg Config, layout Layout, bsk *core.FourierBootstrapKey, open Opener) (*Session, error) {
	img, err := NewKeyImage(bsk, layout)
	if err != nil {
		return nil, err
	}
	dev, err := open(cfg, layout)
	if err != nil {
		return nil, &DeviceFault{Op: "open", Err: err}
	}
	s := &Session{
		dev:    guard(dev, layout),
		cfg:    cfg,
		layout: layout,
		in:     make([]byte, layout.InputBufferSize),
		out:    make([]byte, layout.OutputBufferSize),
		bodies: make([]uint32, layout.PackingFactor),
	}
	for 1<<s.logN < layout.PolynomialSize {
		s.logN++
	}
	if err := s.dev.Write(RegionKey, img.Bytes()); err != nil {
		dev.Close()
		return nil, &DeviceFault{Op: "key upload", Err: err}
	}
	if err := s.dev.SetRunFlag(0); err != nil {
		dev.Close()
		return nil, &DeviceFault{Op: "set run flag", Err: err}
	}
	log.Printf("accel: device %d ready, key image %d bytes, blake3 %x", cfg.Index, len(img.Words)*8, img.Digest[:8])
	return s, nil
}

// Layout returns the session layout.
func (s *Session) Layout() Layout { return s.layout }

// Dispatch bootstraps up to PackingFactor ciphertexts in one kernel run and
// returns, in input order, their encryptions under the extracted GLWE key.
// Device failures are returned as *DeviceFault.
func (s *Session) Dispatch(cts []*core.LWECiphertext) ([]*core.LWECiphertext, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if len(cts) > s.layout.PackingFactor {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(cts), s.layout.PackingFactor)
	}
	n := s.layout.LWEDimension
	clear(s.in)
	for i, ct := range cts {
		if len(ct.Mask) != n {
			return nil, fmt.Errorf("accel: ciphertext %d has dimension %d, device expects %d", i, len(ct.Mask), n)
		}
		off := i * n * 4
		for j, a := range ct.Mask {
			binary.LittleEndian.PutUint32(s.in[off+4*j:], core.ModSwitch(a, s.logN))
		}
		s.bodies[i] = core.ModSwitch(ct.Body, s.logN)
	}

	if err := s.dev.SetRunFlag(1); err != nil {
		return nil, &DeviceFault{Op: "set run flag", Err: err}
	}
	if err := s.dev.Write(RegionInput, s.in); err != nil {
		return nil, &DeviceFault{Op: "input write", Err: err}
	}
	if err := s.dev.Run(); err != nil {
		return nil, &DeviceFault{Op: "kernel run", Err: err}
	}
	if err := s.dev.Read(RegionOutput, s.out); err != nil {
		return nil, &DeviceFault{Op: "output read", Err: err}
	}
	if err := s.dev.SetRunFlag(0); err != nil {
		return nil, &DeviceFault{Op: "reset run flag", Err: err}
	}

	k, size := s.layout.GLWEDimension, s.layout.PolynomialSize
	block := (k + 1) * size * 4
	acc := core.NewGLWECiphertext(k, size)
	res := make([]*core.LWECiphertext, len(cts))
	for i := range cts {
		src := s.out[i*block : (i+1)*block]
		for c, poly := range acc.Value {
			for j := range poly {
				poly[j] = binary.LittleEndian.Uint32(src[(c*size+j)*4:])
			}
		}
		res[i] = core.NewLWECiphertext(k * size)
		core.SampleExtractRotated(acc, int(s.bodies[i]), res[i])
	}
	return res, nil
}

// Close releases the device. Closing twice returns ErrClosed.
func (s *Session) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	if err := s.dev.Close(); err != nil {
		return &DeviceFault{Op: "close", Err: err}
	}
	log.Printf("accel: device %d closed", s.cfg.Index)
	return nil
}
