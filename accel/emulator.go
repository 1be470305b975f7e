// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package accel

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync"

	"github.com/luxfi/tfhe/core"
)

// Emulator is an in-process Device running the bootstrap kernel in
// software. It decodes the key region back from device order, so a wrong
// key image shows up as wrong results.
type Emulator struct {
	layout  Layout
	params  core.Parameters
	evals   []*core.Evaluator
	lut     []uint32
	mem     [3][]byte
	key     *core.FourierBootstrapKey
	runFlag uint32
	runs    int
	closed  bool
}

// NewEmulator returns an emulated device for layout.
func NewEmulator(layout Layout) (*Emulator, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	params, err := layout.Parameters()
	if err != nil {
		return nil, fmt.Errorf("accel: emulator: %w", err)
	}
	e := &Emulator{
		layout: layout,
		params: params,
		evals:  make([]*core.Evaluator, layout.PackingFactor),
		lut:    core.SignLUT(params.N()),
	}
	e.evals[0] = core.NewEvaluator(params)
	for i := 1; i < len(e.evals); i++ {
		e.evals[i] = e.evals[0].ShallowCopy()
	}
	for _, r := range []Region{RegionInput, RegionOutput, RegionKey} {
		e.mem[r] = make([]byte, layout.RegionSize(r))
	}
	return e, nil
}

// OpenEmulator is an Opener for the emulated device.
func OpenEmulator(cfg Config, layout Layout) (Device, error) {
	log.Printf("accel: emulating device %d (image %s)", cfg.Index, cfg.Image)
	return NewEmulator(layout)
}

func (e *Emulator) region(r Region, n int) ([]byte, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if int(r) >= len(e.mem) {
		return nil, fmt.Errorf("accel: unknown %s", r)
	}
	if n != len(e.mem[r]) {
		return nil, &LayoutError{Reason: r.String() + " region", Want: len(e.mem[r]), Got: n}
	}
	return e.mem[r], nil
}

// Write implements Device.
func (e *Emulator) Write(r Region, data []byte) error {
	mem, err := e.region(r, len(data))
	if err != nil {
		return err
	}
	copy(mem, data)
	if r == RegionKey {
		if e.key, err = DecodeKeyImage(mem, e.layout); err != nil {
			return err
		}
	}
	return nil
}

// Read implements Device.
func (e *Emulator) Read(r Region, data []byte) error {
	mem, err := e.region(r, len(data))
	if err != nil {
		return err
	}
	copy(data, mem)
	return nil
}

// SetRunFlag implements Device.
func (e *Emulator) SetRunFlag(v uint32) error {
	if e.closed {
		return ErrClosed
	}
	e.runFlag = v
	return nil
}

// Run implements Device: every slot of the input region is blind rotated
// from the sign test polynomial into the matching output block.
func (e *Emulator) Run() error {
	switch {
	case e.closed:
		return ErrClosed
	case e.runFlag != 1:
		return ErrKernelIdle
	case e.key == nil:
		return ErrKeyNotLoaded
	}
	n, k, size := e.layout.LWEDimension, e.layout.GLWEDimension, e.layout.PolynomialSize
	in, out := e.mem[RegionInput], e.mem[RegionOutput]
	block := (k + 1) * size * 4

	var wg sync.WaitGroup
	for slot, eval := range e.evals {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mask := make([]uint32, n)
			for j := range mask {
				mask[j] = binary.LittleEndian.Uint32(in[(slot*n+j)*4:])
			}
			acc := core.NewTrivialGLWECiphertext(k, e.lut)
			eval.BlindRotateAssign(acc, mask, e.key)
			dst := out[slot*block : (slot+1)*block]
			for c, poly := range acc.Value {
				for j, x := range poly {
					binary.LittleEndian.PutUint32(dst[(c*size+j)*4:], x)
				}
			}
		}()
	}
	wg.Wait()
	e.runs++
	return nil
}

// Close implements Device.
func (e *Emulator) Close() error {
	if e.closed {
		return ErrClosed
	}
	e.closed = true
	return nil
}

// Runs returns the number of completed kernel runs.
func (e *Emulator) Runs() int { return e.runs }

// RunFlag returns the current run flag.
func (e *Emulator) RunFlag() uint32 { return e.runFlag }
