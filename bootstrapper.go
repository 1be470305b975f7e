// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/tfhe/accel"
	"github.com/luxfi/tfhe/core"
)

// Bootstrapper refreshes batches of at most the packing factor LWE
// ciphertexts with the boolean sign test polynomial. Results are encrypted
// under the extracted GLWE key (dimension k*N) and returned in input order.
type Bootstrapper interface {
	BootstrapPacked(cts []*core.LWECiphertext) ([]*core.LWECiphertext, error)
	Close() error
}

// softwareBootstrapper runs the ciphertexts of a batch in parallel, one
// evaluator per slot.
type softwareBootstrapper struct {
	params Parameters
	bsk    *core.FourierBootstrapKey
	lut    []uint32
	evals  []*core.Evaluator
}

func newSoftwareBootstrapper(params Parameters, bsk *core.FourierBootstrapKey, slots int) *softwareBootstrapper {
	b := &softwareBootstrapper{
		params: params,
		bsk:    bsk,
		lut:    core.SignLUT(params.N()),
		evals:  make([]*core.Evaluator, slots),
	}
	b.evals[0] = core.NewEvaluator(params)
	for i := 1; i < slots; i++ {
		b.evals[i] = b.evals[0].ShallowCopy()
	}
	return b
}

func (b *softwareBootstrapper) BootstrapPacked(cts []*core.LWECiphertext) ([]*core.LWECiphertext, error) {
	if len(cts) > len(b.evals) {
		return nil, fmt.Errorf("software bootstrap: batch of %d exceeds %d slots", len(cts), len(b.evals))
	}
	out := make([]*core.LWECiphertext, len(cts))
	var wg sync.WaitGroup
	for i, ct := range cts {
		out[i] = core.NewLWECiphertext(b.params.ExtractedDimension())
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.evals[i].BootstrapAssign(ct, b.lut, b.bsk, out[i])
		}()
	}
	wg.Wait()
	return out, nil
}

func (b *softwareBootstrapper) Close() error { return nil }

// hardwareBootstrapper hands each batch to one accelerator kernel run.
type hardwareBootstrapper struct {
	session *accel.Session
}

// BootstrapPacked panics with the *accel.DeviceFault when the device fails.
func (b *hardwareBootstrapper) BootstrapPacked(cts []*core.LWECiphertext) ([]*core.LWECiphertext, error) {
	res, err := b.session.Dispatch(cts)
	if err != nil {
		var fault *accel.DeviceFault
		if errors.As(err, &fault) {
			panic(fault)
		}
		return nil, fmt.Errorf("hardware bootstrap: %w", err)
	}
	return res, nil
}

func (b *hardwareBootstrapper) Close() error {
	return b.session.Close()
}
