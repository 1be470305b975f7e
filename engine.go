// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/luxfi/tfhe/accel"
	"github.com/luxfi/tfhe/core"
)

var (
	// ErrLengthMismatch is returned by packed calls with operand slices of
	// different lengths.
	ErrLengthMismatch = errors.New("tfhe: operand lengths differ")
	// ErrNilCiphertext is returned for a nil operand.
	ErrNilCiphertext = errors.New("tfhe: nil ciphertext")
	// ErrModulusMismatch is returned for ciphertexts off the native torus.
	ErrModulusMismatch = core.ErrModulusMismatch
	// ErrDimensionMismatch is returned when an encrypted operand does not
	// have the LWE dimension of the server key.
	ErrDimensionMismatch = errors.New("tfhe: ciphertext dimension does not match the server key")
	// ErrUnsupportedGate is returned when MUX (or an unknown op) is passed
	// where a binary gate is expected.
	ErrUnsupportedGate = errors.New("tfhe: not a binary gate")
)

// GateOp is a boolean gate.
type GateOp uint8

const (
	AND GateOp = iota
	OR
	XOR
	NAND
	NOR
	XNOR
	NOT
	MUX
)

var gateNames = [...]string{"AND", "OR", "XOR", "NAND", "NOR", "XNOR", "NOT", "MUX"}

func (op GateOp) String() string {
	if int(op) < len(gateNames) {
		return gateNames[op]
	}
	return fmt.Sprintf("GateOp(%d)", uint8(op))
}

// ParseGateOp parses a gate name, case-insensitively.
func ParseGateOp(s string) (GateOp, error) {
	for i, name := range gateNames {
		if strings.EqualFold(s, name) {
			return GateOp(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedGate, s)
}

// plain evaluates op on clear bits. NOT ignores b.
func (op GateOp) plain(a, b bool) bool {
	switch op {
	case AND:
		return a && b
	case OR:
		return a || b
	case XOR:
		return a != b
	case NAND:
		return !(a && b)
	case NOR:
		return !(a || b)
	case XNOR:
		return a == b
	case NOT:
		return !a
	}
	panic(fmt.Sprintf("tfhe: %s is not a binary gate", op))
}

// Option configures an Engine.
type Option func(*Engine)

// WithLayout sets the accelerator layout. The packing factor of the layout
// also sizes software batches. Defaults to accel.DefaultLayout.
func WithLayout(l accel.Layout) Option {
	return func(e *Engine) { e.layout = l }
}

// WithOpener sets how EnableHardware opens the device. Defaults to
// accel.OpenXRT.
func WithOpener(open accel.Opener) Option {
	return func(e *Engine) { e.open = open }
}

// WithoutKeySwitch skips key switching after bootstrapping. Outputs then
// stay under the extracted GLWE key and can only be decrypted, not fed to
// further gates. Meant for tests and benchmarks.
func WithoutKeySwitch() Option {
	return func(e *Engine) { e.keySwitch = false }
}

// Engine evaluates gates with a ServerKey. It is the explicit evaluation
// context: it owns the selected backend and its scratch space. An Engine
// must be used by one goroutine at a time; concurrent calls panic.
type Engine struct {
	params    Parameters
	key       *ServerKey
	layout    accel.Layout
	open      accel.Opener
	keySwitch bool

	software *softwareBootstrapper
	hardware *hardwareBootstrapper

	busy atomic.Bool
}

// NewEngine returns an engine bootstrapping in software. An invalid layout
// is replaced by accel.DefaultLayout.
func NewEngine(key *ServerKey, opts ...Option) *Engine {
	e := &Engine{
		params:    key.params,
		key:       key,
		layout:    accel.DefaultLayout,
		open:      accel.OpenXRT,
		keySwitch: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.layout.Validate(); err != nil {
		log.Printf("tfhe: %v; using the default layout", err)
		e.layout = accel.DefaultLayout
	}
	e.software = newSoftwareBootstrapper(e.params, key.BootstrapKey, e.layout.PackingFactor)
	return e
}

// Parameters returns the engine's parameters.
func (e *Engine) Parameters() Parameters { return e.params }

// PackingFactor returns the maximum number of ciphertexts per backend call.
func (e *Engine) PackingFactor() int { return e.layout.PackingFactor }

// HardwareEnabled reports whether bootstraps run on the accelerator.
func (e *Engine) HardwareEnabled() bool { return e.hardware != nil }

func (e *Engine) acquire() {
	if !e.busy.CompareAndSwap(false, true) {
		panic("tfhe: Engine used concurrently; create one Engine per goroutine")
	}
}

func (e *Engine) release() { e.busy.Store(false) }

// EnableHardware switches bootstrapping to the accelerator. It reads the
// device configuration from the environment, lays the bootstrapping key
// out for the device and uploads it. Calling it again is a no-op.
//
// Configuration, layout and device failures terminate the process.
func (e *Engine) EnableHardware() {
	e.acquire()
	defer e.release()
	if e.hardware != nil {
		return
	}
	cfg, err := accel.ConfigFromEnv()
	if err != nil {
		log.Fatalf("tfhe: enable hardware: %v", err)
	}
	sess, err := accel.Open(cfg, e.layout, e.key.BootstrapKey, e.open)
	if err != nil {
		log.Fatalf("tfhe: enable hardware: %v", err)
	}
	e.hardware = &hardwareBootstrapper{session: sess}
	log.Printf("tfhe: hardware bootstrapping enabled (packing %d)", e.layout.PackingFactor)
}

// DisableHardware closes the device and returns to software
// bootstrapping. It is a no-op when the hardware is not enabled; a failure
// to close terminates the process.
func (e *Engine) DisableHardware() {
	e.acquire()
	defer e.release()
	if e.hardware == nil {
		return
	}
	if err := e.hardware.Close(); err != nil {
		log.Fatalf("tfhe: disable hardware: %v", err)
	}
	e.hardware = nil
	log.Printf("tfhe: hardware bootstrapping disabled")
}

// Close releases the accelerator, if enabled.
func (e *Engine) Close() error {
	e.acquire()
	defer e.release()
	if e.hardware == nil {
		return nil
	}
	err := e.hardware.Close()
	e.hardware = nil
	return err
}

func (e *Engine) backend() Bootstrapper {
	if e.hardware != nil {
		return e.hardware
	}
	return e.software
}

// ========== Bootstrap pipeline ==========

// bootstrapPacked issues one backend call per packing-factor chunk.
func (e *Engine) bootstrapPacked(cts []*core.LWECiphertext) ([]*core.LWECiphertext, error) {
	out := make([]*core.LWECiphertext, 0, len(cts))
	p := e.layout.PackingFactor
	be := e.backend()
	for start := 0; start < len(cts); start += p {
		res, err := be.BootstrapPacked(cts[start:min(start+p, len(cts))])
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		out = append(out, res...)
	}
	return out, nil
}

func (e *Engine) keySwitchPacked(cts []*core.LWECiphertext) []*core.LWECiphertext {
	if !e.keySwitch {
		return cts
	}
	out := make([]*core.LWECiphertext, len(cts))
	var wg sync.WaitGroup
	for i, ct := range cts {
		out[i] = core.NewLWECiphertext(e.params.LWEDimension())
		wg.Add(1)
		go func() {
			defer wg.Done()
			core.KeySwitch(e.key.KeySwitchKey, ct, out[i])
		}()
	}
	wg.Wait()
	return out
}

func (e *Engine) bootstrapAndKeySwitchPacked(cts []*core.LWECiphertext) ([]*core.LWECiphertext, error) {
	res, err := e.bootstrapPacked(cts)
	if err != nil {
		return nil, err
	}
	return e.keySwitchPacked(res), nil
}

// ========== Gates ==========

func (e *Engine) check(ct *Ciphertext) error {
	if ct == nil {
		return ErrNilCiphertext
	}
	if ct.trivial {
		return nil
	}
	return ct.lwe.CheckModulus()
}

func (e *Engine) checkDimension(cts ...*core.LWECiphertext) error {
	for _, ct := range cts {
		if ct.Dimension() != e.params.LWEDimension() {
			return fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, ct.Dimension(), e.params.LWEDimension())
		}
	}
	return nil
}

// linear returns the pre-bootstrap combination of op on encrypted inputs.
func linear(op GateOp, l, r *core.LWECiphertext) *core.LWECiphertext {
	out := l.CopyNew()
	out.AddAssign(r)
	switch op {
	case AND:
		out.AddPlaintextAssign(core.PlaintextFalse)
	case NAND:
		out.NegAssign()
		out.AddPlaintextAssign(core.PlaintextTrue)
	case OR:
		out.AddPlaintextAssign(core.PlaintextTrue)
	case NOR:
		out.NegAssign()
		out.AddPlaintextAssign(core.PlaintextFalse)
	case XOR:
		out.ScalarMulAssign(2)
		out.AddPlaintextAssign(core.Quarter)
	case XNOR:
		out.ScalarMulAssign(-2)
		out.AddPlaintextAssign(3 * core.Quarter)
	}
	return out
}

// shortcut resolves op between an encrypted ct and a public bit.
func shortcut(op GateOp, ct *Ciphertext, b bool) *Ciphertext {
	switch op {
	case AND:
		if b {
			return ct.CopyNew()
		}
		return NewTrivialCiphertext(false)
	case NAND:
		if b {
			return not(ct)
		}
		return NewTrivialCiphertext(true)
	case OR:
		if b {
			return NewTrivialCiphertext(true)
		}
		return ct.CopyNew()
	case NOR:
		if b {
			return NewTrivialCiphertext(false)
		}
		return not(ct)
	case XOR:
		if b {
			return not(ct)
		}
		return ct.CopyNew()
	default: // XNOR
		if b {
			return ct.CopyNew()
		}
		return not(ct)
	}
}

// prepare either resolves the gate without bootstrapping or returns the
// linear combination to bootstrap.
func (e *Engine) prepare(op GateOp, l, r *Ciphertext) (*Ciphertext, *core.LWECiphertext, error) {
	if err := e.check(l); err != nil {
		return nil, nil, err
	}
	if op == NOT {
		return not(l), nil, nil
	}
	if op >= MUX {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedGate, op)
	}
	if err := e.check(r); err != nil {
		return nil, nil, err
	}
	switch {
	case l.trivial && r.trivial:
		return NewTrivialCiphertext(op.plain(l.value, r.value)), nil, nil
	case l.trivial:
		return shortcut(op, r, l.value), nil, nil
	case r.trivial:
		return shortcut(op, l, r.value), nil, nil
	}
	if err := e.checkDimension(l.lwe, r.lwe); err != nil {
		return nil, nil, err
	}
	return nil, linear(op, l.lwe, r.lwe), nil
}

func (e *Engine) gatesPacked(ops []GateOp, lefts, rights []*Ciphertext) ([]*Ciphertext, error) {
	out := make([]*Ciphertext, len(ops))
	var pending []*core.LWECiphertext
	var slots []int
	for i, op := range ops {
		res, lin, err := e.prepare(op, lefts[i], rights[i])
		if err != nil {
			return nil, fmt.Errorf("%s gate %d: %w", op, i, err)
		}
		if lin == nil {
			out[i] = res
			continue
		}
		pending = append(pending, lin)
		slots = append(slots, i)
	}
	if len(pending) == 0 {
		return out, nil
	}
	boots, err := e.bootstrapAndKeySwitchPacked(pending)
	if err != nil {
		return nil, err
	}
	for j, i := range slots {
		out[i] = NewCiphertext(boots[j])
	}
	return out, nil
}

// GatesPacked evaluates ops[i] on (lefts[i], rights[i]) for every i. All
// gates needing a bootstrap share packed backend calls. Results keep the
// input order. For NOT the right operand is ignored and may be nil.
func (e *Engine) GatesPacked(ops []GateOp, lefts, rights []*Ciphertext) ([]*Ciphertext, error) {
	if len(ops) != len(lefts) || len(lefts) != len(rights) {
		return nil, fmt.Errorf("%w: %d ops, %d lefts, %d rights", ErrLengthMismatch, len(ops), len(lefts), len(rights))
	}
	e.acquire()
	defer e.release()
	return e.gatesPacked(ops, lefts, rights)
}

// GatePacked evaluates op element-wise on lefts and rights.
func (e *Engine) GatePacked(op GateOp, lefts, rights []*Ciphertext) ([]*Ciphertext, error) {
	if len(lefts) != len(rights) {
		return nil, fmt.Errorf("%w: %d lefts, %d rights", ErrLengthMismatch, len(lefts), len(rights))
	}
	ops := make([]GateOp, len(lefts))
	for i := range ops {
		ops[i] = op
	}
	return e.GatesPacked(ops, lefts, rights)
}

// Gate evaluates op on one pair of operands.
func (e *Engine) Gate(op GateOp, left, right *Ciphertext) (*Ciphertext, error) {
	out, err := e.GatePacked(op, []*Ciphertext{left}, []*Ciphertext{right})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// And returns l AND r.
func (e *Engine) And(l, r *Ciphertext) (*Ciphertext, error) { return e.Gate(AND, l, r) }

// Or returns l OR r.
func (e *Engine) Or(l, r *Ciphertext) (*Ciphertext, error) { return e.Gate(OR, l, r) }

// Xor returns l XOR r.
func (e *Engine) Xor(l, r *Ciphertext) (*Ciphertext, error) { return e.Gate(XOR, l, r) }

// Nand returns NOT (l AND r).
func (e *Engine) Nand(l, r *Ciphertext) (*Ciphertext, error) { return e.Gate(NAND, l, r) }

// Nor returns NOT (l OR r).
func (e *Engine) Nor(l, r *Ciphertext) (*Ciphertext, error) { return e.Gate(NOR, l, r) }

// Xnor returns NOT (l XOR r).
func (e *Engine) Xnor(l, r *Ciphertext) (*Ciphertext, error) { return e.Gate(XNOR, l, r) }

// AndPacked is GatePacked(AND, ...).
func (e *Engine) AndPacked(ls, rs []*Ciphertext) ([]*Ciphertext, error) {
	return e.GatePacked(AND, ls, rs)
}

// OrPacked is GatePacked(OR, ...).
func (e *Engine) OrPacked(ls, rs []*Ciphertext) ([]*Ciphertext, error) {
	return e.GatePacked(OR, ls, rs)
}

// XorPacked is GatePacked(XOR, ...).
func (e *Engine) XorPacked(ls, rs []*Ciphertext) ([]*Ciphertext, error) {
	return e.GatePacked(XOR, ls, rs)
}

// NandPacked is GatePacked(NAND, ...).
func (e *Engine) NandPacked(ls, rs []*Ciphertext) ([]*Ciphertext, error) {
	return e.GatePacked(NAND, ls, rs)
}

// NorPacked is GatePacked(NOR, ...).
func (e *Engine) NorPacked(ls, rs []*Ciphertext) ([]*Ciphertext, error) {
	return e.GatePacked(NOR, ls, rs)
}

// XnorPacked is GatePacked(XNOR, ...).
func (e *Engine) XnorPacked(ls, rs []*Ciphertext) ([]*Ciphertext, error) {
	return e.GatePacked(XNOR, ls, rs)
}

// Not returns NOT ct. It never bootstraps.
func (e *Engine) Not(ct *Ciphertext) (*Ciphertext, error) {
	if err := e.check(ct); err != nil {
		return nil, err
	}
	return not(ct), nil
}

// NotPacked negates every ciphertext of cts.
func (e *Engine) NotPacked(cts []*Ciphertext) ([]*Ciphertext, error) {
	out := make([]*Ciphertext, len(cts))
	for i, ct := range cts {
		if err := e.check(ct); err != nil {
			return nil, fmt.Errorf("NOT gate %d: %w", i, err)
		}
		out[i] = not(ct)
	}
	return out, nil
}

// ========== Multiplexer ==========

// Mux returns then if cond is true and els otherwise.
func (e *Engine) Mux(cond, then, els *Ciphertext) (*Ciphertext, error) {
	out, err := e.MuxPacked([]*Ciphertext{cond}, []*Ciphertext{then}, []*Ciphertext{els})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// MuxPacked evaluates Mux element-wise.
//
// With all three operands encrypted, AND(c, t) and AND(NOT c, e) are
// bootstrapped without key switching in one packed call, summed, shifted by
// 1/8 and key switched. A public condition selects a branch directly; a
// public branch falls back to AND/OR gates.
func (e *Engine) MuxPacked(conds, thens, elses []*Ciphertext) ([]*Ciphertext, error) {
	if len(conds) != len(thens) || len(thens) != len(elses) {
		return nil, fmt.Errorf("%w: %d conds, %d thens, %d elses", ErrLengthMismatch, len(conds), len(thens), len(elses))
	}
	e.acquire()
	defer e.release()

	out := make([]*Ciphertext, len(conds))
	var pending []*core.LWECiphertext
	var fast, slow []int
	for i := range conds {
		c, t, f := conds[i], thens[i], elses[i]
		for _, ct := range []*Ciphertext{c, t, f} {
			if err := e.check(ct); err != nil {
				return nil, fmt.Errorf("MUX gate %d: %w", i, err)
			}
		}
		switch {
		case c.trivial:
			if c.value {
				out[i] = t.CopyNew()
			} else {
				out[i] = f.CopyNew()
			}
		case !t.trivial && !f.trivial:
			if err := e.checkDimension(c.lwe, t.lwe, f.lwe); err != nil {
				return nil, fmt.Errorf("MUX gate %d: %w", i, err)
			}
			notc := c.lwe.CopyNew()
			notc.NegAssign()
			pending = append(pending, linear(AND, c.lwe, t.lwe), linear(AND, notc, f.lwe))
			fast = append(fast, i)
		default:
			slow = append(slow, i)
		}
	}

	if len(pending) > 0 {
		boots, err := e.bootstrapPacked(pending)
		if err != nil {
			return nil, err
		}
		sums := make([]*core.LWECiphertext, len(fast))
		for j := range fast {
			sum := boots[2*j]
			sum.AddAssign(boots[2*j+1])
			sum.AddPlaintextAssign(core.PlaintextTrue)
			sums[j] = sum
		}
		sums = e.keySwitchPacked(sums)
		for j, i := range fast {
			out[i] = NewCiphertext(sums[j])
		}
	}

	if len(slow) > 0 {
		ops := make([]GateOp, 2*len(slow))
		ls := make([]*Ciphertext, 2*len(slow))
		rs := make([]*Ciphertext, 2*len(slow))
		for j, i := range slow {
			ops[2*j], ls[2*j], rs[2*j] = AND, conds[i], thens[i]
			ops[2*j+1], ls[2*j+1], rs[2*j+1] = AND, not(conds[i]), elses[i]
		}
		halves, err := e.gatesPacked(ops, ls, rs)
		if err != nil {
			return nil, err
		}
		ors := make([]GateOp, len(slow))
		for j := range ors {
			ors[j] = OR
			ls[j], rs[j] = halves[2*j], halves[2*j+1]
		}
		res, err := e.gatesPacked(ors, ls[:len(slow)], rs[:len(slow)])
		if err != nil {
			return nil, err
		}
		for j, i := range slow {
			out[i] = res[j]
		}
	}
	return out, nil
}
