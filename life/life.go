// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package life runs Conway's Game of Life on encrypted cells. The board
// wraps around at its edges and every generation is evaluated with packed
// gate calls, one chunk of PackingFactor cells at a time.
package life

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/luxfi/tfhe"
)

var (
	// ErrRaggedState is returned for a state file whose rows differ in length.
	ErrRaggedState = errors.New("life: rows have different lengths")
	// ErrEmptyState is returned for a state file without cells.
	ErrEmptyState = errors.New("life: empty state")
)

// Rule is the clear Game of Life rule: a live cell survives with two or
// three live neighbours and a dead cell is born with exactly three.
func Rule(alive bool, neighbours int) bool {
	return neighbours == 3 || (alive && neighbours == 2)
}

// counter is a packed 3-bit little-endian counter, one bit slice per
// weight. Sums wrap at 8.
type counter [3][]*tfhe.Ciphertext

func zeroCounter(n int) counter {
	var c counter
	for i := range c {
		c[i] = make([]*tfhe.Ciphertext, n)
		for j := range c[i] {
			c[i][j] = tfhe.NewTrivialCiphertext(false)
		}
	}
	return c
}

// pair evaluates two element-wise gates in one packed call.
func pair(e *tfhe.Engine, op1 tfhe.GateOp, l1, r1 []*tfhe.Ciphertext, op2 tfhe.GateOp, l2, r2 []*tfhe.Ciphertext) ([]*tfhe.Ciphertext, []*tfhe.Ciphertext, error) {
	n := len(l1)
	ops := make([]tfhe.GateOp, 0, 2*n)
	for range l1 {
		ops = append(ops, op1)
	}
	for range l2 {
		ops = append(ops, op2)
	}
	ls := append(append(make([]*tfhe.Ciphertext, 0, 2*n), l1...), l2...)
	rs := append(append(make([]*tfhe.Ciphertext, 0, 2*n), r1...), r2...)
	out, err := e.GatesPacked(ops, ls, rs)
	if err != nil {
		return nil, nil, err
	}
	return out[:n], out[n:], nil
}

// addBit adds the bits a to c.
func addBit(e *tfhe.Engine, a []*tfhe.Ciphertext, c counter) (counter, error) {
	var out counter
	var carry []*tfhe.Ciphertext
	var err error
	if out[0], carry, err = pair(e, tfhe.XOR, a, c[0], tfhe.AND, a, c[0]); err != nil {
		return out, err
	}
	if out[1], carry, err = pair(e, tfhe.XOR, carry, c[1], tfhe.AND, carry, c[1]); err != nil {
		return out, err
	}
	if out[2], err = e.XorPacked(carry, c[2]); err != nil {
		return out, err
	}
	return out, nil
}

// IsAlive returns the next state of each cell given its eight neighbour
// slices. All slices must have the length of cells.
func IsAlive(e *tfhe.Engine, cells []*tfhe.Ciphertext, neighbours [8][]*tfhe.Ciphertext) ([]*tfhe.Ciphertext, error) {
	sum := zeroCounter(len(cells))
	for i, nb := range neighbours {
		if len(nb) != len(cells) {
			return nil, fmt.Errorf("life: neighbour %d: %w", i, tfhe.ErrLengthMismatch)
		}
		var err error
		if sum, err = addBit(e, nb, sum); err != nil {
			return nil, fmt.Errorf("life: neighbour sum: %w", err)
		}
	}

	// Sums of 2 and 3 are the only ones with bit 1 set and bit 2 clear.
	notHigh, err := e.NotPacked(sum[2])
	if err != nil {
		return nil, err
	}
	twoOrThree, err := e.AndPacked(sum[1], notHigh)
	if err != nil {
		return nil, err
	}
	three, survive, err := pair(e, tfhe.AND, sum[0], twoOrThree, tfhe.AND, cells, twoOrThree)
	if err != nil {
		return nil, err
	}
	return e.OrPacked(three, survive)
}

// Board is a grid of encrypted cells stored row-major.
type Board struct {
	Rows, Cols int
	States     []*tfhe.Ciphertext
}

// NewBoard returns a board of cols columns holding states.
func NewBoard(cols int, states []*tfhe.Ciphertext) (*Board, error) {
	if cols <= 0 || len(states) == 0 || len(states)%cols != 0 {
		return nil, fmt.Errorf("life: %d cells do not fill rows of %d", len(states), cols)
	}
	return &Board{Rows: len(states) / cols, Cols: cols, States: states}, nil
}

// Neighbours returns the indices of the eight cells around idx.
func (b *Board) Neighbours(idx int) [8]int {
	i, j := idx/b.Cols, idx%b.Cols
	up, down := (i+b.Rows-1)%b.Rows, (i+1)%b.Rows
	left, right := (j+b.Cols-1)%b.Cols, (j+1)%b.Cols
	return [8]int{
		up*b.Cols + left, up*b.Cols + j, up*b.Cols + right,
		i*b.Cols + left, i*b.Cols + right,
		down*b.Cols + left, down*b.Cols + j, down*b.Cols + right,
	}
}

// Update advances the board by one generation.
func (b *Board) Update(e *tfhe.Engine) error {
	total := len(b.States)
	next := make([]*tfhe.Ciphertext, 0, total)
	step := e.PackingFactor()
	for start := 0; start < total; start += step {
		end := min(start+step, total)
		var nbs [8][]*tfhe.Ciphertext
		for idx := start; idx < end; idx++ {
			for k, n := range b.Neighbours(idx) {
				nbs[k] = append(nbs[k], b.States[n])
			}
		}
		alive, err := IsAlive(e, b.States[start:end], nbs)
		if err != nil {
			return fmt.Errorf("life: cells %d-%d: %w", start, end-1, err)
		}
		next = append(next, alive...)
	}
	b.States = next
	return nil
}

// Decrypt returns the clear cells.
func (b *Board) Decrypt(ck *tfhe.ClientKey) []bool {
	return ck.DecryptSlice(b.States)
}

// State is a clear board.
type State struct {
	Rows, Cols int
	Cells      []bool
}

// ReadState parses rows of space-separated 0 and 1 cells. Blank lines are
// skipped.
func ReadState(r io.Reader) (State, error) {
	var s State
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if s.Cols == 0 {
			s.Cols = len(fields)
		} else if len(fields) != s.Cols {
			return State{}, fmt.Errorf("%w: line %d has %d cells, want %d", ErrRaggedState, line, len(fields), s.Cols)
		}
		for _, f := range fields {
			switch f {
			case "0":
				s.Cells = append(s.Cells, false)
			case "1":
				s.Cells = append(s.Cells, true)
			default:
				return State{}, fmt.Errorf("life: line %d: invalid cell %q", line, f)
			}
		}
		s.Rows++
	}
	if err := sc.Err(); err != nil {
		return State{}, fmt.Errorf("life: read state: %w", err)
	}
	if s.Rows == 0 {
		return State{}, ErrEmptyState
	}
	return s, nil
}

// Step applies Rule to a clear state on the same wrapping grid.
func (s State) Step() State {
	b := Board{Rows: s.Rows, Cols: s.Cols}
	next := State{Rows: s.Rows, Cols: s.Cols, Cells: make([]bool, len(s.Cells))}
	for idx, alive := range s.Cells {
		n := 0
		for _, nb := range b.Neighbours(idx) {
			if s.Cells[nb] {
				n++
			}
		}
		next.Cells[idx] = Rule(alive, n)
	}
	return next
}

// String renders live cells as full blocks.
func (s State) String() string {
	var sb strings.Builder
	for i := 0; i < s.Rows; i++ {
		for _, c := range s.Cells[i*s.Cols : (i+1)*s.Cols] {
			if c {
				sb.WriteRune('█')
			} else {
				sb.WriteRune('░')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
