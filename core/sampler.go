// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package core

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/luxfi/lattice/v7/utils/sampling"
)

const samplerBufferSize = 4096

// Sampler draws uniform, binary and Gaussian torus values from a PRNG.
// A Sampler is not safe for concurrent use.
type Sampler struct {
	prng io.Reader
	buf  []byte
	pos  int
}

// NewSampler returns a sampler keyed by seed. Equal seeds yield equal streams.
func NewSampler(seed []byte) (*Sampler, error) {
	prng, err := sampling.NewKeyedPRNG(seed)
	if err != nil {
		return nil, fmt.Errorf("keyed prng: %w", err)
	}
	return newSampler(prng), nil
}

// NewRandomSampler returns a sampler seeded from the system entropy source.
func NewRandomSampler() (*Sampler, error) {
	prng, err := sampling.NewPRNG()
	if err != nil {
		return nil, fmt.Errorf("prng: %w", err)
	}
	return newSampler(prng), nil
}

func newSampler(prng io.Reader) *Sampler {
	return &Sampler{
		prng: prng,
		buf:  make([]byte, samplerBufferSize),
		pos:  samplerBufferSize,
	}
}

func (s *Sampler) next(n int) []byte {
	if s.pos+n > len(s.buf) {
		if _, err := io.ReadFull(s.prng, s.buf); err != nil {
			// The lattice PRNGs never fail on read.
			panic(fmt.Errorf("sampler: %w", err))
		}
		s.pos = 0
	}
	b := s.buf[s.pos : s.pos+n]
	s.pos += n
	return b
}

// Uint32 returns a uniform torus element.
func (s *Sampler) Uint32() uint32 {
	return binary.LittleEndian.Uint32(s.next(4))
}

// Bit returns a uniform bit as 0 or 1.
func (s *Sampler) Bit() uint32 {
	return uint32(s.next(1)[0] & 1)
}

// Bool returns a uniform boolean.
func (s *Sampler) Bool() bool {
	return s.Bit() == 1
}

// Uniform fills p with uniform torus elements.
func (s *Sampler) Uniform(p []uint32) {
	for i := range p {
		p[i] = s.Uint32()
	}
}

// Binary fills p with uniform bits.
func (s *Sampler) Binary(p []uint32) {
	for i := range p {
		p[i] = s.Bit()
	}
}

// float53 returns a uniform float in (0, 1].
func (s *Sampler) float53() float64 {
	u := binary.LittleEndian.Uint64(s.next(8)) >> 11
	return float64(u+1) / (1 << 53)
}

// Gaussian returns a torus sample of the centered normal distribution with
// standard deviation stddev (expressed as a fraction of the torus).
func (s *Sampler) Gaussian(stddev float64) uint32 {
	if stddev == 0 {
		return 0
	}
	u1, u2 := s.float53(), s.float53()
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return roundToTorus(z * stddev * float64(NativeModulus))
}

// AddGaussian adds independent Gaussian noise to every coefficient of p.
func (s *Sampler) AddGaussian(p []uint32, stddev float64) {
	for i := range p {
		p[i] += s.Gaussian(stddev)
	}
}
