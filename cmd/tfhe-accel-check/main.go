// Command tfhe-accel-check runs seeded random packed AND trials on the
// accelerator and in software, and reports agreement and output noise.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"

	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/core"
	"github.com/luxfi/tfhe/internal/cmdutil"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		trials     = flag.Int("trials", 10, "number of packed trials")
		size       = flag.Int("size", 0, "gates per trial (0: the packing factor)")
		seed       = flag.Uint64("seed", 0, "seed of the keys and the trial inputs")
		paramsName = flag.String("params", "default", "parameter set: default or toy")
		backend    cmdutil.Backend
		profile    cmdutil.Profile
	)
	backend.Register(flag.CommandLine)
	profile.Register(flag.CommandLine)
	flag.Parse()

	if err := profile.Start(); err != nil {
		return err
	}
	defer func() {
		if err := profile.Stop(); err != nil {
			log.Printf("profile: %v", err)
		}
	}()
	if !backend.Hardware() {
		backend.Accel = true
	}

	params, err := tfhe.ParametersByName(*paramsName)
	if err != nil {
		return err
	}
	ck, sk, err := cmdutil.Keys(params, fmt.Sprintf("accel-check-%d", *seed), "", "")
	if err != nil {
		return err
	}

	hw := backend.NewEngine(sk)
	defer hw.Close()
	sw := tfhe.NewEngine(sk, tfhe.WithLayout(backend.Layout(params)))

	n := *size
	if n <= 0 {
		n = hw.PackingFactor()
	}
	rng := rand.New(rand.NewPCG(*seed, 0))

	var noise []float64
	failed := 0
	for trial := 0; trial < *trials; trial++ {
		as, bs := make([]bool, n), make([]bool, n)
		for i := range as {
			as[i], bs[i] = rng.IntN(2) == 1, rng.IntN(2) == 1
		}
		ls, rs := ck.EncryptSlice(as), ck.EncryptSlice(bs)

		hwOut, err := hw.AndPacked(ls, rs)
		if err != nil {
			return fmt.Errorf("trial %d: %w", trial, err)
		}
		swOut, err := sw.AndPacked(ls, rs)
		if err != nil {
			return fmt.Errorf("trial %d: %w", trial, err)
		}

		ok := true
		for i := range as {
			want := as[i] && bs[i]
			got := ck.Decrypt(hwOut[i])
			if got != want || ck.Decrypt(swOut[i]) != want {
				ok = false
				log.Printf("trial %d gate %d: %v AND %v: hardware %v, software %v", trial, i, as[i], bs[i], got, ck.Decrypt(swOut[i]))
			}
			noise = append(noise, ck.NoiseOf(hwOut[i], want))
		}
		if ok {
			fmt.Printf("TEST %d PASSED\n", trial)
		} else {
			fmt.Printf("TEST %d FAILED\n", trial)
			failed++
		}
	}

	report, err := core.NewNoiseReport(noise)
	if err != nil {
		return err
	}
	fmt.Printf("hardware output noise: %s\n", report)
	if failed > 0 {
		return fmt.Errorf("%d of %d trials failed", failed, *trials)
	}
	return nil
}
