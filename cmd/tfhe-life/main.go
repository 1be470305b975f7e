// Command tfhe-life runs Conway's Game of Life on an encrypted board and
// prints the decrypted board after every generation.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/internal/cmdutil"
	"github.com/luxfi/tfhe/life"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		statePath   = flag.String("state", "initial_state", "initial board: rows of space-separated 0 and 1")
		generations = flag.Int("generations", 10, "generations to run")
		paramsName  = flag.String("params", "default", "parameter set: default or toy")
		seed        = flag.String("seed", "", "derive the keys from this seed (random when empty)")
		clientKey   = flag.String("client-key", "", "client key file (generated when empty)")
		serverKey   = flag.String("server-key", "", "server key file (generated when empty)")
		verify      = flag.Bool("verify", false, "compare every generation against the clear rule")
		backend     cmdutil.Backend
		profile     cmdutil.Profile
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

	f, err := os.Open(*statePath)
	if err != nil {
		return err
	}
	state, err := life.ReadState(f)
	f.Close()
	if err != nil {
		return err
	}

	params, err := tfhe.ParametersByName(*paramsName)
	if err != nil {
		return err
	}
	ck, sk, err := cmdutil.Keys(params, *seed, *clientKey, *serverKey)
	if err != nil {
		return fmt.Errorf("keys: %w", err)
	}

	e := backend.NewEngine(sk)
	defer e.Close()

	board, err := life.NewBoard(state.Cols, ck.EncryptSlice(state.Cells))
	if err != nil {
		return err
	}
	log.Printf("Board %dx%d, hardware %v, packing %d", board.Rows, board.Cols, e.HardwareEnabled(), e.PackingFactor())
	fmt.Print(state)

	expected := state
	for gen := 1; gen <= *generations; gen++ {
		start := time.Now()
		if err := board.Update(e); err != nil {
			return fmt.Errorf("generation %d: %w", gen, err)
		}
		tick := time.Since(start)

		current := life.State{Rows: board.Rows, Cols: board.Cols, Cells: board.Decrypt(ck)}
		fmt.Printf("\ngeneration %d (%v)\n%s", gen, tick.Round(time.Millisecond), current)

		if *verify {
			expected = expected.Step()
			for i := range expected.Cells {
				if expected.Cells[i] != current.Cells[i] {
					return fmt.Errorf("generation %d: cell %d decrypts to %v, rule gives %v", gen, i, current.Cells[i], expected.Cells[i])
				}
			}
		}
	}
	return nil
}
