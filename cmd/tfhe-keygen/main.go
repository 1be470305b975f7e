// Command tfhe-keygen writes a client key and its server key.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		paramsName = flag.String("params", "default", "parameter set: default or toy")
		seed       = flag.String("seed", "", "derive the keys from this seed (random when empty)")
		outDir     = flag.String("out", ".", "output directory")
	)
	flag.Parse()

	params, err := tfhe.ParametersByName(*paramsName)
	if err != nil {
		return err
	}
	log.Printf("Generating keys: %s", params)

	start := time.Now()
	var ck *tfhe.ClientKey
	if *seed != "" {
		ck, err = tfhe.NewClientKeyFromSeed(params, []byte(*seed))
	} else {
		ck, err = tfhe.NewClientKey(params)
	}
	if err != nil {
		return fmt.Errorf("client key: %w", err)
	}
	sk := ck.NewServerKey()
	log.Printf("Keys generated in %v", time.Since(start))

	if err := os.MkdirAll(*outDir, 0750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for name, key := range map[string]interface{ MarshalBinary() ([]byte, error) }{
		"client.key": ck,
		"server.key": sk,
	} {
		data, err := key.MarshalBinary()
		if err != nil {
			return err
		}
		path := filepath.Join(*outDir, name)
		if err := os.WriteFile(path, data, 0600); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		log.Printf("  %s: %d bytes, handle %s", path, len(data), storage.ComputeHandle(data))
	}
	return nil
}
