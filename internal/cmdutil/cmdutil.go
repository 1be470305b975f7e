// Package cmdutil holds the flag handling shared by the commands.
package cmdutil

import (
	"encoding"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/accel"
)

// Backend selects how engines bootstrap.
type Backend struct {
	Accel   bool
	Emulate bool
	Packing int
}

// Register adds -accel, -emulate and -packing to fs.
func (b *Backend) Register(fs *flag.FlagSet) {
	fs.BoolVar(&b.Accel, "accel", false, "bootstrap on the accelerator (FPGA_IMAGE and FPGA_INDEX must be set)")
	fs.BoolVar(&b.Emulate, "emulate", false, "bootstrap on the in-process accelerator emulator")
	fs.IntVar(&b.Packing, "packing", 0, "ciphertexts per accelerator run for non-default parameters (0: the default image's)")
}

// Hardware reports whether engines run on a device or the emulator.
func (b *Backend) Hardware() bool { return b.Accel || b.Emulate }

// Layout returns the compiled image layout for the default parameters and
// a derived one otherwise.
func (b *Backend) Layout(params tfhe.Parameters) accel.Layout {
	packing := b.Packing
	if packing <= 0 {
		packing = accel.DefaultLayout.PackingFactor
	}
	if params == tfhe.MustParameters(tfhe.DefaultParameters) && packing == accel.DefaultLayout.PackingFactor {
		return accel.DefaultLayout
	}
	return accel.NewLayout(params, packing)
}

// NewEngine returns an engine for sk with hardware enabled when requested.
// The emulator defaults FPGA_IMAGE and FPGA_INDEX when they are unset.
func (b *Backend) NewEngine(sk *tfhe.ServerKey) *tfhe.Engine {
	opts := []tfhe.Option{tfhe.WithLayout(b.Layout(sk.Parameters()))}
	if b.Emulate {
		opts = append(opts, tfhe.WithOpener(accel.OpenEmulator))
		for env, def := range map[string]string{accel.EnvImage: "emulator", accel.EnvIndex: "0"} {
			if _, ok := os.LookupEnv(env); !ok {
				os.Setenv(env, def)
			}
		}
	}
	e := tfhe.NewEngine(sk, opts...)
	if b.Hardware() {
		e.EnableHardware()
	}
	return e
}

// ReadKey decodes the key file at path into key.
func ReadKey(path string, key encoding.BinaryUnmarshaler) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read key: %w", err)
	}
	if err := key.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Keys returns a client key, read from clientPath when set and generated
// from seed otherwise, and its server key, read from serverPath when set.
func Keys(params tfhe.Parameters, seed, clientPath, serverPath string) (*tfhe.ClientKey, *tfhe.ServerKey, error) {
	ck := new(tfhe.ClientKey)
	switch {
	case clientPath != "":
		if err := ReadKey(clientPath, ck); err != nil {
			return nil, nil, err
		}
	case seed != "":
		var err error
		if ck, err = tfhe.NewClientKeyFromSeed(params, []byte(seed)); err != nil {
			return nil, nil, err
		}
	default:
		var err error
		if ck, err = tfhe.NewClientKey(params); err != nil {
			return nil, nil, err
		}
	}
	if serverPath != "" {
		sk := new(tfhe.ServerKey)
		if err := ReadKey(serverPath, sk); err != nil {
			return nil, nil, err
		}
		if sk.Parameters() != ck.Parameters() {
			return nil, nil, fmt.Errorf("server key parameters %s do not match client key %s", sk.Parameters(), ck.Parameters())
		}
		return ck, sk, nil
	}
	log.Printf("generating server key (%s)", ck.Parameters())
	return ck, ck.NewServerKey(), nil
}
