package cmdutil

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/pprof"
	"time"
)

// Profile writes pprof profiles requested on the command line.
type Profile struct {
	CPUProfile   string
	MemProfile   string
	MutexProfile string

	cpuFile   *os.File
	startTime time.Time
}

// Register adds -cpuprofile, -memprofile and -mutexprofile to fs.
func (p *Profile) Register(fs *flag.FlagSet) {
	fs.StringVar(&p.CPUProfile, "cpuprofile", "", "write a CPU profile to this file")
	fs.StringVar(&p.MemProfile, "memprofile", "", "write a heap profile to this file on exit")
	fs.StringVar(&p.MutexProfile, "mutexprofile", "", "write a mutex contention profile to this file on exit")
}

// Start begins profiling.
func (p *Profile) Start() error {
	p.startTime = time.Now()

	if p.MutexProfile != "" {
		runtime.SetMutexProfileFraction(1)
	}
	if p.CPUProfile != "" {
		f, err := os.Create(p.CPUProfile)
		if err != nil {
			return fmt.Errorf("create CPU profile: %w", err)
		}
		p.cpuFile = f
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return fmt.Errorf("start CPU profile: %w", err)
		}
	}
	return nil
}

// Stop ends profiling and writes the requested profiles.
func (p *Profile) Stop() error {
	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		p.cpuFile.Close()
		p.cpuFile = nil
		log.Printf("CPU profile written to %s (%v)", p.CPUProfile, time.Since(p.startTime).Round(time.Millisecond))
	}

	if p.MemProfile != "" {
		f, err := os.Create(p.MemProfile)
		if err != nil {
			return fmt.Errorf("create memory profile: %w", err)
		}
		defer f.Close()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			return fmt.Errorf("write memory profile: %w", err)
		}
		log.Printf("Memory profile written to %s", p.MemProfile)
	}

	if p.MutexProfile != "" {
		f, err := os.Create(p.MutexProfile)
		if err != nil {
			return fmt.Errorf("create mutex profile: %w", err)
		}
		defer f.Close()
		if err := pprof.Lookup("mutex").WriteTo(f, 0); err != nil {
			return fmt.Errorf("write mutex profile: %w", err)
		}
		runtime.SetMutexProfileFraction(0)
		log.Printf("Mutex profile written to %s", p.MutexProfile)
	}
	return nil
}
