package pressure

import (
	"fmt"
	"runtime"

	"github.com/prometheus/procfs"
)

// Sampler reports the process's resident memory in bytes.
type Sampler interface {
	Sample() (uint64, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func() (uint64, error)

func (f SamplerFunc) Sample() (uint64, error) { return f() }

// ProcSampler reads RSS from /proc/self/stat.
type ProcSampler struct {
	proc procfs.Proc
}

func NewProcSampler() (*ProcSampler, error) {
	p, err := procfs.Self()
	if err != nil {
		return nil, fmt.Errorf("opening /proc/self: %w", err)
	}
	return &ProcSampler{proc: p}, nil
}

func (s *ProcSampler) Sample() (uint64, error) {
	stat, err := s.proc.Stat()
	if err != nil {
		return 0, fmt.Errorf("reading process stat: %w", err)
	}
	return uint64(stat.ResidentMemory()), nil
}

// RuntimeSampler approximates RSS from the Go runtime's view: memory
// obtained from the OS minus what was handed back.
type RuntimeSampler struct{}

func (RuntimeSampler) Sample() (uint64, error) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Sys - m.HeapReleased, nil
}

// DefaultSampler prefers procfs and falls back to the runtime estimate on
// platforms without /proc.
func DefaultSampler() Sampler {
	if s, err := NewProcSampler(); err == nil {
		if _, err := s.Sample(); err == nil {
			return s
		}
	}
	return RuntimeSampler{}
}
