// Package healthprobe samples the hosting process's own CPU and memory
// usage, folding it into the pipeline's statistics snapshot as advisory
// fields that never participate in health-state derivation.
package healthprobe

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// Probe samples the current process's resource usage on demand.
type Probe struct {
	proc *process.Process
}

// New constructs a Probe bound to the current process. It returns an error
// only if the host OS cannot be introspected at all; callers that don't
// want process health enrichment can simply not construct one.
func New() (*Probe, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &Probe{proc: p}, nil
}

// Sample returns the process's current CPU percent and resident set size.
// Any failure to read either value (platform limitation, permission, first
// call before gopsutil has a CPU baseline) yields a zero for that value
// rather than an error — this is advisory telemetry, not a correctness
// signal.
func (p *Probe) Sample() (cpuPercent float64, rssBytes uint64) {
	if p == nil || p.proc == nil {
		return 0, 0
	}
	if pct, err := p.proc.CPUPercent(); err == nil {
		cpuPercent = pct
	}
	if mem, err := p.proc.MemoryInfo(); err == nil && mem != nil {
		rssBytes = mem.RSS
	}
	return cpuPercent, rssBytes
}
