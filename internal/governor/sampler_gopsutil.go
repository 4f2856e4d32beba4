package governor

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// GopsutilSampler is the production Sampler, backed by gopsutil — the
// teacher has no host-metrics code of its own, so this fills the
// CPU/memory backpressure requirement of spec.md §4.2/§5 with the
// ecosystem library named in SPEC_FULL.md's DOMAIN STACK.
type GopsutilSampler struct{}

func (GopsutilSampler) CPUPercent() (float64, error) {
	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		return 0, err
	}
	return percents[0], nil
}

func (GopsutilSampler) MemPercent() (float64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return v.UsedPercent, nil
}
