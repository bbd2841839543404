// Package system snapshots the host the refresher runs on.
package system

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot keys, shared with the cycle report consumers.
const (
	KeyCPUPercent    = "host.cpu_percent"
	KeyMemoryPercent = "host.memory_percent"
	KeyMemoryUsed    = "host.memory_used_bytes"
	KeyLoad1         = "host.load_1m"
	KeyLoad5         = "host.load_5m"
	KeyLoad15        = "host.load_15m"
)

// Snapshot returns the host readings the platform offers. A reading that
// cannot be taken is left out rather than reported as zero.
func Snapshot(ctx context.Context) map[string]float64 {
	out := make(map[string]float64, 6)

	// Percent since the previous call, the first call of a process compares against boot
	if percent, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percent) > 0 {
		out[KeyCPUPercent] = percent[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		out[KeyMemoryPercent] = vm.UsedPercent
		out[KeyMemoryUsed] = float64(vm.Used)
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		out[KeyLoad1] = avg.Load1
		out[KeyLoad5] = avg.Load5
		out[KeyLoad15] = avg.Load15
	}

	return out
}
