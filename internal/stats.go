package internal

import (
	"os"

	"github.com/shirou/gopsutil/process"
)

// SelfStats collects technical metrics of the running process for the
// inspector dashboard. Collection failures degrade to a partial map
// rather than an error; this is debug tooling.
func SelfStats(extra map[string]any) map[string]any {
	stats := map[string]any{"pid": os.Getpid()}

	p, err := process.NewProcess(int32(os.Getpid()))
	if err == nil {
		if memInfo, err := p.MemoryInfo(); err == nil {
			stats["rss_mb"] = memInfo.RSS / (1 << 20)
		}
		if cpuPercent, err := p.CPUPercent(); err == nil {
			stats["cpu_percent"] = cpuPercent
		}
		if status, err := p.Status(); err == nil {
			stats["status"] = status
		}
	}

	for k, v := range extra {
		stats[k] = v
	}
	return stats
}
