// Package govern turns the caller's declarative parallelism and memory
// budget into the concrete execution limits one request runs under, and
// owns the process-wide accounting of bytes committed to execution.
package govern

import (
	"runtime"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/flockql/flockql/internal/fault"
)

// DefaultWorkerCap bounds parallel execution regardless of host core
// count to avoid oversubscription on large machines.
const DefaultWorkerCap = 16

// Limits are derived once per request and immutable afterwards.
type Limits struct {
	MaxWorkers         int
	MemoryCeilingBytes int64
}

// Governor computes Limits. The probes are injectable so tests can pin
// host memory and core count; zero values use the real host.
type Governor struct {
	WorkerCap   int
	TotalMemory func() (uint64, error)
	NumCPU      func() int
}

// Derive resolves the memory specification (either a percentage of
// total system memory, e.g. "75%", or an absolute byte quantity such as
// "512MB", "2GiB" or "1073741824") and the parallel flag into limits.
// A specification that does not resolve to a strictly positive ceiling
// is an invalid-limit failure; no file I/O has happened at this point.
func (g *Governor) Derive(parallel bool, memoryLimit string) (Limits, error) {
	ceiling, err := g.resolveMemory(memoryLimit)
	if err != nil {
		return Limits{}, err
	}

	workers := 1
	if parallel {
		numCPU := runtime.NumCPU
		if g.NumCPU != nil {
			numCPU = g.NumCPU
		}
		workerCap := g.WorkerCap
		if workerCap <= 0 {
			workerCap = DefaultWorkerCap
		}
		workers = numCPU()
		if workers > workerCap {
			workers = workerCap
		}
		if workers < 1 {
			workers = 1
		}
	}

	return Limits{MaxWorkers: workers, MemoryCeilingBytes: ceiling}, nil
}

func (g *Governor) resolveMemory(spec string) (int64, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, fault.New(fault.KindInvalidLimit, "memory limit is required")
	}

	if strings.HasSuffix(spec, "%") {
		percent, err := strconv.ParseFloat(strings.TrimSuffix(spec, "%"), 64)
		if err != nil {
			return 0, fault.Wrap(fault.KindInvalidLimit, err, "malformed memory percentage %q", spec)
		}
		if percent <= 0 || percent > 100 {
			return 0, fault.New(fault.KindInvalidLimit, "memory percentage %q outside (0, 100]", spec)
		}
		total, err := g.totalMemory()
		if err != nil {
			return 0, fault.Wrap(fault.KindInvalidLimit, err, "probe total system memory")
		}
		ceiling := int64(float64(total) * percent / 100)
		if ceiling <= 0 {
			return 0, fault.New(fault.KindInvalidLimit, "memory percentage %q resolves to zero bytes", spec)
		}
		return ceiling, nil
	}

	bytes, err := humanize.ParseBytes(spec)
	if err != nil {
		return 0, fault.Wrap(fault.KindInvalidLimit, err, "malformed memory limit %q", spec)
	}
	if bytes == 0 {
		return 0, fault.New(fault.KindInvalidLimit, "memory limit %q must be positive", spec)
	}
	return int64(bytes), nil
}

func (g *Governor) totalMemory() (uint64, error) {
	if g.TotalMemory != nil {
		return g.TotalMemory()
	}
	stats, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return stats.Total, nil
}
