// Package platform carries the teacher's container-awareness idiom
// (internal/platform in the teacher repo paired automaxprocs with cgroup
// memory-limit detection for connection-capacity sizing) into Vortex, scaled
// down to GOMAXPROCS-aware worker-count defaults and a best-effort
// detection of the container memory limit (MemoryLimitBytes, with
// HostMemoryBytes as the host fallback). cmd/vortex does not call the
// memory functions; no log line reports the limit.
package platform

import (
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/mem"
)

const (
	cgroupV2MemoryMax  = "/sys/fs/cgroup/memory.max"
	cgroupV1MemoryLimit = "/sys/fs/cgroup/memory/memory.limit_in_bytes"
)

// MemoryLimitBytes returns the detected container memory limit, trying
// cgroup v2 first and falling back to v1. It returns 0, false when no
// container limit is in effect (bare metal, or an unconfined container),
// in which case the caller should fall back to host memory via
// HostMemoryBytes.
func MemoryLimitBytes() (int64, bool) {
	if limit, ok := readCgroupLimit(cgroupV2MemoryMax); ok {
		return limit, true
	}
	if limit, ok := readCgroupLimit(cgroupV1MemoryLimit); ok {
		return limit, true
	}
	return 0, false
}

func readCgroupLimit(path string) (int64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	s := strings.TrimSpace(string(data))
	if s == "max" {
		return 0, false
	}
	limit, err := strconv.ParseInt(s, 10, 64)
	if err != nil || limit <= 0 {
		return 0, false
	}
	// cgroup v1's default (no limit configured) is a very large sentinel
	// value rather than "max"; treat anything implausibly large as
	// unconfined.
	const implausiblyLarge = int64(1) << 62
	if limit >= implausiblyLarge {
		return 0, false
	}
	return limit, true
}

// HostMemoryBytes reports total host memory, used when no cgroup limit is
// detected (bare-metal or unconfined container).
func HostMemoryBytes() (int64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return int64(v.Total), nil
}
