package platform

import "testing"

func TestDefaultWorkerCountHonorsConfigured(t *testing.T) {
	if got := DefaultWorkerCount(12); got != 12 {
		t.Fatalf("DefaultWorkerCount(12) = %d; want 12", got)
	}
}

func TestDefaultWorkerCountFloorsAtSix(t *testing.T) {
	if got := DefaultWorkerCount(0); got < 6 {
		t.Fatalf("DefaultWorkerCount(0) = %d; want >= 6", got)
	}
}

func TestMemoryLimitBytesDoesNotPanicWithoutCgroup(t *testing.T) {
	// The result depends on the host's cgroup files (false when they are
	// missing or unreadable), so only the absence of a panic is checked.
	_, _ = MemoryLimitBytes()
}
