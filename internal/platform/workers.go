package platform

import "runtime"

// DefaultWorkerCount mirrors the teacher's NewWorkerPool doc-comment
// recommendation (container: GOMAXPROCS, possibly doubled) while honoring
// spec.md's default of 6: if the configured count is unset (<=0), derive it
// from runtime.GOMAXPROCS(0) — already container-aware once automaxprocs
// has run in cmd/vortex — floored at 6.
func DefaultWorkerCount(configured int) int {
	if configured > 0 {
		return configured
	}
	if n := runtime.GOMAXPROCS(0); n > 6 {
		return n
	}
	return 6
}
