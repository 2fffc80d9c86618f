package workers

import (
	"os"
	"runtime"
	"strconv"
)

// OverrideEnv names the environment variable that pins the worker count.
const OverrideEnv = "RECONCILE_WORKERS"

// Count returns the number of workers for a task type. It respects container
// CPU limits via GOMAXPROCS.
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for CPU-bound tasks (thumbnail decoding)
//   - 2.0 for I/O-bound tasks (stat and directory walks)
//   - 1.5 for mixed tasks (reconciliation)
//
// limit caps the result; 0 means no cap. RECONCILE_WORKERS overrides the
// computed value.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(OverrideEnv); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			return capAt(count, limit)
		}
	}

	workers := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if workers < 1 {
		workers = 1
	}

	return capAt(workers, limit)
}

// Resolve returns configured when it is positive, otherwise ForMixed(limit).
func Resolve(configured, limit int) int {
	if configured > 0 {
		return capAt(configured, limit)
	}
	return ForMixed(limit)
}

func capAt(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// ForMixed returns worker count for mixed tasks (1.5 per CPU).
func ForMixed(limit int) int {
	return Count(1.5, limit)
}
