package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"photo-tagger/internal/logging"
)

// DefaultMemoryRatio is the share of the container limit given to the Go
// heap. The rest covers decoder buffers, goroutine stacks and the SQLite
// page cache.
const DefaultMemoryRatio = 0.85

// ConfigResult holds the result of memory configuration
type ConfigResult struct {
	// Configured indicates whether a limit is in effect
	Configured bool

	// Source is "GOMEMLIMIT", "MEMORY_LIMIT", or "none"
	Source string

	// ContainerLimit is the container memory limit in bytes (0 if not set)
	ContainerLimit int64

	// GoMemLimit is the effective GOMEMLIMIT in bytes (0 if not set)
	GoMemLimit int64

	// Ratio is the ratio applied to ContainerLimit (0 if not applicable)
	Ratio float64
}

// ConfigureFromEnv sets GOMEMLIMIT from MEMORY_LIMIT and MEMORY_RATIO
// unless GOMEMLIMIT is already set.
func ConfigureFromEnv() ConfigResult {
	result := ConfigResult{Source: "none"}

	if goMemLimitEnv := os.Getenv("GOMEMLIMIT"); goMemLimitEnv != "" {
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.Source = "GOMEMLIMIT"
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", goMemLimitEnv)
		return result
	}

	memLimitStr := os.Getenv("MEMORY_LIMIT")
	if memLimitStr == "" {
		logging.Debug("MEMORY_LIMIT not set, GOMEMLIMIT will not be configured automatically")
		return result
	}

	memLimit, err := strconv.ParseInt(memLimitStr, 10, 64)
	if err != nil || memLimit <= 0 {
		logging.Warn("Ignoring invalid MEMORY_LIMIT %q", memLimitStr)
		return result
	}

	ratio := DefaultMemoryRatio
	if ratioStr := os.Getenv("MEMORY_RATIO"); ratioStr != "" {
		parsed, err := strconv.ParseFloat(ratioStr, 64)
		switch {
		case err != nil:
			logging.Warn("Failed to parse MEMORY_RATIO %q: %v, using default %.2f", ratioStr, err, DefaultMemoryRatio)
		case parsed <= 0 || parsed > 1.0:
			logging.Warn("MEMORY_RATIO %q out of range (0.0-1.0), using default %.2f", ratioStr, DefaultMemoryRatio)
		default:
			ratio = parsed
		}
	}

	goMemLimit := int64(float64(memLimit) * ratio)
	debug.SetMemoryLimit(goMemLimit)

	result.Configured = true
	result.Source = "MEMORY_LIMIT"
	result.ContainerLimit = memLimit
	result.GoMemLimit = goMemLimit
	result.Ratio = ratio

	logging.Info("Configured GOMEMLIMIT: %s (%.1f%% of %s container limit)",
		FormatBytes(goMemLimit), ratio*100, FormatBytes(memLimit))

	return result
}

// FormatBytes formats b with binary units, e.g. "1.5 GiB".
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
