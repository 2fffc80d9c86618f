// Package memory bounds heap growth while thumbnails are decoded.
//
// Call [ConfigureFromEnv] early in main. It sets GOMEMLIMIT from the
// container limit passed in MEMORY_LIMIT (bytes, usually through the
// Kubernetes Downward API), scaled by MEMORY_RATIO (default 0.85). An
// explicit GOMEMLIMIT always wins.
//
// A [Monitor] samples heap usage against that limit. Above the critical
// water mark it pauses callers of [Monitor.Wait] until usage drops below
// the high water mark again. The reconciliation workers wait on it before
// each file so a large backlog of full-resolution decodes cannot push the
// process past its limit.
//
// Without a limit the monitor never pauses.
package memory
