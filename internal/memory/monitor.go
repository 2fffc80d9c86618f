package memory

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"photo-tagger/internal/logging"
	"photo-tagger/internal/metrics"
)

// ErrStopped is returned by Wait once the monitor has been stopped.
var ErrStopped = errors.New("memory monitor stopped")

// Config holds memory monitor configuration
type Config struct {
	// LimitBytes is the soft limit to measure against (0 = use GOMEMLIMIT)
	LimitBytes int64

	// HighWaterMark is the usage ratio below which a paused monitor resumes
	HighWaterMark float64

	// CriticalWaterMark is the usage ratio at which callers are paused
	CriticalWaterMark float64

	// CheckInterval is how often heap usage is sampled
	CheckInterval time.Duration
}

// DefaultConfig returns the default monitor configuration
func DefaultConfig() Config {
	return Config{
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     5 * time.Second,
	}
}

// Monitor samples heap usage and pauses workers under memory pressure.
type Monitor struct {
	config Config
	limit  int64
	heap   func() uint64

	stopOnce sync.Once
	stopChan chan struct{}

	mu      sync.RWMutex
	current uint64
	paused  bool
	resume  chan struct{}
}

// NewMonitor creates a monitor. Without an explicit limit it uses
// GOMEMLIMIT; with neither it never pauses.
func NewMonitor(config Config) *Monitor {
	limit := config.LimitBytes
	if limit == 0 {
		if goMemLimit := debug.SetMemoryLimit(-1); goMemLimit > 0 && goMemLimit < 1<<62 {
			limit = goMemLimit
			logging.Info("Memory monitor using GOMEMLIMIT: %s", FormatBytes(limit))
		}
	}
	if limit == 0 {
		logging.Debug("Memory monitor: no memory limit configured, backpressure disabled")
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultConfig().CheckInterval
	}

	return &Monitor{
		config:   config,
		limit:    limit,
		heap:     heapAlloc,
		stopChan: make(chan struct{}),
		resume:   make(chan struct{}),
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}

// Start begins sampling. It does nothing when no limit is known.
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	go m.loop()
}

// Stop ends sampling and releases every waiter. It is safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.check()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Monitor) check() {
	current := m.heap()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = current
	if m.limit <= 0 {
		return
	}

	usage := float64(current) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	switch {
	case usage >= m.config.CriticalWaterMark && !m.paused:
		logging.Warn("Memory critical (%.1f%% of limit), pausing thumbnail work", usage*100)
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryPauses.Inc()
		go runtime.GC()
	case usage < m.config.HighWaterMark && m.paused:
		logging.Info("Memory recovered (%.1f%% of limit), resuming", usage*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resume)
		m.resume = make(chan struct{})
	}
}

// Wait returns immediately unless the monitor is paused, in which case it
// blocks until memory recovers, ctx is done, or the monitor stops.
func (m *Monitor) Wait(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.RLock()
	if !m.paused {
		m.mu.RUnlock()
		return nil
	}
	resume := m.resume
	m.mu.RUnlock()

	select {
	case <-resume:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopChan:
		return ErrStopped
	}
}

// IsPaused returns true while workers should hold off
func (m *Monitor) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// Stats returns the last sampled heap size, the limit, and their ratio.
func (m *Monitor) Stats() (current, limit int64, usage float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	current = int64(min(m.current, uint64(1<<63-1)))
	if m.limit > 0 {
		usage = float64(m.current) / float64(m.limit)
	}
	return current, m.limit, usage
}
