package metrics

import (
	"context"
	"time"

	"photo-tagger/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	Stats(ctx context.Context) (Stats, error)
}

// Stats holds the current library statistics
type Stats struct {
	TotalImages    int
	TotalTags      int
	UntaggedImages int
}

// Collector periodically collects and updates library gauges
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	doneChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection and waits for the loop to exit
func (c *Collector) Stop() {
	close(c.stopChan)
	<-c.doneChan
}

func (c *Collector) collectLoop() {
	defer close(c.doneChan)

	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.interval)
	defer cancel()

	stats, err := c.statsProvider.Stats(ctx)
	if err != nil {
		logging.Warn("Metrics collection failed: %v", err)
		return
	}

	LibraryImagesTotal.Set(float64(stats.TotalImages))
	LibraryTagsTotal.Set(float64(stats.TotalTags))
	LibraryUntaggedTotal.Set(float64(stats.UntaggedImages))

	logging.Debug("Metrics collected: images=%d, tags=%d, untagged=%d",
		stats.TotalImages, stats.TotalTags, stats.UntaggedImages)
}
