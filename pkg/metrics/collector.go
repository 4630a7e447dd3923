package metrics

import (
	"context"
	"time"

	"github.com/cuemby/filebox/pkg/log"
	"github.com/cuemby/filebox/pkg/types"
	"github.com/rs/zerolog"
)

// UsageSource reports aggregate storage usage
type UsageSource interface {
	StorageUsage(ctx context.Context) (types.StorageUsage, error)
}

// Collector periodically samples storage usage into gauges
type Collector struct {
	source   UsageSource
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source UsageSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		logger:   log.WithComponent("metrics"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		defer close(c.doneCh)
		defer ticker.Stop()

		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop stops the collector and waits for the loop to exit
func (c *Collector) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), c.interval)
	defer cancel()

	usage, err := c.source.StorageUsage(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Skipping usage sample")
		return
	}

	FilesTotal.Set(float64(usage.Files))
	StorageBytes.WithLabelValues("original").Set(float64(usage.TotalOriginalBytes))
	StorageBytes.WithLabelValues("compressed").Set(float64(usage.TotalCompressedBytes))
}
