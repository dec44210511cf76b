package queue

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource is implemented by every [Channel] regardless of its item
// type.
type StatsSource interface {
	Stats() ChannelStats
}

// ChannelCollector is a prometheus.Collector exporting the stats of named
// channels under a "channel" label.
type ChannelCollector struct {
	mu      sync.Mutex
	sources map[string]StatsSource

	writes           *prometheus.Desc
	flushes          *prometheus.Desc
	autoFlushes      *prometheus.Desc
	manualFlushes    *prometheus.Desc
	congestionDelays *prometheus.Desc
	avgFlushDelay    *prometheus.Desc
	stashSize        *prometheus.Desc
	mainSize         *prometheus.Desc
}

// NewChannelCollector returns a collector whose metrics live under
// namespace.
func NewChannelCollector(namespace string) *ChannelCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", name),
			help,
			[]string{"channel"}, nil,
		)
	}
	return &ChannelCollector{
		sources:          make(map[string]StatsSource),
		writes:           desc("writes_total", "Successful writes into the stash."),
		flushes:          desc("flushes_total", "Flushes of every kind."),
		autoFlushes:      desc("auto_flushes_total", "Flushes triggered by the auto-flush policy."),
		manualFlushes:    desc("manual_flushes_total", "Flushes requested through Flush."),
		congestionDelays: desc("congestion_delays_total", "Flushes delayed by congestion backoff."),
		avgFlushDelay:    desc("flush_delay_avg_seconds", "Running average flush duration."),
		stashSize:        desc("stash_size", "Items waiting in the stash."),
		mainSize:         desc("main_size", "Items ready for readers."),
	}
}

// Register adds src under name, replacing any source with that name.
func (c *ChannelCollector) Register(name string, src StatsSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[name] = src
}

// Unregister removes the source registered under name.
func (c *ChannelCollector) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sources, name)
}

// Describe is part of the prometheus.Collector interface.
func (c *ChannelCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.writes
	ch <- c.flushes
	ch <- c.autoFlushes
	ch <- c.manualFlushes
	ch <- c.congestionDelays
	ch <- c.avgFlushDelay
	ch <- c.stashSize
	ch <- c.mainSize
}

// Collect is part of the prometheus.Collector interface.
func (c *ChannelCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	sources := make(map[string]StatsSource, len(c.sources))
	for name, src := range c.sources {
		sources[name] = src
	}
	c.mu.Unlock()

	for name, src := range sources {
		s := src.Stats()
		ch <- prometheus.MustNewConstMetric(c.writes, prometheus.CounterValue, float64(s.TotalWrites), name)
		ch <- prometheus.MustNewConstMetric(c.flushes, prometheus.CounterValue, float64(s.TotalFlushes), name)
		ch <- prometheus.MustNewConstMetric(c.autoFlushes, prometheus.CounterValue, float64(s.AutoFlushes), name)
		ch <- prometheus.MustNewConstMetric(c.manualFlushes, prometheus.CounterValue, float64(s.ManualFlushes), name)
		ch <- prometheus.MustNewConstMetric(c.congestionDelays, prometheus.CounterValue, float64(s.CongestionDelays), name)
		ch <- prometheus.MustNewConstMetric(c.avgFlushDelay, prometheus.GaugeValue, s.AvgFlushDelay.Seconds(), name)
		ch <- prometheus.MustNewConstMetric(c.stashSize, prometheus.GaugeValue, float64(s.StashSize), name)
		ch <- prometheus.MustNewConstMetric(c.mainSize, prometheus.GaugeValue, float64(s.MainSize), name)
	}
}

var (
	_ prometheus.Collector = (*ChannelCollector)(nil)
	_ StatsSource          = (*Channel[int])(nil)
)
