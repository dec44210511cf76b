package queue

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// ChannelConfig is the effective configuration of a [Channel].
type ChannelConfig struct {
	// FlushTimeWindow bounds how long a small write may sit in the stash.
	FlushTimeWindow time.Duration
	// FlushSizeThreshold is the stash length that triggers a prompt flush.
	FlushSizeThreshold int
	// Nagle enables delayed coalescing; when false every write flushes.
	Nagle bool
	// CongestionThreshold is the main-queue occupancy ratio checked when
	// WithOccupancyCongestion is set.
	CongestionThreshold float64
	// MinFlushDelay is the shortest delay of a scheduled flush.
	MinFlushDelay time.Duration
	// StashCapacity and MainCapacity bound the two stages; zero is
	// unbounded.
	StashCapacity int
	MainCapacity  int
}

// ChannelStats is a snapshot of a channel's counters.
type ChannelStats struct {
	TotalWrites      int64
	TotalFlushes     int64
	AutoFlushes      int64
	ManualFlushes    int64
	CongestionDelays int64
	AvgFlushDelay    time.Duration

	StashSize    int
	MainSize     int
	MainCapacity int
}

type channelOptions struct {
	cfg       ChannelConfig
	clock     clock.Clock
	logger    *zap.Logger
	congested func(ChannelStats) bool
	occupancy bool
}

// ChannelOption configures a [Channel].
type ChannelOption func(*channelOptions)

func defaultChannelOptions() channelOptions {
	return channelOptions{
		cfg: ChannelConfig{
			FlushTimeWindow:     40 * time.Millisecond,
			FlushSizeThreshold:  10,
			Nagle:               true,
			CongestionThreshold: 0.8,
			MinFlushDelay:       5 * time.Millisecond,
		},
		clock:     clock.New(),
		logger:    zap.NewNop(),
		congested: func(ChannelStats) bool { return false },
	}
}

// WithFlushTimeWindow sets the coalescing window. It panics if d <= 0.
func WithFlushTimeWindow(d time.Duration) ChannelOption {
	return func(o *channelOptions) {
		if d <= 0 {
			panic("queue: WithFlushTimeWindow requires d > 0")
		}
		o.cfg.FlushTimeWindow = d
	}
}

// WithFlushSizeThreshold sets the stash length that triggers a flush after
// MinFlushDelay. It panics if n <= 0.
func WithFlushSizeThreshold(n int) ChannelOption {
	return func(o *channelOptions) {
		if n <= 0 {
			panic("queue: WithFlushSizeThreshold requires n > 0")
		}
		o.cfg.FlushSizeThreshold = n
	}
}

// WithNagle toggles delayed coalescing.
func WithNagle(enabled bool) ChannelOption {
	return func(o *channelOptions) {
		o.cfg.Nagle = enabled
	}
}

// WithCongestionThreshold sets the occupancy ratio, in (0, 1], at which the
// main queue counts as congested. It only takes effect together with
// WithOccupancyCongestion.
func WithCongestionThreshold(ratio float64) ChannelOption {
	return func(o *channelOptions) {
		if ratio <= 0 || ratio > 1 {
			panic("queue: WithCongestionThreshold requires 0 < ratio <= 1")
		}
		o.cfg.CongestionThreshold = ratio
	}
}

// WithMinFlushDelay sets the shortest delay of a scheduled flush. The
// congestion backoff waits twice this long. It panics if d < 0.
func WithMinFlushDelay(d time.Duration) ChannelOption {
	return func(o *channelOptions) {
		if d < 0 {
			panic("queue: WithMinFlushDelay requires d >= 0")
		}
		o.cfg.MinFlushDelay = d
	}
}

// WithStashCapacity bounds the stash. Writes block while it is full.
func WithStashCapacity(n int) ChannelOption {
	return func(o *channelOptions) {
		if n < 0 {
			panic("queue: WithStashCapacity requires n >= 0")
		}
		o.cfg.StashCapacity = n
	}
}

// WithMainCapacity bounds the main queue. A flush stops once it is full.
func WithMainCapacity(n int) ChannelOption {
	return func(o *channelOptions) {
		if n < 0 {
			panic("queue: WithMainCapacity requires n >= 0")
		}
		o.cfg.MainCapacity = n
	}
}

// WithCongestionCheck replaces the congestion check evaluated before every
// flush. When it reports true the flush backs off for twice
// MinFlushDelay. The default never reports congestion.
func WithCongestionCheck(fn func(ChannelStats) bool) ChannelOption {
	return func(o *channelOptions) {
		if fn == nil {
			panic("queue: WithCongestionCheck requires non-nil check")
		}
		o.congested = fn
		o.occupancy = false
	}
}

// WithOccupancyCongestion installs OccupancyCongestion with the channel's
// CongestionThreshold, whatever order the options are given in.
func WithOccupancyCongestion() ChannelOption {
	return func(o *channelOptions) {
		o.occupancy = true
	}
}

// OccupancyCongestion reports congestion once the main queue is at least
// ratio full. Unbounded main queues are never congested.
func OccupancyCongestion(ratio float64) func(ChannelStats) bool {
	return func(s ChannelStats) bool {
		if s.MainCapacity == Unbounded || s.MainCapacity <= 0 {
			return false
		}
		return float64(s.MainSize)/float64(s.MainCapacity) >= ratio
	}
}

// WithChannelClock sets the clock driving flush timers and backoff.
func WithChannelClock(c clock.Clock) ChannelOption {
	return func(o *channelOptions) {
		if c == nil {
			panic("queue: WithChannelClock requires non-nil clock")
		}
		o.clock = c
	}
}

// WithChannelLogger sets the logger for flush decisions. Nil disables
// logging.
func WithChannelLogger(l *zap.Logger) ChannelOption {
	return func(o *channelOptions) {
		if l == nil {
			l = zap.NewNop()
		}
		o.logger = l
	}
}
