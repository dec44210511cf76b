package queue

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type flushKind uint8

const (
	flushAuto flushKind = iota
	flushManual
	flushFinal
)

func (k flushKind) String() string {
	switch k {
	case flushAuto:
		return "auto"
	case flushManual:
		return "manual"
	default:
		return "final"
	}
}

// Channel buffers writes in a stash queue and moves them to a main queue
// in batches, the way TCP delays small segments. Readers consume the main
// queue.
//
// A write triggers a flush right away when Nagle is disabled, after
// MinFlushDelay once the stash reaches FlushSizeThreshold, and otherwise
// at the end of the current FlushTimeWindow. At most one flush runs at a
// time; concurrent flushers share its result. While items stay stashed
// behind a full main queue, auto flushes keep retrying.
type Channel[T any] struct {
	cfg       ChannelConfig
	clk       clock.Clock
	logger    *zap.Logger
	congested func(ChannelStats) bool

	stash   *Queue[T]
	main    *Queue[T]
	flights singleflight.Group

	mu        sync.Mutex
	closed    bool
	timer     *clock.Timer
	timerGen  uint64
	lastFlush time.Time
	stats     ChannelStats
}

// NewChannel returns an open channel.
func NewChannel[T any](opts ...ChannelOption) *Channel[T] {
	o := defaultChannelOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.occupancy {
		o.congested = OccupancyCongestion(o.cfg.CongestionThreshold)
	}
	return &Channel[T]{
		cfg:       o.cfg,
		clk:       o.clock,
		logger:    o.logger,
		congested: o.congested,
		stash:     New[T](o.cfg.StashCapacity),
		main:      New[T](o.cfg.MainCapacity),
	}
}

// Write stashes items, blocking while a bounded stash is full, and applies
// the auto-flush policy after every batch that made it into the stash. It
// returns how many items were stashed, which on error may be fewer than
// len(items).
func (c *Channel[T]) Write(ctx context.Context, items ...T) (int, error) {
	if c.IsClosed() {
		return 0, ErrClosed
	}

	written := 0
	defer func() {
		if written > 0 {
			c.mu.Lock()
			c.stats.TotalWrites++
			c.mu.Unlock()
		}
	}()

	for written < len(items) {
		batch := items[written:]
		switch free := c.stash.RemainingCapacity(); {
		case free == 0:
			// Parked on a full stash: something must drain it.
			c.ensureDrain()
			batch = batch[:1]
		case free < len(batch):
			batch = batch[:free]
		}

		n, err := c.stash.Push(ctx, batch...)
		written += n
		if n > 0 {
			c.checkAutoFlush()
		}
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Flush moves stashed items to the main queue now and returns how many
// were moved. If a flush is already running Flush waits for it and then
// flushes whatever is still stashed.
func (c *Channel[T]) Flush(ctx context.Context) (int, error) {
	if c.IsClosed() {
		return 0, ErrClosed
	}
	start := c.clk.Now()
	n, err := c.flushFresh(ctx)
	c.recordFlush(flushManual, start)
	return n, err
}

// Read removes and returns the oldest flushed item, blocking while none is
// available.
func (c *Channel[T]) Read(ctx context.Context) (T, error) {
	return c.main.Read(ctx)
}

// TryRead removes and returns the oldest flushed item if there is one.
func (c *Channel[T]) TryRead() (T, bool) {
	return c.main.TryRead()
}

// Stats returns a snapshot of the channel's counters and queue sizes.
func (c *Channel[T]) Stats() ChannelStats {
	c.mu.Lock()
	s := c.stats
	c.mu.Unlock()
	s.StashSize = c.stash.Len()
	s.MainSize = c.main.Len()
	s.MainCapacity = c.main.Cap()
	return s
}

// Config returns the effective configuration.
func (c *Channel[T]) Config() ChannelConfig {
	return c.cfg
}

// Close stops the flush timer, waits for a running flush, flushes one last
// time and closes both queues, dropping whatever they still hold. Closing
// twice is a no-op.
func (c *Channel[T]) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopTimerLocked()
	c.mu.Unlock()

	start := c.clk.Now()
	n, err := c.flushFresh(ctx)
	c.recordFlush(flushFinal, start)
	c.logger.Debug("queue: channel closed", zap.Int("flushed", n), zap.Error(err))

	c.stash.Close()
	c.main.Close()
	return err
}

func (c *Channel[T]) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel[T]) checkAutoFlush() {
	if !c.cfg.Nagle {
		c.mu.Lock()
		c.stopTimerLocked()
		c.mu.Unlock()
		c.autoFlush()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	stashed := c.stash.Len()
	switch {
	case stashed >= c.cfg.FlushSizeThreshold || c.stash.IsFull():
		c.scheduleLocked(c.cfg.MinFlushDelay)
	case stashed > 0 && c.timer == nil:
		delay := c.cfg.FlushTimeWindow - c.clk.Since(c.lastFlush)
		c.scheduleLocked(max(delay, c.cfg.MinFlushDelay))
	}
}

// scheduleLocked replaces the pending flush timer. Callers hold c.mu.
func (c *Channel[T]) scheduleLocked(d time.Duration) {
	c.stopTimerLocked()
	gen := c.timerGen
	c.timer = c.clk.AfterFunc(d, func() {
		c.mu.Lock()
		if c.closed || gen != c.timerGen {
			c.mu.Unlock()
			return
		}
		c.timer = nil
		c.mu.Unlock()

		if c.stash.Len() > 0 {
			c.autoFlush()
		}
	})
}

func (c *Channel[T]) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}

func (c *Channel[T]) autoFlush() {
	start := c.clk.Now()
	n, err := c.flushFresh(context.Background())
	c.recordFlush(flushAuto, start)
	if err != nil {
		c.logger.Warn("queue: auto flush failed", zap.Error(err))
		return
	}
	c.logger.Debug("queue: auto flush moved items", zap.Int("moved", n))

	// A full main queue leaves items behind; retry until they move.
	if c.stash.Len() > 0 {
		c.ensureDrain()
	}
}

// ensureDrain arms a flush unless one is already pending.
func (c *Channel[T]) ensureDrain() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.timer != nil {
		return
	}
	c.scheduleLocked(max(c.cfg.MinFlushDelay, time.Millisecond))
}

// flushFresh guarantees a flush that started after the call: when it
// joined a flush already in flight and items remain stashed, it flushes
// again.
func (c *Channel[T]) flushFresh(ctx context.Context) (int, error) {
	n, shared, err := c.flush(ctx)
	if err != nil || !shared || c.stash.Len() == 0 {
		return n, err
	}
	m, _, err := c.flush(ctx)
	return n + m, err
}

// flush runs doFlush at most once at a time. Callers arriving while one
// runs receive its result.
func (c *Channel[T]) flush(ctx context.Context) (int, bool, error) {
	v, err, shared := c.flights.Do("flush", func() (any, error) {
		return c.doFlush(ctx)
	})
	n, _ := v.(int)
	return n, shared, err
}

func (c *Channel[T]) doFlush(ctx context.Context) (int, error) {
	if c.congested(c.Stats()) {
		c.mu.Lock()
		c.stats.CongestionDelays++
		c.mu.Unlock()

		backoff := 2 * c.cfg.MinFlushDelay
		c.logger.Debug("queue: main queue congested, backing off", zap.Duration("backoff", backoff))
		t := c.clk.Timer(backoff)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return 0, ctx.Err()
		}
	}

	// The head is removed from the stash only after the main queue took
	// it, so a full main queue leaves the stash order intact.
	moved := 0
	for {
		v, ok := c.stash.Peek()
		if !ok {
			break
		}
		if !c.main.TryPush(v) {
			break
		}
		c.stash.TryRead()
		moved++
	}

	c.mu.Lock()
	c.lastFlush = c.clk.Now()
	c.mu.Unlock()
	return moved, nil
}

func (c *Channel[T]) recordFlush(kind flushKind, start time.Time) {
	d := c.clk.Since(start)

	c.mu.Lock()
	switch kind {
	case flushAuto:
		c.stats.AutoFlushes++
	case flushManual:
		c.stats.ManualFlushes++
	}
	c.stats.TotalFlushes++
	n := time.Duration(c.stats.TotalFlushes)
	c.stats.AvgFlushDelay = (c.stats.AvgFlushDelay*(n-1) + d) / n
	c.mu.Unlock()

	c.logger.Debug("queue: flush", zap.Stringer("kind", kind), zap.Duration("took", d))
}
