package syncevent

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

type config struct {
	clock   clock.Clock
	logger  *zap.Logger
	onPanic func(*PanicError)
}

// Option configures a [Hub].
type Option func(*config)

func defaultConfig() config {
	return config{
		clock:  clock.New(),
		logger: zap.NewNop(),
	}
}

// WithClock sets the clock used for debounce and throttle windows and for
// wait timeouts. Tests pass a [clock.Mock].
// It panics if c is nil.
func WithClock(c clock.Clock) Option {
	return func(cfg *config) {
		if c == nil {
			panic("syncevent: WithClock requires non-nil clock")
		}
		cfg.clock = c
	}
}

// WithLogger sets the logger used to report recovered handler panics and
// policy decisions. A nil logger disables logging.
func WithLogger(l *zap.Logger) Option {
	return func(cfg *config) {
		if l == nil {
			l = zap.NewNop()
		}
		cfg.logger = l
	}
}

// WithPanicHandler registers a hook invoked with every handler panic
// recovered during [Hub.Emit]. The hook runs on the emitting goroutine.
func WithPanicHandler(fn func(*PanicError)) Option {
	return func(cfg *config) {
		cfg.onPanic = fn
	}
}

type listenerConfig struct {
	debounce        bool
	debounceWait    time.Duration
	debounceMaxWait time.Duration

	throttle     bool
	throttleWait time.Duration
}

// ListenerOption configures the execution policy of a single handler
// registered with [Hub.On].
type ListenerOption func(*listenerConfig)

// WithDebounce defers the handler until wait has passed without another
// dispatch of its event. A non-zero maxWait bounds how long a continuous
// burst may postpone execution.
//
// The window is validated when the handler is registered: wait must be
// positive and maxWait, when set, must exceed wait.
func WithDebounce(wait, maxWait time.Duration) ListenerOption {
	return func(c *listenerConfig) {
		c.debounce = true
		c.debounceWait = wait
		c.debounceMaxWait = maxWait
	}
}

// WithThrottle runs the handler at most once per wait; dispatches arriving
// inside the window are dropped. When combined with [WithDebounce] the
// debounce window governs scheduling.
func WithThrottle(wait time.Duration) ListenerOption {
	return func(c *listenerConfig) {
		c.throttle = true
		c.throttleWait = wait
	}
}

func (c listenerConfig) validate() error {
	if c.debounce {
		if c.debounceWait <= 0 {
			return newValidationError("debounce wait", "must be positive")
		}
		if c.debounceMaxWait < 0 {
			return newValidationError("debounce maxWait", "must not be negative")
		}
		if c.debounceMaxWait > 0 && c.debounceMaxWait <= c.debounceWait {
			return newValidationError("debounce maxWait", "must exceed wait")
		}
	}
	if c.throttle && c.throttleWait <= 0 {
		return newValidationError("throttle wait", "must be positive")
	}
	return nil
}

func (c listenerConfig) active() bool {
	return c.debounce || c.throttle
}

type recorderConfig struct {
	replaySelf bool
}

// RecorderOption configures a [Recorder].
type RecorderOption func(*recorderConfig)

// WithReplaySelf makes [Recorder.Replay] re-emit recorded events into the
// hub they were recorded from instead of into a separate consumer hub.
func WithReplaySelf() RecorderOption {
	return func(c *recorderConfig) {
		c.replaySelf = true
	}
}
