package syncevent

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// minRearmDelay is the shortest remaining max-wait window worth a timer.
// Anything shorter executes the handler immediately.
const minRearmDelay = 6 * time.Millisecond

// policy routes dispatches of one handler through its debounce or throttle
// window. When both are configured the debounce window governs.
type policy[P any] struct {
	clk    clock.Clock
	logger *zap.Logger
	exec   func(P)

	// throttle only
	limiter *rate.Limiter

	mu         sync.Mutex
	debounce   bool
	wait       time.Duration
	maxWait    time.Duration
	timer      *clock.Timer
	gen        uint64
	delay      time.Duration
	expectExec time.Time
	stopped    bool
}

func newPolicy[P any](lc listenerConfig, clk clock.Clock, logger *zap.Logger, exec func(P)) *policy[P] {
	p := &policy[P]{
		clk:    clk,
		logger: logger,
		exec:   exec,
	}
	if lc.debounce {
		p.debounce = true
		p.wait = lc.debounceWait
		p.maxWait = lc.debounceMaxWait
	} else {
		p.limiter = rate.NewLimiter(rate.Every(lc.throttleWait), 1)
	}
	return p
}

func (p *policy[P]) call(payload P) {
	if !p.debounce {
		if p.limiter.AllowN(p.clk.Now(), 1) {
			p.exec(payload)
			return
		}
		p.logger.Debug("syncevent: throttled dispatch dropped")
		return
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.cancelTimer()
	now := p.clk.Now()

	if p.delay == 0 || p.maxWait == 0 {
		p.postpone(payload, now, p.wait)
		p.mu.Unlock()
		return
	}

	// elapsed is how long execution has already been postponed.
	var elapsed time.Duration
	if p.expectExec.After(now) {
		elapsed = p.delay - p.expectExec.Sub(now)
	} else {
		elapsed = p.delay + now.Sub(p.expectExec)
	}

	switch {
	case elapsed >= p.maxWait:
		p.delay = 0
		p.mu.Unlock()
		p.exec(payload)
	case elapsed+p.wait >= p.maxWait:
		remaining := p.maxWait - elapsed
		if remaining < minRearmDelay {
			p.delay = 0
			p.mu.Unlock()
			p.exec(payload)
			return
		}
		p.delay = p.maxWait
		p.expectExec = now.Add(remaining)
		p.arm(payload, remaining)
		p.mu.Unlock()
	default:
		p.postpone(payload, now, p.wait)
		p.mu.Unlock()
	}
}

// postpone delays execution by d and accounts for it in the accumulated
// delay. Callers hold p.mu.
func (p *policy[P]) postpone(payload P, now time.Time, d time.Duration) {
	p.delay += d
	p.expectExec = now.Add(d)
	p.arm(payload, d)
}

func (p *policy[P]) arm(payload P, d time.Duration) {
	p.gen++
	gen := p.gen
	p.timer = p.clk.AfterFunc(d, func() { p.fire(gen, payload) })
}

func (p *policy[P]) fire(gen uint64, payload P) {
	p.mu.Lock()
	if p.stopped || gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.delay = 0
	p.mu.Unlock()
	p.exec(payload)
}

// cancelTimer invalidates the pending execution, including one whose timer
// already fired but has not taken the lock yet. Callers hold p.mu.
func (p *policy[P]) cancelTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.gen++
}

func (p *policy[P]) stop() {
	if !p.debounce {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	p.cancelTimer()
}
