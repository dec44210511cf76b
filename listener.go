package syncevent

// Listener is the handle returned by registration. Cancel removes every
// registration in its chain, newest first. On and Once extend the chain:
// they register on the same hub and return a new Listener whose Cancel
// also undoes the registrations of the receiver.
type Listener[K comparable, P any] struct {
	hub  *Hub[K, P]
	regs []*registration[K, P]
}

// On registers fn for event on the listener's hub and returns the extended
// chain.
func (l *Listener[K, P]) On(event K, fn Handler[P], opts ...ListenerOption) *Listener[K, P] {
	return l.extend(l.hub.On(event, fn, opts...))
}

// Once registers a one-shot fn for event and returns the extended chain.
func (l *Listener[K, P]) Once(event K, fn Handler[P]) *Listener[K, P] {
	return l.extend(l.hub.Once(event, fn))
}

// Cancel removes the chain's registrations in reverse registration order.
// It is idempotent and safe on a nil Listener.
func (l *Listener[K, P]) Cancel() {
	if l == nil {
		return
	}
	for i := len(l.regs) - 1; i >= 0; i-- {
		l.hub.remove(l.regs[i])
	}
}

// Active reports how many registrations of the chain are still live.
func (l *Listener[K, P]) Active() int {
	if l == nil {
		return 0
	}
	n := 0
	for _, reg := range l.regs {
		if reg.live.Load() {
			n++
		}
	}
	return n
}

func (l *Listener[K, P]) extend(next *Listener[K, P]) *Listener[K, P] {
	regs := make([]*registration[K, P], 0, len(l.regs)+len(next.regs))
	regs = append(regs, l.regs...)
	regs = append(regs, next.regs...)
	return &Listener[K, P]{hub: l.hub, regs: regs}
}
