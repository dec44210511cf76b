package syncevent

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Entry is one recorded dispatch.
type Entry[K comparable, P any] struct {
	Event   K
	Payload P
}

// Recorder captures every dispatch of a producer hub and replays the log
// into a consumer hub, which is the producer itself under
// [WithReplaySelf].
type Recorder[K comparable, P any] struct {
	id       string
	producer *Hub[K, P]
	consumer *Hub[K, P]
	logger   *zap.Logger

	mu        sync.Mutex
	entries   []Entry[K, P]
	detach    CancelFunc
	recording bool
}

// NewRecorder returns an idle recorder tapping h. Without WithReplaySelf
// replays go to a fresh hub configured like h.
func (h *Hub[K, P]) NewRecorder(opts ...RecorderOption) *Recorder[K, P] {
	var rc recorderConfig
	for _, opt := range opts {
		opt(&rc)
	}
	consumer := h
	if !rc.replaySelf {
		consumer = newHub[K, P](h.cfg)
	}
	id := uuid.NewString()
	return &Recorder[K, P]{
		id:       id,
		producer: h,
		consumer: consumer,
		logger:   h.cfg.logger.With(zap.String("recorder", id)),
	}
}

// ID identifies the recorder in logs.
func (r *Recorder[K, P]) ID() string {
	return r.id
}

// Record starts appending every dispatch of the producer to the log.
// Calling Record while recording is a no-op.
func (r *Recorder[K, P]) Record() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startLocked()
}

// Stop detaches from the producer. The log is kept.
func (r *Recorder[K, P]) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

// Replay re-emits the log, in recorded order, into the consumer hub. An
// active recording is paused for the duration so replayed dispatches are
// not recorded again.
func (r *Recorder[K, P]) Replay() {
	r.mu.Lock()
	resume := r.recording
	r.stopLocked()
	entries := append([]Entry[K, P](nil), r.entries...)
	r.mu.Unlock()

	r.logger.Debug("syncevent: replaying", zap.Int("entries", len(entries)))
	for _, e := range entries {
		r.consumer.Emit(e.Event, e.Payload)
	}

	if resume {
		r.Record()
	}
}

// Clear drops the log without changing the recording state.
func (r *Recorder[K, P]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// Entries returns a copy of the log.
func (r *Recorder[K, P]) Entries() []Entry[K, P] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry[K, P](nil), r.entries...)
}

// Len returns the number of recorded dispatches.
func (r *Recorder[K, P]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Recorder[K, P]) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Subscriber returns the hub replays are emitted into.
func (r *Recorder[K, P]) Subscriber() Subscriber[K, P] {
	return r.consumer
}

func (r *Recorder[K, P]) startLocked() {
	if r.recording {
		return
	}
	r.recording = true
	r.detach = r.producer.Any(func(event K, payload P) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.recording {
			r.entries = append(r.entries, Entry[K, P]{Event: event, Payload: payload})
		}
	})
}

func (r *Recorder[K, P]) stopLocked() {
	if !r.recording {
		return
	}
	r.recording = false
	r.detach()
	r.detach = nil
}
