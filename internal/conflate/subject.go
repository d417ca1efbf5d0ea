package conflate

import (
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// ErrNonPositiveInterval is returned by NewSubject for intervals <= 0.
var ErrNonPositiveInterval = errors.New("conflate: interval must be positive")

// ErrorHandler receives failures recovered from subscriber callbacks.
type ErrorHandler func(err error)

// Option configures a Subject at construction.
type Option[K comparable, V any] func(*Subject[K, V])

// WithErrorHandler overrides where recovered subscriber failures are
// reported. The default handler logs them.
func WithErrorHandler[K comparable, V any](handler ErrorHandler) Option[K, V] {
	return func(s *Subject[K, V]) {
		if handler != nil {
			s.onError = handler
		}
	}
}

// Sink accepts keyed pushes. *Subject implements it.
type Sink[K comparable, V any] interface {
	Push(key K, value V)
}

// Subject rate-limits and multicasts conflated updates. Producers call Push
// at any frequency; every currently registered subscriber receives at most
// one batch per interval, carrying the most recent value for each key that
// changed since the previous flush.
//
// The flush window is anchored to the first push after the previous flush:
// the timer is armed when the buffer goes empty to non-empty and is never
// reset by later pushes, so worst-case per-key latency is bounded by the
// interval even under a steady trickle of updates.
//
// All state is guarded by one mutex; Push, the timer callback, Subscribe,
// cancellation, FlushNow and Dispose serialize on it. Subscriber callbacks
// run outside the lock so a slow consumer never blocks producers.
type Subject[K comparable, V any] struct {
	mu       sync.Mutex
	interval time.Duration
	buffer   *Buffer[K, V]
	timer    *time.Timer
	epoch    uint64
	subs     []*Subscription[K, V]
	disposed bool
	onError  ErrorHandler
}

// NewSubject creates a subject flushing at most once per interval.
func NewSubject[K comparable, V any](interval time.Duration, opts ...Option[K, V]) (*Subject[K, V], error) {
	if interval <= 0 {
		return nil, ErrNonPositiveInterval
	}
	s := &Subject[K, V]{
		interval: interval,
		buffer:   NewBuffer[K, V](),
		onError:  func(err error) { logs.Errorf("conflate: %+v", err) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Push records the latest value for key. If the buffer was empty this arms
// the flush timer; otherwise the already-armed timer is left untouched.
// Push after Dispose is a silent no-op.
func (s *Subject[K, V]) Push(key K, value V) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	if s.buffer.Upsert(key, value) {
		s.armTimerLocked()
	}
	s.mu.Unlock()
}

// Subscribe registers callback to receive every future batch. Subscribers
// registered at flush time all receive the same read-only batch instance, in
// subscription order; there is no replay of past batches. After Dispose an
// inert, already-canceled handle is returned.
func (s *Subject[K, V]) Subscribe(callback func(Batch[K, V])) *Subscription[K, V] {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return &Subscription[K, V]{}
	}
	sub := &Subscription[K, V]{subject: s, callback: callback}
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return sub
}

// PipeTo forwards every update of each future batch to target. It is a plain
// subscription and adds no semantics of its own.
func (s *Subject[K, V]) PipeTo(target Sink[K, V]) *Subscription[K, V] {
	return s.Subscribe(func(batch Batch[K, V]) {
		for _, u := range batch {
			target.Push(u.Key, u.Value)
		}
	})
}

// FlushNow drains and delivers any pending updates immediately, ending the
// current window. Callers wanting lossless shutdown use this before Dispose.
func (s *Subject[K, V]) FlushNow() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.clearTimerLocked()
	batch := s.buffer.Drain()
	subs := s.snapshotLocked()
	s.mu.Unlock()
	s.deliver(batch, subs)
}

// Dispose cancels any armed timer and marks the subject terminal. Unflushed
// updates are dropped. Idempotent.
func (s *Subject[K, V]) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.clearTimerLocked()
	s.buffer.Drain()
	s.subs = nil
	s.mu.Unlock()
}

// armTimerLocked starts a one-shot timer for the new window. The epoch
// invalidates late fires from timers that were stopped after firing.
func (s *Subject[K, V]) armTimerLocked() {
	s.epoch++
	epoch := s.epoch
	s.timer = time.AfterFunc(s.interval, func() { s.flush(epoch) })
}

func (s *Subject[K, V]) clearTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.epoch++
}

func (s *Subject[K, V]) flush(epoch uint64) {
	s.mu.Lock()
	if s.disposed || epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	batch := s.buffer.Drain()
	subs := s.snapshotLocked()
	s.mu.Unlock()
	// Pushes landing from here on see an empty buffer and arm their own
	// timer; they belong to the next window.
	s.deliver(batch, subs)
}

func (s *Subject[K, V]) snapshotLocked() []*Subscription[K, V] {
	if len(s.subs) == 0 {
		return nil
	}
	subs := make([]*Subscription[K, V], len(s.subs))
	copy(subs, s.subs)
	return subs
}

// deliver invokes each subscriber with the same batch instance. A panicking
// subscriber is reported to the error handler and never suppresses delivery
// to the remaining subscribers.
func (s *Subject[K, V]) deliver(batch Batch[K, V], subs []*Subscription[K, V]) {
	if len(batch) == 0 {
		return
	}
	for _, sub := range subs {
		s.deliverOne(sub, batch)
	}
}

func (s *Subject[K, V]) deliverOne(sub *Subscription[K, V], batch Batch[K, V]) {
	defer func() {
		if r := recover(); r != nil {
			s.onError(errors.Errorf("subscriber panic: %+v", r))
		}
	}()
	sub.callback(batch)
}

func (s *Subject[K, V]) cancel(sub *Subscription[K, V]) {
	s.mu.Lock()
	for i, candidate := range s.subs {
		if candidate == sub {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
}

// Subscription is the handle returned by Subscribe.
type Subscription[K comparable, V any] struct {
	subject  *Subject[K, V]
	callback func(Batch[K, V])
}

// Cancel removes the callback from the subject. Idempotent, and safe to call
// from within the callback itself; removal takes effect from the next flush.
func (s *Subscription[K, V]) Cancel() {
	if s == nil || s.subject == nil {
		return
	}
	s.subject.cancel(s)
}
