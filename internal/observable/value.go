// Package observable provides explicit state cells with change notification.
//
// A Value holds the current state and a version counter. Readers either
// poll Get or block on Changed, which returns a channel closed on the next
// Set. Waiting is therefore "read, check, wait on Changed, repeat".
package observable

import "sync"

// Readable is the read side of a Value.
type Readable[T any] interface {
	Get() T
	Load() (T, uint64)
	Changed() <-chan struct{}
}

// Value is a concurrency-safe state cell.
type Value[T any] struct {
	mu      sync.RWMutex
	v       T
	version uint64
	changed chan struct{}
}

var _ Readable[int] = (*Value[int])(nil)

// NewValue returns a Value holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		v:       initial,
		changed: make(chan struct{}),
	}
}

// Get returns the current value.
func (o *Value[T]) Get() T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.v
}

// Load returns the current value together with its version.
func (o *Value[T]) Load() (T, uint64) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.v, o.version
}

// Version returns the number of Sets applied so far.
func (o *Value[T]) Version() uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.version
}

// Set replaces the value and wakes all waiters.
func (o *Value[T]) Set(v T) {
	o.mu.Lock()
	o.v = v
	o.version++
	ch := o.changed
	o.changed = make(chan struct{})
	o.mu.Unlock()

	close(ch)
}

// Update applies fn to the current value atomically and wakes all waiters.
// It returns the new value.
func (o *Value[T]) Update(fn func(T) T) T {
	o.mu.Lock()
	o.v = fn(o.v)
	o.version++
	v := o.v
	ch := o.changed
	o.changed = make(chan struct{})
	o.mu.Unlock()

	close(ch)
	return v
}

// CompareAndSet sets v only if the version still equals expected.
func (o *Value[T]) CompareAndSet(expected uint64, v T) bool {
	o.mu.Lock()
	if o.version != expected {
		o.mu.Unlock()
		return false
	}
	o.v = v
	o.version++
	ch := o.changed
	o.changed = make(chan struct{})
	o.mu.Unlock()

	close(ch)
	return true
}

// Changed returns a channel that is closed on the next Set.
func (o *Value[T]) Changed() <-chan struct{} {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.changed
}
