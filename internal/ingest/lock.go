package ingest

import "sync/atomic"

// Lock is a non-blocking mutex guarding ingest runs.
type Lock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire takes the lock if it is free and reports whether it did
func (l *Lock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release frees the lock. Only the holder may call it.
func (l *Lock) Release() {
	l.state.Store(0)
}

// Held reports whether an ingest run currently holds the lock
func (l *Lock) Held() bool {
	return l.state.Load() == 1
}
