package spi

import "sync"

// Lock guards the shared bus for the length of a whole transaction. The
// key identifies the logical owner: the holder may obtain the lock again
// without blocking, every other key waits until the holder has released it
// as many times as it obtained it.
type Lock struct {
	mu    sync.Mutex
	free  *sync.Cond
	key   uint32
	depth int

	cs     ChipSelect
	forced bool
}

// NewLock returns an unheld lock. cs may be nil when the transport has no
// chip select to park.
func NewLock(cs ChipSelect) *Lock {
	l := &Lock{cs: cs}
	l.free = sync.NewCond(&l.mu)
	return l
}

// Obtain blocks until the lock is free or already held by key. With
// forceIdleCS the primary chip select is driven idle until the final
// Unlock, so the owner can talk to a device selected by another pin.
func (l *Lock) Obtain(key uint32, forceIdleCS bool) {
	if key == 0 {
		panic("spi: zero lock key")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for l.key != 0 && l.key != key {
		l.free.Wait()
	}
	l.key = key
	l.depth++

	if forceIdleCS && l.cs != nil {
		l.cs.ForceIdle()
		l.forced = true
	}
}

// Unlock releases one level of ownership. A key other than the holder's is
// ignored.
func (l *Lock) Unlock(key uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if key == 0 || l.key != key {
		return
	}
	l.depth--
	if l.depth > 0 {
		return
	}

	if l.forced {
		l.cs.Release()
		l.forced = false
	}
	l.key = 0
	l.free.Broadcast()
}

// Holder returns the key currently holding the lock, 0 if none.
func (l *Lock) Holder() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.key
}
