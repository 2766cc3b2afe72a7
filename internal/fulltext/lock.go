package fulltext

import "sync/atomic"

// maintenanceLock is a non-blocking lock held while a rebuild or optimize runs
type maintenanceLock struct {
	state atomic.Int32 // 0 = idle, 1 = running
}

// tryAcquire returns false if maintenance is already running
func (l *maintenanceLock) tryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// release must only be called after a successful tryAcquire
func (l *maintenanceLock) release() {
	l.state.Store(0)
}

func (l *maintenanceLock) held() bool {
	return l.state.Load() == 1
}
