package core

// import_limiter.go bounds the number of batches processed at once.
//
// Each accepted batch holds one slot for its whole run. When every slot is
// taken a new batch waits up to maxWait, then fails with ErrTooManyImports.
// WaitForDrain lets shutdown wait for running batches to finish, since a
// batch is never interrupted once accepted.

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultMaxConcurrentImports is the default number of parallel batches.
	DefaultMaxConcurrentImports = 5

	// DefaultMaxWaitTime is how long a batch waits for a slot.
	DefaultMaxWaitTime = 30 * time.Second
)

// ImportLimiter is a counting semaphore over import batches.
type ImportLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu     sync.Mutex
	active int
	idle   *sync.Cond
}

// NewImportLimiter allows at most maxConcurrent batches at a time.
func NewImportLimiter(maxConcurrent int, maxWait time.Duration) *ImportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentImports
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	l := &ImportLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
	l.idle = sync.NewCond(&l.mu)
	return l
}

// Acquire takes a slot. The caller must call Release when the batch ends.
func (l *ImportLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-timer.C:
		return ErrTooManyImports
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot taken by Acquire.
func (l *ImportLimiter) Release() {
	l.mu.Lock()
	l.active--
	if l.active == 0 {
		l.idle.Broadcast()
	}
	l.mu.Unlock()

	<-l.slots
}

// Active returns the number of batches currently running.
func (l *ImportLimiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Available returns the number of free slots.
func (l *ImportLimiter) Available() int {
	return cap(l.slots) - len(l.slots)
}

// WaitForDrain blocks until no batch is running or ctx is done.
func (l *ImportLimiter) WaitForDrain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.mu.Lock()
		for l.active > 0 {
			l.idle.Wait()
		}
		l.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ImportLimiterStatus is a snapshot of the limiter for the health endpoint.
type ImportLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *ImportLimiter) Status() ImportLimiterStatus {
	return ImportLimiterStatus{
		Active:        l.Active(),
		Available:     l.Available(),
		MaxConcurrent: cap(l.slots),
	}
}
