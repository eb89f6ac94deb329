package core

// import_limiter.go serializes import processing.
//
// Imports are not re-entrant: a second import started while one is running
// is rejected with ErrImportInProgress rather than queued. The limiter is a
// semaphore so the slot count can be raised, but the default is one.
//
// WaitForDrain blocks until all running imports finish and is used during
// graceful shutdown.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrImportInProgress is returned when every import slot is taken.
var ErrImportInProgress = errors.New("import in progress, please wait for it to finish")

// DefaultMaxConcurrentImports is the default number of import slots.
const DefaultMaxConcurrentImports = 1

// ImportLimiter bounds concurrent imports with a semaphore.
type ImportLimiter struct {
	semaphore chan struct{}

	mu     sync.RWMutex
	active int
}

// NewImportLimiter creates a limiter with maxConcurrent slots.
func NewImportLimiter(maxConcurrent int) *ImportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentImports
	}
	return &ImportLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
	}
}

// TryAcquire takes a slot without blocking. It returns ErrImportInProgress
// when none is free. The caller must call Release exactly once on success.
func (l *ImportLimiter) TryAcquire() error {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	default:
		return ErrImportInProgress
	}
}

// Acquire waits for a slot until ctx is done. Used by the CLI, which runs
// one import and can afford to wait.
func (l *ImportLimiter) Acquire(ctx context.Context) error {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire or TryAcquire.
func (l *ImportLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of running imports.
func (l *ImportLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until no import is running or ctx is done.
func (l *ImportLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ImportLimiterStatus is a snapshot of limiter state.
type ImportLimiterStatus struct {
	Active        int  `json:"active"`
	Available     int  `json:"available"`
	MaxConcurrent int  `json:"max_concurrent"`
	Busy          bool `json:"busy"`
}

// Status returns the current limiter state for the dashboard.
func (l *ImportLimiter) Status() ImportLimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	available := cap(l.semaphore) - len(l.semaphore)
	return ImportLimiterStatus{
		Active:        active,
		Available:     available,
		MaxConcurrent: cap(l.semaphore),
		Busy:          available == 0,
	}
}
