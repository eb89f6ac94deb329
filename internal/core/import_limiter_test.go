package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestImportLimiter_SingleSlot(t *testing.T) {
	limiter := NewImportLimiter(0)

	if got := limiter.Status().MaxConcurrent; got != 1 {
		t.Fatalf("MaxConcurrent = %d, want 1", got)
	}

	if err := limiter.TryAcquire(); err != nil {
		t.Fatalf("first TryAcquire: %v", err)
	}
	if err := limiter.TryAcquire(); !errors.Is(err, ErrImportInProgress) {
		t.Fatalf("second TryAcquire = %v, want ErrImportInProgress", err)
	}

	st := limiter.Status()
	if st.Active != 1 || st.Available != 0 || !st.Busy {
		t.Errorf("Status = %+v, want active=1 available=0 busy", st)
	}

	limiter.Release()
	if err := limiter.TryAcquire(); err != nil {
		t.Fatalf("TryAcquire after Release: %v", err)
	}
	limiter.Release()

	if got := limiter.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount = %d, want 0", got)
	}
}

func TestImportLimiter_AcquireCancelled(t *testing.T) {
	limiter := NewImportLimiter(1)
	if err := limiter.TryAcquire(); err != nil {
		t.Fatal(err)
	}
	defer limiter.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := limiter.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire = %v, want deadline exceeded", err)
	}
}

func TestImportLimiter_ConcurrentTryAcquire(t *testing.T) {
	limiter := NewImportLimiter(1)

	var (
		wg      sync.WaitGroup
		granted atomic.Int32
		start   = make(chan struct{})
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if limiter.TryAcquire() == nil {
				granted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := granted.Load(); got != 1 {
		t.Errorf("granted = %d, want exactly 1", got)
	}
}

func TestImportLimiter_WaitForDrain(t *testing.T) {
	limiter := NewImportLimiter(1)
	if err := limiter.TryAcquire(); err != nil {
		t.Fatal(err)
	}

	drainDone := make(chan error, 1)
	go func() {
		drainDone <- limiter.WaitForDrain(context.Background())
	}()

	select {
	case <-drainDone:
		t.Fatal("WaitForDrain returned while an import was active")
	case <-time.After(50 * time.Millisecond):
	}

	limiter.Release()

	select {
	case err := <-drainDone:
		if err != nil {
			t.Errorf("WaitForDrain: %v", err)
		}
	case <-time.After(time.Second):
		t.Error("WaitForDrain did not return after Release")
	}
}

func TestImportLimiter_WaitForDrainTimeout(t *testing.T) {
	limiter := NewImportLimiter(1)
	if err := limiter.TryAcquire(); err != nil {
		t.Fatal(err)
	}
	defer limiter.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := limiter.WaitForDrain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForDrain = %v, want deadline exceeded", err)
	}
}
