package async

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coastwatch/aistracker/errs"
)

func TestPoolRunsSubmittedTasks(t *testing.T) {
	pool, err := NewPool(4, 16)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	var ran atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		err := pool.Submit(context.Background(), func(context.Context) error {
			defer wg.Done()
			ran.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	wg.Wait()
	if got := ran.Load(); got != 10 {
		t.Errorf("ran = %d, want 10", got)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestPoolRejectsWhenSaturated(t *testing.T) {
	pool, err := NewPool(1, 0)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()
	release := make(chan struct{})
	started := make(chan struct{})
	err = pool.Submit(context.Background(), func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started
	err = pool.Submit(context.Background(), func(context.Context) error { return nil })
	if errs.CodeOf(err) != errs.CodeUnavailable {
		t.Errorf("saturated submit code = %v, want %v", errs.CodeOf(err), errs.CodeUnavailable)
	}
	close(release)
}

func TestPoolRejectsAfterClose(t *testing.T) {
	pool, err := NewPool(2, 4)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	pool.Close()
	err = pool.Submit(context.Background(), func(context.Context) error { return nil })
	if errs.CodeOf(err) != errs.CodeUnavailable {
		t.Errorf("closed submit code = %v, want %v", errs.CodeOf(err), errs.CodeUnavailable)
	}
}

func TestPoolShutdownDrainsQueue(t *testing.T) {
	pool, err := NewPool(1, 8)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	var ran atomic.Int64
	for i := 0; i < 5; i++ {
		err := pool.Submit(context.Background(), func(context.Context) error {
			time.Sleep(time.Millisecond)
			ran.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := ran.Load(); got != 5 {
		t.Errorf("ran = %d, want 5", got)
	}
}

func TestPoolValidation(t *testing.T) {
	if _, err := NewPool(0, 4); errs.CodeOf(err) != errs.CodeInvalid {
		t.Errorf("NewPool(0) code = %v, want %v", errs.CodeOf(err), errs.CodeInvalid)
	}
	pool, err := NewPool(1, 1)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()
	if err := pool.Submit(context.Background(), nil); errs.CodeOf(err) != errs.CodeInvalid {
		t.Errorf("nil task code = %v, want %v", errs.CodeOf(err), errs.CodeInvalid)
	}
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pool.Submit(cancelled, func(context.Context) error { return nil }); err == nil {
		t.Error("expected error for cancelled submit context")
	}
}

func TestPoolSurvivesTaskPanic(t *testing.T) {
	pool, err := NewPool(1, 2)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	done := make(chan struct{})
	if err := pool.Submit(context.Background(), func(context.Context) error { panic("boom") }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := pool.Submit(context.Background(), func(context.Context) error {
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive task panic")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
