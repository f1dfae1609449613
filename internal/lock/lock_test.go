package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vendemais/vendas-hub-go/internal/domain"
	"github.com/vendemais/vendas-hub-go/internal/lock"
)

func newManager(t *testing.T, opts lock.Options) *lock.Manager {
	t.Helper()
	m := lock.NewManager(opts, zap.NewNop())
	t.Cleanup(m.Close)
	return m
}

func TestAcquireAndRelease(t *testing.T) {
	m := newManager(t, lock.Options{})

	id, err := m.Acquire(context.Background(), "5511999999999", "process_message")
	if err != nil {
		t.Fatalf("expected acquire, got %v", err)
	}
	if id == "" {
		t.Fatal("expected a lock id")
	}

	info := m.IsLocked("5511999999999")
	if !info.Locked {
		t.Fatal("expected contact to be locked")
	}
	if info.Operation != "process_message" {
		t.Errorf("expected operation 'process_message', got '%s'", info.Operation)
	}

	if !m.Release("5511999999999", id) {
		t.Fatal("expected release to succeed")
	}
	if m.IsLocked("5511999999999").Locked {
		t.Fatal("expected contact unlocked after release")
	}
}

func TestMutualExclusion(t *testing.T) {
	m := newManager(t, lock.Options{MaxWait: 2 * time.Second, PollInterval: 10 * time.Millisecond})

	// Dois "webhooks" concorrentes para o MESMO contato: nunca os dois
	// dentro da seção crítica ao mesmo tempo.
	var mu sync.Mutex
	inCritical := 0
	maxInCritical := 0

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := m.Acquire(context.Background(), "5511888887777", "process_message")
			if err != nil {
				t.Errorf("unexpected acquire error: %v", err)
				return
			}
			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()

			time.Sleep(50 * time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
			m.Release("5511888887777", id)
		}()
	}
	wg.Wait()

	if maxInCritical != 1 {
		t.Errorf("expected at most 1 holder at a time, observed %d", maxInCritical)
	}
}

func TestDifferentContactsProceedInParallel(t *testing.T) {
	m := newManager(t, lock.Options{})

	id1, err := m.Acquire(context.Background(), "5511000000001", "process_message")
	if err != nil {
		t.Fatalf("contact 1: %v", err)
	}
	defer m.Release("5511000000001", id1)

	// O segundo contato não pode esperar pelo primeiro.
	start := time.Now()
	id2, err := m.Acquire(context.Background(), "5511000000002", "process_message")
	if err != nil {
		t.Fatalf("contact 2: %v", err)
	}
	defer m.Release("5511000000002", id2)

	if time.Since(start) > 50*time.Millisecond {
		t.Error("second contact should not have waited on the first")
	}
}

func TestAcquireTimeout(t *testing.T) {
	m := newManager(t, lock.Options{
		TTL:          time.Minute,
		MaxWait:      100 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	})

	id, err := m.Acquire(context.Background(), "5511999990000", "process_message")
	if err != nil {
		t.Fatal(err)
	}
	defer m.Release("5511999990000", id)

	_, err = m.Acquire(context.Background(), "5511999990000", "process_message")
	var lockErr *domain.ErrLockTimeout
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}

	if m.Stats().TotalTimeouts != 1 {
		t.Errorf("expected 1 timeout in stats, got %d", m.Stats().TotalTimeouts)
	}
}

func TestExpiredLockIsReclaimed(t *testing.T) {
	m := newManager(t, lock.Options{
		TTL:          50 * time.Millisecond,
		MaxWait:      time.Second,
		PollInterval: 10 * time.Millisecond,
	})

	// Dono "crasha" — nunca chama Release.
	_, err := m.Acquire(context.Background(), "5511777776666", "process_message")
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(80 * time.Millisecond)

	// Novo chamador reivindica sem cooperação do dono original.
	id2, err := m.Acquire(context.Background(), "5511777776666", "handoff")
	if err != nil {
		t.Fatalf("expected reclaim after TTL, got %v", err)
	}
	defer m.Release("5511777776666", id2)

	if m.Stats().TotalExpired == 0 {
		t.Error("expected expired counter to increment")
	}
}

func TestReleaseMismatchIsNoOp(t *testing.T) {
	m := newManager(t, lock.Options{})

	id, err := m.Acquire(context.Background(), "5511666665555", "process_message")
	if err != nil {
		t.Fatal(err)
	}

	if m.Release("5511666665555", "wrong-id") {
		t.Fatal("expected mismatched release to fail")
	}
	if !m.IsLocked("5511666665555").Locked {
		t.Fatal("expected lock still held after mismatched release")
	}

	m.Release("5511666665555", id)
}

func TestIsLockedSelfHealsExpired(t *testing.T) {
	m := newManager(t, lock.Options{TTL: 30 * time.Millisecond})

	_, err := m.Acquire(context.Background(), "5511555554444", "process_message")
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)

	if m.IsLocked("5511555554444").Locked {
		t.Fatal("expected expired lock cleared by inspection")
	}
}

func TestFIFOOrderAmongWaiters(t *testing.T) {
	m := newManager(t, lock.Options{MaxWait: 2 * time.Second, PollInterval: 5 * time.Millisecond})

	id, err := m.Acquire(context.Background(), "5511444443333", "process_message")
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			gotID, err := m.Acquire(context.Background(), "5511444443333", "process_message")
			if err != nil {
				t.Errorf("waiter %d: %v", n, err)
				return
			}
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			m.Release("5511444443333", gotID)
		}(i)
		// Garante ordem de chegada distinta na fila.
		time.Sleep(30 * time.Millisecond)
	}

	m.Release("5511444443333", id)
	wg.Wait()

	if len(order) != 3 {
		t.Fatalf("expected 3 waiters served, got %d", len(order))
	}
	for i := 0; i < 3; i++ {
		if order[i] != i+1 {
			t.Errorf("expected FIFO order [1 2 3], got %v", order)
			break
		}
	}
}

func TestSweepClearsExpiredLocks(t *testing.T) {
	m := newManager(t, lock.Options{
		TTL:           30 * time.Millisecond,
		SweepInterval: 20 * time.Millisecond,
	})

	_, err := m.Acquire(context.Background(), "5511333332222", "process_message")
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(120 * time.Millisecond)

	// A varredura deve ter limpado sem nenhum Acquire/IsLocked intermediário.
	stats := m.Stats()
	if stats.ActiveLocks != 0 {
		t.Errorf("expected 0 active locks after sweep, got %d", stats.ActiveLocks)
	}
	if stats.TotalExpired == 0 {
		t.Error("expected expired counter to increment via sweep")
	}
}
