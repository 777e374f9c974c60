package sync

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerCoalesces(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var fired atomic.Int32

	for i := 0; i < 5; i++ {
		d.Add("pr-1", func() { fired.Add(1) })
	}

	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("fired = %d, want 1", got)
	}
}

func TestDebouncerSeparateKeys(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	var fired atomic.Int32

	d.Add("pr-1", func() { fired.Add(1) })
	d.Add("pr-2", func() { fired.Add(1) })

	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 2 {
		t.Errorf("fired = %d, want 2", got)
	}
}

func TestDebouncerCancel(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	var fired atomic.Int32

	d.Add("pr-1", func() { fired.Add(1) })
	d.Cancel("pr-1")

	time.Sleep(50 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Errorf("fired = %d, want 0", got)
	}
}

func TestKeyLockSerializesSameKey(t *testing.T) {
	l := NewKeyLock()

	l.Lock("a")
	if l.TryLock("a") {
		t.Error("TryLock succeeded while key held")
	}
	if !l.TryLock("b") {
		t.Error("TryLock failed for an unrelated key")
	}
	l.Unlock("b")
	l.Unlock("a")

	if !l.TryLock("a") {
		t.Error("TryLock failed after unlock")
	}
	l.Unlock("a")
}
