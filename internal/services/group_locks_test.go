package services

import (
	"testing"
	"time"
)

func TestGroupLocks_SerializesOneGroupOnly(t *testing.T) {
	var locks groupLocks

	unlockA := locks.lock("a")

	otherDone := make(chan struct{})
	go func() {
		unlock := locks.lock("b")
		unlock()
		close(otherDone)
	}()
	select {
	case <-otherDone:
	case <-time.After(time.Second):
		t.Fatal("lock on another group waited for group a")
	}

	sameDone := make(chan struct{})
	go func() {
		unlock := locks.lock("a")
		unlock()
		close(sameDone)
	}()
	select {
	case <-sameDone:
		t.Fatal("second holder of group a did not wait")
	case <-time.After(50 * time.Millisecond):
	}

	unlockA()
	select {
	case <-sameDone:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired group a")
	}

	if n := locks.size(); n != 0 {
		t.Errorf("idle groups still tracked: %d", n)
	}
}
