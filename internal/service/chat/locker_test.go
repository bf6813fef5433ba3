package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionLockerReleasesEntries(t *testing.T) {
	locker := newSessionLocker()

	unlock := locker.lock("s1")
	assert.Equal(t, 1, locker.size())
	unlock()
	assert.Equal(t, 0, locker.size())
}

func TestSessionLockerExcludesSameKey(t *testing.T) {
	locker := newSessionLocker()
	unlock := locker.lock("s1")

	acquired := make(chan struct{})
	go func() {
		release := locker.lock("s1")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first was held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}
}

func TestSessionLockerIndependentKeys(t *testing.T) {
	locker := newSessionLocker()
	unlockA := locker.lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		locker.lock("b")()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on another key blocked")
	}
}

func TestSessionLockerManyWaiters(t *testing.T) {
	locker := newSessionLocker()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locker.lock("hot")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, locker.size())
}
