package locker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLock_SerializesSameUser(t *testing.T) {
	l := NewUserLocker()

	var counter, max int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Lock(1)
			defer l.Unlock(1)
			mu.Lock()
			counter++
			if counter > max {
				max = counter
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			counter--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, max)
}

func TestLock_DifferentUsersDoNotBlock(t *testing.T) {
	l := NewUserLocker()
	l.Lock(1)
	defer l.Unlock(1)

	done := make(chan struct{})
	go func() {
		l.Lock(2)
		l.Unlock(2)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for a different user blocked")
	}
}

func TestLock_ReleasedLockCanBeReacquired(t *testing.T) {
	l := NewUserLocker()
	l.Lock(1)
	l.Unlock(1)
	l.Lock(1)
	l.Unlock(1)
}
