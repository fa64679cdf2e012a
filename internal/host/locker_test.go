package host

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLocker_SerializesSameKey(t *testing.T) {
	locker := NewKeyedLocker()

	var (
		mu     sync.Mutex
		active int
		peak   int
		wg     sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locker.Lock("sku-1")
			defer unlock()

			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, peak)
	assert.Zero(t, locker.Len())
}

func TestKeyedLocker_DifferentKeysDoNotBlock(t *testing.T) {
	locker := NewKeyedLocker()
	unlockA := locker.Lock("sku-a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locker.Lock("sku-b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key must not block")
	}
	assert.Equal(t, 1, locker.Len())
}
