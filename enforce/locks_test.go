package enforce

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLocksSerializePerKey(t *testing.T) {
	locks := NewKeyedLocks()

	var wg sync.WaitGroup
	var countA, countB int
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("a")
			defer unlock()
			countA++
		}()
		go func() {
			defer wg.Done()
			unlock := locks.Lock("b")
			defer unlock()
			countB++
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, countA)
	assert.Equal(t, 50, countB)
}

func TestKeyedLocksDropReleasedEntries(t *testing.T) {
	locks := NewKeyedLocks()
	unlock := locks.Lock("a")
	assert.Len(t, locks.locks, 1)
	unlock()
	assert.Empty(t, locks.locks)
}
