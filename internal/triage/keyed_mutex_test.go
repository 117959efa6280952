package triage

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_MutualExclusionPerKey(t *testing.T) {
	km := newKeyedMutex()

	const workers = 8
	const iterations = 100
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				unlock := km.Lock("conv-1")
				counter++
				unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*iterations, counter)
}

func TestKeyedMutex_IndependentKeysDoNotBlock(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.Lock("conv-a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("conv-b")
		unlockB()
		close(done)
	}()

	<-done
}

func TestKeyedMutex_RemovesIdleEntries(t *testing.T) {
	km := newKeyedMutex()
	assert.Equal(t, 0, km.size())

	unlock := km.Lock("conv-1")
	assert.Equal(t, 1, km.size())
	unlock()
	assert.Equal(t, 0, km.size())

	// Many distinct keys leave nothing behind once released.
	for i := 0; i < 50; i++ {
		unlock := km.Lock(string(rune('a' + i%26)))
		unlock()
	}
	assert.Equal(t, 0, km.size())
}

func TestKeyedMutex_EntrySurvivesWhileContended(t *testing.T) {
	km := newKeyedMutex()

	refsFor := func(key string) int {
		km.mu.Lock()
		defer km.mu.Unlock()
		if entry, ok := km.entries[key]; ok {
			return entry.refs
		}
		return 0
	}

	unlock := km.Lock("conv-1")

	acquired := make(chan struct{})
	go func() {
		u := km.Lock("conv-1")
		close(acquired)
		u()
	}()

	// Wait until the second holder has registered its reference.
	for refsFor("conv-1") < 2 {
		runtime.Gosched()
	}

	// Releasing the first holder must not delete the contended entry.
	unlock()
	<-acquired
	assert.Equal(t, 0, km.size())
}
