package main

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkQueueFIFO(t *testing.T) {
	q := newWorkQueue()
	defer q.stop()

	for i := 0; i < 100; i++ {
		q.push(i)
	}
	assert.Equal(t, 100, q.size())

	for i := 0; i < 100; i++ {
		assert.Equal(t, i, q.pop().(int))
	}
	assert.Equal(t, 0, q.size())
}

func TestWorkQueueConcurrentProducers(t *testing.T) {
	q := newWorkQueue()
	defer q.stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.push(j)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, q.size())
	for i := 0; i < 1000; i++ {
		q.pop()
	}
	assert.Equal(t, 0, q.size())
}
