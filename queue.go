package main

import (
	"sync/atomic"

	"github.com/lightningnetwork/lnd/queue"
)

// workQueue is an unbounded concurrent FIFO with a cheap depth reading. The
// crawler's refill and drain thresholds are best-effort checks, so the depth
// only needs to be accurate between pushes, not during one.
type workQueue struct {
	q     *queue.ConcurrentQueue
	depth int64
}

func newWorkQueue() *workQueue {
	q := queue.NewConcurrentQueue(64)
	q.Start()
	return &workQueue{q: q}
}

// push never blocks the producer; overflow is buffered inside the backing
// queue.
func (w *workQueue) push(item interface{}) {
	atomic.AddInt64(&w.depth, 1)
	w.q.ChanIn() <- item
}

// pop blocks while the queue is empty.
func (w *workQueue) pop() interface{} {
	item := <-w.q.ChanOut()
	atomic.AddInt64(&w.depth, -1)
	return item
}

func (w *workQueue) size() int {
	return int(atomic.LoadInt64(&w.depth))
}

func (w *workQueue) stop() {
	w.q.Stop()
}
