package main

import (
	"net"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testCrawler builds a crawler whose workers are never started, so queue
// depths move only when the test moves them.
func testCrawler(t *testing.T, numWorkers int) *Crawler {
	cfg := testConfig()
	cfg.NumWorkers = numWorkers
	cfg.Timeout = 1

	c := newCrawler(cfg, testStore(t), testLogger())
	t.Cleanup(func() {
		c.workerInputs.stop()
		c.workerOutputs.stop()
	})
	return c
}

func TestCrawlerBatchSize(t *testing.T) {
	c := testCrawler(t, 3)
	assert.Equal(t, 30, c.batchSize())
}

func TestCrawlerRefillThreshold(t *testing.T) {
	c := testCrawler(t, 2) // batch size 20

	_, err := c.store.insertNodes(testNodes(50))
	require.NoError(t, err)

	// empty input queue is below the threshold, one batch comes in
	c.tick()
	assert.Equal(t, 20, c.workerInputs.size())

	// exactly at the threshold: no refill
	c.tick()
	assert.Equal(t, 20, c.workerInputs.size())

	// one below: the next batch tops it up
	c.workerInputs.pop()
	c.tick()
	assert.Equal(t, 39, c.workerInputs.size())
}

func TestCrawlerDrainThreshold(t *testing.T) {
	c := testCrawler(t, 2) // batch size 20

	outcome := func(i int) *Connection {
		nd := newNode(net.IPv4(10, 3, 0, byte(i+1)), 8333)
		_, err := c.store.insertNodes([]*Node{nd})
		require.NoError(t, err)

		conn := newConnection(nd, c.cfg, time.Second, testLogger())
		conn.PeerVersion = wire.NewMsgVersion(&wire.NetAddress{}, &wire.NetAddress{}, 1, 0)
		return conn
	}

	for i := 0; i < 20; i++ {
		c.workerOutputs.push(outcome(i))
	}

	// exactly at the threshold: nothing is flushed
	c.tick()
	assert.Equal(t, 20, c.workerOutputs.size())
	assert.Equal(t, 0, c.store.nodesVisited())

	// one over: the whole queue drains in one batch
	c.workerOutputs.push(outcome(20))
	c.tick()
	assert.Equal(t, 0, c.workerOutputs.size())
	assert.Equal(t, 21, c.store.nodesVisited())
}

func TestCrawlerDrainKeepsPartialOutcomes(t *testing.T) {
	c := testCrawler(t, 1)

	nd := newNode(net.IPv4(10, 4, 0, 1), 8333)
	_, err := c.store.insertNodes([]*Node{nd})
	require.NoError(t, err)

	// a failed connection that still harvested addresses contributes its
	// discoveries even though the visit does not count
	conn := newConnection(nd, c.cfg, time.Second, testLogger())
	conn.NodesDiscovered = []*Node{
		newNode(net.IPv4(10, 4, 1, 1), 8333),
		newNode(net.IPv4(10, 4, 1, 2), 8333),
	}
	c.workerOutputs.push(conn)

	c.processWorkerOutputs()

	assert.Equal(t, 0, c.store.nodesVisited())
	assert.Equal(t, 3, c.store.nodesTotal())
}
